package apidb

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// packed is a read-only view over a packed database held in memory
type packed struct {
	data           []byte
	indexCount     int
	containerCount int
	offsets        []int
}

// levels are the level bytes of a class or member entry; zero means unset
type levels struct {
	since, deprecatedIn, removedIn int
}

// readPacked validates the header and index table of data
func readPacked(data []byte) (*packed, error) {
	tableStart := len(fileHeader) + 1 + 8
	if len(data) < tableStart || !bytes.Equal(data[:len(fileHeader)], []byte(fileHeader)) {
		return nil, fmt.Errorf("bad header: %w", ErrCorruptCache)
	}
	if v := int(data[len(fileHeader)]); v != FormatVersion() {
		return nil, fmt.Errorf("got version %d, want %d: %w", v, FormatVersion(), ErrFormatVersion)
	}

	indexCount := int(binary.BigEndian.Uint32(data[len(fileHeader)+1:]))
	containerCount := int(binary.BigEndian.Uint32(data[len(fileHeader)+5:]))
	if indexCount > max3ByteInt || containerCount > indexCount {
		return nil, fmt.Errorf("index table counts %d/%d: %w", indexCount, containerCount, ErrCorruptCache)
	}
	dataStart := tableStart + 4*indexCount
	if dataStart > len(data) {
		return nil, fmt.Errorf("index table truncated: %w", ErrCorruptCache)
	}

	p := &packed{
		data:           data,
		indexCount:     indexCount,
		containerCount: containerCount,
		offsets:        make([]int, indexCount),
	}
	for i := range p.offsets {
		off := int(binary.BigEndian.Uint32(data[tableStart+4*i:]))
		if off < dataStart || off >= len(data) {
			return nil, fmt.Errorf("entry %d at offset %d out of range: %w", i, off, ErrCorruptCache)
		}
		p.offsets[i] = off
	}
	return p, nil
}

// compareName compares the name stored at offset, which ends at a 0 or 1
// byte, with key. Separators compare equal when normalize is set.
func (p *packed) compareName(offset int, key string, normalize bool) int {
	i := 0
	for ; i < len(key); i++ {
		if offset+i >= len(p.data) || p.data[offset+i] <= 1 {
			return -1
		}
		b, k := p.data[offset+i], key[i]
		if normalize {
			b, k = normalizeSeparator(b), normalizeSeparator(k)
		}
		if b != k {
			if b < k {
				return -1
			}
			return 1
		}
	}
	if offset+i < len(p.data) && p.data[offset+i] > 1 {
		return 1
	}
	return 0
}

// terminatorAt returns the offset of the 0 or 1 byte ending the name at
// offset, or -1 if the data ends first
func (p *packed) terminatorAt(offset int) int {
	for i := offset; i < len(p.data); i++ {
		if p.data[i] <= 1 {
			return i
		}
	}
	return -1
}

// span reads a 3-byte start index and a 2-byte count at offset
func (p *packed) span(offset int) (start, count int, ok bool) {
	if offset < 0 || offset+5 > len(p.data) {
		return 0, 0, false
	}
	start, count = get3ByteInt(p.data, offset), get2ByteInt(p.data, offset+3)
	if start+count > p.indexCount {
		return 0, 0, false
	}
	return start, count, true
}

// findContainer returns the index of the container called name, or -1.
// With packageOnly set, containers that are outer classes never match.
func (p *packed) findContainer(name string, packageOnly bool) int {
	low, high := 0, p.containerCount
	for low < high {
		middle := int(uint(low+high) >> 1)
		offset := p.offsets[middle]
		c := p.compareName(offset, name, true)
		if c == 0 {
			if t := p.terminatorAt(offset); packageOnly && (t < 0 || p.data[t] != 0) {
				return -1
			}
			return middle
		}
		if c < 0 {
			low = middle + 1
		} else {
			high = middle
		}
	}
	return -1
}

// findClass returns the index of the class called className, or -1
func (p *packed) findClass(className string) int {
	sep := lastSeparator(className)
	containerName := ""
	if sep >= 0 {
		containerName = className[:sep]
	}
	ci := p.findContainer(containerName, false)
	if ci < 0 {
		return -1
	}
	t := p.terminatorAt(p.offsets[ci])
	if t < 0 {
		return -1
	}
	low, count, ok := p.span(t + 1)
	if !ok {
		return -1
	}

	simple := className[sep+1:]
	high := low + count
	for low < high {
		middle := int(uint(low+high) >> 1)
		c := p.compareName(p.offsets[middle]+1, simple, true)
		if c == 0 {
			return middle
		}
		if c < 0 {
			low = middle + 1
		} else {
			high = middle
		}
	}
	return -1
}

// classData returns the offset of the metadata of class entry index
func (p *packed) classData(index int) int {
	offset := p.offsets[index]
	return offset + int(p.data[offset])
}

// readLevels decodes level bytes at offset and returns the offset after them
func (p *packed) readLevels(offset int) (levels, int, bool) {
	var lv levels
	if offset >= len(p.data) {
		return lv, offset, false
	}
	b := p.data[offset]
	offset++
	lv.since = int(b & apiMask)
	if b&hasExtraByteFlag == 0 {
		return lv, offset, true
	}
	if offset >= len(p.data) {
		return lv, offset, false
	}
	b = p.data[offset]
	offset++
	lv.deprecatedIn = int(b & apiMask)
	if b&hasExtraByteFlag == 0 {
		return lv, offset, true
	}
	if offset >= len(p.data) {
		return lv, offset, false
	}
	lv.removedIn = int(p.data[offset] & apiMask)
	return lv, offset + 1, true
}

// classLevels returns the levels of class entry index
func (p *packed) classLevels(index int) (levels, bool) {
	lv, _, ok := p.readLevels(p.classData(index) + 5)
	return lv, ok
}

// lateSupertypes returns the supertypes of class entry index that were
// attached after the class itself, keyed by class index
func (p *packed) lateSupertypes(index int) map[int]int {
	_, offset, ok := p.readLevels(p.classData(index) + 5)
	if !ok || offset >= len(p.data) {
		return nil
	}
	n := int(p.data[offset])
	offset++
	if offset+4*n > len(p.data) {
		return nil
	}
	out := make(map[int]int, n)
	for i := 0; i < n; i++ {
		if idx := get3ByteInt(p.data, offset); out[idx] == 0 {
			out[idx] = int(p.data[offset+3])
		}
		offset += 4
	}
	return out
}

// memberRange returns the index span holding the members of class index
func (p *packed) memberRange(index int) (start, count int, ok bool) {
	return p.span(p.classData(index))
}

// findMember returns the levels of member key in class entry index
func (p *packed) findMember(index int, key string) (levels, bool) {
	low, count, ok := p.memberRange(index)
	if !ok {
		return levels{}, false
	}
	high := low + count
	for low < high {
		middle := int(uint(low+high) >> 1)
		offset := p.offsets[middle]
		c := p.compareName(offset, key, false)
		if c == 0 {
			lv, _, ok := p.readLevels(offset + len(key) + 1)
			return lv, ok
		}
		if c < 0 {
			low = middle + 1
		} else {
			high = middle
		}
	}
	return levels{}, false
}

// removedMembers lists the removed methods or fields of class entry index
func (p *packed) removedMembers(index int, methods bool) []Member {
	out := make([]Member, 0)
	start, count, ok := p.memberRange(index)
	if !ok {
		return out
	}
	for i := start; i < start+count; i++ {
		offset := p.offsets[i]
		t := p.terminatorAt(offset)
		if t < 0 {
			break
		}
		key := string(p.data[offset:t])
		if isMethodKey(key) != methods {
			continue
		}
		lv, _, ok := p.readLevels(t + 1)
		if !ok || lv.removedIn == 0 {
			continue
		}
		kind := MemberField
		if methods {
			kind = MemberMethod
		}
		out = append(out, Member{
			Name:         key,
			Kind:         kind,
			Since:        lv.since,
			DeprecatedIn: lv.deprecatedIn,
			RemovedIn:    lv.removedIn,
		})
	}
	return out
}
