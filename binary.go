package apidb

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Packed database layout. All integers are big endian.
//
//  1. fileHeader, as ASCII.
//  2. The format version [1 byte].
//  3. The index table:
//     a. number of index entries [4 bytes]
//     b. number of containers [4 bytes]
//     c. offsets of container entries, then class entries, then member
//     entries [4 bytes each]
//  4. Member entries: the member key (method keys end at ')'), a 0 byte,
//     then the level bytes.
//  5. Class entries: a byte holding the distance from the entry start to
//     the class metadata, the simple name, a 0 byte, the index of the first
//     member [3 bytes], the member count [2 bytes], the level bytes, the
//     number of supertypes attached after the class itself [1 byte], and
//     for each of those its class index [3 bytes] and level [1 byte].
//  6. Container entries: the name, 0 for a package or 1 for an outer
//     class, the index of the first class [3 bytes] and the class count
//     [2 bytes].
//
// Level bytes are "since", then "deprecated in" if the previous byte has
// hasExtraByteFlag set, then "removed in" if the deprecation byte has it.
//
// Containers and the classes within a container are sorted by
// separator-normalized name, so lookups can treat '.', '/' and '$' as the
// same byte. Members are sorted by their exact key.
const (
	fileHeader = "apidb packed API database\x00"

	binaryFormatMinor = 15
	lookupFormatMajor = 0

	hasExtraByteFlag = 0x80
	apiMask          = 0x7f

	max3ByteInt = 1<<24 - 1
	max2ByteInt = 1<<16 - 1
)

// FormatVersion is the version byte written to packed databases
func FormatVersion() int {
	return lookupFormatMajor<<5 | binaryFormatMinor
}

// CacheFileName returns the packed cache file name for a descriptor
// name, e.g. "api-versions-15-35.0.2.bin"
func CacheFileName(xmlName, platformVersion string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSuffix(xmlName, ".xml"))
	sb.WriteByte('-')
	sb.WriteString(strconv.Itoa(FormatVersion()))
	if platformVersion != "" {
		sb.WriteByte('-')
		sb.WriteString(strings.ReplaceAll(platformVersion, " ", "_"))
	}
	sb.WriteString(".bin")
	return sb.String()
}

// packedClass is the write-side view of one class entry
type packedClass struct {
	cls     *Class
	index   int
	members []Member
}

type packedContainer struct {
	c       *Container
	classes []*packedClass
}

// WriteBinary writes db in packed form to w
func WriteBinary(w io.Writer, db *Database) error {
	data, err := packDatabase(db)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteBinaryFile writes db in packed form to path. The data is written
// to a temporary file first and renamed into place, so readers never see
// a partial file.
func WriteBinaryFile(ctx context.Context, path string, db *Database) error {
	_, span := tracer.Start(ctx, "apidb.WriteBinaryFile",
		trace.WithAttributes(attribute.String("cache", path)))
	defer span.End()

	data, err := packDatabase(db)
	if err != nil {
		span.RecordError(err)
		return &CacheError{Op: "pack", Path: path, Wrapped: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &CacheError{Op: "mkdir", Path: path, Wrapped: err}
	}
	tmp := path + "." + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &CacheError{Op: "write", Path: tmp, Wrapped: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &CacheError{Op: "rename", Path: path, Wrapped: err}
	}
	span.SetAttributes(attribute.Int("bytes", len(data)))
	return nil
}

func packDatabase(db *Database) ([]byte, error) {
	containers := make([]*packedContainer, 0, len(db.containerOrder))
	for _, c := range db.containerOrder {
		containers = append(containers, &packedContainer{c: c})
	}
	sort.Slice(containers, func(i, j int) bool {
		return NormalizeName(containers[i].c.Name) < NormalizeName(containers[j].c.Name)
	})

	// Number containers first, then classes, then members.
	next := len(containers)
	byClass := make(map[*Class]*packedClass, len(db.order))
	for _, pc := range containers {
		for _, cls := range pc.c.classes {
			pc.classes = append(pc.classes, &packedClass{cls: cls})
		}
		sort.Slice(pc.classes, func(i, j int) bool {
			return NormalizeName(entryName(pc.classes[i].cls)) < NormalizeName(entryName(pc.classes[j].cls))
		})
		for _, pk := range pc.classes {
			pk.index = next
			byClass[pk.cls] = pk
			next++
		}
	}

	memberStart := make(map[*packedClass]int, len(byClass))
	for _, pc := range containers {
		for _, pk := range pc.classes {
			pk.members = packedMembers(db, pk.cls)
			memberStart[pk] = next
			next += len(pk.members)
		}
	}
	indexCount := next
	if indexCount > max3ByteInt {
		return nil, fmt.Errorf("%d index entries do not fit the packed format: %w", indexCount, ErrInvalidInput)
	}

	tableStart := len(fileHeader) + 1 + 8
	dataStart := tableStart + 4*indexCount
	offsets := make([]uint32, indexCount)

	var body bytes.Buffer
	mark := func(index int) {
		offsets[index] = uint32(dataStart + body.Len())
	}

	index := len(containers) + len(byClass)
	for _, pc := range containers {
		for _, pk := range pc.classes {
			for _, m := range pk.members {
				mark(index)
				index++
				if err := writeMember(&body, pk.cls, m); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, pc := range containers {
		for _, pk := range pc.classes {
			mark(pk.index)
			name := entryName(pk.cls)
			if len(name) > 250 {
				return nil, fmt.Errorf("class name %q too long: %w", pk.cls.Name, ErrInvalidInput)
			}
			if len(pk.members) > max2ByteInt {
				return nil, fmt.Errorf("class %s has %d members: %w", pk.cls.Name, len(pk.members), ErrInvalidInput)
			}
			body.WriteByte(byte(len(name) + 2))
			body.WriteString(name)
			body.WriteByte(0)
			put3ByteInt(&body, memberStart[pk])
			put2ByteInt(&body, len(pk.members))
			if err := writeClassData(&body, db, pk.cls, byClass); err != nil {
				return nil, err
			}
		}
	}

	for i, pc := range containers {
		mark(i)
		body.WriteString(pc.c.Name)
		if pc.c.IsClass {
			body.WriteByte(1)
		} else {
			body.WriteByte(0)
		}
		if len(pc.classes) == 0 {
			put3ByteInt(&body, 0)
			put2ByteInt(&body, 0)
			continue
		}
		if len(pc.classes) > max2ByteInt {
			return nil, fmt.Errorf("container %s has %d classes: %w", pc.c.Name, len(pc.classes), ErrInvalidInput)
		}
		put3ByteInt(&body, pc.classes[0].index)
		put2ByteInt(&body, len(pc.classes))
	}

	out := make([]byte, 0, dataStart+body.Len())
	out = append(out, fileHeader...)
	out = append(out, byte(FormatVersion()))
	out = binary.BigEndian.AppendUint32(out, uint32(indexCount))
	out = binary.BigEndian.AppendUint32(out, uint32(len(containers)))
	for _, off := range offsets {
		out = binary.BigEndian.AppendUint32(out, off)
	}
	return append(out, body.Bytes()...), nil
}

// entryName is the name a class is stored under inside its container
func entryName(cls *Class) string {
	name := cls.Name
	if i := strings.LastIndexAny(name, "/$"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// packedMembers returns every method and field reachable from cls with
// its effective levels, in packed order
func packedMembers(db *Database, cls *Class) []Member {
	methods := db.allMethods(cls)
	fields := db.allFields(cls)
	members := make([]Member, 0, len(methods)+len(fields))
	for key := range methods {
		members = append(members, db.resolveMember(cls, key))
	}
	for key := range fields {
		members = append(members, db.resolveMember(cls, key))
	}
	sortMembers(members)
	return members
}

func writeMember(buf *bytes.Buffer, cls *Class, m Member) error {
	for i := 0; i < len(m.Name); i++ {
		if m.Name[i] <= 1 || m.Name[i] > 0x7f {
			return fmt.Errorf("member %s#%s is not plain ASCII: %w", cls.Name, m.Name, ErrInvalidInput)
		}
	}
	buf.WriteString(m.Name)
	buf.WriteByte(0)

	if err := writeLevels(buf, m.Since, m.DeprecatedIn, m.RemovedIn); err != nil {
		return fmt.Errorf("member %s#%s: %w", cls.Name, m.Name, err)
	}
	return nil
}

func writeClassData(buf *bytes.Buffer, db *Database, cls *Class, byClass map[*Class]*packedClass) error {
	if err := writeLevels(buf, cls.Since, cls.DeprecatedIn, cls.RemovedIn); err != nil {
		return fmt.Errorf("class %s: %w", cls.Name, err)
	}

	type edge struct{ index, since int }
	var edges []edge
	for _, st := range cls.supertypes() {
		if st.Since <= cls.Since {
			continue
		}
		sup, ok := db.classes[NormalizeName(st.Name)]
		if !ok {
			continue
		}
		if st.Since > MaxLevel {
			return fmt.Errorf("class %s: supertype level %d exceeds %d: %w", cls.Name, st.Since, MaxLevel, ErrInvalidInput)
		}
		edges = append(edges, edge{index: byClass[sup].index, since: st.Since})
	}
	if len(edges) > 0xff {
		return fmt.Errorf("class %s has %d late supertypes: %w", cls.Name, len(edges), ErrInvalidInput)
	}

	buf.WriteByte(byte(len(edges)))
	for _, e := range edges {
		put3ByteInt(buf, e.index)
		buf.WriteByte(byte(e.since))
	}
	return nil
}

func writeLevels(buf *bytes.Buffer, since, deprecatedIn, removedIn int) error {
	for _, v := range []int{since, deprecatedIn, removedIn} {
		if v > MaxLevel {
			return fmt.Errorf("API level %d exceeds %d: %w", v, MaxLevel, ErrInvalidInput)
		}
	}

	deprecated := deprecatedIn > 0
	removed := removedIn > 0
	if deprecated || removed {
		since |= hasExtraByteFlag
	}
	buf.WriteByte(byte(since))
	if deprecated || removed {
		if removed {
			deprecatedIn |= hasExtraByteFlag
		}
		buf.WriteByte(byte(deprecatedIn))
		if removed {
			buf.WriteByte(byte(removedIn))
		}
	}
	return nil
}

func put3ByteInt(buf *bytes.Buffer, v int) {
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v))
}

func put2ByteInt(buf *bytes.Buffer, v int) {
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v))
}

func get3ByteInt(data []byte, offset int) int {
	return int(data[offset])<<16 | int(data[offset+1])<<8 | int(data[offset+2])
}

func get2ByteInt(data []byte, offset int) int {
	return int(data[offset])<<8 | int(data[offset+1])
}
