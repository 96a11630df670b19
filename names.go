package apidb

import "strings"

// NormalizeName maps '/' and '$' to '.', so that source-style, internal
// and inner-class spellings of a name compare equal
func NormalizeName(name string) string {
	if strings.IndexAny(name, "/$") < 0 {
		return name
	}
	b := []byte(name)
	for i, c := range b {
		b[i] = normalizeSeparator(c)
	}
	return string(b)
}

func normalizeSeparator(c byte) byte {
	if c == '/' || c == '$' {
		return '.'
	}
	return c
}

// EquivalentName reports whether two class or package names are equal
// or differ only by separators
func EquivalentName(name1, name2 string) bool {
	if len(name1) != len(name2) {
		return false
	}
	for i := 0; i < len(name1); i++ {
		if normalizeSeparator(name1[i]) != normalizeSeparator(name2[i]) {
			return false
		}
	}
	return true
}

// StartsWithEquivalentPrefix reports whether name begins with prefix,
// ignoring separator differences
func StartsWithEquivalentPrefix(name, prefix string) bool {
	return EquivalentFragmentAtOffset(name, 0, prefix)
}

// EquivalentFragmentAtOffset reports whether name contains fragment at
// offset, ignoring separator differences
func EquivalentFragmentAtOffset(name string, offset int, fragment string) bool {
	if offset < 0 || offset > len(name)-len(fragment) {
		return false
	}
	for i := 0; i < len(fragment); i++ {
		if normalizeSeparator(name[offset+i]) != normalizeSeparator(fragment[i]) {
			return false
		}
	}
	return true
}

// lastSeparator returns the index of the last '.', '/' or '$' in name, or -1
func lastSeparator(name string) int {
	return strings.LastIndexAny(name, "./$")
}

// containerOf splits a class name into its container name and whether
// that container is an outer class rather than a package
func containerOf(className string) (name string, isClass bool) {
	i := strings.LastIndexAny(className, "/$")
	if i < 0 {
		return "", false
	}
	return className[:i], className[i] == '$'
}
