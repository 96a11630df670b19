package apidb

import "context"

// VersionLookup answers API level questions for a platform
type VersionLookup interface {
	// ClassVersion returns the level a class was introduced in
	ClassVersion(className string) int

	// ClassDeprecatedIn returns the level a class was deprecated in
	ClassDeprecatedIn(className string) int

	// ClassRemovedIn returns the level a class was removed in
	ClassRemovedIn(className string) int

	// ContainsClass reports whether a class is known
	ContainsClass(className string) bool

	// MethodVersion returns the level a method became available on owner
	MethodVersion(owner, name, desc string) int

	// MethodDeprecatedIn returns the level a method was deprecated in
	MethodDeprecatedIn(owner, name, desc string) int

	// MethodRemovedIn returns the level a method was removed in
	MethodRemovedIn(owner, name, desc string) int

	// FieldVersion returns the level a field became available on owner
	FieldVersion(owner, name string) int

	// FieldDeprecatedIn returns the level a field was deprecated in
	FieldDeprecatedIn(owner, name string) int

	// FieldRemovedIn returns the level a field was removed in
	FieldRemovedIn(owner, name string) int

	// ValidCastVersion returns the level from which a cast is valid
	ValidCastVersion(sourceClass, destinationClass string) int
}

// LookupProvider loads lookups for descriptor files
type LookupProvider interface {
	// Get returns the lookup for the descriptor at path
	Get(ctx context.Context, descriptorPath string) (*Lookup, error)

	// Invalidate drops any loaded lookup for the descriptor at path
	Invalidate(descriptorPath string)
}

var (
	_ VersionLookup  = (*Lookup)(nil)
	_ LookupProvider = (*Registry)(nil)
)
