package apidb

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Lookup answers API level questions about classes and their members,
// either from a parsed Database or from a packed binary database. Both
// backends give the same answers. All level-returning methods return
// NoLevel when the API is unknown, or not deprecated or removed.
type Lookup struct {
	db     *Database
	packed *packed
	path   string
}

// NewLookup returns a Lookup backed directly by db
func NewLookup(db *Database) *Lookup {
	return &Lookup{db: db, path: db.path}
}

// OpenLookup loads the packed binary database at path
func OpenLookup(ctx context.Context, path string) (*Lookup, error) {
	_, span := tracer.Start(ctx, "apidb.OpenBinary",
		trace.WithAttributes(attribute.String("cache", path)))
	defer span.End()

	data, err := readCacheFile(path)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	l, err := newPackedLookup(data, path)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return l, nil
}

func newPackedLookup(data []byte, path string) (*Lookup, error) {
	p, err := readPacked(data)
	if err != nil {
		return nil, &CacheError{Op: "open", Path: path, Wrapped: err}
	}
	return &Lookup{packed: p, path: path}, nil
}

// Path returns the descriptor or binary file backing the lookup
func (l *Lookup) Path() string {
	return l.path
}

// Packed reports whether the lookup reads from a packed binary database
func (l *Lookup) Packed() bool {
	return l.packed != nil
}

// orNone maps the unset level 0 to NoLevel
func orNone(level int) int {
	if level == 0 {
		return NoLevel
	}
	return level
}

func (l *Lookup) classLevels(name string) (levels, bool) {
	if l.packed != nil {
		i := l.packed.findClass(name)
		if i < 0 {
			return levels{}, false
		}
		return l.packed.classLevels(i)
	}
	cls, ok := l.db.Lookup(name)
	if !ok {
		return levels{}, false
	}
	return levels{since: cls.Since, deprecatedIn: cls.DeprecatedIn, removedIn: cls.RemovedIn}, true
}

// ClassVersion returns the API level a class was introduced in
func (l *Lookup) ClassVersion(className string) int {
	level := NoLevel
	if lv, ok := l.classLevels(className); ok {
		level = orNone(lv.since)
	}
	recordLookup("class", level)
	return level
}

// ClassDeprecatedIn returns the API level a class was deprecated in
func (l *Lookup) ClassDeprecatedIn(className string) int {
	level := NoLevel
	if lv, ok := l.classLevels(className); ok {
		level = orNone(lv.deprecatedIn)
	}
	recordLookup("class_deprecated", level)
	return level
}

// ClassRemovedIn returns the API level a class was removed in
func (l *Lookup) ClassRemovedIn(className string) int {
	level := NoLevel
	if lv, ok := l.classLevels(className); ok {
		level = orNone(lv.removedIn)
	}
	recordLookup("class_removed", level)
	return level
}

// ContainsClass reports whether the class is known. Names may use '.',
// '/' or '$' as separators.
func (l *Lookup) ContainsClass(className string) bool {
	if l.packed != nil {
		return l.packed.findClass(className) >= 0
	}
	_, ok := l.db.Lookup(className)
	return ok
}

// IsRelevantOwner reports whether member lookups on owner can return
// anything, so callers can skip owners outside the platform cheaply
func (l *Lookup) IsRelevantOwner(owner string) bool {
	return l.ContainsClass(owner)
}

// IsValidJavaPackage reports whether the first packageLength bytes of
// name are a package (not an outer class) present in some API level.
// A negative packageLength denotes the default package.
func (l *Lookup) IsValidJavaPackage(name string, packageLength int) bool {
	if packageLength > len(name) {
		return false
	}
	pkg := ""
	if packageLength > 0 {
		pkg = name[:packageLength]
	}
	if l.packed != nil {
		return l.packed.findContainer(pkg, true) >= 0
	}
	c, ok := l.db.Container(pkg)
	return ok && !c.IsClass
}

// memberLevels returns the effective levels of a member as seen from owner
func (l *Lookup) memberLevels(owner, key string) (levels, bool) {
	if l.packed != nil {
		i := l.packed.findClass(owner)
		if i < 0 {
			return levels{}, false
		}
		lv, ok := l.packed.findMember(i, key)
		if !ok || lv.since == 0 {
			return levels{}, false
		}
		return lv, true
	}

	cls, ok := l.db.Lookup(owner)
	if !ok {
		return levels{}, false
	}
	var since int
	if isMethodKey(key) {
		since = l.db.methodSince(cls, key, make(resolution))
	} else {
		since = l.db.fieldSince(cls, key, make(resolution))
	}
	if since == 0 {
		return levels{}, false
	}
	return levels{
		since:        since,
		deprecatedIn: l.db.memberDeprecatedIn(cls, key),
		removedIn:    l.db.memberRemovedIn(cls, key),
	}, true
}

func methodLookupKey(name, desc string) string {
	return memberKey(name + desc)
}

// MethodVersion returns the API level a method became available in on
// owner, directly or by inheritance. desc is the JVM argument descriptor,
// e.g. "(Landroid/view/MotionEvent;)Z"; the return type is ignored.
func (l *Lookup) MethodVersion(owner, name, desc string) int {
	level := NoLevel
	if lv, ok := l.memberLevels(owner, methodLookupKey(name, desc)); ok {
		level = lv.since
	}
	recordLookup("method", level)
	return level
}

// MethodDeprecatedIn returns the API level a method was deprecated in
func (l *Lookup) MethodDeprecatedIn(owner, name, desc string) int {
	level := NoLevel
	if lv, ok := l.memberLevels(owner, methodLookupKey(name, desc)); ok {
		level = orNone(lv.deprecatedIn)
	}
	recordLookup("method_deprecated", level)
	return level
}

// MethodRemovedIn returns the API level a method stopped being available
// on owner
func (l *Lookup) MethodRemovedIn(owner, name, desc string) int {
	level := NoLevel
	if lv, ok := l.memberLevels(owner, methodLookupKey(name, desc)); ok {
		level = orNone(lv.removedIn)
	}
	recordLookup("method_removed", level)
	return level
}

// FieldVersion returns the API level a field became available in on owner
func (l *Lookup) FieldVersion(owner, name string) int {
	level := NoLevel
	if lv, ok := l.memberLevels(owner, name); ok {
		level = lv.since
	}
	recordLookup("field", level)
	return level
}

// FieldDeprecatedIn returns the API level a field was deprecated in
func (l *Lookup) FieldDeprecatedIn(owner, name string) int {
	level := NoLevel
	if lv, ok := l.memberLevels(owner, name); ok {
		level = orNone(lv.deprecatedIn)
	}
	recordLookup("field_deprecated", level)
	return level
}

// FieldRemovedIn returns the API level a field stopped being available on owner
func (l *Lookup) FieldRemovedIn(owner, name string) int {
	level := NoLevel
	if lv, ok := l.memberLevels(owner, name); ok {
		level = orNone(lv.removedIn)
	}
	recordLookup("field_removed", level)
	return level
}

// ValidCastVersion returns the API level from which sourceClass can be
// cast to destinationClass. If the destination was attached as a
// supertype later than the source class itself appeared, that later level
// is returned; otherwise the source class's own level. Unknown classes
// give NoLevel.
func (l *Lookup) ValidCastVersion(sourceClass, destinationClass string) int {
	level := l.validCastVersion(sourceClass, destinationClass)
	recordLookup("cast", level)
	return level
}

func (l *Lookup) validCastVersion(sourceClass, destinationClass string) int {
	if l.packed != nil {
		src := l.packed.findClass(sourceClass)
		if src < 0 {
			return NoLevel
		}
		dst := l.packed.findClass(destinationClass)
		if dst < 0 {
			return NoLevel
		}
		if since, ok := l.packed.lateSupertypes(src)[dst]; ok {
			return since
		}
		lv, ok := l.packed.classLevels(src)
		if !ok {
			return NoLevel
		}
		return orNone(lv.since)
	}

	src, ok := l.db.Lookup(sourceClass)
	if !ok {
		return NoLevel
	}
	dst, ok := l.db.Lookup(destinationClass)
	if !ok {
		return NoLevel
	}
	for _, st := range src.supertypes() {
		if st.Since <= src.Since {
			continue
		}
		if sup, ok := l.db.Lookup(st.Name); ok && sup == dst {
			return st.Since
		}
	}
	return orNone(src.Since)
}

// RemovedFields returns every removed field reachable from owner, sorted
// by name. ok is false when owner is unknown.
func (l *Lookup) RemovedFields(owner string) (fields []Member, ok bool) {
	return l.removedMembers(owner, false)
}

// RemovedMethods returns every removed method reachable from owner,
// sorted by key. ok is false when owner is unknown.
func (l *Lookup) RemovedMethods(owner string) (methods []Member, ok bool) {
	return l.removedMembers(owner, true)
}

func (l *Lookup) removedMembers(owner string, methods bool) ([]Member, bool) {
	if l.packed != nil {
		i := l.packed.findClass(owner)
		if i < 0 {
			return nil, false
		}
		return l.packed.removedMembers(i, methods), true
	}
	cls, ok := l.db.Lookup(owner)
	if !ok {
		return nil, false
	}
	return l.db.removedMembers(cls, methods), true
}
