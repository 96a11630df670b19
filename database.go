package apidb

import (
	"fmt"
	"math"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Database is the parsed, read-only index of a descriptor. It is safe for
// concurrent use since nothing mutates it after Parse returns.
type Database struct {
	path           string
	classes        map[string]*Class
	containers     map[string]*Container
	order          []*Class
	containerOrder []*Container
}

// Path returns the descriptor path the database was parsed from, if any
func (db *Database) Path() string {
	return db.path
}

// Len returns the number of classes
func (db *Database) Len() int {
	return len(db.order)
}

// Lookup returns the class whose name matches after separator
// normalization. A miss is not an error: the class is simply unknown.
func (db *Database) Lookup(name string) (*Class, bool) {
	cls, ok := db.classes[NormalizeName(name)]
	return cls, ok
}

// Container returns the package or outer class with the given name
func (db *Database) Container(name string) (*Container, bool) {
	c, ok := db.containers[NormalizeName(name)]
	return c, ok
}

// Classes returns all classes in descriptor order
func (db *Database) Classes() []*Class {
	out := make([]*Class, len(db.order))
	copy(out, db.order)
	return out
}

// Containers returns all containers in first-use order
func (db *Database) Containers() []*Container {
	out := make([]*Container, len(db.containerOrder))
	copy(out, db.containerOrder)
	return out
}

// Match returns the classes whose internal name matches a doublestar
// pattern such as "android/app/**" or "java/util/*$*", in descriptor order
func (db *Database) Match(pattern string) ([]*Class, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("pattern %q: %w", pattern, ErrInvalidInput)
	}
	var out []*Class
	for _, cls := range db.order {
		if ok, _ := doublestar.Match(pattern, cls.Name); ok {
			out = append(out, cls)
		}
	}
	return out, nil
}

// AllMethods returns the sorted keys of every method available on the
// class, including inherited ones. Constructors come only from the class
// itself. ok is false when the class is unknown.
func (db *Database) AllMethods(className string) (keys []string, ok bool) {
	cls, ok := db.Lookup(className)
	if !ok {
		return nil, false
	}
	return sortedKeys(db.allMethods(cls)), true
}

// AllFields returns the sorted names of every field available on the
// class, including inherited ones
func (db *Database) AllFields(className string) (names []string, ok bool) {
	cls, ok := db.Lookup(className)
	if !ok {
		return nil, false
	}
	return sortedKeys(db.allFields(cls)), true
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// resolution tracks the classes on the current supertype walk
type resolution map[*Class]bool

func (db *Database) supertype(st SuperType, visiting resolution) (*Class, bool) {
	sup, ok := db.classes[NormalizeName(st.Name)]
	if !ok || visiting[sup] {
		return nil, false
	}
	return sup, true
}

// methodSince returns the level at which a method became available in
// cls, directly or through a supertype, or 0 if it never did. The result
// is never lower than the level at which the supertype providing it was
// attached to cls. Constructors are not inherited.
func (db *Database) methodSince(cls *Class, key string, visiting resolution) int {
	level := declaredSince(cls, key, MemberMethod)
	if isConstructor(key) {
		return level
	}
	return db.inheritedSince(cls, key, level, visiting, db.methodSince)
}

// fieldSince is methodSince for fields
func (db *Database) fieldSince(cls *Class, key string, visiting resolution) int {
	level := declaredSince(cls, key, MemberField)
	return db.inheritedSince(cls, key, level, visiting, db.fieldSince)
}

func (db *Database) inheritedSince(cls *Class, key string, level int, visiting resolution,
	next func(*Class, string, resolution) int) int {
	visiting[cls] = true
	defer delete(visiting, cls)

	for _, st := range cls.supertypes() {
		sup, ok := db.supertype(st, visiting)
		if !ok {
			continue
		}
		if i := next(sup, key, visiting); i != 0 {
			if tmp := max(st.Since, i); level == 0 || tmp < level {
				level = tmp
			}
		}
	}
	return level
}

func declaredSince(cls *Class, key string, kind MemberKind) int {
	if i, ok := cls.memberIndex[key]; ok && cls.members[i].Kind == kind {
		return cls.members[i].Since
	}
	return 0
}

// memberDeprecatedIn returns when a member was deprecated, combining its
// own deprecation with that of the class, or 0 if it is not deprecated
func (db *Database) memberDeprecatedIn(cls *Class, key string) int {
	level := 0
	if i, ok := cls.memberIndex[key]; ok {
		level = cls.members[i].DeprecatedIn
	}
	switch {
	case level == 0:
		return cls.DeprecatedIn
	case cls.DeprecatedIn == 0:
		return level
	}
	return min(level, cls.DeprecatedIn)
}

// memberRemovedIn returns when a member stopped being reachable from
// cls, or 0 if it is still available
func (db *Database) memberRemovedIn(cls *Class, key string) int {
	removedIn := db.memberRemovedInInternal(cls, key, make(resolution))
	switch {
	case removedIn == math.MaxInt:
		return cls.RemovedIn
	case removedIn > 0:
		return removedIn
	}
	return 0
}

// memberRemovedInInternal returns math.MaxInt when the member is still
// present, -1 when it never existed in cls or its supertypes, and the
// removal level otherwise
func (db *Database) memberRemovedInInternal(cls *Class, key string, visiting resolution) int {
	level := math.MaxInt
	i, declared := cls.memberIndex[key]
	if declared && cls.members[i].RemovedIn > 0 {
		level = cls.members[i].RemovedIn
	}
	if level == math.MaxInt {
		if declared {
			if cls.RemovedIn == 0 {
				return math.MaxInt
			}
			return cls.RemovedIn
		}
		level = -1
	}

	visiting[cls] = true
	defer delete(visiting, cls)

	for _, st := range cls.supertypes() {
		edgeRemovedIn := math.MaxInt
		if st.RemovedIn > 0 {
			edgeRemovedIn = st.RemovedIn
		}
		if edgeRemovedIn <= level {
			continue
		}
		sup, ok := db.supertype(st, visiting)
		if !ok {
			continue
		}
		if r := db.memberRemovedInInternal(sup, key, visiting); r != -1 {
			if tmp := min(edgeRemovedIn, r); tmp > level {
				level = tmp
			}
		}
	}
	return level
}

// allMethods returns the keys of every method reachable from cls.
// Constructors are only taken from cls itself.
func (db *Database) allMethods(cls *Class) map[string]bool {
	set := make(map[string]bool)
	db.addAllMethods(cls, set, true, make(resolution))
	return set
}

func (db *Database) addAllMethods(cls *Class, set map[string]bool, includeConstructors bool, visiting resolution) {
	for _, m := range cls.members {
		if m.Kind != MemberMethod || (!includeConstructors && isConstructor(m.Name)) {
			continue
		}
		set[m.Name] = true
	}

	visiting[cls] = true
	defer delete(visiting, cls)
	for _, st := range cls.supertypes() {
		if sup, ok := db.supertype(st, visiting); ok {
			db.addAllMethods(sup, set, false, visiting)
		}
	}
}

// allFields returns the names of every field reachable from cls
func (db *Database) allFields(cls *Class) map[string]bool {
	set := make(map[string]bool)
	db.addAllFields(cls, set, make(resolution))
	return set
}

func (db *Database) addAllFields(cls *Class, set map[string]bool, visiting resolution) {
	for _, m := range cls.members {
		if m.Kind == MemberField {
			set[m.Name] = true
		}
	}

	visiting[cls] = true
	defer delete(visiting, cls)
	for _, st := range cls.supertypes() {
		if sup, ok := db.supertype(st, visiting); ok {
			db.addAllFields(sup, set, visiting)
		}
	}
}

// resolveMember computes the effective levels of a member as seen from cls
func (db *Database) resolveMember(cls *Class, key string) Member {
	kind := MemberField
	var since int
	if isMethodKey(key) {
		kind = MemberMethod
		since = db.methodSince(cls, key, make(resolution))
	} else {
		since = db.fieldSince(cls, key, make(resolution))
	}
	return Member{
		Name:         key,
		Kind:         kind,
		Since:        since,
		DeprecatedIn: db.memberDeprecatedIn(cls, key),
		RemovedIn:    db.memberRemovedIn(cls, key),
	}
}

// removedMembers returns every removed method (or field) reachable from cls
func (db *Database) removedMembers(cls *Class, methods bool) []Member {
	var keys map[string]bool
	if methods {
		keys = db.allMethods(cls)
	} else {
		keys = db.allFields(cls)
	}

	out := make([]Member, 0)
	for key := range keys {
		if db.memberRemovedIn(cls, key) == 0 {
			continue
		}
		out = append(out, db.resolveMember(cls, key))
	}
	sortMembers(out)
	return out
}

// sortMembers orders members the way the packed format stores them
func sortMembers(members []Member) {
	sort.Slice(members, func(i, j int) bool {
		return members[i].Name < members[j].Name
	})
}
