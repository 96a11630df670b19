package apidb

// MemberKind distinguishes methods from fields within a class record
type MemberKind string

const (
	// MemberMethod is a method or constructor, keyed by name and argument descriptor
	MemberMethod MemberKind = "method"
	// MemberField is a field, keyed by its name
	MemberField MemberKind = "field"
)

// Member is one method or field declared by a class
type Member struct {
	Name         string     `json:"name"`
	Kind         MemberKind `json:"kind"`
	Since        int        `json:"since"`
	DeprecatedIn int        `json:"deprecated_in,omitempty"`
	RemovedIn    int        `json:"removed_in,omitempty"`
}

// SuperType is a superclass or implemented interface edge of a class
type SuperType struct {
	Name      string `json:"name"`
	Since     int    `json:"since"`
	RemovedIn int    `json:"removed_in,omitempty"`
}

// Class represents one API class or interface and its declared members.
// A Class is immutable once the descriptor that produced it has been parsed.
type Class struct {
	// Name is the internal name, e.g. "android/app/Activity" or "android/R$attr"
	Name         string `json:"name"`
	Since        int    `json:"since"`
	DeprecatedIn int    `json:"deprecated_in,omitempty"`
	RemovedIn    int    `json:"removed_in,omitempty"`

	members      []Member
	memberIndex  map[string]int
	superClasses []SuperType
	interfaces   []SuperType
}

func newClass(name string, since, deprecatedIn, removedIn int) *Class {
	return &Class{
		Name:         name,
		Since:        since,
		DeprecatedIn: deprecatedIn,
		RemovedIn:    removedIn,
		memberIndex:  make(map[string]int),
	}
}

// SimpleName returns the name after the last '/', keeping any '$' segments
func (c *Class) SimpleName() string {
	for i := len(c.Name) - 1; i >= 0; i-- {
		if c.Name[i] == '/' {
			return c.Name[i+1:]
		}
	}
	return c.Name
}

// Members returns the declared methods and fields in descriptor order
func (c *Class) Members() []Member {
	out := make([]Member, len(c.members))
	copy(out, c.members)
	return out
}

// SuperClasses returns the superclass edges in descriptor order
func (c *Class) SuperClasses() []SuperType {
	out := make([]SuperType, len(c.superClasses))
	copy(out, c.superClasses)
	return out
}

// Interfaces returns the implemented interface edges in descriptor order
func (c *Class) Interfaces() []SuperType {
	out := make([]SuperType, len(c.interfaces))
	copy(out, c.interfaces)
	return out
}

// Member returns a declared member by signature. Method signatures may
// carry a return type; only the part up to ')' is significant.
func (c *Class) Member(signature string) (Member, bool) {
	i, ok := c.memberIndex[memberKey(signature)]
	if !ok {
		return Member{}, false
	}
	return c.members[i], true
}

// supertypes returns superclasses followed by interfaces
func (c *Class) supertypes() []SuperType {
	all := make([]SuperType, 0, len(c.superClasses)+len(c.interfaces))
	all = append(all, c.superClasses...)
	return append(all, c.interfaces...)
}

func (c *Class) addMember(kind MemberKind, name string, since, deprecatedIn, removedIn int) {
	key := name
	if kind == MemberMethod {
		key = memberKey(name)
	}
	m := Member{
		Name:         key,
		Kind:         kind,
		Since:        since,
		DeprecatedIn: deprecatedIn,
		RemovedIn:    removedIn,
	}
	// Covariant overrides differ only by return type and collapse into one entry.
	if i, ok := c.memberIndex[key]; ok {
		c.members[i] = m
		return
	}
	c.memberIndex[key] = len(c.members)
	c.members = append(c.members, m)
}

func (c *Class) addSuperClass(name string, since, removedIn int) bool {
	return addSuperType(&c.superClasses, name, since, removedIn)
}

func (c *Class) addInterface(name string, since, removedIn int) bool {
	return addSuperType(&c.interfaces, name, since, removedIn)
}

func addSuperType(list *[]SuperType, name string, since, removedIn int) bool {
	for _, st := range *list {
		if st.Name == name {
			return false
		}
	}
	*list = append(*list, SuperType{Name: name, Since: since, RemovedIn: removedIn})
	return true
}

// Container is a package or an outer class owning other classes
type Container struct {
	Name    string `json:"name"`
	IsClass bool   `json:"is_class"`

	classes []*Class
}

// Classes returns the owned classes in descriptor order
func (c *Container) Classes() []*Class {
	out := make([]*Class, len(c.classes))
	copy(out, c.classes)
	return out
}

// ValidationWarning represents a non-fatal issue found in a descriptor
type ValidationWarning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Class   string `json:"class,omitempty"`
	Member  string `json:"member,omitempty"`
}

// ValidationResult represents the result of descriptor validation
type ValidationResult struct {
	Path     string              `json:"path,omitempty"`
	Classes  int                 `json:"classes"`
	Errors   []string            `json:"errors,omitempty"`
	Warnings []ValidationWarning `json:"warnings,omitempty"`
}

// Valid reports whether validation found no errors
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}
