package apidb

import (
	"context"
	"fmt"
)

// Warning types reported by Validate
const (
	WarnMissingSupertype   = "missing_supertype"
	WarnMultipleSuperclass = "multiple_superclasses"
	WarnLevelOverflow      = "level_overflow"
)

// ValidateFile parses and validates the descriptor at path. Parse failures
// are reported in the result rather than returned, except when the file
// cannot be opened at all.
func ValidateFile(ctx context.Context, path string, opts ...Option) (*ValidationResult, error) {
	if ctx == nil {
		return nil, &ParseError{Op: "validate", Path: path, Wrapped: fmt.Errorf("nil context: %w", ErrInvalidInput)}
	}
	if _, err := statDescriptor(path); err != nil {
		return nil, err
	}

	db, err := ParseFile(ctx, path, opts...)
	if err != nil {
		return &ValidationResult{
			Path:   path,
			Errors: []string{err.Error()},
		}, nil
	}
	return Validate(db), nil
}

// Validate checks a parsed database for inconsistencies that parsing
// accepts: levels out of order, dangling supertypes and cycles
func Validate(db *Database) *ValidationResult {
	result := &ValidationResult{
		Path:    db.path,
		Classes: db.Len(),
	}

	for _, cls := range db.order {
		checkLevels(result, cls.Name, "", cls.Since, cls.DeprecatedIn, cls.RemovedIn)
		for _, m := range cls.members {
			checkLevels(result, cls.Name, m.Name, m.Since, m.DeprecatedIn, m.RemovedIn)
		}

		active := 0
		for _, st := range cls.superClasses {
			if st.RemovedIn == 0 {
				active++
			}
		}
		if active > 1 {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Type:    WarnMultipleSuperclass,
				Message: fmt.Sprintf("%d superclasses are never removed", active),
				Class:   cls.Name,
			})
		}

		for _, st := range cls.supertypes() {
			if _, ok := db.Lookup(st.Name); !ok {
				result.Warnings = append(result.Warnings, ValidationWarning{
					Type:    WarnMissingSupertype,
					Message: fmt.Sprintf("supertype %s is not defined", st.Name),
					Class:   cls.Name,
				})
			}
			if st.Since > MaxLevel {
				result.Warnings = append(result.Warnings, ValidationWarning{
					Type:    WarnLevelOverflow,
					Message: fmt.Sprintf("supertype %s level %d exceeds %d", st.Name, st.Since, MaxLevel),
					Class:   cls.Name,
				})
			}
		}
	}

	checkCycles(result, db)
	return result
}

func checkLevels(result *ValidationResult, class, member string, since, deprecatedIn, removedIn int) {
	where := class
	if member != "" {
		where = class + "#" + member
	}
	if deprecatedIn > 0 && since > deprecatedIn {
		result.Errors = append(result.Errors,
			fmt.Sprintf("%s: introduced in %d after deprecation in %d", where, since, deprecatedIn))
	}
	if removedIn > 0 && since > removedIn {
		result.Errors = append(result.Errors,
			fmt.Sprintf("%s: introduced in %d after removal in %d", where, since, removedIn))
	}
	if since > MaxLevel || deprecatedIn > MaxLevel || removedIn > MaxLevel {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Type:    WarnLevelOverflow,
			Message: fmt.Sprintf("level exceeds %d and cannot be packed", MaxLevel),
			Class:   class,
			Member:  member,
		})
	}
}

// checkCycles reports every supertype edge that closes a cycle
func checkCycles(result *ValidationResult, db *Database) {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[*Class]int, len(db.order))

	var visit func(cls *Class)
	visit = func(cls *Class) {
		state[cls] = inProgress
		for _, st := range cls.supertypes() {
			sup, ok := db.Lookup(st.Name)
			if !ok {
				continue
			}
			switch state[sup] {
			case inProgress:
				result.Errors = append(result.Errors,
					fmt.Sprintf("%s: supertype cycle through %s", cls.Name, sup.Name))
			case unvisited:
				visit(sup)
			}
		}
		state[cls] = done
	}

	for _, cls := range db.order {
		if state[cls] == unvisited {
			visit(cls)
		}
	}
}
