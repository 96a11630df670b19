package apidb

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Descriptor element and attribute names
const (
	tagClass      = "class"
	tagMethod     = "method"
	tagField      = "field"
	tagExtends    = "extends"
	tagImplements = "implements"

	attrName       = "name"
	attrSince      = "since"
	attrDeprecated = "deprecated"
	attrRemoved    = "removed"
)

// ctxCheckInterval is how many tokens are decoded between context checks
const ctxCheckInterval = 4096

// parseState carries the single-pass parse cursor and the records built so far
type parseState struct {
	path    string
	dec     *xml.Decoder
	current *Class

	classes        map[string]*Class
	containers     map[string]*Container
	order          []*Class
	containerOrder []*Container
}

// ParseFile parses the descriptor at path into a Database
func ParseFile(ctx context.Context, path string, opts ...Option) (*Database, error) {
	if ctx == nil {
		return nil, &ParseError{Op: "parse", Path: path, Wrapped: fmt.Errorf("nil context: %w", ErrInvalidInput)}
	}
	options := applyOptions(opts)

	ctx, span := tracer.Start(ctx, "apidb.ParseFile",
		trace.WithAttributes(attribute.String("descriptor", path)))
	defer span.End()

	f, _, err := openDescriptor(path)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer f.Close()

	start := time.Now()
	db, err := parse(ctx, f, path)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	elapsed := time.Since(start)
	parseDuration.Observe(elapsed.Seconds())

	span.SetAttributes(
		attribute.Int("classes", len(db.order)),
		attribute.Int("containers", len(db.containerOrder)),
	)
	options.Logger.Debug("Parsed API descriptor",
		slog.String("path", path),
		slog.Int("classes", len(db.order)),
		slog.Int("containers", len(db.containerOrder)),
		slog.Duration("elapsed", elapsed))

	return db, nil
}

// Parse reads a descriptor from r into a Database. No Database is
// returned when the input is malformed.
func Parse(ctx context.Context, r io.Reader) (*Database, error) {
	if ctx == nil {
		return nil, &ParseError{Op: "parse", Wrapped: fmt.Errorf("nil context: %w", ErrInvalidInput)}
	}
	return parse(ctx, r, "")
}

func parse(ctx context.Context, r io.Reader, path string) (*Database, error) {
	s := &parseState{
		path:       path,
		dec:        xml.NewDecoder(r),
		classes:    make(map[string]*Class),
		containers: make(map[string]*Container),
	}

	for n := 0; ; n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &ParseError{Op: "parse", Path: path, Wrapped: err}
			}
		}

		tok, err := s.dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, s.errorf("decode", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if err := s.startElement(t); err != nil {
				return nil, err
			}
		case xml.EndElement:
			if t.Name.Local == tagClass {
				s.current = nil
			}
		}
	}

	return &Database{
		path:           path,
		classes:        s.classes,
		containers:     s.containers,
		order:          s.order,
		containerOrder: s.containerOrder,
	}, nil
}

func (s *parseState) startElement(el xml.StartElement) error {
	switch el.Name.Local {
	case tagClass:
		return s.startClass(el)
	case tagMethod, tagField, tagExtends, tagImplements:
		return s.startMember(el)
	}
	// <api>, <sdk> and any other elements carry nothing we index.
	return nil
}

func (s *parseState) startClass(el xml.StartElement) error {
	name, err := s.name(el)
	if err != nil {
		return err
	}
	since, err := s.intAttr(el, attrSince, 1)
	if err != nil {
		return err
	}
	deprecatedIn, err := s.intAttr(el, attrDeprecated, 0)
	if err != nil {
		return err
	}
	removedIn, err := s.intAttr(el, attrRemoved, 0)
	if err != nil {
		return err
	}

	cls := newClass(name, since, deprecatedIn, removedIn)
	if err := s.addClass(cls); err != nil {
		return err
	}
	s.current = cls
	return nil
}

func (s *parseState) startMember(el xml.StartElement) error {
	tag := el.Name.Local
	if s.current == nil {
		return s.errorf(tag, fmt.Errorf("<%s> outside of <class>: %w", tag, ErrInvalidInput))
	}
	cls := s.current

	name, err := s.name(el)
	if err != nil {
		return err
	}
	since, err := s.intAttr(el, attrSince, cls.Since)
	if err != nil {
		return err
	}
	deprecatedIn, err := s.intAttr(el, attrDeprecated, cls.DeprecatedIn)
	if err != nil {
		return err
	}
	removedIn, err := s.intAttr(el, attrRemoved, cls.RemovedIn)
	if err != nil {
		return err
	}

	switch tag {
	case tagMethod:
		cls.addMember(MemberMethod, name, since, deprecatedIn, removedIn)
	case tagField:
		cls.addMember(MemberField, name, since, deprecatedIn, removedIn)
	case tagExtends:
		cls.addSuperClass(name, since, removedIn)
	case tagImplements:
		cls.addInterface(name, since, removedIn)
	}
	return nil
}

// addClass registers cls under its normalized name and attaches it to
// its container, creating the container on first use
func (s *parseState) addClass(cls *Class) error {
	key := NormalizeName(cls.Name)
	if prev, ok := s.classes[key]; ok {
		return s.errorf(tagClass, fmt.Errorf("%s (already defined as %s): %w", cls.Name, prev.Name, ErrDuplicateClass))
	}
	if c, ok := s.containers[key]; ok && !c.IsClass {
		return s.errorf(tagClass, fmt.Errorf("%s: %w", cls.Name, ErrContainerConflict))
	}

	containerName, isClass := containerOf(cls.Name)
	ckey := NormalizeName(containerName)
	c, ok := s.containers[ckey]
	if !ok {
		if _, clash := s.classes[ckey]; clash && !isClass {
			return s.errorf(tagClass, fmt.Errorf("%s: %w", containerName, ErrContainerConflict))
		}
		c = &Container{Name: containerName, IsClass: isClass}
		s.containers[ckey] = c
		s.containerOrder = append(s.containerOrder, c)
	} else if c.IsClass != isClass {
		return s.errorf(tagClass, fmt.Errorf("%s: %w", containerName, ErrContainerConflict))
	}

	c.classes = append(c.classes, cls)
	s.classes[key] = cls
	s.order = append(s.order, cls)
	return nil
}

func (s *parseState) name(el xml.StartElement) (string, error) {
	for _, a := range el.Attr {
		if a.Name.Local == attrName {
			if a.Value == "" {
				break
			}
			return a.Value, nil
		}
	}
	return "", s.errorf(el.Name.Local, fmt.Errorf("missing %q attribute: %w", attrName, ErrInvalidInput))
}

// intAttr returns the named integer attribute, or def when it is absent
func (s *parseState) intAttr(el xml.StartElement, attr string, def int) (int, error) {
	for _, a := range el.Attr {
		if a.Name.Local != attr {
			continue
		}
		v, err := strconv.Atoi(a.Value)
		if err != nil {
			return 0, s.errorf(el.Name.Local, fmt.Errorf("attribute %s=%q: %w", attr, a.Value, err))
		}
		if v < 0 {
			return 0, s.errorf(el.Name.Local, fmt.Errorf("attribute %s=%d is negative: %w", attr, v, ErrInvalidInput))
		}
		return v, nil
	}
	return def, nil
}

func (s *parseState) errorf(op string, err error) error {
	line, _ := s.dec.InputPos()
	return &ParseError{Op: op, Path: s.path, Line: line, Wrapped: err}
}
