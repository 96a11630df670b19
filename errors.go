package apidb

import (
	"errors"
	"fmt"
)

// Error types for better error handling and context
var (
	// ErrNotFound indicates the requested descriptor or cache file was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates invalid input parameters or descriptor content
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateClass indicates a descriptor defines the same class twice
	ErrDuplicateClass = errors.New("duplicate class")

	// ErrContainerConflict indicates a name is used both as a package and a class
	ErrContainerConflict = errors.New("name is both a package and a class")

	// ErrCorruptCache indicates a binary cache file is truncated or has a bad header
	ErrCorruptCache = errors.New("corrupt binary cache")

	// ErrClosed indicates the registry has been closed
	ErrClosed = errors.New("registry closed")

	// ErrFormatVersion indicates a binary cache was written by another format version
	ErrFormatVersion = errors.New("binary format version mismatch")
)

// ParseError represents an error that occurred while reading a descriptor
type ParseError struct {
	Op      string // Operation that failed (e.g., "open", "decode", "class")
	Path    string // Descriptor path, if known
	Line    int    // Line in the descriptor, if known
	Wrapped error  // The underlying error
}

func (e *ParseError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("parse error: %s: %s:%d: %v", e.Op, e.Path, e.Line, e.Wrapped)
	case e.Line > 0:
		return fmt.Sprintf("parse error: %s: line %d: %v", e.Op, e.Line, e.Wrapped)
	case e.Path != "":
		return fmt.Sprintf("parse error: %s: %s: %v", e.Op, e.Path, e.Wrapped)
	}
	return fmt.Sprintf("parse error: %s: %v", e.Op, e.Wrapped)
}

func (e *ParseError) Unwrap() error {
	return e.Wrapped
}

// CacheError represents an error that occurred reading or writing a binary cache
type CacheError struct {
	Op      string // Operation that failed (e.g., "read", "write", "rename")
	Path    string // Cache file path
	Wrapped error  // The underlying error
}

func (e *CacheError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("cache error: %s: %v", e.Op, e.Wrapped)
	}
	return fmt.Sprintf("cache error: %s: %s: %v", e.Op, e.Path, e.Wrapped)
}

func (e *CacheError) Unwrap() error {
	return e.Wrapped
}
