package apidb

import (
	"fmt"
	"io"
	"os"
)

// statDescriptor checks that path names a regular descriptor file
func statDescriptor(path string) (os.FileInfo, error) {
	if path == "" {
		return nil, &ParseError{Op: "open", Wrapped: fmt.Errorf("empty descriptor path: %w", ErrInvalidInput)}
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ParseError{Op: "open", Path: path, Wrapped: ErrNotFound}
		}
		return nil, &ParseError{Op: "open", Path: path, Wrapped: err}
	}
	if info.IsDir() {
		return nil, &ParseError{Op: "open", Path: path, Wrapped: fmt.Errorf("is a directory: %w", ErrInvalidInput)}
	}
	return info, nil
}

// openDescriptor opens a descriptor file for streaming
func openDescriptor(path string) (*os.File, os.FileInfo, error) {
	info, err := statDescriptor(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &ParseError{Op: "open", Path: path, Wrapped: err}
	}
	return f, info, nil
}

// readCacheFile reads a whole binary cache file into memory
func readCacheFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &CacheError{Op: "read", Path: path, Wrapped: ErrNotFound}
		}
		return nil, &CacheError{Op: "read", Path: path, Wrapped: err}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &CacheError{Op: "read", Path: path, Wrapped: err}
	}
	return data, nil
}
