package apidb

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

// loadArchive reads a txtar fixture from testdata
func loadArchive(t *testing.T, name string) *txtar.Archive {
	t.Helper()

	ar, err := txtar.ParseFile(filepath.Join("testdata", name))
	require.NoError(t, err, "load fixture %s", name)
	return ar
}

// archiveFile returns the contents of one file in a fixture
func archiveFile(t *testing.T, archive, file string) []byte {
	t.Helper()

	for _, f := range loadArchive(t, archive).Files {
		if f.Name == file {
			return f.Data
		}
	}
	t.Fatalf("fixture %s has no file %s", archive, file)
	return nil
}

// writeFixture extracts one file of a fixture into dir and returns its path
func writeFixture(t *testing.T, dir, archive, file string) string {
	t.Helper()

	path := filepath.Join(dir, file)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, archiveFile(t, archive, file), 0600))
	return path
}

// parseFixture parses one descriptor of a fixture
func parseFixture(t *testing.T, archive, file string) *Database {
	t.Helper()

	db, err := Parse(context.Background(), bytes.NewReader(archiveFile(t, archive, file)))
	require.NoError(t, err, "parse %s/%s", archive, file)
	return db
}

// platformDB parses the shared platform fixture
func platformDB(t *testing.T) *Database {
	t.Helper()
	return parseFixture(t, "platform.txtar", XMLFileName)
}

// packedLookup round-trips db through the packed format
func packedLookup(t *testing.T, db *Database) *Lookup {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, WriteBinary(&buf, db))
	l, err := newPackedLookup(buf.Bytes(), "")
	require.NoError(t, err)
	return l
}
