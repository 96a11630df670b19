package apidb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDescriptor(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "platform.txtar", XMLFileName)

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "Regular file", path: path},
		{name: "Empty path", path: "", wantErr: ErrInvalidInput},
		{name: "Missing", path: filepath.Join(dir, "missing.xml"), wantErr: ErrNotFound},
		{name: "Directory", path: dir, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, info, err := openDescriptor(tt.path)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				var perr *ParseError
				assert.True(t, errors.As(err, &perr))
				return
			}
			require.NoError(t, err)
			defer f.Close()
			assert.Equal(t, XMLFileName, info.Name())
			assert.Greater(t, info.Size(), int64(0))
		})
	}
}

func TestReadCacheFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "api.bin")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0600))

	data, err := readCacheFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)

	_, err = readCacheFile(filepath.Join(dir, "missing.bin"))
	assert.ErrorIs(t, err, ErrNotFound)
	var cerr *CacheError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "read", cerr.Op)
}
