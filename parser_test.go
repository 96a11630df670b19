package apidb

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "platform.txtar", XMLFileName)

	db, err := ParseFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, db.Path())
	assert.Equal(t, 20, db.Len())

	cls, ok := db.Lookup("android/app/Activity")
	require.True(t, ok)
	assert.Equal(t, "android/app/Activity", cls.Name)
	assert.Equal(t, 1, cls.Since)
	assert.Equal(t, "Activity", cls.SimpleName())
}

func TestParseFileErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "Empty path", path: "", wantErr: ErrInvalidInput},
		{name: "Missing file", path: filepath.Join(dir, "nope.xml"), wantErr: ErrNotFound},
		{name: "Directory", path: dir, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := ParseFile(context.Background(), tt.path)
			require.Error(t, err)
			assert.Nil(t, db)
			assert.ErrorIs(t, err, tt.wantErr)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "open", perr.Op)
		})
	}
}

func TestParseAttributeDefaults(t *testing.T) {
	db := platformDB(t)

	tests := []struct {
		name         string
		class        string
		member       string
		since        int
		deprecatedIn int
		removedIn    int
	}{
		{
			name:   "Method inherits class since",
			class:  "android/os/StrictMode",
			member: "enableDefaults()V",
			since:  9,
		},
		{
			name:   "Method under since 1 class",
			class:  "android/view/View",
			member: "onTouchEvent(Landroid/view/MotionEvent;)Z",
			since:  1,
		},
		{
			name:         "Explicit member deprecation",
			class:        "android/view/View",
			member:       "setDrawingCacheEnabled(Z)V",
			since:        1,
			deprecatedIn: 28,
		},
		{
			name:         "Member inherits class deprecation",
			class:        "android/app/Fragment",
			member:       "onAttach(Landroid/content/Context;)V",
			since:        23,
			deprecatedIn: 28,
		},
		{
			name:      "Member inherits class removal",
			class:     "android/test/Legacy",
			member:    "run()V",
			since:     1,
			removedIn: 24,
		},
		{
			name:         "Field with all levels",
			class:        "android/view/View",
			member:       "LEGACY_FLAG",
			since:        2,
			deprecatedIn: 10,
			removedIn:    16,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls, ok := db.Lookup(tt.class)
			require.True(t, ok)

			m, ok := cls.Member(tt.member)
			require.True(t, ok, "member %s", tt.member)
			assert.Equal(t, tt.since, m.Since)
			assert.Equal(t, tt.deprecatedIn, m.DeprecatedIn)
			assert.Equal(t, tt.removedIn, m.RemovedIn)
		})
	}
}

func TestParseClassDefaults(t *testing.T) {
	db, err := Parse(context.Background(), strings.NewReader(`<api><class name="a/B"/></api>`))
	require.NoError(t, err)

	cls, ok := db.Lookup("a/B")
	require.True(t, ok)
	assert.Equal(t, 1, cls.Since)
	assert.Zero(t, cls.DeprecatedIn)
	assert.Zero(t, cls.RemovedIn)
	assert.Empty(t, cls.Members())
}

func TestParseMemberKeys(t *testing.T) {
	db := platformDB(t)

	cls, ok := db.Lookup("java/util/Map")
	require.True(t, ok)

	// Return types are not part of the key.
	for _, sig := range []string{
		"getOrDefault(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;",
		"getOrDefault(Ljava/lang/Object;Ljava/lang/Object;)",
		"getOrDefault(Ljava/lang/Object;Ljava/lang/Object;)V",
	} {
		m, ok := cls.Member(sig)
		require.True(t, ok, sig)
		assert.Equal(t, 24, m.Since)
		assert.Equal(t, MemberMethod, m.Kind)
	}

	_, ok = cls.Member("getOrDefault(Ljava/lang/Object;)")
	assert.False(t, ok)
}

func TestParseSupertypes(t *testing.T) {
	db := platformDB(t)

	cls, ok := db.Lookup("android/view/animation/AccelerateDecelerateInterpolator")
	require.True(t, ok)

	assert.Equal(t, []SuperType{
		{Name: "java/lang/Object", Since: 1, RemovedIn: 22},
		{Name: "android/view/animation/BaseInterpolator", Since: 22},
	}, cls.SuperClasses())
	assert.Equal(t, []SuperType{
		{Name: "android/view/animation/Interpolator", Since: 1},
	}, cls.Interfaces())
}

func TestParseNormalizedLookup(t *testing.T) {
	db := platformDB(t)

	tests := []struct {
		name   string
		lookup string
		want   string
	}{
		{name: "Internal name", lookup: "android/view/View", want: "android/view/View"},
		{name: "Source name", lookup: "android.view.View", want: "android/view/View"},
		{name: "Mixed separators", lookup: "android/view.View", want: "android/view/View"},
		{name: "Inner class internal", lookup: "java/util/Map$Entry", want: "java/util/Map$Entry"},
		{name: "Inner class source", lookup: "java.util.Map.Entry", want: "java/util/Map$Entry"},
		{name: "Inner class slash", lookup: "java/util/Map/Entry", want: "java/util/Map$Entry"},
		{name: "Resource class", lookup: "android.R.attr", want: "android/R$attr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls, ok := db.Lookup(tt.lookup)
			require.True(t, ok)
			assert.Equal(t, tt.want, cls.Name)
		})
	}

	for _, miss := range []string{"android/view/Vie", "android/view/View2", "Android/view/View", "", "android.view"} {
		_, ok := db.Lookup(miss)
		assert.False(t, ok, "lookup %q", miss)
	}
}

func TestParseContainers(t *testing.T) {
	db := platformDB(t)

	tests := []struct {
		name    string
		isClass bool
		classes []string
	}{
		{name: "java/lang", classes: []string{"java/lang/Object", "java/lang/Comparable", "java/lang/String"}},
		{name: "java/util", classes: []string{"java/util/Map"}},
		{name: "java/util/Map", isClass: true, classes: []string{"java/util/Map$Entry"}},
		{name: "android/R", isClass: true, classes: []string{"android/R$attr"}},
		{name: "android", classes: []string{"android/R"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := db.Container(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.isClass, c.IsClass)

			var names []string
			for _, cls := range c.Classes() {
				names = append(names, cls.Name)
			}
			assert.Equal(t, tt.classes, names)
		})
	}

	_, ok := db.Container("javax/swing")
	assert.False(t, ok)
}

func TestParseDeterministicContainers(t *testing.T) {
	data := archiveFile(t, "platform.txtar", XMLFileName)

	first, err := Parse(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	second, err := Parse(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)

	a, b := first.Containers(), second.Containers()
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Name, b[i].Name)
		assert.Equal(t, a[i].IsClass, b[i].IsClass)
		assert.Len(t, b[i].Classes(), len(a[i].Classes()))
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		file     string
		wantErr  error
		wantLine bool
	}{
		{file: "duplicate.xml", wantErr: ErrDuplicateClass, wantLine: true},
		{file: "duplicate_normalized.xml", wantErr: ErrDuplicateClass, wantLine: true},
		{file: "package_then_class.xml", wantErr: ErrContainerConflict, wantLine: true},
		{file: "class_then_package.xml", wantErr: ErrContainerConflict, wantLine: true},
		{file: "inner_then_package.xml", wantErr: ErrContainerConflict, wantLine: true},
		{file: "negative_removed.xml", wantErr: ErrInvalidInput, wantLine: true},
		{file: "member_outside_class.xml", wantErr: ErrInvalidInput, wantLine: true},
		{file: "missing_name.xml", wantErr: ErrInvalidInput, wantLine: true},
		{file: "bad_since.xml", wantLine: true},
		{file: "truncated.xml"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			data := archiveFile(t, "invalid.txtar", tt.file)
			db, err := Parse(context.Background(), bytes.NewReader(data))
			require.Error(t, err)
			assert.Nil(t, db)

			var perr *ParseError
			require.True(t, errors.As(err, &perr), "got %T", err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantLine {
				assert.Greater(t, perr.Line, 0)
			}
		})
	}
}

func TestParseCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Parse(ctx, bytes.NewReader(archiveFile(t, "platform.txtar", XMLFileName)))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseNilContext(t *testing.T) {
	path := writeFixture(t, t.TempDir(), "platform.txtar", XMLFileName)

	//nolint:staticcheck // nil context is the input under test
	db, err := ParseFile(nil, path)
	assert.Nil(t, db)
	assert.ErrorIs(t, err, ErrInvalidInput)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, path, perr.Path)

	//nolint:staticcheck // nil context is the input under test
	_, err = Parse(nil, bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseIgnoresUnknownElements(t *testing.T) {
	src := `<api version="3">
	<sdk id="33"/>
	<class name="a/B" since="4">
		<annotation name="x"/>
		<method name="run()V"/>
	</class>
</api>`

	db, err := Parse(context.Background(), strings.NewReader(src))
	require.NoError(t, err)

	cls, ok := db.Lookup("a.B")
	require.True(t, ok)
	m, ok := cls.Member("run()V")
	require.True(t, ok)
	assert.Equal(t, 4, m.Since)
}
