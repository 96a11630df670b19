package apidb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "android/app/Activity", want: "android.app.Activity"},
		{in: "android/R$attr", want: "android.R.attr"},
		{in: "android.R.attr", want: "android.R.attr"},
		{in: "Plain", want: "Plain"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeName(got), "idempotent")
		})
	}
}

func TestEquivalentName(t *testing.T) {
	assert.True(t, EquivalentName("java/util/Map$Entry", "java.util.Map.Entry"))
	assert.True(t, EquivalentName("java/util/Map$Entry", "java/util/Map/Entry"))
	assert.True(t, EquivalentName("", ""))
	assert.False(t, EquivalentName("java/util/Map", "java/util/Maps"))
	assert.False(t, EquivalentName("java/util/Map", "java/util-Map"))
}

func TestEquivalentPrefixAndFragment(t *testing.T) {
	assert.True(t, StartsWithEquivalentPrefix("android/view/View", "android.view."))
	assert.True(t, StartsWithEquivalentPrefix("android.R$attr", "android/R/"))
	assert.False(t, StartsWithEquivalentPrefix("android", "android.view"))

	assert.True(t, EquivalentFragmentAtOffset("android/view/View", 8, "view.View"))
	assert.False(t, EquivalentFragmentAtOffset("android/view/View", 8, "view.Vie2"))
	assert.False(t, EquivalentFragmentAtOffset("android/view/View", -1, "a"))
	assert.False(t, EquivalentFragmentAtOffset("android/view/View", 16, "ew"))
}

func TestContainerOf(t *testing.T) {
	tests := []struct {
		class   string
		want    string
		isClass bool
	}{
		{class: "android/app/Activity", want: "android/app"},
		{class: "android/R$attr", want: "android/R", isClass: true},
		{class: "java/util/Map$Entry$Inner", want: "java/util/Map$Entry", isClass: true},
		{class: "Toplevel", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			got, isClass := containerOf(tt.class)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.isClass, isClass)
		})
	}
}

func TestMemberKey(t *testing.T) {
	assert.Equal(t, "array()", memberKey("array()Ljava/lang/Object;"))
	assert.Equal(t, "array()", memberKey("array()[B"))
	assert.Equal(t, "FIELD", memberKey("FIELD"))
	assert.True(t, isMethodKey("run()"))
	assert.False(t, isMethodKey("FIELD"))
	assert.True(t, isConstructor("<init>(I)"))
	assert.False(t, isConstructor("init()"))
}
