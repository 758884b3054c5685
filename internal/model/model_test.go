package model

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/phobologic/scg/internal/tags"
)

func TestClassFQN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ns   []string
		name string
		want string
	}{
		{nil, "Foo", "Foo"},
		{[]string{"e2"}, "Object", "e2::Object"},
		{[]string{"a", "b"}, "C", "a::b::C"},
	}
	for _, tt := range tests {
		c := &Class{Name: tt.name, Namespace: tt.ns}
		if got := c.FQN(); got != tt.want {
			t.Errorf("FQN(%v, %q) = %q, want %q", tt.ns, tt.name, got, tt.want)
		}
	}
}

func TestClassReflectable(t *testing.T) {
	t.Parallel()

	root := &Class{Name: "Object", Namespace: []string{"e2"}}
	derived := &Class{Name: "A", DeepBases: map[string]struct{}{"e2::Object": {}, "Base": {}}}
	plain := &Class{Name: "P", DeepBases: map[string]struct{}{"Base": {}}}

	if !root.Reflectable("e2::Object") {
		t.Error("root itself should be reflectable")
	}
	if !derived.Reflectable("e2::Object") {
		t.Error("derived class should be reflectable")
	}
	if plain.Reflectable("e2::Object") {
		t.Error("unrelated class should not be reflectable")
	}
	if got := derived.SortedDeepBases(); !reflect.DeepEqual(got, []string{"Base", "e2::Object"}) {
		t.Errorf("SortedDeepBases = %v", got)
	}

	f := &HeaderFile{Classes: []*Class{root, plain, derived}}
	if got := f.Reflectable("e2::Object"); len(got) != 2 || got[0] != root || got[1] != derived {
		t.Errorf("HeaderFile.Reflectable = %v", got)
	}
}

func TestArguments(t *testing.T) {
	t.Parallel()

	args := Arguments{{Name: "a", Type: "int"}, {Name: "b", Type: "const Foo&"}}
	c := Constructor{Arguments: args}
	if got := c.ArgsString(); got != "int a, const Foo& b" {
		t.Errorf("ArgsString = %q", got)
	}
	if got := c.ArgsTypes(); got != "int, const Foo&" {
		t.Errorf("ArgsTypes = %q", got)
	}
	if got := c.ArgsNames(); got != "a, b" {
		t.Errorf("ArgsNames = %q", got)
	}
	if got := (Arguments{{Type: "int"}}).String(); got != "int" {
		t.Errorf("unnamed String = %q", got)
	}
	if got := (Arguments{}).String(); got != "" {
		t.Errorf("empty String = %q", got)
	}
}

func TestSymbolArenaSize(t *testing.T) {
	t.Parallel()

	s := Symbol{Tags: tags.Parse("@tags(arena)")}
	if got := s.ArenaSize(); got != DefaultArenaSize {
		t.Errorf("default ArenaSize = %q", got)
	}
	s.Tags = tags.Parse("@tags(arena, arenaSize=64)")
	if got := s.ArenaSize(); got != "64" {
		t.Errorf("ArenaSize = %q", got)
	}
	if got := s.TagInt("arenaSize", 0); got != 64 {
		t.Errorf("TagInt = %d", got)
	}
}

func TestHeaderFilePaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	full := filepath.Join(dir, "sub", "Thing.hpp")
	f := NewHeaderFile(full, filepath.Join("sub", "Thing.hpp"))

	if got := f.BaseName(); got != "Thing" {
		t.Errorf("BaseName = %q", got)
	}
	if got := f.IncludePath(); got != filepath.ToSlash(full) {
		t.Errorf("IncludePath = %q", got)
	}
	if f.Exists() {
		t.Error("file should not exist yet")
	}
	if _, err := f.LastModified(); err == nil {
		t.Error("LastModified should fail for a missing file")
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("class Thing {};\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !f.Exists() {
		t.Error("file should exist")
	}
	if mt, err := f.LastModified(); err != nil || mt.IsZero() {
		t.Errorf("LastModified = %v, %v", mt, err)
	}
}
