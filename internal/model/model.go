// Package model defines the reflection symbol model shared by the extractor,
// the header database and the code emitter.
package model

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/phobologic/scg/internal/tags"
)

// DefaultArenaSize is the arena capacity used when a class carries no
// arenaSize tag.
const DefaultArenaSize = "16"

// Symbol is the common part of every reflectable declaration.
type Symbol struct {
	// ID is a stable identifier derived from the declaration's kind and scope.
	ID   string
	Tags tags.Tags
}

// ArenaSize returns the arenaSize tag or DefaultArenaSize.
func (s *Symbol) ArenaSize() string {
	return s.Tags.Get("arenaSize", DefaultArenaSize)
}

// TagInt returns a tag as an int, or def when absent or malformed.
func (s *Symbol) TagInt(name string, def int) int {
	return s.Tags.Int(name, def)
}

// HasTag reports whether the symbol's annotation carries name.
func (s *Symbol) HasTag(name string) bool {
	return s.Tags.Has(name)
}

// Variable is a data member.
type Variable struct {
	Symbol
	Name string
	Type string
}

// Argument is a parameter of a constructor or method.
type Argument struct {
	Name string
	Type string
}

// Arguments is an ordered parameter list.
type Arguments []Argument

// String renders "T a, U b".
func (a Arguments) String() string {
	parts := make([]string, len(a))
	for i, arg := range a {
		parts[i] = strings.TrimSpace(arg.Type + " " + arg.Name)
	}
	return strings.Join(parts, ", ")
}

// Types renders "T, U".
func (a Arguments) Types() string {
	parts := make([]string, len(a))
	for i, arg := range a {
		parts[i] = arg.Type
	}
	return strings.Join(parts, ", ")
}

// Names renders "a, b".
func (a Arguments) Names() string {
	parts := make([]string, len(a))
	for i, arg := range a {
		parts[i] = arg.Name
	}
	return strings.Join(parts, ", ")
}

// Constructor is a constructor of a class.
type Constructor struct {
	Symbol
	Name      string
	Arguments Arguments
}

// ArgsString renders the parameter list with types and names.
func (c *Constructor) ArgsString() string { return c.Arguments.String() }

// ArgsTypes renders the parameter types only.
func (c *Constructor) ArgsTypes() string { return c.Arguments.Types() }

// ArgsNames renders the parameter names only.
func (c *Constructor) ArgsNames() string { return c.Arguments.Names() }

// Method is a member function.
type Method struct {
	Symbol
	Name       string
	ReturnType string
	Arguments  Arguments
}

// ArgsString renders the parameter list with types and names.
func (m *Method) ArgsString() string { return m.Arguments.String() }

// Class is a class or struct definition.
type Class struct {
	Symbol
	Name      string
	Namespace []string
	// Bases are the direct base names as spelled in the base clause.
	Bases []string
	// DeepBases is the transitive closure of base names, filled by the
	// resolver after the class's wave has been indexed.
	DeepBases    map[string]struct{}
	Abstract     bool
	Methods      []Method
	Constructors []Constructor
	Variables    []Variable
}

// FQN returns the namespace path joined with the class name.
func (c *Class) FQN() string {
	if len(c.Namespace) == 0 {
		return c.Name
	}
	return strings.Join(c.Namespace, "::") + "::" + c.Name
}

// DerivesFrom reports whether fqn is among the class's deep bases.
func (c *Class) DerivesFrom(fqn string) bool {
	_, ok := c.DeepBases[fqn]
	return ok
}

// Reflectable reports whether the class is root itself or derives from it.
func (c *Class) Reflectable(root string) bool {
	return c.FQN() == root || c.DerivesFrom(root)
}

// SortedDeepBases returns the deep bases in lexical order.
func (c *Class) SortedDeepBases() []string {
	out := make([]string, 0, len(c.DeepBases))
	for b := range c.DeepBases {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// HeaderFile is one tracked header of a target.
type HeaderFile struct {
	FullPath      string
	RelativePath  string
	LastParsed    time.Time
	LastGenerated time.Time
	Classes       []*Class
	Includes      []string
}

// NewHeaderFile returns a never-parsed header.
func NewHeaderFile(fullPath, relativePath string) *HeaderFile {
	return &HeaderFile{FullPath: fullPath, RelativePath: relativePath}
}

// IncludePath returns the absolute path with forward slashes, suitable for
// an #include directive.
func (f *HeaderFile) IncludePath() string {
	return filepath.ToSlash(f.FullPath)
}

// BaseName returns the file name without its extension.
func (f *HeaderFile) BaseName() string {
	name := filepath.Base(f.RelativePath)
	if name == "." || name == "" {
		name = filepath.Base(f.FullPath)
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// LastModified returns the file's modification time on disk.
func (f *HeaderFile) LastModified() (time.Time, error) {
	info, err := os.Stat(f.FullPath)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Exists reports whether the file is still on disk.
func (f *HeaderFile) Exists() bool {
	_, err := os.Stat(f.FullPath)
	return err == nil
}

// Reflectable returns the classes that are root or derive from it.
func (f *HeaderFile) Reflectable(root string) []*Class {
	var out []*Class
	for _, c := range f.Classes {
		if c.Reflectable(root) {
			out = append(out, c)
		}
	}
	return out
}
