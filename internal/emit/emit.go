// Package emit renders generated reflection sources from resolved class
// metadata and writes them under a target's cache directory.
package emit

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/phobologic/scg/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("scg").ParseFS(templateFS, "templates/*.tmpl"))

// Types names the root classes that drive generation.
type Types struct {
	// Root is the class every reflectable type derives from.
	Root string
	// Managed is the root of reference-counted types, which get a Ptr alias
	// and deferred destruction.
	Managed string
}

// DefaultTypes returns the engine's root types.
func DefaultTypes() Types {
	return Types{Root: "e2::Object", Managed: "e2::ManagedObject"}
}

// ConstructorView is a constructor as the templates see it.
type ConstructorView struct {
	Args     string
	ArgNames string
}

// ClassView is a reflectable class as the templates see it.
type ClassView struct {
	Index          int
	Name           string
	FQN            string
	Namespace      []string
	Abstract       bool
	Arena          bool
	ArenaSize      string
	Dynamic        bool
	Managed        bool
	ManagedDestroy bool
	Constructors   []ConstructorView
	Bases          []string
	AllBases       []string
}

// HeaderData feeds the generated header template.
type HeaderData struct {
	Source    string
	APIDefine string
	Classes   []ClassView
}

// SourceData feeds the generated source template.
type SourceData struct {
	Source      string
	IncludePath string
	Classes     []ClassView
}

// InitFile is one entry of the init listing.
type InitFile struct {
	IncludePath string
	Classes     []string
}

// InitData feeds the init listing template.
type InitData struct {
	Files []InitFile
}

// Views returns the reflectable classes of f in declaration order.
func Views(f *model.HeaderFile, types Types) []ClassView {
	var out []ClassView
	for _, c := range f.Reflectable(types.Root) {
		v := ClassView{
			Index:          len(out),
			Name:           c.Name,
			FQN:            c.FQN(),
			Namespace:      c.Namespace,
			Abstract:       c.Abstract,
			Arena:          c.HasTag("arena"),
			ArenaSize:      c.ArenaSize(),
			Dynamic:        c.HasTag("dynamic"),
			Managed:        c.FQN() == types.Managed || c.DerivesFrom(types.Managed),
			ManagedDestroy: c.DerivesFrom(types.Managed),
			Bases:          c.Bases,
			AllBases:       c.SortedDeepBases(),
		}
		for i := range c.Constructors {
			ctor := &c.Constructors[i]
			v.Constructors = append(v.Constructors, ConstructorView{Args: ctor.ArgsString(), ArgNames: ctor.ArgsNames()})
		}
		out = append(out, v)
	}
	return out
}

// NewHeaderData builds the header template input for f.
func NewHeaderData(f *model.HeaderFile, types Types, apiDefine string) HeaderData {
	return HeaderData{Source: filepath.ToSlash(f.RelativePath), APIDefine: apiDefine, Classes: Views(f, types)}
}

// NewSourceData builds the source template input for f.
func NewSourceData(f *model.HeaderFile, types Types) SourceData {
	return SourceData{Source: filepath.ToSlash(f.RelativePath), IncludePath: f.IncludePath(), Classes: Views(f, types)}
}

// NewInitData lists the reflectable classes of every file that has
// generated sources, in file order.
func NewInitData(files []*model.HeaderFile, generated func(*model.HeaderFile) bool, types Types) InitData {
	var data InitData
	for _, f := range files {
		if !generated(f) {
			continue
		}
		entry := InitFile{IncludePath: f.IncludePath()}
		for _, c := range f.Reflectable(types.Root) {
			entry.Classes = append(entry.Classes, c.FQN())
		}
		if len(entry.Classes) > 0 {
			data.Files = append(data.Files, entry)
		}
	}
	return data
}

// RenderHeader renders the generated header.
func RenderHeader(data HeaderData) (string, error) {
	return render("inc.hpp.tmpl", data)
}

// RenderSource renders the generated source.
func RenderSource(data SourceData) (string, error) {
	return render("src.cpp.tmpl", data)
}

// RenderInit renders the init listing.
func RenderInit(data InitData) (string, error) {
	return render("init.inl.tmpl", data)
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

// Paths are the companion files of one header.
type Paths struct {
	Header string
	Source string
}

// PathsFor returns where f's companion files live under cacheDir.
func PathsFor(cacheDir string, f *model.HeaderFile) Paths {
	base := f.BaseName()
	return Paths{
		Header: filepath.Join(cacheDir, "include", base+".generated.hpp"),
		Source: filepath.Join(cacheDir, "src", base+".generated.cpp"),
	}
}

// InitPath returns the init listing path under cacheDir.
func InitPath(cacheDir string) string {
	return filepath.Join(cacheDir, "init", "init.inl")
}

// WriteIfChanged writes text to path unless the file already holds exactly
// text. It reports whether a write happened.
func WriteIfChanged(path, text string) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && string(existing) == text {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}

// EnsureStub creates an empty file at path if nothing exists there, so
// includes of a not-yet-generated header resolve.
func EnsureStub(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return false, fmt.Errorf("creating stub %s: %w", path, err)
	}
	return true, nil
}

// Emitter generates the companion files of headers into a cache directory.
type Emitter struct {
	CacheDir  string
	Types     Types
	APIDefine string
}

// Result reports what Generate wrote.
type Result struct {
	Paths   Paths
	Written int
}

// Generate renders and writes f's companion files.
func (e *Emitter) Generate(f *model.HeaderFile) (Result, error) {
	res := Result{Paths: PathsFor(e.CacheDir, f)}

	header, err := RenderHeader(NewHeaderData(f, e.Types, e.APIDefine))
	if err != nil {
		return res, err
	}
	source, err := RenderSource(NewSourceData(f, e.Types))
	if err != nil {
		return res, err
	}

	for _, out := range []struct{ path, text string }{{res.Paths.Header, header}, {res.Paths.Source, source}} {
		wrote, err := WriteIfChanged(out.path, out.text)
		if err != nil {
			return res, err
		}
		if wrote {
			res.Written++
		}
	}
	return res, nil
}

// WriteInit renders and writes the init listing.
func (e *Emitter) WriteInit(data InitData) (bool, error) {
	text, err := RenderInit(data)
	if err != nil {
		return false, err
	}
	return WriteIfChanged(InitPath(e.CacheDir), text)
}
