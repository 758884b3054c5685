package emit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/scg/internal/model"
	"github.com/phobologic/scg/internal/tags"
)

func deep(names ...string) map[string]struct{} {
	m := map[string]struct{}{}
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

func sampleFile(dir string) *model.HeaderFile {
	f := model.NewHeaderFile(filepath.Join(dir, "game", "Actor.hpp"), filepath.Join("game", "Actor.hpp"))
	f.Classes = []*model.Class{
		{
			Symbol:    model.Symbol{Tags: tags.Parse("@tags(arena, arenaSize=32, dynamic)")},
			Name:      "Actor",
			Namespace: []string{"game"},
			Bases:     []string{"e2::ManagedObject"},
			DeepBases: deep("e2::Object", "e2::ManagedObject"),
			Constructors: []model.Constructor{
				{Name: "Actor"},
				{Name: "Actor", Arguments: model.Arguments{{Name: "name", Type: "std::string const&"}}},
			},
		},
		{
			Symbol:    model.Symbol{Tags: tags.Tags{}},
			Name:      "Shape",
			Namespace: []string{"game"},
			Bases:     []string{"e2::Object"},
			DeepBases: deep("e2::Object"),
			Abstract:  true,
		},
		{
			Symbol: model.Symbol{Tags: tags.Tags{}},
			Name:   "Plain",
		},
	}
	return f
}

func TestViews(t *testing.T) {
	t.Parallel()

	views := Views(sampleFile(t.TempDir()), DefaultTypes())
	if len(views) != 2 {
		t.Fatalf("got %d views, want 2 reflectable classes", len(views))
	}

	actor, shape := views[0], views[1]
	if actor.Index != 0 || shape.Index != 1 {
		t.Errorf("indices = %d, %d", actor.Index, shape.Index)
	}
	if actor.FQN != "game::Actor" || !actor.Arena || actor.ArenaSize != "32" || !actor.Dynamic {
		t.Errorf("actor view = %+v", actor)
	}
	if !actor.Managed || !actor.ManagedDestroy {
		t.Error("actor should be managed")
	}
	if got := strings.Join(actor.AllBases, ","); got != "e2::ManagedObject,e2::Object" {
		t.Errorf("AllBases = %q, want sorted", got)
	}
	if len(actor.Constructors) != 2 || actor.Constructors[1].Args != "std::string const& name" || actor.Constructors[1].ArgNames != "name" {
		t.Errorf("constructors = %+v", actor.Constructors)
	}
	if shape.Managed || shape.Arena || shape.ArenaSize != model.DefaultArenaSize || !shape.Abstract {
		t.Errorf("shape view = %+v", shape)
	}
}

func TestRenderHeader(t *testing.T) {
	t.Parallel()

	f := sampleFile(t.TempDir())
	out, err := RenderHeader(NewHeaderData(f, DefaultTypes(), "E2_API"))
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"#pragma once",
		"namespace game\n{\n\tclass Actor;\n\tusing ActorPtr = e2::Ptr<game::Actor>;\n}",
		"\tclass Shape;\n}",
		"#if !defined(E2_SCG)",
		"class E2_API Allocator<game::Actor>",
		"static game::Actor* create();",
		"static game::Actor* create(std::string const& name);",
		"static void destroy(game::Shape* instance);",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("header missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ShapePtr") {
		t.Error("unmanaged class should not get a Ptr alias")
	}
	if strings.Contains(out, "Plain") {
		t.Error("non-reflectable class should not be emitted")
	}

	noAPI, err := RenderHeader(NewHeaderData(f, DefaultTypes(), ""))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(noAPI, "class Allocator<game::Actor>") {
		t.Errorf("header without api define:\n%s", noAPI)
	}
}

func TestRenderSource(t *testing.T) {
	t.Parallel()

	f := sampleFile(t.TempDir())
	out, err := RenderSource(NewSourceData(f, DefaultTypes()))
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"#include \"" + f.IncludePath() + "\"",
		"e2::Arena<game::Actor>* type0Arena{};",
		"return type0Arena->create(name);",
		"type0Arena = new e2::Arena<game::Actor>(32);",
		"type0.isAbstract = false;",
		"return e2::create<game::Actor>();",
		"flagPendingKill();",
		"type1.isAbstract = true;",
		"attempted to create instance of abstract type 'game::Shape'",
		"\"e2::ManagedObject\",\n\t\t\t\"e2::Object\",",
		"void game::Shape::registerType()\n{\n\t::registerType1();\n}",
		"e2::Type const* game::Actor::staticType()",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("source missing %q:\n%s", want, out)
		}
	}
}

func TestRenderIdempotent(t *testing.T) {
	t.Parallel()

	f := sampleFile(t.TempDir())
	first, err := RenderSource(NewSourceData(f, DefaultTypes()))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := RenderSource(NewSourceData(f, DefaultTypes()))
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatal("rendering is not deterministic")
		}
	}
}

func TestRenderInit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	f := sampleFile(dir)
	empty := model.NewHeaderFile(filepath.Join(dir, "Empty.hpp"), "Empty.hpp")
	skipped := sampleFile(dir)
	skipped.FullPath = filepath.Join(dir, "Skipped.hpp")

	data := NewInitData([]*model.HeaderFile{f, empty, skipped}, func(h *model.HeaderFile) bool {
		return h != skipped
	}, DefaultTypes())
	if len(data.Files) != 1 {
		t.Fatalf("init files = %+v", data.Files)
	}

	out, err := RenderInit(data)
	if err != nil {
		t.Fatal(err)
	}
	want := "#include \"" + f.IncludePath() + "\"\n\ninline void registerGeneratedTypes()\n{\n\tgame::Actor::registerType();\n\tgame::Shape::registerType();\n}\n"
	if !strings.HasSuffix(out, want) {
		t.Errorf("init listing:\n%s\nwant suffix:\n%s", out, want)
	}
}

func TestPaths(t *testing.T) {
	t.Parallel()

	f := model.NewHeaderFile("/src/game/Actor.hpp", filepath.Join("game", "Actor.hpp"))
	p := PathsFor("/cache", f)
	if p.Header != filepath.Join("/cache", "include", "Actor.generated.hpp") {
		t.Errorf("Header = %q", p.Header)
	}
	if p.Source != filepath.Join("/cache", "src", "Actor.generated.cpp") {
		t.Errorf("Source = %q", p.Source)
	}
	if got := InitPath("/cache"); got != filepath.Join("/cache", "init", "init.inl") {
		t.Errorf("InitPath = %q", got)
	}
}

func TestWriteIfChanged(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "deep", "out.txt")
	wrote, err := WriteIfChanged(path, "hello")
	if err != nil || !wrote {
		t.Fatalf("first write = %v, %v", wrote, err)
	}
	wrote, err = WriteIfChanged(path, "hello")
	if err != nil || wrote {
		t.Fatalf("identical write = %v, %v", wrote, err)
	}
	wrote, err = WriteIfChanged(path, "changed")
	if err != nil || !wrote {
		t.Fatalf("changed write = %v, %v", wrote, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "changed" {
		t.Errorf("content = %q", data)
	}
}

func TestEnsureStub(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "include", "A.generated.hpp")
	created, err := EnsureStub(path)
	if err != nil || !created {
		t.Fatalf("EnsureStub = %v, %v", created, err)
	}
	if err := os.WriteFile(path, []byte("real"), 0o644); err != nil {
		t.Fatal(err)
	}
	created, err = EnsureStub(path)
	if err != nil || created {
		t.Fatalf("second EnsureStub = %v, %v", created, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "real" {
		t.Error("stub must not overwrite generated content")
	}
}

func TestEmitterGenerate(t *testing.T) {
	t.Parallel()

	cache := t.TempDir()
	e := &Emitter{CacheDir: cache, Types: DefaultTypes(), APIDefine: "E2_API"}
	f := sampleFile(t.TempDir())

	res, err := e.Generate(f)
	if err != nil {
		t.Fatal(err)
	}
	if res.Written != 2 {
		t.Errorf("first Generate wrote %d files, want 2", res.Written)
	}
	res, err = e.Generate(f)
	if err != nil {
		t.Fatal(err)
	}
	if res.Written != 0 {
		t.Errorf("second Generate wrote %d files, want 0", res.Written)
	}
	if _, err := os.Stat(res.Paths.Header); err != nil {
		t.Error(err)
	}
}
