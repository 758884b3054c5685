package parse

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/phobologic/scg/internal/model"
)

func writeHeader(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func parseText(t *testing.T, opts Options, source string) *Result {
	t.Helper()
	dir := t.TempDir()
	path := writeHeader(t, dir, "test.hpp", source)
	res, err := Parse(context.Background(), path, opts, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return res
}

func findClass(res *Result, fqn string) *model.Class {
	for _, c := range res.Classes {
		if c.FQN() == fqn {
			return c
		}
	}
	return nil
}

func classNames(res *Result) []string {
	var names []string
	for _, c := range res.Classes {
		names = append(names, c.FQN())
	}
	return names
}

const fooHeader = `#pragma once
#include "Object.hpp"

namespace e2 {
/** A thing. @tags(arena, arenaSize=32) */
class E2_API Foo : public e2::Object {
	E2_CLASS_DECLARATION()
public:
	Foo();
	Foo(int a, float const& b);
	virtual ~Foo();

	/// @tags(dynamic)
	void update(double dt);
	static Foo* create();

	int count = 0;
	e2::Object* owner;

private:
	static int s_instances;
	friend class Bar;
	template <typename T> T get();
};
}
`

func TestParseClass(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeHeader(t, dir, "Object.hpp", "#pragma once\nnamespace e2 { class Object {}; }\n")
	path := writeHeader(t, dir, "Foo.hpp", fooHeader)

	opts := Options{StripMacros: []string{"E2_CLASS_DECLARATION", "E2_API"}}
	res, err := Parse(context.Background(), path, opts, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid, diagnostics: %v", res.Diagnostics)
	}
	if len(res.Classes) != 1 {
		t.Fatalf("classes = %v, want [e2::Foo]", classNames(res))
	}

	foo := res.Classes[0]
	if foo.FQN() != "e2::Foo" {
		t.Errorf("fqn = %q", foo.FQN())
	}
	if foo.ID != "c:@N@e2@S@Foo" {
		t.Errorf("id = %q", foo.ID)
	}
	if !reflect.DeepEqual(foo.Bases, []string{"e2::Object"}) {
		t.Errorf("bases = %v", foo.Bases)
	}
	if foo.ArenaSize() != "32" || !foo.HasTag("arena") {
		t.Errorf("tags = %v", foo.Tags)
	}
	if foo.Abstract {
		t.Error("Foo should not be abstract")
	}

	if len(foo.Constructors) != 2 {
		t.Fatalf("constructors = %d, want 2", len(foo.Constructors))
	}
	if got := foo.Constructors[1].ArgsString(); got != "int a, float const& b" {
		t.Errorf("ctor args = %q", got)
	}
	if got := foo.Constructors[1].ArgsNames(); got != "a, b" {
		t.Errorf("ctor names = %q", got)
	}

	var methods []string
	for _, m := range foo.Methods {
		methods = append(methods, m.ReturnType+" "+m.Name+"("+m.ArgsString()+")")
	}
	want := []string{"void update(double dt)", "Foo* create()"}
	if !reflect.DeepEqual(methods, want) {
		t.Errorf("methods = %v, want %v", methods, want)
	}
	if !foo.Methods[0].HasTag("dynamic") {
		t.Errorf("update tags = %v", foo.Methods[0].Tags)
	}
	if foo.Methods[0].ID != "c:@N@e2@S@Foo@F@update#double" {
		t.Errorf("method id = %q", foo.Methods[0].ID)
	}

	var vars []string
	for _, v := range foo.Variables {
		vars = append(vars, v.Type+" "+v.Name)
	}
	if !reflect.DeepEqual(vars, []string{"int count", "e2::Object* owner"}) {
		t.Errorf("variables = %v", vars)
	}
	if foo.Variables[0].ID != "c:@N@e2@S@Foo@FI@count" {
		t.Errorf("variable id = %q", foo.Variables[0].ID)
	}

	if len(res.Includes) != 1 || filepath.Base(res.Includes[0]) != "Object.hpp" {
		t.Errorf("includes = %v", res.Includes)
	}
	if !filepath.IsAbs(res.Includes[0]) {
		t.Errorf("include not absolute: %q", res.Includes[0])
	}
}

func TestParseZeroInitialisedMembers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeHeader(t, dir, "Counters.hpp", `class Counters : public e2::Object {
	int a = 0;
	int b = 5;
	float* c = nullptr;
	bool d = false;
	int e{0};
	static int s = 0;
};
`)

	res, err := Parse(context.Background(), path, Options{}, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !res.Valid || len(res.Classes) != 1 {
		t.Fatalf("valid = %v, classes = %v", res.Valid, classNames(res))
	}
	c := res.Classes[0]
	if c.Abstract {
		t.Error("zero-initialised members must not make the class abstract")
	}
	if len(c.Methods) != 0 {
		t.Errorf("methods = %d, want 0", len(c.Methods))
	}

	var vars []string
	for _, v := range c.Variables {
		vars = append(vars, v.Type+" "+v.Name)
	}
	want := []string{"int a", "int b", "float* c", "bool d", "int e"}
	if !reflect.DeepEqual(vars, want) {
		t.Errorf("variables = %v, want %v", vars, want)
	}
}

func TestParseAbstract(t *testing.T) {
	t.Parallel()
	res := parseText(t, Options{}, `
class Shape {
public:
	virtual void draw() = 0;
	virtual float area() const;
};
class Square : public Shape {
public:
	void draw() override;
};
`)
	shape := findClass(res, "Shape")
	square := findClass(res, "Square")
	if shape == nil || square == nil {
		t.Fatalf("classes = %v", classNames(res))
	}
	if !shape.Abstract {
		t.Error("Shape should be abstract")
	}
	if square.Abstract {
		t.Error("Square should not be abstract")
	}
	if len(shape.Methods) != 2 {
		t.Errorf("Shape methods = %d, want 2", len(shape.Methods))
	}
}

func TestParseSkipsNonDefinitions(t *testing.T) {
	t.Parallel()
	res := parseText(t, Options{}, `
class Forward;
struct AlsoForward;
template <typename T> class Vec { T x; };
union U { int i; float f; };
struct Plain { int x; };
`)
	if got := classNames(res); !reflect.DeepEqual(got, []string{"Plain"}) {
		t.Errorf("classes = %v, want [Plain]", got)
	}
}

func TestParseNamespaces(t *testing.T) {
	t.Parallel()
	res := parseText(t, Options{}, `
namespace a::b { class C {}; }
namespace { class Anon {}; }
namespace x { namespace y { struct Z {}; } }
class Outer { class Inner {}; };
`)
	for _, fqn := range []string{"a::b::C", "Anon", "x::y::Z", "Outer", "Inner"} {
		if findClass(res, fqn) == nil {
			t.Errorf("missing class %q in %v", fqn, classNames(res))
		}
	}
}

func TestParseBaseSpellings(t *testing.T) {
	t.Parallel()
	res := parseText(t, Options{}, `
class D : public ::e2::Object, protected Mixin<int>, virtual Plain {};
`)
	d := findClass(res, "D")
	if d == nil {
		t.Fatalf("classes = %v", classNames(res))
	}
	want := []string{"e2::Object", "Mixin<int>", "Plain"}
	if !reflect.DeepEqual(d.Bases, want) {
		t.Errorf("bases = %v, want %v", d.Bases, want)
	}
}

func TestParseMembersAttachToInnermostClass(t *testing.T) {
	t.Parallel()
	res := parseText(t, Options{}, `
class Outer {
	struct Inner {
		int inner;
	};
	int outer;
};
`)
	outer, inner := findClass(res, "Outer"), findClass(res, "Inner")
	if outer == nil || inner == nil {
		t.Fatalf("classes = %v", classNames(res))
	}
	if len(outer.Variables) != 1 || outer.Variables[0].Name != "outer" {
		t.Errorf("Outer variables = %v", outer.Variables)
	}
	if len(inner.Variables) != 1 || inner.Variables[0].Name != "inner" {
		t.Errorf("Inner variables = %v", inner.Variables)
	}
}

func TestParseDocComments(t *testing.T) {
	t.Parallel()
	res := parseText(t, Options{}, `
/** @tags(near) */

class Near {};

/** @tags(far) */


class Far {};

// @tags(plain)
class Plain {};
`)
	if c := findClass(res, "Near"); c == nil || !c.HasTag("near") {
		t.Errorf("Near should carry its tag: %+v", c)
	}
	if c := findClass(res, "Far"); c == nil || len(c.Tags) != 0 {
		t.Errorf("Far should have no tags: %+v", c)
	}
	if c := findClass(res, "Plain"); c == nil || len(c.Tags) != 0 {
		t.Errorf("non-doc comment should not attach: %+v", c)
	}
}

func TestParsePreprocessor(t *testing.T) {
	t.Parallel()
	source := `
#ifdef E2_SCG
class Hidden {};
#else
class Shown {};
#endif
#if 0
class Never {};
#endif
#if !defined(E2_SCG) && 1
class NotScg {};
#endif
#if SOME_MACRO(3)
class Unknown {};
#endif
`
	res := parseText(t, Options{}, source)
	if got := classNames(res); !reflect.DeepEqual(got, []string{"Shown", "NotScg", "Unknown"}) {
		t.Errorf("undefined: classes = %v", got)
	}

	res = parseText(t, ParseOptions([]string{"-DE2_SCG"}), source)
	if got := classNames(res); !reflect.DeepEqual(got, []string{"Hidden", "Unknown"}) {
		t.Errorf("defined: classes = %v", got)
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	res := parseText(t, Options{}, "class Broken {\n\tint ) x;\n};\n")
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	var errs int
	for _, d := range res.Diagnostics {
		if d.Severity >= Error {
			errs++
			if !strings.HasSuffix(d.File, "test.hpp") || d.Line < 1 {
				t.Errorf("bad diagnostic location: %s", d)
			}
		}
	}
	if errs == 0 {
		t.Errorf("no error diagnostics: %v", res.Diagnostics)
	}
}

func TestParseInactiveErrorsIgnored(t *testing.T) {
	t.Parallel()
	res := parseText(t, Options{}, "#if 0\nclass Broken { int ) x; };\n#endif\nclass Ok {};\n")
	if !res.Valid {
		t.Errorf("errors in inactive branch should not invalidate: %v", res.Diagnostics)
	}
}

func TestParseHeadersOnly(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeHeader(t, dir, "sys/Vec.hpp", "#pragma once\n")
	writeHeader(t, dir, "src/Local.hpp", "#pragma once\n")
	path := writeHeader(t, dir, "src/Main.hpp", `
#include "Local.hpp"
#include <Vec.hpp>
#include "Local.hpp"
#include "Missing.hpp"
#if 0
#include "Disabled.hpp"
#endif
class Broken { int ) x; };
`)

	opts := ParseOptions([]string{"-I", filepath.Join(dir, "sys")})
	res, err := Parse(context.Background(), path, opts, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !res.Valid {
		t.Error("headers-only parse must be valid")
	}
	if len(res.Classes) != 0 {
		t.Errorf("headers-only parse returned classes: %v", classNames(res))
	}

	var got []string
	for _, inc := range res.Includes {
		got = append(got, filepath.Base(inc))
	}
	if !reflect.DeepEqual(got, []string{"Local.hpp", "Vec.hpp"}) {
		t.Errorf("includes = %v", got)
	}

	var warnings []string
	for _, d := range res.Diagnostics {
		if d.Severity == Warning {
			warnings = append(warnings, d.Message)
		}
		if d.Severity >= Error {
			t.Errorf("headers-only parse reported error: %s", d)
		}
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "Missing.hpp") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestParseAngledIncludeSkipsOwnDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeHeader(t, dir, "Local.hpp", "")
	path := writeHeader(t, dir, "Main.hpp", "#include <Local.hpp>\n")

	res, err := Parse(context.Background(), path, Options{}, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Includes) != 0 {
		t.Errorf("angled include resolved against own dir: %v", res.Includes)
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Parse(context.Background(), filepath.Join(t.TempDir(), "nope.hpp"), Options{}, false)
	if err == nil {
		t.Error("expected error for unreadable file")
	}
}

func TestParseCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := writeHeader(t, t.TempDir(), "a.hpp", "class A {};\n")
	if _, err := Parse(ctx, path, Options{}, false); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestParseVoidParameters(t *testing.T) {
	t.Parallel()
	res := parseText(t, Options{}, "class A { public: int get(void) const; void set(int* p, char const* name); };\n")
	a := findClass(res, "A")
	if a == nil || len(a.Methods) != 2 {
		t.Fatalf("classes = %v", classNames(res))
	}
	if len(a.Methods[0].Arguments) != 0 {
		t.Errorf("get(void) args = %v", a.Methods[0].Arguments)
	}
	if got := a.Methods[1].ArgsString(); got != "int* p, char const* name" {
		t.Errorf("set args = %q", got)
	}
}

func TestParseOptions(t *testing.T) {
	t.Parallel()

	opts := ParseOptions([]string{
		"-Iinclude", "-I", "vendor", "-isystem", "/usr/include/c++",
		"-DE2_SCG", "-DLEVEL=2", "-D", "MODE=fast", "-DGONE", "-UGONE",
		"-std=c++20", "",
	})
	if want := []string{"include", "vendor", "/usr/include/c++"}; !reflect.DeepEqual(opts.IncludeDirs, want) {
		t.Errorf("include dirs = %v, want %v", opts.IncludeDirs, want)
	}
	if want := map[string]string{"E2_SCG": "1", "LEVEL": "2", "MODE": "fast"}; !reflect.DeepEqual(opts.Defines, want) {
		t.Errorf("defines = %v, want %v", opts.Defines, want)
	}
	if !reflect.DeepEqual(opts.Extra, []string{"-std=c++20"}) {
		t.Errorf("extra = %v", opts.Extra)
	}
}

func TestBlankMacros(t *testing.T) {
	t.Parallel()

	src := "#define E2_API __declspec(dllexport)\nclass E2_API Foo {\n\tE2_CLASS_DECLARATION(Foo, (a, b))\n};\n"
	got := string(blankMacros([]byte(src), stripPattern([]string{"E2_API", "E2_CLASS_DECLARATION"})))
	if len(got) != len(src) {
		t.Fatalf("length changed: %d != %d", len(got), len(src))
	}
	if strings.Count(got, "\n") != strings.Count(src, "\n") {
		t.Error("newlines not preserved")
	}
	if !strings.HasPrefix(got, "#define E2_API") {
		t.Errorf("directive line was blanked: %q", got)
	}
	if strings.Contains(got[len("#define E2_API"):], "E2_") {
		t.Errorf("macro use survived: %q", got)
	}
	if stripPattern(nil) != nil {
		t.Error("empty strip list should compile to nil")
	}
}

func TestDiagnosticString(t *testing.T) {
	t.Parallel()
	d := Diagnostic{Severity: Error, File: "a.hpp", Line: 3, Column: 7, Message: "syntax error"}
	if got := d.String(); got != "a.hpp:3:7: error: syntax error" {
		t.Errorf("String = %q", got)
	}
}
