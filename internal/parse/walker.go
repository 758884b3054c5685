package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/scg/internal/lang"
	"github.com/phobologic/scg/internal/model"
	"github.com/phobologic/scg/internal/tags"
)

// walker traverses one syntax tree, tracking the namespace path and
// collecting classes and diagnostics.
type walker struct {
	source      []byte
	path        string
	opts        *Options
	headersOnly bool

	namespace []string
	classes   []*model.Class
	diags     []Diagnostic
}

func (w *walker) text(n *sitter.Node) string {
	return lang.NodeText(n, w.source)
}

// spelling normalises a type or name as written: collapsed whitespace,
// no spaces around scope operators.
func (w *walker) spelling(n *sitter.Node) string {
	return normalize(w.text(n))
}

func normalize(s string) string {
	s = lang.CollapseWhitespace(s)
	s = strings.ReplaceAll(s, " ::", "::")
	s = strings.ReplaceAll(s, ":: ", "::")
	s = strings.ReplaceAll(s, " <", "<")
	s = strings.ReplaceAll(s, "< ", "<")
	s = strings.ReplaceAll(s, " >", ">")
	return s
}

func (w *walker) report(sev Severity, n *sitter.Node, msg string) {
	p := n.StartPoint()
	w.diags = append(w.diags, Diagnostic{
		Severity: sev,
		File:     w.path,
		Line:     int(p.Row) + 1,
		Column:   int(p.Column) + 1,
		Message:  msg,
	})
}

func (w *walker) syntaxError(n *sitter.Node) {
	snippet := lang.CollapseWhitespace(w.text(n))
	if len(snippet) > 40 {
		snippet = snippet[:40] + "..."
	}
	if snippet == "" {
		w.report(Error, n, "syntax error")
		return
	}
	w.report(Error, n, "syntax error near '"+snippet+"'")
}

func (w *walker) children(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		w.visit(n.Child(i))
	}
}

func (w *walker) visit(n *sitter.Node) {
	if n.IsMissing() {
		w.report(Error, n, "missing "+n.Type())
		return
	}
	switch t := n.Type(); {
	case t == "comment":
	case t == "ERROR":
		w.syntaxError(n)
		w.children(n)
	case isConditional(t):
		w.activeBranch(n, w.visit)
	case t == "namespace_definition":
		w.namespaceDefinition(n)
	case t == "class_specifier" || t == "struct_specifier":
		w.classSpecifier(n)
	case t == "template_declaration" || t == "union_specifier":
		w.scanErrors(n)
	case strings.HasPrefix(t, "preproc_"):
	default:
		w.children(n)
	}
}

// scanErrors reports syntax problems in a subtree whose declarations are
// not extracted.
func (w *walker) scanErrors(n *sitter.Node) {
	if !n.HasError() {
		return
	}
	if n.IsMissing() {
		w.report(Error, n, "missing "+n.Type())
		return
	}
	switch t := n.Type(); {
	case t == "ERROR":
		w.syntaxError(n)
	case isConditional(t):
		w.activeBranch(n, w.scanErrors)
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		w.scanErrors(n.Child(i))
	}
}

func (w *walker) namespaceDefinition(n *sitter.Node) {
	pushed := 0
	if name := n.ChildByFieldName("name"); name != nil {
		for _, part := range splitScope(w.text(name)) {
			w.namespace = append(w.namespace, part)
			pushed++
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		w.children(body)
	}
	w.namespace = w.namespace[:len(w.namespace)-pushed]
}

// splitScope splits "a::inline b" into ["a", "b"].
func splitScope(s string) []string {
	var out []string
	for _, part := range strings.Split(normalize(s), "::") {
		part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "inline "))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (w *walker) classSpecifier(n *sitter.Node) {
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil || nameNode.Type() == "template_type" {
		w.scanErrors(body)
		return
	}

	ns := append([]string(nil), w.namespace...)
	scope := splitScope(w.text(nameNode))
	if len(scope) == 0 {
		w.scanErrors(body)
		return
	}
	ns = append(ns, scope[:len(scope)-1]...)

	cls := &model.Class{
		Name:      scope[len(scope)-1],
		Namespace: ns,
		DeepBases: map[string]struct{}{},
	}
	cls.ID = classID(ns, cls.Name)
	cls.Tags = tags.Parse(w.docComment(n))

	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "base_class_clause" {
			w.baseClause(cls, c)
		}
	}
	w.classes = append(w.classes, cls)

	for i := 0; i < int(body.ChildCount()); i++ {
		w.member(cls, body.Child(i))
	}
}

func classID(ns []string, name string) string {
	var b strings.Builder
	b.WriteString("c:")
	for _, n := range ns {
		b.WriteString("@N@")
		b.WriteString(n)
	}
	b.WriteString("@S@")
	b.WriteString(name)
	return b.String()
}

func (w *walker) baseClause(cls *model.Class, clause *sitter.Node) {
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		c := clause.NamedChild(i)
		switch c.Type() {
		case "type_identifier", "qualified_identifier", "template_type":
			cls.Bases = append(cls.Bases, strings.TrimPrefix(w.spelling(c), "::"))
		case "ERROR":
			w.syntaxError(c)
		}
	}
}

// docComment returns the doc comments directly preceding n, allowing a
// single blank line between them and the declaration.
func (w *walker) docComment(n *sitter.Node) string {
	target := declarationOf(n)
	var parts []string
	next := target
	for prev := target.PrevSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevSibling() {
		if int(next.StartPoint().Row)-int(prev.EndPoint().Row) > 2 {
			break
		}
		text := w.text(prev)
		if !isDocComment(text) {
			break
		}
		parts = append([]string{text}, parts...)
		next = prev
	}
	return strings.Join(parts, "\n")
}

// declarationOf climbs from a type specifier to the declaration wrapping it.
func declarationOf(n *sitter.Node) *sitter.Node {
	target := n
	for p := target.Parent(); p != nil; p = p.Parent() {
		if p.Type() != "declaration" && p.Type() != "field_declaration" {
			break
		}
		if !sameNode(p.ChildByFieldName("type"), target) {
			break
		}
		target = p
	}
	return target
}

func isDocComment(text string) bool {
	for _, prefix := range []string{"/**", "/*!", "///", "//!"} {
		if strings.HasPrefix(text, prefix) {
			return text != "/**/"
		}
	}
	return false
}
