package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/scg/internal/model"
	"github.com/phobologic/scg/internal/tags"
)

// member handles one item of a class body.
func (w *walker) member(cls *model.Class, n *sitter.Node) {
	if n.IsMissing() {
		w.report(Error, n, "missing "+n.Type())
		return
	}
	switch t := n.Type(); {
	case t == "comment" || t == "access_specifier":
	case t == "ERROR":
		w.syntaxError(n)
		for i := 0; i < int(n.ChildCount()); i++ {
			w.member(cls, n.Child(i))
		}
	case isConditional(t):
		w.activeBranch(n, func(c *sitter.Node) { w.member(cls, c) })
	case t == "field_declaration":
		w.fieldDeclaration(cls, n)
	case t == "function_definition" || t == "declaration":
		w.memberFunction(cls, n)
	case t == "class_specifier" || t == "struct_specifier":
		w.classSpecifier(n)
	default:
		w.scanErrors(n)
	}
}

var fieldDeclarators = map[string]bool{
	"field_identifier":         true,
	"pointer_declarator":       true,
	"reference_declarator":     true,
	"array_declarator":         true,
	"function_declarator":      true,
	"parenthesized_declarator": true,
	"attributed_declarator":    true,
	"operator_name":            true,
}

func (w *walker) fieldDeclaration(cls *model.Class, n *sitter.Node) {
	typ := n.ChildByFieldName("type")
	if typ != nil && (typ.Type() == "class_specifier" || typ.Type() == "struct_specifier") {
		w.classSpecifier(typ)
	} else if typ != nil {
		w.scanErrors(typ)
	}

	static := hasStorage(w, n, "static")
	defaultValue := n.ChildByFieldName("default_value")
	for i := 0; i < int(n.NamedChildCount()); i++ {
		d := n.NamedChild(i)
		if !fieldDeclarators[d.Type()] || sameNode(d, defaultValue) {
			if d.Type() == "ERROR" {
				w.syntaxError(d)
			}
			continue
		}
		if fd, deco := w.functionDeclarator(d); fd != nil {
			w.method(cls, n, d, fd, deco)
			continue
		}
		if static {
			continue
		}
		w.variable(cls, n, d)
	}
}

func (w *walker) memberFunction(cls *model.Class, n *sitter.Node) {
	decl := n.ChildByFieldName("declarator")
	if decl == nil {
		w.scanErrors(n)
		return
	}
	fd, deco := w.functionDeclarator(decl)
	switch {
	case fd != nil:
		w.method(cls, n, decl, fd, deco)
	case hasChild(n, "pure_virtual_clause") && w.isDataDeclarator(decl):
		// The grammar reads `int count = 0;` as a pure virtual definition.
		if !hasStorage(w, n, "static") {
			w.variable(cls, n, decl)
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		w.scanErrors(body)
	}
}

func hasChild(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if n.NamedChild(i).Type() == typ {
			return true
		}
	}
	return false
}

// isDataDeclarator reports whether d names a data member, possibly through
// pointer or reference declarators.
func (w *walker) isDataDeclarator(d *sitter.Node) bool {
	for d != nil {
		switch d.Type() {
		case "field_identifier", "identifier":
			return true
		case "pointer_declarator", "reference_declarator", "attributed_declarator":
			d = w.innerDeclarator(d)
		default:
			return false
		}
	}
	return false
}

func hasStorage(w *walker, n *sitter.Node, keyword string) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "storage_class_specifier" && w.text(c) == keyword {
			return true
		}
	}
	return false
}

// functionDeclarator unwraps pointer and reference declarators down to a
// function declarator, returning the return-type decoration it passed
// through. Function pointers yield nil.
func (w *walker) functionDeclarator(d *sitter.Node) (*sitter.Node, string) {
	var deco string
	for d != nil {
		switch d.Type() {
		case "function_declarator":
			inner := d.ChildByFieldName("declarator")
			if inner == nil || inner.Type() == "parenthesized_declarator" {
				return nil, ""
			}
			return d, deco
		case "pointer_declarator":
			deco += "*"
		case "reference_declarator":
			deco += w.refToken(d)
		case "attributed_declarator":
		default:
			return nil, ""
		}
		d = w.innerDeclarator(d)
	}
	return nil, ""
}

func (w *walker) refToken(d *sitter.Node) string {
	if d.ChildCount() > 0 {
		if tok := w.text(d.Child(0)); tok == "&&" {
			return tok
		}
	}
	return "&"
}

func (w *walker) innerDeclarator(d *sitter.Node) *sitter.Node {
	if c := d.ChildByFieldName("declarator"); c != nil {
		return c
	}
	for i := int(d.NamedChildCount()) - 1; i >= 0; i-- {
		c := d.NamedChild(i)
		switch c.Type() {
		case "type_qualifier", "attribute_declaration", "ms_pointer_modifier":
			continue
		}
		return c
	}
	return nil
}

// declaratorParts splits a declarator into the declared name and the type
// decoration around it. complex is set for function pointer declarators,
// whose type cannot be rebuilt from a prefix and suffix.
func (w *walker) declaratorParts(d *sitter.Node) (name, prefix, suffix string, complex bool) {
	for d != nil {
		switch d.Type() {
		case "pointer_declarator", "abstract_pointer_declarator":
			prefix += "*"
		case "reference_declarator", "abstract_reference_declarator":
			prefix += w.refToken(d)
		case "array_declarator", "abstract_array_declarator":
			size := ""
			if s := d.ChildByFieldName("size"); s != nil {
				size = w.spelling(s)
			}
			suffix = "[" + size + "]" + suffix
		case "function_declarator", "abstract_function_declarator":
			complex = true
		case "init_declarator", "parenthesized_declarator", "attributed_declarator", "abstract_parenthesized_declarator":
		default:
			return w.spelling(d), prefix, suffix, complex
		}
		d = w.innerDeclarator(d)
	}
	return "", prefix, suffix, complex
}

// typeSpelling renders the type specifier of a declaration with its
// cv-qualifiers, stopping at the declarator.
func (w *walker) typeSpelling(owner, declarator *sitter.Node) string {
	typ := owner.ChildByFieldName("type")
	if typ == nil {
		return ""
	}
	var parts []string
	for i := 0; i < int(owner.ChildCount()); i++ {
		c := owner.Child(i)
		if declarator != nil && c.StartByte() >= declarator.StartByte() {
			break
		}
		switch {
		case sameNode(c, typ):
			parts = append(parts, w.spelling(c))
		case c.Type() == "type_qualifier":
			if q := w.text(c); q == "const" || q == "volatile" {
				parts = append(parts, q)
			}
		}
	}
	return strings.Join(parts, " ")
}

func (w *walker) variable(cls *model.Class, owner, d *sitter.Node) {
	name, prefix, suffix, complex := w.declaratorParts(d)
	if name == "" {
		return
	}
	typ := w.typeSpelling(owner, d) + prefix + suffix
	if complex {
		typ = w.typeSpelling(owner, d) + " " + normalize(strings.Replace(w.text(d), name, "", 1))
	}
	cls.Variables = append(cls.Variables, model.Variable{
		Symbol: model.Symbol{ID: cls.ID + "@FI@" + name, Tags: tags.Parse(w.docComment(owner))},
		Name:   name,
		Type:   typ,
	})
}

func (w *walker) method(cls *model.Class, owner, decl, fd *sitter.Node, deco string) {
	nameNode := fd.ChildByFieldName("declarator")
	if nameNode == nil || nameNode.Type() == "destructor_name" {
		return
	}
	scope := splitScope(w.text(nameNode))
	if len(scope) == 0 {
		return
	}
	name := scope[len(scope)-1]
	if strings.HasPrefix(name, "~") {
		return
	}
	if isPureVirtual(w, owner) {
		cls.Abstract = true
	}

	args := w.parameters(fd.ChildByFieldName("parameters"))
	types := make([]string, len(args))
	for i, a := range args {
		types[i] = a.Type
	}
	sym := model.Symbol{
		ID:   cls.ID + "@F@" + name + "#" + strings.Join(types, ","),
		Tags: tags.Parse(w.docComment(owner)),
	}

	if name == cls.Name {
		cls.Constructors = append(cls.Constructors, model.Constructor{Symbol: sym, Name: name, Arguments: args})
		return
	}
	cls.Methods = append(cls.Methods, model.Method{
		Symbol:     sym,
		Name:       name,
		ReturnType: w.typeSpelling(owner, decl) + deco,
		Arguments:  args,
	})
}

func isPureVirtual(w *walker, owner *sitter.Node) bool {
	if dv := owner.ChildByFieldName("default_value"); dv != nil && w.text(dv) == "0" {
		return true
	}
	for i := 0; i < int(owner.NamedChildCount()); i++ {
		if owner.NamedChild(i).Type() == "pure_virtual_clause" {
			return true
		}
	}
	compact := strings.Join(strings.Fields(w.text(owner)), "")
	return strings.HasSuffix(compact, "=0;")
}

func (w *walker) parameters(list *sitter.Node) model.Arguments {
	if list == nil {
		return nil
	}
	var args model.Arguments
	for i := 0; i < int(list.ChildCount()); i++ {
		c := list.Child(i)
		switch c.Type() {
		case "parameter_declaration", "optional_parameter_declaration":
			decl := c.ChildByFieldName("declarator")
			name, prefix, suffix, _ := w.declaratorParts(decl)
			args = append(args, model.Argument{Name: name, Type: w.typeSpelling(c, decl) + prefix + suffix})
		case "variadic_parameter_declaration":
			args = append(args, model.Argument{Type: w.typeSpelling(c, nil) + "..."})
		case "...":
			args = append(args, model.Argument{Type: "..."})
		case "ERROR":
			w.syntaxError(c)
		}
	}
	if len(args) == 1 && args[0].Type == "void" && args[0].Name == "" {
		return nil
	}
	return args
}
