package parse

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// value is the result of evaluating a preprocessor expression. known is
// false when the expression depends on something the extractor cannot see,
// such as a function-like macro.
type value struct {
	n     int64
	known bool
}

func known(n int64) value { return value{n: n, known: true} }

func boolValue(b bool) value {
	if b {
		return known(1)
	}
	return known(0)
}

var unknown = value{}

// conditionActive evaluates an #if/#elif condition. Conditions that cannot
// be evaluated count as active.
func (w *walker) conditionActive(cond *sitter.Node) bool {
	if cond == nil {
		return true
	}
	v := w.eval(cond)
	return !v.known || v.n != 0
}

func (w *walker) eval(n *sitter.Node) value {
	switch n.Type() {
	case "number_literal":
		return parseNumber(w.text(n))
	case "char_literal":
		s := strings.Trim(w.text(n), "'")
		if len(s) == 1 {
			return known(int64(s[0]))
		}
		return unknown
	case "true":
		return known(1)
	case "false":
		return known(0)
	case "identifier":
		def, ok := w.opts.Defines[w.text(n)]
		if !ok {
			return known(0)
		}
		return parseNumber(def)
	case "preproc_defined":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() == "identifier" {
				return boolValue(w.opts.Defined(w.text(c)))
			}
		}
		return unknown
	case "parenthesized_expression":
		if n.NamedChildCount() == 0 {
			return unknown
		}
		return w.eval(n.NamedChild(0))
	case "unary_expression":
		arg := n.ChildByFieldName("argument")
		op := n.ChildByFieldName("operator")
		if arg == nil || op == nil {
			return unknown
		}
		v := w.eval(arg)
		if !v.known {
			return unknown
		}
		switch w.text(op) {
		case "!":
			return boolValue(v.n == 0)
		case "-":
			return known(-v.n)
		case "+":
			return v
		case "~":
			return known(^v.n)
		}
		return unknown
	case "binary_expression":
		return w.evalBinary(n)
	}
	return unknown
}

func (w *walker) evalBinary(n *sitter.Node) value {
	left, right, op := n.ChildByFieldName("left"), n.ChildByFieldName("right"), n.ChildByFieldName("operator")
	if left == nil || right == nil || op == nil {
		return unknown
	}
	l, r := w.eval(left), w.eval(right)

	switch w.text(op) {
	case "&&":
		if (l.known && l.n == 0) || (r.known && r.n == 0) {
			return known(0)
		}
		if l.known && r.known {
			return known(1)
		}
		return unknown
	case "||":
		if (l.known && l.n != 0) || (r.known && r.n != 0) {
			return known(1)
		}
		if l.known && r.known {
			return known(0)
		}
		return unknown
	}

	if !l.known || !r.known {
		return unknown
	}
	switch w.text(op) {
	case "==":
		return boolValue(l.n == r.n)
	case "!=":
		return boolValue(l.n != r.n)
	case "<":
		return boolValue(l.n < r.n)
	case "<=":
		return boolValue(l.n <= r.n)
	case ">":
		return boolValue(l.n > r.n)
	case ">=":
		return boolValue(l.n >= r.n)
	case "+":
		return known(l.n + r.n)
	case "-":
		return known(l.n - r.n)
	case "*":
		return known(l.n * r.n)
	case "/":
		if r.n == 0 {
			return unknown
		}
		return known(l.n / r.n)
	case "%":
		if r.n == 0 {
			return unknown
		}
		return known(l.n % r.n)
	case "&":
		return known(l.n & r.n)
	case "|":
		return known(l.n | r.n)
	case "^":
		return known(l.n ^ r.n)
	}
	return unknown
}

func parseNumber(s string) value {
	s = strings.TrimRight(strings.TrimSpace(s), "uUlL")
	s = strings.ReplaceAll(s, "'", "")
	if s == "" {
		return unknown
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return unknown
	}
	return known(n)
}

// branchHolds reports whether the group's own condition is true. An #else
// always holds; the caller decides whether it is reached.
func (w *walker) branchHolds(n *sitter.Node) bool {
	switch n.Type() {
	case "preproc_ifdef", "preproc_elifdef":
		name := n.ChildByFieldName("name")
		if name == nil {
			return true
		}
		negate := n.ChildCount() > 0 && strings.Contains(w.text(n.Child(0)), "ndef")
		return w.opts.Defined(w.text(name)) != negate
	case "preproc_if", "preproc_elif":
		return w.conditionActive(n.ChildByFieldName("condition"))
	}
	return true
}

// activeBranch walks a conditional group, calling visit for each item of
// the first branch whose condition holds.
func (w *walker) activeBranch(n *sitter.Node, visit func(*sitter.Node)) {
	alt := n.ChildByFieldName("alternative")
	if !w.branchHolds(n) {
		if alt != nil {
			w.activeBranch(alt, visit)
		}
		return
	}

	skip := []*sitter.Node{alt, n.ChildByFieldName("name"), n.ChildByFieldName("condition")}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if containsNode(skip, c) {
			continue
		}
		visit(c)
	}
}

// activeAt reports whether n lies in an active region of the file, i.e.
// every enclosing conditional group selected the branch containing it.
func (w *walker) activeAt(n *sitter.Node) bool {
	child := n
	for p := n.Parent(); p != nil; child, p = p, p.Parent() {
		if !isConditional(p.Type()) || p.Type() == "preproc_else" {
			continue
		}
		if sameNode(p.ChildByFieldName("condition"), child) || sameNode(p.ChildByFieldName("name"), child) {
			continue
		}
		viaAlternative := sameNode(p.ChildByFieldName("alternative"), child)
		if viaAlternative == w.branchHolds(p) {
			return false
		}
	}
	return true
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil &&
		a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func containsNode(list []*sitter.Node, n *sitter.Node) bool {
	for _, c := range list {
		if sameNode(c, n) {
			return true
		}
	}
	return false
}

func isConditional(t string) bool {
	switch t {
	case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef":
		return true
	}
	return false
}
