// Package lang wraps the tree-sitter C++ grammar and the embedded queries
// the extractor runs against it.
package lang

import (
	"embed"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
)

//go:embed queries/*.scm
var queryFS embed.FS

// IncludeQuery captures the path literal of every #include directive.
const IncludeQuery = "include"

// HeaderExtensions are the extensions recognised as C++ headers.
var HeaderExtensions = []string{".hpp", ".h", ".hh", ".hxx", ".inl"}

// IsHeader reports whether path has one of HeaderExtensions, ignoring case.
func IsHeader(path string) bool {
	return slices.Contains(HeaderExtensions, strings.ToLower(filepath.Ext(path)))
}

// Grammar returns the C++ grammar.
func Grammar() *sitter.Language {
	return cpp.GetLanguage()
}

// NewParser creates a fresh parser for the C++ grammar.
// Each goroutine must use its own parser (not thread-safe).
func NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(Grammar())
	return p
}

type compiled struct {
	query *sitter.Query
	err   error
}

var (
	queryMu sync.Mutex
	queries = map[string]compiled{}
)

// Query returns the embedded query queries/<name>.scm compiled against the
// C++ grammar. Each query is compiled once; the result is safe to share
// across goroutines.
func Query(name string) (*sitter.Query, error) {
	queryMu.Lock()
	defer queryMu.Unlock()

	if c, ok := queries[name]; ok {
		return c.query, c.err
	}
	var c compiled
	data, err := queryFS.ReadFile("queries/" + name + ".scm")
	if err != nil {
		c.err = fmt.Errorf("reading query %s: %w", name, err)
	} else if c.query, err = sitter.NewQuery(data, Grammar()); err != nil {
		c.err = fmt.Errorf("compiling query %s: %w", name, err)
	}
	queries[name] = c
	return c.query, c.err
}
