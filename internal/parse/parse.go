// Package parse extracts reflection symbols and include graphs from C++
// headers using tree-sitter.
package parse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/scg/internal/discover"
	"github.com/phobologic/scg/internal/lang"
	"github.com/phobologic/scg/internal/model"
)

// Severity orders diagnostics the way compiler frontends do.
type Severity int

const (
	Ignored Severity = iota
	Note
	Warning
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Note:
		return "note"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	}
	return "ignored"
}

// Diagnostic is a problem found while extracting a file.
type Diagnostic struct {
	Severity Severity
	File     string
	Line     int
	Column   int
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Message)
}

// Result is the outcome of parsing one header.
type Result struct {
	// Valid is false when any diagnostic is an error or worse.
	Valid       bool
	Classes     []*model.Class
	Includes    []string
	Diagnostics []Diagnostic
}

// Extractor parses headers with a fixed set of compile options. It is safe
// for concurrent use; each call creates its own tree-sitter parser.
type Extractor struct {
	opts  Options
	strip *regexp.Regexp
}

// NewExtractor returns an Extractor for opts.
func NewExtractor(opts Options) (*Extractor, error) {
	if _, err := lang.Query(lang.IncludeQuery); err != nil {
		return nil, err
	}
	if opts.Defines == nil {
		opts.Defines = map[string]string{}
	}
	return &Extractor{opts: opts, strip: stripPattern(opts.StripMacros)}, nil
}

// Parse reads and extracts path. In headers-only mode only the include
// graph is collected and the result is always valid.
func Parse(ctx context.Context, path string, opts Options, headersOnly bool) (*Result, error) {
	e, err := NewExtractor(opts)
	if err != nil {
		return nil, err
	}
	return e.Parse(ctx, path, headersOnly)
}

// Parse reads and extracts path.
func (e *Extractor) Parse(ctx context.Context, path string, headersOnly bool) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return e.ParseSource(ctx, path, source, headersOnly)
}

// ParseSource extracts source as if it were the contents of path. Relative
// includes resolve against path's directory.
func (e *Extractor) ParseSource(ctx context.Context, path string, source []byte, headersOnly bool) (*Result, error) {
	source = blankMacros(source, e.strip)

	parser := lang.NewParser()
	defer parser.Close()
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	w := &walker{source: source, path: path, opts: &e.opts, headersOnly: headersOnly}
	root := tree.RootNode()

	includes, err := e.includes(w, root)
	if err != nil {
		return nil, err
	}
	if !headersOnly {
		w.children(root)
	}

	res := &Result{Valid: true, Classes: w.classes, Includes: includes, Diagnostics: w.diags}
	for _, d := range w.diags {
		if d.Severity >= Error {
			res.Valid = false
			break
		}
	}
	return res, nil
}

func (e *Extractor) includes(w *walker, root *sitter.Node) ([]string, error) {
	q, err := lang.Query(lang.IncludeQuery)
	if err != nil {
		return nil, err
	}
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	var out []string
	seen := map[string]bool{}
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range match.Captures {
			if !w.activeAt(c.Node) {
				continue
			}
			raw := strings.TrimSpace(w.text(c.Node))
			resolved, ok := e.resolveInclude(w.path, raw)
			if !ok {
				w.report(Warning, c.Node, "include not found: "+raw)
				continue
			}
			if !seen[resolved] {
				seen[resolved] = true
				out = append(out, resolved)
			}
		}
	}
	return out, nil
}

// resolveInclude finds the file a directive names. Quoted includes search
// the including file's directory before the include dirs.
func (e *Extractor) resolveInclude(from, raw string) (string, bool) {
	quoted := strings.HasPrefix(raw, `"`)
	name := strings.Trim(raw, `"<>`)
	if name == "" {
		return "", false
	}
	if filepath.IsAbs(name) {
		return existing(name)
	}

	var dirs []string
	if quoted {
		dirs = append(dirs, filepath.Dir(from))
	}
	dirs = append(dirs, e.opts.IncludeDirs...)
	for _, dir := range dirs {
		if p, ok := existing(filepath.Join(dir, name)); ok {
			return p, true
		}
	}
	return "", false
}

func existing(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return discover.CleanPath(path), true
}
