package parse

import (
	"regexp"
	"strings"
)

// Options are the compile options relevant to extraction.
type Options struct {
	// IncludeDirs are searched in order after the including file's directory.
	IncludeDirs []string
	// Defines maps macro names to their values ("1" for -DNAME).
	Defines map[string]string
	// StripMacros lists macros whose uses are blanked before parsing,
	// e.g. generated-body markers or API export macros the grammar cannot
	// make sense of without a preprocessor.
	StripMacros []string
	// Extra holds flags that carry no meaning for extraction (e.g. -std=c++20).
	Extra []string
}

// ParseOptions interprets compiler-style option strings.
func ParseOptions(args []string) Options {
	opts := Options{Defines: map[string]string{}}
	for i := 0; i < len(args); i++ {
		arg := strings.TrimSpace(args[i])
		switch {
		case arg == "-I" || arg == "-isystem" || arg == "-iquote":
			if i+1 < len(args) {
				i++
				opts.IncludeDirs = append(opts.IncludeDirs, args[i])
			}
		case strings.HasPrefix(arg, "-isystem"):
			opts.IncludeDirs = append(opts.IncludeDirs, arg[len("-isystem"):])
		case strings.HasPrefix(arg, "-iquote"):
			opts.IncludeDirs = append(opts.IncludeDirs, arg[len("-iquote"):])
		case strings.HasPrefix(arg, "-I"):
			opts.IncludeDirs = append(opts.IncludeDirs, arg[2:])
		case arg == "-D":
			if i+1 < len(args) {
				i++
				opts.define(args[i])
			}
		case strings.HasPrefix(arg, "-D"):
			opts.define(arg[2:])
		case arg == "-U":
			if i+1 < len(args) {
				i++
				delete(opts.Defines, args[i])
			}
		case strings.HasPrefix(arg, "-U"):
			delete(opts.Defines, arg[2:])
		case arg != "":
			opts.Extra = append(opts.Extra, arg)
		}
	}
	return opts
}

func (o *Options) define(entry string) {
	name, value, ok := strings.Cut(entry, "=")
	if !ok {
		value = "1"
	}
	if name = strings.TrimSpace(name); name != "" {
		o.Defines[name] = value
	}
}

// Defined reports whether name is a defined macro.
func (o *Options) Defined(name string) bool {
	_, ok := o.Defines[name]
	return ok
}

// stripPattern compiles a matcher for uses of the strip macros, with an
// optional balanced (one level of nesting) argument list.
func stripPattern(names []string) *regexp.Regexp {
	var quoted []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			quoted = append(quoted, regexp.QuoteMeta(n))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b(?:\s*\((?:[^()]|\([^()]*\))*\))?`)
}

// blankMacros replaces macro uses with spaces, keeping newlines so node
// positions still map to the original lines. Preprocessor lines are left
// alone so the macros' own definitions survive.
func blankMacros(source []byte, re *regexp.Regexp) []byte {
	if re == nil {
		return source
	}
	out := make([]byte, len(source))
	copy(out, source)
	for _, loc := range re.FindAllIndex(source, -1) {
		if onDirectiveLine(source, loc[0]) {
			continue
		}
		for i := loc[0]; i < loc[1]; i++ {
			if out[i] != '\n' && out[i] != '\r' {
				out[i] = ' '
			}
		}
	}
	return out
}

func onDirectiveLine(source []byte, offset int) bool {
	start := offset
	for start > 0 && source[start-1] != '\n' {
		start--
	}
	return strings.HasPrefix(strings.TrimSpace(string(source[start:offset])), "#")
}
