// Package toon implements TOON (Token-Oriented Object Notation) encoding of
// a header database.
package toon

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/phobologic/scg/internal/model"
	"github.com/phobologic/scg/internal/tags"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Inventory is the database content a report describes.
type Inventory struct {
	Cache    string
	Source   string
	RootType string
	Files    []*model.HeaderFile
}

// Encode converts an Inventory into TOON format. Files keep database order.
func Encode(inv *Inventory) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("cache: %s", encodeValue(inv.Cache)))
	parts = append(parts, fmt.Sprintf("source: %s", encodeValue(inv.Source)))
	parts = append(parts, fmt.Sprintf("root: %s", encodeValue(inv.RootType)))

	var fileRows [][]string
	for _, f := range inv.Files {
		fileRows = append(fileRows, []string{
			filepathSlash(f.RelativePath),
			fmt.Sprintf("%d", len(f.Classes)),
			fmt.Sprintf("%d", len(f.Reflectable(inv.RootType))),
			stamp(f.LastParsed),
			stamp(f.LastGenerated),
		})
	}
	parts = append(parts, formatTabular("files", []string{"path", "classes", "reflectable", "parsed", "generated"}, fileRows))

	var classRows, memberRows, baseRows [][]string
	for _, f := range inv.Files {
		for _, c := range f.Classes {
			classRows = append(classRows, []string{
				filepathSlash(f.RelativePath),
				c.FQN(),
				fmt.Sprintf("%t", c.Abstract),
				fmt.Sprintf("%t", c.Reflectable(inv.RootType)),
				formatTags(c.Tags),
			})
			for i := range c.Constructors {
				ctor := &c.Constructors[i]
				memberRows = append(memberRows, []string{c.FQN(), "constructor", ctor.Name, "(" + ctor.ArgsString() + ")"})
			}
			for i := range c.Methods {
				m := &c.Methods[i]
				memberRows = append(memberRows, []string{c.FQN(), "method", m.Name, m.ReturnType + " (" + m.ArgsString() + ")"})
			}
			for i := range c.Variables {
				v := &c.Variables[i]
				memberRows = append(memberRows, []string{c.FQN(), "variable", v.Name, v.Type})
			}

			direct := make(map[string]struct{}, len(c.Bases))
			for _, b := range c.Bases {
				direct[b] = struct{}{}
			}
			for _, b := range c.SortedDeepBases() {
				_, isDirect := direct[b]
				baseRows = append(baseRows, []string{c.FQN(), b, fmt.Sprintf("%t", isDirect)})
			}
		}
	}
	parts = append(parts, formatTabular("classes", []string{"file", "fqn", "abstract", "reflectable", "tags"}, classRows))
	parts = append(parts, formatTabular("members", []string{"class", "kind", "name", "signature"}, memberRows))
	parts = append(parts, formatTabular("bases", []string{"class", "base", "direct"}, baseRows))

	return strings.Join(parts, "\n")
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func filepathSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// formatTags renders tags as key=value pairs separated by spaces, bare keys
// without a value.
func formatTags(t tags.Tags) string {
	pairs := make([]string, 0, len(t))
	for _, k := range t.Keys() {
		if t[k] == "true" {
			pairs = append(pairs, k)
			continue
		}
		pairs = append(pairs, k+"="+t[k])
	}
	return strings.Join(pairs, " ")
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
