package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/phobologic/scg/internal/model"
	"github.com/phobologic/scg/internal/tags"
)

// SchemaVersion is the snapshot layout written by this build. Snapshots with
// any other version are treated as absent.
const SchemaVersion = 1

type snapshot struct {
	Header header       `json:"header"`
	Files  []fileRecord `json:"files"`
}

type header struct {
	SchemaVersion int       `json:"schemaVersion"`
	ToolVersion   string    `json:"toolVersion,omitempty"`
	RunID         string    `json:"runId,omitempty"`
	SavedAt       time.Time `json:"savedAt"`
	RootType      string    `json:"rootType"`
}

type fileRecord struct {
	FullPath      string        `json:"fullPath"`
	RelativePath  string        `json:"relativePath"`
	LastParsed    time.Time     `json:"lastParsed"`
	LastGenerated time.Time     `json:"lastGenerated"`
	Includes      []string      `json:"includes,omitempty"`
	Classes       []classRecord `json:"classes,omitempty"`
}

type classRecord struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Namespace    []string            `json:"namespace,omitempty"`
	Tags         map[string]string   `json:"tags,omitempty"`
	Bases        []string            `json:"bases,omitempty"`
	DeepBases    []string            `json:"deepBases,omitempty"`
	Abstract     bool                `json:"abstract,omitempty"`
	Methods      []methodRecord      `json:"methods,omitempty"`
	Constructors []constructorRecord `json:"constructors,omitempty"`
	Variables    []variableRecord    `json:"variables,omitempty"`
}

type methodRecord struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	ReturnType string            `json:"returnType"`
	Tags       map[string]string `json:"tags,omitempty"`
	Arguments  []argumentRecord  `json:"arguments,omitempty"`
}

type constructorRecord struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Tags      map[string]string `json:"tags,omitempty"`
	Arguments []argumentRecord  `json:"arguments,omitempty"`
}

type variableRecord struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	Type string            `json:"type"`
	Tags map[string]string `json:"tags,omitempty"`
}

type argumentRecord struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
}

// encode serialises a snapshot as zstd-compressed JSON.
func encode(s *snapshot) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

// decode reverses encode, rejecting unknown schema versions.
func decode(data []byte) (*snapshot, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}
	var s snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if s.Header.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrSchemaMismatch, s.Header.SchemaVersion, SchemaVersion)
	}
	return &s, nil
}

func fileToRecord(f *model.HeaderFile) fileRecord {
	r := fileRecord{
		FullPath:      f.FullPath,
		RelativePath:  f.RelativePath,
		LastParsed:    f.LastParsed,
		LastGenerated: f.LastGenerated,
		Includes:      f.Includes,
	}
	for _, c := range f.Classes {
		r.Classes = append(r.Classes, classToRecord(c))
	}
	return r
}

func classToRecord(c *model.Class) classRecord {
	r := classRecord{
		ID:        c.ID,
		Name:      c.Name,
		Namespace: c.Namespace,
		Tags:      c.Tags,
		Bases:     c.Bases,
		DeepBases: c.SortedDeepBases(),
		Abstract:  c.Abstract,
	}
	for _, m := range c.Methods {
		r.Methods = append(r.Methods, methodRecord{
			ID: m.ID, Name: m.Name, ReturnType: m.ReturnType, Tags: m.Tags,
			Arguments: argsToRecords(m.Arguments),
		})
	}
	for _, ctor := range c.Constructors {
		r.Constructors = append(r.Constructors, constructorRecord{
			ID: ctor.ID, Name: ctor.Name, Tags: ctor.Tags,
			Arguments: argsToRecords(ctor.Arguments),
		})
	}
	for _, v := range c.Variables {
		r.Variables = append(r.Variables, variableRecord{ID: v.ID, Name: v.Name, Type: v.Type, Tags: v.Tags})
	}
	return r
}

func argsToRecords(args model.Arguments) []argumentRecord {
	out := make([]argumentRecord, len(args))
	for i, a := range args {
		out[i] = argumentRecord{Name: a.Name, Type: a.Type}
	}
	return out
}

func fileFromRecord(r fileRecord) *model.HeaderFile {
	f := &model.HeaderFile{
		FullPath:      r.FullPath,
		RelativePath:  r.RelativePath,
		LastParsed:    r.LastParsed,
		LastGenerated: r.LastGenerated,
		Includes:      r.Includes,
	}
	for _, cr := range r.Classes {
		f.Classes = append(f.Classes, classFromRecord(cr))
	}
	return f
}

func classFromRecord(r classRecord) *model.Class {
	c := &model.Class{
		Symbol:    model.Symbol{ID: r.ID, Tags: tagsOf(r.Tags)},
		Name:      r.Name,
		Namespace: r.Namespace,
		Bases:     r.Bases,
		DeepBases: make(map[string]struct{}, len(r.DeepBases)),
		Abstract:  r.Abstract,
	}
	for _, b := range r.DeepBases {
		c.DeepBases[b] = struct{}{}
	}
	for _, m := range r.Methods {
		c.Methods = append(c.Methods, model.Method{
			Symbol:     model.Symbol{ID: m.ID, Tags: tagsOf(m.Tags)},
			Name:       m.Name,
			ReturnType: m.ReturnType,
			Arguments:  argsFromRecords(m.Arguments),
		})
	}
	for _, ctor := range r.Constructors {
		c.Constructors = append(c.Constructors, model.Constructor{
			Symbol:    model.Symbol{ID: ctor.ID, Tags: tagsOf(ctor.Tags)},
			Name:      ctor.Name,
			Arguments: argsFromRecords(ctor.Arguments),
		})
	}
	for _, v := range r.Variables {
		c.Variables = append(c.Variables, model.Variable{
			Symbol: model.Symbol{ID: v.ID, Tags: tagsOf(v.Tags)},
			Name:   v.Name,
			Type:   v.Type,
		})
	}
	return c
}

func argsFromRecords(rs []argumentRecord) model.Arguments {
	if len(rs) == 0 {
		return nil
	}
	out := make(model.Arguments, len(rs))
	for i, r := range rs {
		out[i] = model.Argument{Name: r.Name, Type: r.Type}
	}
	return out
}

func tagsOf(m map[string]string) tags.Tags {
	t := tags.Tags{}
	for k, v := range m {
		t[k] = v
	}
	return t
}
