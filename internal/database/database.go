// Package database tracks the headers of one target between runs: their
// timestamps, extracted classes and include lists, persisted as a single
// compressed snapshot in the target's cache directory.
package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/phobologic/scg/internal/discover"
	"github.com/phobologic/scg/internal/logging"
	"github.com/phobologic/scg/internal/model"
)

// FileName is the snapshot's name inside the cache directory.
const FileName = "db.bin"

// DefaultRootType is the class every reflectable type derives from.
const DefaultRootType = "e2::Object"

var (
	// ErrNoDatabase is returned by Load when no usable snapshot exists.
	ErrNoDatabase = errors.New("no existing database")
	// ErrReadOnly is returned by Save on a read-only database.
	ErrReadOnly = errors.New("database is read-only")
	// ErrSchemaMismatch marks a snapshot written with another layout or root type.
	ErrSchemaMismatch = errors.New("snapshot schema mismatch")
)

// Database is the per-target header cache.
type Database struct {
	cacheDir   string
	sourceRoot string
	readOnly   bool

	rootType    string
	toolVersion string
	runID       string
	scan        discover.Options
	log         *slog.Logger

	files   []*model.HeaderFile
	byPath  map[string]*model.HeaderFile
	classes map[string]*model.Class
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(db *Database) { db.log = logging.OrDiscard(l) }
}

// WithRootType sets the reflectable root type.
func WithRootType(fqn string) Option {
	return func(db *Database) {
		if fqn != "" {
			db.rootType = fqn
		}
	}
}

// WithToolVersion records the generator version in saved snapshots.
func WithToolVersion(v string) Option {
	return func(db *Database) { db.toolVersion = v }
}

// WithRunID records the run identifier in saved snapshots.
func WithRunID(id string) Option {
	return func(db *Database) { db.runID = id }
}

// WithScanOptions sets how the source tree is scanned for headers.
func WithScanOptions(opts discover.Options) Option {
	return func(db *Database) { db.scan = opts }
}

// Open prepares a database rooted at cacheDir for the sources under
// sourceRoot. In write mode the cache directory is created.
func Open(cacheDir, sourceRoot string, readOnly bool, opts ...Option) (*Database, error) {
	db := &Database{
		cacheDir:   discover.CleanPath(cacheDir),
		sourceRoot: discover.CleanPath(sourceRoot),
		readOnly:   readOnly,
		rootType:   DefaultRootType,
		log:        logging.Discard(),
		byPath:     map[string]*model.HeaderFile{},
		classes:    map[string]*model.Class{},
	}
	for _, o := range opts {
		o(db)
	}
	if !readOnly {
		if err := os.MkdirAll(db.cacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}
	return db, nil
}

// CacheDir returns the cache directory.
func (db *Database) CacheDir() string { return db.cacheDir }

// SourceRoot returns the source root.
func (db *Database) SourceRoot() string { return db.sourceRoot }

// ReadOnly reports whether the database can be saved.
func (db *Database) ReadOnly() bool { return db.readOnly }

// RootType returns the reflectable root type.
func (db *Database) RootType() string { return db.rootType }

// Path returns the snapshot path.
func (db *Database) Path() string { return filepath.Join(db.cacheDir, FileName) }

// Files returns the tracked files in database order.
func (db *Database) Files() []*model.HeaderFile { return db.files }

// Load reads the snapshot. A missing, corrupt or incompatible snapshot
// leaves the database empty and returns an error wrapping ErrNoDatabase.
// In write mode deleted files are then pruned and untracked headers under
// the source root are added as never parsed.
func (db *Database) Load() error {
	loadErr := db.read()
	if loadErr != nil {
		db.files = nil
		db.byPath = map[string]*model.HeaderFile{}
		if errors.Is(loadErr, fs.ErrNotExist) {
			db.log.Info("no existing database", slog.String("path", db.Path()))
			loadErr = ErrNoDatabase
		} else {
			db.log.Warn("ignoring unusable database", slog.String("path", db.Path()), slog.Any("error", loadErr))
			loadErr = fmt.Errorf("%w: %w", ErrNoDatabase, loadErr)
		}
	}

	if !db.readOnly {
		db.prune()
		if err := db.scanSources(); err != nil {
			return err
		}
	}
	db.Reindex()
	return loadErr
}

func (db *Database) read() error {
	data, err := os.ReadFile(db.Path())
	if err != nil {
		return err
	}
	snap, err := decode(data)
	if err != nil {
		return err
	}
	if snap.Header.RootType != db.rootType {
		return fmt.Errorf("%w: root type %q, want %q", ErrSchemaMismatch, snap.Header.RootType, db.rootType)
	}

	db.files = make([]*model.HeaderFile, 0, len(snap.Files))
	db.byPath = make(map[string]*model.HeaderFile, len(snap.Files))
	for _, r := range snap.Files {
		f := fileFromRecord(r)
		if _, dup := db.byPath[f.FullPath]; dup {
			continue
		}
		db.files = append(db.files, f)
		db.byPath[f.FullPath] = f
	}
	return nil
}

func (db *Database) prune() {
	kept := db.files[:0]
	for _, f := range db.files {
		if f.Exists() {
			kept = append(kept, f)
			continue
		}
		db.log.Debug("pruning deleted file", slog.String("file", f.RelativePath))
		delete(db.byPath, f.FullPath)
	}
	db.files = kept
}

func (db *Database) scanSources() error {
	opts := db.scan
	opts.Exclude = append(append([]string(nil), opts.Exclude...), db.cacheDir)
	entries, err := discover.Headers(db.sourceRoot, opts)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", db.sourceRoot, err)
	}
	for _, e := range entries {
		if _, ok := db.byPath[e.Path]; ok {
			continue
		}
		f := model.NewHeaderFile(e.Path, e.Relative)
		db.files = append(db.files, f)
		db.byPath[f.FullPath] = f
	}
	return nil
}

// Reindex rebuilds the class index from the files list. When two files
// define the same FQN the later file wins.
func (db *Database) Reindex() {
	db.classes = map[string]*model.Class{}
	for _, f := range db.files {
		for _, c := range f.Classes {
			db.classes[c.FQN()] = c
		}
	}
}

// Save writes the snapshot atomically.
func (db *Database) Save() error {
	if db.readOnly {
		return ErrReadOnly
	}
	snap := &snapshot{
		Header: header{
			SchemaVersion: SchemaVersion,
			ToolVersion:   db.toolVersion,
			RunID:         db.runID,
			SavedAt:       time.Now().UTC(),
			RootType:      db.rootType,
		},
		Files: make([]fileRecord, 0, len(db.files)),
	}
	for _, f := range db.files {
		snap.Files = append(snap.Files, fileToRecord(f))
	}
	data, err := encode(snap)
	if err != nil {
		return err
	}
	return writeAtomic(db.Path(), data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("database: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".scg-tmp-*")
	if err != nil {
		return fmt.Errorf("database: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("database: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("database: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("database: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("database: rename: %w", err)
	}
	success = true
	return nil
}

// Lookup returns the indexed class with the given FQN.
func (db *Database) Lookup(fqn string) (*model.Class, bool) {
	c, ok := db.classes[fqn]
	return c, ok
}

// File returns the tracked file at path.
func (db *Database) File(path string) (*model.HeaderFile, bool) {
	f, ok := db.byPath[discover.CleanPath(path)]
	return f, ok
}

// ResolveFile returns the tracked file at path, tracking it as never parsed
// if it is unknown. Read-only databases only look up.
func (db *Database) ResolveFile(path string) (*model.HeaderFile, bool) {
	full := discover.CleanPath(path)
	if f, ok := db.byPath[full]; ok {
		return f, true
	}
	if db.readOnly {
		return nil, false
	}
	rel, err := filepath.Rel(db.sourceRoot, full)
	if err != nil {
		rel = filepath.Base(full)
	}
	f := model.NewHeaderFile(full, rel)
	db.files = append(db.files, f)
	db.byPath[full] = f
	return f, true
}

// Replace installs a fresh parse of f: its previous classes leave the index,
// the new ones enter it and LastParsed is stamped.
func (db *Database) Replace(f *model.HeaderFile, classes []*model.Class, includes []string, parsedAt time.Time) {
	for _, old := range f.Classes {
		if cur, ok := db.classes[old.FQN()]; ok && cur == old {
			delete(db.classes, old.FQN())
		}
	}
	f.Classes = classes
	f.Includes = includes
	f.LastParsed = parsedAt
	for _, c := range classes {
		db.classes[c.FQN()] = c
	}
}

// MarkGenerated stamps LastGenerated.
func (db *Database) MarkGenerated(f *model.HeaderFile, at time.Time) {
	f.LastGenerated = at
}

// NeedsParse reports whether f changed on disk since it was last parsed.
// A file missing from disk does not need parsing.
func (db *Database) NeedsParse(f *model.HeaderFile) bool {
	mt, err := f.LastModified()
	if err != nil {
		return false
	}
	return mt.After(f.LastParsed)
}

// HasManagedObjects reports whether any class of f derives from the root type.
func (db *Database) HasManagedObjects(f *model.HeaderFile) bool {
	for _, c := range f.Classes {
		if c.DerivesFrom(db.rootType) {
			return true
		}
	}
	return false
}

// NeedsGeneration reports whether f was parsed after its companion files
// were last generated and has something to generate.
func (db *Database) NeedsGeneration(f *model.HeaderFile) bool {
	return f.LastParsed.After(f.LastGenerated) && db.HasManagedObjects(f)
}

// ReflectableCount returns the number of reflectable classes defined in f.
func (db *Database) ReflectableCount(f *model.HeaderFile) int {
	return len(f.Reflectable(db.rootType))
}
