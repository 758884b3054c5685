// Package pipeline runs one incremental generation pass over a target:
// pre-parse, wave ordering, per-wave parse and resolution, emission and
// persistence.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phobologic/scg/internal/database"
	"github.com/phobologic/scg/internal/discover"
	"github.com/phobologic/scg/internal/emit"
	scgerrors "github.com/phobologic/scg/internal/errors"
	"github.com/phobologic/scg/internal/graph"
	"github.com/phobologic/scg/internal/jobs"
	"github.com/phobologic/scg/internal/logging"
	"github.com/phobologic/scg/internal/model"
	"github.com/phobologic/scg/internal/parse"
)

// GeneratorDefine is defined for every parse so headers can tell a
// generator pass from a compile. Target options may undefine it with -U.
const GeneratorDefine = "E2_SCG"

// DefaultStripMacros are blanked from every header before parsing. The
// target's API define is added to them.
var DefaultStripMacros = []string{"ObjectDeclaration", "E2_CLASS_DECLARATION"}

// Target is one generation target as handed over by the build layer.
type Target struct {
	// SourceDir is scanned for headers.
	SourceDir string
	// CacheDir holds the database and generated files.
	CacheDir string
	// Options are compile options such as -I and -D flags.
	Options     []string
	IncludeDirs []string
	Defines     map[string]string
	// StripMacros replaces DefaultStripMacros when set.
	StripMacros []string
	// Dependencies are the cache directories of targets this one builds on,
	// consulted in order when resolving bases.
	Dependencies []string
	APIDefine    string
	Types        emit.Types
	Extensions   []string
	// MaxWaves caps wave construction; graph.DefaultMaxRounds when zero.
	MaxWaves int
	// Workers overrides jobs.PoolSize.
	Workers     int
	ToolVersion string
	Logger      *slog.Logger
}

// Report summarises a run.
type Report struct {
	RunID       string
	Tracked     int
	Stale       int
	Parsed      int
	Invalid     int
	Generated   int
	Unscheduled int
	Waves       int
	// Collisions counts stale headers whose generated paths another stale
	// header already claims.
	Collisions int
	// Written counts generated files whose content changed.
	Written             int
	MissingDependencies []string
	Duration            time.Duration
}

func (r *Report) String() string {
	return fmt.Sprintf("%d tracked, %d stale, %d parsed, %d invalid, %d generated (%d files written), %d unscheduled in %d waves (%s)",
		r.Tracked, r.Stale, r.Parsed, r.Invalid, r.Generated, r.Written, r.Unscheduled, r.Waves, r.Duration.Round(time.Millisecond))
}

type runner struct {
	t         Target
	log       *slog.Logger
	db        *database.Database
	externals []graph.Index
	extractor *parse.Extractor
	emitter   *emit.Emitter
	report    *Report
}

// Run executes one generation pass. Nothing is saved when a task fails or
// ctx is cancelled.
func Run(ctx context.Context, t Target) (*Report, error) {
	start := time.Now()
	if t.Types.Root == "" || t.Types.Managed == "" {
		def := emit.DefaultTypes()
		if t.Types.Root == "" {
			t.Types.Root = def.Root
		}
		if t.Types.Managed == "" {
			t.Types.Managed = def.Managed
		}
	}
	t.SourceDir = discover.CleanPath(t.SourceDir)
	t.CacheDir = discover.CleanPath(t.CacheDir)

	report := &Report{RunID: uuid.NewString()}
	r := &runner{
		t:       t,
		log:     logging.OrDiscard(t.Logger).With(slog.String("run_id", report.RunID)),
		emitter: &emit.Emitter{CacheDir: t.CacheDir, Types: t.Types, APIDefine: t.APIDefine},
		report:  report,
	}

	opts := r.parseOptions()
	r.log.Debug("compile options",
		slog.String("source", t.SourceDir),
		slog.String("cache", t.CacheDir),
		slog.String("include_dirs", strings.Join(opts.IncludeDirs, " ")),
		slog.Int("defines", len(opts.Defines)),
		slog.String("strip_macros", strings.Join(opts.StripMacros, " ")))

	var err error
	if r.extractor, err = parse.NewExtractor(opts); err != nil {
		return nil, scgerrors.Wrap(scgerrors.Internal, "creating extractor", err)
	}
	if err := r.loadDependencies(); err != nil {
		return nil, err
	}
	if err := r.loadDatabase(); err != nil {
		return nil, err
	}

	if err := r.generate(ctx); err != nil {
		return nil, err
	}

	if err := r.db.Save(); err != nil {
		return nil, scgerrors.Wrap(scgerrors.Internal, "saving database", err)
	}
	report.Duration = time.Since(start)
	r.log.Info("generation complete",
		slog.Int("parsed", report.Parsed),
		slog.Int("generated", report.Generated),
		slog.Int("written", report.Written),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// parseOptions merges the target's compile options over the generator
// defaults. The generated include directory is always searched so headers
// can include their own .generated.hpp.
func (r *runner) parseOptions() parse.Options {
	base := []string{"-std=c++20", "-D" + GeneratorDefine}
	opts := parse.ParseOptions(append(base, r.t.Options...))
	opts.IncludeDirs = append(opts.IncludeDirs, r.t.IncludeDirs...)
	opts.IncludeDirs = append(opts.IncludeDirs, filepath.Join(r.t.CacheDir, "include"))
	for k, v := range r.t.Defines {
		opts.Defines[k] = v
	}

	strip := r.t.StripMacros
	if len(strip) == 0 {
		strip = DefaultStripMacros
	}
	opts.StripMacros = append([]string(nil), strip...)
	if r.t.APIDefine != "" && !contains(opts.StripMacros, r.t.APIDefine) {
		opts.StripMacros = append(opts.StripMacros, r.t.APIDefine)
	}
	return opts
}

func (r *runner) loadDependencies() error {
	for _, dir := range r.t.Dependencies {
		dep, err := database.Open(dir, "", true, database.WithLogger(r.log), database.WithRootType(r.t.Types.Root))
		if err != nil {
			return scgerrors.Wrap(scgerrors.Internal, "opening dependency "+dir, err)
		}
		if err := dep.Load(); err != nil {
			if !stderrors.Is(err, database.ErrNoDatabase) {
				return scgerrors.Wrap(scgerrors.Internal, "loading dependency "+dir, err)
			}
			r.log.Warn("dependency not yet generated",
				slog.String("code", string(scgerrors.DependencyNotGenerated)),
				slog.String("cache", dir))
			r.report.MissingDependencies = append(r.report.MissingDependencies, dir)
		}
		r.externals = append(r.externals, dep)
	}
	return nil
}

func (r *runner) loadDatabase() error {
	db, err := database.Open(r.t.CacheDir, r.t.SourceDir, false,
		database.WithLogger(r.log),
		database.WithRootType(r.t.Types.Root),
		database.WithToolVersion(r.t.ToolVersion),
		database.WithRunID(r.report.RunID),
		database.WithScanOptions(discover.Options{Extensions: r.t.Extensions}))
	if err != nil {
		return scgerrors.Wrap(scgerrors.Internal, "opening database", err)
	}
	if err := db.Load(); err != nil && !stderrors.Is(err, database.ErrNoDatabase) {
		return scgerrors.Wrap(scgerrors.Internal, "loading database", err)
	}
	r.db = db
	return nil
}

func (r *runner) generate(ctx context.Context) error {
	var stale []*model.HeaderFile
	for _, f := range r.db.Files() {
		if r.db.NeedsParse(f) {
			stale = append(stale, f)
		}
	}
	r.report.Tracked = len(r.db.Files())
	r.report.Stale = len(stale)
	r.log.Info("loaded database",
		slog.Int("tracked", r.report.Tracked),
		slog.Int("stale", r.report.Stale),
		slog.Int("dependencies", len(r.externals)))

	r.warnCollisions(stale)
	if err := r.preparse(ctx, stale); err != nil {
		return err
	}

	plan := graph.Waves(stale, r.t.MaxWaves)
	r.report.Waves = len(plan.Waves)
	r.report.Unscheduled = len(plan.Unscheduled)
	if len(plan.Unscheduled) > 0 {
		names := make([]string, len(plan.Unscheduled))
		for i, f := range plan.Unscheduled {
			names[i] = f.RelativePath
		}
		r.log.Warn("include cycle or wave limit reached, skipping files",
			slog.String("code", string(scgerrors.IncludeCycle)),
			slog.String("files", strings.Join(names, ", ")))
	}

	resolver := graph.NewResolver(r.db, r.externals...)
	for i, wave := range plan.Waves {
		if err := r.runWave(ctx, i, wave, resolver); err != nil {
			return err
		}
	}

	data := emit.NewInitData(r.db.Files(), r.db.HasManagedObjects, r.t.Types)
	wrote, err := r.emitter.WriteInit(data)
	if err != nil {
		return scgerrors.Wrap(scgerrors.Internal, "writing init listing", err)
	}
	if wrote {
		r.report.Written++
	}
	return nil
}

// preparse collects the include graph of every stale file.
func (r *runner) preparse(ctx context.Context, stale []*model.HeaderFile) error {
	for _, f := range stale {
		if _, err := emit.EnsureStub(emit.PathsFor(r.t.CacheDir, f).Header); err != nil {
			return scgerrors.Wrap(scgerrors.Internal, "creating generated header stub", err)
		}
	}

	results := make([]*parse.Result, len(stale))
	err := jobs.ForEach(ctx, r.t.Workers, stale, func(ctx context.Context, i int, f *model.HeaderFile) error {
		res, err := r.extractor.Parse(ctx, f.FullPath, true)
		if err != nil {
			return err
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return scgerrors.Wrap(scgerrors.TaskFailed, "pre-parse failed", err)
	}

	for i, f := range stale {
		f.Includes = results[i].Includes
	}
	return nil
}

func (r *runner) runWave(ctx context.Context, index int, wave []*model.HeaderFile, resolver *graph.Resolver) error {
	log := r.log.With(slog.Int("wave", index))
	log.Debug("parsing wave", slog.Int("files", len(wave)))

	results := make([]*parse.Result, len(wave))
	err := jobs.ForEach(ctx, r.t.Workers, wave, func(ctx context.Context, i int, f *model.HeaderFile) error {
		res, err := r.extractor.Parse(ctx, f.FullPath, false)
		if err != nil {
			return err
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return scgerrors.Wrap(scgerrors.TaskFailed, fmt.Sprintf("parsing wave %d failed", index), err)
	}

	var valid []*model.HeaderFile
	for i, f := range wave {
		res := results[i]
		if !res.Valid {
			r.report.Invalid++
			log.Warn("header has errors, skipping",
				slog.String("code", string(scgerrors.ParseInvalid)),
				slog.String("file", f.RelativePath))
			r.logDiagnostics(res.Diagnostics)
			continue
		}
		r.logDiagnostics(res.Diagnostics)
		r.db.Replace(f, res.Classes, res.Includes, time.Now())
		r.report.Parsed++
		valid = append(valid, f)
	}

	var pending []*model.HeaderFile
	for _, f := range valid {
		for _, c := range f.Classes {
			resolver.Resolve(c)
		}
		if r.db.NeedsGeneration(f) {
			pending = append(pending, f)
		}
	}

	written := make([]int, len(pending))
	gen := func(_ context.Context, _ int, i int) error {
		res, err := r.emitter.Generate(pending[i])
		if err != nil {
			return err
		}
		written[i] = res.Written
		return nil
	}
	first, rest := splitCollisions(r.t.CacheDir, pending)
	err = jobs.ForEach(ctx, r.t.Workers, first, gen)
	for _, i := range rest {
		if err != nil {
			break
		}
		err = gen(ctx, 0, i)
	}
	if err != nil {
		return scgerrors.Wrap(scgerrors.TaskFailed, fmt.Sprintf("generating wave %d failed", index), err)
	}

	for i, f := range pending {
		r.db.MarkGenerated(f, time.Now())
		r.report.Generated++
		r.report.Written += written[i]
		log.Debug("generated", slog.String("file", f.RelativePath), slog.Int("classes", r.db.ReflectableCount(f)))
	}
	return nil
}

// warnCollisions logs stale headers that share a basename and so overwrite
// each other's generated files.
func (r *runner) warnCollisions(files []*model.HeaderFile) {
	owners := make(map[string]string, len(files))
	for _, f := range files {
		out := emit.PathsFor(r.t.CacheDir, f).Header
		if other, ok := owners[out]; ok {
			r.report.Collisions++
			r.log.Warn("headers share generated output",
				slog.String("code", string(scgerrors.OutputCollision)),
				slog.String("file", f.RelativePath),
				slog.String("other", other),
				slog.String("output", out))
			continue
		}
		owners[out] = f.RelativePath
	}
}

// splitCollisions returns the indexes of files that can be generated
// concurrently and, in order, those whose outputs an earlier file already
// claims. The latter run one at a time after the former.
func splitCollisions(cacheDir string, files []*model.HeaderFile) (first, rest []int) {
	claimed := make(map[string]struct{}, len(files))
	for i, f := range files {
		out := emit.PathsFor(cacheDir, f).Header
		if _, ok := claimed[out]; ok {
			rest = append(rest, i)
			continue
		}
		claimed[out] = struct{}{}
		first = append(first, i)
	}
	return first, rest
}

func (r *runner) logDiagnostics(diags []parse.Diagnostic) {
	for _, d := range diags {
		if d.Severity >= parse.Warning {
			r.log.Warn(d.String())
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
