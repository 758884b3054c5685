// scg generates static reflection sources for annotated C++ headers.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/phobologic/scg/internal/config"
	"github.com/phobologic/scg/internal/database"
	"github.com/phobologic/scg/internal/emit"
	scgerrors "github.com/phobologic/scg/internal/errors"
	"github.com/phobologic/scg/internal/logging"
	"github.com/phobologic/scg/internal/pipeline"
	"github.com/phobologic/scg/internal/toon"
	"github.com/phobologic/scg/internal/watch"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "scg",
		Short:         "Generate static reflection sources for annotated C++ headers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd.Context(), g)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("scg {{.Version}}\n")

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config file (default ./"+config.FileName+")")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "generate",
			Short: "Parse stale headers and regenerate their reflection sources",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runGenerate(cmd.Context(), g)
			},
		},
		newInspectCmd(g),
		newWatchCmd(g),
		newInitCmd(g),
	)
	return root
}

// load reads the configuration and builds the logger it describes.
func (g *globals) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
		if err := cfg.Log.Validate(); err != nil {
			return nil, nil, scgerrors.Wrap(scgerrors.InvalidConfig, "invalid --log-level", err)
		}
	}
	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
		Output: g.stderr,
	})
	return cfg, logger, nil
}

func targetFor(cfg *config.Config, logger *slog.Logger) pipeline.Target {
	return pipeline.Target{
		SourceDir:    cfg.SourceDir,
		CacheDir:     cfg.CacheDir,
		Options:      cfg.CompileOptions(),
		IncludeDirs:  cfg.IncludeDirs,
		StripMacros:  cfg.StripMacros,
		Dependencies: cfg.Dependencies,
		APIDefine:    cfg.APIDefine,
		Types:        emit.Types{Root: cfg.RootType, Managed: cfg.ManagedType},
		Extensions:   cfg.Extensions,
		MaxWaves:     cfg.MaxWaves,
		Workers:      cfg.Workers,
		ToolVersion:  version,
		Logger:       logger,
	}
}

func runGenerate(ctx context.Context, g *globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	report, err := pipeline.Run(ctx, targetFor(cfg, logger))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.stdout, "scg: %s\n", report)
	return nil
}

func newInspectCmd(g *globals) *cobra.Command {
	var cacheDir string

	cmd := &cobra.Command{
		Use:   "inspect [header...]",
		Short: "Print a target's header database as TOON",
		Long: `Load a cache directory read-only and print its tracked files, classes,
members and resolved bases in TOON format. With header arguments only those
files are reported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			if cacheDir == "" {
				cacheDir = cfg.CacheDir
			}

			db, err := database.Open(cacheDir, cfg.SourceDir, true,
				database.WithLogger(logger), database.WithRootType(cfg.RootType))
			if err != nil {
				return err
			}
			if err := db.Load(); err != nil {
				if stderrors.Is(err, database.ErrNoDatabase) {
					return scgerrors.Wrap(scgerrors.NoDatabase, "no database in "+cacheDir, err)
				}
				return err
			}

			files := db.Files()
			if len(args) > 0 {
				files = nil
				for _, a := range args {
					f, ok := db.ResolveFile(a)
					if !ok {
						return fmt.Errorf("%s is not tracked in %s", a, cacheDir)
					}
					files = append(files, f)
				}
			}

			_, _ = fmt.Fprintln(g.stdout, toon.Encode(&toon.Inventory{
				Cache:    db.CacheDir(),
				Source:   db.SourceRoot(),
				RootType: db.RootType(),
				Files:    files,
			}))
			return nil
		},
	}
	cmd.Flags().StringVar(&cacheDir, "cache", "", "cache directory to inspect (default from config)")
	return cmd
}

func newWatchCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Generate, then regenerate whenever headers change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			target := targetFor(cfg, logger)

			generate := func(ctx context.Context) error {
				report, err := pipeline.Run(ctx, target)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(g.stdout, "scg: %s\n", report)
				return nil
			}
			if err := generate(cmd.Context()); err != nil {
				return err
			}

			return watch.Watch(cmd.Context(), watch.Options{
				Root:       cfg.SourceDir,
				Exclude:    []string{cfg.CacheDir},
				Extensions: cfg.Extensions,
				Logger:     logger,
			}, func(ctx context.Context, changed []string) error {
				logger.Info("headers changed, regenerating", slog.Int("count", len(changed)))
				return generate(ctx)
			})
		},
	}
}
