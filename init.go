package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/scg/internal/config"
)

const (
	sentinelStart = "# scg:start"
	sentinelEnd   = "# scg:end"
)

// newInitCmd implements `scg init`, which writes a starter scg.toml and keeps
// the cache directory listed in .gitignore.
func newInitCmd(g *globals) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter " + config.FileName + " and ignore the cache directory",
		Long: `Write a starter ` + config.FileName + ` to dir (default .) unless one exists,
and add the cache directory to dir/.gitignore. The .gitignore entry is wrapped
in sentinel comments so it can be updated in place on subsequent runs without
touching surrounding content.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(g, dir, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying any file")
	return cmd
}

func runInit(g *globals, dir string, dryRun bool) error {
	cfgPath := filepath.Join(dir, config.FileName)

	cfg := config.DefaultConfig()
	exists := false
	if _, err := os.Stat(cfgPath); err == nil {
		exists = true
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	cacheRel, err := relativeTo(dir, cfg.CacheDir)
	if err != nil {
		return err
	}

	ignorePath := filepath.Join(dir, ".gitignore")
	existing, err := os.ReadFile(ignorePath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", ignorePath, err)
	}
	updated := applySection(string(existing), generateSection(cacheRel))

	if dryRun {
		if !exists {
			_, _ = fmt.Fprintf(g.stdout, "would write %s\n", cfgPath)
		}
		_, _ = fmt.Fprint(g.stdout, updated)
		return nil
	}

	if exists {
		_, _ = fmt.Fprintf(g.stderr, "keeping existing %s\n", cfgPath)
	} else {
		if err := config.Write(cfgPath, cfg); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.stderr, "wrote %s\n", cfgPath)
	}

	if err := os.WriteFile(ignorePath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ignorePath, err)
	}
	_, _ = fmt.Fprintf(g.stderr, "wrote scg section to %s\n", ignorePath)
	return nil
}

// relativeTo returns path relative to dir with forward slashes. Relative
// paths are taken as already relative to dir.
func relativeTo(dir, path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	rel, err := filepath.Rel(absDir, path)
	if err != nil {
		return "", fmt.Errorf("relating %s to %s: %w", path, dir, err)
	}
	return filepath.ToSlash(rel), nil
}

// generateSection returns the sentinel-wrapped .gitignore block.
func generateSection(cacheDir string) string {
	body := "# Generated by scg: reflection database and sources.\n/" + strings.TrimPrefix(cacheDir, "/") + "/"
	return sentinelStart + "\n" + body + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if len(content) == 0 {
		return section + "\n"
	}
	return content + "\n" + section + "\n"
}
