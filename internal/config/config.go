// Package config loads and validates scg configuration from scg.toml and
// SCG_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	scgerrors "github.com/phobologic/scg/internal/errors"
	"github.com/phobologic/scg/internal/graph"
	"github.com/phobologic/scg/internal/pipeline"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "scg.toml"

// EnvPrefix prefixes environment overrides, e.g. SCG_CACHE_DIR.
const EnvPrefix = "SCG"

// Config is the configuration of one generation target. Defines are NAME or
// NAME=VALUE entries, a list rather than a table because viper folds table
// keys to lower case.
type Config struct {
	SourceDir    string    `mapstructure:"source_dir" toml:"source_dir"`
	CacheDir     string    `mapstructure:"cache_dir" toml:"cache_dir"`
	Options      []string  `mapstructure:"options" toml:"options"`
	IncludeDirs  []string  `mapstructure:"include_dirs" toml:"include_dirs"`
	Defines      []string  `mapstructure:"defines" toml:"defines"`
	Dependencies []string  `mapstructure:"dependencies" toml:"dependencies"`
	APIDefine    string    `mapstructure:"api_define" toml:"api_define"`
	RootType     string    `mapstructure:"root_type" toml:"root_type"`
	ManagedType  string    `mapstructure:"managed_type" toml:"managed_type"`
	Extensions   []string  `mapstructure:"extensions" toml:"extensions"`
	StripMacros  []string  `mapstructure:"strip_macros" toml:"strip_macros"`
	MaxWaves     int       `mapstructure:"max_waves" toml:"max_waves"`
	Workers      int       `mapstructure:"workers" toml:"workers,omitempty"`
	Log          LogConfig `mapstructure:"log" toml:"log"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" toml:"level"`
	Format string `mapstructure:"format" toml:"format"`
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Format, validation.Required, validation.In("text", "json")),
	)
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		SourceDir:   "src",
		CacheDir:    filepath.Join("build", "scg"),
		APIDefine:   "E2_API",
		RootType:    "e2::Object",
		ManagedType: "e2::ManagedObject",
		StripMacros: append([]string(nil), pipeline.DefaultStripMacros...),
		MaxWaves:    graph.DefaultMaxRounds,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks required paths, bounds and enumerations.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.SourceDir, validation.Required),
		validation.Field(&c.CacheDir, validation.Required),
		validation.Field(&c.RootType, validation.Required),
		validation.Field(&c.ManagedType, validation.Required),
		validation.Field(&c.MaxWaves, validation.Min(1), validation.Max(64)),
		validation.Field(&c.Workers, validation.Min(0), validation.Max(256)),
		validation.Field(&c.Extensions, validation.Each(validation.By(isExtension))),
	); err != nil {
		return scgerrors.Wrap(scgerrors.InvalidConfig, "invalid configuration", err)
	}
	if err := c.Log.Validate(); err != nil {
		return scgerrors.Wrap(scgerrors.InvalidConfig, "invalid log configuration", err)
	}
	if filepath.Clean(c.SourceDir) == filepath.Clean(c.CacheDir) {
		return scgerrors.New(scgerrors.InvalidConfig, "cache_dir must differ from source_dir")
	}
	return nil
}

func isExtension(value any) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, ".") || len(s) < 2 {
		return errors.New("must start with a dot, e.g. .hpp")
	}
	return nil
}

// Load reads path, or scg.toml in the working directory when path is empty,
// applies SCG_ environment overrides and validates the result. A missing
// scg.toml yields the defaults; a missing explicit path is an error.
// Relative paths are resolved against the configuration file's directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	base := "."
	if used := v.ConfigFileUsed(); used != "" {
		base = filepath.Dir(used)
	}
	if err := cfg.Resolve(base); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("source_dir", d.SourceDir)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("options", d.Options)
	v.SetDefault("include_dirs", d.IncludeDirs)
	v.SetDefault("defines", d.Defines)
	v.SetDefault("dependencies", d.Dependencies)
	v.SetDefault("api_define", d.APIDefine)
	v.SetDefault("root_type", d.RootType)
	v.SetDefault("managed_type", d.ManagedType)
	v.SetDefault("extensions", d.Extensions)
	v.SetDefault("strip_macros", d.StripMacros)
	v.SetDefault("max_waves", d.MaxWaves)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Resolve makes the directory settings absolute relative to base.
func (c *Config) Resolve(base string) error {
	abs, err := filepath.Abs(base)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", base, err)
	}
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(abs, p)
	}
	c.SourceDir = resolve(c.SourceDir)
	c.CacheDir = resolve(c.CacheDir)
	for i, d := range c.IncludeDirs {
		c.IncludeDirs[i] = resolve(d)
	}
	for i, d := range c.Dependencies {
		c.Dependencies[i] = resolve(d)
	}
	return nil
}

// CompileOptions returns Options followed by one -D flag per define.
func (c *Config) CompileOptions() []string {
	out := append([]string(nil), c.Options...)
	for _, d := range c.Defines {
		out = append(out, "-D"+d)
	}
	return out
}

// Write encodes cfg as TOML to path, failing if path already exists.
func Write(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
