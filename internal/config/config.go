package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"codekb/internal/lang"
	"codekb/internal/paths"
)

// CurrentVersion is the config schema version this build understands.
const CurrentVersion = 1

// Config represents the complete codekb configuration
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot"`

	Parser     ParserConfig     `json:"parser" mapstructure:"parser"`
	Resolver   ResolverConfig   `json:"resolver" mapstructure:"resolver"`
	Discovery  DiscoveryConfig  `json:"discovery" mapstructure:"discovery"`
	Exclusions ExclusionsConfig `json:"exclusions" mapstructure:"exclusions"`
	Index      IndexConfig      `json:"index" mapstructure:"index"`
	KB         KBConfig         `json:"kb" mapstructure:"kb"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// ParserConfig controls the source parser
type ParserConfig struct {
	MaxFileSizeBytes int      `json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	MaxDepth         int      `json:"maxDepth" mapstructure:"maxDepth"`
	Languages        []string `json:"languages" mapstructure:"languages"`
}

// ResolverConfig controls import resolution
type ResolverConfig struct {
	SourceRoots []string `json:"sourceRoots" mapstructure:"sourceRoots"`
}

// DiscoveryConfig controls file discovery caching
type DiscoveryConfig struct {
	CacheTtlSeconds int `json:"cacheTtlSeconds" mapstructure:"cacheTtlSeconds"`
	CacheSize       int `json:"cacheSize" mapstructure:"cacheSize"`
}

// ExclusionsConfig holds directory exclusion rules.
// Categories names auto-detected groups that are enabled; an empty list enables all.
type ExclusionsConfig struct {
	Always           []string `json:"always" mapstructure:"always" toml:"always"`
	Never            []string `json:"never" mapstructure:"never" toml:"never"`
	Categories       []string `json:"categories" mapstructure:"categories" toml:"categories"`
	RespectGitignore bool     `json:"respectGitignore" mapstructure:"respectGitignore" toml:"respect_gitignore"`
}

// IndexConfig controls the staleness tracker
type IndexConfig struct {
	SmallEditThreshold int  `json:"smallEditThreshold" mapstructure:"smallEditThreshold"`
	BulkThreshold      int  `json:"bulkThreshold" mapstructure:"bulkThreshold"`
	DebounceMs         int  `json:"debounceMs" mapstructure:"debounceMs"`
	RebuildOnSave      bool `json:"rebuildOnSave" mapstructure:"rebuildOnSave"`
	Workers            int  `json:"workers" mapstructure:"workers"`
}

// KBConfig controls the knowledge base emitter
type KBConfig struct {
	Enabled           bool `json:"enabled" mapstructure:"enabled"`
	ArchitectureChars int  `json:"architectureChars" mapstructure:"architectureChars"`
	SymbolsChars      int  `json:"symbolsChars" mapstructure:"symbolsChars"`
	ModulesChars      int  `json:"modulesChars" mapstructure:"modulesChars"`
	TopHubs           int  `json:"topHubs" mapstructure:"topHubs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  bool   `json:"file" mapstructure:"file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  CurrentVersion,
		RepoRoot: ".",
		Parser: ParserConfig{
			MaxFileSizeBytes: 256 * 1024,
			MaxDepth:         512,
		},
		Resolver: ResolverConfig{
			SourceRoots: []string{"src", "lib"},
		},
		Discovery: DiscoveryConfig{
			CacheTtlSeconds: 30,
			CacheSize:       16,
		},
		Exclusions: ExclusionsConfig{
			RespectGitignore: true,
		},
		Index: IndexConfig{
			SmallEditThreshold: 20,
			BulkThreshold:      50,
			DebounceMs:         750,
			RebuildOnSave:      false,
			Workers:            4,
		},
		KB: KBConfig{
			Enabled:           true,
			ArchitectureChars: 12000,
			SymbolsChars:      16000,
			ModulesChars:      8000,
			TopHubs:           15,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  true,
		},
	}
}

// setDefaults mirrors DefaultConfig into viper so partial files and env overrides merge.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("repoRoot", d.RepoRoot)
	v.SetDefault("parser.maxFileSizeBytes", d.Parser.MaxFileSizeBytes)
	v.SetDefault("parser.maxDepth", d.Parser.MaxDepth)
	v.SetDefault("parser.languages", d.Parser.Languages)
	v.SetDefault("resolver.sourceRoots", d.Resolver.SourceRoots)
	v.SetDefault("discovery.cacheTtlSeconds", d.Discovery.CacheTtlSeconds)
	v.SetDefault("discovery.cacheSize", d.Discovery.CacheSize)
	v.SetDefault("exclusions.always", d.Exclusions.Always)
	v.SetDefault("exclusions.never", d.Exclusions.Never)
	v.SetDefault("exclusions.categories", d.Exclusions.Categories)
	v.SetDefault("exclusions.respectGitignore", d.Exclusions.RespectGitignore)
	v.SetDefault("index.smallEditThreshold", d.Index.SmallEditThreshold)
	v.SetDefault("index.bulkThreshold", d.Index.BulkThreshold)
	v.SetDefault("index.debounceMs", d.Index.DebounceMs)
	v.SetDefault("index.rebuildOnSave", d.Index.RebuildOnSave)
	v.SetDefault("index.workers", d.Index.Workers)
	v.SetDefault("kb.enabled", d.KB.Enabled)
	v.SetDefault("kb.architectureChars", d.KB.ArchitectureChars)
	v.SetDefault("kb.symbolsChars", d.KB.SymbolsChars)
	v.SetDefault("kb.modulesChars", d.KB.ModulesChars)
	v.SetDefault("kb.topHubs", d.KB.TopHubs)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
}

// LoadConfig loads configuration from .codekb/config.json, applies CODEKB_*
// environment overrides and merges .codekb/exclusions.toml when present.
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(paths.StateDir(repoRoot))

	v.SetEnvPrefix("CODEKB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.mergeExclusionsFile(repoRoot); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeExclusionsFile unions the lists from exclusions.toml into the config.
func (c *Config) mergeExclusionsFile(repoRoot string) error {
	data, err := os.ReadFile(paths.ExclusionsPath(repoRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read exclusions: %w", err)
	}

	var file struct {
		Exclusions ExclusionsConfig `toml:"exclusions"`
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return &ConfigError{Field: "exclusions.toml", Message: err.Error()}
	}

	c.Exclusions.Always = appendUnique(c.Exclusions.Always, file.Exclusions.Always...)
	c.Exclusions.Never = appendUnique(c.Exclusions.Never, file.Exclusions.Never...)
	c.Exclusions.Categories = appendUnique(c.Exclusions.Categories, file.Exclusions.Categories...)
	return nil
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}

// Save writes the configuration to .codekb/config.json
func (c *Config) Save(repoRoot string) error {
	if _, err := paths.EnsureStateDir(repoRoot); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(paths.ConfigPath(repoRoot), data, 0644)
}

// knownCategories lists the auto-detected exclusion groups.
var knownCategories = map[string]bool{
	"package-manager": true,
	"build-output":    true,
	"venv":            true,
	"cache":           true,
	"vcs":             true,
	"generated":       true,
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Parser.MaxFileSizeBytes <= 0 {
		return &ConfigError{Field: "parser.maxFileSizeBytes", Message: "must be positive"}
	}
	if c.Parser.MaxDepth <= 0 {
		return &ConfigError{Field: "parser.maxDepth", Message: "must be positive"}
	}
	for _, name := range c.Parser.Languages {
		if _, ok := lang.Parse(name); !ok {
			return &ConfigError{Field: "parser.languages", Message: "unknown language " + name}
		}
	}
	for _, cat := range c.Exclusions.Categories {
		if !knownCategories[cat] {
			return &ConfigError{Field: "exclusions.categories", Message: "unknown category " + cat}
		}
	}
	if c.Discovery.CacheTtlSeconds < 0 {
		return &ConfigError{Field: "discovery.cacheTtlSeconds", Message: "must not be negative"}
	}
	if c.Index.Workers < 1 {
		return &ConfigError{Field: "index.workers", Message: "must be at least 1"}
	}
	if c.Index.DebounceMs < 0 {
		return &ConfigError{Field: "index.debounceMs", Message: "must not be negative"}
	}
	if c.Index.SmallEditThreshold < 0 || c.Index.BulkThreshold < 0 {
		return &ConfigError{Field: "index", Message: "thresholds must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
