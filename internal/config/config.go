// Package config loads diaglog.toml.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/newhook/diaglog/internal/cachemanager"
	"github.com/newhook/diaglog/internal/engine"
	"github.com/newhook/diaglog/internal/index"
	"github.com/newhook/diaglog/internal/logging"
	"github.com/newhook/diaglog/internal/scheduler"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "diaglog.toml"

//go:embed templates/config.tmpl
var configTemplateText string

// Config represents diaglog.toml.
type Config struct {
	Rules     RulesConfig     `toml:"rules"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Parser    ParserConfig    `toml:"parser"`
	Index     IndexConfig     `toml:"index"`
	Logging   LoggingConfig   `toml:"logging"`
	Watch     WatchConfig     `toml:"watch"`
}

// RulesConfig selects the rule source.
type RulesConfig struct {
	// Path is a JSON or YAML rule file. Empty means the built-in rules.
	Path string `toml:"path"`
}

// SchedulerConfig contains chunking and cache settings.
type SchedulerConfig struct {
	TargetChunkBytes *int `toml:"target_chunk_bytes"`
	MinChunkLines    *int `toml:"min_chunk_lines"`
	MaxChunkLines    *int `toml:"max_chunk_lines"`
	// ChunkLines fixes the chunk size when positive.
	ChunkLines    *int `toml:"chunk_lines"`
	ProgressEvery *int `toml:"progress_every"`
	CacheSize     *int `toml:"cache_size"`
}

// GetCacheSize returns the chunk cache capacity.
// Defaults to 1000 entries.
func (s *SchedulerConfig) GetCacheSize() int {
	if s.CacheSize != nil && *s.CacheSize > 0 {
		return *s.CacheSize
	}
	return cachemanager.DefaultMaxEntries
}

// Options returns scheduler options with configured values applied over
// the defaults.
func (s *SchedulerConfig) Options() scheduler.Options {
	opts := scheduler.DefaultOptions()
	setPositive(&opts.TargetChunkBytes, s.TargetChunkBytes)
	setPositive(&opts.MinChunkLines, s.MinChunkLines)
	setPositive(&opts.MaxChunkLines, s.MaxChunkLines)
	setPositive(&opts.ChunkLines, s.ChunkLines)
	setPositive(&opts.ProgressEvery, s.ProgressEvery)
	if opts.MaxChunkLines < opts.MinChunkLines {
		opts.MaxChunkLines = opts.MinChunkLines
	}
	return opts
}

func setPositive(dst *int, v *int) {
	if v != nil && *v > 0 {
		*dst = *v
	}
}

// ParserConfig contains input handling settings.
type ParserConfig struct {
	// StripANSI removes terminal escape sequences from input lines.
	// Defaults to true when not specified.
	StripANSI *bool `toml:"strip_ansi"`
}

// ShouldStripANSI returns true unless strip_ansi is set to false.
func (p *ParserConfig) ShouldStripANSI() bool {
	if p.StripANSI == nil {
		return true
	}
	return *p.StripANSI
}

// IndexConfig contains fold detection settings.
type IndexConfig struct {
	ResetChannel string `toml:"reset_channel"`
}

// GetResetChannel returns the reset dump channel.
func (i *IndexConfig) GetResetChannel() string {
	if i.ResetChannel == "" {
		return index.DefaultResetChannel
	}
	return i.ResetChannel
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// GetLevel returns the configured level. Defaults to info.
func (l *LoggingConfig) GetLevel() slog.Level {
	return logging.ParseLevel(l.Level)
}

// WatchConfig contains watch mode settings.
type WatchConfig struct {
	DebounceMS *int `toml:"debounce_ms"`
}

// GetDebounce returns the watch debounce. Defaults to 100ms.
func (w *WatchConfig) GetDebounce() time.Duration {
	if w.DebounceMS != nil && *w.DebounceMS > 0 {
		return time.Duration(*w.DebounceMS) * time.Millisecond
	}
	return 100 * time.Millisecond
}

// EngineOptions builds engine options from the config.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.DefaultOptions()
	opts.RulesPath = c.Rules.Path
	opts.StripANSI = c.Parser.ShouldStripANSI()
	opts.CacheSize = c.Scheduler.GetCacheSize()
	opts.Scheduler = c.Scheduler.Options()
	opts.Index = index.Options{ResetChannel: c.Index.GetResetChannel()}
	return opts
}

// Load reads a config file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		return &cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Debug("no config file, using defaults", "path", path)
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes the config to the specified path.
func (c *Config) SaveConfig(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

type configTemplateData struct {
	RulesPath        string
	TargetChunkBytes int
	MinChunkLines    int
	MaxChunkLines    int
	ProgressEvery    int
	CacheSize        int
	ResetChannel     string
	LogLevel         string
	DebounceMS       int64
}

// tomlString quotes s as a TOML basic string.
func tomlString(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}

var configTemplate = template.Must(template.New("config").Funcs(template.FuncMap{
	"tomlString": tomlString,
}).Parse(configTemplateText))

// GenerateDocumentedConfig renders the config with a comment for every
// option and the effective defaults.
func (c *Config) GenerateDocumentedConfig() string {
	sched := c.Scheduler.Options()
	level := strings.ToLower(c.GetLogLevelName())
	data := configTemplateData{
		RulesPath:        c.Rules.Path,
		TargetChunkBytes: sched.TargetChunkBytes,
		MinChunkLines:    sched.MinChunkLines,
		MaxChunkLines:    sched.MaxChunkLines,
		ProgressEvery:    sched.ProgressEvery,
		CacheSize:        c.Scheduler.GetCacheSize(),
		ResetChannel:     c.Index.GetResetChannel(),
		LogLevel:         level,
		DebounceMS:       c.Watch.GetDebounce().Milliseconds(),
	}

	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, data); err != nil {
		return fmt.Sprintf("[rules]\npath = %s\n[logging]\nlevel = %s\n", tomlString(c.Rules.Path), tomlString(level))
	}
	return buf.String()
}

// GetLogLevelName returns the configured level as a name.
func (c *Config) GetLogLevelName() string {
	return c.Logging.GetLevel().String()
}
