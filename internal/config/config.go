// Package config loads cachesync configuration.
//
// Files are YAML. The decoded document is unified with the embedded CUE
// schema (schema.cue), which supplies defaults and rejects unknown fields,
// out-of-range values, and a max_wait_ms below wait_ms.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the validated configuration.
type Config struct {
	Database      string `json:"database" yaml:"database"`
	Artifact      string `json:"artifact" yaml:"artifact"`
	WaitMS        int    `json:"wait_ms" yaml:"wait_ms"`
	MaxWaitMS     int    `json:"max_wait_ms" yaml:"max_wait_ms"`
	KeepSnapshots int    `json:"keep_snapshots" yaml:"keep_snapshots"`
	LogLevel      string `json:"log_level" yaml:"log_level"`
	Retry         Retry  `json:"retry" yaml:"retry"`
}

// Retry configures runner retries of failed saves.
type Retry struct {
	MaxAttempts       int `json:"max_attempts" yaml:"max_attempts"`
	InitialIntervalMS int `json:"initial_interval_ms" yaml:"initial_interval_ms"`
}

// Error is a configuration load or validation failure.
type Error struct {
	Path    string // source file, empty for in-memory input
	Message string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %s", e.Path, e.Message)
	}
	return "config: " + e.Message
}

// Wait returns the debounce quantum.
func (c Config) Wait() time.Duration {
	return time.Duration(c.WaitMS) * time.Millisecond
}

// MaxWait returns the staleness ceiling.
func (c Config) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitMS) * time.Millisecond
}

// RetryInitial returns the first retry interval.
func (c Config) RetryInitial() time.Duration {
	return time.Duration(c.Retry.InitialIntervalMS) * time.Millisecond
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg, err := Parse(nil)
	if err != nil {
		// The embedded schema is fixed; a failure here is a build defect.
		panic(fmt.Sprintf("config: default configuration invalid: %v", err))
	}
	return cfg
}

// Load reads and validates a YAML configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Path: path, Message: err.Error()}
	}
	cfg, err := Parse(data)
	if err != nil {
		if cerr, ok := err.(*Error); ok {
			cerr.Path = path
		}
		return Config{}, err
	}
	return cfg, nil
}

// Parse validates YAML configuration bytes. Empty input yields defaults.
func Parse(data []byte) (Config, error) {
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, &Error{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, &Error{Message: formatCUEError(err)}
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, &Error{Message: formatCUEError(err)}
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, &Error{Message: formatCUEError(err)}
	}
	return cfg, nil
}

// formatCUEError flattens a CUE error list into one line per error.
func formatCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += e.Error()
	}
	return msg
}
