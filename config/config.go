// Package config loads bridge settings from a TOML file with MBRIDGE_*
// environment overrides.
package config

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/dispatch"
	"github.com/wippyai/mbridge/engine"
	"github.com/wippyai/mbridge/errors"
	"github.com/wippyai/mbridge/memdb"
	"github.com/wippyai/mbridge/runtime"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "MBRIDGE_"

// Backend kinds.
const (
	BackendMemDB = "memdb"
	BackendWasm  = "wasm"
)

// Config is the process-wide bridge configuration.
type Config struct {
	Session SessionConfig `toml:"session"`
	DB      DBConfig      `toml:"db"`
	Log     LogConfig     `toml:"log"`
	Wasm    WasmConfig    `toml:"wasm"`

	// Backend selects the embedded runtime: memdb or wasm.
	Backend string `toml:"backend"`

	// Capacity sizes the async worker pool.
	Capacity int `toml:"capacity"`

	// Signals forwards SIGINT, SIGTERM and SIGQUIT while open.
	Signals bool `toml:"signals"`
}

// SessionConfig holds the defaults of every new session.
type SessionConfig struct {
	Charset    string `toml:"charset"`
	Mode       string `toml:"mode"`
	Trace      string `toml:"trace"`
	AutoRelink bool   `toml:"auto_relink"`
}

// DBConfig configures the in-process memdb runtime.
type DBConfig struct {
	Store            string `toml:"store"`
	GlobalDirectory  string `toml:"global_directory"`
	Version          string `toml:"version"`
	IndirectionLimit int    `toml:"indirection_limit"`
	MaxParamSize     int    `toml:"max_param_size"`
	ReverseQuery     bool   `toml:"reverse_query"`
}

// WasmConfig configures a runtime compiled to WebAssembly.
type WasmConfig struct {
	Path             string `toml:"path"`
	Version          string `toml:"version"`
	MemoryLimitPages int    `toml:"memory_limit_pages"`
	IndirectionLimit int    `toml:"indirection_limit"`
	MaxParamSize     int    `toml:"max_param_size"`
	ReverseQuery     bool   `toml:"reverse_query"`
	WASI             bool   `toml:"wasi"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console or json
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend:  BackendMemDB,
		Capacity: dispatch.DefaultCapacity,
		Session: SessionConfig{
			Charset: string(codec.UTF8),
			Mode:    string(codec.Canonical),
			Trace:   dispatch.TraceOff.String(),
		},
		DB:   DBConfig{ReverseQuery: true},
		Wasm: WasmConfig{ReverseQuery: true},
		Log:  LogConfig{Level: "warn", Format: "console"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, errors.New(errors.PhaseConfig, errors.KindConfigInvalid).
				Path(path).
				Cause(err).
				Detail("cannot parse config file").
				Build()
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables such as
// MBRIDGE_SESSION_MODE or MBRIDGE_DB_STORE.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"BACKEND":             &c.Backend,
		"WASM_PATH":           &c.Wasm.Path,
		"SESSION_CHARSET":     &c.Session.Charset,
		"SESSION_MODE":        &c.Session.Mode,
		"SESSION_TRACE":       &c.Session.Trace,
		"DB_STORE":            &c.DB.Store,
		"DB_GLOBAL_DIRECTORY": &c.DB.GlobalDirectory,
		"DB_VERSION":          &c.DB.Version,
		"LOG_LEVEL":           &c.Log.Level,
		"LOG_FORMAT":          &c.Log.Format,
	}
	for key, dst := range str {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"CAPACITY":                &c.Capacity,
		"DB_INDIRECTION_LIMIT":    &c.DB.IndirectionLimit,
		"DB_MAX_PARAM_SIZE":       &c.DB.MaxParamSize,
		"WASM_MEMORY_LIMIT_PAGES": &c.Wasm.MemoryLimitPages,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return invalid(EnvPrefix+key, err, "not an integer")
		}
		*dst = n
	}

	bools := map[string]*bool{
		"SIGNALS":             &c.Signals,
		"SESSION_AUTO_RELINK": &c.Session.AutoRelink,
		"DB_REVERSE_QUERY":    &c.DB.ReverseQuery,
		"WASM_WASI":           &c.Wasm.WASI,
	}
	for key, dst := range bools {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return invalid(EnvPrefix+key, err, "not a boolean")
		}
		*dst = b
	}
	return nil
}

// Validate checks every field that has a closed set of values.
func (c Config) Validate() error {
	switch c.Backend {
	case "", BackendMemDB:
	case BackendWasm:
		if c.Wasm.Path == "" {
			return invalid("wasm.path", nil, "required for the wasm backend")
		}
	default:
		return invalid("backend", nil, "want memdb or wasm, got %q", c.Backend)
	}
	if c.Wasm.MemoryLimitPages < 0 || c.Wasm.MemoryLimitPages > 65536 {
		return invalid("wasm.memory_limit_pages", nil, "must be between 0 and 65536")
	}
	if c.Capacity < 1 {
		return invalid("capacity", nil, "must be at least 1, got %d", c.Capacity)
	}
	if _, err := codec.ParseCharset(c.Session.Charset); err != nil {
		return invalid("session.charset", err, "")
	}
	if _, err := codec.ParseMode(c.Session.Mode); err != nil {
		return invalid("session.mode", err, "")
	}
	if _, err := dispatch.ParseTraceLevel(c.Session.Trace); err != nil {
		return invalid("session.trace", err, "")
	}
	if c.DB.MaxParamSize < 0 {
		return invalid("db.max_param_size", nil, "must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", err, "")
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return invalid("log.format", nil, "want console or json, got %q", c.Log.Format)
	}
	return nil
}

func invalid(field string, cause error, format string, args ...any) error {
	b := errors.New(errors.PhaseConfig, errors.KindConfigInvalid).Path(field).Cause(cause)
	if format != "" {
		b = b.Detail(format, args...)
	}
	return b.Build()
}

// ThreadConfig returns the session defaults. The config must be valid.
func (c Config) ThreadConfig() runtime.ThreadConfig {
	cs, _ := codec.ParseCharset(c.Session.Charset)
	mode, _ := codec.ParseMode(c.Session.Mode)
	trace, _ := dispatch.ParseTraceLevel(c.Session.Trace)
	return runtime.ThreadConfig{
		Charset:    cs,
		Mode:       mode,
		Trace:      trace,
		AutoRelink: c.Session.AutoRelink,
	}
}

// Options returns runtime options for an owned backend.
func (c Config) Options() runtime.Options {
	return runtime.Options{
		Defaults:   c.ThreadConfig(),
		Capacity:   c.Capacity,
		Signals:    c.Signals,
		OwnBackend: true,
	}
}

// MemDB returns the memdb configuration.
func (c Config) MemDB() *memdb.Config {
	return &memdb.Config{
		Version:          c.DB.Version,
		IndirectionLimit: c.DB.IndirectionLimit,
		MaxParamSize:     c.DB.MaxParamSize,
		NoReverseQuery:   !c.DB.ReverseQuery,
		StorePath:        c.DB.Store,
		GlobalDirectory:  c.DB.GlobalDirectory,
		AutoRelink:       c.Session.AutoRelink,
	}
}

// WasmBackend loads and instantiates the configured guest module.
func (c Config) WasmBackend(ctx context.Context) (*engine.WasmBackend, error) {
	wasm, err := os.ReadFile(c.Wasm.Path)
	if err != nil {
		return nil, invalid("wasm.path", err, "cannot read guest module")
	}
	return engine.NewWasmBackend(ctx, wasm, &engine.WasmConfig{
		Name: "guest",
		Features: engine.Features{
			Version:          c.Wasm.Version,
			IndirectionLimit: c.Wasm.IndirectionLimit,
			MaxParamSize:     c.Wasm.MaxParamSize,
			ReverseQuery:     c.Wasm.ReverseQuery,
		},
		MemoryLimitPages: uint32(c.Wasm.MemoryLimitPages),
		WASI:             c.Wasm.WASI,
	})
}

// Logger builds a zap logger from the log section.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, invalid("log.level", err, "")
	}
	zc := zap.NewDevelopmentConfig()
	if c.Log.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
