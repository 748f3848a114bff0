package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/dispatch"
	"github.com/wippyai/mbridge/errors"
)

const sample = `
capacity = 2
signals = true

[session]
charset = "byte"
mode = "string"
trace = "medium"
auto_relink = true

[db]
store = "globals.db"
indirection_limit = 512
reverse_query = false

[log]
level = "debug"
format = "json"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Capacity)
	assert.True(t, cfg.Signals)

	tc := cfg.ThreadConfig()
	assert.Equal(t, codec.Byte, tc.Charset)
	assert.Equal(t, codec.String, tc.Mode)
	assert.Equal(t, dispatch.TraceMedium, tc.Trace)
	assert.True(t, tc.AutoRelink)

	db := cfg.MemDB()
	assert.Equal(t, "globals.db", db.StorePath)
	assert.Equal(t, 512, db.IndirectionLimit)
	assert.True(t, db.NoReverseQuery)
	assert.True(t, db.AutoRelink)

	opts := cfg.Options()
	assert.Equal(t, 2, opts.Capacity)
	assert.True(t, opts.OwnBackend)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, dispatch.DefaultCapacity, cfg.Options().Capacity)
	assert.False(t, cfg.MemDB().NoReverseQuery)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[session]\nmode = \"string\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "string", cfg.Session.Mode)
	assert.Equal(t, "utf8", cfg.Session.Charset)
	assert.Equal(t, dispatch.DefaultCapacity, cfg.Capacity)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("MBRIDGE_SESSION_MODE", "canonical")
	t.Setenv("MBRIDGE_CAPACITY", "5")
	t.Setenv("MBRIDGE_DB_REVERSE_QUERY", "true")
	t.Setenv("MBRIDGE_DB_STORE", " /tmp/g.db ")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "canonical", cfg.Session.Mode)
	assert.Equal(t, 5, cfg.Capacity)
	assert.True(t, cfg.DB.ReverseQuery)
	assert.Equal(t, "/tmp/g.db", cfg.DB.Store)
}

func TestApplyEnv_Malformed(t *testing.T) {
	for key, val := range map[string]string{
		"MBRIDGE_CAPACITY": "lots",
		"MBRIDGE_SIGNALS":  "maybe",
	} {
		cfg := Default()
		err := cfg.ApplyEnv(func(k string) (string, bool) {
			if k == key {
				return val, true
			}
			return "", false
		})
		assert.True(t, errors.HasKind(err, errors.KindConfigInvalid), "%s=%s: %v", key, val, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"capacity", func(c *Config) { c.Capacity = 0 }},
		{"charset", func(c *Config) { c.Session.Charset = "ebcdic" }},
		{"mode", func(c *Config) { c.Session.Mode = "loose" }},
		{"trace", func(c *Config) { c.Session.Trace = "verbose" }},
		{"param size", func(c *Config) { c.DB.MaxParamSize = -1 }},
		{"log level", func(c *Config) { c.Log.Level = "chatty" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"backend", func(c *Config) { c.Backend = "grpc" }},
		{"wasm without path", func(c *Config) { c.Backend = BackendWasm }},
		{"wasm memory", func(c *Config) { c.Wasm.MemoryLimitPages = 1 << 20 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.True(t, errors.HasKind(err, errors.KindConfigInvalid), "err = %v", err)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoad_WasmBackend(t *testing.T) {
	t.Setenv("MBRIDGE_WASM_WASI", "true")
	cfg, err := Load(writeConfig(t, `
backend = "wasm"

[wasm]
path = "runtime.wasm"
memory_limit_pages = 32
indirection_limit = 4096
`))
	require.NoError(t, err)
	assert.Equal(t, BackendWasm, cfg.Backend)
	assert.Equal(t, "runtime.wasm", cfg.Wasm.Path)
	assert.Equal(t, 32, cfg.Wasm.MemoryLimitPages)
	assert.True(t, cfg.Wasm.WASI)
	assert.True(t, cfg.Wasm.ReverseQuery, "defaults survive a partial section")
}

func TestWasmBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := Default()
	cfg.Backend = BackendWasm

	cfg.Wasm.Path = filepath.Join(dir, "missing.wasm")
	_, err := cfg.WasmBackend(ctx)
	assert.True(t, errors.HasKind(err, errors.KindConfigInvalid), "got %v", err)

	cfg.Wasm.Path = filepath.Join(dir, "garbage.wasm")
	require.NoError(t, os.WriteFile(cfg.Wasm.Path, []byte("not wasm"), 0o600))
	_, err = cfg.WasmBackend(ctx)
	assert.True(t, errors.HasKind(err, errors.KindBackendInstantiate), "got %v", err)

	// a well-formed module reaches export checks
	cfg.Wasm.Path = filepath.Join(dir, "empty.wasm")
	require.NoError(t, os.WriteFile(cfg.Wasm.Path, []byte("\x00asm\x01\x00\x00\x00"), 0o600))
	_, err = cfg.WasmBackend(ctx)
	assert.True(t, errors.HasKind(err, errors.KindMissingExport), "got %v", err)
}

func TestLoad_BadFile(t *testing.T) {
	_, err := Load(writeConfig(t, "capacity = [\n"))
	assert.True(t, errors.HasKind(err, errors.KindConfigInvalid))

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, errors.HasKind(err, errors.KindConfigInvalid))
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "info"
	l, err := cfg.Logger()
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}
