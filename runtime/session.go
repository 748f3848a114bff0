package runtime

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/dispatch"
)

// ThreadConfig is the per-caller configuration applied to each call.
type ThreadConfig struct {
	Charset    codec.Charset
	Mode       codec.Mode
	Trace      dispatch.TraceLevel
	AutoRelink bool
}

func (c ThreadConfig) normalize() ThreadConfig {
	if c.Charset == "" {
		c.Charset = codec.UTF8
	}
	if c.Mode == "" {
		c.Mode = codec.Canonical
	}
	return c
}

func (c ThreadConfig) dispatchConfig() dispatch.Config {
	return dispatch.Config{Trace: c.Trace, AutoRelink: c.AutoRelink}
}

// Option changes a ThreadConfig.
type Option func(*ThreadConfig)

// WithCharset selects how strings map to runtime bytes.
func WithCharset(cs codec.Charset) Option {
	return func(c *ThreadConfig) { c.Charset = cs }
}

// WithMode selects canonical or string mode.
func WithMode(m codec.Mode) Option {
	return func(c *ThreadConfig) { c.Mode = m }
}

// WithAutoRelink turns auto-relink of re-registered routines on or off.
func WithAutoRelink(on bool) Option {
	return func(c *ThreadConfig) { c.AutoRelink = on }
}

// WithTrace sets the call trace level.
func WithTrace(l dispatch.TraceLevel) Option {
	return func(c *ThreadConfig) { c.Trace = l }
}

// Session is one caller's configuration overlay. It is safe for concurrent
// use; each call reads the configuration current when it is issued.
type Session struct {
	rt  *Runtime
	log *zap.Logger
	id  string
	mu  sync.RWMutex
	cfg ThreadConfig
}

// Session creates a session starting from the runtime defaults.
func (r *Runtime) Session(opts ...Option) *Session {
	s := &Session{rt: r, id: uuid.NewString(), cfg: r.opts.Defaults}
	for _, o := range opts {
		o(&s.cfg)
	}
	s.cfg = s.cfg.normalize()
	s.log = Logger().With(zap.String("session", s.id))
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Config returns the current configuration.
func (s *Session) Config() ThreadConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Configure changes the configuration for subsequent calls.
func (s *Session) Configure(opts ...Option) {
	s.mu.Lock()
	for _, o := range opts {
		o(&s.cfg)
	}
	s.cfg = s.cfg.normalize()
	cfg := s.cfg
	s.mu.Unlock()
	s.log.Debug("session configured",
		zap.String("charset", string(cfg.Charset)),
		zap.String("mode", string(cfg.Mode)),
		zap.Bool("auto_relink", cfg.AutoRelink),
		zap.Stringer("trace", cfg.Trace))
}
