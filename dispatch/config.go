package dispatch

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel controls how much of each call is logged.
type TraceLevel int

const (
	TraceOff TraceLevel = iota
	TraceLow
	TraceMedium
	TraceHigh
)

func (l TraceLevel) String() string {
	switch l {
	case TraceLow:
		return "low"
	case TraceMedium:
		return "medium"
	case TraceHigh:
		return "high"
	}
	return "off"
}

// ParseTraceLevel parses off, low, medium or high. Empty is off.
func ParseTraceLevel(s string) (TraceLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "0":
		return TraceOff, nil
	case "low", "1":
		return TraceLow, nil
	case "medium", "2":
		return TraceMedium, nil
	case "high", "3":
		return TraceHigh, nil
	}
	return TraceOff, fmt.Errorf("unknown trace level %q", s)
}

// zapLevel is the level call records are written at. Low traces only
// failures, so it never logs successful calls.
func (l TraceLevel) zapLevel() zapcore.Level {
	switch l {
	case TraceLow:
		return zapcore.WarnLevel
	case TraceMedium:
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

// Config is the per-caller configuration applied immediately before a
// request executes and restored after it.
type Config struct {
	Trace      TraceLevel
	AutoRelink bool
}
