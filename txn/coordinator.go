package txn

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/mbridge/address"
	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/dispatch"
	"github.com/wippyai/mbridge/engine"
	"github.com/wippyai/mbridge/errors"
)

// Durability classes.
const (
	// Serial commits are fully durable.
	Serial = "serial"
	// Batch commits keep atomicity and isolation but return before the
	// write is flushed.
	Batch = "batch"
)

// Wildcard as the only reset variable resets every local variable.
const Wildcard = "*"

// Body is the operation sequence of a transaction. Requests it submits
// must use the ctx it receives.
type Body func(ctx context.Context) (Outcome, error)

// Options configure one transaction.
type Options struct {
	// Durability is Serial or Batch. Empty means Serial.
	Durability string

	// Variables are the local variables restored to their values at
	// transaction start before each restart. Wildcard resets all locals.
	Variables []string

	// MaxRestarts bounds how often the body may ask for a restart.
	// 0 means unbounded.
	MaxRestarts int
}

// Coordinator runs transactions through a dispatch core.
type Coordinator struct {
	core *dispatch.Core
	cfg  dispatch.Config
}

// New creates a Coordinator submitting under cfg.
func New(core *dispatch.Core, cfg dispatch.Config) *Coordinator {
	return &Coordinator{core: core, cfg: cfg}
}

// Run executes body in a transaction frame and returns how the frame
// ended: Commit or Rollback. A body error rolls the frame back and is
// returned as is; the coordinator never reads intent from it. A body panic
// rolls the frame back and is re-raised.
func (c *Coordinator) Run(ctx context.Context, body Body, opts Options) (Outcome, error) {
	switch opts.Durability {
	case "":
		opts.Durability = Serial
	case Serial, Batch:
	default:
		return Rollback, errors.InvalidInput(errors.PhaseTxn, "unknown durability "+opts.Durability)
	}
	for _, v := range opts.Variables {
		if address.IsReserved(v) {
			return Rollback, errors.Reserved(v)
		}
	}

	var out Outcome
	err := c.core.Hold(ctx, c.cfg, func(ctx context.Context) error {
		var err error
		out, err = c.run(ctx, body, opts)
		return err
	})
	return out, err
}

func (c *Coordinator) run(ctx context.Context, body Body, opts Options) (Outcome, error) {
	level, err := c.level(ctx, engine.EntryTStart, opts.Durability, codec.Encode(opts.Variables))
	if err != nil {
		return Rollback, err
	}
	log := Logger().With(zap.Int("tlevel", level))
	log.Debug("transaction started", zap.String("durability", opts.Durability))

	// A panicking body is a failure like any other: undo the frame, then
	// let the panic continue.
	defer func() {
		if p := recover(); p != nil {
			log.Warn("transaction body panicked", zap.Any("panic", p))
			_ = c.abort(ctx, level, nil)
			panic(p)
		}
	}()

	for restarts := 0; ; {
		out, berr := body(ctx)
		if berr != nil {
			log.Debug("transaction body failed", zap.Error(berr))
			return Rollback, c.abort(ctx, level, berr)
		}
		now, err := c.level(ctx, engine.EntryTLevel)
		if err != nil {
			return Rollback, err
		}
		if now != level {
			misuse := errors.New(errors.PhaseTxn, errors.KindTransactionMisuse).
				Detail("body left $TLEVEL at %d, want %d", now, level).
				Build()
			return Rollback, c.abort(ctx, level, misuse)
		}

		switch out {
		case Restart:
			if opts.MaxRestarts > 0 && restarts >= opts.MaxRestarts {
				limit := errors.New(errors.PhaseTxn, errors.KindRestartLimit).
					Detail("restarted %d times", restarts).
					Build()
				return Rollback, c.abort(ctx, level, limit)
			}
			restarts++
			if _, err := c.level(ctx, engine.EntryTRestart); err != nil {
				return Rollback, c.abort(ctx, level, err)
			}
			log.Debug("transaction restarted", zap.Int("restarts", restarts))
		case Rollback:
			if _, err := c.level(ctx, engine.EntryTRollback); err != nil {
				return Rollback, err
			}
			log.Debug("transaction rolled back")
			return Rollback, nil
		default:
			if _, err := c.level(ctx, engine.EntryTCommit); err != nil {
				return Rollback, c.abort(ctx, level, err)
			}
			log.Debug("transaction committed")
			return Commit, nil
		}
	}
}

// abort rolls back every frame down to and including level and returns
// cause, with any rollback failure appended.
func (c *Coordinator) abort(ctx context.Context, level int, cause error) error {
	ctx = context.WithoutCancel(ctx)
	for {
		now, err := c.level(ctx, engine.EntryTLevel)
		if err != nil {
			Logger().Warn("transaction rollback failed", zap.Error(err))
			return multierr.Append(cause, err)
		}
		if now < level {
			return cause
		}
		if _, err := c.level(ctx, engine.EntryTRollback); err != nil {
			Logger().Warn("transaction rollback failed", zap.Error(err))
			return multierr.Append(cause, err)
		}
	}
}

// level calls a transaction entry and returns the reported $TLEVEL.
func (c *Coordinator) level(ctx context.Context, entry string, args ...string) (int, error) {
	reply, err := c.core.Submit(ctx, &dispatch.Request{Entry: entry, Args: args, Config: c.cfg})
	if err != nil {
		return 0, err
	}
	return reply.Int("tlevel")
}
