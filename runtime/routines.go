package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/mbridge/address"
	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/dispatch"
	"github.com/wippyai/mbridge/engine"
	"github.com/wippyai/mbridge/txn"
)

// routineOp prepares a routine invocation. When the reference with its
// arguments is longer than the indirection limit, the arguments are staged
// in the runtime first and the reference cites them by index; staging, the
// call and unstaging run as one exclusive request.
func (s *Session) routineOp(entry, ref string, args []any) (*dispatch.Request, ThreadConfig, error) {
	cfg := s.Config()
	if err := address.ValidateRoutine(ref); err != nil {
		return nil, cfg, err
	}
	lits := make([]string, len(args))
	for i, a := range args {
		lit, err := valueLiteral(a, cfg)
		if err != nil {
			return nil, cfg, err
		}
		lits[i] = lit
	}
	plan, err := address.PlanCall(ref, lits, s.rt.Features().IndirectionLimit)
	if err != nil {
		return nil, cfg, err
	}
	params := []string{plan.Ref}
	if entry == engine.EntryFunction {
		params = append(params, string(cfg.Mode))
	}
	if !plan.IsStaged() {
		req, err := s.request(cfg, entry, params...)
		return req, cfg, err
	}

	staged := codec.Encode(plan.Staged)
	if err := codec.CheckSize([]string{staged}, s.rt.Features().MaxParamSize); err != nil {
		return nil, cfg, err
	}
	s.log.Debug("staging routine arguments",
		zap.String("routine", ref), zap.Int("args", len(plan.Staged)))
	return &dispatch.Request{
		Name:   entry,
		Args:   params,
		Config: cfg.dispatchConfig(),
		Steps: func(ctx context.Context, c dispatch.Caller) (*engine.Reply, error) {
			if _, err := c.Call(ctx, engine.EntryStage, staged); err != nil {
				return nil, err
			}
			reply, err := c.Call(ctx, entry, params...)
			if _, uerr := c.Call(ctx, engine.EntryUnstage); err == nil {
				err = uerr
			}
			return reply, err
		},
	}, cfg, nil
}

func (s *Session) functionOp(ref string, args []any) (op[any], error) {
	req, cfg, err := s.routineOp(engine.EntryFunction, ref, args)
	return op[any]{req: req, decode: func(r *engine.Reply) (any, error) {
		return r.Value("result", cfg.Mode, cfg.Charset)
	}}, err
}

func (s *Session) procedureOp(ref string, args []any) (op[struct{}], error) {
	req, _, err := s.routineOp(engine.EntryProcedure, ref, args)
	return op[struct{}]{req: req, decode: none}, err
}

// Function invokes an extrinsic function such as "add^math" and returns
// its result.
func (s *Session) Function(ctx context.Context, ref string, args ...any) (any, error) {
	o, err := s.functionOp(ref, args)
	return run(ctx, s, o, err)
}

// FunctionAsync is Function on the worker pool.
func (s *Session) FunctionAsync(ctx context.Context, ref string, args ...any) *Future[any] {
	o, err := s.functionOp(ref, args)
	return async(ctx, s, o, err)
}

// Procedure invokes a routine for its side effects.
func (s *Session) Procedure(ctx context.Context, ref string, args ...any) error {
	o, err := s.procedureOp(ref, args)
	_, err = run(ctx, s, o, err)
	return err
}

// ProcedureAsync is Procedure on the worker pool.
func (s *Session) ProcedureAsync(ctx context.Context, ref string, args ...any) *Future[struct{}] {
	o, err := s.procedureOp(ref, args)
	return async(ctx, s, o, err)
}

// Transaction runs body as an atomic transaction under this session's
// configuration. Operations inside body must use the ctx it receives.
// Async operations inside body fail with a concurrency violation.
func (s *Session) Transaction(ctx context.Context, body txn.Body, opts txn.Options) (txn.Outcome, error) {
	return txn.New(s.rt.core, s.Config().dispatchConfig()).Run(ctx, body, opts)
}
