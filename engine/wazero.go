package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/errors"
)

// Guest exports a wasm-hosted runtime must provide.
const (
	ExportAlloc  = "mb_alloc" // (len i32) -> ptr i32
	ExportCall   = "mb_call"  // (entryPtr, entryLen, argsPtr, argsLen i32) -> i64 packed ptr<<32|len
	ExportFree   = "mb_free"  // optional (ptr, len i32)
	ExportMemory = "memory"

	// HostModule is the import namespace the bridge offers to guests.
	HostModule = "mbridge"
)

// WasmConfig holds configuration for a wasm-hosted runtime
type WasmConfig struct {
	// Name is the guest module instance name.
	Name string

	// Features reported for the guest. Guests cannot report their own.
	Features Features

	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// WASI instantiates wasi_snapshot_preview1 for guests built against it.
	WASI bool
}

// WasmBackend runs an embedded runtime compiled to WebAssembly. Arguments
// cross as one codec vector in guest memory; the guest answers with JSON
// reply text in its own memory.
type WasmBackend struct {
	runtime  wazero.Runtime
	module   api.Module
	memory   api.Memory
	alloc    api.Function
	call     api.Function
	free     api.Function
	features Features
	inFlight atomic.Bool
	closeMu  sync.Mutex
	closed   bool
}

// NewWasmBackend compiles and instantiates a guest runtime.
func NewWasmBackend(ctx context.Context, wasm []byte, cfg *WasmConfig) (*WasmBackend, error) {
	if cfg == nil {
		cfg = &WasmConfig{}
	}
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if cfg.WASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			_ = r.Close(ctx)
			return nil, errors.Load("instantiate WASI", err)
		}
	}
	if err := instantiateHostModule(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, errors.Load("instantiate host module", err)
	}

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		_ = r.Close(ctx)
		return nil, errors.Load("compile guest", err)
	}
	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(cfg.Name))
	if err != nil {
		_ = r.Close(ctx)
		return nil, errors.Load("instantiate guest", err)
	}

	b := &WasmBackend{
		runtime:  r,
		module:   mod,
		memory:   mod.ExportedMemory(ExportMemory),
		alloc:    mod.ExportedFunction(ExportAlloc),
		call:     mod.ExportedFunction(ExportCall),
		free:     mod.ExportedFunction(ExportFree),
		features: cfg.Features,
	}
	for name, present := range map[string]bool{
		ExportMemory: b.memory != nil,
		ExportAlloc:  b.alloc != nil,
		ExportCall:   b.call != nil,
	} {
		if !present {
			_ = r.Close(ctx)
			return nil, errors.New(errors.PhaseLoad, errors.KindMissingExport).
				Detail("guest does not export %q", name).
				Build()
		}
	}
	if b.features.Version == "" {
		b.features.Version = "wasm"
	}
	return b, nil
}

// instantiateHostModule offers mbridge.log(ptr, len) so guests can trace
// into the host logger.
func instantiateHostModule(ctx context.Context, r wazero.Runtime) error {
	_, err := r.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, m api.Module, stack []uint64) {
			ptr, n := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
			if data, ok := m.Memory().Read(ptr, n); ok {
				Logger().Debug("guest", zap.ByteString("msg", data))
			}
		}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		Export("log").
		Instantiate(ctx)
	return err
}

func (b *WasmBackend) Features() Features { return b.features }

// Call implements Backend.
func (b *WasmBackend) Call(ctx context.Context, entry string, args ...string) (string, error) {
	if !b.inFlight.CompareAndSwap(false, true) {
		return "", errors.Concurrency(entry, "wasm guest entered while a call is in flight")
	}
	defer b.inFlight.Store(false)

	b.closeMu.Lock()
	closed := b.closed
	b.closeMu.Unlock()
	if closed {
		return "", errors.ConnectionState(entry, "wasm backend is closed")
	}

	entryPtr, err := b.write(ctx, entry)
	if err != nil {
		return "", err
	}
	vec := codec.Encode(args)
	argsPtr, err := b.write(ctx, vec)
	if err != nil {
		return "", err
	}

	res, err := b.call.Call(ctx,
		api.EncodeU32(entryPtr), api.EncodeU32(uint32(len(entry))),
		api.EncodeU32(argsPtr), api.EncodeU32(uint32(len(vec))))
	if err != nil {
		return "", errors.Wrap(errors.PhaseRuntime, errors.KindEmbedded, err, "guest trapped in "+entry)
	}
	b.release(ctx, entryPtr, uint32(len(entry)))
	b.release(ctx, argsPtr, uint32(len(vec)))

	packed := res[0]
	ptr, n := uint32(packed>>32), uint32(packed)
	data, ok := b.memory.Read(ptr, n)
	if !ok {
		return "", errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Op(entry).
			Detail("reply at %d+%d is outside guest memory", ptr, n).
			Build()
	}
	reply := string(data)
	b.release(ctx, ptr, n)
	return reply, nil
}

func (b *WasmBackend) write(ctx context.Context, s string) (uint32, error) {
	if len(s) == 0 {
		return 0, nil
	}
	res, err := b.alloc.Call(ctx, api.EncodeU32(uint32(len(s))))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "guest allocation failed")
	}
	ptr := api.DecodeU32(res[0])
	if !b.memory.Write(ptr, []byte(s)) {
		return 0, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Detail("write of %d bytes at %d is outside guest memory", len(s), ptr).
			Build()
	}
	return ptr, nil
}

func (b *WasmBackend) release(ctx context.Context, ptr, n uint32) {
	if b.free == nil || n == 0 {
		return
	}
	if _, err := b.free.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(n)); err != nil {
		Logger().Warn("guest free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", n),
			zap.Error(err))
	}
}

// Close releases the guest and its wazero runtime.
func (b *WasmBackend) Close(ctx context.Context) error {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.runtime.Close(ctx)
}
