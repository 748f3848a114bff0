package engine

import (
	"context"
	"testing"

	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/errors"
)

// echoGuest is a hand-assembled guest: a bump allocator for mb_alloc, and
// an mb_call that answers with the argument vector it was given.
var echoGuest = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// types: (i32)->i32, (i32 i32 i32 i32)->i64
	0x01, 0x0e, 0x02,
	0x60, 0x01, 0x7f, 0x01, 0x7f,
	0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7e,
	// functions
	0x03, 0x03, 0x02, 0x00, 0x01,
	// memory 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// heap pointer, starts at 1024
	0x06, 0x07, 0x01, 0x7f, 0x01, 0x41, 0x80, 0x08, 0x0b,
	// exports
	0x07, 0x1f, 0x03,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x08, 'm', 'b', '_', 'a', 'l', 'l', 'o', 'c', 0x00, 0x00,
	0x07, 'm', 'b', '_', 'c', 'a', 'l', 'l', 0x00, 0x01,
	// code
	0x0a, 0x1a, 0x02,
	0x0b, 0x00, 0x23, 0x00, 0x23, 0x00, 0x20, 0x00, 0x6a, 0x24, 0x00, 0x0b,
	0x0c, 0x00, 0x20, 0x02, 0xad, 0x42, 0x20, 0x86, 0x20, 0x03, 0xad, 0x84, 0x0b,
}

func TestNewWasmBackend_Invalid(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		wasm []byte
		kind errors.Kind
	}{
		{"garbage", []byte("not wasm"), errors.KindBackendInstantiate},
		{"empty module", []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, errors.KindMissingExport},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := NewWasmBackend(ctx, tc.wasm, nil)
			if err == nil {
				b.Close(ctx)
				t.Fatal("expected error")
			}
			if !errors.HasKind(err, tc.kind) {
				t.Errorf("error = %v, want kind %s", err, tc.kind)
			}
		})
	}
}

func TestWasmBackend_Call(t *testing.T) {
	ctx := context.Background()

	b, err := NewWasmBackend(ctx, echoGuest, &WasmConfig{
		Name:     "echo",
		Features: Features{IndirectionLimit: 8192},
	})
	if err != nil {
		t.Fatalf("NewWasmBackend failed: %v", err)
	}
	defer b.Close(ctx)

	if f := b.Features(); f.Version != "wasm" || f.IndirectionLimit != 8192 {
		t.Errorf("Features = %+v", f)
	}

	args := []string{"G", "acct", codec.Encode([]string{"1", `"x"`})}
	got, err := b.Call(ctx, EntryGet, args...)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if want := codec.Encode(args); got != want {
		t.Errorf("Call = %q, want %q", got, want)
	}

	// a second call allocates past the first
	got, err = b.Call(ctx, EntryAbout)
	if err != nil {
		t.Fatalf("second Call failed: %v", err)
	}
	if got != "0:," {
		t.Errorf("second Call = %q", got)
	}
}

func TestWasmBackend_Close(t *testing.T) {
	ctx := context.Background()

	b, err := NewWasmBackend(ctx, echoGuest, &WasmConfig{MemoryLimitPages: 4})
	if err != nil {
		t.Fatalf("NewWasmBackend failed: %v", err)
	}
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Close(ctx); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if _, err := b.Call(ctx, EntryAbout); !errors.HasKind(err, errors.KindConnectionState) {
		t.Errorf("Call after Close = %v", err)
	}
}
