// Package wasm hosts an HTTP engine compiled to WebAssembly. A guest
// module exports a linear memory, `alloc(size) -> ptr` and
// `handle(ptr, len) -> u64` (response ptr<<32|len); requests and
// responses cross the boundary as JSON. Each request runs in a fresh
// instance of the compiled module, so one handler is safe for
// concurrent use.
package wasm

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/hokkaido/Nancy/engine"
)

const (
	guestAllocExport  = "alloc"
	guestHandleExport = "handle"

	defaultCompiledCacheSize = 16
)

// Engine owns a wazero runtime and a cache of compiled guest modules.
type Engine struct {
	runtime  wazero.Runtime
	compiled *lru.Cache[[sha256.Size]byte, wazero.CompiledModule]
}

// Option configures an Engine.
type Option func(*config)

type config struct {
	cacheSize int
}

// WithCompiledCacheSize bounds the LRU of compiled guest modules.
func WithCompiledCacheSize(n int) Option {
	return func(c *config) { c.cacheSize = n }
}

// New creates an Engine. The runtime carries WASI preview 1 so guests
// built for wasip1 targets instantiate cleanly.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	cfg := config{cacheSize: defaultCompiledCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	compiled, err := lru.New[[sha256.Size]byte, wazero.CompiledModule](cfg.cacheSize)
	if err != nil {
		return nil, err
	}
	r := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)
	return &Engine{runtime: r, compiled: compiled}, nil
}

// Close releases the runtime and every compiled module.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Load compiles a guest module (reusing a cached compilation when the
// same bytes were seen before) and returns a handler backed by it.
func (e *Engine) Load(ctx context.Context, guest []byte) (engine.Handler, error) {
	key := sha256.Sum256(guest)
	compiled, ok := e.compiled.Get(key)
	if !ok {
		var err error
		compiled, err = e.runtime.CompileModule(ctx, guest)
		if err != nil {
			return nil, fmt.Errorf("wasm: compile guest: %w", err)
		}
		e.compiled.Add(key, compiled)
	}
	return &guestHandler{engine: e, compiled: compiled}, nil
}

// guestHandler adapts one compiled guest module to engine.Handler.
type guestHandler struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// HandleRequest runs the guest on its own goroutine and reports through
// the callbacks, matching the asynchronous engine contract.
func (g *guestHandler) HandleRequest(req *engine.Request, onSuccess func(*engine.Response), onError func(error)) {
	payload, err := encodeRequest(req)
	if err != nil {
		onError(fmt.Errorf("wasm: encode request: %w", err))
		return
	}
	go func() {
		resp, err := g.invoke(context.Background(), payload)
		if err != nil {
			onError(err)
			return
		}
		onSuccess(resp)
	}()
}

// invoke instantiates the compiled module, copies the request payload
// into guest memory, calls handle and decodes the response buffer.
func (g *guestHandler) invoke(ctx context.Context, payload []byte) (*engine.Response, error) {
	// Anonymous instance: wazero rejects duplicate module names, and
	// concurrent requests each get their own instance.
	mod, err := g.engine.runtime.InstantiateModule(ctx, g.compiled,
		wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("wasm: instantiate guest: %w", err)
	}
	defer mod.Close(ctx)

	alloc := mod.ExportedFunction(guestAllocExport)
	handle := mod.ExportedFunction(guestHandleExport)
	if alloc == nil || handle == nil {
		return nil, fmt.Errorf("wasm: guest must export %q and %q", guestAllocExport, guestHandleExport)
	}

	results, err := alloc.Call(ctx, uint64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("wasm: guest alloc: %w", err)
	}
	ptr := uint32(results[0])
	if !mod.Memory().Write(ptr, payload) {
		return nil, errors.New("wasm: request payload out of guest memory range")
	}

	results, err = handle.Call(ctx, uint64(ptr), uint64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("wasm: guest handle: %w", err)
	}
	packed := results[0]
	out, ok := mod.Memory().Read(uint32(packed>>32), uint32(packed))
	if !ok {
		return nil, errors.New("wasm: response buffer out of guest memory range")
	}

	resp, err := decodeResponse(out)
	if err != nil {
		return nil, fmt.Errorf("wasm: decode response: %w", err)
	}
	return resp, nil
}
