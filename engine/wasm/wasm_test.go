package wasm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hokkaido/Nancy/engine"
)

// emptyModule is the smallest valid wasm binary: header and version,
// no sections. It compiles but exports nothing.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestEngineLoadRejectsInvalidModule(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx)
	require.NoError(t, err)
	defer e.Close(ctx)

	_, err = e.Load(ctx, []byte("definitely not wasm"))
	require.Error(t, err)
}

func TestEngineCachesCompiledModules(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, WithCompiledCacheSize(4))
	require.NoError(t, err)
	defer e.Close(ctx)

	_, err = e.Load(ctx, emptyModule)
	require.NoError(t, err)
	require.Equal(t, 1, e.compiled.Len())

	// Same bytes, same compilation.
	_, err = e.Load(ctx, emptyModule)
	require.NoError(t, err)
	require.Equal(t, 1, e.compiled.Len())
}

func TestHandlerReportsMissingExports(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx)
	require.NoError(t, err)
	defer e.Close(ctx)

	handler, err := e.Load(ctx, emptyModule)
	require.NoError(t, err)

	errs := make(chan error, 1)
	handler.HandleRequest(&engine.Request{Method: "GET", Protocol: "HTTP/1.1"},
		func(*engine.Response) { t.Error("success callback must not fire") },
		func(err error) { errs <- err },
	)

	select {
	case err := <-errs:
		require.ErrorContains(t, err, "export")
	case <-time.After(5 * time.Second):
		t.Fatal("error callback never fired")
	}
}
