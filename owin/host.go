package owin

import (
	"errors"
	"fmt"
	"io"

	"github.com/hokkaido/Nancy/engine"
	"github.com/hokkaido/Nancy/internal/transfer"
)

// Host bridges the continuation-passing host contract onto an
// engine.Handler. One Host serves any number of concurrent requests;
// each ProcessRequest call carries its own state.
type Host struct {
	handler        engine.Handler
	spillThreshold int
}

// Option configures a Host.
type Option func(*Host)

// WithSpillThreshold sets the request-body size above which the transfer
// buffer spills to a temp file.
func WithSpillThreshold(n int) Option {
	return func(h *Host) { h.spillThreshold = n }
}

// NewHost creates a Host driving the given engine handler.
func NewHost(handler engine.Handler, opts ...Option) *Host {
	h := &Host{
		handler:        handler,
		spillThreshold: transfer.DefaultSpillThreshold,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ProcessRequest runs one request through the adapter: validate the
// declared contract version, drain the request body (when present) into
// the transfer buffer, invoke the engine once with the materialized
// request, and deliver the outcome. Exactly one of onResponse/onError is
// invoked, exactly once, possibly on a goroutine other than the caller's.
func (h *Host) ProcessRequest(env Environment, onResponse ResponseCallback, onError ErrorCallback) {
	done := &completion{}
	buf := transfer.New(h.spillThreshold)
	fail := func(err error) {
		if done.consume() {
			buf.Close()
			onError(err)
		}
	}

	version, _ := env[VersionKey].(string)
	if version != SupportedVersion {
		fail(fmt.Errorf("%w: got %q, want %q", ErrVersionMismatch, version, SupportedVersion))
		return
	}

	dispatch := func() {
		// The intake error path may already have settled the request;
		// body-complete arriving after that is ignored.
		if !done.pending() {
			return
		}
		h.dispatch(env, buf, done, onResponse, fail)
	}

	body := bodyDelegate(env[RequestBodyKey])
	if body == nil {
		// No body present: skip the inbound bridge entirely.
		dispatch()
		return
	}

	in := &intake{target: buf, fail: fail}
	// Inbound cancellation is not part of the host contract; the
	// delegate's cancel func is discarded.
	_ = body(in.next, fail, dispatch)
}

// dispatch rewinds the buffer, builds the request view and invokes the
// engine. Runs once per request, after intake completed (or was skipped).
func (h *Host) dispatch(env Environment, buf *transfer.Buffer, done *completion, onResponse ResponseCallback, fail func(error)) {
	if _, err := buf.Seek(0, io.SeekStart); err != nil {
		fail(fmt.Errorf("request body: %w", err))
		return
	}
	req := requestFromEnvironment(env, buf)

	onSuccess := func(resp *engine.Response) {
		if resp == nil {
			fail(errors.New("owin: engine produced no response"))
			return
		}
		if !done.consume() {
			return
		}
		producer := newBodyProducer(resp.WriteContent, func() { buf.Close() })
		onResponse(engine.StatusLine(resp.StatusCode), resp.Headers, producer)
	}
	onEngineError := func(err error) {
		fail(fmt.Errorf("engine: %w", err))
	}

	// A synchronously panicking engine surfaces as an engine failure
	// instead of crashing the host.
	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Errorf("engine: panic: %v", r))
		}
	}()
	h.handler.HandleRequest(req, onSuccess, onEngineError)
}

// requestFromEnvironment materializes the immutable request view from
// the host environment, defaulting the optional keys.
func requestFromEnvironment(env Environment, body io.ReadSeeker) *engine.Request {
	req := &engine.Request{
		Method:   "GET",
		Protocol: "HTTP/1.1",
		Headers:  map[string][]string{},
		Body:     body,
	}
	if m, ok := env[RequestMethodKey].(string); ok && m != "" {
		req.Method = m
	}
	if u, ok := env[RequestURIKey].(string); ok {
		req.URI = u
	}
	if q, ok := env[RequestQueryStringKey].(string); ok {
		req.Query = q
	}
	if p, ok := env[RequestProtocolKey].(string); ok && p != "" {
		req.Protocol = p
	}
	if hs, ok := env[RequestHeadersKey].(map[string][]string); ok && hs != nil {
		req.Headers = hs
	}
	return req
}

// bodyDelegate extracts the host's body delegate from an environment
// value, accepting both the named type and a bare func of its shape.
func bodyDelegate(v any) BodyDelegate {
	switch fn := v.(type) {
	case nil:
		return nil
	case BodyDelegate:
		return fn
	case func(ChunkFunc, func(error), func()) CancelFunc:
		return fn
	default:
		return nil
	}
}
