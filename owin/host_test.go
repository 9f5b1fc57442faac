package owin

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hokkaido/Nancy/engine"
)

// echoHandler answers 200 with a body echoing what it read from the
// request body, recording how often it was invoked.
type echoHandler struct {
	invocations int
	seenBody    string
}

func (h *echoHandler) HandleRequest(req *engine.Request, onSuccess func(*engine.Response), onError func(error)) {
	h.invocations++
	body, err := io.ReadAll(req.Body)
	if err != nil {
		onError(err)
		return
	}
	h.seenBody = string(body)
	onSuccess(&engine.Response{
		StatusCode: 200,
		Headers:    map[string]string{"Content-Type": "text/plain"},
		WriteContent: func(w io.Writer) error {
			_, err := w.Write(body)
			return err
		},
	})
}

// hostOutcome collects the terminal callbacks of one ProcessRequest.
type hostOutcome struct {
	responses int
	status    string
	headers   map[string]string
	producer  BodyDelegate
	errs      []error
}

func (o *hostOutcome) onResponse(status string, headers map[string]string, body BodyDelegate) {
	o.responses++
	o.status = status
	o.headers = headers
	o.producer = body
}

func (o *hostOutcome) onError(err error) {
	o.errs = append(o.errs, err)
}

// collectBody drives a producer to completion and returns the
// concatenated chunks.
func collectBody(t *testing.T, producer BodyDelegate) string {
	t.Helper()
	rec := &chunkRecorder{async: true}
	rec.drive(t, producer)
	require.Empty(t, rec.errs)
	require.Equal(t, 1, rec.completed)
	var out string
	for _, c := range rec.chunks {
		out += c
	}
	return out
}

func env(extra Environment) Environment {
	e := Environment{VersionKey: SupportedVersion}
	for k, v := range extra {
		e[k] = v
	}
	return e
}

// chunkedBody builds a host body delegate delivering the given chunks in
// order, alternating synchronous and asynchronous deliveries, then
// signalling body-complete.
func chunkedBody(t *testing.T, chunks []string) BodyDelegate {
	return func(onNext ChunkFunc, onError func(error), onComplete func()) CancelFunc {
		for i, c := range chunks {
			if i%2 == 0 {
				fired := make(chan struct{})
				require.True(t, onNext([]byte(c), func() { close(fired) }))
				select {
				case <-fired:
				case <-time.After(time.Second):
					t.Fatal("continuation never fired")
				}
			} else {
				require.False(t, onNext([]byte(c), nil))
			}
		}
		onComplete()
		return func() error { return nil }
	}
}

func TestProcessRequestRejectsUnsupportedVersion(t *testing.T) {
	handler := &echoHandler{}
	h := NewHost(handler)
	out := &hostOutcome{}

	h.ProcessRequest(Environment{VersionKey: "0.9"}, out.onResponse, out.onError)

	require.Zero(t, handler.invocations)
	require.Zero(t, out.responses)
	require.Len(t, out.errs, 1)
	require.ErrorIs(t, out.errs[0], ErrVersionMismatch)
}

func TestProcessRequestRejectsMissingVersion(t *testing.T) {
	h := NewHost(&echoHandler{})
	out := &hostOutcome{}

	h.ProcessRequest(Environment{}, out.onResponse, out.onError)

	require.Zero(t, out.responses)
	require.Len(t, out.errs, 1)
	require.ErrorIs(t, out.errs[0], ErrVersionMismatch)
}

func TestProcessRequestWithoutBody(t *testing.T) {
	handler := &echoHandler{}
	h := NewHost(handler)
	out := &hostOutcome{}

	h.ProcessRequest(env(nil), out.onResponse, out.onError)

	require.Equal(t, 1, handler.invocations)
	require.Empty(t, handler.seenBody)
	require.Equal(t, 1, out.responses)
	require.Empty(t, out.errs)
	require.Equal(t, "200 OK", out.status)
	require.Equal(t, map[string]string{"Content-Type": "text/plain"}, out.headers)
}

func TestProcessRequestBuffersChunkedBody(t *testing.T) {
	handler := &echoHandler{}
	h := NewHost(handler)
	out := &hostOutcome{}
	chunks := []string{"the ", "quick ", "brown ", "fox"}

	h.ProcessRequest(env(Environment{
		RequestMethodKey: "POST",
		RequestBodyKey:   chunkedBody(t, chunks),
	}), out.onResponse, out.onError)

	require.Equal(t, 1, handler.invocations)
	require.Equal(t, "the quick brown fox", handler.seenBody)
	require.Equal(t, 1, out.responses)
	require.Empty(t, out.errs)
	require.Equal(t, "the quick brown fox", collectBody(t, out.producer))
}

func TestProcessRequestSpillsLargeBody(t *testing.T) {
	handler := &echoHandler{}
	h := NewHost(handler, WithSpillThreshold(8))
	out := &hostOutcome{}
	chunks := []string{"0123456789", "abcdefghij", "KLMNOPQRST"}

	h.ProcessRequest(env(Environment{
		RequestBodyKey: chunkedBody(t, chunks),
	}), out.onResponse, out.onError)

	require.Equal(t, 1, out.responses)
	require.Equal(t, "0123456789abcdefghijKLMNOPQRST", handler.seenBody)
}

func TestProcessRequestMaterializesEnvironment(t *testing.T) {
	var seen *engine.Request
	handler := engine.HandlerFunc(func(req *engine.Request, onSuccess func(*engine.Response), _ func(error)) {
		seen = req
		onSuccess(&engine.Response{StatusCode: 204, Headers: map[string]string{}})
	})
	h := NewHost(handler)
	out := &hostOutcome{}

	h.ProcessRequest(env(Environment{
		RequestMethodKey:      "PUT",
		RequestURIKey:         "/things/42",
		RequestQueryStringKey: "verbose=1",
		RequestProtocolKey:    "HTTP/1.0",
		RequestHeadersKey:     map[string][]string{"Accept": {"text/plain", "text/html"}},
	}), out.onResponse, out.onError)

	require.NotNil(t, seen)
	require.Equal(t, "PUT", seen.Method)
	require.Equal(t, "/things/42", seen.URI)
	require.Equal(t, "verbose=1", seen.Query)
	require.Equal(t, "HTTP/1.0", seen.Protocol)
	require.Equal(t, []string{"text/plain", "text/html"}, seen.Headers["Accept"])
	require.Equal(t, "204 NoContent", out.status)
}

func TestProcessRequestDefaultsOptionalKeys(t *testing.T) {
	var seen *engine.Request
	handler := engine.HandlerFunc(func(req *engine.Request, onSuccess func(*engine.Response), _ func(error)) {
		seen = req
		onSuccess(&engine.Response{StatusCode: 200})
	})
	NewHost(handler).ProcessRequest(env(nil), (&hostOutcome{}).onResponse, func(err error) {
		t.Fatalf("unexpected error: %v", err)
	})

	require.Equal(t, "GET", seen.Method)
	require.Equal(t, "HTTP/1.1", seen.Protocol)
	require.NotNil(t, seen.Headers)
}

func TestProcessRequestEngineError(t *testing.T) {
	boom := errors.New("engine exploded")
	handler := engine.HandlerFunc(func(_ *engine.Request, _ func(*engine.Response), onError func(error)) {
		onError(boom)
	})
	out := &hostOutcome{}

	NewHost(handler).ProcessRequest(env(nil), out.onResponse, out.onError)

	require.Zero(t, out.responses)
	require.Len(t, out.errs, 1)
	require.ErrorIs(t, out.errs[0], boom)
}

func TestProcessRequestEnginePanicBecomesError(t *testing.T) {
	handler := engine.HandlerFunc(func(*engine.Request, func(*engine.Response), func(error)) {
		panic("engine bug")
	})
	out := &hostOutcome{}

	NewHost(handler).ProcessRequest(env(nil), out.onResponse, out.onError)

	require.Zero(t, out.responses)
	require.Len(t, out.errs, 1)
}

func TestProcessRequestAsynchronousEngine(t *testing.T) {
	handler := engine.HandlerFunc(func(req *engine.Request, onSuccess func(*engine.Response), _ func(error)) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			onSuccess(&engine.Response{
				StatusCode: 200,
				Headers:    map[string]string{"Content-Type": "text/plain"},
				WriteContent: func(w io.Writer) error {
					_, err := w.Write([]byte("hello"))
					return err
				},
			})
		}()
	})

	responded := make(chan *hostOutcome, 1)
	out := &hostOutcome{}
	NewHost(handler).ProcessRequest(env(nil), func(status string, headers map[string]string, body BodyDelegate) {
		out.onResponse(status, headers, body)
		responded <- out
	}, func(err error) { t.Errorf("unexpected error: %v", err) })

	select {
	case <-responded:
	case <-time.After(time.Second):
		t.Fatal("response callback never fired")
	}
	require.Equal(t, "200 OK", out.status)
	require.Equal(t, map[string]string{"Content-Type": "text/plain"}, out.headers)
	require.Equal(t, "hello", collectBody(t, out.producer))
}

func TestProcessRequestDoubleEngineCallbackIgnored(t *testing.T) {
	boom := errors.New("late failure")
	handler := engine.HandlerFunc(func(_ *engine.Request, onSuccess func(*engine.Response), onError func(error)) {
		onSuccess(&engine.Response{StatusCode: 200, Headers: map[string]string{}})
		onSuccess(&engine.Response{StatusCode: 500, Headers: map[string]string{}})
		onError(boom)
	})
	out := &hostOutcome{}

	NewHost(handler).ProcessRequest(env(nil), out.onResponse, out.onError)

	require.Equal(t, 1, out.responses)
	require.Equal(t, "200 OK", out.status)
	require.Empty(t, out.errs)
}

func TestProcessRequestBodyFailureSkipsEngine(t *testing.T) {
	handler := &echoHandler{}
	h := NewHost(handler)
	out := &hostOutcome{}

	// The host reports a transfer failure instead of completing intake.
	failing := BodyDelegate(func(onNext ChunkFunc, onError func(error), onComplete func()) CancelFunc {
		require.False(t, onNext([]byte("partial"), nil))
		onError(errors.New("connection reset"))
		onComplete() // late completion after failure must be ignored
		return func() error { return nil }
	})

	h.ProcessRequest(env(Environment{RequestBodyKey: failing}), out.onResponse, out.onError)

	require.Zero(t, handler.invocations)
	require.Zero(t, out.responses)
	require.Len(t, out.errs, 1)
}
