// Package owin implements the host-facing adapter that bridges a
// continuation-passing host I/O contract onto an asynchronous HTTP
// engine. The host delivers the request body in chunks through a body
// delegate; the adapter buffers it, invokes the engine exactly once with
// the materialized request, and hands the engine's response body back to
// the host as a producer driven by the host's own chunk/continuation
// write contract.
package owin

// SupportedVersion is the only host contract version this adapter
// accepts. A request whose environment declares anything else fails
// before the engine is involved.
const SupportedVersion = "1.0"

// Environment keys read by the adapter. Only the version key is
// mandatory; the body delegate is present only when the request carries
// a body.
const (
	VersionKey            = "owin.Version"
	RequestMethodKey      = "owin.RequestMethod"
	RequestURIKey         = "owin.RequestUri"
	RequestQueryStringKey = "owin.RequestQueryString"
	RequestProtocolKey    = "owin.RequestProtocol"
	RequestHeadersKey     = "owin.RequestHeaders"
	RequestBodyKey        = "owin.RequestBody"
)

// Environment is the per-request host environment dictionary.
type Environment map[string]any

// Continuation signals completion of one asynchronous chunk operation.
// It is invoked at most once and may run on a different goroutine than
// the one that started the operation.
type Continuation func()

// ChunkFunc consumes one body chunk. A nil cont demands synchronous
// consumption and a false return. With a non-nil cont the consumer may
// finish asynchronously: it returns true and fires cont exactly once when
// the chunk is fully consumed. The caller must not offer the next chunk
// until the previous one resolved (false return, or continuation fired).
type ChunkFunc func(data []byte, cont Continuation) bool

// CancelFunc requests cancellation of an in-flight body transfer.
type CancelFunc func() error

// BodyDelegate is the continuation-passing body transfer contract, used
// in both directions: the host supplies one under RequestBodyKey to
// deliver the request body, and the adapter hands one to the host (via
// ResponseCallback) to produce the response body. Invoking it subscribes
// onNext to the chunk stream; exactly one of onComplete/onError fires,
// exactly once, when the stream ends.
type BodyDelegate func(onNext ChunkFunc, onError func(error), onComplete func()) CancelFunc

// ResponseCallback receives the successful outcome of a request: the
// status line ("<code> <name>"), the response headers, and the producer
// the host drives to obtain the body.
type ResponseCallback func(status string, headers map[string]string, body BodyDelegate)

// ErrorCallback receives the failure outcome of a request.
type ErrorCallback func(err error)
