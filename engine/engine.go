// Package engine defines the contract between the host adapter and the
// HTTP engine it drives. The adapter materializes a Request, hands it to
// a Handler exactly once, and receives a Response through the success
// callback at a time of the engine's choosing.
package engine

import "io"

// Handler is the engine as the adapter sees it: a black box that turns
// one request into one response asynchronously.
//
// HandleRequest must eventually invoke exactly one of onSuccess/onError,
// exactly once. The callbacks may run on any goroutine, including the
// caller's. A Handler must be safe for concurrent HandleRequest calls;
// the adapter shares one Handler across all in-flight requests.
type Handler interface {
	HandleRequest(req *Request, onSuccess func(*Response), onError func(error))
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(req *Request, onSuccess func(*Response), onError func(error))

func (f HandlerFunc) HandleRequest(req *Request, onSuccess func(*Response), onError func(error)) {
	f(req, onSuccess, onError)
}

// Request is the fully materialized request view handed to the engine.
// The Body has been rewound to position 0 and holds the complete request
// body; the engine owns it for reading until the response is produced.
type Request struct {
	Method   string
	URI      string
	Query    string
	Protocol string

	// Headers preserves the host's ordered multi-value form.
	Headers map[string][]string

	Body io.ReadSeeker
}

// Response is the engine's one-shot result. It is immutable once
// produced and consumed exactly once by the adapter.
type Response struct {
	StatusCode int
	Headers    map[string]string

	// WriteContent streams the response body into the sink the adapter
	// provides. It is invoked at most once. Writes to the sink may block
	// until the host acknowledges the previous chunk.
	WriteContent func(w io.Writer) error
}
