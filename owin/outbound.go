package owin

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/hokkaido/Nancy/common/bytespool"
)

// newBodyProducer wraps the engine's one-shot content writer as a host
// body delegate. The host invokes the delegate when it is ready to
// receive the body, possibly long after the response callback fired;
// the transfer then runs on the host's goroutine, one chunk at a time.
// onRelease runs once the transfer is over, on every exit path.
func newBodyProducer(write func(io.Writer) error, onRelease func()) BodyDelegate {
	return func(onNext ChunkFunc, onError func(error), onComplete func()) CancelFunc {
		done := &completion{}
		sink := &responseStream{next: onNext, ack: make(chan struct{}, 1)}

		func() {
			// Release on every exit path. onComplete fires only when the
			// error path has not already consumed the token.
			defer func() {
				onRelease()
				if done.consume() {
					onComplete()
				}
			}()
			defer func() {
				if r := recover(); r != nil {
					if done.consume() {
						onError(fmt.Errorf("response body: panic: %v", r))
					}
				}
			}()
			if write == nil {
				return
			}
			if err := write(sink); err != nil {
				if done.consume() {
					onError(fmt.Errorf("response body: %w", err))
				}
			}
		}()

		// Partial bodies cannot be unwound once bytes reached the host;
		// cancellation fails loudly rather than masking caller bugs.
		return func() error { return ErrCancelNotSupported }
	}
}

// responseStream is the sink handed to the engine's content writer. Each
// Write offers one chunk to the host and, when the host completes it
// asynchronously, parks until that chunk's continuation fires before
// accepting the next write.
type responseStream struct {
	next ChunkFunc
	ack  chan struct{}
}

func (s *responseStream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	// The host may hold the chunk until its continuation fires; give it
	// its own pooled copy so the writer can reuse p immediately.
	chunk := bytespool.Alloc(len(p))
	copy(chunk, p)

	var fired atomic.Bool
	async := s.next(chunk, func() {
		// Tolerate a misbehaving host double-firing the continuation.
		if fired.CompareAndSwap(false, true) {
			s.ack <- struct{}{}
		}
	})
	if async {
		<-s.ack
	}
	bytespool.Free(chunk)
	return len(p), nil
}
