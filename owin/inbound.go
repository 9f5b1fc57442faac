package owin

import (
	"fmt"
	"sync/atomic"

	"github.com/hokkaido/Nancy/internal/transfer"
)

// intake adapts the host's chunked body delivery into sequential writes
// into the transfer buffer. One intake serves one request; it holds no
// locks because the host contract guarantees a single outstanding
// delivery at a time.
type intake struct {
	target *transfer.Buffer

	// fail is the request's terminal error path. Already once-guarded;
	// intake may call it freely.
	fail func(error)

	// inFlight detects contract violations: a second delivery arriving
	// before the first resolved would silently corrupt buffer order, so
	// it is refused loudly instead.
	inFlight atomic.Bool
}

// next is the ChunkFunc subscribed to the host's body delegate.
func (in *intake) next(data []byte, cont Continuation) bool {
	if !in.inFlight.CompareAndSwap(false, true) {
		in.fail(ErrReentrantDelivery)
		return false
	}

	if cont == nil {
		// Synchronous path: the host already considers the chunk
		// consumed when we return, so no completion signal is owed.
		_, err := in.target.Write(data)
		in.inFlight.Store(false)
		if err != nil {
			in.fail(fmt.Errorf("request body: %w", err))
		}
		return false
	}

	pending := &pendingWrite{target: in.target, onComplete: cont, onError: in.fail}
	err := pending.write(data)
	// The delivery is resolved before its callbacks run: a host that
	// offers the next chunk from inside the continuation is within
	// contract. The write target is memory- or file-backed, so the
	// "asynchronous" completion happens inline on the calling goroutine;
	// the host still observes the asynchronous protocol (true from next,
	// then the continuation). No goroutine is spawned.
	in.inFlight.Store(false)
	pending.resolve(err)
	return true
}

// pendingWrite is the state of one outstanding asynchronous chunk
// write: the target buffer and the two resolutions, of which exactly one
// fires, exactly once.
type pendingWrite struct {
	target     *transfer.Buffer
	onComplete Continuation
	onError    func(error)
	resolved   atomic.Bool
}

func (p *pendingWrite) write(data []byte) error {
	_, err := p.target.Write(data)
	return err
}

// resolve fires exactly one of onComplete/onError for this delivery.
func (p *pendingWrite) resolve(err error) {
	if !p.resolved.CompareAndSwap(false, true) {
		return
	}
	if err != nil {
		p.onError(fmt.Errorf("request body: %w", err))
		return
	}
	p.onComplete()
}
