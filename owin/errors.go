package owin

import "errors"

var (
	// ErrVersionMismatch reports an environment that does not declare
	// SupportedVersion. The request fails before the engine runs.
	ErrVersionMismatch = errors.New("owin: unsupported host contract version")

	// ErrCancelNotSupported is returned by every response producer's
	// cancel func: bytes already handed to the host cannot be unwound,
	// so cancellation fails loudly instead of pretending to succeed.
	ErrCancelNotSupported = errors.New("owin: cancelling an in-flight response body is not supported")

	// ErrReentrantDelivery reports a host that offered a chunk while a
	// previous delivery was still outstanding, violating the
	// single-outstanding-operation contract.
	ErrReentrantDelivery = errors.New("owin: chunk delivered while previous delivery still outstanding")
)
