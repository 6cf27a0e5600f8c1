package netpoll

import "errors"

// ErrWouldBlock is returned by Read, Send and Accept when the operation
// cannot make progress without blocking. It is never a connection failure.
var ErrWouldBlock = errors.New("netpoll: operation would block")

// ErrClosed is returned by Wake after the poller has been closed.
var ErrClosed = errors.New("netpoll: poller closed")
