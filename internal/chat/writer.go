package chat

import (
	"errors"

	"github.com/andy6609/reactor-chat-server/internal/netpoll"
)

// SendResult is the outcome of handing one message to one session.
type SendResult int

const (
	// Sent: the socket accepted the whole message.
	Sent SendResult = iota
	// Queued: some or all of the message waits for write readiness.
	Queued
	// Dropped: the message will never reach the peer.
	Dropped
)

func (r SendResult) String() string {
	switch r {
	case Sent:
		return "sent"
	case Queued:
		return "queued"
	default:
		return "dropped"
	}
}

// Pending reports the bytes waiting in the session's outbound backlog.
func (s *Session) Pending() int {
	return s.pendingBytes
}

// Send is the best-effort per-recipient primitive. Messages already waiting
// in the backlog keep their order; would-block and partial sends go to the
// backlog; any other failure drops the message without touching the
// session's registration.
func (d *Dispatcher) Send(s *Session, msg []byte) SendResult {
	result := d.send(s, msg)
	d.metrics.SendResults.WithLabelValues(result.String()).Inc()
	return result
}

func (d *Dispatcher) send(s *Session, msg []byte) SendResult {
	if len(msg) == 0 {
		return Sent
	}
	if s.pending.Length() > 0 {
		return d.enqueue(s, msg, false)
	}

	n, err := d.sendFn(s.Handle, msg)
	switch {
	case err == nil && n == len(msg):
		return Sent
	case err == nil && n > 0:
		// Part of the frame is on the wire; the rest must follow it
		// whatever the backlog limit says.
		return d.enqueue(s, msg[n:], true)
	case err == nil, errors.Is(err, netpoll.ErrWouldBlock):
		return d.enqueue(s, msg, false)
	default:
		d.logger.Debug("send failed", "handle", s.Handle, "error", err)
		return Dropped
	}
}

// enqueue appends rest to the backlog. The limit only refuses messages none
// of whose bytes have been sent; a started frame is always completed.
func (d *Dispatcher) enqueue(s *Session, rest []byte, started bool) SendResult {
	if !started && s.pendingBytes+len(rest) > d.maxPending {
		d.logger.Debug("outbound backlog full, dropping message",
			"handle", s.Handle, "pending", s.pendingBytes, "size", len(rest))
		return Dropped
	}

	s.pending.Add(append([]byte(nil), rest...))
	s.pendingBytes += len(rest)
	d.markDirty(s)
	return Queued
}

// Flush writes as much of the backlog as the socket accepts. A hard send
// error discards the remaining backlog.
func (d *Dispatcher) Flush(s *Session) {
	for s.pending.Length() > 0 {
		head := s.pending.Peek().([]byte)
		chunk := head[s.headOffset:]

		n, err := d.sendFn(s.Handle, chunk)
		if err != nil {
			if errors.Is(err, netpoll.ErrWouldBlock) {
				return
			}
			d.logger.Debug("flush failed, discarding backlog",
				"handle", s.Handle, "pending", s.pendingBytes, "error", err)
			d.discard(s)
			return
		}

		s.pendingBytes -= n
		if n < len(chunk) {
			s.headOffset += n
			return
		}
		s.pending.Remove()
		s.headOffset = 0
	}
	d.markDirty(s)
}

func (d *Dispatcher) discard(s *Session) {
	for s.pending.Length() > 0 {
		s.pending.Remove()
	}
	s.headOffset = 0
	s.pendingBytes = 0
	d.markDirty(s)
}

// wantsWrite reports whether write readiness should be watched for s.
func (s *Session) wantsWrite() bool {
	return s.pending.Length() > 0
}

func (d *Dispatcher) markDirty(s *Session) {
	if s.dirty || s.wantsWrite() == s.writeArmed {
		return
	}
	s.dirty = true
	d.dirty = append(d.dirty, s)
}

// takeDirty returns the sessions whose write interest changed since the last
// call.
func (d *Dispatcher) takeDirty() []*Session {
	dirty := d.dirty
	d.dirty = nil
	for _, s := range dirty {
		s.dirty = false
	}
	return dirty
}
