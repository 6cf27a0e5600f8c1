//go:build linux

package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/andy6609/reactor-chat-server/internal/netpoll"
)

// onAccept takes one pending connection, greets it, announces it and
// starts watching it. Only poller failures are returned.
func (s *Server) onAccept() error {
	fd, raw, err := netpoll.Accept(s.listenFd)
	if err != nil {
		if errors.Is(err, netpoll.ErrWouldBlock) {
			return nil
		}
		// The listener stays readable (EMFILE and the like), so the loop
		// comes straight back here; keep the log readable.
		s.metrics.AcceptErrors.Inc()
		if ok, suppressed := s.acceptWarn.allow(time.Now()); ok {
			s.logger.Warn("accept failed", "error", err, "suppressed", suppressed)
		}
		return nil
	}

	sess := newSession(fd, IPv4FromBytes(raw), s.nextGen())

	// If for some reason we can't send, skip the rest of the banner.
	for _, line := range s.format.FormatGreeting() {
		if s.disp.Send(sess, []byte(line)) == Dropped {
			break
		}
	}

	s.reg.Insert(sess)
	s.metrics.ConnectedClients.Set(float64(s.reg.Len()))

	s.broadcastPresence()

	s.logger.Info("client connected", "handle", sess.Handle, "addr", sess.Addr.String())
	s.metrics.MessagesTotal.WithLabelValues("join").Inc()
	s.disp.Multicast([]byte(s.format.FormatAnnouncement(sess.Tag()+" connected")), sess.Handle)

	if err := s.poller.Add(sess.Handle, sess.Gen, interestFor(sess)); err != nil {
		return fmt.Errorf("register client: %w", err)
	}
	sess.registered = true
	sess.writeArmed = sess.wantsWrite()
	return nil
}

// onReadable performs one bounded read. One read is one chat message.
func (s *Server) onReadable(sess *Session) error {
	n, err := netpoll.Read(sess.Handle, s.readBuf)
	switch {
	case errors.Is(err, netpoll.ErrWouldBlock):
		return nil
	case err != nil:
		s.logger.Debug("read failed, closing", "handle", sess.Handle, "error", err)
		return s.closeSession(sess)
	case n == 0:
		return s.closeSession(sess)
	}

	chunk := s.readBuf[:n]
	if IsPresence(chunk) {
		s.logger.Debug("ignoring presence frame from peer", "handle", sess.Handle, "size", n)
		s.metrics.MessagesTotal.WithLabelValues("ignored").Inc()
		return nil
	}

	s.metrics.MessagesTotal.WithLabelValues("chat").Inc()
	s.disp.Multicast([]byte(s.format.FormatChat(sess, string(chunk))), NoExclude)
	return nil
}

func (s *Server) onWritable(sess *Session) {
	s.disp.Flush(sess)
}

// closeSession forgets sess and closes its handle. The handle leaves the
// poller and the registry before it is closed, so the kernel cannot hand the
// number to a new connection while a stale entry exists.
func (s *Server) closeSession(sess *Session) error {
	if cur, ok := s.reg.Get(sess.Handle); !ok || cur != sess {
		return nil
	}

	if err := s.poller.Remove(sess.Handle); err != nil {
		return fmt.Errorf("deregister client: %w", err)
	}
	s.reg.Remove(sess.Handle)
	sess.registered = false
	s.metrics.ConnectedClients.Set(float64(s.reg.Len()))

	s.logger.Info("client disconnected", "handle", sess.Handle, "addr", sess.Addr.String())
	s.metrics.MessagesTotal.WithLabelValues("leave").Inc()
	s.disp.Multicast([]byte(s.format.FormatAnnouncement(sess.Tag()+" disconnected")), NoExclude)
	s.broadcastPresence()

	_ = netpoll.CloseStream(sess.Handle)
	return nil
}

func (s *Server) broadcastPresence() {
	s.metrics.MessagesTotal.WithLabelValues("presence").Inc()
	s.disp.Multicast(s.format.FormatPresence(s.reg.All()), NoExclude)
}
