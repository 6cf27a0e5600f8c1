//go:build linux

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/andy6609/reactor-chat-server/internal/netpoll"
)

// listenerTag is the poller tag of the listening socket. Session
// generations never take this value.
const listenerTag uint32 = 0

// Server is the reactor context: the listening socket, the poller, the
// registry and everything the handlers need. All of it except the state and
// the stop flag is confined to the goroutine executing Run.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	reg     *Registry
	format  *Formatter
	disp    *Dispatcher

	listenFd int
	port     uint16
	poller   *netpoll.Poller

	gen        uint32
	readBuf    []byte
	events     []netpoll.Event
	acceptWarn logThrottle

	state    atomic.Int32
	stopping atomic.Bool
	running  atomic.Bool
	waker    atomic.Pointer[netpoll.Poller]
}

func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	metrics := NewMetrics(cfg.Registerer)
	reg := NewRegistry()

	return &Server{
		cfg:        cfg,
		logger:     cfg.Logger,
		metrics:    metrics,
		reg:        reg,
		format:     NewFormatter(),
		disp:       NewDispatcher(reg, netpoll.Send, cfg.MaxPendingBytes, metrics, cfg.Logger),
		listenFd:   -1,
		readBuf:    make([]byte, cfg.ReadBufferSize),
		acceptWarn: logThrottle{interval: time.Second},
	}
}

// Listen binds the listening socket and prepares the poller. Failures here
// are fatal setup errors. Run calls Listen itself when it has not been
// called yet.
func (s *Server) Listen() error {
	if s.poller != nil {
		return nil
	}

	fd, port, err := netpoll.Listen(s.cfg.Host, s.cfg.Port, s.cfg.MaxEvents)
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.cfg.Port, err)
	}

	poller, err := netpoll.NewPoller(s.cfg.MaxEvents)
	if err != nil {
		_ = netpoll.CloseListener(fd)
		return err
	}

	if err := poller.Add(fd, listenerTag, netpoll.Readable); err != nil {
		_ = poller.Close()
		_ = netpoll.CloseListener(fd)
		return fmt.Errorf("register listener: %w", err)
	}

	s.listenFd = fd
	s.port = port
	s.poller = poller
	s.waker.Store(poller)
	return nil
}

// Port returns the bound port. Valid after Listen.
func (s *Server) Port() uint16 {
	return s.port
}

// State returns the current reactor state. Safe for concurrent use.
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
}

// Shutdown asks Run to stop after the current batch. Safe for concurrent
// use and idempotent.
func (s *Server) Shutdown() {
	if !s.stopping.CompareAndSwap(false, true) {
		return
	}
	if p := s.waker.Load(); p != nil {
		_ = p.Wake()
	}
}

// Run is the reactor loop. It returns nil after a shutdown request (ctx
// cancellation or Shutdown) and a non-nil error when the poller fails, which
// callers must treat as fatal.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerRunning
	}
	if err := s.Listen(); err != nil {
		s.running.Store(false)
		return err
	}

	stop := context.AfterFunc(ctx, s.Shutdown)
	defer stop()
	defer s.teardown()

	s.logger.Info("server started", "host", s.cfg.Host, "port", s.port)

	for !s.stopping.Load() {
		s.setState(StateWaiting)

		events, _, err := s.poller.Wait(s.events)
		if err != nil {
			return err
		}
		s.events = events

		s.setState(StateDispatching)
		for _, ev := range events {
			if err := s.dispatch(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Server) dispatch(ev netpoll.Event) error {
	if ev.Fd == s.listenFd && ev.Tag == listenerTag {
		start := time.Now()
		if err := s.onAccept(); err != nil {
			return err
		}
		s.observe("accept", start)
		return s.syncInterest()
	}

	sess, ok := s.reg.Get(ev.Fd)
	if !ok || sess.Gen != ev.Tag {
		// Closed earlier in this batch, possibly already reused.
		s.logger.Debug("stale readiness event", "handle", ev.Fd, "gen", ev.Tag)
		return nil
	}

	if ev.Writable {
		start := time.Now()
		s.onWritable(sess)
		s.observe("write", start)
	}
	if ev.Readable || ev.Hangup {
		start := time.Now()
		if err := s.onReadable(sess); err != nil {
			return err
		}
		s.observe("read", start)
	}
	return s.syncInterest()
}

// syncInterest re-registers sessions whose outbound backlog started or
// stopped needing write readiness.
func (s *Server) syncInterest() error {
	for _, sess := range s.disp.takeDirty() {
		cur, ok := s.reg.Get(sess.Handle)
		if !ok || cur != sess || !sess.registered {
			continue
		}
		want := sess.wantsWrite()
		if want == sess.writeArmed {
			continue
		}
		if err := s.poller.Modify(sess.Handle, sess.Gen, interestFor(sess)); err != nil {
			return fmt.Errorf("update client interest: %w", err)
		}
		sess.writeArmed = want
	}
	return nil
}

func interestFor(sess *Session) netpoll.Interest {
	if sess.wantsWrite() {
		return netpoll.Readable | netpoll.Writable
	}
	return netpoll.Readable
}

func (s *Server) nextGen() uint32 {
	s.gen++
	if s.gen == listenerTag {
		s.gen++
	}
	return s.gen
}

func (s *Server) observe(kind string, start time.Time) {
	s.metrics.EventProcessingDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// teardown closes the listener, every remaining session and the poller.
// In-flight backlogs are not drained.
func (s *Server) teardown() {
	s.setState(StateShuttingDown)
	s.logger.Info("shutting down", "clients", s.reg.Len())

	if s.listenFd >= 0 {
		if err := netpoll.CloseListener(s.listenFd); err != nil {
			s.logger.Error("failed to close listener", "error", err)
		}
		s.listenFd = -1
	}

	for _, sess := range s.reg.All() {
		s.reg.Remove(sess.Handle)
		_ = netpoll.CloseStream(sess.Handle)
	}
	s.metrics.ConnectedClients.Set(0)

	if err := s.poller.Close(); err != nil {
		s.logger.Error("failed to close poller", "error", err)
	}

	s.setState(StateStopped)
	s.logger.Info("shutdown complete")
}
