package chat

import (
	"strconv"

	"github.com/eapache/queue"
)

// Session is the server-side record of one live client connection. It is
// owned by the Registry and only touched from the reactor goroutine.
type Session struct {
	Handle int    // OS descriptor, reused by the kernel after close
	Addr   IPv4   // peer address
	Gen    uint32 // distinguishes reuses of the same Handle

	pending      *queue.Queue // [][]byte not yet accepted by the socket
	headOffset   int          // bytes of the queue head already sent
	pendingBytes int

	registered bool // handle added to the poller
	writeArmed bool // write interest currently registered with the poller
	dirty      bool // write interest needs to be re-synced
}

func newSession(handle int, addr IPv4, gen uint32) *Session {
	return &Session{
		Handle:  handle,
		Addr:    addr,
		Gen:     gen,
		pending: queue.New(),
	}
}

// Tag is the sender tag used in chat lines: "<addr> (<handle>)".
func (s *Session) Tag() string {
	return s.Addr.String() + " (" + strconv.Itoa(s.Handle) + ")"
}

// State is the reactor state.
type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateDispatching
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateDispatching:
		return "dispatching"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidPort   = errorString("invalid port number")
	ErrServerRunning = errorString("server already running")
	ErrNotPresence   = errorString("not a presence frame")
)

type errorString string

func (e errorString) Error() string { return string(e) }
