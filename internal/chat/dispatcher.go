package chat

import "log/slog"

// NoExclude passed to Multicast delivers to every session.
const NoExclude = -1

// SendFunc performs one non-blocking send on a handle. It returns the number
// of bytes accepted, or netpoll.ErrWouldBlock when none could be.
type SendFunc func(handle int, p []byte) (int, error)

// Delivery summarises one multicast. Callers are free to ignore it: fan-out
// is best-effort and a failed recipient never triggers disconnect handling.
type Delivery struct {
	Sent    int
	Queued  int
	Dropped int
}

// Dispatcher fans messages out to the sessions of a Registry.
type Dispatcher struct {
	reg        *Registry
	sendFn     SendFunc
	maxPending int
	metrics    *Metrics
	logger     *slog.Logger

	dirty []*Session
}

func NewDispatcher(reg *Registry, send SendFunc, maxPending int, metrics *Metrics, logger *slog.Logger) *Dispatcher {
	if maxPending <= 0 {
		maxPending = DefaultMaxPendingBytes
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		reg:        reg,
		sendFn:     send,
		maxPending: maxPending,
		metrics:    metrics,
		logger:     logger,
	}
}

// Multicast sends msg to every registered session except the one whose
// handle equals exclude.
func (d *Dispatcher) Multicast(msg []byte, exclude int) Delivery {
	var dl Delivery
	for _, s := range d.reg.All() {
		if exclude != NoExclude && s.Handle == exclude {
			continue
		}
		switch d.Send(s, msg) {
		case Sent:
			dl.Sent++
		case Queued:
			dl.Queued++
		case Dropped:
			dl.Dropped++
		}
	}
	return dl
}
