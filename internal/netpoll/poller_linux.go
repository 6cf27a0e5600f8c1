//go:build linux

package netpoll

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Interest is the set of readiness conditions a descriptor is watched for.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

// Event is one readiness notification returned by Wait.
type Event struct {
	Fd       int
	Tag      uint32 // caller-supplied value stored alongside the descriptor
	Readable bool
	Writable bool
	Hangup   bool // EPOLLHUP or EPOLLERR
}

// Poller is a level-triggered epoll instance with a built-in eventfd used to
// interrupt a blocked Wait from another goroutine.
type Poller struct {
	epfd int
	raw  []unix.EpollEvent

	mu     sync.Mutex
	wakefd int
}

// NewPoller creates an epoll instance able to report up to maxEvents
// notifications per Wait.
func NewPoller(maxEvents int) (*Poller, error) {
	if maxEvents <= 0 {
		maxEvents = unix.SOMAXCONN
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}

	return &Poller{
		epfd:   epfd,
		raw:    make([]unix.EpollEvent, maxEvents),
		wakefd: wakefd,
	}, nil
}

func toEpoll(in Interest) uint32 {
	var events uint32
	if in&Readable != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if in&Writable != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

// Add starts watching fd. tag is returned verbatim with every Event for fd.
func (p *Poller) Add(fd int, tag uint32, in Interest) error {
	ev := unix.EpollEvent{Events: toEpoll(in), Fd: int32(fd), Pad: int32(tag)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add fd=%d: %w", fd, err)
	}
	return nil
}

// Modify replaces the interest set of an already watched fd.
func (p *Poller) Modify(fd int, tag uint32, in Interest) error {
	ev := unix.EpollEvent{Events: toEpoll(in), Fd: int32(fd), Pad: int32(tag)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

// Remove stops watching fd. It must be called before fd is closed.
func (p *Poller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del fd=%d: %w", fd, err)
	}
	return nil
}

// Wait blocks until at least one watched descriptor is ready and appends the
// notifications to dst[:0] in kernel order. Wake-ups are consumed here and
// reported as woken=true without an Event. An interrupted system call yields
// no events and no error.
func (p *Poller) Wait(dst []Event) (events []Event, woken bool, err error) {
	dst = dst[:0]

	n, err := unix.EpollWait(p.epfd, p.raw, -1)
	if err != nil {
		if err == unix.EINTR {
			return dst, false, nil
		}
		return dst, false, fmt.Errorf("epoll wait: %w", err)
	}

	for i := 0; i < n; i++ {
		raw := p.raw[i]
		fd := int(raw.Fd)

		if fd == p.wakefd {
			p.drainWake()
			woken = true
			continue
		}

		dst = append(dst, Event{
			Fd:       fd,
			Tag:      uint32(raw.Pad),
			Readable: raw.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: raw.Events&unix.EPOLLOUT != 0,
			Hangup:   raw.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0,
		})
	}

	return dst, woken, nil
}

func (p *Poller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakefd, buf[:]); err != nil {
			return
		}
	}
}

// Wake interrupts a concurrent or subsequent Wait. Safe for concurrent use.
func (p *Poller) Wake() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.wakefd < 0 {
		return ErrClosed
	}

	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakefd, buf[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

// Close releases the epoll instance and the wake descriptor. Descriptors
// still watched are not closed.
func (p *Poller) Close() error {
	p.mu.Lock()
	wakefd := p.wakefd
	p.wakefd = -1
	p.mu.Unlock()

	if wakefd >= 0 {
		_ = unix.Close(wakefd)
	}
	if err := unix.Close(p.epfd); err != nil {
		return fmt.Errorf("epoll close: %w", err)
	}
	return nil
}
