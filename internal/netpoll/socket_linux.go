//go:build linux

package netpoll

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// Listen creates a non-blocking IPv4 TCP listening socket bound to host:port
// with SO_REUSEADDR set. Port 0 picks an ephemeral port; the bound port is
// returned.
func Listen(host string, port uint16, backlog int) (fd int, bound uint16, err error) {
	addr := netip.IPv4Unspecified()
	if host != "" {
		addr, err = netip.ParseAddr(host)
		if err != nil {
			return -1, 0, fmt.Errorf("parse host %q: %w", host, err)
		}
		if !addr.Is4() {
			return -1, 0, fmt.Errorf("host %q is not an IPv4 address", host)
		}
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}

	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, 0, fmt.Errorf("socket: %w", err)
	}

	fail := func(op string, err error) (int, uint16, error) {
		_ = unix.Close(fd)
		return -1, 0, fmt.Errorf("%s: %w", op, err)
	}

	// Allows an immediate restart on the same port.
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt SO_REUSEADDR", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: int(port), Addr: addr.As4()}); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail("listen", err)
	}

	sa, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return fail("getsockname", unix.EAFNOSUPPORT)
	}

	return fd, uint16(sa4.Port), nil
}

// Accept takes one pending connection off the listening socket. The returned
// descriptor is already non-blocking. addr is the peer IPv4 address.
func Accept(lfd int) (fd int, addr [4]byte, err error) {
	nfd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN {
			return -1, addr, ErrWouldBlock
		}
		return -1, addr, fmt.Errorf("accept: %w", err)
	}

	if sa4, ok := sa.(*unix.SockaddrInet4); ok {
		addr = sa4.Addr
	}
	return nfd, addr, nil
}

// Read performs a single read into p. A closed stream reports n == 0 and a
// nil error.
func Read(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, ErrWouldBlock
		default:
			return 0, fmt.Errorf("read fd=%d: %w", fd, err)
		}
	}
}

// Send writes as much of p as the socket buffer accepts without blocking and
// without raising SIGPIPE. A short count with a nil error is a partial send.
func Send(fd int, p []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL|unix.MSG_DONTWAIT)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, ErrWouldBlock
		default:
			return 0, fmt.Errorf("send fd=%d: %w", fd, err)
		}
	}
}

// CloseStream shuts down both directions and closes fd. Errors are returned
// but callers on the hot path ignore them.
func CloseStream(fd int) error {
	_ = unix.Shutdown(fd, unix.SHUT_RDWR)
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close fd=%d: %w", fd, err)
	}
	return nil
}

// CloseListener closes a listening socket.
func CloseListener(fd int) error {
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close listener fd=%d: %w", fd, err)
	}
	return nil
}
