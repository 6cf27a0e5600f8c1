// Package netpoll is a thin layer over Linux epoll, eventfd and raw
// non-blocking IPv4 stream sockets. It knows nothing about chat; the reactor
// in internal/chat drives it from a single goroutine.
package netpoll
