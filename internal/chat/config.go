package chat

import (
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultReadBufferSize  = 1024
	DefaultMaxEvents       = 4096 // SOMAXCONN
	DefaultMaxPendingBytes = 64 << 10
)

// Config configures a Server. Zero values are replaced with defaults.
type Config struct {
	Host string // IPv4 address to bind, empty means all interfaces
	Port uint16 // 0 picks an ephemeral port

	ReadBufferSize  int // bytes per read, one read is one chat message
	MaxEvents       int // readiness notifications handled per wait
	MaxPendingBytes int // per-session outbound backlog before sends are dropped

	Logger     *slog.Logger
	Registerer prometheus.Registerer // nil leaves metrics unregistered
}

func (c Config) withDefaults() Config {
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = DefaultMaxEvents
	}
	if c.MaxPendingBytes <= 0 {
		c.MaxPendingBytes = DefaultMaxPendingBytes
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// ParsePort validates a decimal TCP port argument.
func ParsePort(s string) (uint16, error) {
	if s == "" {
		return 0, ErrInvalidPort
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, ErrInvalidPort
		}
	}
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, ErrInvalidPort
	}
	return uint16(port), nil
}
