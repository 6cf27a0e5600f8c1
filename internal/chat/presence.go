package chat

import (
	"bytes"
	"fmt"
	"strconv"
)

// PresenceEntry is one "<addr>/<handle>;" tuple of a presence frame.
type PresenceEntry struct {
	Addr   string
	Handle int
}

func (e PresenceEntry) String() string {
	return e.Addr + "/" + strconv.Itoa(e.Handle)
}

// IsPresence reports whether a received chunk is a presence frame.
func IsPresence(chunk []byte) bool {
	return len(chunk) > 0 && chunk[0] == PresenceSentinel
}

// ParsePresence decodes a presence frame. A trailing tuple without its ';'
// terminator is accepted.
func ParsePresence(frame []byte) ([]PresenceEntry, error) {
	if !IsPresence(frame) {
		return nil, ErrNotPresence
	}

	var entries []PresenceEntry
	for _, tuple := range bytes.Split(frame[1:], []byte{';'}) {
		if len(tuple) == 0 {
			continue
		}
		slash := bytes.LastIndexByte(tuple, '/')
		if slash <= 0 {
			return nil, fmt.Errorf("presence frame: malformed tuple %q", tuple)
		}
		handle, err := strconv.Atoi(string(tuple[slash+1:]))
		if err != nil {
			return nil, fmt.Errorf("presence frame: handle in %q: %w", tuple, err)
		}
		entries = append(entries, PresenceEntry{Addr: string(tuple[:slash]), Handle: handle})
	}
	return entries, nil
}
