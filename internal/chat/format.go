package chat

import (
	"strconv"
	"strings"
	"time"
)

const (
	// PresenceSentinel is the first byte of every presence frame. Peers
	// never send it.
	PresenceSentinel byte = 0x07

	// TagWidth is the column the " | " separator starts at, counted from
	// the start of the sender tag.
	TagWidth = 22

	serverTag = "SERVER"
	separator = " | "
)

// Greeting is the banner sent to every new connection, one frame per line.
var Greeting = []string{
	`/=====================\`,
	`|                     |`,
	`|       WELCOME       |`,
	`|                     |`,
	`\=====================/`,
}

// Formatter builds the server-originated wire strings.
type Formatter struct {
	// Now returns the wall clock. A zero time renders as an empty
	// timestamp field.
	Now func() time.Time
}

func NewFormatter() *Formatter {
	return &Formatter{Now: time.Now}
}

func (f *Formatter) timestamp() string {
	if f.Now == nil {
		return ""
	}
	now := f.Now()
	if now.IsZero() {
		return ""
	}
	return now.Local().Format("15:04:05")
}

func line(ts, tag, text string) string {
	var b strings.Builder
	b.Grow(len(ts) + len(tag) + len(text) + TagWidth + 8)

	b.WriteByte('[')
	b.WriteString(ts)
	b.WriteString("]  ")
	b.WriteString(tag)
	if pad := TagWidth - len(tag); pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	b.WriteString(separator)
	b.WriteString(text)
	return b.String()
}

// FormatChat renders a chat line sent by s.
func (f *Formatter) FormatChat(s *Session, text string) string {
	return line(f.timestamp(), s.Tag(), text)
}

// FormatAnnouncement renders a server line.
func (f *Formatter) FormatAnnouncement(text string) string {
	return line(f.timestamp(), serverTag, text)
}

// FormatGreeting renders the banner lines, all sharing one timestamp.
func (f *Formatter) FormatGreeting() []string {
	ts := f.timestamp()
	lines := make([]string, len(Greeting))
	for i, g := range Greeting {
		lines[i] = line(ts, serverTag, g)
	}
	return lines
}

// FormatPresence renders the presence frame for sessions in the given order.
func (f *Formatter) FormatPresence(sessions []*Session) []byte {
	frame := make([]byte, 0, 1+len(sessions)*24)
	frame = append(frame, PresenceSentinel)
	for _, s := range sessions {
		frame = append(frame, s.Addr.String()...)
		frame = append(frame, '/')
		frame = strconv.AppendInt(frame, int64(s.Handle), 10)
		frame = append(frame, ';')
	}
	return frame
}
