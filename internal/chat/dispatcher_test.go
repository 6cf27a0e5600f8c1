package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy6609/reactor-chat-server/internal/netpoll"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeSockets records what each handle was sent. A handle with a capacity
// accepts at most that many bytes in total, then reports would-block.
type fakeSockets struct {
	received map[int][]byte
	capacity map[int]int
	fail     map[int]error
}

func newFakeSockets() *fakeSockets {
	return &fakeSockets{
		received: map[int][]byte{},
		capacity: map[int]int{},
		fail:     map[int]error{},
	}
}

func (f *fakeSockets) send(handle int, p []byte) (int, error) {
	if err, ok := f.fail[handle]; ok {
		return 0, err
	}
	n := len(p)
	if c, ok := f.capacity[handle]; ok {
		if c == 0 {
			return 0, netpoll.ErrWouldBlock
		}
		n = min(n, c)
		f.capacity[handle] = c - n
	}
	f.received[handle] = append(f.received[handle], p[:n]...)
	return n, nil
}

func newTestDispatcher(t *testing.T, handles ...int) (*Dispatcher, *Registry, *fakeSockets) {
	t.Helper()
	reg := NewRegistry()
	for i, h := range handles {
		reg.Insert(newSession(h, IPv4FromBytes([4]byte{127, 0, 0, 1}), uint32(i+1)))
	}
	socks := newFakeSockets()
	return NewDispatcher(reg, socks.send, 64, nil, nil), reg, socks
}

func TestDispatcher_MulticastExcludesOneHandle(t *testing.T) {
	for size := 0; size <= 6; size++ {
		handles := make([]int, size)
		for i := range handles {
			handles[i] = i + 4
		}

		for exclude := 3; exclude <= size+4; exclude++ {
			d, _, socks := newTestDispatcher(t, handles...)

			dl := d.Multicast([]byte("msg"), exclude)

			for _, h := range handles {
				if h == exclude {
					assert.Empty(t, socks.received[h], "size=%d excluded handle %d got data", size, h)
				} else {
					assert.Equal(t, "msg", string(socks.received[h]), "size=%d handle %d", size, h)
				}
			}
			assert.Zero(t, dl.Dropped)
			assert.Zero(t, dl.Queued)
			assert.Equal(t, len(socks.received), dl.Sent)
		}
	}
}

func TestDispatcher_MulticastWithoutExclusionReachesEveryone(t *testing.T) {
	d, _, socks := newTestDispatcher(t, 4, 5, 6)

	dl := d.Multicast([]byte("all"), NoExclude)

	assert.Equal(t, Delivery{Sent: 3}, dl)
	for _, h := range []int{4, 5, 6} {
		assert.Equal(t, "all", string(socks.received[h]))
	}
}

func TestDispatcher_FailedRecipientDoesNotStopFanOut(t *testing.T) {
	d, reg, socks := newTestDispatcher(t, 4, 5, 6)
	socks.fail[5] = errBrokenPipe

	dl := d.Multicast([]byte("hello"), NoExclude)

	assert.Equal(t, Delivery{Sent: 2, Dropped: 1}, dl)
	assert.Equal(t, "hello", string(socks.received[4]))
	assert.Equal(t, "hello", string(socks.received[6]))

	_, ok := reg.Get(5)
	assert.True(t, ok, "send failure must not remove the session")
	assert.Equal(t, 3, reg.Len())
}

func TestDispatcher_WouldBlockQueuesAndFlushes(t *testing.T) {
	d, reg, socks := newTestDispatcher(t, 4)
	sess, _ := reg.Get(4)
	socks.capacity[4] = 3

	assert.Equal(t, Queued, d.Send(sess, []byte("abcdef")))
	assert.Equal(t, Queued, d.Send(sess, []byte("gh")), "later messages wait behind the backlog")
	assert.Equal(t, "abc", string(socks.received[4]))
	assert.Equal(t, 5, sess.Pending())
	assert.True(t, sess.wantsWrite())

	dirty := d.takeDirty()
	require.Len(t, dirty, 1)
	assert.Same(t, sess, dirty[0])
	sess.writeArmed = true

	socks.capacity[4] = 4
	d.Flush(sess)
	assert.Equal(t, "abcdefg", string(socks.received[4]))
	assert.Equal(t, 1, sess.Pending())
	assert.Empty(t, d.takeDirty(), "still needs write readiness")

	delete(socks.capacity, 4)
	d.Flush(sess)
	assert.Equal(t, "abcdefgh", string(socks.received[4]))
	assert.Zero(t, sess.Pending())
	assert.False(t, sess.wantsWrite())
	assert.Len(t, d.takeDirty(), 1, "write interest must be dropped")
}

func TestDispatcher_BacklogLimitDropsMessages(t *testing.T) {
	d, reg, socks := newTestDispatcher(t, 4)
	sess, _ := reg.Get(4)
	socks.capacity[4] = 0

	assert.Equal(t, Queued, d.Send(sess, make([]byte, 60)))
	assert.Equal(t, Dropped, d.Send(sess, make([]byte, 10)))
	assert.Equal(t, 60, sess.Pending())
}

func TestDispatcher_PartialSendIsCompletedPastLimit(t *testing.T) {
	d, reg, socks := newTestDispatcher(t, 4)
	sess, _ := reg.Get(4)
	socks.capacity[4] = 10

	msg := make([]byte, 100)
	for i := range msg {
		msg[i] = byte('a' + i%26)
	}

	require.Equal(t, Queued, d.Send(sess, msg), "a started frame must not be dropped")
	assert.Len(t, socks.received[4], 10)
	assert.Equal(t, 90, sess.Pending(), "remainder queued even though it exceeds the limit")

	assert.Equal(t, Dropped, d.Send(sess, []byte("next")), "new messages still respect the limit")

	delete(socks.capacity, 4)
	d.Flush(sess)
	assert.Equal(t, msg, socks.received[4], "peer receives the whole frame and nothing else")
	assert.Zero(t, sess.Pending())
}

func TestDispatcher_FlushErrorDiscardsBacklogOnly(t *testing.T) {
	d, reg, socks := newTestDispatcher(t, 4)
	sess, _ := reg.Get(4)
	socks.capacity[4] = 0

	require.Equal(t, Queued, d.Send(sess, []byte("queued")))
	socks.fail[4] = errBrokenPipe
	d.Flush(sess)

	assert.Zero(t, sess.Pending())
	_, ok := reg.Get(4)
	assert.True(t, ok)
}

func TestDispatcher_VanishedPeerStaysRegistered(t *testing.T) {
	d, reg, socks := newTestDispatcher(t, 4, 5)
	// A peer that disappeared without FIN or RST just stops draining its
	// receive window.
	socks.capacity[5] = 0

	for i := 0; i < 20; i++ {
		d.Multicast([]byte("tick"), NoExclude)
	}

	assert.Equal(t, 2, reg.Len())
	sess, _ := reg.Get(5)
	assert.LessOrEqual(t, sess.Pending(), 64)
	assert.Len(t, socks.received[4], 20*len("tick"))
}
