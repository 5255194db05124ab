package relay

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderCoalescesWhileBusy(t *testing.T) {
	tr := &fakeTransport{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	s := newSender(tr, 8, quiet)

	require.True(t, s.send([]byte{0x00, 0x11, 0x02}))
	<-tr.entered // first write in flight

	assert.True(t, s.send([]byte{0x00, 0x33, 0x02}))
	assert.True(t, s.send([]byte{0x00, 0x55, 0x02}))
	// 6 bytes pending; another frame would pass maxPending
	assert.False(t, s.send([]byte{0x00, 0x77, 0x02}))
	assert.Equal(t, uint64(1), s.dropped.Load())

	tr.gate <- struct{}{}
	<-tr.entered
	tr.gate <- struct{}{}

	require.Eventually(t, func() bool { return s.sent.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{0x00, 0x11, 0x02, 0x00, 0x33, 0x02, 0x00, 0x55, 0x02}, tr.bytes())

	s.stop(tr)
	assert.True(t, tr.isClosed())
}

func TestSenderAcceptsOversizedFrameWhenIdle(t *testing.T) {
	tr := &fakeTransport{}
	s := newSender(tr, 2, quiet)
	defer s.stop(nil)

	assert.True(t, s.send([]byte{0x00, 0x01, 0x01, 0x02}))
	require.Eventually(t, func() bool { return len(tr.bytes()) == 4 }, time.Second, time.Millisecond)
}

func TestSenderCountsWriteErrors(t *testing.T) {
	tr := &fakeTransport{err: errors.New("EIO")}
	s := newSender(tr, 64, quiet)

	s.send([]byte{0x00, 0x02})
	require.Eventually(t, func() bool { return s.failed.Load() == 1 }, time.Second, time.Millisecond)

	// the next frame is still attempted
	s.send([]byte{0x00, 0x02})
	require.Eventually(t, func() bool { return s.failed.Load() == 2 }, time.Second, time.Millisecond)
	assert.Zero(t, s.sent.Load())

	s.stop(tr)
}
