//nolint:thelper // ok for tests
package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan string) (string, bool) {
	select {
	case msg, ok := <-ch:
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	return "", false
}

func TestBroadcast(t *testing.T) {
	src := make(chan string)
	s := New("test", src)
	defer s.Close()

	l1 := s.Subscribe()
	l2 := s.Subscribe()
	src <- "a"

	msg, ok := receive(t, l1)
	require.True(t, ok)
	assert.Equal(t, "a", msg)
	msg, ok = receive(t, l2)
	require.True(t, ok)
	assert.Equal(t, "a", msg)

	s.Unsubscribe(l1)
	_, ok = receive(t, l1)
	assert.False(t, ok, "channel must be closed after unsubscribe")

	src <- "b"
	msg, _ = receive(t, l2)
	assert.Equal(t, "b", msg)
}

func TestSlowListenerIsSkipped(t *testing.T) {
	src := make(chan string)
	s := New("test", src, WithBufferSize[string](0), WithSendTimeout[string](time.Millisecond))
	defer s.Close()

	slow := s.Subscribe()
	src <- "a"
	src <- "b"
	time.Sleep(50 * time.Millisecond)
	// nobody read, nothing is pending
	select {
	case msg := <-slow:
		t.Fatalf("unexpected message %q", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSourceClosed(t *testing.T) {
	src := make(chan string)
	s := New("test", src)
	l := s.Subscribe()
	close(src)
	_, ok := receive(t, l)
	assert.False(t, ok)

	// subscribing to a stopped server yields a closed channel
	_, ok = receive(t, s.Subscribe())
	assert.False(t, ok)
	s.Close()
}
