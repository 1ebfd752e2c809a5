//nolint:thelper // ok for tests
package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{ calls int }

func (f *failing) Publish(context.Context, Event) error {
	f.calls++
	return errors.New("down")
}
func (f *failing) Close() error { return nil }

func TestChannel(t *testing.T) {
	ch := make(chan Event, 1)
	p := NewChannel(ch)
	ev := Event{Type: EventSessionLoaded, SessionID: "2025_1_R"}
	require.NoError(t, p.Publish(context.Background(), ev))
	assert.ErrorIs(t, p.Publish(context.Background(), ev), ErrChannelFull)
	assert.Equal(t, ev, <-ch)
	assert.NoError(t, p.Close())
}

func TestMulti(t *testing.T) {
	ch := make(chan Event, 1)
	f := &failing{}
	p := Multi(f, NewChannel(ch), Noop())
	err := p.Publish(context.Background(), Event{Type: EventSessionLoaded})
	require.Error(t, err)
	assert.Equal(t, 1, f.calls)
	// other publishers still got the event
	assert.Len(t, ch, 1)
	assert.NoError(t, p.Close())
}

func TestNatsSubject(t *testing.T) {
	n := NewNats(nil, WithSubjectPrefix("replay"))
	assert.Equal(t, "replay.session.loaded.2025_1_R",
		n.Subject(Event{Type: EventSessionLoaded, SessionID: "2025_1_R"}))
}
