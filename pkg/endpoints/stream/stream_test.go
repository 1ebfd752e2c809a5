//nolint:thelper,funlen,errcheck // ok for tests
package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/notify"
	"github.com/mpapenbr/f1replay-service-go/pkg/utils/broadcast"
	"github.com/mpapenbr/f1replay-service-go/pkg/utils/cache"
)

const sessionID = "2025_1_R"

func entry(n, fps int) *cache.Entry {
	frames := make([]model.Frame, n)
	for i := range frames {
		frames[i] = model.Frame{
			Index: i, T: float64(i) / float64(fps), Lap: 1,
			TrackStatus: model.TrackStatusGreen,
			Drivers: map[string]model.DriverState{
				"VER": {Lap: 1, Status: model.DriverStatusRunning},
			},
		}
	}
	return &cache.Entry{
		Frames:    frames,
		FrameRate: fps,
		Info:      &model.SessionInfo{},
	}
}

func setup(t *testing.T, opts ...Option) (*httptest.Server, *cache.SessionCache) {
	c := cache.New()
	c.Put(sessionID, entry(50, 25))
	mux := http.NewServeMux()
	New(c, append([]Option{WithTick(10 * time.Millisecond)}, opts...)...).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, c
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/replay?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil collects frame messages until a message of type typ arrives
func readUntil(t *testing.T, conn *websocket.Conn, typ string) ([]model.Frame, Message) {
	var frames []model.Frame
	for {
		msg := read(t, conn)
		if msg.Type == typ {
			return frames, msg
		}
		require.Equal(t, MsgFrames, msg.Type, "unexpected message %+v", msg)
		frames = append(frames, msg.Frames...)
	}
}

func TestStreamPlaysAllFrames(t *testing.T) {
	srv, _ := setup(t)
	conn := dial(t, srv, "session_id="+sessionID+"&speed=20")

	frames, end := readUntil(t, conn, MsgEnd)
	require.Len(t, frames, 50)
	for i, f := range frames {
		assert.Equal(t, i, f.Index)
	}
	assert.Equal(t, 50, end.TotalFrames)
	assert.Equal(t, 50, end.EndIndex)
}

func TestStreamStartAndSeek(t *testing.T) {
	srv, _ := setup(t)
	conn := dial(t, srv, "session_id="+sessionID+"&start=40&speed=20")

	frames, _ := readUntil(t, conn, MsgEnd)
	require.NotEmpty(t, frames)
	assert.Equal(t, 40, frames[0].Index)
	assert.Len(t, frames, 10)

	require.NoError(t, conn.WriteJSON(Control{Action: ActionSeek, Index: 45}))
	frames, _ = readUntil(t, conn, MsgEnd)
	require.NotEmpty(t, frames)
	assert.Equal(t, 45, frames[0].Index)
}

func TestStreamInvalidControl(t *testing.T) {
	srv, _ := setup(t)
	conn := dial(t, srv, "session_id="+sessionID)
	require.NoError(t, conn.WriteJSON(Control{Action: ActionPause}))
	require.NoError(t, conn.WriteJSON(Control{Action: ActionSpeed, Speed: -1}))
	for {
		msg := read(t, conn)
		if msg.Type == MsgError {
			assert.Contains(t, msg.Error, "speed")
			return
		}
	}
}

func TestStreamForwardsSessionEvents(t *testing.T) {
	src := make(chan notify.Event)
	events := broadcast.New("test", src)
	t.Cleanup(events.Close)
	srv, _ := setup(t, WithEvents(events))
	conn := dial(t, srv, "session_id="+sessionID)
	require.NoError(t, conn.WriteJSON(Control{Action: ActionPause}))

	// the subscription is set up asynchronously, resend until received
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		evs := []notify.Event{
			{Type: notify.EventSessionLoaded, SessionID: "other"},
			{Type: notify.EventSessionLoaded, SessionID: sessionID, LoadID: "abc"},
		}
		for {
			for _, ev := range evs {
				select {
				case src <- ev:
				case <-stop:
					return
				}
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()
	for {
		msg := read(t, conn)
		if msg.Type != MsgSession {
			continue
		}
		require.NotNil(t, msg.Event)
		assert.Equal(t, sessionID, msg.Event.SessionID)
		assert.Equal(t, "abc", msg.Event.LoadID)
		return
	}
}

func TestStreamRejectsInvalidRequests(t *testing.T) {
	srv, _ := setup(t)
	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing session", "", http.StatusBadRequest},
		{"unknown session", "session_id=2024_1_R", http.StatusNotFound},
		{"invalid start", "session_id=" + sessionID + "&start=x", http.StatusBadRequest},
		{"invalid speed", "session_id=" + sessionID + "&speed=0", http.StatusBadRequest},
		{"speed too high", "session_id=" + sessionID + "&speed=100", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/replay?" + tt.query
			_, resp, err := websocket.DefaultDialer.Dial(url, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
