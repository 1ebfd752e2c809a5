// Package stream sends the frames of a cached session over a websocket at
// playback speed.
package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mpapenbr/f1replay-service-go/log"
	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/notify"
	"github.com/mpapenbr/f1replay-service-go/pkg/sanitize"
	"github.com/mpapenbr/f1replay-service-go/pkg/utils/broadcast"
	"github.com/mpapenbr/f1replay-service-go/pkg/utils/cache"
)

const (
	MsgFrames  = "frames"
	MsgEnd     = "end"
	MsgSession = "session"
	MsgError   = "error"

	ActionPause  = "pause"
	ActionResume = "resume"
	ActionSeek   = "seek"
	ActionSpeed  = "speed"

	defaultTick  = 200 * time.Millisecond
	writeTimeout = 5 * time.Second
	maxSpeed     = 64.0
)

var ErrInvalidSpeed = errors.New("invalid playback speed")

type (
	Option  func(*Handler)
	Handler struct {
		cache    *cache.SessionCache
		events   broadcast.Server[notify.Event]
		tick     time.Duration
		upgrader websocket.Upgrader
		l        *log.Logger
	}
	// Message is sent to the client
	Message struct {
		Type        string        `json:"type"`
		Frames      []model.Frame `json:"frames,omitempty"`
		StartIndex  int           `json:"start_index"`
		EndIndex    int           `json:"end_index"`
		TotalFrames int           `json:"total_frames"`
		Event       *notify.Event `json:"event,omitempty"`
		Error       string        `json:"error,omitempty"`
	}
	// Control is sent by the client
	Control struct {
		Action string  `json:"action"`
		Index  int     `json:"index"`
		Speed  float64 `json:"speed"`
	}
)

// WithEvents forwards session events of the streamed session to the client
func WithEvents(events broadcast.Server[notify.Event]) Option {
	return func(h *Handler) {
		h.events = events
	}
}

// WithTick sets the interval in which frames are sent
func WithTick(d time.Duration) Option {
	return func(h *Handler) {
		h.tick = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(h *Handler) {
		h.l = l
	}
}

func New(c *cache.SessionCache, opts ...Option) *Handler {
	ret := &Handler{
		cache: c,
		tick:  defaultTick,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		l: log.Default().Named("stream"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /ws/replay", h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	start, err := intParam(q.Get("start"), 0)
	if err != nil || start < 0 {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	speed, err := speedParam(q.Get("speed"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// checked before the upgrade so the client gets a proper status
	if _, err := h.cache.Get(sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", log.ErrorField(err))
		return
	}
	p := &player{
		h:         h,
		conn:      conn,
		sessionID: sessionID,
		pos:       start,
		speed:     speed,
		l:         h.l.With(log.String("session", sessionID)),
	}
	p.run()
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func speedParam(v string) (float64, error) {
	if v == "" {
		return 1, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, ErrInvalidSpeed
	}
	return checkSpeed(f)
}

func checkSpeed(f float64) (float64, error) {
	if !(f > 0 && f <= maxSpeed) {
		return 0, ErrInvalidSpeed
	}
	return f, nil
}

type player struct {
	h         *Handler
	conn      *websocket.Conn
	sessionID string
	pos       int
	speed     float64
	paused    bool
	budget    float64
	l         *log.Logger
}

//nolint:funlen,cyclop // by design
func (p *player) run() {
	defer p.conn.Close()
	controls := make(chan Control)
	done := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go p.readControls(controls, done, stop)

	var events <-chan notify.Event
	if p.h.events != nil {
		events = p.h.events.Subscribe()
		defer p.h.events.Unsubscribe(events)
	}
	ticker := time.NewTicker(p.h.tick)
	defer ticker.Stop()
	p.l.Debug("stream started",
		log.Int("start", p.pos), log.Float("speed", p.speed))

	for {
		select {
		case <-done:
			p.l.Debug("client gone", log.Int("pos", p.pos))
			return
		case c := <-controls:
			if err := p.apply(c); err != nil {
				if !p.send(Message{Type: MsgError, Error: err.Error()}) {
					return
				}
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.SessionID != p.sessionID {
				continue
			}
			if !p.send(Message{Type: MsgSession, Event: &ev}) {
				return
			}
		case <-ticker.C:
			if p.paused {
				continue
			}
			if !p.step() {
				return
			}
		}
	}
}

// step sends the frames due for one tick. It returns false if the connection
// should be closed.
func (p *player) step() bool {
	e, err := p.h.cache.Get(p.sessionID)
	if err != nil {
		p.send(Message{Type: MsgError, Error: err.Error()})
		return false
	}
	total := e.TotalFrames()
	if p.pos >= total {
		p.pos = total
		p.paused = true
		return p.send(Message{
			Type: MsgEnd, StartIndex: total, EndIndex: total, TotalFrames: total,
		})
	}
	p.budget += p.speed * float64(e.FrameRate) * p.h.tick.Seconds()
	n := int(p.budget)
	if n < 1 {
		return true
	}
	p.budget -= float64(n)
	b, err := p.h.cache.GetBatch(p.sessionID, p.pos, n)
	if err != nil {
		p.send(Message{Type: MsgError, Error: err.Error()})
		return false
	}
	p.pos = b.End
	return p.send(Message{
		Type:        MsgFrames,
		Frames:      b.Frames,
		StartIndex:  b.Start,
		EndIndex:    b.End,
		TotalFrames: b.Total,
	})
}

func (p *player) apply(c Control) error {
	switch c.Action {
	case ActionPause:
		p.paused = true
	case ActionResume:
		p.paused = false
	case ActionSeek:
		if c.Index < 0 {
			return cache.ErrFrameOutOfRange
		}
		p.pos = c.Index
		p.budget = 0
		p.paused = false
	case ActionSpeed:
		s, err := checkSpeed(c.Speed)
		if err != nil {
			return err
		}
		p.speed = s
	default:
		return errors.New("unknown action " + strconv.Quote(c.Action))
	}
	return nil
}

//nolint:whitespace // can't make both editor and linter happy
func (p *player) readControls(
	controls chan<- Control, done chan<- struct{}, stop <-chan struct{},
) {
	defer close(done)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.l.Debug("read failed", log.ErrorField(err))
			}
			return
		}
		var c Control
		if err := json.Unmarshal(data, &c); err != nil {
			p.l.Debug("invalid control message", log.ErrorField(err))
			continue
		}
		select {
		case controls <- c:
		case <-stop:
			return
		}
	}
}

func (p *player) send(msg Message) bool {
	data, err := json.Marshal(sanitize.Value(msg))
	if err != nil {
		p.l.Error("could not encode message",
			log.String("type", msg.Type), log.ErrorField(err), log.Stack("stack"))
		return false
	}
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return false
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		p.l.Debug("write failed", log.ErrorField(err))
		return false
	}
	return true
}
