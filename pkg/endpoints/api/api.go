// Package api exposes the session cache over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mpapenbr/f1replay-service-go/log"
	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/processing/metadata"
	"github.com/mpapenbr/f1replay-service-go/pkg/sanitize"
	"github.com/mpapenbr/f1replay-service-go/pkg/service"
	"github.com/mpapenbr/f1replay-service-go/pkg/source"
	"github.com/mpapenbr/f1replay-service-go/pkg/utils/cache"
)

type (
	Option func(*Handler)
	// Handler serves the replay api. Register adds its routes to a mux.
	Handler struct {
		svc         *service.ReplayService
		staticDir   string
		loadTimeout time.Duration
		l           *log.Logger
	}

	LoadSessionResponse struct {
		Success         bool                      `json:"success"`
		SessionID       string                    `json:"session_id"`
		TotalFrames     int                       `json:"total_frames"`
		FrameRate       int                       `json:"frame_rate"`
		TrackLayout     model.TrackLayout         `json:"track_layout"`
		DriverColors    map[string]model.RGB      `json:"driver_colors"`
		DriverNames     map[string]string         `json:"driver_names"`
		DriverTeams     map[string]string         `json:"driver_teams"`
		TrackStatuses   []model.TrackStatusPeriod `json:"track_statuses"`
		TotalLaps       int                       `json:"total_laps"`
		CircuitRotation float64                   `json:"circuit_rotation"`
		EventName       string                    `json:"event_name"`
		RoundNumber     int                       `json:"round_number"`
		Year            int                       `json:"year"`
		SessionType     string                    `json:"session_type"`
		Reused          bool                      `json:"reused"`
	}
	BatchResponse struct {
		Frames      []model.Frame `json:"frames"`
		StartIndex  int           `json:"start_index"`
		EndIndex    int           `json:"end_index"`
		TotalFrames int           `json:"total_frames"`
	}
	SessionSummary struct {
		SessionID   string    `json:"session_id"`
		EventName   string    `json:"event_name"`
		SessionType string    `json:"session_type"`
		TotalFrames int       `json:"total_frames"`
		LoadedAt    time.Time `json:"loaded_at"`
	}
	SessionsResponse struct {
		Sessions []SessionSummary `json:"sessions"`
	}
	errorResponse struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
)

// WithStaticDir serves files below dir at / and dir/images at /images/
func WithStaticDir(dir string) Option {
	return func(h *Handler) {
		h.staticDir = dir
	}
}

// WithLoadTimeout limits the duration of a session load. 0 means no limit.
func WithLoadTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.loadTimeout = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(h *Handler) {
		h.l = l
	}
}

func New(svc *service.ReplayService, opts ...Option) *Handler {
	ret := &Handler{svc: svc, l: log.Default().Named("api")}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/load-session", h.loadSession)
	mux.HandleFunc("GET /api/get-frame/{index}", h.getFrame)
	mux.HandleFunc("POST /api/get-frames-batch", h.getFramesBatch)
	mux.HandleFunc("GET /api/sessions", h.sessions)
	if h.staticDir == "" {
		return
	}
	if fi, err := os.Stat(h.staticDir); err != nil || !fi.IsDir() {
		h.l.Warn("static dir not available", log.String("dir", h.staticDir))
		return
	}
	images := filepath.Join(h.staticDir, "images")
	mux.Handle("GET /images/",
		http.StripPrefix("/images/", http.FileServer(http.Dir(images))))
	mux.Handle("GET /", http.FileServer(http.Dir(h.staticDir)))
}

func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) {
	d, err := describeLoad(r)
	if err != nil {
		h.fail(w, d, err)
		return
	}
	ctx := r.Context()
	if h.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.loadTimeout)
		defer cancel()
	}
	entry, reused, err := h.svc.LoadSession(ctx, service.LoadRequest{
		Key:          d.Load.Key,
		ForceRefresh: d.Load.ForceRefresh,
	})
	if err != nil {
		h.fail(w, d, err)
		return
	}
	info := entry.Info
	h.respond(w, d, http.StatusOK, LoadSessionResponse{
		Success:         true,
		SessionID:       d.SessionID,
		TotalFrames:     entry.TotalFrames(),
		FrameRate:       entry.FrameRate,
		TrackLayout:     info.TrackLayout,
		DriverColors:    info.DriverColors,
		DriverNames:     info.DriverNames,
		DriverTeams:     info.DriverTeams,
		TrackStatuses:   info.TrackStatuses,
		TotalLaps:       info.TotalLaps,
		CircuitRotation: info.CircuitRotation,
		EventName:       info.EventName,
		RoundNumber:     info.RoundNumber,
		Year:            info.Key.Year,
		SessionType:     info.SessionLabel(),
		Reused:          reused,
	})
}

func (h *Handler) getFrame(w http.ResponseWriter, r *http.Request) {
	d, err := describeFrame(r)
	if err != nil {
		h.fail(w, d, err)
		return
	}
	frame, err := h.svc.Cache().GetFrame(d.SessionID, d.Index)
	if err != nil {
		h.fail(w, d, err)
		return
	}
	h.respond(w, d, http.StatusOK, frame)
}

func (h *Handler) getFramesBatch(w http.ResponseWriter, r *http.Request) {
	d, err := describeBatch(r)
	if err != nil {
		h.fail(w, d, err)
		return
	}
	b, err := h.svc.Cache().GetBatch(d.SessionID, d.Batch.Start, d.Batch.Count)
	if err != nil {
		h.fail(w, d, err)
		return
	}
	h.respond(w, d, http.StatusOK, BatchResponse{
		Frames:      b.Frames,
		StartIndex:  b.Start,
		EndIndex:    b.End,
		TotalFrames: b.Total,
	})
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	d := newDescriptor(r)
	c := h.svc.Cache()
	ret := SessionsResponse{Sessions: make([]SessionSummary, 0, c.Len())}
	for _, id := range c.Keys() {
		e, err := c.Get(id)
		if err != nil {
			continue
		}
		ret.Sessions = append(ret.Sessions, SessionSummary{
			SessionID:   id,
			EventName:   e.Info.EventName,
			SessionType: e.Info.SessionLabel(),
			TotalFrames: e.TotalFrames(),
			LoadedAt:    e.LoadedAt,
		})
	}
	h.respond(w, d, http.StatusOK, ret)
}

// StatusCode maps errors of the lower layers to http status codes
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidSessionKey),
		errors.Is(err, cache.ErrFrameOutOfRange),
		errors.Is(err, cache.ErrInvalidCount):
		return http.StatusBadRequest
	case errors.Is(err, source.ErrSessionNotFound),
		errors.Is(err, cache.ErrSessionNotLoaded):
		return http.StatusNotFound
	case errors.Is(err, metadata.ErrNoFastestLap):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, d *RequestDescriptor, err error) {
	status := StatusCode(err)
	l := h.l.With(log.String("requestId", d.RequestID), log.String("path", d.Path))
	if status >= http.StatusInternalServerError {
		l.Error("request failed", log.Int("status", status), log.ErrorField(err))
	} else {
		l.Debug("request rejected", log.Int("status", status), log.ErrorField(err))
	}
	h.respond(w, d, status, errorResponse{Success: false, Error: err.Error()})
}

// respond writes the sanitized form of v. Encoding errors are internal faults.
//
//nolint:whitespace // can't make both editor and linter happy
func (h *Handler) respond(
	w http.ResponseWriter, d *RequestDescriptor, status int, v any,
) {
	data, err := json.Marshal(sanitize.Value(v))
	if err != nil {
		h.l.Error("could not encode response",
			log.String("requestId", d.RequestID),
			log.String("path", d.Path),
			log.ErrorField(err),
			log.Stack("stack"))
		status = http.StatusInternalServerError
		data, _ = json.Marshal(errorResponse{Error: "internal error: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(headerRequestID, d.RequestID)
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.l.Debug("could not write response",
			log.String("requestId", d.RequestID), log.ErrorField(err))
	}
}
