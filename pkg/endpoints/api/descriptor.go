package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/aarondl/opt/omit"
	"github.com/google/uuid"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
)

const (
	DefaultBatchCount = 1000
	maxBodySize       = 1 << 20
	headerRequestID   = "X-Request-Id"
)

var ErrBadRequest = errors.New("bad request")

type (
	// RequestDescriptor is built once per request. Handlers only read the
	// normalized fields and never inspect the raw request.
	RequestDescriptor struct {
		RequestID string
		Method    string
		Path      string
		SessionID string
		// only set for requests addressing a single frame
		Index int
		// only set for load requests
		Load *LoadParams
		// only set for batch requests
		Batch *BatchParams
	}
	LoadParams struct {
		Key          model.SessionKey
		ForceRefresh bool
	}
	BatchParams struct {
		Start int
		Count int
	}

	loadBody struct {
		Year         omit.Val[int]    `json:"year"`
		Round        omit.Val[int]    `json:"round"`
		SessionType  omit.Val[string] `json:"session_type"`
		ForceRefresh omit.Val[bool]   `json:"force_refresh"`
	}
	batchBody struct {
		SessionID  omit.Val[string] `json:"session_id"`
		StartIndex omit.Val[int]    `json:"start_index"`
		Count      omit.Val[int]    `json:"count"`
	}
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

func newDescriptor(r *http.Request) *RequestDescriptor {
	id := strings.TrimSpace(r.Header.Get(headerRequestID))
	if id == "" {
		id = uuid.NewString()
	}
	return &RequestDescriptor{
		RequestID: id,
		Method:    r.Method,
		Path:      r.URL.Path,
		Index:     -1,
	}
}

// describeLoad extracts the parameters of a load-session request
func describeLoad(r *http.Request) (*RequestDescriptor, error) {
	d := newDescriptor(r)
	var body loadBody
	if err := decodeBody(r, &body); err != nil {
		return d, err
	}
	year, ok := body.Year.Get()
	if !ok {
		return d, badRequest("year is required")
	}
	round, ok := body.Round.Get()
	if !ok {
		return d, badRequest("round is required")
	}
	if round < 1 {
		return d, badRequest("round must be positive")
	}
	st, err := model.ParseSessionType(
		body.SessionType.GetOr(string(model.SessionTypeRace)))
	if err != nil {
		return d, badRequest("%v", err)
	}
	key := model.SessionKey{Year: year, Round: round, Type: st}
	d.SessionID = key.String()
	d.Load = &LoadParams{Key: key, ForceRefresh: body.ForceRefresh.GetOr(false)}
	return d, nil
}

// describeFrame extracts the frame index from the path and the session id
// from the query
func describeFrame(r *http.Request) (*RequestDescriptor, error) {
	d := newDescriptor(r)
	d.SessionID = strings.TrimSpace(r.URL.Query().Get("session_id"))
	if d.SessionID == "" {
		return d, badRequest("session_id is required")
	}
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return d, badRequest("invalid frame index %q", r.PathValue("index"))
	}
	d.Index = idx
	return d, nil
}

func describeBatch(r *http.Request) (*RequestDescriptor, error) {
	d := newDescriptor(r)
	var body batchBody
	if err := decodeBody(r, &body); err != nil {
		return d, err
	}
	d.SessionID = strings.TrimSpace(body.SessionID.GetOr(""))
	if d.SessionID == "" {
		return d, badRequest("session_id is required")
	}
	d.Batch = &BatchParams{
		Start: body.StartIndex.GetOr(0),
		Count: body.Count.GetOr(DefaultBatchCount),
	}
	return d, nil
}

func decodeBody(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("empty request body")
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}
