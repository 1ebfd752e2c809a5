package source

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
)

// Session documents are JSON objects as produced by the telemetry export:
//
//	{
//	  "event": {"name": "...", "round": 12, "scheduled_laps": 52},
//	  "circuit": {"rotation": 92.0},
//	  "drivers": [{"number": "1", "code": "VER", "first_name": "...", ...}],
//	  "laps": [{"driver": "1", "lap": 1, "lap_time": 95.2, "time": 3700.1, ...}],
//	  "telemetry": {"1": {"time": [...], "x": [...], "y": [...], ...}},
//	  "track_status": [{"time": 3600.0, "status": "1"}]
//	}
//
// Telemetry is stored column-wise, all columns of a driver have the same length.

//nolint:gochecknoglobals // compiled once
var (
	xEventName     = jp.MustParseString("$.event.name")
	xEventRound    = jp.MustParseString("$.event.round")
	xScheduledLaps = jp.MustParseString("$.event.scheduled_laps")
	xRotation      = jp.MustParseString("$.circuit.rotation")
	xDrivers       = jp.MustParseString("$.drivers[*]")
	xLaps          = jp.MustParseString("$.laps[*]")
	xTelemetry     = jp.MustParseString("$.telemetry")
	xTrackStatus   = jp.MustParseString("$.track_status[*]")
)

// telemetry column names
const (
	colTime     = "time"
	colX        = "x"
	colY        = "y"
	colSpeed    = "speed"
	colDistance = "distance"
	colLap      = "lap"
	colGear     = "gear"
	colDRS      = "drs"
	colTyre     = "tyre"
)

// Decode parses a session document
//
//nolint:funlen // by design
func Decode(key model.SessionKey, data []byte) (*model.Session, error) {
	doc, err := oj.ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: root is not an object", ErrInvalidDocument)
	}
	s := &model.Session{
		Key:         key,
		EventName:   str(xEventName.First(doc)),
		RoundNumber: key.Round,
		Telemetry:   map[string][]model.TelemetrySample{},
	}
	if r, ok := num(xEventRound.First(doc)); ok {
		s.RoundNumber = int(r)
	}
	if l, ok := num(xScheduledLaps.First(doc)); ok {
		s.ScheduledLaps = int(l)
	}
	if r, ok := num(xRotation.First(doc)); ok {
		s.CircuitRotation = &r
	}

	for i, item := range xDrivers.Get(doc) {
		d, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: driver %d is not an object", ErrInvalidDocument, i)
		}
		driver := model.Driver{
			Number:    str(d["number"]),
			Code:      str(d["code"]),
			FirstName: str(d["first_name"]),
			LastName:  str(d["last_name"]),
			TeamName:  str(d["team"]),
			TeamColor: str(d["team_color"]),
		}
		if driver.Number == "" {
			return nil, fmt.Errorf("%w: driver %d has no number", ErrInvalidDocument, i)
		}
		s.Drivers = append(s.Drivers, driver)
	}

	for i, item := range xLaps.Get(doc) {
		l, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: lap %d is not an object", ErrInvalidDocument, i)
		}
		lap := model.Lap{
			DriverNumber: str(l["driver"]),
			LapTime:      math.NaN(),
			Time:         math.NaN(),
			Team:         str(l["team"]),
			Compound:     str(l["compound"]),
		}
		if v, ok := num(l["lap"]); ok {
			lap.LapNumber = int(v)
		}
		if v, ok := num(l["lap_time"]); ok {
			lap.LapTime = v
		}
		if v, ok := num(l["time"]); ok {
			lap.Time = v
		}
		if v, ok := l["deleted"].(bool); ok {
			lap.Deleted = v
		}
		s.Laps = append(s.Laps, lap)
	}

	if tel, ok := xTelemetry.First(doc).(map[string]any); ok {
		for drvNum, cols := range tel {
			c, ok := cols.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: telemetry of %s is not an object",
					ErrInvalidDocument, drvNum)
			}
			samples, err := decodeSamples(c)
			if err != nil {
				return nil, fmt.Errorf("%w: telemetry of %s: %w",
					ErrInvalidDocument, drvNum, err)
			}
			s.Telemetry[drvNum] = samples
		}
	}

	for _, item := range xTrackStatus.Get(doc) {
		ts, ok := item.(map[string]any)
		if !ok {
			continue
		}
		t, ok := num(ts["time"])
		if !ok {
			continue
		}
		s.TrackStatus = append(s.TrackStatus,
			model.TrackStatusChange{Time: t, Status: str(ts["status"])})
	}
	sort.SliceStable(s.TrackStatus, func(i, j int) bool {
		return s.TrackStatus[i].Time < s.TrackStatus[j].Time
	})
	return s, nil
}

// decodeSamples converts the column data into samples ordered by time.
// Samples without a finite time are dropped.
func decodeSamples(cols map[string]any) ([]model.TelemetrySample, error) {
	times, ok := cols[colTime].([]any)
	if !ok {
		return nil, fmt.Errorf("missing column %q", colTime)
	}
	n := len(times)
	column := func(name string) ([]any, error) {
		v, ok := cols[name]
		if !ok || v == nil {
			return nil, nil
		}
		c, ok := v.([]any)
		if !ok || len(c) != n {
			return nil, fmt.Errorf("column %q does not match length %d", name, n)
		}
		return c, nil
	}
	names := []string{colX, colY, colSpeed, colDistance, colLap, colGear, colDRS, colTyre}
	data := make(map[string][]any, len(names))
	for _, name := range names {
		c, err := column(name)
		if err != nil {
			return nil, err
		}
		data[name] = c
	}
	f := func(name string, i int) float64 {
		if c := data[name]; c != nil {
			if v, ok := num(c[i]); ok {
				return v
			}
		}
		return math.NaN()
	}
	in := func(name string, i int) int {
		if c := data[name]; c != nil {
			if v, ok := num(c[i]); ok {
				return int(v)
			}
		}
		return 0
	}
	ret := make([]model.TelemetrySample, 0, n)
	for i := range n {
		t, ok := num(times[i])
		if !ok {
			continue
		}
		ret = append(ret, model.TelemetrySample{
			Time:     t,
			X:        f(colX, i),
			Y:        f(colY, i),
			Speed:    f(colSpeed, i),
			Distance: f(colDistance, i),
			Lap:      in(colLap, i),
			Gear:     in(colGear, i),
			DRS:      in(colDRS, i),
			Tyre:     in(colTyre, i),
		})
	}
	sort.SliceStable(ret, func(i, j int) bool { return ret[i].Time < ret[j].Time })
	return ret, nil
}

// num returns finite numbers only
func num(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case float64:
		f = x
	case json.Number:
		var err error
		if f, err = x.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	case int64:
		return fmt.Sprintf("%d", x)
	default:
		return fmt.Sprint(x)
	}
}

// Encode creates a session document from s. Non-finite values are written as null.
//
//nolint:funlen // by design
func Encode(s *model.Session) []byte {
	nullable := func(f float64) any {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	}
	event := map[string]any{
		"name":  s.EventName,
		"round": int64(s.RoundNumber),
	}
	if s.ScheduledLaps > 0 {
		event["scheduled_laps"] = int64(s.ScheduledLaps)
	}
	doc := map[string]any{"event": event}
	if s.CircuitRotation != nil {
		doc["circuit"] = map[string]any{"rotation": *s.CircuitRotation}
	}
	drivers := make([]any, 0, len(s.Drivers))
	for _, d := range s.Drivers {
		drivers = append(drivers, map[string]any{
			"number":     d.Number,
			"code":       d.Code,
			"first_name": d.FirstName,
			"last_name":  d.LastName,
			"team":       d.TeamName,
			"team_color": d.TeamColor,
		})
	}
	doc["drivers"] = drivers
	laps := make([]any, 0, len(s.Laps))
	for _, l := range s.Laps {
		laps = append(laps, map[string]any{
			"driver":   l.DriverNumber,
			"lap":      int64(l.LapNumber),
			"lap_time": nullable(l.LapTime),
			"time":     nullable(l.Time),
			"team":     l.Team,
			"compound": l.Compound,
			"deleted":  l.Deleted,
		})
	}
	doc["laps"] = laps
	tel := make(map[string]any, len(s.Telemetry))
	for drvNum, samples := range s.Telemetry {
		cols := map[string][]any{}
		for _, smp := range samples {
			cols[colTime] = append(cols[colTime], nullable(smp.Time))
			cols[colX] = append(cols[colX], nullable(smp.X))
			cols[colY] = append(cols[colY], nullable(smp.Y))
			cols[colSpeed] = append(cols[colSpeed], nullable(smp.Speed))
			cols[colDistance] = append(cols[colDistance], nullable(smp.Distance))
			cols[colLap] = append(cols[colLap], int64(smp.Lap))
			cols[colGear] = append(cols[colGear], int64(smp.Gear))
			cols[colDRS] = append(cols[colDRS], int64(smp.DRS))
			cols[colTyre] = append(cols[colTyre], int64(smp.Tyre))
		}
		c := make(map[string]any, len(cols))
		for k, v := range cols {
			c[k] = v
		}
		if len(samples) == 0 {
			c[colTime] = []any{}
		}
		tel[drvNum] = c
	}
	doc["telemetry"] = tel
	status := make([]any, 0, len(s.TrackStatus))
	for _, ts := range s.TrackStatus {
		status = append(status, map[string]any{"time": ts.Time, "status": ts.Status})
	}
	doc["track_status"] = status
	return []byte(oj.JSON(doc))
}
