// Package metadata derives the per session data shown alongside the frames:
// track layout, circuit rotation, driver names, teams and colors, total laps
// and track status periods.
package metadata

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/processing/synchronizer"
	"github.com/mpapenbr/f1replay-service-go/pkg/roster"
)

var ErrNoFastestLap = errors.New("no valid fastest lap")

type (
	Option  func(*options)
	options struct {
		origin    *float64
		drivers   []DriverIdentity
		totalLaps int
	}
)

// WithFrameOrigin sets the session time of frame 0. Track status periods are
// given relative to it. Defaults to the earliest telemetry sample.
func WithFrameOrigin(t float64) Option {
	return func(o *options) {
		o.origin = &t
	}
}

// WithDrivers uses already resolved drivers
func WithDrivers(ids []DriverIdentity) Option {
	return func(o *options) {
		o.drivers = ids
	}
}

// Extract computes the session info. A session without a valid fastest lap
// cannot be displayed and results in ErrNoFastestLap.
//
//nolint:whitespace // can't make both editor and linter happy
func Extract(
	s *model.Session, r *roster.Roster, opts ...Option,
) (*model.SessionInfo, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	fastest, ok := synchronizer.FastestLap(s.Laps)
	if !ok {
		return nil, fmt.Errorf("%w: session %s", ErrNoFastestLap, s.Key)
	}
	layout := Layout(s, fastest)
	if len(layout.X) == 0 {
		return nil, fmt.Errorf("%w: no position data for lap %d of driver %s",
			ErrNoFastestLap, fastest.LapNumber, fastest.DriverNumber)
	}
	ids := o.drivers
	if ids == nil {
		ids = ResolveDrivers(s, r)
	}
	origin := earliestSample(s)
	if o.origin != nil {
		origin = *o.origin
	}
	ret := &model.SessionInfo{
		Key:           s.Key,
		EventName:     s.EventName,
		RoundNumber:   s.RoundNumber,
		TrackLayout:   layout,
		DriverNames:   make(map[string]string, len(ids)),
		DriverTeams:   make(map[string]string, len(ids)),
		DriverColors:  make(map[string]model.RGB, len(ids)),
		TrackStatuses: StatusPeriods(s.TrackStatus, origin),
		TotalLaps:     TotalLaps(s),
	}
	if s.CircuitRotation != nil && !math.IsNaN(*s.CircuitRotation) {
		ret.CircuitRotation = *s.CircuitRotation
	} else {
		ret.CircuitRotation = Rotation(layout)
	}
	for _, id := range ids {
		ret.DriverNames[id.Code] = id.Name
		ret.DriverTeams[id.Code] = id.Team
		ret.DriverColors[id.Code] = id.Color
	}
	return ret, nil
}

// Layout is the position trace of the given lap
func Layout(s *model.Session, lap model.Lap) model.TrackLayout {
	ret := model.TrackLayout{X: []float64{}, Y: []float64{}}
	for _, smp := range s.Telemetry[lap.DriverNumber] {
		if smp.Lap != lap.LapNumber || !finite(smp.X) || !finite(smp.Y) {
			continue
		}
		ret.X = append(ret.X, smp.X)
		ret.Y = append(ret.Y, smp.Y)
	}
	return ret
}

// Rotation returns the angle in degrees [0,360) which turns the principal axis
// of the layout into the horizontal.
func Rotation(layout model.TrackLayout) float64 {
	n := float64(len(layout.X))
	if n < 2 {
		return 0
	}
	mx, my := lo.Sum(layout.X)/n, lo.Sum(layout.Y)/n
	var cxx, cyy, cxy float64
	for i := range layout.X {
		dx, dy := layout.X[i]-mx, layout.Y[i]-my
		cxx += dx * dx
		cyy += dy * dy
		cxy += dx * dy
	}
	axis := 0.5 * math.Atan2(2*cxy, cxx-cyy) * 180 / math.Pi
	// rounding keeps values just below 360 from showing up as 359.999...
	return math.Mod(math.Round((360-axis)*1e6)/1e6, 360)
}

// TotalLaps is the larger value of scheduled laps and laps driven
func TotalLaps(s *model.Session) int {
	driven := lo.MaxBy(s.Laps, func(a, b model.Lap) bool { return a.LapNumber > b.LapNumber })
	return max(s.ScheduledLaps, driven.LapNumber)
}

// StatusPeriods converts the status changes into periods relative to origin.
// Repeated changes to the same status are merged. The time before the first
// change is green, the same as the frames report it.
//
//nolint:whitespace // can't make both editor and linter happy
func StatusPeriods(
	changes []model.TrackStatusChange, origin float64,
) []model.TrackStatusPeriod {
	sorted := make([]model.TrackStatusChange, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	ret := []model.TrackStatusPeriod{{Status: model.TrackStatusGreen, StartTime: 0}}
	for _, c := range sorted {
		if c.Status == "" {
			continue
		}
		start := math.Max(0, c.Time-origin)
		last := &ret[len(ret)-1]
		if last.Status == c.Status {
			continue
		}
		if start <= last.StartTime {
			// the previous period has no duration
			last.Status = c.Status
			if n := len(ret); n > 1 && ret[n-2].Status == c.Status {
				ret = ret[:n-1]
				ret[n-2].EndTime = nil
			}
			continue
		}
		last.EndTime = lo.ToPtr(start)
		ret = append(ret, model.TrackStatusPeriod{Status: c.Status, StartTime: start})
	}
	return ret
}

func earliestSample(s *model.Session) float64 {
	ret := math.Inf(1)
	for _, samples := range s.Telemetry {
		if len(samples) > 0 {
			ret = math.Min(ret, samples[0].Time)
		}
	}
	if math.IsInf(ret, 1) {
		return 0
	}
	return ret
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
