// Package synchronizer merges the irregularly sampled telemetry of all drivers
// into frames on a uniform clock.
//
// Frame i is located at session time StartTime + i/FrameRate, where StartTime
// is the earliest sample of any driver. The frames cover the session up to the
// latest sample of any driver.
//
// Resampling policy:
//   - x, y, speed and distance into lap are linearly interpolated between the
//     surrounding samples. Distance into lap is taken from the prior sample when
//     the lap changes between the two samples.
//   - lap, gear, DRS and tyre use the nearest prior sample. Laps never decrease
//     for a driver.
//   - before its first sample a driver holds the first sample with status
//     not_started, after its last sample the last state with status retired.
package synchronizer

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/f1replay-service-go/log"
	"github.com/mpapenbr/f1replay-service-go/pkg/model"
)

const DefaultFrameRate = 25

type (
	Option  func(*options)
	options struct {
		frameRate int
		codes     map[string]string
		lapLength float64
		l         *log.Logger
	}
	Result struct {
		Frames []model.Frame
		// session time of frame 0
		StartTime float64
		FrameRate int
	}
)

func WithFrameRate(fps int) Option {
	return func(o *options) {
		if fps > 0 {
			o.frameRate = fps
		}
	}
}

// WithDriverCodes sets the frame keys by driver number. Drivers not contained
// use the code of the session data.
func WithDriverCodes(codes map[string]string) Option {
	return func(o *options) {
		o.codes = codes
	}
}

// WithReferenceLapLength sets the lap length used for race distances. By
// default it is derived from the fastest lap.
func WithReferenceLapLength(length float64) Option {
	return func(o *options) {
		o.lapLength = length
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.l = l
	}
}

// Duration is the time span covered by the frames
func (r *Result) Duration() time.Duration {
	if len(r.Frames) == 0 {
		return 0
	}
	return time.Duration(r.Frames[len(r.Frames)-1].T * float64(time.Second))
}

// driverTrack is the resampled data of a single driver
type driverTrack struct {
	number string
	code   string
	states []model.DriverState
}

// Synchronize computes the frames for session s. A session without drivers,
// laps or telemetry yields a result with no frames.
//
//nolint:whitespace // can't make both editor and linter happy
func Synchronize(
	ctx context.Context, s *model.Session, opts ...Option,
) (*Result, error) {
	o := &options{frameRate: DefaultFrameRate, l: log.Default().Named("sync")}
	for _, opt := range opts {
		opt(o)
	}
	ret := &Result{Frames: []model.Frame{}, FrameRate: o.frameRate}
	tracks := collectDrivers(s, o.codes)
	t0, tEnd, ok := timeRange(s)
	if len(tracks) == 0 || len(s.Laps) == 0 || !ok {
		o.l.Debug("nothing to synchronize",
			log.String("session", s.Key.String()),
			log.Int("drivers", len(tracks)),
			log.Int("laps", len(s.Laps)))
		return ret, nil
	}
	ret.StartTime = t0
	lapLength := o.lapLength
	if lapLength <= 0 {
		lapLength = ReferenceLapLength(s)
	}
	fps := float64(o.frameRate)
	n := int(math.Floor((tEnd-t0)*fps)) + 1
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i := range tracks {
		tr := &tracks[i]
		g.Go(func() error {
			states, err := resample(gctx, s.Telemetry[tr.number], t0, fps, n, lapLength)
			if err != nil {
				return err
			}
			tr.states = states
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	raceLike := s.Key.Type.IsRaceLike()
	var best *bestLaps
	if !raceLike {
		best = newBestLaps(s, tracks)
	}
	status := newStatusLookup(s.TrackStatus)
	order := make([]int, len(tracks))
	ret.Frames = make([]model.Frame, n)
	for i := range n {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		t := t0 + float64(i)/fps
		if raceLike {
			orderByDistance(order, tracks, i)
		} else {
			orderByBestLap(order, tracks, best.at(t))
		}
		f := model.Frame{
			Index:       i,
			T:           float64(i) / fps,
			TrackStatus: status.at(t),
			Drivers:     make(map[string]model.DriverState, len(tracks)),
		}
		for pos, idx := range order {
			state := tracks[idx].states[i]
			state.Position = pos + 1
			f.Drivers[tracks[idx].code] = state
			if pos == 0 {
				f.Leader = tracks[idx].code
				f.Lap = state.Lap
			}
		}
		ret.Frames[i] = f
	}
	o.l.Debug("session synchronized",
		log.String("session", s.Key.String()),
		log.Int("frames", n),
		log.Int("drivers", len(tracks)),
		log.Float("lapLength", lapLength),
		log.Duration("duration", time.Since(start)))
	return ret, nil
}

// collectDrivers returns the drivers of the session followed by drivers which
// only appear in the telemetry.
func collectDrivers(s *model.Session, codes map[string]string) []driverTrack {
	ret := []driverTrack{}
	seen := map[string]bool{}
	code := func(num, fallback string) string {
		if c, ok := codes[num]; ok && c != "" {
			return c
		}
		if fallback != "" {
			return fallback
		}
		return num
	}
	for _, d := range s.Drivers {
		if seen[d.Number] {
			continue
		}
		seen[d.Number] = true
		ret = append(ret, driverTrack{number: d.Number, code: code(d.Number, d.Code)})
	}
	extra := []string{}
	for num := range s.Telemetry {
		if !seen[num] {
			extra = append(extra, num)
		}
	}
	sort.Strings(extra)
	for _, num := range extra {
		ret = append(ret, driverTrack{number: num, code: code(num, "")})
	}
	return ret
}

func timeRange(s *model.Session) (t0, tEnd float64, ok bool) {
	t0, tEnd = math.Inf(1), math.Inf(-1)
	for _, samples := range s.Telemetry {
		if len(samples) == 0 {
			continue
		}
		t0 = math.Min(t0, samples[0].Time)
		tEnd = math.Max(tEnd, samples[len(samples)-1].Time)
		ok = true
	}
	return t0, tEnd, ok
}

// ReferenceLapLength is the largest distance into lap recorded on the fastest
// lap. If there is no such lap the largest distance of all samples is used.
func ReferenceLapLength(s *model.Session) float64 {
	maxDist := func(samples []model.TelemetrySample, lap int) float64 {
		ret := 0.0
		for i := range samples {
			if lap > 0 && samples[i].Lap != lap {
				continue
			}
			if d := samples[i].Distance; !math.IsNaN(d) && !math.IsInf(d, 0) && d > ret {
				ret = d
			}
		}
		return ret
	}
	if fastest, ok := FastestLap(s.Laps); ok {
		if l := maxDist(s.Telemetry[fastest.DriverNumber], fastest.LapNumber); l > 0 {
			return l
		}
	}
	ret := 0.0
	for _, samples := range s.Telemetry {
		ret = math.Max(ret, maxDist(samples, 0))
	}
	return ret
}

// FastestLap returns the lap with the lowest valid lap time. Ties are resolved
// by order of appearance.
func FastestLap(laps []model.Lap) (model.Lap, bool) {
	var (
		ret   model.Lap
		found bool
	)
	for i := range laps {
		if !laps[i].HasValidTime() {
			continue
		}
		if !found || laps[i].LapTime < ret.LapTime {
			ret = laps[i]
			found = true
		}
	}
	return ret, found
}
