package synchronizer

import (
	"context"
	"math"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
)

// resample computes the state of one driver for each of the n frames.
// Position is assigned later when all drivers are known.
//
//nolint:whitespace,funlen // can't make both editor and linter happy
func resample(
	ctx context.Context,
	samples []model.TelemetrySample,
	t0, fps float64,
	n int,
	lapLength float64,
) ([]model.DriverState, error) {
	ret := make([]model.DriverState, n)
	if len(samples) == 0 {
		for i := range ret {
			ret[i] = model.DriverState{Lap: 1, Status: model.DriverStatusNotStarted}
		}
		return ret, nil
	}
	first, last := samples[0], samples[len(samples)-1]
	maxLap := 1
	j := 0
	for i := range n {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		t := t0 + float64(i)/fps
		switch {
		case t < first.Time:
			ret[i] = stepState(first, max(first.Lap, 1), lapLength,
				model.DriverStatusNotStarted)
			continue
		case t > last.Time:
			maxLap = max(maxLap, last.Lap)
			ret[i] = stepState(last, maxLap, lapLength, model.DriverStatusRetired)
			continue
		}
		for j+1 < len(samples) && samples[j+1].Time <= t {
			j++
		}
		prev := samples[j]
		maxLap = max(maxLap, prev.Lap)
		if j+1 == len(samples) {
			ret[i] = stepState(prev, maxLap, lapLength, model.DriverStatusRunning)
			continue
		}
		next := samples[j+1]
		frac := 0.0
		if dt := next.Time - prev.Time; dt > 0 {
			frac = (t - prev.Time) / dt
		}
		dist := prev.Distance
		if next.Lap == prev.Lap {
			dist = lerp(prev.Distance, next.Distance, frac)
		}
		ret[i] = model.DriverState{
			X:       lerp(prev.X, next.X, frac),
			Y:       lerp(prev.Y, next.Y, frac),
			Speed:   lerp(prev.Speed, next.Speed, frac),
			Dist:    raceDistance(maxLap, dist, lapLength),
			RelDist: relDistance(dist, lapLength),
			Lap:     maxLap,
			Tyre:    prev.Tyre,
			Gear:    prev.Gear,
			DRS:     prev.DRS,
			Status:  model.DriverStatusRunning,
		}
	}
	return ret, nil
}

func stepState(s model.TelemetrySample, lap int, lapLength float64, status string) model.DriverState {
	return model.DriverState{
		X:       s.X,
		Y:       s.Y,
		Speed:   s.Speed,
		Dist:    raceDistance(lap, s.Distance, lapLength),
		RelDist: relDistance(s.Distance, lapLength),
		Lap:     lap,
		Tyre:    s.Tyre,
		Gear:    s.Gear,
		DRS:     s.DRS,
		Status:  status,
	}
}

// lerp interpolates between a and b. If one of them is not finite the other
// one is used.
func lerp(a, b, frac float64) float64 {
	switch {
	case !finite(a):
		return b
	case !finite(b):
		return a
	}
	return a + (b-a)*frac
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func raceDistance(lap int, dist, lapLength float64) float64 {
	if !finite(dist) {
		dist = 0
	}
	return float64(lap-1)*lapLength + dist
}

func relDistance(dist, lapLength float64) float64 {
	if lapLength <= 0 || !finite(dist) {
		return 0
	}
	return math.Max(0, math.Min(1, dist/lapLength))
}
