//nolint:thelper,funlen // ok for tests
package synchronizer

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/testsupport/basedata"
)

// frameAt returns the index of the first frame at or after session time t
func frameAt(r *Result, t float64) int {
	return int(math.Ceil((t - r.StartTime) * float64(r.FrameRate)))
}

func TestSynchronizeFrameProperties(t *testing.T) {
	s := basedata.SampleSession()
	r, err := Synchronize(context.Background(), s)
	require.NoError(t, err)

	require.NotEmpty(t, r.Frames)
	assert.Equal(t, DefaultFrameRate, r.FrameRate)
	assert.Equal(t, basedata.StartTime, r.StartTime)

	last := s.Telemetry["43"][len(s.Telemetry["43"])-1].Time
	assert.Len(t, r.Frames, int(math.Floor((last-r.StartTime)*DefaultFrameRate))+1)

	laps := map[string]int{}
	for i, f := range r.Frames {
		require.Equal(t, i, f.Index)
		if i > 0 {
			require.Greater(t, f.T, r.Frames[i-1].T)
		}
		require.Len(t, f.Drivers, 3, "frame %d", i)
		positions := map[int]bool{}
		for code, d := range f.Drivers {
			require.GreaterOrEqual(t, d.Lap, laps[code], "lap of %s decreased at frame %d", code, i)
			laps[code] = d.Lap
			require.GreaterOrEqual(t, d.RelDist, 0.0)
			require.LessOrEqual(t, d.RelDist, 1.0)
			positions[d.Position] = true
		}
		assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, positions)
		assert.Equal(t, f.Drivers[f.Leader].Lap, f.Lap)
		assert.Equal(t, 1, f.Drivers[f.Leader].Position)
	}
	assert.Equal(t, basedata.SessionLaps, laps["VER"])
}

func TestSynchronizeDriverStates(t *testing.T) {
	s := basedata.SampleSession()
	r, err := Synchronize(context.Background(), s)
	require.NoError(t, err)

	// NOR starts 0.1s after the first sample
	assert.Equal(t, model.DriverStatusNotStarted, r.Frames[0].Drivers["NOR"].Status)
	assert.Equal(t, model.DriverStatusNotStarted, r.Frames[2].Drivers["NOR"].Status)
	assert.Equal(t, model.DriverStatusRunning, r.Frames[3].Drivers["NOR"].Status)
	assert.Equal(t, model.DriverStatusRunning, r.Frames[0].Drivers["VER"].Status)

	// VER is the first to end its data, COL the last
	lastFrame := r.Frames[len(r.Frames)-1]
	assert.Equal(t, model.DriverStatusRetired, lastFrame.Drivers["VER"].Status)
	assert.Equal(t, model.DriverStatusRunning, lastFrame.Drivers["COL"].Status)
	assert.Equal(t, basedata.SessionLaps, lastFrame.Drivers["VER"].Lap)

	// interpolated position follows the circuit
	i := frameAt(r, basedata.StartTime+30)
	ver := r.Frames[i].Drivers["VER"]
	covered := 50 * r.Frames[i].T
	x, y := basedata.TrackPosition(math.Mod(covered, basedata.TrackLength))
	assert.InDelta(t, x, ver.X, 1.0)
	assert.InDelta(t, y, ver.Y, 1.0)
	assert.InDelta(t, 180.0, ver.Speed, 1e-9)
	assert.Equal(t, 2, ver.Lap)
	assert.Equal(t, 7, ver.Gear)
	assert.Equal(t, 2, ver.Tyre)
}

func TestSynchronizeRaceOrder(t *testing.T) {
	s := basedata.SampleSession()
	r, err := Synchronize(context.Background(), s)
	require.NoError(t, err)

	f := r.Frames[frameAt(r, basedata.StartTime+30)]
	assert.Equal(t, "VER", f.Leader)
	assert.Equal(t, 1, f.Drivers["VER"].Position)
	assert.Equal(t, 2, f.Drivers["NOR"].Position)
	assert.Equal(t, 3, f.Drivers["COL"].Position)
	assert.Equal(t, f.Drivers["VER"].Lap, f.Lap)
	assert.Greater(t, f.Drivers["VER"].Dist, f.Drivers["NOR"].Dist)
}

func TestSynchronizeTrackStatus(t *testing.T) {
	s := basedata.SampleSession()
	r, err := Synchronize(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, model.TrackStatusGreen, r.Frames[frameAt(r, basedata.StartTime+10)].TrackStatus)
	assert.Equal(t, model.TrackStatusSafetyCar,
		r.Frames[frameAt(r, basedata.StartTime+25)].TrackStatus)
	assert.Equal(t, model.TrackStatusSafetyCar,
		r.Frames[frameAt(r, basedata.StartTime+39)].TrackStatus)
	assert.Equal(t, model.TrackStatusGreen, r.Frames[frameAt(r, basedata.StartTime+41)].TrackStatus)

	// green before the first change
	s.TrackStatus = []model.TrackStatusChange{
		{Time: basedata.StartTime + 5, Status: model.TrackStatusRed},
	}
	r, err = Synchronize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, model.TrackStatusGreen, r.Frames[0].TrackStatus)
	assert.Equal(t, model.TrackStatusRed, r.Frames[len(r.Frames)-1].TrackStatus)
}

func TestSynchronizeQualifyingOrder(t *testing.T) {
	s := basedata.SampleSessionWithType(model.SessionTypeQualifying)
	r, err := Synchronize(context.Background(), s)
	require.NoError(t, err)

	// no completed valid lap: ordered by code
	f := r.Frames[frameAt(r, basedata.StartTime+10)]
	assert.Equal(t, "COL", f.Leader)
	assert.Equal(t, 2, f.Drivers["NOR"].Position)
	assert.Equal(t, 3, f.Drivers["VER"].Position)

	// VER completes lap 2 (20s) at 40s
	f = r.Frames[frameAt(r, basedata.StartTime+41)]
	assert.Equal(t, "VER", f.Leader)
	assert.Equal(t, 2, f.Drivers["COL"].Position)
	assert.Equal(t, 3, f.Drivers["NOR"].Position)

	f = r.Frames[len(r.Frames)-1]
	assert.Equal(t, 1, f.Drivers["VER"].Position)
	assert.Equal(t, 2, f.Drivers["NOR"].Position)
	assert.Equal(t, 3, f.Drivers["COL"].Position)
}

func TestSynchronizeDriverCodes(t *testing.T) {
	s := basedata.SampleSession()
	r, err := Synchronize(context.Background(), s,
		WithDriverCodes(map[string]string{"43": "DOO"}))
	require.NoError(t, err)
	for _, f := range r.Frames {
		_, hasDOO := f.Drivers["DOO"]
		_, hasCOL := f.Drivers["COL"]
		require.True(t, hasDOO)
		require.False(t, hasCOL)
	}
}

func TestSynchronizeTelemetryOnlyDriver(t *testing.T) {
	s := basedata.SampleSession()
	s.Telemetry["99"] = s.Telemetry["4"]
	// known driver without any telemetry
	s.Drivers = append(s.Drivers, model.Driver{Number: "5", Code: "BOR"})
	r, err := Synchronize(context.Background(), s)
	require.NoError(t, err)
	f := r.Frames[10]
	assert.Len(t, f.Drivers, 5)
	assert.Contains(t, f.Drivers, "99")
	assert.Equal(t, model.DriverStatusNotStarted, f.Drivers["BOR"].Status)
	assert.Equal(t, 5, f.Drivers["BOR"].Position)
}

func TestSynchronizeEmpty(t *testing.T) {
	tests := []struct {
		name   string
		modify func(s *model.Session)
	}{
		{"no drivers", func(s *model.Session) {
			s.Drivers = nil
			s.Telemetry = map[string][]model.TelemetrySample{}
		}},
		{"no laps", func(s *model.Session) { s.Laps = nil }},
		{"no telemetry", func(s *model.Session) {
			s.Telemetry = map[string][]model.TelemetrySample{}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := basedata.SampleSession()
			tt.modify(s)
			r, err := Synchronize(context.Background(), s)
			require.NoError(t, err)
			assert.NotNil(t, r.Frames)
			assert.Empty(t, r.Frames)
			assert.Equal(t, DefaultFrameRate, r.FrameRate)
		})
	}
}

func TestSynchronizeFrameRate(t *testing.T) {
	s := basedata.SampleSession()
	r, err := Synchronize(context.Background(), s, WithFrameRate(10))
	require.NoError(t, err)
	assert.Equal(t, 10, r.FrameRate)
	assert.InDelta(t, 0.1, r.Frames[1].T, 1e-12)
	assert.InDelta(t, 66.5, r.Duration().Seconds(), 0.2)
}

func TestSynchronizeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Synchronize(ctx, basedata.SampleSession())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynchronizeNonFinite(t *testing.T) {
	s := basedata.SampleSession()
	samples := s.Telemetry["1"]
	for i := 10; i < 20; i++ {
		samples[i].X = math.NaN()
		samples[i].Distance = math.NaN()
	}
	r, err := Synchronize(context.Background(), s)
	require.NoError(t, err)
	for _, f := range r.Frames {
		d := f.Drivers["VER"]
		require.False(t, math.IsNaN(d.Dist))
		require.False(t, math.IsNaN(d.RelDist))
	}
}

func TestFastestLap(t *testing.T) {
	s := basedata.SampleSession()
	l, ok := FastestLap(s.Laps)
	require.True(t, ok)
	assert.Equal(t, "1", l.DriverNumber)
	assert.Equal(t, 2, l.LapNumber)

	_, ok = FastestLap([]model.Lap{{LapTime: math.NaN()}, {LapTime: 80, Deleted: true}})
	assert.False(t, ok)
}

func TestReferenceLapLength(t *testing.T) {
	l := ReferenceLapLength(basedata.SampleSession())
	assert.InDelta(t, basedata.TrackLength, l, 14)
	assert.LessOrEqual(t, l, basedata.TrackLength)
}
