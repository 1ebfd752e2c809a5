// Package basedata provides synthetic sessions for tests.
package basedata

import (
	"math"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
)

const (
	// length of the synthetic circuit in meters
	TrackLength = 1000.0
	SessionLaps = 3
	StartTime   = 3600.0
)

type sampleDriver struct {
	driver model.Driver
	offset float64 // start delay in seconds
	dt     float64 // sample interval
	speed  float64 // m/s
}

//nolint:gochecknoglobals // test data
var drivers = []sampleDriver{
	{
		driver: model.Driver{
			Number: "1", Code: "VER", FirstName: "Max", LastName: "Verstappen",
			TeamName: "Red Bull Racing", TeamColor: "3671C6",
		},
		offset: 0, dt: 0.27, speed: 50,
	},
	{
		driver: model.Driver{
			Number: "4", Code: "NOR", FirstName: "Lando", LastName: "Norris",
			TeamName: "McLaren", TeamColor: "FF8000",
		},
		offset: 0.1, dt: 0.31, speed: 48,
	},
	{
		driver: model.Driver{
			Number: "43", Code: "COL", FirstName: "Franco", LastName: "Colapinto",
			TeamName: "Alpine",
		},
		offset: 0.05, dt: 0.23, speed: 45,
	},
}

func SampleKey() model.SessionKey {
	return model.SessionKey{Year: 2025, Round: 1, Type: model.SessionTypeRace}
}

// TrackPosition returns the coordinates of the synthetic ellipse circuit at
// distance d into the lap.
func TrackPosition(d float64) (x, y float64) {
	theta := 2 * math.Pi * d / TrackLength
	return 400 * math.Cos(theta), 150 * math.Sin(theta)
}

// SampleSession returns a three driver race over SessionLaps laps. Drivers
// run at constant but different speeds and are sampled at different rates.
func SampleSession() *model.Session {
	return SampleSessionWithType(model.SessionTypeRace)
}

func SampleSessionWithType(st model.SessionType) *model.Session {
	key := SampleKey()
	key.Type = st
	s := &model.Session{
		Key:           key,
		EventName:     "Test Grand Prix",
		RoundNumber:   key.Round,
		ScheduledLaps: SessionLaps,
		Telemetry:     map[string][]model.TelemetrySample{},
		TrackStatus: []model.TrackStatusChange{
			{Time: StartTime, Status: model.TrackStatusGreen},
			{Time: StartTime + 25, Status: model.TrackStatusSafetyCar},
			{Time: StartTime + 40, Status: model.TrackStatusGreen},
		},
	}
	for _, d := range drivers {
		s.Drivers = append(s.Drivers, d.driver)
		s.Telemetry[d.driver.Number] = samples(d)
		s.Laps = append(s.Laps, laps(d)...)
	}
	return s
}

func samples(d sampleDriver) []model.TelemetrySample {
	start := StartTime + d.offset
	ret := []model.TelemetrySample{}
	for k := 0; ; k++ {
		t := start + float64(k)*d.dt
		total := d.speed * (t - start)
		if total >= SessionLaps*TrackLength {
			break
		}
		lap := int(total/TrackLength) + 1
		dist := total - float64(lap-1)*TrackLength
		x, y := TrackPosition(dist)
		ret = append(ret, model.TelemetrySample{
			Time:     t,
			X:        x,
			Y:        y,
			Speed:    d.speed * 3.6,
			Distance: dist,
			Lap:      lap,
			Gear:     7,
			Tyre:     2,
		})
	}
	return ret
}

func laps(d sampleDriver) []model.Lap {
	lapTime := TrackLength / d.speed
	ret := make([]model.Lap, 0, SessionLaps)
	for i := 1; i <= SessionLaps; i++ {
		ret = append(ret, model.Lap{
			DriverNumber: d.driver.Number,
			LapNumber:    i,
			LapTime:      lapTime,
			Time:         StartTime + d.offset + float64(i)*lapTime,
			Team:         d.driver.TeamName,
			Compound:     "MEDIUM",
		})
	}
	// the first lap has no valid time in the timing feed
	ret[0].LapTime = math.NaN()
	return ret
}
