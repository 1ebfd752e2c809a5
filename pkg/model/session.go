package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SessionType is the short code of a session within a race weekend
type SessionType string

const (
	SessionTypeRace             SessionType = "R"
	SessionTypeSprint           SessionType = "S"
	SessionTypeQualifying       SessionType = "Q"
	SessionTypeSprintQualifying SessionType = "SQ"
	SessionTypePractice1        SessionType = "FP1"
	SessionTypePractice2        SessionType = "FP2"
	SessionTypePractice3        SessionType = "FP3"
)

// track status codes as used by the timing feed
const (
	TrackStatusGreen               = "1"
	TrackStatusYellow              = "2"
	TrackStatusSafetyCar           = "4"
	TrackStatusRed                 = "5"
	TrackStatusVirtualSafetyCar    = "6"
	TrackStatusVirtualSafetyCarEnd = "7"
)

const (
	sessionKeySeparator = "_"
	sessionKeyParts     = 3
)

var ErrInvalidSessionKey = errors.New("invalid session key")

//nolint:gochecknoglobals // lookup table
var sessionLabels = map[SessionType]string{
	SessionTypeRace:             "Race",
	SessionTypeSprint:           "Sprint",
	SessionTypeQualifying:       "Qualifying",
	SessionTypeSprintQualifying: "Sprint Qualifying",
	SessionTypePractice1:        "Practice 1",
	SessionTypePractice2:        "Practice 2",
	SessionTypePractice3:        "Practice 3",
}

func ParseSessionType(s string) (SessionType, error) {
	st := SessionType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := sessionLabels[st]; !ok {
		return "", fmt.Errorf("unknown session type %q", s)
	}
	return st, nil
}

func (s SessionType) Label() string {
	if l, ok := sessionLabels[s]; ok {
		return l
	}
	return string(s)
}

// IsRaceLike is true for sessions where positions are determined by
// distance covered.
func (s SessionType) IsRaceLike() bool {
	return s == SessionTypeRace || s == SessionTypeSprint
}

// SessionKey identifies a session. Its string form is used as session id.
type SessionKey struct {
	Year  int
	Round int
	Type  SessionType
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%d%s%d%s%s",
		k.Year, sessionKeySeparator, k.Round, sessionKeySeparator, k.Type)
}

func ParseSessionKey(id string) (SessionKey, error) {
	parts := strings.Split(id, sessionKeySeparator)
	if len(parts) != sessionKeyParts {
		return SessionKey{}, fmt.Errorf("%w: %q", ErrInvalidSessionKey, id)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return SessionKey{}, fmt.Errorf("%w: %q", ErrInvalidSessionKey, id)
	}
	round, err := strconv.Atoi(parts[1])
	if err != nil {
		return SessionKey{}, fmt.Errorf("%w: %q", ErrInvalidSessionKey, id)
	}
	st, err := ParseSessionType(parts[2])
	if err != nil {
		return SessionKey{}, fmt.Errorf("%w: %w", ErrInvalidSessionKey, err)
	}
	return SessionKey{Year: year, Round: round, Type: st}, nil
}

// Session holds all data of a loaded session. It is not modified after loading.
type Session struct {
	Key         SessionKey
	EventName   string
	RoundNumber int
	// scheduled number of laps, 0 if unknown
	ScheduledLaps int
	Drivers       []Driver
	Laps          []Lap
	// telemetry samples by driver number
	Telemetry   map[string][]TelemetrySample
	TrackStatus []TrackStatusChange
	// rotation from upstream circuit info (degrees), nil if not provided
	CircuitRotation *float64
}

type Driver struct {
	Number    string
	Code      string
	FirstName string
	LastName  string
	TeamName  string
	TeamColor string // hex, may be empty
}

type Lap struct {
	DriverNumber string
	LapNumber    int
	LapTime      float64 // seconds, NaN if not set
	Time         float64 // session time at end of lap
	Team         string
	Compound     string
	Deleted      bool
}

// HasValidTime is true if the lap time is usable for fastest lap selection
func (l *Lap) HasValidTime() bool {
	return !l.Deleted && !math.IsNaN(l.LapTime) && !math.IsInf(l.LapTime, 0) &&
		l.LapTime > 0
}

type TelemetrySample struct {
	Time     float64 // session time in seconds
	X        float64
	Y        float64
	Speed    float64
	Distance float64 // distance into the current lap
	Lap      int
	Gear     int
	DRS      int
	Tyre     int
}

type TrackStatusChange struct {
	Time   float64
	Status string
}

// DriverByNumber returns the driver with the given number
func (s *Session) DriverByNumber(num string) (Driver, bool) {
	for i := range s.Drivers {
		if s.Drivers[i].Number == num {
			return s.Drivers[i], true
		}
	}
	return Driver{}, false
}

// LapsOf returns the laps of a driver in the order they appear in the lap table
func (s *Session) LapsOf(num string) []Lap {
	ret := make([]Lap, 0)
	for i := range s.Laps {
		if s.Laps[i].DriverNumber == num {
			ret = append(ret, s.Laps[i])
		}
	}
	return ret
}
