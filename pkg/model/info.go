package model

type TrackLayout struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// TrackStatusPeriod is a track status in frame time. EndTime is nil for the
// period lasting until the end of the session.
type TrackStatusPeriod struct {
	Status    string   `json:"status"`
	StartTime float64  `json:"start_time"`
	EndTime   *float64 `json:"end_time"`
}

type RGB [3]uint8

// SessionInfo contains the data which is computed once per session
type SessionInfo struct {
	Key             SessionKey
	EventName       string
	RoundNumber     int
	TrackLayout     TrackLayout
	CircuitRotation float64
	DriverNames     map[string]string // code -> display name
	DriverTeams     map[string]string // code -> team
	DriverColors    map[string]RGB    // code -> color
	TrackStatuses   []TrackStatusPeriod
	TotalLaps       int
}

// SessionLabel returns the display label of the session type
func (s *SessionInfo) SessionLabel() string {
	return s.Key.Type.Label()
}

// StatusAt returns the track status active at frame time t
func (s *SessionInfo) StatusAt(t float64) string {
	status := TrackStatusGreen
	for _, p := range s.TrackStatuses {
		if p.StartTime <= t && (p.EndTime == nil || t < *p.EndTime) {
			status = p.Status
		}
	}
	return status
}
