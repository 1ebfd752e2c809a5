package model

// driver states within a frame
const (
	DriverStatusRunning    = "running"
	DriverStatusNotStarted = "not_started"
	DriverStatusRetired    = "retired"
)

// Frame is the synchronized state of all drivers at one point of the frame clock.
type Frame struct {
	Index       int                    `json:"index"`
	T           float64                `json:"t"` // seconds since first frame
	Lap         int                    `json:"lap"`
	Leader      string                 `json:"leader"`
	TrackStatus string                 `json:"track_status"`
	Drivers     map[string]DriverState `json:"drivers"` // key is driver code
}

type DriverState struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Dist     float64 `json:"dist"`     // race distance
	RelDist  float64 `json:"rel_dist"` // fraction of current lap
	Lap      int     `json:"lap"`
	Tyre     int     `json:"tyre"`
	Position int     `json:"position"`
	Speed    float64 `json:"speed"`
	Gear     int     `json:"gear"`
	DRS      int     `json:"drs"`
	Status   string  `json:"status"`
}
