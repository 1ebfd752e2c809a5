package synchronizer

import (
	"math"
	"sort"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
)

// orderByDistance sorts the track indexes by race distance at frame i.
// Ties are ordered by driver code.
func orderByDistance(order []int, tracks []driverTrack, i int) {
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		da, db := tracks[order[a]].states[i].Dist, tracks[order[b]].states[i].Dist
		if da != db {
			return da > db
		}
		return tracks[order[a]].code < tracks[order[b]].code
	})
}

// orderByBestLap sorts the track indexes by best lap time. Drivers without a
// time (NaN) are placed after, ordered by code.
func orderByBestLap(order []int, tracks []driverTrack, best []float64) {
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		ba, bb := best[order[a]], best[order[b]]
		na, nb := math.IsNaN(ba), math.IsNaN(bb)
		switch {
		case na != nb:
			return nb
		case !na && ba != bb:
			return ba < bb
		}
		return tracks[order[a]].code < tracks[order[b]].code
	})
}

type lapDone struct {
	time    float64
	lapTime float64
}

// bestLaps provides the best lap time of each driver at increasing session times
type bestLaps struct {
	done [][]lapDone // by track index, ordered by time
	next []int
	best []float64
}

func newBestLaps(s *model.Session, tracks []driverTrack) *bestLaps {
	idx := make(map[string]int, len(tracks))
	for i := range tracks {
		idx[tracks[i].number] = i
	}
	ret := &bestLaps{
		done: make([][]lapDone, len(tracks)),
		next: make([]int, len(tracks)),
		best: make([]float64, len(tracks)),
	}
	for i := range ret.best {
		ret.best[i] = math.NaN()
	}
	for i := range s.Laps {
		l := &s.Laps[i]
		k, ok := idx[l.DriverNumber]
		if !ok || !l.HasValidTime() || !finite(l.Time) {
			continue
		}
		ret.done[k] = append(ret.done[k], lapDone{time: l.Time, lapTime: l.LapTime})
	}
	for k := range ret.done {
		sort.Slice(ret.done[k], func(a, b int) bool {
			return ret.done[k][a].time < ret.done[k][b].time
		})
	}
	return ret
}

// at returns the best lap times of laps completed until t.
// t must not decrease between calls.
func (b *bestLaps) at(t float64) []float64 {
	for k, laps := range b.done {
		for b.next[k] < len(laps) && laps[b.next[k]].time <= t {
			lt := laps[b.next[k]].lapTime
			if math.IsNaN(b.best[k]) || lt < b.best[k] {
				b.best[k] = lt
			}
			b.next[k]++
		}
	}
	return b.best
}

// statusLookup returns the track status at increasing session times
type statusLookup struct {
	changes []model.TrackStatusChange
	next    int
	current string
}

func newStatusLookup(changes []model.TrackStatusChange) *statusLookup {
	sorted := make([]model.TrackStatusChange, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Time < sorted[b].Time })
	return &statusLookup{changes: sorted, current: model.TrackStatusGreen}
}

func (s *statusLookup) at(t float64) string {
	for s.next < len(s.changes) && s.changes[s.next].Time <= t {
		if st := s.changes[s.next].Status; st != "" {
			s.current = st
		}
		s.next++
	}
	return s.current
}
