package viewer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
)

const (
	trackRune = '·'
	// terminal cells are about twice as high as wide
	cellAspect = 2.0
)

// projection maps circuit coordinates to terminal cells. The layout is rotated
// by the circuit rotation and scaled to fit into w x h cells.
type projection struct {
	cos, sin   float64
	minX, maxY float64
	scale      float64
	offCol     int
	offRow     int
	w, h       int
}

func newProjection(layout model.TrackLayout, rotation float64, w, h int) *projection {
	rad := rotation * math.Pi / 180
	p := &projection{cos: math.Cos(rad), sin: math.Sin(rad), w: w, h: h}
	if w < 2 || h < 2 || len(layout.X) == 0 {
		return p
	}
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i := range layout.X {
		x, y := p.rotate(layout.X[i], layout.Y[i])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	spanX, spanY := maxX-minX, maxY-minY
	scaleX := math.Inf(1)
	if spanX > 0 {
		scaleX = float64(w-1) / spanX
	}
	scaleY := math.Inf(1)
	if spanY > 0 {
		scaleY = float64(h-1) * cellAspect / spanY
	}
	p.scale = math.Min(scaleX, scaleY)
	if math.IsInf(p.scale, 0) {
		p.scale = 1
	}
	p.minX, p.maxY = minX, maxY
	p.offCol = int((float64(w-1) - spanX*p.scale) / 2)
	p.offRow = int((float64(h-1) - spanY*p.scale/cellAspect) / 2)
	return p
}

func (p *projection) rotate(x, y float64) (rx, ry float64) {
	return x*p.cos - y*p.sin, x*p.sin + y*p.cos
}

// cell returns the cell of a circuit position. ok is false for positions
// outside the grid or non-finite input.
func (p *projection) cell(x, y float64) (col, row int, ok bool) {
	if p.scale == 0 || math.IsNaN(x) || math.IsNaN(y) {
		return 0, 0, false
	}
	rx, ry := p.rotate(x, y)
	col = p.offCol + int(math.Round((rx-p.minX)*p.scale))
	row = p.offRow + int(math.Round((p.maxY-ry)*p.scale/cellAspect))
	if col < 0 || col >= p.w || row < 0 || row >= p.h {
		return 0, 0, false
	}
	return col, row, true
}

type trackMap struct {
	proj  *projection
	base  [][]rune
	style map[string]lipgloss.Style
}

func newTrackMap(info *model.SessionInfo, w, h int) *trackMap {
	proj := newProjection(info.TrackLayout, info.CircuitRotation, w, h)
	base := make([][]rune, h)
	for i := range base {
		base[i] = []rune(strings.Repeat(" ", w))
	}
	for i := range info.TrackLayout.X {
		if col, row, ok := proj.cell(info.TrackLayout.X[i], info.TrackLayout.Y[i]); ok {
			base[row][col] = trackRune
		}
	}
	style := make(map[string]lipgloss.Style, len(info.DriverColors))
	for code, c := range info.DriverColors {
		style[code] = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])))
	}
	return &trackMap{proj: proj, base: base, style: style}
}

// render draws the drivers of f on top of the track. Labels of drivers further
// ahead are drawn last.
func (t *trackMap) render(f *model.Frame) string {
	type label struct {
		col  int
		code string
	}
	rows := make(map[int][]label)
	for _, code := range orderedCodes(f) {
		st := f.Drivers[code]
		if st.Status != model.DriverStatusRunning {
			continue
		}
		col, row, ok := t.proj.cell(st.X, st.Y)
		if !ok {
			continue
		}
		rows[row] = append([]label{{col: col, code: code}}, rows[row]...)
	}
	var sb strings.Builder
	for r, line := range t.base {
		labels := rows[r]
		if len(labels) == 0 {
			sb.WriteString(string(line))
		} else {
			// later labels overwrite earlier ones
			owner := make([]int, len(line))
			for i := range owner {
				owner[i] = -1
			}
			for li, l := range labels {
				for i := range len(l.code) {
					if c := l.col + i; c < len(line) {
						owner[c] = li
					}
				}
			}
			for c := 0; c < len(line); {
				li := owner[c]
				if li < 0 {
					sb.WriteRune(line[c])
					c++
					continue
				}
				l := labels[li]
				end := c
				for end < len(line) && owner[end] == li {
					end++
				}
				text := l.code[c-l.col : end-l.col]
				if st, ok := t.style[l.code]; ok {
					text = st.Render(text)
				}
				sb.WriteString(text)
				c = end
			}
		}
		if r < len(t.base)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// orderedCodes returns the driver codes of f by position, leader first
func orderedCodes(f *model.Frame) []string {
	ret := make([]string, 0, len(f.Drivers))
	for code := range f.Drivers {
		ret = append(ret, code)
	}
	sort.Slice(ret, func(i, j int) bool {
		pi, pj := f.Drivers[ret[i]].Position, f.Drivers[ret[j]].Position
		if pi != pj {
			return pi < pj
		}
		return ret[i] < ret[j]
	})
	return ret
}
