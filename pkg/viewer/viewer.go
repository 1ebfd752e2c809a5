// Package viewer provides the terminal replay viewer and the session
// selection menu.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/utils/cache"
)

const (
	defaultTick = 50 * time.Millisecond
	seekStep    = 5 * time.Second
	minSpeed    = 0.25
	maxSpeed    = 64.0
	boardWidth  = 62
	teamWidth   = 16
)

var ErrNoFrames = errors.New("session has no frames")

//nolint:gochecknoglobals // styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	statusStyle = map[string]lipgloss.Style{
		model.TrackStatusGreen:               lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950")),
		model.TrackStatusYellow:              lipgloss.NewStyle().Foreground(lipgloss.Color("#F2CC60")),
		model.TrackStatusSafetyCar:           lipgloss.NewStyle().Foreground(lipgloss.Color("#F0883E")),
		model.TrackStatusRed:                 lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")),
		model.TrackStatusVirtualSafetyCar:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F0883E")),
		model.TrackStatusVirtualSafetyCarEnd: lipgloss.NewStyle().Foreground(lipgloss.Color("#F2CC60")),
	}
	statusLabel = map[string]string{
		model.TrackStatusGreen:               "Green",
		model.TrackStatusYellow:              "Yellow",
		model.TrackStatusSafetyCar:           "Safety Car",
		model.TrackStatusRed:                 "Red Flag",
		model.TrackStatusVirtualSafetyCar:    "VSC",
		model.TrackStatusVirtualSafetyCarEnd: "VSC Ending",
	}
)

type (
	tickMsg time.Time
	Option  func(*Model)
	// Model implements the Bubble Tea replay viewer
	Model struct {
		entry  *cache.Entry
		pos    float64 // fractional frame index
		speed  float64
		paused bool
		tick   time.Duration
		board  table.Model
		tmap   *trackMap
		last   time.Time
		width  int
		height int
	}
)

// WithSpeed sets the initial playback speed
func WithSpeed(s float64) Option {
	return func(m *Model) {
		m.speed = clampSpeed(s)
	}
}

func WithTick(d time.Duration) Option {
	return func(m *Model) {
		m.tick = d
	}
}

func New(entry *cache.Entry, opts ...Option) (*Model, error) {
	if entry == nil || entry.TotalFrames() == 0 {
		return nil, ErrNoFrames
	}
	m := &Model{entry: entry, speed: 1, tick: defaultTick}
	for _, opt := range opts {
		opt(m)
	}
	m.board = table.New(
		table.WithColumns(boardColumns()),
		table.WithHeight(len(entry.Frames[0].Drivers)+1),
	)
	m.refreshBoard()
	return m, nil
}

// Run shows the viewer until the user quits or ctx is done
func Run(ctx context.Context, entry *cache.Entry, opts ...Option) error {
	m, err := New(entry, opts...)
	if err != nil {
		return err
	}
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run viewer: %w", err)
	}
	return nil
}

func (m *Model) Init() tea.Cmd {
	m.last = time.Now()
	return m.tickCmd()
}

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.tmap = nil
		return m, nil
	case tickMsg:
		now := time.Time(msg)
		if !m.last.IsZero() {
			m.advance(now.Sub(m.last))
		}
		m.last = now
		return m, m.tickCmd()
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return tea.Quit
	case " ", "p":
		m.paused = !m.paused
	case "right", "l":
		m.seek(seekStep)
	case "left", "h":
		m.seek(-seekStep)
	case "up", "+":
		m.speed = clampSpeed(m.speed * 2)
	case "down", "-":
		m.speed = clampSpeed(m.speed / 2)
	case "home", "g":
		m.setPos(0)
	case "end", "G":
		m.setPos(float64(m.entry.TotalFrames() - 1))
	}
	return nil
}

// advance moves the playback position by the elapsed wall clock time
func (m *Model) advance(elapsed time.Duration) {
	if m.paused {
		return
	}
	m.setPos(m.pos + elapsed.Seconds()*m.speed*float64(m.entry.FrameRate))
	if m.Index() == m.entry.TotalFrames()-1 {
		m.paused = true
	}
}

func (m *Model) seek(d time.Duration) {
	m.setPos(m.pos + d.Seconds()*float64(m.entry.FrameRate))
}

func (m *Model) setPos(p float64) {
	last := float64(m.entry.TotalFrames() - 1)
	m.pos = math.Max(0, math.Min(p, last))
	m.refreshBoard()
}

// Index returns the index of the displayed frame
func (m *Model) Index() int {
	return int(m.pos)
}

func (m *Model) Speed() float64 {
	return m.speed
}

func (m *Model) Paused() bool {
	return m.paused
}

func (m *Model) frame() *model.Frame {
	return &m.entry.Frames[m.Index()]
}

func (m *Model) View() string {
	f := m.frame()
	header := m.renderHeader(f)
	board := m.board.View()
	footer := footerStyle.Render(
		"space pause · ←/→ seek 5s · ↑/↓ speed · g/G start/end · q quit")
	if m.width == 0 || m.height == 0 {
		return strings.Join([]string{header, board, footer}, "\n")
	}
	mapW := max(m.width-boardWidth-2, 10)
	mapH := max(m.height-lipgloss.Height(header)-2, 5)
	if m.tmap == nil {
		m.tmap = newTrackMap(m.entry.Info, mapW, mapH)
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.tmap.render(f), "  ", board)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) renderHeader(f *model.Frame) string {
	info := m.entry.Info
	title := fmt.Sprintf("%d %s · %s", info.Key.Year, info.EventName, info.SessionLabel())
	if m.width > 0 {
		title = runewidth.Truncate(title, m.width, "…")
	}
	status, ok := statusLabel[f.TrackStatus]
	if !ok {
		status = f.TrackStatus
	}
	if st, ok := statusStyle[f.TrackStatus]; ok {
		status = st.Render(status)
	}
	state := fmt.Sprintf("%.2gx", m.speed)
	if m.paused {
		state = "paused"
	}
	line := fmt.Sprintf("Lap %d/%d  %s  %s  %s",
		f.Lap, info.TotalLaps, formatClock(f.T), status, mutedStyle.Render(state))
	return titleStyle.Render(title) + "\n" + line
}

func (m *Model) refreshBoard() {
	f := m.frame()
	info := m.entry.Info
	rows := make([]table.Row, 0, len(f.Drivers))
	for _, code := range orderedCodes(f) {
		st := f.Drivers[code]
		name := info.DriverNames[code]
		if name == "" {
			name = code
		}
		rows = append(rows, table.Row{
			strconv.Itoa(st.Position),
			code,
			runewidth.Truncate(name, teamWidth, "…"),
			runewidth.Truncate(info.DriverTeams[code], teamWidth, "…"),
			strconv.Itoa(st.Lap),
			fmt.Sprintf("%3.0f", st.Speed),
			strconv.Itoa(st.Gear),
			statusText(st.Status),
		})
	}
	m.board.SetRows(rows)
}

func boardColumns() []table.Column {
	return []table.Column{
		{Title: "Pos", Width: 3},
		{Title: "Drv", Width: 3},
		{Title: "Name", Width: teamWidth},
		{Title: "Team", Width: teamWidth},
		{Title: "Lap", Width: 3},
		{Title: "km/h", Width: 4},
		{Title: "G", Width: 1},
		{Title: "", Width: 3},
	}
}

func statusText(s string) string {
	switch s {
	case model.DriverStatusNotStarted:
		return "DNS"
	case model.DriverStatusRetired:
		return "OUT"
	default:
		return ""
	}
}

func clampSpeed(s float64) float64 {
	if math.IsNaN(s) {
		return 1
	}
	return math.Max(minSpeed, math.Min(s, maxSpeed))
}

func formatClock(t float64) string {
	d := time.Duration(t * float64(time.Second)).Truncate(time.Second)
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, secs)
	}
	return fmt.Sprintf("%02d:%02d", mins, secs)
}
