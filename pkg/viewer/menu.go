package viewer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
)

var ErrCanceled = errors.New("selection canceled")

const (
	stageYear = iota
	stageRound
	stageType
	stageDone
)

//nolint:gochecknoglobals // styles
var (
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))
	menuTypes     = []model.SessionType{model.SessionTypeRace, model.SessionTypeSprint}
)

type (
	// RoundLister returns the rounds available for a year
	RoundLister func(year int) ([]int, error)
	Selection   struct {
		Key     model.SessionKey
		Refresh bool
	}
	// Menu implements the Bubble Tea session selection
	Menu struct {
		stage    int
		lister   RoundLister
		year     int
		yearIn   textinput.Model
		roundIn  textinput.Model
		rounds   table.Model
		listed   bool
		round    int
		typeIdx  int
		refresh  bool
		errMsg   string
		canceled bool
	}
)

func newInput(prompt, value string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 4
	input.SetValue(value)
	return input
}

// NewMenu creates a menu starting with defaultYear. lister may be nil, the
// round is entered manually then.
func NewMenu(defaultYear int, lister RoundLister) *Menu {
	m := &Menu{
		lister:  lister,
		yearIn:  newInput("Year: ", strconv.Itoa(defaultYear)),
		roundIn: newInput("Round: ", ""),
		rounds: table.New(
			table.WithColumns([]table.Column{{Title: "Round", Width: 8}}),
			table.WithHeight(10),
			table.WithFocused(true),
		),
	}
	m.yearIn.Focus()
	return m
}

// RunMenu shows the menu and returns the selected session
//
//nolint:whitespace // can't make both editor and linter happy
func RunMenu(
	ctx context.Context, defaultYear int, lister RoundLister,
) (*Selection, error) {
	m := NewMenu(defaultYear, lister)
	program := tea.NewProgram(m, tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return nil, fmt.Errorf("failed to run menu: %w", err)
	}
	return m.Result()
}

// Result returns the selection once the menu is done
func (m *Menu) Result() (*Selection, error) {
	if m.canceled || m.stage != stageDone {
		return nil, ErrCanceled
	}
	return &Selection{
		Key: model.SessionKey{
			Year:  m.year,
			Round: m.round,
			Type:  menuTypes[m.typeIdx],
		},
		Refresh: m.refresh,
	}, nil
}

func (m *Menu) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Menu) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "esc":
		m.canceled = true
		return m, tea.Quit
	case "enter":
		return m, m.next()
	}
	var cmd tea.Cmd
	switch m.stage {
	case stageYear:
		m.yearIn, cmd = m.yearIn.Update(msg)
	case stageRound:
		if m.listed {
			m.rounds, cmd = m.rounds.Update(msg)
		} else {
			m.roundIn, cmd = m.roundIn.Update(msg)
		}
	case stageType:
		switch key.String() {
		case "left", "h", "up", "k":
			m.typeIdx = (m.typeIdx + len(menuTypes) - 1) % len(menuTypes)
		case "right", "l", "down", "j", "tab":
			m.typeIdx = (m.typeIdx + 1) % len(menuTypes)
		case "r":
			m.refresh = !m.refresh
		}
	}
	return m, cmd
}

// next validates the current stage and advances to the next one
func (m *Menu) next() tea.Cmd {
	m.errMsg = ""
	switch m.stage {
	case stageYear:
		year, err := strconv.Atoi(strings.TrimSpace(m.yearIn.Value()))
		if err != nil || year < 1950 {
			m.errMsg = "invalid year"
			return nil
		}
		m.year = year
		m.listRounds()
		m.yearIn.Blur()
		m.roundIn.Focus()
		m.stage = stageRound
	case stageRound:
		round, err := m.selectedRound()
		if err != nil {
			m.errMsg = err.Error()
			return nil
		}
		m.round = round
		m.roundIn.Blur()
		m.stage = stageType
	case stageType:
		m.stage = stageDone
		return tea.Quit
	}
	return nil
}

func (m *Menu) listRounds() {
	m.listed = false
	if m.lister == nil {
		return
	}
	rounds, err := m.lister(m.year)
	if err != nil || len(rounds) == 0 {
		return
	}
	rows := make([]table.Row, 0, len(rounds))
	for _, r := range rounds {
		rows = append(rows, table.Row{strconv.Itoa(r)})
	}
	m.rounds.SetRows(rows)
	m.rounds.SetCursor(0)
	m.listed = true
}

func (m *Menu) selectedRound() (int, error) {
	var v string
	if m.listed {
		row := m.rounds.SelectedRow()
		if len(row) == 0 {
			return 0, errors.New("no round selected")
		}
		v = row[0]
	} else {
		v = strings.TrimSpace(m.roundIn.Value())
	}
	round, err := strconv.Atoi(v)
	if err != nil || round < 1 {
		return 0, errors.New("invalid round")
	}
	return round, nil
}

func (m *Menu) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Select session") + "\n\n")
	switch m.stage {
	case stageYear:
		sb.WriteString(m.yearIn.View())
	case stageRound:
		fmt.Fprintf(&sb, "Year: %d\n", m.year)
		if m.listed {
			sb.WriteString(m.rounds.View())
		} else {
			sb.WriteString(m.roundIn.View())
		}
	case stageType:
		fmt.Fprintf(&sb, "Year: %d  Round: %d\n", m.year, m.round)
		for i, t := range menuTypes {
			label := t.Label()
			if i == m.typeIdx {
				label = selectedStyle.Render("> " + label)
			} else {
				label = "  " + label
			}
			sb.WriteString(label + "\n")
		}
		refresh := "[ ]"
		if m.refresh {
			refresh = "[x]"
		}
		sb.WriteString(refresh + " refresh data (r)")
	}
	if m.errMsg != "" {
		sb.WriteString("\n" + errorStyle.Render(m.errMsg))
	}
	sb.WriteString("\n\n" + footerStyle.Render("enter confirm · esc cancel"))
	return sb.String()
}
