// Package ui is the terminal status window: link state, time of the last
// update and the custom callsign field.
package ui

import (
	"flag"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/slim-bean/dcs-presence/pkg/presence"
)

type Config struct {
	Enabled bool `yaml:"enabled"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.BoolVar(&c.Enabled, "ui.enabled", true, "Show the status window in the terminal")
}

// Snapshots is the presence state the window renders.
type Snapshots interface {
	Load() presence.Snapshot
	Changed() <-chan struct{}
}

type keyMap struct {
	Clear key.Binding
	Quit  key.Binding
}

var defaultKeys = keyMap{
	Clear: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear callsign")),
	Quit:  key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	helpStyle  = lipgloss.NewStyle().Faint(true)
	boxStyle   = lipgloss.NewStyle().Padding(1, 2)
)

type snapshotMsg presence.Snapshot

// Model is the bubbletea model of the status window. Every edit of the
// callsign field is passed to setCallsign.
type Model struct {
	snapshots   Snapshots
	setCallsign func(string)
	snap        presence.Snapshot
	input       textinput.Model
	keys        keyMap
}

func New(snapshots Snapshots, setCallsign func(string)) Model {
	snap := snapshots.Load()

	in := textinput.New()
	in.Placeholder = "(in-game callsign)"
	in.Prompt = ""
	in.CharLimit = 64
	in.SetValue(snap.Callsign)
	in.Focus()

	return Model{
		snapshots:   snapshots,
		setCallsign: setCallsign,
		snap:        snap,
		input:       in,
		keys:        defaultKeys,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForChange())
}

func (m Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-m.snapshots.Changed()
		return snapshotMsg(m.snapshots.Load())
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.snap = presence.Snapshot(msg)
		return m, m.waitForChange()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			if m.input.Value() != "" {
				m.input.SetValue("")
				m.setCallsign("")
			}
			return m, nil
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.setCallsign(after)
	}
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder
	if m.snap.Connected {
		b.WriteString("Connected to discord.\n")
	} else {
		b.WriteString("Connecting to discord...\n")
	}
	if m.snap.LastUpdate.IsZero() {
		b.WriteString("Waiting for telemetry...\n")
	} else {
		b.WriteString("Last updated at " + m.snap.LastUpdate.Local().Format("15:04:05") + "\n")
	}
	b.WriteString("\n" + labelStyle.Render("Custom callsign") + "  " + m.input.View() + "\n\n")
	b.WriteString(helpStyle.Render(m.keys.Clear.Help().Key + " " + m.keys.Clear.Help().Desc + " • " + m.keys.Quit.Help().Key + " " + m.keys.Quit.Help().Desc))
	return boxStyle.Render(b.String())
}
