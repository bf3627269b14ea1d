// Package tui is the interactive display collaborator: a terminal list view
// over the track store plus a transport status line.
//
// The TUI is a pure consumer of change notifications. Store and transport
// events are adapted into bubbletea messages through a buffered channel;
// every mutation (select, remove, transport commands) goes through the store
// or the coordinator, never directly into their state.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/audition/internal/formatter"
	"github.com/desertthunder/audition/internal/models"
	"github.com/desertthunder/audition/internal/store"
	"github.com/desertthunder/audition/internal/transport"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// storeChangedMsg signals that the track sequence or selection changed.
type storeChangedMsg struct{}

// statusMsg carries a transport status snapshot.
type statusMsg transport.Status

// keyMap defines the key bindings for the TUI.
type keyMap struct {
	up       key.Binding
	down     key.Binding
	moveUp   key.Binding
	moveDown key.Binding
	enter    key.Binding
	toggle   key.Binding
	stop     key.Binding
	seekfwd  key.Binding
	seekbwd  key.Binding
	loop     key.Binding
	marker   key.Binding
	rtn      key.Binding
	remove   key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		moveUp:   key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K", "move up")),
		moveDown: key.NewBinding(key.WithKeys("J", "shift+down"), key.WithHelp("J", "move down")),
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play")),
		toggle:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "pause")),
		stop:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		seekfwd:  key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "seek +")),
		seekbwd:  key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "seek -")),
		loop:     key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "loop")),
		marker:   key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "marker")),
		rtn:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "return mode")),
		remove:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "remove")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.enter, k.toggle, k.remove, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.moveUp, k.moveDown},
		{k.enter, k.toggle, k.stop, k.loop},
		{k.seekfwd, k.seekbwd, k.marker, k.rtn},
		{k.remove, k.quit},
	}
}

// Model is the TUI application state.
type Model struct {
	store   *store.Store
	coord   *transport.Coordinator
	entries []store.Entry
	cursor  int
	status  transport.Status
	width   int
	height  int
	help    help.Model
	keys    keyMap
	events  chan tea.Msg
}

// New creates the TUI model and wires it to store and transport
// notifications. Call before events start flowing.
func New(s *store.Store, c *transport.Coordinator) *Model {
	m := &Model{
		store:  s,
		coord:  c,
		help:   help.New(),
		keys:   newKeyMap(),
		events: make(chan tea.Msg, 64),
	}
	s.AddListener(&storeAdapter{events: m.events})
	c.AddStatusListener(func(st transport.Status) {
		select {
		case m.events <- statusMsg(st):
		default:
		}
	})
	m.entries = s.Entries()
	m.status = c.Snapshot()
	return m
}

// storeAdapter turns store notifications into TUI messages without blocking
// the mutating goroutine.
type storeAdapter struct {
	store.NopListener
	events chan tea.Msg
}

func (a *storeAdapter) TrackAdded(store.Handle, *models.Track)   { a.push() }
func (a *storeAdapter) TrackRemoved(store.Handle, *models.Track) { a.push() }
func (a *storeAdapter) TrackMoved(store.Handle, *models.Track)   { a.push() }
func (a *storeAdapter) TrackUpdated(store.Handle, *models.Track) { a.push() }
func (a *storeAdapter) SelectionChanged(store.Handle, *models.Track) {
	a.push()
}

func (a *storeAdapter) push() {
	select {
	case a.events <- storeChangedMsg{}:
	default:
	}
}

func (m *Model) Init() tea.Cmd {
	return m.wait()
}

// wait returns a command that delivers the next adapter message.
func (m *Model) wait() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case storeChangedMsg:
		m.entries = m.store.Entries()
		if m.cursor >= len(m.entries) {
			m.cursor = len(m.entries) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, m.wait()

	case statusMsg:
		m.status = transport.Status(msg)
		return m, m.wait()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.down):
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.moveUp):
		if m.cursor > 0 && m.cursor < len(m.entries) {
			m.store.Move(m.entries[m.cursor].Handle, store.Before(m.entries[m.cursor-1].Handle))
			m.cursor--
		}
	case key.Matches(msg, m.keys.moveDown):
		if m.cursor >= 0 && m.cursor < len(m.entries)-1 {
			m.store.Move(m.entries[m.cursor].Handle, store.After(m.entries[m.cursor+1].Handle))
			m.cursor++
		}
	case key.Matches(msg, m.keys.enter):
		if m.cursor < len(m.entries) {
			m.store.Select(m.entries[m.cursor].Handle)
		}
	case key.Matches(msg, m.keys.toggle):
		m.coord.Toggle()
	case key.Matches(msg, m.keys.stop):
		m.coord.Stop()
	case key.Matches(msg, m.keys.seekfwd):
		m.coord.SeekForward()
	case key.Matches(msg, m.keys.seekbwd):
		m.coord.SeekBackward()
	case key.Matches(msg, m.keys.loop):
		m.coord.MarkLoop()
	case key.Matches(msg, m.keys.marker):
		m.coord.SetMarker()
	case key.Matches(msg, m.keys.rtn):
		m.coord.ToggleReturnMode()
	case key.Matches(msg, m.keys.remove):
		if m.cursor < len(m.entries) {
			m.store.Remove(m.entries[m.cursor].Handle)
		}
	}
	return m, nil
}

func (m *Model) View() string {
	var out string

	header := formatter.TrackHeader()
	if n := m.store.Len(); n > 0 {
		header = fmt.Sprintf("%s   min %s LUFS", header, formatter.FormatLoudness(m.store.MinLoudness()))
	}
	out += headerStyle.Render(header) + "\n"

	selected, _ := m.store.Selected()
	for i, e := range m.entries {
		row := formatter.TrackRow(&e.Track)
		if e.Handle == selected {
			row = selectedStyle.Render(row)
		}
		if i == m.cursor {
			out += cursorStyle.Render("> ") + row + "\n"
		} else {
			out += "  " + row + "\n"
		}
	}
	if len(m.entries) == 0 {
		out += statusStyle.Render("  (no tracks - drop files on the watch folder or pass them on the command line)") + "\n"
	}

	out += "\n" + statusStyle.Render(formatter.StatusLine(m.status)) + "\n"
	out += m.help.View(m.keys)
	return out
}
