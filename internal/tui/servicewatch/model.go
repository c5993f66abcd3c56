// Package servicewatch is a live terminal view of the Windows services on a
// GIS server, refreshed on a fixed interval.
package servicewatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nnww-gis/gisops/internal/hostctl"
	"github.com/nnww-gis/gisops/internal/style"
)

// DefaultInterval is the refresh interval when none is given.
const DefaultInterval = 10 * time.Second

// Querier reports service states on a server.
type Querier interface {
	QueryServiceStates(ctx context.Context, server string) (map[string]hostctl.State, error)
}

// Model is the bubbletea model for the service watch.
type Model struct {
	q        Querier
	server   string
	interval time.Duration
	only     []string
	now      func() time.Time

	states   map[string]hostctl.State
	updated  time.Time
	err      error
	loading  bool
	spinner  spinner.Model
	keys     KeyMap
	help     help.Model
	showHelp bool
	width    int
	// gen identifies the one pending poll timer; older ticks are dropped.
	gen int

	// mu protects the fields View reads.
	mu sync.RWMutex
}

// New creates a watch of server. When only is non-empty, just those
// services are shown.
func New(q Querier, server string, interval time.Duration, only []string) *Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = style.Info
	return &Model{
		q:        q,
		server:   server,
		interval: interval,
		only:     only,
		now:      time.Now,
		loading:  true,
		spinner:  sp,
		keys:     DefaultKeyMap(),
		help:     help.New(),
	}
}

type statesMsg struct {
	states map[string]hostctl.State
	err    error
	at     time.Time
}

type tickMsg struct {
	gen int
	at  time.Time
}

// Init starts the first query and the spinner.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m *Model) fetch() tea.Cmd {
	q, server, interval, now := m.q, m.server, m.interval, m.now
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		states, err := q.QueryServiceStates(ctx, server)
		return statesMsg{states: states, err: err, at: now()}
	}
}

// tick schedules the next poll. Callers hold mu.
func (m *Model) tick() tea.Cmd {
	m.gen++
	gen := m.gen
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg{gen: gen, at: t}
	})
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width = msg.Width
		m.help.Width = msg.Width
		m.mu.Unlock()
		return m, nil

	case statesMsg:
		m.mu.Lock()
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.states = msg.states
			m.updated = msg.at
		}
		next := m.tick()
		m.mu.Unlock()
		return m, next

	case tickMsg:
		m.mu.Lock()
		defer m.mu.Unlock()
		if msg.gen != m.gen || m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.fetch()

	case spinner.TickMsg:
		m.mu.Lock()
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.mu.Unlock()
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.mu.Lock()
			m.showHelp = !m.showHelp
			m.mu.Unlock()
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			m.mu.Lock()
			busy := m.loading
			m.loading = true
			m.mu.Unlock()
			if busy {
				return m, nil
			}
			return m, m.fetch()
		}
	}
	return m, nil
}

// View renders the model.
func (m *Model) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	title := style.Bold.Render("Services on " + m.server)
	if m.loading {
		title += " " + m.spinner.View()
	}
	b.WriteString(title + "\n\n")

	switch {
	case m.states == nil && m.err == nil:
		b.WriteString(style.Dim.Render("  querying...") + "\n")
	case m.states != nil:
		t := Table(m.states, m.only)
		if m.width > 0 {
			t.Fit(m.width)
		}
		b.WriteString(t.Render())
	}
	if m.err != nil {
		fmt.Fprintf(&b, "\n%s %s\n", style.ErrorPrefix, m.err)
	}
	if !m.updated.IsZero() {
		b.WriteString("\n" + style.Dim.Render("updated "+m.updated.Format("15:04:05")+", every "+m.interval.String()) + "\n")
	}
	if m.showHelp {
		b.WriteString("\n" + m.help.FullHelpView(m.keys.FullHelp()) + "\n")
	} else {
		b.WriteString("\n" + m.help.ShortHelpView(m.keys.ShortHelp()) + "\n")
	}
	return b.String()
}

// Table renders service states sorted by name. When only is non-empty,
// other services are left out.
func Table(states map[string]hostctl.State, only []string) *style.Table {
	keep := make(map[string]bool, len(only))
	for _, s := range only {
		keep[strings.ToLower(s)] = true
	}
	names := make([]string, 0, len(states))
	for name := range states {
		if len(keep) > 0 && !keep[strings.ToLower(name)] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	t := style.NewTable(
		style.Column{Name: "SERVICE", Width: 40},
		style.Column{Name: "STATE", Width: 14},
	)
	for _, name := range names {
		st := string(states[name])
		t.AddRow(name, style.StateStyle(st).Render(style.StateLabel(st)))
	}
	return t
}
