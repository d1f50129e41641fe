package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/Gaurav-Gosain/nativebridge"
)

var (
	barStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(primaryColor).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(dimColor).Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

const (
	watchInterval = 250 * time.Millisecond
	loadWorkers   = 4
)

type tickMsg time.Time

type statusMsg struct {
	text string
	err  error
}

// watchModel shows live session counters and lets the user create, drop
// and free nodes or run a background load against the session.
type watchModel struct {
	sh      *shell
	spinner spinner.Model
	stats   nativebridge.Stats
	status  string
	err     error
	paused  bool

	stopLoad context.CancelFunc
	loadDone chan error
}

func newWatchModel(sh *shell) *watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(secondaryColor)
	return &watchModel{sh: sh, spinner: sp, stats: sh.s.Stats()}
}

func tick() tea.Cmd {
	return tea.Tick(watchInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.stopLoad != nil {
				m.toggleLoad()
			}
			return m, tea.Quit
		case "n":
			m.run("new")
		case "d":
			if name := m.newest(); name != "" {
				m.run("drop " + name)
			}
		case "f":
			if name := m.newest(); name != "" {
				m.run("free " + name)
			}
		case "p":
			if m.paused {
				m.run("resume")
			} else {
				m.run("pause")
			}
			m.paused = !m.paused
		case "l":
			m.toggleLoad()
		case "g":
			m.status = "collecting..."
			return m, func() tea.Msg {
				return statusMsg{text: m.sh.cmdGC()}
			}
		}
		m.stats = m.sh.s.Stats()
		return m, nil

	case statusMsg:
		m.status, m.err = msg.text, msg.err
		return m, nil

	case tickMsg:
		m.stats = m.sh.s.Stats()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// run executes a shell command synchronously. Shell state is only touched
// from Update.
func (m *watchModel) run(line string) {
	out, err := m.sh.exec(context.Background(), line)
	m.status, m.err = out, err
}

// newest returns the most recently created node still held by the shell.
func (m *watchModel) newest() string {
	for i := m.sh.created; i > 0; i-- {
		name := fmt.Sprintf("n%d", i)
		if _, ok := m.sh.nodes[name]; ok {
			return name
		}
	}
	return ""
}

// toggleLoad starts or stops the background workers. Each worker creates
// nodes, updates them and then frees or drops them.
func (m *watchModel) toggleLoad() {
	if m.stopLoad != nil {
		m.stopLoad()
		err := <-m.loadDone
		m.stopLoad, m.loadDone = nil, nil
		m.status, m.err = "load stopped", err
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	s := m.sh.s
	for w := range loadWorkers {
		g.Go(func() error {
			for i := 0; gctx.Err() == nil; i++ {
				n, err := nativebridge.NewNode(gctx, s)
				if err != nil {
					return ignoreCanceled(err)
				}
				for range 50 {
					if _, err := n.Add(gctx, nativebridge.FieldWidth, int64(w+1)); err != nil {
						return ignoreCanceled(err)
					}
				}
				// Leave every third node to the collector.
				if i%3 != 0 {
					if err := n.Free(gctx); err != nil {
						return ignoreCanceled(err)
					}
				}
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	m.stopLoad, m.loadDone = cancel, done
	m.status, m.err = fmt.Sprintf("load running with %d workers", loadWorkers), nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (m *watchModel) View() string {
	var b strings.Builder

	b.WriteString(barStyle.Render("nbctl watch"))
	b.WriteString(" ")
	if m.stopLoad != nil {
		b.WriteString(m.spinner.View() + " load")
	}
	b.WriteString("\n\n")

	st := m.stats
	rows := []struct {
		label string
		value any
	}{
		{"state", st.State},
		{"live", st.Live},
		{"created", st.Created},
		{"released", st.Released},
		{"reclaimed", st.Reclaimed},
		{"drained", st.Drained},
		{"invocations", st.Invocations},
		{"executed", st.Executed},
		{"rejected", st.Rejected},
		{"timeouts", st.Timeouts},
		{"pending", st.Pending},
	}
	for _, r := range rows {
		b.WriteString("  " + labelStyle.Render(r.label) + valueStyle.Render(fmt.Sprint(r.value)) + "\n")
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString("  " + errorMsgStyle.Render(m.err.Error()) + "\n")
	case m.status != "":
		b.WriteString("  " + successStyle.Render(m.status) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  n new • d drop • f free • g gc • l load • p pause/resume • q quit"))
	b.WriteString("\n")
	return b.String()
}

func runWatch(sh *shell) error {
	_, err := tea.NewProgram(newWatchModel(sh)).Run()
	return err
}
