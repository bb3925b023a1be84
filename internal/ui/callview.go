package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/BioHazard786/Warpcall/internal/negotiation"
	"github.com/BioHazard786/Warpcall/internal/session"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/webrtc/v4"
)

// Actions are the user commands the call view can trigger.
type Actions struct {
	StartCall  func() error
	RetryMedia func() error
}

type snapshotMsg session.Snapshot

type actionDoneMsg struct {
	name string
	err  error
}

type tickMsg time.Time

// CallModel renders the live state of a call.
type CallModel struct {
	snap      session.Snapshot
	updates   <-chan session.Snapshot
	actions   Actions
	spinner   spinner.Model
	startedAt time.Time
	notice    string
	busy      bool
	quitting  bool
}

func NewCallModel(initial session.Snapshot, updates <-chan session.Snapshot, actions Actions) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallModel{
		snap:    initial,
		updates: updates,
		actions: actions,
		spinner: s,
	}
}

// Snapshot returns the last state the view rendered.
func (m *CallModel) Snapshot() session.Snapshot {
	return m.snap
}

// Duration is how long media has been connected.
func (m *CallModel) Duration() time.Duration {
	if m.startedAt.IsZero() {
		return 0
	}
	return time.Since(m.startedAt)
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen(), tick())
}

func (m *CallModel) listen() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.updates
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func run(name string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		if fn == nil {
			return actionDoneMsg{name: name}
		}
		return actionDoneMsg{name: name, err: fn()}
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "c":
			if m.busy || !m.snap.CanStartCall() {
				return m, nil
			}
			m.busy = true
			m.notice = "calling..."
			return m, run("start call", m.actions.StartCall)
		case "r":
			if m.busy || m.snap.Media.Acquiring {
				return m, nil
			}
			if err := m.snap.Media.LastErr; err != nil && !err.Retryable() {
				m.notice = "media error cannot be retried here"
				return m, nil
			}
			m.busy = true
			m.notice = "retrying media..."
			return m, run("retry media", m.actions.RetryMedia)
		}

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		if m.startedAt.IsZero() && m.snap.Connection == webrtc.PeerConnectionStateConnected {
			m.startedAt = time.Now()
		}
		if m.snap.Left {
			return m, tea.Quit
		}
		return m, m.listen()

	case actionDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.name, msg.err)
		} else {
			m.notice = ""
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if !m.quitting {
			return m, tick()
		}
	}

	return m, nil
}

func (m *CallModel) status() string {
	s := m.snap
	switch {
	case !s.Joined:
		return m.spinner.View() + " joining room"
	case s.Remote == nil:
		return m.spinner.View() + " waiting for someone to join"
	case s.Connection == webrtc.PeerConnectionStateConnected:
		return SuccessStyle.Render(IconCall + " in call")
	case s.Connection == webrtc.PeerConnectionStateFailed:
		return ErrorStyle.Render(IconError + " connection failed")
	case s.Negotiation == negotiation.StateIdle:
		return IconPeer + " participant ready, press c to call"
	default:
		return m.spinner.View() + " connecting (" + s.Negotiation.String() + ")"
	}
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}

	s := m.snap
	var b strings.Builder

	b.WriteString("\n" + TitleStyle.Render(IconCall+" warpcall") + "  " + StatusStyle.Render(s.RoomID) + "\n\n")
	b.WriteString(m.status() + "\n\n")

	row := func(label, value string) {
		b.WriteString("  " + LabelStyle.Render(label) + value + "\n")
	}

	remote := MutedStyle.Render("nobody yet")
	if s.Remote != nil {
		remote = participantLabel(s.Remote)
	}
	row("Remote", remote)
	row("Local", mediaLabel(s))

	remoteMedia := MutedStyle.Render("not receiving")
	if s.RemoteStream != nil {
		remoteMedia = fmt.Sprintf("%s %s, %d packets", FormatBytes(s.Stats.BytesIn), IconCamera, s.Stats.PacketsIn)
	}
	row("Incoming", remoteMedia)
	row("Signaling", s.Negotiation.String())
	row("Transport", s.Connection.String())
	if d := m.Duration(); d > 0 {
		row("Duration", IconTime+" "+FormatDuration(d))
	}

	if s.LastError != "" {
		b.WriteString("\n" + ErrorBoxStyle.Render(truncate(s.LastError, 70)) + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + WarningStyle.Render(m.notice) + "\n")
	}

	keys := []string{"q hang up"}
	if s.CanStartCall() {
		keys = append([]string{"c call"}, keys...)
	}
	if s.CanRetryMedia() {
		keys = append([]string{"r retry media"}, keys...)
	}
	b.WriteString("\n" + MutedStyle.Render(strings.Join(keys, " • ")))

	return b.String()
}

// RunCallView blocks until the user hangs up or the session ends. It returns
// the last rendered snapshot and how long media was connected.
func RunCallView(initial session.Snapshot, updates <-chan session.Snapshot, actions Actions) (session.Snapshot, time.Duration, error) {
	model := NewCallModel(initial, updates, actions)
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return initial, 0, err
	}

	m := final.(*CallModel)
	return m.Snapshot(), m.Duration(), nil
}
