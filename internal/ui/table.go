package ui

import (
	"fmt"
	"time"

	"github.com/BioHazard786/Warpcall/internal/session"
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// CallSummary is printed once the call view closes.
type CallSummary struct {
	Room       string
	Remote     string
	Duration   time.Duration
	Connection string
	Received   uint64
	Packets    uint64
	Media      string
	LastError  string
}

// SummaryFromSnapshot collects the final figures of a call.
func SummaryFromSnapshot(s session.Snapshot, duration time.Duration) CallSummary {
	summary := CallSummary{
		Room:       s.RoomID,
		Remote:     "-",
		Duration:   duration,
		Connection: s.Connection.String(),
		Received:   s.Stats.BytesIn,
		Packets:    s.Stats.PacketsIn,
		Media:      mediaLabel(s),
		LastError:  s.LastError,
	}
	if s.Remote != nil {
		summary.Remote = participantLabel(s.Remote)
	}
	return summary
}

// CallSummaryView renders the summary as a two column table.
func CallSummaryView(summary CallSummary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Header = text.Colors{text.Bold, text.FgCyan}
	t.Style().Options.SeparateRows = false

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Room", summary.Room},
		{"Remote", summary.Remote},
		{"Duration", FormatDuration(summary.Duration)},
		{"Connection", summary.Connection},
		{"Local media", summary.Media},
		{"Received", fmt.Sprintf("%s (%d packets)", FormatBytes(summary.Received), summary.Packets)},
	})
	if summary.LastError != "" {
		t.AppendRow(table.Row{"Last error", truncate(summary.LastError, 60)})
	}

	return t.Render()
}

func RenderCallSummary(summary CallSummary) {
	fmt.Fprintln(Out, CallSummaryView(summary))
}

// RoomInfo is the banner shown once the relay accepted the join.
type RoomInfo struct {
	RoomID string
	UserID string
	Server string
}

func (r RoomInfo) View() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Joined room\n\n%s Room:    %s\n%s You:     %s\n%s Relay:   %s",
		IconSuccess,
		IconRoom, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconPeer, r.UserID,
		IconRelay, MutedStyle.Render(r.Server),
	)
	return boxStyle.Render(content)
}

func participantLabel(p *session.Participant) string {
	if p.UserID == "" {
		return p.SocketID
	}
	return fmt.Sprintf("%s (%s)", p.UserID, truncate(p.SocketID, 12))
}

func mediaLabel(s session.Snapshot) string {
	switch {
	case s.Media.Acquiring:
		return "acquiring"
	case s.Media.LastErr != nil:
		return s.Media.LastErr.Error()
	case s.Media.Stream == nil:
		return "none"
	case s.Media.Stream.HasVideo():
		return IconCamera + " " + IconMic + " camera and microphone"
	default:
		return IconMic + " audio only"
	}
}
