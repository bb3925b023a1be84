package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/negotiation"
	"github.com/BioHazard786/Warpcall/internal/session"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestCallModel_StartCallNeedsRemote(t *testing.T) {
	r := require.New(t)
	calls := 0
	m := NewCallModel(session.Snapshot{RoomID: "1234", Joined: true}, nil, Actions{
		StartCall: func() error { calls++; return nil },
	})

	_, cmd := m.Update(key("c"))
	r.Nil(cmd)

	m.Update(snapshotMsg(session.Snapshot{RoomID: "1234", Joined: true, Remote: &session.Participant{SocketID: "B1", UserID: "bob"}}))
	_, cmd = m.Update(key("c"))
	r.NotNil(cmd)
	r.True(m.busy)

	m.Update(cmd())
	r.Equal(1, calls)
	r.False(m.busy)
	r.Empty(m.notice)
}

func TestCallModel_RetryRespectsMediaError(t *testing.T) {
	r := require.New(t)
	denied := session.Snapshot{Joined: true, Media: media.State{LastErr: &media.Error{Kind: media.KindPermissionDenied}}}
	m := NewCallModel(denied, nil, Actions{RetryMedia: func() error { return errors.New("boom") }})

	_, cmd := m.Update(key("r"))
	r.Nil(cmd)
	r.Contains(m.notice, "cannot be retried")

	m.Update(snapshotMsg(session.Snapshot{Joined: true, Media: media.State{LastErr: &media.Error{Kind: media.KindDeviceBusy}}}))
	_, cmd = m.Update(key("r"))
	r.NotNil(cmd)
	m.Update(cmd())
	r.Contains(m.notice, "retry media failed: boom")
}

func TestCallModel_TracksConnectedTime(t *testing.T) {
	r := require.New(t)
	m := NewCallModel(session.Snapshot{}, nil, Actions{})
	r.Zero(m.Duration())

	m.Update(snapshotMsg(session.Snapshot{
		Joined:      true,
		Remote:      &session.Participant{SocketID: "B1"},
		Negotiation: negotiation.StateStable,
		Connection:  webrtc.PeerConnectionStateConnected,
	}))
	r.NotZero(m.Duration())
	r.Contains(m.View(), "in call")

	_, cmd := m.Update(snapshotMsg(session.Snapshot{Left: true}))
	r.NotNil(cmd)
}

func TestFormatting(t *testing.T) {
	r := require.New(t)
	r.Equal("512 B", FormatBytes(512))
	r.Equal("1.50 KB", FormatBytes(1536))
	r.Equal("42s", FormatDuration(42*time.Second))
	r.Equal("2m 5s", FormatDuration(125*time.Second))
	r.Equal("1h 0m 1s", FormatDuration(time.Hour+time.Second))
	r.Equal("abcd...", truncate("abcdefghij", 7))
}

func TestCallSummaryView(t *testing.T) {
	r := require.New(t)
	view := CallSummaryView(SummaryFromSnapshot(session.Snapshot{
		RoomID:     "1234",
		Remote:     &session.Participant{SocketID: "B1", UserID: "bob"},
		Connection: webrtc.PeerConnectionStateClosed,
		Stats:      negotiation.Stats{BytesIn: 2048, PacketsIn: 3},
	}, 90*time.Second))

	r.Contains(view, "1234")
	r.Contains(view, "bob (B1)")
	r.Contains(view, "1m 30s")
	r.Contains(view, "2.00 KB (3 packets)")
	r.NotContains(view, "Last error")
}
