package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestNewTicket_Defaults(t *testing.T) {
	tk := NewTicket("id-1", "SUP-ABC123", "law", t0)
	require.Equal(t, TicketStatusOpen, tk.Status)
	require.Equal(t, PriorityNormal, tk.Priority)
	require.Empty(t, tk.Messages)
	require.Empty(t, tk.InternalNotes)
	require.Equal(t, t0, tk.CreatedAt)
}

func TestRecordExchange_SetsTitleAndAppendsPair(t *testing.T) {
	tk := NewTicket("id-1", "SUP-ABC123", "law", t0)
	reopened := tk.RecordExchange("  "+strings.Repeat("å", 100)+" ", "svar", t0.Add(time.Minute))
	require.False(t, reopened)
	require.Len(t, tk.Messages, 2)
	require.Equal(t, RoleUser, tk.Messages[0].Role)
	require.Equal(t, RoleAssistant, tk.Messages[1].Role)
	require.Equal(t, 80, len([]rune(tk.Title)))
	require.Equal(t, t0.Add(time.Minute), tk.LastActivityAt)

	tk.RecordExchange("another question", "svar", t0.Add(2*time.Minute))
	require.Equal(t, 80, len([]rune(tk.Title)), "title is set once")
}

func TestRecordExchange_ReopensSolvedTicket(t *testing.T) {
	tk := NewTicket("id-1", "SUP-ABC123", "law", t0)
	changed, err := tk.SetStatus(TicketStatusSolved, t0)
	require.NoError(t, err)
	require.True(t, changed)
	require.NotNil(t, tk.SolvedAt)

	reopened := tk.RecordExchange("det fungerar fortfarande inte", "ok", t0.Add(time.Hour))
	require.True(t, reopened)
	require.Equal(t, TicketStatusOpen, tk.Status)
	require.Nil(t, tk.SolvedAt)
}

func TestSetStatus_AnyDirection(t *testing.T) {
	tk := NewTicket("id-1", "SUP-ABC123", "law", t0)
	for _, s := range []TicketStatus{TicketStatusSolved, TicketStatusPending, TicketStatusOpen, TicketStatusSolved} {
		changed, err := tk.SetStatus(s, t0)
		require.NoError(t, err)
		require.True(t, changed)
		require.Equal(t, s, tk.Status)
	}

	changed, err := tk.SetStatus(TicketStatusSolved, t0)
	require.NoError(t, err)
	require.False(t, changed)

	_, err = tk.SetStatus("closed", t0)
	require.Error(t, err)
}

func TestSetPriority(t *testing.T) {
	tk := NewTicket("id-1", "SUP-ABC123", "law", t0)
	changed, err := tk.SetPriority(PriorityHigh, t0)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = tk.SetPriority(PriorityHigh, t0)
	require.NoError(t, err)
	require.False(t, changed)

	_, err = tk.SetPriority("urgent", t0)
	require.Error(t, err)
}

func TestAssignAndNotes(t *testing.T) {
	tk := NewTicket("id-1", "SUP-ABC123", "law", t0)
	require.True(t, tk.Assign("agent-7", t0))
	require.False(t, tk.Assign("agent-7", t0))
	require.True(t, tk.Assign("", t0))
	require.Empty(t, tk.AssignedTo)

	_, err := tk.AddNote("agent-7", "   ", t0)
	require.Error(t, err)

	n, err := tk.AddNote("agent-7", "kund ringde", t0)
	require.NoError(t, err)
	require.Equal(t, "agent-7", n.AuthorID)
	require.Len(t, tk.InternalNotes, 1)
}

func TestContextWindow_BoundsAndStartsOnUser(t *testing.T) {
	tk := NewTicket("id-1", "SUP-ABC123", "law", t0)
	for i := 0; i < 10; i++ {
		tk.RecordExchange("q", "a", t0)
	}
	_, _ = tk.AddNote("agent", "never in prompt", t0)

	window := tk.ContextWindow(12)
	require.Len(t, window, 12)
	require.Equal(t, RoleUser, window[0].Role)
	for _, m := range window {
		require.NotEqual(t, "never in prompt", m.Content)
	}

	window = tk.ContextWindow(5)
	require.Len(t, window, 4)
	require.Equal(t, RoleUser, window[0].Role)
}
