package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrTicketNotFound is returned by ticket stores when no ticket matches the
// tenant and id.
var ErrTicketNotFound = errors.New("ticket not found")

type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusPending TicketStatus = "pending"
	TicketStatusSolved  TicketStatus = "solved"
)

// Valid reports whether s is a known ticket status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusPending, TicketStatusSolved:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

const maxTitleRunes = 80

// TicketMessage is one transcript entry of a ticket.
type TicketMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Note is an agent-only annotation. Notes never reach the model prompt.
type Note struct {
	Content   string    `json:"content"`
	AuthorID  string    `json:"authorId"`
	Timestamp time.Time `json:"timestamp"`
}

// Ticket is the durable record of a support conversation.
type Ticket struct {
	ID             string          `json:"id"`
	PublicID       string          `json:"publicId"`
	TenantID       string          `json:"tenantId"`
	Title          string          `json:"title"`
	Status         TicketStatus    `json:"status"`
	Priority       Priority        `json:"priority"`
	AssignedTo     string          `json:"assignedTo,omitempty"`
	Messages       []TicketMessage `json:"messages"`
	InternalNotes  []Note          `json:"internalNotes"`
	LastActivityAt time.Time       `json:"lastActivityAt"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	SolvedAt       *time.Time      `json:"solvedAt,omitempty"`
}

// NewTicket returns an open, normal-priority ticket with an empty transcript.
func NewTicket(id, publicID, tenantID string, now time.Time) *Ticket {
	return &Ticket{
		ID:             id,
		PublicID:       publicID,
		TenantID:       tenantID,
		Status:         TicketStatusOpen,
		Priority:       PriorityNormal,
		Messages:       []TicketMessage{},
		InternalNotes:  []Note{},
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// RecordExchange appends a completed user/assistant pair. A customer reply on a
// solved ticket reopens it; the return value reports that transition.
func (t *Ticket) RecordExchange(question, answer string, now time.Time) (reopened bool) {
	if t.Title == "" {
		t.Title = truncateRunes(strings.TrimSpace(question), maxTitleRunes)
	}
	t.Messages = append(t.Messages,
		TicketMessage{Role: RoleUser, Content: question, Timestamp: now},
		TicketMessage{Role: RoleAssistant, Content: answer, Timestamp: now},
	)
	if t.Status == TicketStatusSolved {
		t.Status = TicketStatusOpen
		t.SolvedAt = nil
		reopened = true
	}
	t.LastActivityAt = now
	t.UpdatedAt = now
	return reopened
}

// SetStatus moves the ticket to s. Any state may move to any other state.
func (t *Ticket) SetStatus(s TicketStatus, now time.Time) (bool, error) {
	if !s.Valid() {
		return false, fmt.Errorf("invalid status %q", s)
	}
	if t.Status == s {
		return false, nil
	}
	t.Status = s
	if s == TicketStatusSolved {
		solved := now
		t.SolvedAt = &solved
	} else {
		t.SolvedAt = nil
	}
	t.UpdatedAt = now
	return true, nil
}

// SetPriority stores p. The value may come from an agent or a triage classifier.
func (t *Ticket) SetPriority(p Priority, now time.Time) (bool, error) {
	if !p.Valid() {
		return false, fmt.Errorf("invalid priority %q", p)
	}
	if t.Priority == p {
		return false, nil
	}
	t.Priority = p
	t.UpdatedAt = now
	return true, nil
}

// Assign sets the responsible agent. An empty userID clears the assignment.
func (t *Ticket) Assign(userID string, now time.Time) bool {
	userID = strings.TrimSpace(userID)
	if t.AssignedTo == userID {
		return false
	}
	t.AssignedTo = userID
	t.UpdatedAt = now
	return true
}

// AddNote appends an internal note.
func (t *Ticket) AddNote(authorID, content string, now time.Time) (Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Note{}, errors.New("note content must not be empty")
	}
	n := Note{Content: content, AuthorID: authorID, Timestamp: now}
	t.InternalNotes = append(t.InternalNotes, n)
	t.UpdatedAt = now
	return n, nil
}

// ContextWindow returns at most max trailing transcript entries as chat
// messages, starting on a user turn so pairs stay intact.
func (t *Ticket) ContextWindow(max int) []ChatMessage {
	msgs := t.Messages
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	for len(msgs) > 0 && msgs[0].Role != RoleUser {
		msgs = msgs[1:]
	}
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// TicketFilter narrows an agent's ticket list. Zero fields match everything.
type TicketFilter struct {
	Status     TicketStatus
	Priority   Priority
	AssignedTo string
	Limit      int
}

// Match reports whether t passes every set field of f.
func (f TicketFilter) Match(t *Ticket) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	return true
}

// Clone returns a deep copy so callers can mutate without sharing slices.
func (t *Ticket) Clone() Ticket {
	c := *t
	if t.Messages != nil {
		c.Messages = append(make([]TicketMessage, 0, len(t.Messages)), t.Messages...)
	}
	if t.InternalNotes != nil {
		c.InternalNotes = append(make([]Note, 0, len(t.InternalNotes)), t.InternalNotes...)
	}
	if t.SolvedAt != nil {
		s := *t.SolvedAt
		c.SolvedAt = &s
	}
	return c
}
