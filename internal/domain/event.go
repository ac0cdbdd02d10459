package domain

import "time"

// Ticket event names published to the notification collaborator.
const (
	EventTicketCreated         = "ticket.created"
	EventTicketReopened        = "ticket.reopened"
	EventTicketStatusChanged   = "ticket.status_changed"
	EventTicketPriorityChanged = "ticket.priority_changed"
	EventTicketImportant       = "ticket.important"
	EventTicketAssigned        = "ticket.assigned"
	EventTicketNoteAdded       = "ticket.note_added"
)

// Event announces a ticket transition.
type Event struct {
	Name       string       `json:"event"`
	TenantID   string       `json:"tenantId"`
	TicketID   string       `json:"ticketId"`
	PublicID   string       `json:"publicId"`
	Title      string       `json:"title,omitempty"`
	Status     TicketStatus `json:"status"`
	Priority   Priority     `json:"priority"`
	AssignedTo string       `json:"assignedTo,omitempty"`
	At         time.Time    `json:"at"`
}

// NewTicketEvent snapshots t under the given event name.
func NewTicketEvent(name string, t *Ticket, at time.Time) Event {
	return Event{
		Name:       name,
		TenantID:   t.TenantID,
		TicketID:   t.ID,
		PublicID:   t.PublicID,
		Title:      t.Title,
		Status:     t.Status,
		Priority:   t.Priority,
		AssignedTo: t.AssignedTo,
		At:         at,
	}
}
