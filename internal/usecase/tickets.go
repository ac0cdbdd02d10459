package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"chatdesk/internal/clock"
	"chatdesk/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// TicketUpdate carries an agent's changes. Nil fields are left alone; an
// empty AssignedTo clears the assignment.
type TicketUpdate struct {
	Status     *domain.TicketStatus
	Priority   *domain.Priority
	AssignedTo *string
}

// TicketService performs agent actions on tickets.
type TicketService struct {
	store     TicketStore
	publisher EventPublisher
	metrics   Recorder
	locks     *KeyLocks
	log       *zap.Logger
	clock     clock.Clock
}

type TicketDeps struct {
	Store     TicketStore
	Publisher EventPublisher
	Metrics   Recorder
	Locks     *KeyLocks
	Logger    *zap.Logger
	Clock     clock.Clock
}

func NewTicketService(deps TicketDeps) (*TicketService, error) {
	if deps.Store == nil {
		return nil, errors.New("usecase: ticket store must not be nil")
	}
	s := &TicketService{
		store:     deps.Store,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		locks:     deps.Locks,
		log:       deps.Logger,
		clock:     deps.Clock,
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.locks == nil {
		s.locks = NewKeyLocks()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	return s, nil
}

func (s *TicketService) Get(ctx context.Context, tenantID, id string) (domain.Ticket, error) {
	return s.load(ctx, tenantID, id)
}

func (s *TicketService) List(ctx context.Context, tenantID string, f domain.TicketFilter) ([]domain.Ticket, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, invalid("missing_tenant", ReplyMissingTenant)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("invalid_status", ReplyInvalidField)
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, invalid("invalid_priority", ReplyInvalidField)
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	tickets, err := s.store.List(ctx, tenantID, f)
	if err != nil {
		return nil, newError(ErrorInternal, "ticket_list_error", err)
	}
	return tickets, nil
}

// Update applies u and publishes one event per changed field. A status may
// move in any direction.
func (s *TicketService) Update(ctx context.Context, tenantID, id string, u TicketUpdate) (domain.Ticket, error) {
	unlock := s.locks.Lock(tenantID + "/" + id)
	defer unlock()

	t, err := s.load(ctx, tenantID, id)
	if err != nil {
		return domain.Ticket{}, err
	}

	now := s.clock.Now()
	var events []string
	if u.Status != nil {
		changed, err := t.SetStatus(*u.Status, now)
		if err != nil {
			return domain.Ticket{}, &Error{Code: ErrorInvalidInput, Reason: "invalid_status", Reply: ReplyInvalidField, Err: err}
		}
		if changed {
			events = append(events, domain.EventTicketStatusChanged)
		}
	}
	if u.Priority != nil {
		changed, err := t.SetPriority(*u.Priority, now)
		if err != nil {
			return domain.Ticket{}, &Error{Code: ErrorInvalidInput, Reason: "invalid_priority", Reply: ReplyInvalidField, Err: err}
		}
		if changed {
			events = append(events, domain.EventTicketPriorityChanged)
			if t.Priority == domain.PriorityHigh {
				events = append(events, domain.EventTicketImportant)
			}
		}
	}
	if u.AssignedTo != nil && t.Assign(*u.AssignedTo, now) {
		events = append(events, domain.EventTicketAssigned)
	}
	if len(events) == 0 {
		return t, nil
	}

	if err := s.store.Save(ctx, t); err != nil {
		return domain.Ticket{}, newError(ErrorInternal, "ticket_save_error", err)
	}
	for _, name := range events {
		publish(ctx, s.publisher, s.metrics, name, &t, now)
	}
	s.log.Info("ticket updated",
		zap.String("tenant_id", tenantID),
		zap.String("ticket_id", t.ID),
		zap.Strings("events", events),
	)
	return t, nil
}

// AddNote appends an internal note. Notes are visible to agents only.
func (s *TicketService) AddNote(ctx context.Context, tenantID, id, authorID, content string) (domain.Note, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Note{}, invalid("empty_note", ReplyInvalidField)
	}
	unlock := s.locks.Lock(tenantID + "/" + id)
	defer unlock()

	t, err := s.load(ctx, tenantID, id)
	if err != nil {
		return domain.Note{}, err
	}
	now := s.clock.Now()
	note, err := t.AddNote(authorID, content, now)
	if err != nil {
		return domain.Note{}, &Error{Code: ErrorInvalidInput, Reason: "empty_note", Reply: ReplyInvalidField, Err: err}
	}
	if err := s.store.Save(ctx, t); err != nil {
		return domain.Note{}, newError(ErrorInternal, "ticket_save_error", err)
	}
	publish(ctx, s.publisher, s.metrics, domain.EventTicketNoteAdded, &t, now)
	return note, nil
}

func (s *TicketService) load(ctx context.Context, tenantID, id string) (domain.Ticket, error) {
	if strings.TrimSpace(tenantID) == "" {
		return domain.Ticket{}, invalid("missing_tenant", ReplyMissingTenant)
	}
	if strings.TrimSpace(id) == "" {
		return domain.Ticket{}, &Error{Code: ErrorNotFound, Reason: "ticket_not_found", Reply: ReplyNotFound}
	}
	t, err := s.store.Get(ctx, tenantID, id)
	if errors.Is(err, domain.ErrTicketNotFound) {
		return domain.Ticket{}, &Error{Code: ErrorNotFound, Reason: "ticket_not_found", Reply: ReplyNotFound, Err: err}
	}
	if err != nil {
		return domain.Ticket{}, newError(ErrorInternal, "ticket_load_error", err)
	}
	return t, nil
}

func publish(ctx context.Context, p EventPublisher, m Recorder, name string, t *domain.Ticket, at time.Time) {
	p.Publish(ctx, domain.NewTicketEvent(name, t, at))
	m.TicketEvent(name)
}
