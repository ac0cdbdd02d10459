package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"chatdesk/internal/domain"
)

// Memory is an in-process ticket store for local runs and tests.
type Memory struct {
	mu      sync.RWMutex
	tickets map[string]map[string]domain.Ticket
}

func NewMemory() *Memory {
	return &Memory{tickets: make(map[string]map[string]domain.Ticket)}
}

func (m *Memory) Get(_ context.Context, tenantID, id string) (domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[tenantID][id]
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return t.Clone(), nil
}

func (m *Memory) Save(_ context.Context, t domain.Ticket) error {
	if err := validateKeys(t); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.tickets[t.TenantID]
	if !ok {
		byID = make(map[string]domain.Ticket)
		m.tickets[t.TenantID] = byID
	}
	byID[t.ID] = t.Clone()
	return nil
}

func (m *Memory) List(_ context.Context, tenantID string, f domain.TicketFilter) ([]domain.Ticket, error) {
	m.mu.RLock()
	out := make([]domain.Ticket, 0, len(m.tickets[tenantID]))
	for _, t := range m.tickets[tenantID] {
		if f.Match(&t) {
			out = append(out, t.Clone())
		}
	}
	m.mu.RUnlock()
	return sortAndLimit(out, f.Limit), nil
}

// sortAndLimit orders by most recent activity and applies limit when positive.
func sortAndLimit(tickets []domain.Ticket, limit int) []domain.Ticket {
	sort.SliceStable(tickets, func(i, j int) bool {
		if tickets[i].LastActivityAt.Equal(tickets[j].LastActivityAt) {
			return tickets[i].ID < tickets[j].ID
		}
		return tickets[i].LastActivityAt.After(tickets[j].LastActivityAt)
	})
	if limit > 0 && len(tickets) > limit {
		tickets = tickets[:limit]
	}
	return tickets
}

func validateKeys(t domain.Ticket) error {
	if strings.TrimSpace(t.TenantID) == "" || strings.TrimSpace(t.ID) == "" {
		return errMissingKeys
	}
	return nil
}
