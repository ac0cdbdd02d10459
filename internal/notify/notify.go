// Package notify delivers ticket events to agents' tooling. Publishing is
// best-effort: failures are logged and never reach the chat caller.
package notify

import (
	"context"

	"go.uber.org/zap"

	"chatdesk/internal/domain"
)

// Publisher announces a ticket event.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event)
}

// Log writes events to the service log.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (l *Log) Publish(_ context.Context, ev domain.Event) {
	l.logger.Info("ticket event",
		zap.String("event", ev.Name),
		zap.String("tenant_id", ev.TenantID),
		zap.String("ticket_id", ev.TicketID),
		zap.String("public_id", ev.PublicID),
		zap.String("status", string(ev.Status)),
		zap.String("priority", string(ev.Priority)),
		zap.String("assigned_to", ev.AssignedTo),
	)
}

// Multi fans an event out to every publisher in order.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev domain.Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}
