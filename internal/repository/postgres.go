package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chatdesk/internal/domain"
)

// ticketRecord is the tickets table row. The transcript and notes are stored
// as JSON columns; they are always read and written with the ticket.
type ticketRecord struct {
	ID             string                 `gorm:"type:varchar(64);primaryKey"`
	TenantID       string                 `gorm:"type:varchar(128);not null;index:idx_tickets_tenant_activity,priority:1"`
	PublicID       string                 `gorm:"type:varchar(32);not null;uniqueIndex"`
	Title          string                 `gorm:"type:varchar(255)"`
	Status         string                 `gorm:"type:varchar(16);not null;index"`
	Priority       string                 `gorm:"type:varchar(16);not null"`
	AssignedTo     string                 `gorm:"type:varchar(128)"`
	Messages       []domain.TicketMessage `gorm:"type:jsonb;serializer:json"`
	InternalNotes  []domain.Note          `gorm:"type:jsonb;serializer:json"`
	LastActivityAt time.Time              `gorm:"not null;index:idx_tickets_tenant_activity,priority:2"`
	CreatedAt      time.Time              `gorm:"not null;autoCreateTime:false"`
	UpdatedAt      time.Time              `gorm:"not null;autoUpdateTime:false"`
	SolvedAt       *time.Time
}

func (ticketRecord) TableName() string { return "tickets" }

func toRecord(t domain.Ticket) ticketRecord {
	return ticketRecord{
		ID:             t.ID,
		TenantID:       t.TenantID,
		PublicID:       t.PublicID,
		Title:          t.Title,
		Status:         string(t.Status),
		Priority:       string(t.Priority),
		AssignedTo:     t.AssignedTo,
		Messages:       t.Messages,
		InternalNotes:  t.InternalNotes,
		LastActivityAt: t.LastActivityAt,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		SolvedAt:       t.SolvedAt,
	}
}

func (r ticketRecord) toDomain() domain.Ticket {
	t := domain.Ticket{
		ID:             r.ID,
		TenantID:       r.TenantID,
		PublicID:       r.PublicID,
		Title:          r.Title,
		Status:         domain.TicketStatus(r.Status),
		Priority:       domain.Priority(r.Priority),
		AssignedTo:     r.AssignedTo,
		Messages:       r.Messages,
		InternalNotes:  r.InternalNotes,
		LastActivityAt: r.LastActivityAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		SolvedAt:       r.SolvedAt,
	}
	if t.Messages == nil {
		t.Messages = []domain.TicketMessage{}
	}
	if t.InternalNotes == nil {
		t.InternalNotes = []domain.Note{}
	}
	return t
}

// Postgres stores tickets through gorm.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects with a DSN such as
// "host=localhost user=chatdesk password=... dbname=chatdesk sslmode=disable".
func OpenPostgres(dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("repository: postgres dsn must not be empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: open postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func newPostgres(db *gorm.DB) (*Postgres, error) {
	if db == nil {
		return nil, errors.New("repository: gorm db must not be nil")
	}
	return &Postgres{db: db}, nil
}

// Migrate creates or updates the tickets table.
func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.db.WithContext(ctx).AutoMigrate(&ticketRecord{}); err != nil {
		return fmt.Errorf("repository: auto-migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, tenantID, id string) (domain.Ticket, error) {
	var rec ticketRecord
	err := p.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("repository: Get: %w", err)
	}
	return rec.toDomain(), nil
}

// Save upserts by primary key.
func (p *Postgres) Save(ctx context.Context, t domain.Ticket) error {
	if err := validateKeys(t); err != nil {
		return err
	}
	rec := toRecord(t)
	if err := p.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, tenantID string, f domain.TicketFilter) ([]domain.Ticket, error) {
	q := p.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", string(f.Priority))
	}
	if f.AssignedTo != "" {
		q = q.Where("assigned_to = ?", f.AssignedTo)
	}
	q = q.Order("last_activity_at desc").Order("id")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var recs []ticketRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("repository: List: %w", err)
	}
	out := make([]domain.Ticket, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
