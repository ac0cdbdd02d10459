package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chatdesk/internal/domain"
)

func TestTicketRecord_MapsBothWays(t *testing.T) {
	in := sampleTicket("abc", t0)
	_, _ = in.SetStatus(domain.TicketStatusSolved, t0.Add(time.Minute))

	rec := toRecord(in)
	require.Equal(t, "solved", rec.Status)
	require.Equal(t, "tickets", rec.TableName())
	require.Equal(t, in, rec.toDomain())
}

func TestTicketRecord_NilSlicesBecomeEmpty(t *testing.T) {
	out := ticketRecord{ID: "x", TenantID: "law"}.toDomain()
	require.NotNil(t, out.Messages)
	require.NotNil(t, out.InternalNotes)
}

func TestPostgres_ConstructorValidation(t *testing.T) {
	_, err := OpenPostgres("  ")
	require.Error(t, err)
	_, err = newPostgres(nil)
	require.Error(t, err)
}

// sqlCall is one statement the store sent to the database.
type sqlCall struct {
	query string
	args  []driver.Value
}

// scriptedDB is a database/sql driver that records statements and answers
// queries with canned rows, so the gorm postgres dialect can be exercised
// without a server.
type scriptedDB struct {
	mu           sync.Mutex
	calls        []sqlCall
	columns      []string
	rows         [][]driver.Value
	rowsAffected []int64
	err          error
}

func (d *scriptedDB) Connect(context.Context) (driver.Conn, error) { return &scriptedConn{db: d}, nil }
func (d *scriptedDB) Driver() driver.Driver                        { return scriptedDriver{} }

func (d *scriptedDB) record(query string, args []driver.NamedValue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vals := make([]driver.Value, len(args))
	for i, a := range args {
		vals[i] = a.Value
	}
	d.calls = append(d.calls, sqlCall{query: query, args: vals})
	return d.err
}

func (d *scriptedDB) recorded() []sqlCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sqlCall(nil), d.calls...)
}

type scriptedDriver struct{}

func (scriptedDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("scripted driver: use sql.OpenDB")
}

type scriptedConn struct{ db *scriptedDB }

func (c *scriptedConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("scripted driver: prepare not supported")
}
func (c *scriptedConn) Close() error              { return nil }
func (c *scriptedConn) Begin() (driver.Tx, error) { return scriptedTx{}, nil }

func (c *scriptedConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return scriptedTx{}, nil
}

func (c *scriptedConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.db.record(query, args); err != nil {
		return nil, err
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	n := int64(1)
	if len(c.db.rowsAffected) > 0 {
		n, c.db.rowsAffected = c.db.rowsAffected[0], c.db.rowsAffected[1:]
	}
	return driver.RowsAffected(n), nil
}

func (c *scriptedConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.db.record(query, args); err != nil {
		return nil, err
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	return &scriptedRows{columns: c.db.columns, rows: c.db.rows}, nil
}

type scriptedTx struct{}

func (scriptedTx) Commit() error   { return nil }
func (scriptedTx) Rollback() error { return nil }

type scriptedRows struct {
	columns []string
	rows    [][]driver.Value
}

func (r *scriptedRows) Columns() []string { return r.columns }
func (r *scriptedRows) Close() error      { return nil }

func (r *scriptedRows) Next(dest []driver.Value) error {
	if len(r.rows) == 0 {
		return io.EOF
	}
	copy(dest, r.rows[0])
	r.rows = r.rows[1:]
	return nil
}

var ticketColumns = []string{
	"id", "tenant_id", "public_id", "title", "status", "priority", "assigned_to",
	"messages", "internal_notes", "last_activity_at", "created_at", "updated_at", "solved_at",
}

func ticketRow(t *testing.T, tk domain.Ticket) []driver.Value {
	t.Helper()
	msgs, err := json.Marshal(tk.Messages)
	require.NoError(t, err)
	notes, err := json.Marshal(tk.InternalNotes)
	require.NoError(t, err)
	var solved driver.Value
	if tk.SolvedAt != nil {
		solved = *tk.SolvedAt
	}
	return []driver.Value{
		tk.ID, tk.TenantID, tk.PublicID, tk.Title, string(tk.Status), string(tk.Priority), tk.AssignedTo,
		msgs, notes, tk.LastActivityAt, tk.CreatedAt, tk.UpdatedAt, solved,
	}
}

func newScriptedPostgres(t *testing.T) (*Postgres, *scriptedDB) {
	t.Helper()
	backend := &scriptedDB{columns: ticketColumns}
	sqlDB := sql.OpenDB(backend)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	p, err := newPostgres(db)
	require.NoError(t, err)
	return p, backend
}

func TestPostgres_GetScopesByTenantAndMapsRow(t *testing.T) {
	p, backend := newScriptedPostgres(t)
	want := sampleTicket("abc", t0)
	backend.rows = [][]driver.Value{ticketRow(t, want)}

	got, err := p.Get(context.Background(), "law", "abc")
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.PublicID, got.PublicID)
	require.Equal(t, want.Status, got.Status)
	require.Equal(t, want.Messages, got.Messages)
	require.Equal(t, want.InternalNotes, got.InternalNotes)
	require.True(t, want.LastActivityAt.Equal(got.LastActivityAt))
	require.Nil(t, got.SolvedAt)

	calls := backend.recorded()
	require.Len(t, calls, 1)
	require.Contains(t, calls[0].query, `FROM "tickets"`)
	require.Contains(t, calls[0].query, "tenant_id = $1 AND id = $2")
	require.Equal(t, []driver.Value{"law", "abc"}, calls[0].args[:2])
}

func TestPostgres_GetMissingRowIsNotFound(t *testing.T) {
	p, backend := newScriptedPostgres(t)

	_, err := p.Get(context.Background(), "law", "nope")
	require.ErrorIs(t, err, domain.ErrTicketNotFound)

	backend.err = errors.New("connection reset")
	_, err = p.Get(context.Background(), "law", "nope")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrTicketNotFound)
	require.ErrorContains(t, err, "connection reset")
}

func TestPostgres_SaveUpdatesThenInsertsNewRows(t *testing.T) {
	p, backend := newScriptedPostgres(t)
	tk := sampleTicket("abc", t0)

	// first save: the UPDATE matches nothing, so the row is inserted
	backend.rowsAffected = []int64{0, 1}
	require.NoError(t, p.Save(context.Background(), tk))

	calls := backend.recorded()
	require.Len(t, calls, 2)
	require.True(t, strings.HasPrefix(calls[0].query, `UPDATE "tickets" SET`), calls[0].query)
	require.True(t, strings.HasPrefix(calls[1].query, `INSERT INTO "tickets"`), calls[1].query)
	require.Contains(t, calls[1].query, "ON CONFLICT")
	require.Contains(t, calls[1].args, "SUP-abc")
	require.Contains(t, calls[1].args, t0, "timestamps come from the ticket, not the database clock")

	// second save: the UPDATE hits the existing row
	require.NoError(t, p.Save(context.Background(), tk))
	require.Len(t, backend.recorded(), 3)
}

func TestPostgres_SaveRejectsMissingKeysAndWrapsErrors(t *testing.T) {
	p, backend := newScriptedPostgres(t)

	require.Error(t, p.Save(context.Background(), domain.Ticket{TenantID: "law"}))
	require.Empty(t, backend.recorded(), "invalid tickets never reach the database")

	backend.err = errors.New("duplicate key value violates unique constraint")
	err := p.Save(context.Background(), sampleTicket("abc", t0))
	require.ErrorContains(t, err, "repository: Save")
}

func TestPostgres_ListAppliesFiltersOrderAndLimit(t *testing.T) {
	p, backend := newScriptedPostgres(t)
	newer := sampleTicket("b", t0.Add(time.Hour))
	older := sampleTicket("a", t0)
	backend.rows = [][]driver.Value{ticketRow(t, newer), ticketRow(t, older)}

	got, err := p.List(context.Background(), "law", domain.TicketFilter{
		Status:     domain.TicketStatusOpen,
		Priority:   domain.PriorityHigh,
		AssignedTo: "agent-7",
		Limit:      5,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "b", got[0].ID)
	require.Equal(t, "a", got[1].ID)

	calls := backend.recorded()
	require.Len(t, calls, 1)
	q := calls[0].query
	require.Contains(t, q, "tenant_id = $1")
	require.Contains(t, q, "status = $2")
	require.Contains(t, q, "priority = $3")
	require.Contains(t, q, "assigned_to = $4")
	require.Contains(t, q, "ORDER BY last_activity_at desc")
	require.Contains(t, q, "LIMIT")
	require.Equal(t, []driver.Value{"law", "open", "high", "agent-7", int64(5)}, calls[0].args)
}

func TestPostgres_ListWithoutFiltersIsTenantScoped(t *testing.T) {
	p, backend := newScriptedPostgres(t)

	got, err := p.List(context.Background(), "law", domain.TicketFilter{})
	require.NoError(t, err)
	require.Empty(t, got)
	require.NotNil(t, got)

	q := backend.recorded()[0].query
	require.Contains(t, q, "tenant_id = $1")
	require.NotContains(t, q, "status")
	require.NotContains(t, q, "LIMIT")
}
