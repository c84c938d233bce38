package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-checkin/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

type txKey struct{}

// WithTx runs fn inside a transaction. Store calls made with the context passed
// to fn join that transaction; nested calls reuse the outer one.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (d *DB) conn(ctx context.Context) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return d.Bun
}

func (d *DB) isPostgres() bool {
	return d.Bun.Dialect().Name() == dialect.PG
}

// CreateSchema creates every table and index the service needs. Postgres
// deployments use the SQL migrations instead; tests use this.
func (d *DB) CreateSchema(ctx context.Context) error {
	tables := []interface{}{
		(*models.Event)(nil),
		(*models.Team)(nil),
		(*models.TeamMember)(nil),
		(*models.Ticket)(nil),
		(*models.QRToken)(nil),
		(*models.CheckIn)(nil),
	}
	for _, model := range tables {
		if _, err := d.Bun.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []struct {
		model  interface{}
		name   string
		column string
	}{
		{(*models.Ticket)(nil), "idx_tickets_event_id", "event_id"},
		{(*models.Ticket)(nil), "idx_tickets_holder_address", "holder_address"},
		{(*models.QRToken)(nil), "idx_ticket_qr_tokens_ticket_id", "ticket_id"},
		{(*models.CheckIn)(nil), "idx_event_checkins_event_id", "event_id"},
	}
	for _, idx := range indexes {
		_, err := d.Bun.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.column).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// IsTransient reports whether err is a store conflict worth retrying the
// whole atomic unit for.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
