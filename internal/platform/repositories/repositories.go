package repositories

import (
	"context"
	"database/sql"
	"errors"
)

// ErrUniqueViolation is returned when an insert collides with a unique index.
var ErrUniqueViolation = errors.New("unique constraint violation")

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repositories bundles every repository over one connection or transaction.
type Repositories struct {
	db *sql.DB

	Users       *UserRepository
	Workspaces  *WorkspaceRepository
	Memberships *MembershipRepository
	Invites     *InviteRepository
	Projects    *ProjectRepository
	Invoices    *InvoiceRepository
}

func New(db *sql.DB) *Repositories {
	r := build(db)
	r.db = db
	return r
}

func build(q DBTX) *Repositories {
	return &Repositories{
		Users:       &UserRepository{db: q},
		Workspaces:  &WorkspaceRepository{db: q},
		Memberships: &MembershipRepository{db: q},
		Invites:     &InviteRepository{db: q},
		Projects:    &ProjectRepository{db: q},
		Invoices:    &InvoiceRepository{db: q},
	}
}

func (r *Repositories) DB() *sql.DB {
	return r.db
}

// InTx runs fn with repositories bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise. fn must
// not use the outer repositories while it runs.
func (r *Repositories) InTx(ctx context.Context, fn func(tx *Repositories) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(build(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullFloat64(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func float64Ptr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

type scanner interface {
	Scan(dest ...interface{}) error
}
