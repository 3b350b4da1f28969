package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bodaboda-insure/core/internal/domain/ledger"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/platform/postgres"
)

// AccountPostgreSQLRepository is a postgres-backed ledger.AccountRepository
// over a small, seed-managed chart of accounts.
type AccountPostgreSQLRepository struct {
	connection *postgres.Connection
}

// NewAccountPostgreSQLRepository returns a repository bound to conn.
func NewAccountPostgreSQLRepository(conn *postgres.Connection) *AccountPostgreSQLRepository {
	r := &AccountPostgreSQLRepository{connection: conn}

	if _, err := r.connection.GetDB(); err != nil {
		panic("ledger: failed to connect database")
	}

	return r
}

// FindByCode looks up a GL account by its chart-of-accounts code.
func (r *AccountPostgreSQLRepository) FindByCode(ctx context.Context, code string) (*ledger.GLAccount, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.gl_account.find_by_code")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "gl_account: db connection", Err: err}
	}

	a := &ledger.GLAccount{}

	err = db.QueryRowContext(ctx, `SELECT id, code, name, type, created_at FROM gl_account WHERE code = $1`, code).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: "GLAccount", ID: code}
		}

		otel.HandleSpanError(&span, "failed to scan gl account", err)
		return nil, apperr.InternalError{Message: "gl_account: scan", Err: err}
	}

	return a, nil
}

// List returns the full chart of accounts.
func (r *AccountPostgreSQLRepository) List(ctx context.Context) ([]*ledger.GLAccount, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.gl_account.list")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "gl_account: db connection", Err: err}
	}

	rows, err := db.QueryContext(ctx, `SELECT id, code, name, type, created_at FROM gl_account ORDER BY code ASC`)
	if err != nil {
		otel.HandleSpanError(&span, "failed to query gl accounts", err)
		return nil, apperr.InternalError{Message: "gl_account: query", Err: err}
	}
	defer rows.Close()

	out := make([]*ledger.GLAccount, 0)

	for rows.Next() {
		a := &ledger.GLAccount{}
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.CreatedAt); err != nil {
			return nil, apperr.InternalError{Message: "gl_account: scan row", Err: err}
		}

		out = append(out, a)
	}

	return out, rows.Err()
}

var _ ledger.AccountRepository = (*AccountPostgreSQLRepository)(nil)
