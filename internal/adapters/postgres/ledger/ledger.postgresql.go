// Package ledger is the postgres implementation of
// ledger.Repository/ledger.AccountRepository. Post writes a JournalEntry
// and its Lines inside a single *sql.Tx so a partial entry can never
// land.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/domain/ledger"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/platform/postgres"
	"github.com/bodaboda-insure/core/pkg/money"
)

// PostgreSQLRepository is a postgres-backed ledger.Repository.
type PostgreSQLRepository struct {
	connection *postgres.Connection
}

// NewPostgreSQLRepository returns a new ledger repository bound to conn.
func NewPostgreSQLRepository(conn *postgres.Connection) *PostgreSQLRepository {
	r := &PostgreSQLRepository{connection: conn}

	if _, err := r.connection.GetDB(); err != nil {
		panic("ledger: failed to connect database")
	}

	return r
}

// Post writes e and all of its lines atomically. The journal entry is
// rejected with a ValidationError if it fails the trial-balance
// invariant before ever reaching the database.
func (r *PostgreSQLRepository) Post(ctx context.Context, e *ledger.JournalEntry) (*ledger.JournalEntry, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.ledger.post")
	defer span.End()

	if !e.Balanced() {
		return nil, apperr.ValidationError{
			EntityType: "JournalEntry",
			Code:       "UNBALANCED_ENTRY",
			Message:    "sum(debits) != sum(credits)",
		}
	}

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "ledger: db connection", Err: err}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		otel.HandleSpanError(&span, "failed to begin transaction", err)
		return nil, apperr.InternalError{Message: "ledger: begin tx", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO journal_entry (id, kind, reference_id, posted_at, created_at)
		VALUES ($1,$2,$3,$4,$4) RETURNING posted_at, created_at`,
		e.ID, e.Kind, e.ReferenceID, e.PostedAt,
	).Scan(&e.PostedAt, &e.CreatedAt); err != nil {
		otel.HandleSpanError(&span, "failed to insert journal entry", err)
		return nil, apperr.InternalError{Message: "ledger: insert entry", Err: err}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO journal_line (id, entry_id, account_id, side, amount) VALUES ($1,$2,$3,$4,$5)`)
	if err != nil {
		otel.HandleSpanError(&span, "failed to prepare line insert", err)
		return nil, apperr.InternalError{Message: "ledger: prepare line insert", Err: err}
	}
	defer stmt.Close()

	for i := range e.Lines {
		l := &e.Lines[i]
		if _, err := stmt.ExecContext(ctx, l.ID, e.ID, l.AccountID, l.Side, l.Amount); err != nil {
			otel.HandleSpanError(&span, "failed to insert journal line", err)
			return nil, apperr.InternalError{Message: "ledger: insert line", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		otel.HandleSpanError(&span, "failed to commit journal entry", err)
		return nil, apperr.InternalError{Message: "ledger: commit", Err: err}
	}

	return e, nil
}

// Find returns the journal entry with the given id, including its lines.
func (r *PostgreSQLRepository) Find(ctx context.Context, id uuid.UUID) (*ledger.JournalEntry, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.ledger.find")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "ledger: db connection", Err: err}
	}

	e := &ledger.JournalEntry{ID: id}

	if err := db.QueryRowContext(ctx, `SELECT kind, reference_id, posted_at, created_at FROM journal_entry WHERE id = $1`, id).
		Scan(&e.Kind, &e.ReferenceID, &e.PostedAt, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: "JournalEntry", ID: id.String()}
		}

		otel.HandleSpanError(&span, "failed to scan journal entry", err)
		return nil, apperr.InternalError{Message: "ledger: scan", Err: err}
	}

	lines, err := r.loadLines(ctx, id)
	if err != nil {
		return nil, err
	}

	e.Lines = lines

	return e, nil
}

// FindByReference returns every journal entry posted against referenceID
// (a PaymentRequest or Policy id).
func (r *PostgreSQLRepository) FindByReference(ctx context.Context, referenceID uuid.UUID) ([]*ledger.JournalEntry, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.ledger.find_by_reference")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "ledger: db connection", Err: err}
	}

	rows, err := db.QueryContext(ctx, `SELECT id, kind, reference_id, posted_at, created_at FROM journal_entry WHERE reference_id = $1 ORDER BY posted_at ASC`, referenceID)
	if err != nil {
		otel.HandleSpanError(&span, "failed to query journal entries", err)
		return nil, apperr.InternalError{Message: "ledger: query", Err: err}
	}
	defer rows.Close()

	out := make([]*ledger.JournalEntry, 0)

	for rows.Next() {
		e := &ledger.JournalEntry{}

		if err := rows.Scan(&e.ID, &e.Kind, &e.ReferenceID, &e.PostedAt, &e.CreatedAt); err != nil {
			return nil, apperr.InternalError{Message: "ledger: scan row", Err: err}
		}

		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, e := range out {
		lines, err := r.loadLines(ctx, e.ID)
		if err != nil {
			return nil, err
		}

		e.Lines = lines
	}

	return out, nil
}

func (r *PostgreSQLRepository) loadLines(ctx context.Context, entryID uuid.UUID) ([]ledger.Line, error) {
	db, err := r.connection.GetDB()
	if err != nil {
		return nil, apperr.InternalError{Message: "ledger: db connection", Err: err}
	}

	rows, err := db.QueryContext(ctx, `SELECT id, entry_id, account_id, side, amount FROM journal_line WHERE entry_id = $1`, entryID)
	if err != nil {
		return nil, apperr.InternalError{Message: "ledger: query lines", Err: err}
	}
	defer rows.Close()

	lines := make([]ledger.Line, 0)

	for rows.Next() {
		var l ledger.Line
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Side, &l.Amount); err != nil {
			return nil, apperr.InternalError{Message: "ledger: scan line", Err: err}
		}

		lines = append(lines, l)
	}

	return lines, rows.Err()
}

// TrialBalance sums every posted line by account as of asOf, for the
// trial-balance query served over HTTP.
func (r *PostgreSQLRepository) TrialBalance(ctx context.Context, asOf time.Time) (map[uuid.UUID]money.Minor, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.ledger.trial_balance")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "ledger: db connection", Err: err}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT l.account_id,
			SUM(CASE WHEN l.side = 'DEBIT' THEN l.amount ELSE -l.amount END) AS net
		FROM journal_line l
		JOIN journal_entry e ON e.id = l.entry_id
		WHERE e.posted_at <= $1
		GROUP BY l.account_id`, asOf)
	if err != nil {
		otel.HandleSpanError(&span, "failed to query trial balance", err)
		return nil, apperr.InternalError{Message: "ledger: query trial balance", Err: err}
	}
	defer rows.Close()

	out := make(map[uuid.UUID]money.Minor)

	for rows.Next() {
		var acct uuid.UUID
		var net int64

		if err := rows.Scan(&acct, &net); err != nil {
			return nil, apperr.InternalError{Message: "ledger: scan trial balance row", Err: err}
		}

		out[acct] = money.Minor(net)
	}

	return out, rows.Err()
}

var _ ledger.Repository = (*PostgreSQLRepository)(nil)
