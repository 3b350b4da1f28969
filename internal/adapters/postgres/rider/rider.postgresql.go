// Package rider is the postgres implementation of rider.Repository,
// a thin read-only lookup. Rider CRUD and KYC review belong to the
// onboarding service; only the KYC gate matters here.
package rider

import (
	"context"
	"database/sql"
	"errors"
	"reflect"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/domain/rider"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/platform/postgres"
)

// PostgreSQLRepository is a postgres-backed rider.Repository.
type PostgreSQLRepository struct {
	connection *postgres.Connection
}

// NewPostgreSQLRepository returns a new rider repository bound to conn.
func NewPostgreSQLRepository(conn *postgres.Connection) *PostgreSQLRepository {
	r := &PostgreSQLRepository{connection: conn}

	if _, err := r.connection.GetDB(); err != nil {
		panic("rider: failed to connect database")
	}

	return r
}

func scanRider(row *sql.Row) (*rider.Rider, error) {
	ri := &rider.Rider{}

	err := row.Scan(&ri.ID, &ri.Phone, &ri.KYCStatus, &ri.OrganizationID, &ri.Language, &ri.Status, &ri.CreatedAt, &ri.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return ri, nil
}

// Find returns the rider with the given id.
func (r *PostgreSQLRepository) Find(ctx context.Context, id uuid.UUID) (*rider.Rider, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.rider.find")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "rider: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, phone, kyc_status, organization_id, language, status, created_at, updated_at
		FROM rider WHERE id = $1`, id)

	ri, err := scanRider(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: reflect.TypeOf(rider.Rider{}).Name(), ID: id.String()}
		}

		otel.HandleSpanError(&span, "failed to scan rider", err)
		return nil, apperr.InternalError{Message: "rider: scan", Err: err}
	}

	return ri, nil
}

// FindByPhone returns the rider with the given normalized E.164 phone.
func (r *PostgreSQLRepository) FindByPhone(ctx context.Context, phone string) (*rider.Rider, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.rider.find_by_phone")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "rider: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, phone, kyc_status, organization_id, language, status, created_at, updated_at
		FROM rider WHERE phone = $1`, phone)

	ri, err := scanRider(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: reflect.TypeOf(rider.Rider{}).Name()}
		}

		otel.HandleSpanError(&span, "failed to scan rider", err)
		return nil, apperr.InternalError{Message: "rider: scan", Err: err}
	}

	return ri, nil
}

var _ rider.Repository = (*PostgreSQLRepository)(nil)
