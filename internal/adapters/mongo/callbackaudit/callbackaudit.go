// Package callbackaudit stores the raw, unparsed payload of every
// inbound mobile-money provider callback in Mongo (notification
// delivery-report webhooks are not recorded here), mirroring the pack's use of
// mongo-driver for unstructured audit/raw-payload storage that is never
// the system of record (Postgres is). Useful for dispute resolution
// and provider-behavior debugging without constraining the schema.
package callbackaudit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/mongo"
	"github.com/bodaboda-insure/core/internal/platform/otel"
)

// Record is one audited inbound callback.
type Record struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Source     string             `bson:"source"` // "mobile_money", "sms", "whatsapp", "email"
	Reference  string             `bson:"reference,omitempty"`
	RawPayload []byte             `bson:"raw_payload"`
	ReceivedAt time.Time          `bson:"received_at"`
}

// Repository persists raw callback payloads.
type Repository struct {
	connection *mongo.Connection
	collection string
}

// NewRepository returns a repository bound to conn.
func NewRepository(conn *mongo.Connection) *Repository {
	return &Repository{connection: conn, collection: "callback_audit"}
}

// Record inserts one audit row. Failures here are logged but must never
// block the caller's primary write path.
func (r *Repository) Record(ctx context.Context, rec Record) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "mongo.callback_audit.record")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		otel.HandleSpanError(&span, "failed to get mongo connection", err)
		return apperr.InternalError{Message: "callbackaudit: db connection", Err: err}
	}

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}

	_, err = db.Collection(r.collection).InsertOne(ctx, rec)
	if err != nil {
		otel.HandleSpanError(&span, "failed to insert audit record", err)
		return apperr.InternalError{Message: "callbackaudit: insert", Err: err}
	}

	return nil
}

// FindByReference returns every audited payload for a provider reference,
// newest first, used when investigating a disputed transaction.
func (r *Repository) FindByReference(ctx context.Context, reference string) ([]Record, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "mongo.callback_audit.find_by_reference")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		otel.HandleSpanError(&span, "failed to get mongo connection", err)
		return nil, apperr.InternalError{Message: "callbackaudit: db connection", Err: err}
	}

	cur, err := db.Collection(r.collection).Find(ctx, bson.M{"reference": reference})
	if err != nil {
		otel.HandleSpanError(&span, "failed to query audit records", err)
		return nil, apperr.InternalError{Message: "callbackaudit: find", Err: err}
	}
	defer cur.Close(ctx)

	var out []Record
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.InternalError{Message: "callbackaudit: decode", Err: err}
	}

	return out, nil
}
