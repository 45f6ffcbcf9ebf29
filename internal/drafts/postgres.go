package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps one row per sender in booking_drafts.
type PostgresStore struct {
	db     rowQuerier
	tracer trace.Tracer
	now    func() time.Time
}

// NewPostgresStore builds a store on a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("drafts: pgx pool required")
	}
	return newPostgresStoreWithExec(pool)
}

func newPostgresStoreWithExec(db rowQuerier) *PostgresStore {
	if db == nil {
		panic("drafts: exec required")
	}
	return &PostgresStore{db: db, tracer: otel.Tracer("gateway.internal.drafts.postgres"), now: time.Now}
}

func (s *PostgresStore) Get(ctx context.Context, sender string) (*booking.Draft, error) {
	ctx, span := s.tracer.Start(ctx, "drafts.postgres.get")
	defer span.End()

	query := `
		SELECT draft FROM booking_drafts
		WHERE sender = $1 AND (expires_at IS NULL OR expires_at > $2)
	`
	var data []byte
	if err := s.db.QueryRow(ctx, query, sender, s.now().UTC()).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("drafts: load draft: %w", err)
	}
	return decodeDraft(data)
}

func (s *PostgresStore) Set(ctx context.Context, sender string, draft *booking.Draft, ttl time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "drafts.postgres.set")
	defer span.End()

	data, err := encodeDraft(draft)
	if err != nil {
		return err
	}
	var expiresAt *time.Time
	if ttl > 0 {
		at := s.now().UTC().Add(ttl)
		expiresAt = &at
	}
	query := `
		INSERT INTO booking_drafts (sender, draft, expires_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (sender) DO UPDATE
		SET draft = EXCLUDED.draft, expires_at = EXCLUDED.expires_at, updated_at = now()
	`
	if _, err := s.db.Exec(ctx, query, sender, data, expiresAt); err != nil {
		span.RecordError(err)
		return fmt.Errorf("drafts: save draft: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sender string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM booking_drafts WHERE sender = $1`, sender); err != nil {
		return fmt.Errorf("drafts: delete draft: %w", err)
	}
	return nil
}
