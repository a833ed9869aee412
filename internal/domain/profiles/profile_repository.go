package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/datagaffer/billing-api/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository defines the contract for profile persistence.
type Repository interface {
	// UpsertBillingState applies normalized subscription state derived from
	// one webhook event as a single insert-or-update keyed by email.
	UpsertBillingState(ctx context.Context, params types.UpsertBillingStateParams) error
	// GetByUserID retrieves a profile by its application user id.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*types.Profile, error)
	// GetByEmail retrieves a profile by normalized email.
	GetByEmail(ctx context.Context, email string) (*types.Profile, error)
}

// PgxPool is the subset of pgxpool.Pool the repository uses; pgxmock
// satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool PgxPool
}

func NewPostgresProfileRepo(pgpool PgxPool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

// Re-delivering the same event must converge to the same row, and two
// deliveries for the same email must not lose updates, so the write is one
// conditional upsert rather than a read-then-write sequence. customer_id is
// preserved unless the event carries a new non-null id, and trial_used is
// sticky once true.
const upsertBillingStateQuery = `
    INSERT INTO profiles (email, customer_id, plan, is_subscribed, subscription_status, trial_used)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (email) DO UPDATE SET
        customer_id         = COALESCE(EXCLUDED.customer_id, profiles.customer_id),
        plan                = EXCLUDED.plan,
        is_subscribed       = EXCLUDED.is_subscribed,
        subscription_status = EXCLUDED.subscription_status,
        trial_used          = profiles.trial_used OR EXCLUDED.trial_used,
        updated_at          = now()`

// UpsertBillingState implements Repository.
func (r *RepositoryImpl) UpsertBillingState(ctx context.Context, params types.UpsertBillingStateParams) error {
	ctx, span := otel.Tracer("ProfileRepo").Start(ctx, "UpsertBillingState", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "profiles"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "UpsertBillingState"), slog.String("email", params.Email))
	l.DebugContext(ctx, "Upserting profile billing state")

	email := types.NormalizeEmail(params.Email)
	if email == "" {
		err := fmt.Errorf("empty email: %w", types.ErrValidation)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Empty email")
		return err
	}

	_, err := r.pgpool.Exec(ctx, upsertBillingStateQuery,
		email,
		params.CustomerID,
		params.Plan,
		params.IsSubscribed,
		params.SubscriptionStatus,
		params.TrialUsed,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			l.ErrorContext(ctx, "Postgres error upserting billing state",
				slog.String("code", pgErr.Code), slog.Any("error", err))
		} else {
			l.ErrorContext(ctx, "Failed to upsert billing state", slog.Any("error", err))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPSERT failed")
		return fmt.Errorf("database error upserting billing state: %w", types.ErrStore)
	}

	l.InfoContext(ctx, "Profile billing state upserted",
		slog.Bool("is_subscribed", params.IsSubscribed))
	span.SetStatus(codes.Ok, "Billing state upserted")
	return nil
}

var profileColumns = []string{
	"id", "user_id", "email", "customer_id", "plan",
	"is_subscribed", "subscription_status", "trial_used",
	"created_at", "updated_at",
}

// GetByUserID implements Repository.
func (r *RepositoryImpl) GetByUserID(ctx context.Context, userID uuid.UUID) (*types.Profile, error) {
	ctx, span := otel.Tracer("ProfileRepo").Start(ctx, "GetByUserID", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "profiles"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "GetByUserID"), slog.String("userID", userID.String()))
	l.DebugContext(ctx, "Fetching profile by user id")

	return r.getOne(ctx, span, l, squirrel.Eq{"user_id": userID})
}

// GetByEmail implements Repository.
func (r *RepositoryImpl) GetByEmail(ctx context.Context, email string) (*types.Profile, error) {
	email = types.NormalizeEmail(email)

	ctx, span := otel.Tracer("ProfileRepo").Start(ctx, "GetByEmail", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "profiles"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "GetByEmail"), slog.String("email", email))
	l.DebugContext(ctx, "Fetching profile by email")

	return r.getOne(ctx, span, l, squirrel.Eq{"email": email})
}

func (r *RepositoryImpl) getOne(ctx context.Context, span trace.Span, l *slog.Logger, where squirrel.Eq) (*types.Profile, error) {
	query, args, err := squirrel.Select(profileColumns...).
		From("profiles").
		PlaceholderFormat(squirrel.Dollar).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to build profile query: %w", err)
	}

	var p types.Profile
	err = r.pgpool.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.UserID, &p.Email, &p.CustomerID, &p.Plan,
		&p.IsSubscribed, &p.SubscriptionStatus, &p.TrialUsed,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			l.DebugContext(ctx, "Profile not found")
			span.SetStatus(codes.Ok, "Profile not found")
			return nil, fmt.Errorf("profile not found: %w", types.ErrNotFound)
		}
		l.ErrorContext(ctx, "Failed to query profile", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching profile: %w", types.ErrStore)
	}

	span.SetStatus(codes.Ok, "Profile fetched")
	return &p, nil
}
