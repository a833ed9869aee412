package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/datagaffer/billing-api/internal/domain/profiles"
	"github.com/datagaffer/billing-api/internal/types"
)

// SessionIssuer mints processor-hosted checkout and billing-portal sessions.
type SessionIssuer struct {
	logger    *slog.Logger
	repo      profiles.Repository
	provider  PaymentProvider
	catalog   *PlanCatalog
	siteURL   string
	trialDays int64
}

func NewSessionIssuer(repo profiles.Repository, provider PaymentProvider, catalog *PlanCatalog, siteURL string, trialDays int64, logger *slog.Logger) *SessionIssuer {
	return &SessionIssuer{
		logger:    logger,
		repo:      repo,
		provider:  provider,
		catalog:   catalog,
		siteURL:   siteURL,
		trialDays: trialDays,
	}
}

// CreateCheckout starts a checkout session for a named plan. The configured
// trial period is suppressed when the identity has already consumed one;
// trial_used only moves one way.
func (s *SessionIssuer) CreateCheckout(ctx context.Context, req types.CreateCheckoutRequest) (*types.SessionResponse, error) {
	ctx, span := otel.Tracer("SessionIssuer").Start(ctx, "CreateCheckout", trace.WithAttributes(
		attribute.String("billing.plan", req.Plan),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "CreateCheckout"), slog.String("plan", req.Plan))

	if !types.ValidPlanCode(req.Plan) {
		err := fmt.Errorf("unrecognized plan %q: %w", req.Plan, types.ErrValidation)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Unrecognized plan")
		return nil, err
	}
	priceID, ok := s.catalog.PriceForPlan(types.PlanCode(req.Plan))
	if !ok {
		err := fmt.Errorf("plan %q has no configured price: %w", req.Plan, types.ErrValidation)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Plan not configured")
		return nil, err
	}
	if req.UserID == "" && req.Email == "" {
		err := fmt.Errorf("user_id or email is required: %w", types.ErrValidation)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Missing identity")
		return nil, err
	}

	profile, err := s.resolveProfile(ctx, req.UserID, req.Email)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Profile lookup failed")
		return nil, err
	}

	email := types.NormalizeEmail(req.Email)
	trialDays := s.trialDays
	if profile != nil {
		if profile.Email != "" {
			email = profile.Email
		}
		if profile.TrialUsed {
			trialDays = 0
		}
	}

	url, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		PriceID:       priceID,
		CustomerEmail: email,
		SuccessURL:    s.siteURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.siteURL + "/cancel",
		TrialDays:     trialDays,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Checkout session creation failed")
		return nil, err
	}

	l.InfoContext(ctx, "checkout session created", slog.Bool("trial_offered", trialDays > 0))
	span.SetStatus(codes.Ok, "Checkout session created")
	return &types.SessionResponse{URL: url}, nil
}

// CreatePortal starts a self-service billing-portal session for an existing
// customer. An identity with no billing relationship gets a redirect to the
// subscribe flow; that is a normal outcome, not an error.
func (s *SessionIssuer) CreatePortal(ctx context.Context, req types.CreatePortalRequest) (*types.SessionResponse, error) {
	ctx, span := otel.Tracer("SessionIssuer").Start(ctx, "CreatePortal")
	defer span.End()

	l := s.logger.With(slog.String("method", "CreatePortal"))

	if req.UserID == "" && req.Email == "" {
		err := fmt.Errorf("user_id or email is required: %w", types.ErrValidation)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Missing identity")
		return nil, err
	}

	profile, err := s.resolveProfile(ctx, req.UserID, req.Email)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Profile lookup failed")
		return nil, err
	}

	if profile == nil || profile.CustomerID == nil || *profile.CustomerID == "" {
		l.InfoContext(ctx, "no billing customer on file, redirecting to subscribe flow")
		span.SetStatus(codes.Ok, "No customer on file")
		return &types.SessionResponse{Redirect: s.siteURL + "/subscribe"}, nil
	}

	url, err := s.provider.CreatePortalSession(ctx, *profile.CustomerID, s.siteURL+"/dashboard")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Portal session creation failed")
		return nil, err
	}

	l.InfoContext(ctx, "portal session created")
	span.SetStatus(codes.Ok, "Portal session created")
	return &types.SessionResponse{URL: url}, nil
}

// resolveProfile looks the identity up by user id first, then falls back to
// email. A missing profile comes back as (nil, ErrNotFound).
func (s *SessionIssuer) resolveProfile(ctx context.Context, userID, email string) (*types.Profile, error) {
	if userID != "" {
		id, err := uuid.Parse(userID)
		if err != nil {
			return nil, fmt.Errorf("invalid user id: %w", types.ErrValidation)
		}
		profile, err := s.repo.GetByUserID(ctx, id)
		if err == nil {
			return profile, nil
		}
		if !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
	}
	if email != "" {
		return s.repo.GetByEmail(ctx, types.NormalizeEmail(email))
	}
	return nil, fmt.Errorf("profile not found: %w", types.ErrNotFound)
}
