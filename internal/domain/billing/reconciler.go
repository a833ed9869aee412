package billing

import (
	"context"
	"log/slog"

	"github.com/stripe/stripe-go/v82"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/datagaffer/billing-api/internal/domain/profiles"
	"github.com/datagaffer/billing-api/internal/types"
	"github.com/datagaffer/billing-api/pkg/observability"
)

// Outcome describes what one webhook delivery did.
type Outcome string

const (
	// OutcomeApplied means profile state was durably mutated.
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored means the event type is outside the recognized set, or
	// carried nothing actionable; acknowledged without mutation.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDropped means no email could be resolved from any source. The
	// event is acknowledged anyway so the processor stops redelivering an
	// unrecoverable data gap.
	OutcomeDropped Outcome = "dropped"
)

// Reconciler consumes one webhook delivery per call: authenticate, classify,
// derive normalized subscription state, and apply it to the profile row with
// a single idempotent upsert.
type Reconciler struct {
	logger        *slog.Logger
	repo          profiles.Repository
	provider      PaymentProvider
	catalog       *PlanCatalog
	webhookSecret string
}

func NewReconciler(repo profiles.Repository, provider PaymentProvider, catalog *PlanCatalog, webhookSecret string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		logger:        logger,
		repo:          repo,
		provider:      provider,
		catalog:       catalog,
		webhookSecret: webhookSecret,
	}
}

// ProcessWebhook handles one raw delivery. The payload must be the exact
// bytes received; re-encoding breaks signature verification. Authentication
// and parse failures come back wrapping types.ErrAuthentication or
// types.ErrValidation; store and processor failures wrap types.ErrStore and
// types.ErrUpstream so the transport can surface a retryable status.
func (s *Reconciler) ProcessWebhook(ctx context.Context, payload []byte, sigHeader string) (Outcome, error) {
	ctx, span := otel.Tracer("Reconciler").Start(ctx, "ProcessWebhook", trace.WithAttributes(
		attribute.Int("webhook.payload_bytes", len(payload)),
	))
	defer span.End()

	event, err := VerifyAndClassify(payload, sigHeader, s.webhookSecret)
	if err != nil {
		s.logger.WarnContext(ctx, "webhook rejected", slog.Any("error", err))
		observability.RecordWebhookEvent("invalid", observability.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Webhook rejected")
		return "", err
	}

	span.SetAttributes(attribute.String("webhook.event_type", event.EventType()))
	l := s.logger.With(slog.String("method", "ProcessWebhook"), slog.String("event_type", event.EventType()))

	var outcome Outcome
	switch e := event.(type) {
	case CheckoutCompleted:
		outcome, err = s.applyCheckoutCompleted(ctx, l, e.Session)
	case SubscriptionChanged:
		outcome, err = s.applySubscriptionState(ctx, l, e.Subscription, false)
	case SubscriptionDeleted:
		outcome, err = s.applySubscriptionState(ctx, l, e.Subscription, true)
	case Ignored:
		l.DebugContext(ctx, "event type not handled, acknowledging")
		outcome = OutcomeIgnored
	}

	if err != nil {
		l.ErrorContext(ctx, "webhook processing failed", slog.Any("error", err))
		observability.RecordWebhookEvent(event.EventType(), observability.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Webhook processing failed")
		return "", err
	}

	observability.RecordWebhookEvent(event.EventType(), string(outcome))
	span.SetStatus(codes.Ok, "Webhook processed")
	return outcome, nil
}

// applyCheckoutCompleted reconciles a finished checkout. A completed session
// does not always carry subscription state inline, so the real subscription
// is resolved first: follow the session's subscription reference, or fall
// back to the customer's most recent subscription.
func (s *Reconciler) applyCheckoutCompleted(ctx context.Context, l *slog.Logger, sess stripe.CheckoutSession) (Outcome, error) {
	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}

	var sub *stripe.Subscription
	var err error
	switch {
	case sess.Subscription != nil && sess.Subscription.ID != "":
		sub, err = s.provider.GetSubscription(ctx, sess.Subscription.ID)
	case customerID != "":
		sub, err = s.provider.LatestSubscription(ctx, customerID)
	}
	if err != nil {
		return "", err
	}

	email, err := s.resolveCheckoutEmail(ctx, sess, customerID)
	if err != nil {
		return "", err
	}
	if email == "" {
		l.WarnContext(ctx, "dropping checkout session event",
			slog.Any("error", types.ErrUnresolvableIdentity),
			slog.String("session_id", sess.ID), slog.String("customer_id", customerID))
		observability.RecordUnresolvedIdentity()
		return OutcomeDropped, nil
	}

	if sub == nil {
		// A session with no subscription anywhere (e.g. one-time payment
		// mode). Activating without a plan would break the profile
		// invariant, so acknowledge without touching the row.
		l.WarnContext(ctx, "checkout session has no resolvable subscription, acknowledging",
			slog.String("session_id", sess.ID))
		return OutcomeIgnored, nil
	}

	params := s.deriveState(email, customerID, sub)
	if err := s.repo.UpsertBillingState(ctx, params); err != nil {
		return "", err
	}

	l.InfoContext(ctx, "checkout reconciled",
		slog.String("email", params.Email),
		slog.Bool("is_subscribed", params.IsSubscribed))
	return OutcomeApplied, nil
}

// applySubscriptionState reconciles a subscription lifecycle event. For
// deletions the profile is deactivated but customer_id is preserved for
// history; only is_subscribed and plan flip.
func (s *Reconciler) applySubscriptionState(ctx context.Context, l *slog.Logger, sub stripe.Subscription, deleted bool) (Outcome, error) {
	if sub.Customer == nil || sub.Customer.ID == "" {
		l.WarnContext(ctx, "dropping subscription event with no customer reference",
			slog.Any("error", types.ErrUnresolvableIdentity),
			slog.String("subscription_id", sub.ID))
		observability.RecordUnresolvedIdentity()
		return OutcomeDropped, nil
	}
	customerID := sub.Customer.ID

	email := ""
	if sub.Customer.Email != "" {
		email = sub.Customer.Email
	} else {
		cust, err := s.provider.GetCustomer(ctx, customerID)
		if err != nil {
			return "", err
		}
		if cust != nil {
			email = cust.Email
		}
	}
	if email == "" {
		l.WarnContext(ctx, "dropping subscription event",
			slog.Any("error", types.ErrUnresolvableIdentity),
			slog.String("subscription_id", sub.ID), slog.String("customer_id", customerID))
		observability.RecordUnresolvedIdentity()
		return OutcomeDropped, nil
	}
	email = types.NormalizeEmail(email)

	var params types.UpsertBillingStateParams
	if deleted {
		status := string(sub.Status)
		params = types.UpsertBillingStateParams{
			Email:              email,
			CustomerID:         &customerID,
			Plan:               nil,
			IsSubscribed:       false,
			SubscriptionStatus: &status,
			TrialUsed:          usedTrial(&sub),
		}
	} else {
		params = s.deriveState(email, customerID, &sub)
	}

	if err := s.repo.UpsertBillingState(ctx, params); err != nil {
		return "", err
	}

	l.InfoContext(ctx, "subscription state reconciled",
		slog.String("email", params.Email),
		slog.Bool("is_subscribed", params.IsSubscribed),
		slog.Bool("deleted", deleted))
	return OutcomeApplied, nil
}

// deriveState maps a resolved subscription to the profile mutation.
// is_subscribed requires both an active-equivalent status and a recognized
// plan; an unknown price id yields a null plan and therefore no paid access.
func (s *Reconciler) deriveState(email, customerID string, sub *stripe.Subscription) types.UpsertBillingStateParams {
	plan := s.catalog.PlanForPrice(priceIDOf(sub))
	status := string(sub.Status)

	var custPtr *string
	if customerID != "" {
		custPtr = &customerID
	} else if sub.Customer != nil && sub.Customer.ID != "" {
		custPtr = &sub.Customer.ID
	}

	return types.UpsertBillingStateParams{
		Email:              email,
		CustomerID:         custPtr,
		Plan:               plan,
		IsSubscribed:       isActiveEquivalent(sub.Status) && plan != nil,
		SubscriptionStatus: &status,
		TrialUsed:          usedTrial(sub),
	}
}

// resolveCheckoutEmail prefers the session's embedded customer details and
// falls back to a customer lookup by id.
func (s *Reconciler) resolveCheckoutEmail(ctx context.Context, sess stripe.CheckoutSession, customerID string) (string, error) {
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		return types.NormalizeEmail(sess.CustomerDetails.Email), nil
	}
	if sess.CustomerEmail != "" {
		return types.NormalizeEmail(sess.CustomerEmail), nil
	}
	if customerID == "" {
		return "", nil
	}
	cust, err := s.provider.GetCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	if cust == nil || cust.Email == "" {
		return "", nil
	}
	return types.NormalizeEmail(cust.Email), nil
}
