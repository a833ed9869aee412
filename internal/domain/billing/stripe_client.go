package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/datagaffer/billing-api/internal/types"
)

var _ PaymentProvider = (*StripeProvider)(nil)

// PaymentProvider is the narrow slice of the payment processor's API this
// service touches. Services take this interface so tests can substitute a
// fake; production wiring injects StripeProvider.
type PaymentProvider interface {
	// CreateCheckoutSession mints a processor-hosted checkout flow and
	// returns its redirect URL.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
	// CreatePortalSession mints a self-service billing-portal flow for an
	// existing customer and returns its redirect URL.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	// GetCustomer fetches a billing customer record by id.
	GetCustomer(ctx context.Context, customerID string) (*stripe.Customer, error)
	// GetSubscription fetches a subscription by id.
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	// LatestSubscription returns the customer's most recent subscription, or
	// nil when the customer has none.
	LatestSubscription(ctx context.Context, customerID string) (*stripe.Subscription, error)
}

// CheckoutParams describes one checkout session request.
type CheckoutParams struct {
	PriceID       string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	TrialDays     int64 // 0 disables the trial entirely
}

// StripeProvider implements PaymentProvider on the Stripe SDK. The client is
// constructed explicitly rather than through the package-level key so it can
// be injected.
type StripeProvider struct {
	sc     *client.API
	logger *slog.Logger
}

func NewStripeProvider(secretKey string, logger *slog.Logger) *StripeProvider {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeProvider{sc: sc, logger: logger}
}

// CreateCheckoutSession implements PaymentProvider.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
	}
	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	if params.TrialDays > 0 {
		sessionParams.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(params.TrialDays),
		}
	}

	sess, err := p.sc.CheckoutSessions.New(sessionParams)
	if err != nil {
		p.logger.ErrorContext(ctx, "stripe checkout session failed", slog.Any("error", err))
		return "", fmt.Errorf("creating checkout session: %w", types.ErrUpstream)
	}
	return sess.URL, nil
}

// CreatePortalSession implements PaymentProvider.
func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	sess, err := p.sc.BillingPortalSessions.New(&stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "stripe portal session failed",
			slog.String("customer_id", customerID), slog.Any("error", err))
		return "", fmt.Errorf("creating portal session: %w", types.ErrUpstream)
	}
	return sess.URL, nil
}

// GetCustomer implements PaymentProvider.
func (p *StripeProvider) GetCustomer(ctx context.Context, customerID string) (*stripe.Customer, error) {
	cust, err := p.sc.Customers.Get(customerID, &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "stripe customer lookup failed",
			slog.String("customer_id", customerID), slog.Any("error", err))
		return nil, fmt.Errorf("retrieving customer %s: %w", customerID, types.ErrUpstream)
	}
	return cust, nil
}

// GetSubscription implements PaymentProvider.
func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	sub, err := p.sc.Subscriptions.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "stripe subscription lookup failed",
			slog.String("subscription_id", subscriptionID), slog.Any("error", err))
		return nil, fmt.Errorf("retrieving subscription %s: %w", subscriptionID, types.ErrUpstream)
	}
	return sub, nil
}

// LatestSubscription implements PaymentProvider.
func (p *StripeProvider) LatestSubscription(ctx context.Context, customerID string) (*stripe.Subscription, error) {
	iter := p.sc.Subscriptions.List(&stripe.SubscriptionListParams{
		ListParams: stripe.ListParams{
			Context: ctx,
			Limit:   stripe.Int64(1),
		},
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	})
	if iter.Next() {
		return iter.Subscription(), nil
	}
	if err := iter.Err(); err != nil {
		p.logger.ErrorContext(ctx, "stripe subscription list failed",
			slog.String("customer_id", customerID), slog.Any("error", err))
		return nil, fmt.Errorf("listing subscriptions for %s: %w", customerID, types.ErrUpstream)
	}
	return nil, nil
}
