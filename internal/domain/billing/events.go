package billing

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/datagaffer/billing-api/internal/types"
)

// Event is the closed set of webhook event variants the reconciler acts on.
// Anything the processor sends outside this set collapses to Ignored.
type Event interface {
	EventType() string
}

// CheckoutCompleted means a checkout flow finished. The session may or may
// not carry subscription state inline; the reconciler resolves the real
// subscription before deriving state.
type CheckoutCompleted struct {
	Session stripe.CheckoutSession
}

// SubscriptionChanged covers subscription created and updated events, which
// carry status and price directly. Type preserves which of the two the
// processor actually delivered.
type SubscriptionChanged struct {
	Type         stripe.EventType
	Subscription stripe.Subscription
}

// SubscriptionDeleted means the subscription ended and the profile must be
// deactivated.
type SubscriptionDeleted struct {
	Subscription stripe.Subscription
}

// Ignored is every event type the reconciler acknowledges without acting on.
type Ignored struct {
	Type string
}

func (CheckoutCompleted) EventType() string {
	return string(stripe.EventTypeCheckoutSessionCompleted)
}

func (e SubscriptionChanged) EventType() string { return string(e.Type) }

func (SubscriptionDeleted) EventType() string {
	return string(stripe.EventTypeCustomerSubscriptionDeleted)
}

func (e Ignored) EventType() string { return e.Type }

// VerifyAndClassify authenticates one raw webhook delivery and parses it into
// an Event variant. The payload must be the exact bytes as transmitted;
// verification is byte-sensitive.
func VerifyAndClassify(payload []byte, sigHeader, secret string) (Event, error) {
	stripeEvent, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrAuthentication, err)
	}

	switch stripeEvent.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(stripeEvent.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: decoding checkout session: %v", types.ErrValidation, err)
		}
		return CheckoutCompleted{Session: sess}, nil

	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(stripeEvent.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: decoding subscription: %v", types.ErrValidation, err)
		}
		return SubscriptionChanged{Type: stripeEvent.Type, Subscription: sub}, nil

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(stripeEvent.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: decoding subscription: %v", types.ErrValidation, err)
		}
		return SubscriptionDeleted{Subscription: sub}, nil

	default:
		return Ignored{Type: string(stripeEvent.Type)}, nil
	}
}

// isActiveEquivalent reports whether a subscription status counts as paid
// access. past_due stays active so a failing card does not cut a user off
// before dunning resolves.
func isActiveEquivalent(status stripe.SubscriptionStatus) bool {
	switch status {
	case stripe.SubscriptionStatusActive,
		stripe.SubscriptionStatusTrialing,
		stripe.SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

// priceIDOf extracts the first line item's price id from a subscription.
func priceIDOf(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	item := sub.Items.Data[0]
	if item == nil || item.Price == nil {
		return ""
	}
	return item.Price.ID
}

// usedTrial reports whether the subscription has consumed a free trial,
// either by being in trialing status now or by carrying a trial end
// timestamp from the past.
func usedTrial(sub *stripe.Subscription) bool {
	if sub == nil {
		return false
	}
	return sub.Status == stripe.SubscriptionStatusTrialing || sub.TrialEnd > 0
}
