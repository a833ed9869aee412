package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/datagaffer/billing-api/internal/domain/billing"
	"github.com/datagaffer/billing-api/internal/types"
)

const (
	testSecret  = "whsec_handler_test"
	testSiteURL = "https://www.datagaffer.com"
)

// fakeRepo records upserts and serves canned profiles.
type fakeRepo struct {
	upserts  []types.UpsertBillingStateParams
	profiles map[string]*types.Profile // keyed by email
}

func (f *fakeRepo) UpsertBillingState(_ context.Context, params types.UpsertBillingStateParams) error {
	f.upserts = append(f.upserts, params)
	return nil
}

func (f *fakeRepo) GetByUserID(context.Context, uuid.UUID) (*types.Profile, error) {
	return nil, fmt.Errorf("profile not found: %w", types.ErrNotFound)
}

func (f *fakeRepo) GetByEmail(_ context.Context, email string) (*types.Profile, error) {
	if p, ok := f.profiles[email]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("profile not found: %w", types.ErrNotFound)
}

// fakeProvider serves canned processor responses.
type fakeProvider struct {
	checkoutURL string
	portalURL   string
	sub         *stripe.Subscription
	customer    *stripe.Customer
}

func (f *fakeProvider) CreateCheckoutSession(context.Context, billing.CheckoutParams) (string, error) {
	return f.checkoutURL, nil
}

func (f *fakeProvider) CreatePortalSession(context.Context, string, string) (string, error) {
	return f.portalURL, nil
}

func (f *fakeProvider) GetCustomer(context.Context, string) (*stripe.Customer, error) {
	return f.customer, nil
}

func (f *fakeProvider) GetSubscription(context.Context, string) (*stripe.Subscription, error) {
	return f.sub, nil
}

func (f *fakeProvider) LatestSubscription(context.Context, string) (*stripe.Subscription, error) {
	return f.sub, nil
}

func newTestHandler(repo *fakeRepo, provider *fakeProvider) *BillingHandler {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	catalog := billing.NewPlanCatalog(map[types.PlanCode]string{
		types.PlanMonthly: "price_monthly_123",
		types.PlanYearly:  "price_yearly_456",
	})
	reconciler := billing.NewReconciler(repo, provider, catalog, testSecret, logger)
	issuer := billing.NewSessionIssuer(repo, provider, catalog, testSiteURL, 7, logger)
	return NewBillingHandler(reconciler, issuer, logger)
}

func sign(payload []byte) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testSecret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func TestHandleWebhook_ValidDelivery(t *testing.T) {
	repo := &fakeRepo{}
	provider := &fakeProvider{
		sub: &stripe.Subscription{
			ID:       "sub_123",
			Status:   stripe.SubscriptionStatusActive,
			Customer: &stripe.Customer{ID: "cus_123"},
			Items: &stripe.SubscriptionItemList{
				Data: []*stripe.SubscriptionItem{
					{Price: &stripe.Price{ID: "price_monthly_123"}},
				},
			},
		},
	}
	h := newTestHandler(repo, provider)

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_123","customer":"cus_123","subscription":"sub_123","customer_details":{"email":"user@example.com"}}}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", sign(payload))
	rec := httptest.NewRecorder()

	h.HandleWebhook(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, repo.upserts, 1)
	assert.Equal(t, "user@example.com", repo.upserts[0].Email)
	assert.True(t, repo.upserts[0].IsSubscribed)
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	repo := &fakeRepo{}
	h := newTestHandler(repo, &fakeProvider{})

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_123"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()

	h.HandleWebhook(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.upserts)
}

func TestHandleWebhook_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(&fakeRepo{}, &fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/webhook", nil)
	rec := httptest.NewRecorder()

	h.HandleWebhook(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleCreateCheckout(t *testing.T) {
	h := newTestHandler(&fakeRepo{}, &fakeProvider{checkoutURL: "https://checkout.stripe.com/c/pay/cs_1"})

	body := `{"plan":"monthly","email":"user@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleCreateCheckout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp types.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_1", resp.URL)
}

func TestHandleCreateCheckout_UnknownPlan(t *testing.T) {
	h := newTestHandler(&fakeRepo{}, &fakeProvider{})

	body := `{"plan":"platinum","email":"user@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleCreateCheckout(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateCheckout_BadBody(t *testing.T) {
	h := newTestHandler(&fakeRepo{}, &fakeProvider{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	h.HandleCreateCheckout(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreatePortal_RedirectsWithoutCustomer(t *testing.T) {
	repo := &fakeRepo{profiles: map[string]*types.Profile{
		"user@example.com": {Email: "user@example.com"},
	}}
	h := newTestHandler(repo, &fakeProvider{})

	body := `{"email":"user@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/portal", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleCreatePortal(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp types.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.URL)
	assert.Equal(t, testSiteURL+"/subscribe", resp.Redirect)
}

func TestHandleCreatePortal_ReturnsPortalURL(t *testing.T) {
	custID := "cus_123"
	repo := &fakeRepo{profiles: map[string]*types.Profile{
		"user@example.com": {Email: "user@example.com", CustomerID: &custID},
	}}
	h := newTestHandler(repo, &fakeProvider{portalURL: "https://billing.stripe.com/p/session/bps_1"})

	body := `{"email":"user@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/portal", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleCreatePortal(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp types.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://billing.stripe.com/p/session/bps_1", resp.URL)
}
