package types

// CreateCheckoutRequest is the body of POST /api/v1/billing/checkout.
// At least one of UserID or Email must be present.
type CreateCheckoutRequest struct {
	Plan   string `json:"plan"`
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

// CreatePortalRequest is the body of POST /api/v1/billing/portal.
type CreatePortalRequest struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

// SessionResponse carries the processor-hosted redirect URL for a checkout
// or billing-portal session. When a portal is requested for an identity with
// no billing customer on file, URL is empty and Redirect points the caller
// at the subscribe flow instead; that is a normal outcome, not an error.
type SessionResponse struct {
	URL      string `json:"url,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// ErrorResponse is the JSON error payload returned to browser-facing callers.
type ErrorResponse struct {
	Error string `json:"error"`
}
