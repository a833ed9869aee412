package types

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// --- ENUM Types ---

// PlanCode represents the DB ENUM 'plan_code_enum'. It is this system's
// internal subscription tier identifier, distinct from the processor's
// price identifiers.
type PlanCode string

const (
	PlanMonthly PlanCode = "monthly" // Monthly recurring tier
	PlanYearly  PlanCode = "yearly"  // Annual recurring tier
)

// Scan implements the sql.Scanner interface for PlanCode.
func (p *PlanCode) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte) // Sometimes comes as bytes
		if !ok {
			return fmt.Errorf("failed to scan PlanCode: expected string or []byte, got %T", value)
		}
		strVal = string(bytesVal)
	}
	switch PlanCode(strVal) {
	case PlanMonthly, PlanYearly:
		*p = PlanCode(strVal)
		return nil
	default:
		return fmt.Errorf("unknown PlanCode value: %s", strVal)
	}
}

// Value implements the driver.Valuer interface for PlanCode.
func (p PlanCode) Value() (driver.Value, error) {
	switch p {
	case PlanMonthly, PlanYearly:
		return string(p), nil
	default:
		return nil, fmt.Errorf("invalid PlanCode value: %s", p)
	}
}

// ValidPlanCode reports whether s names a recognized plan tier.
func ValidPlanCode(s string) bool {
	switch PlanCode(s) {
	case PlanMonthly, PlanYearly:
		return true
	default:
		return false
	}
}

// --- Profile ---

// Profile is one row of the profiles table: the durable record of a user's
// billing relationship, keyed by normalized email.
type Profile struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             *uuid.UUID `json:"user_id,omitempty"`
	Email              string     `json:"email"`
	CustomerID         *string    `json:"customer_id,omitempty"`
	Plan               *PlanCode  `json:"plan,omitempty"`
	IsSubscribed       bool       `json:"is_subscribed"`
	SubscriptionStatus *string    `json:"subscription_status,omitempty"`
	TrialUsed          bool       `json:"trial_used"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// UpsertBillingStateParams carries the normalized subscription state derived
// from one webhook event, applied as a single insert-or-update keyed by Email.
type UpsertBillingStateParams struct {
	Email              string   // already normalized (lowercased, trimmed)
	CustomerID         *string  // nil never clears a stored customer id
	Plan               *PlanCode
	IsSubscribed       bool
	SubscriptionStatus *string
	TrialUsed          bool // true is sticky; false never resets the column
}

// NormalizeEmail lowercases and trims an email address so the same identity
// always maps to the same profiles row.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
