package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApplicationStatus tracks where a user is in the access request workflow.
type ApplicationStatus string

const (
	// ApplicationNotStarted means the user has never requested access.
	ApplicationNotStarted ApplicationStatus = "NOT_STARTED"
	// ApplicationPending means the request is awaiting review.
	ApplicationPending ApplicationStatus = "PENDING"
	// ApplicationApproved means the user may submit jobs.
	ApplicationApproved ApplicationStatus = "APPROVED"
	// ApplicationRejected means the request was denied.
	ApplicationRejected ApplicationStatus = "REJECTED"
)

// Valid returns true if the status is one of the four recognized values.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationNotStarted, ApplicationPending, ApplicationApproved, ApplicationRejected:
		return true
	default:
		return false
	}
}

// User is the per-user ledger record.
type User struct {
	UserID            string            `json:"user_id"             db:"user_id"`
	ApplicationStatus ApplicationStatus `json:"application_status"  db:"application_status"`
	// RemainingCredits is invalid (SQL NULL) for users with unlimited credits.
	RemainingCredits       decimal.NullDecimal `json:"remaining_credits"           db:"remaining_credits"`
	CreditsPerMonth        decimal.NullDecimal `json:"credits_per_month,omitempty" db:"credits_per_month"`
	PriorityOverride       *int                `json:"priority_override,omitempty" db:"priority_override"`
	MonthOfLastCreditReset string              `json:"-"                           db:"month_of_last_credit_reset"`
	UseCase                *string             `json:"use_case,omitempty"          db:"use_case"`
	CreatedAt              time.Time           `json:"created_at"                  db:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"                  db:"updated_at"`
}

// HasUnlimitedCredits reports whether the user is exempt from credit accounting.
func (u *User) HasUnlimitedCredits() bool {
	return !u.RemainingCredits.Valid
}

// MonthlyCredits returns the per-user monthly allowance, falling back to def.
func (u *User) MonthlyCredits(def decimal.Decimal) decimal.Decimal {
	if u.CreditsPerMonth.Valid {
		return u.CreditsPerMonth.Decimal
	}
	return def
}

// CreateUserParams describes a user record inserted on first contact.
type CreateUserParams struct {
	UserID           string
	RemainingCredits decimal.NullDecimal
	Month            string
}

// ResetCreditsParams describes a conditional monthly credit reset.
type ResetCreditsParams struct {
	UserID  string
	Credits decimal.Decimal
	Month   string
}

// UpdateUserRequest is a partial update of a user record used by admin tooling and applications.
type UpdateUserRequest struct {
	ApplicationStatus *ApplicationStatus
	RemainingCredits  *decimal.NullDecimal
	CreditsPerMonth   *decimal.NullDecimal
	PriorityOverride  *int
	// ClearPriorityOverride removes an existing override.
	ClearPriorityOverride bool
	UseCase               *string
}

// CurrentMonth formats t as the YYYY-MM stamp stored with each credit reset.
func CurrentMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// IsEmpty reports whether the update would change nothing.
func (r *UpdateUserRequest) IsEmpty() bool {
	return r.ApplicationStatus == nil && r.RemainingCredits == nil && r.CreditsPerMonth == nil &&
		r.PriorityOverride == nil && !r.ClearPriorityOverride && r.UseCase == nil
}

// Validate checks that the update is well formed.
func (r *UpdateUserRequest) Validate() error {
	if r.ApplicationStatus != nil && !r.ApplicationStatus.Valid() {
		return NewValidationErrorf("invalid application_status %q", *r.ApplicationStatus)
	}
	if r.RemainingCredits != nil && r.RemainingCredits.Valid && r.RemainingCredits.Decimal.IsNegative() {
		return NewValidationError("remaining_credits must be >= 0")
	}
	if r.CreditsPerMonth != nil && r.CreditsPerMonth.Valid && r.CreditsPerMonth.Decimal.IsNegative() {
		return NewValidationError("credits_per_month must be >= 0")
	}
	if r.PriorityOverride != nil && r.ClearPriorityOverride {
		return NewValidationError("priority_override cannot be set and cleared in the same update")
	}
	if r.IsEmpty() {
		return NewValidationError("update sets no fields")
	}
	return nil
}

// Apply applies the update to a copy of user and returns it.
func (r *UpdateUserRequest) Apply(user User) User {
	if r.ApplicationStatus != nil {
		user.ApplicationStatus = *r.ApplicationStatus
	}
	if r.RemainingCredits != nil {
		user.RemainingCredits = *r.RemainingCredits
	}
	if r.CreditsPerMonth != nil {
		user.CreditsPerMonth = *r.CreditsPerMonth
	}
	if r.PriorityOverride != nil {
		v := *r.PriorityOverride
		user.PriorityOverride = &v
	}
	if r.ClearPriorityOverride {
		user.PriorityOverride = nil
	}
	if r.UseCase != nil {
		v := *r.UseCase
		user.UseCase = &v
	}
	return user
}
