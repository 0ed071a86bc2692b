package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role enumerates supported token roles.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// UnlimitedToken is the literal used in plan names and JSON payloads for
// accounts without a credit cap.
const UnlimitedToken = "Unlimited"

// Credits is a consumable balance: either a non-negative number or the
// Unlimited sentinel. The zero value is a numeric zero.
type Credits struct {
	Unlimited bool
	Value     int
}

// NumericCredits returns a bounded balance.
func NumericCredits(v int) Credits { return Credits{Value: v} }

// UnlimitedCredits returns the sentinel balance.
func UnlimitedCredits() Credits { return Credits{Unlimited: true} }

func (c Credits) String() string {
	if c.Unlimited {
		return UnlimitedToken
	}
	return strconv.Itoa(c.Value)
}

// MarshalJSON encodes the balance as "Unlimited" or a plain number.
func (c Credits) MarshalJSON() ([]byte, error) {
	if c.Unlimited {
		return json.Marshal(UnlimitedToken)
	}
	return json.Marshal(c.Value)
}

// UnmarshalJSON accepts a number or the literal "Unlimited" (case-insensitive).
func (c *Credits) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		if n < 0 {
			return fmt.Errorf("credits must not be negative: %d", n)
		}
		*c = Credits{Value: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("credits must be a number or %q", UnlimitedToken)
	}
	if !strings.EqualFold(strings.TrimSpace(s), UnlimitedToken) {
		return fmt.Errorf("unrecognized credits value %q", s)
	}
	*c = Credits{Unlimited: true}
	return nil
}

// ClientAccount represents a tenant of the verification service. The row is
// the unit of consistency: every cross-request guarantee comes from atomic
// conditional updates on this record.
type ClientAccount struct {
	ID               string
	Username         string
	PasswordHash     string
	IsActive         bool
	PlanName         string
	InitialCredits   Credits
	RemainingCredits Credits
	ActiveSessionID  string // empty when no session is outstanding
	ValidityEnd      time.Time
	LastActivityAt   time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasActiveSession reports whether a login session is outstanding.
func (c ClientAccount) HasActiveSession() bool { return c.ActiveSessionID != "" }

// CreditsForPlan derives the initial credit allotment from a plan name.
// The token after the last underscore is either a non-negative integer or
// the literal "Unlimited", e.g. "starter_100" or "enterprise_Unlimited".
func CreditsForPlan(planName string) (Credits, error) {
	name := strings.TrimSpace(planName)
	idx := strings.LastIndex(name, "_")
	if idx < 0 || idx == len(name)-1 {
		return Credits{}, fmt.Errorf("%w: %q", ErrUnsupportedPlan, planName)
	}
	token := name[idx+1:]
	if strings.EqualFold(token, UnlimitedToken) {
		return UnlimitedCredits(), nil
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < 0 {
		return Credits{}, fmt.Errorf("%w: %q", ErrUnsupportedPlan, planName)
	}
	return NumericCredits(n), nil
}
