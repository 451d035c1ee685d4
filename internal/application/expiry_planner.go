package application

import (
	"time"

	"github.com/turtacn/ckms/internal/domain/models"
	"github.com/turtacn/ckms/pkg/errors"
)

// ExpiryPlanner is the C5 component. It turns a KeyPolicy's validity window
// into a concrete expiry timestamp for a newly minted alias, truncating
// against any existing alias in the scope so that no two aliases' windows
// ever overlap once persisted.
type ExpiryPlanner struct{}

// NewExpiryPlanner constructs an ExpiryPlanner.
func NewExpiryPlanner() *ExpiryPlanner {
	return &ExpiryPlanner{}
}

// NewAliasWindow computes the expiry time for an alias minted at
// generationTime under policy, truncated against existing so the returned
// window never overlaps an alias that was generated later in the same scope.
// existing need not be sorted.
//
// Returns a POLICY_CONFLICT error if policy's validity window is not
// positive, or if truncation against existing collapses the window to a
// non-positive length (an existing alias was generated less than one second
// after generationTime).
func (p *ExpiryPlanner) NewAliasWindow(policy *models.KeyPolicy, generationTime time.Time, existing []models.KeyAlias) (time.Time, error) {
	validityDays := policy.ValidityDays
	if validityDays <= 0 {
		return time.Time{}, errors.ErrPolicyConflict(policy.ApplicationID, "policy validity window is not positive")
	}

	expiry := generationTime.AddDate(0, 0, validityDays)
	for _, a := range existing {
		if a.KeyGenerationTime.After(generationTime) && a.KeyGenerationTime.Before(expiry) {
			expiry = a.KeyGenerationTime.Add(-time.Second)
		}
	}

	if !expiry.After(generationTime) {
		return time.Time{}, errors.ErrPolicyConflict(policy.ApplicationID, "truncated validity window is non-positive")
	}

	return expiry, nil
}
