package repository

import (
	"context"

	"github.com/turtacn/ckms/internal/domain/models"
)

// PolicyStore is the C2 component: the per-application expiry and access
// policy catalog consulted by KeyResolver, which hands the policy to
// ExpiryPlanner.
type PolicyStore interface {
	// FindByApplication returns the policy for applicationID, active or not,
	// or nil if no policy record exists for it.
	FindByApplication(ctx context.Context, applicationID string) (*models.KeyPolicy, error)
}
