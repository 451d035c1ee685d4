package repository

import (
	"context"

	"github.com/turtacn/ckms/internal/domain/models"
)

// WrappedKeyStore is the C3 component: persistence for DB-resident keypairs
// whose private halves are wrapped under an HSM-resident master key.
type WrappedKeyStore interface {
	// FindByAlias returns the wrapped key record for alias, or nil if absent.
	FindByAlias(ctx context.Context, alias string) (*models.WrappedKey, error)

	// Insert records a newly wrapped keypair. Implementations must treat the
	// alias as a unique key; inserting a duplicate alias is a store failure.
	Insert(ctx context.Context, key models.WrappedKey) error
}
