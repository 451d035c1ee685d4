// Package repository defines the storage-facing interfaces the application
// layer depends on. Concrete implementations live under
// internal/infrastructure/persistence.
package repository

import (
	"context"
	"time"

	"github.com/turtacn/ckms/internal/domain/models"
)

// AliasIndex is the C1 component: the authoritative mapping from a
// (application, reference) scope to its current and historical key aliases.
type AliasIndex interface {
	// FindByScope returns every alias ever minted for the given scope,
	// ordered by KeyGenerationTime descending.
	FindByScope(ctx context.Context, scope models.Scope) ([]models.KeyAlias, error)

	// FindCurrent returns the alias whose generation-to-expiry window covers
	// asOf, or nil if none does. It returns an error if more than one alias
	// matches, since a scope must resolve to at most one current key.
	FindCurrent(ctx context.Context, scope models.Scope, asOf time.Time) (*models.KeyAlias, error)

	// Insert records a newly minted alias. It is a durable append that does
	// not check the new window against existing ones; serializing mints for
	// a scope is KeyResolver's job.
	Insert(ctx context.Context, alias models.KeyAlias) error
}
