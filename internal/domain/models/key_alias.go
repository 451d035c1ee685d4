// Package models defines the persisted and in-memory shapes of the key
// management domain: aliases, policies, wrapped keys and HSM entries.
package models

import "time"

// Scope identifies the (application, reference) pair a key alias is bound to.
// ReferenceID is the empty string when the caller addresses the application's
// default key rather than a named sub-reference.
type Scope struct {
	ApplicationID string
	ReferenceID   string
}

// IsReferenceAbsent reports whether this scope addresses the application's
// default key rather than a named reference.
func (s Scope) IsReferenceAbsent() bool {
	return s.ReferenceID == ""
}

// KeyAlias is a row of the key_alias table: the pointer from a (application,
// reference) scope to the current or historical key material backing it.
type KeyAlias struct {
	ApplicationID         string
	ReferenceID           string
	Alias                 string // lowercase hex UUID
	KeyGenerationTime     time.Time
	KeyExpiryTime         time.Time
	CertificateThumbprint string

	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time
}

// Scope returns the (application, reference) scope this alias belongs to.
func (k *KeyAlias) Scope() Scope {
	return Scope{ApplicationID: k.ApplicationID, ReferenceID: k.ReferenceID}
}

// IsExpired reports whether the alias's validity window has passed as of now.
func (k *KeyAlias) IsExpired(now time.Time) bool {
	return now.After(k.KeyExpiryTime)
}
