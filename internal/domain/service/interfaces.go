// Package service defines the ports the application layer drives: the HSM
// key vault, cryptographic primitives, certificate loading, the clock and
// the key lifecycle audit registry.
package service

import (
	"context"
	"crypto"
	"crypto/x509"
	"time"

	"github.com/turtacn/ckms/internal/domain/models"
	"github.com/turtacn/ckms/pkg/constants"
)

// HSMKeyVault is the C4 component: the boundary to HSM-resident master keys.
// A master key's private half never leaves the vault; callers obtain its
// public half, or ask the vault to sign or unwrap on their behalf.
type HSMKeyVault interface {
	// GetOrCreate returns the HSM entry for alias, minting a new keypair of
	// the given algorithm inside the vault if alias is not yet known to it.
	GetOrCreate(ctx context.Context, alias string, algorithm constants.KeyAlgorithm) (*models.HSMEntry, error)

	// PublicKey returns the public half of alias without touching the vault
	// for a mint; it is an error to call this for an alias the vault has
	// never created.
	PublicKey(ctx context.Context, alias string) (crypto.PublicKey, error)

	// Unwrap decrypts ciphertext (produced by RSA-OAEP under alias's public
	// key) using alias's HSM-resident private key.
	Unwrap(ctx context.Context, alias string, ciphertext []byte) ([]byte, error)

	// Sign produces a signature over digest using alias's HSM-resident
	// private key.
	Sign(ctx context.Context, alias string, digest []byte, opts crypto.SignerOpts) ([]byte, error)

	// StoreCertificate binds a certificate chain to an existing HSM alias.
	StoreCertificate(ctx context.Context, alias string, chain []*x509.Certificate) error
}

// KeypairGenerator is a C4-adjacent port used to mint DB-resident (non-HSM)
// keypairs for the WrappedKeyStore tier.
type KeypairGenerator interface {
	Generate(ctx context.Context, algorithm constants.KeyAlgorithm) (crypto.PublicKey, crypto.PrivateKey, error)
}

// AsymmetricCrypto performs the RSA-OAEP wrap/unwrap and PKCS1v15 sign/verify
// primitives used to move private key material between tiers and to satisfy
// CryptoFacade's sign/verify/encrypt operations.
type AsymmetricCrypto interface {
	WrapPrivateKey(pub crypto.PublicKey, privPKCS8 []byte) ([]byte, error)
	UnwrapPrivateKey(priv crypto.PrivateKey, wrapped []byte) ([]byte, error)

	Sign(priv crypto.PrivateKey, digest []byte) ([]byte, error)
	Verify(pub crypto.PublicKey, digest, signature []byte) error

	// PrivateEncrypt performs the certificate-service "encrypt with the
	// private key" operation: data is signed in place of being encrypted.
	// This mirrors the legacy semantics this service preserves verbatim.
	PrivateEncrypt(priv crypto.PrivateKey, data []byte) ([]byte, error)
	PublicDecrypt(pub crypto.PublicKey, data []byte) ([]byte, error)

	SymmetricEncrypt(pub crypto.PublicKey, plaintext []byte) ([]byte, error)
	SymmetricDecrypt(priv crypto.PrivateKey, ciphertext []byte) ([]byte, error)
}

// CertificateSource supplies self-signed certificates for certificate-bound
// aliases (the sign/verify path). Each certificate is signed by the key it
// certifies; no external CA is involved.
type CertificateSource interface {
	// IssueSelfSigned issues a self-signed certificate over pub, valid for
	// the given window, identifying the given common name.
	IssueSelfSigned(ctx context.Context, pub crypto.PublicKey, signer crypto.Signer, commonName string, notBefore, notAfter time.Time) ([]byte, error)

	// Parse decodes a DER certificate.
	Parse(der []byte) (*x509.Certificate, error)
}

// Clock abstracts wall-clock time so resolution and expiry logic is
// deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// KeyLifecycleRegistry is the audit sink for key mint, wrap, sign, verify
// and expiry events. Implementations may fan out to a message broker, a
// database table, or both.
type KeyLifecycleRegistry interface {
	LogEvent(ctx context.Context, event LifecycleEvent) error
}

// LifecycleEvent is a single auditable key lifecycle occurrence.
type LifecycleEvent struct {
	EventType     constants.AuditEventType
	ApplicationID string
	ReferenceID   string
	Alias         string
	Timestamp     time.Time
	Metadata      map[string]interface{}
}

// Metrics is the narrow surface the application layer emits operational
// counters and latencies through.
type Metrics interface {
	RecordMint(applicationID string, success bool, duration time.Duration)
	RecordCryptoOp(operation string, success bool, duration time.Duration)
	RecordCacheAccess(cacheType string, hit bool)
}

// PublicKeyCache is a read-through cache in front of the public half of a
// scope's current key, keyed on alias. A miss is not an error: callers
// encode the public key of the alias they have already resolved.
type PublicKeyCache interface {
	// Get returns the cached DER SubjectPublicKeyInfo for alias, and whether
	// it was present.
	Get(ctx context.Context, alias string) ([]byte, bool)

	// Set caches the DER SubjectPublicKeyInfo for alias with the given TTL.
	Set(ctx context.Context, alias string, der []byte, ttl time.Duration)
}
