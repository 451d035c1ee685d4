package application

import (
	"context"
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"time"

	"github.com/turtacn/ckms/internal/domain/models"
	"github.com/turtacn/ckms/internal/domain/service"
	"github.com/turtacn/ckms/pkg/constants"
	"github.com/turtacn/ckms/pkg/errors"
	"github.com/turtacn/ckms/pkg/logger"
)

// CryptoFacade is the C7 component: the four public cryptographic
// operations this service exposes, each driven through the KeyResolver.
type CryptoFacade struct {
	resolver *KeyResolver
	asym     service.AsymmetricCrypto
	certSrc  service.CertificateSource
	clock    service.Clock
	klr      service.KeyLifecycleRegistry
	metrics  service.Metrics
	cache    service.PublicKeyCache
	cacheTTL time.Duration
	log      logger.Logger
}

// NewCryptoFacade constructs a CryptoFacade. cache may be nil, in which case
// GetPublicKey always resolves through the KeyResolver. clock drives every
// "now" this facade needs (certificate validity checks, audit timestamps),
// the same abstraction KeyResolver uses, so a fixed clock makes certificate
// expiry deterministic under test instead of racing the real wall clock.
func NewCryptoFacade(
	resolver *KeyResolver,
	asym service.AsymmetricCrypto,
	certSrc service.CertificateSource,
	clock service.Clock,
	klr service.KeyLifecycleRegistry,
	metrics service.Metrics,
	cache service.PublicKeyCache,
	cacheTTL time.Duration,
	log logger.Logger,
) *CryptoFacade {
	return &CryptoFacade{
		resolver: resolver,
		asym:     asym,
		certSrc:  certSrc,
		clock:    clock,
		klr:      klr,
		metrics:  metrics,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log.WithFields(logger.Fields{"component": "crypto_facade"}),
	}
}

// GetPublicKey returns the Base64-encoded DER SubjectPublicKeyInfo for the
// current key of (applicationID, referenceID), along with the alias's
// validity window, minting one if none exists. The scope is always resolved
// first (the cache is keyed on the resolved alias), so a cache hit only
// skips re-encoding the public key; the validity window comes off the
// resolved alias, and every call records an op and audit event the same as
// any other facade method.
func (f *CryptoFacade) GetPublicKey(ctx context.Context, applicationID, referenceID string) (key string, issuedAt, expiresAt time.Time, err error) {
	started := time.Now()
	resolved, err := f.resolver.Resolve(ctx, models.Scope{ApplicationID: applicationID, ReferenceID: referenceID}, true)
	if err != nil {
		f.recordOp("get_public_key", false, started)
		return "", time.Time{}, time.Time{}, err
	}
	issuedAt = resolved.Alias.KeyGenerationTime
	expiresAt = resolved.Alias.KeyExpiryTime

	if f.cache != nil {
		if der, hit := f.cache.Get(ctx, resolved.Alias.Alias); hit {
			if f.metrics != nil {
				f.metrics.RecordCacheAccess("public_key", true)
			}
			f.recordOp("get_public_key", true, started)
			f.audit(ctx, constants.AuditEventKeyAccessed, applicationID, referenceID, resolved.Alias.Alias)
			return base64.StdEncoding.EncodeToString(der), issuedAt, expiresAt, nil
		}
		if f.metrics != nil {
			f.metrics.RecordCacheAccess("public_key", false)
		}
	}

	der, err := x509.MarshalPKIXPublicKey(resolved.PublicKey)
	if err != nil {
		f.recordOp("get_public_key", false, started)
		return "", time.Time{}, time.Time{}, errors.ErrCryptoFailure("marshal_public_key", err)
	}

	if f.cache != nil {
		f.cache.Set(ctx, resolved.Alias.Alias, der, f.cacheTTL)
	}

	f.recordOp("get_public_key", true, started)
	f.audit(ctx, constants.AuditEventKeyAccessed, applicationID, referenceID, resolved.Alias.Alias)
	return base64.StdEncoding.EncodeToString(der), issuedAt, expiresAt, nil
}

// DecryptSymmetricKey unwraps a client-supplied, RSA-OAEP-encrypted
// symmetric key using the current key of the given scope. It never mints:
// a scope with no current key returns NO_CURRENT_KEY.
func (f *CryptoFacade) DecryptSymmetricKey(ctx context.Context, applicationID, referenceID string, encryptedKey []byte) ([]byte, error) {
	started := time.Now()
	resolved, err := f.resolver.Resolve(ctx, models.Scope{ApplicationID: applicationID, ReferenceID: referenceID}, false)
	if err != nil {
		f.recordOp("decrypt_symmetric_key", false, started)
		return nil, err
	}

	plaintext, err := resolved.handle.Unwrap(ctx, encryptedKey)
	if err != nil {
		f.recordOp("decrypt_symmetric_key", false, started)
		return nil, errors.ErrCryptoFailure("decrypt_symmetric_key", err)
	}

	f.recordOp("decrypt_symmetric_key", true, started)
	f.audit(ctx, constants.AuditEventKeyDecrypted, applicationID, referenceID, resolved.Alias.Alias)
	return plaintext, nil
}

// Encrypt mints a current key for the scope if absent and applies the
// legacy "encrypt with the private key" operation this service preserves:
// the payload is hashed and the hash is signed with the scope's private
// key, rather than encrypted with the public key as the name might suggest.
func (f *CryptoFacade) Encrypt(ctx context.Context, applicationID, referenceID string, data []byte) ([]byte, error) {
	started := time.Now()
	resolved, err := f.resolver.Resolve(ctx, models.Scope{ApplicationID: applicationID, ReferenceID: referenceID}, true)
	if err != nil {
		f.recordOp("encrypt", false, started)
		return nil, err
	}

	digest := sha256.Sum256(data)
	sig, err := resolved.handle.Sign(ctx, digest[:], crypto.SHA256)
	if err != nil {
		f.recordOp("encrypt", false, started)
		return nil, errors.ErrCryptoFailure("encrypt", err)
	}

	f.recordOp("encrypt", true, started)
	f.audit(ctx, constants.AuditEventKeyEncrypted, applicationID, referenceID, resolved.Alias.Alias)
	return sig, nil
}

// Sign mints a certificate-bound key for the scope if absent and produces a
// signature over data's SHA-256 digest. Because this operation mints on a
// miss, it can hand back a signature under a key that was never previously
// disclosed to any caller; this mirrors the behavior this service inherits
// and preserves as-is.
func (f *CryptoFacade) Sign(ctx context.Context, applicationID, referenceID string, data []byte) ([]byte, error) {
	started := time.Now()
	resolved, err := f.resolver.ResolveForSigning(ctx, models.Scope{ApplicationID: applicationID, ReferenceID: referenceID})
	if err != nil {
		f.recordOp("sign", false, started)
		return nil, err
	}
	if err := validateCertificate(resolved, f.clock.Now()); err != nil {
		f.recordOp("sign", false, started)
		return nil, err
	}

	digest := sha256.Sum256(data)
	sig, err := resolved.handle.Sign(ctx, digest[:], crypto.SHA256)
	if err != nil {
		f.recordOp("sign", false, started)
		return nil, errors.ErrCryptoFailure("sign", err)
	}

	f.recordOp("sign", true, started)
	f.audit(ctx, constants.AuditEventKeySigned, applicationID, referenceID, resolved.Alias.Alias)
	return sig, nil
}

// Verify checks signature against data's SHA-256 digest using the scope's
// current certificate-bound public key, minting on a miss for the same
// reason Sign does.
func (f *CryptoFacade) Verify(ctx context.Context, applicationID, referenceID string, data, signature []byte) (bool, error) {
	started := time.Now()
	resolved, err := f.resolver.ResolveForSigning(ctx, models.Scope{ApplicationID: applicationID, ReferenceID: referenceID})
	if err != nil {
		f.recordOp("verify", false, started)
		return false, err
	}
	if err := validateCertificate(resolved, f.clock.Now()); err != nil {
		f.recordOp("verify", false, started)
		return false, err
	}

	digest := sha256.Sum256(data)
	err = f.asym.Verify(resolved.PublicKey, digest[:], signature)
	f.recordOp("verify", true, started)
	f.audit(ctx, constants.AuditEventKeyVerified, applicationID, referenceID, resolved.Alias.Alias)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// validateCertificate rejects a resolved key whose certificate is absent or
// outside its validity window, matching the CERT_INVALID error kind.
func validateCertificate(resolved *ResolvedKey, now time.Time) error {
	if resolved.Certificate == nil {
		return errors.ErrCertInvalid(resolved.Alias.Alias, "no certificate bound to this alias")
	}
	if now.Before(resolved.Certificate.NotBefore) {
		return errors.ErrCertInvalid(resolved.Alias.Alias, "certificate not yet valid")
	}
	if now.After(resolved.Certificate.NotAfter) {
		return errors.ErrCertInvalid(resolved.Alias.Alias, "certificate has expired")
	}
	return nil
}

func (f *CryptoFacade) recordOp(operation string, success bool, started time.Time) {
	if f.metrics != nil {
		f.metrics.RecordCryptoOp(operation, success, time.Since(started))
	}
}

func (f *CryptoFacade) audit(ctx context.Context, eventType constants.AuditEventType, applicationID, referenceID, alias string) {
	if f.klr == nil {
		return
	}
	if err := f.klr.LogEvent(ctx, service.LifecycleEvent{
		EventType:     eventType,
		ApplicationID: applicationID,
		ReferenceID:   referenceID,
		Alias:         alias,
		Timestamp:     f.clock.Now(),
	}); err != nil {
		f.log.Warn(ctx, "failed to log key lifecycle event", logger.Fields{"error": err.Error()})
	}
}
