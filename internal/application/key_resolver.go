package application

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/ckms/internal/domain/models"
	"github.com/turtacn/ckms/internal/domain/repository"
	"github.com/turtacn/ckms/internal/domain/service"
	"github.com/turtacn/ckms/pkg/constants"
	"github.com/turtacn/ckms/pkg/errors"
	"github.com/turtacn/ckms/pkg/logger"
)

// keyHandle is the uniform private-key operation surface CryptoFacade drives,
// regardless of whether the underlying key is HSM-resident or DB-resident.
type keyHandle interface {
	Public() crypto.PublicKey
	Sign(ctx context.Context, digest []byte, opts crypto.SignerOpts) ([]byte, error)
	Unwrap(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// hsmHandle delegates every operation to the HSM key vault; private key
// material never crosses the process boundary.
type hsmHandle struct {
	vault service.HSMKeyVault
	alias string
	pub   crypto.PublicKey
}

func (h *hsmHandle) Public() crypto.PublicKey { return h.pub }

func (h *hsmHandle) Sign(ctx context.Context, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return h.vault.Sign(ctx, h.alias, digest, opts)
}

func (h *hsmHandle) Unwrap(ctx context.Context, ciphertext []byte) ([]byte, error) {
	return h.vault.Unwrap(ctx, h.alias, ciphertext)
}

// dbHandle wraps an in-process private key recovered by unwrapping a
// WrappedKeyStore record under its HSM-resident master.
type dbHandle struct {
	asym service.AsymmetricCrypto
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

func (h *dbHandle) Public() crypto.PublicKey { return h.pub }

func (h *dbHandle) Sign(ctx context.Context, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return h.asym.Sign(h.priv, digest)
}

func (h *dbHandle) Unwrap(ctx context.Context, ciphertext []byte) ([]byte, error) {
	return h.asym.SymmetricDecrypt(h.priv, ciphertext)
}

// hsmSigner adapts an HSM-resident keyHandle to crypto.Signer so the
// certificate issuer can self-sign a certificate without the private key
// ever leaving the vault. The io.Reader crypto.Signer.Sign requires is
// ignored: the HSM's own randomness source is used for PKCS1v15 signing.
type hsmSigner struct {
	ctx    context.Context
	handle keyHandle
}

func (s *hsmSigner) Public() crypto.PublicKey { return s.handle.Public() }

func (s *hsmSigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return s.handle.Sign(s.ctx, digest, opts)
}

// ResolvedKey is the outcome of resolving a scope to its current key alias.
type ResolvedKey struct {
	Alias       models.KeyAlias
	PublicKey   crypto.PublicKey
	Certificate *x509.Certificate
	handle      keyHandle
}

// KeyResolver is the C6 component: the core state machine mapping a
// (application, reference) scope to its current key, minting one under a
// per-scope lock when the caller permits it and none exists.
type KeyResolver struct {
	aliasIndex   repository.AliasIndex
	policyStore  repository.PolicyStore
	wrappedStore repository.WrappedKeyStore
	hsmVault     service.HSMKeyVault
	keypairGen   service.KeypairGenerator
	asymCrypto   service.AsymmetricCrypto
	certSrc      service.CertificateSource
	planner      *ExpiryPlanner
	clock        service.Clock
	klr          service.KeyLifecycleRegistry
	metrics      service.Metrics
	log          logger.Logger

	mint singleflight.Group
}

// NewKeyResolver constructs a KeyResolver.
func NewKeyResolver(
	aliasIndex repository.AliasIndex,
	policyStore repository.PolicyStore,
	wrappedStore repository.WrappedKeyStore,
	hsmVault service.HSMKeyVault,
	keypairGen service.KeypairGenerator,
	asymCrypto service.AsymmetricCrypto,
	certSrc service.CertificateSource,
	clock service.Clock,
	klr service.KeyLifecycleRegistry,
	metrics service.Metrics,
	log logger.Logger,
) *KeyResolver {
	return &KeyResolver{
		aliasIndex:   aliasIndex,
		policyStore:  policyStore,
		wrappedStore: wrappedStore,
		hsmVault:     hsmVault,
		keypairGen:   keypairGen,
		asymCrypto:   asymCrypto,
		certSrc:      certSrc,
		planner:      NewExpiryPlanner(),
		clock:        clock,
		klr:          klr,
		metrics:      metrics,
		log:          log.WithFields(logger.Fields{"component": "key_resolver"}),
	}
}

// normalizeReference coerces an empty or whitespace-only reference ID to
// the absent reference, matching how the application scope treats "no
// reference" and "blank reference" as the same default key.
func normalizeReference(referenceID string) string {
	return strings.TrimSpace(referenceID)
}

func scopeKey(scope models.Scope) string {
	return scope.ApplicationID + "\x00" + scope.ReferenceID
}

// Resolve returns the current key for scope. If mintIfAbsent is false and no
// current alias exists, it returns a NO_CURRENT_KEY error rather than
// minting one, matching the decrypt read path which must never fabricate
// new key material on a miss.
func (r *KeyResolver) Resolve(ctx context.Context, scope models.Scope, mintIfAbsent bool) (*ResolvedKey, error) {
	return r.resolve(ctx, scope, mintIfAbsent, false)
}

// ResolveForSigning returns the current certificate-bound key for scope,
// minting a fresh self-signed certificate over a new HSM keypair when no
// current alias exists. Sign and Verify both route through this, so a miss
// during Verify mints a key that cannot possibly verify a pre-existing
// signature — legacy behavior this service preserves as-is.
func (r *KeyResolver) ResolveForSigning(ctx context.Context, scope models.Scope) (*ResolvedKey, error) {
	return r.resolve(ctx, scope, true, true)
}

func (r *KeyResolver) resolve(ctx context.Context, scope models.Scope, mintIfAbsent, forSigning bool) (*ResolvedKey, error) {
	scope.ReferenceID = normalizeReference(scope.ReferenceID)

	policy, err := r.policyStore.FindByApplication(ctx, scope.ApplicationID)
	if err != nil {
		return nil, errors.ErrStoreFailure("policy_store", err)
	}
	if policy == nil || !policy.IsActive {
		return nil, errors.ErrInvalidApplication(scope.ApplicationID)
	}

	resolved, err := r.lookupCurrent(ctx, scope)
	if err != nil {
		return nil, err
	}
	if resolved != nil {
		return resolved, nil
	}

	if !mintIfAbsent {
		return nil, errors.ErrNoCurrentKey(scope.ApplicationID, scope.ReferenceID)
	}

	return r.mintForScope(ctx, scope, policy, forSigning)
}

// lookupCurrent finds the alias currently covering now, if any. A literal
// point query against AliasIndex.FindCurrent is sufficient here because
// doMint/doMintSigning never persist a window that overlaps an existing
// alias in the scope: at most one alias can ever cover a given instant.
func (r *KeyResolver) lookupCurrent(ctx context.Context, scope models.Scope) (*ResolvedKey, error) {
	current, err := r.aliasIndex.FindCurrent(ctx, scope, r.clock.Now())
	if err != nil {
		if cbcErr, ok := errors.AsCBCError(err); ok {
			return nil, cbcErr
		}
		return nil, errors.ErrStoreFailure("alias_index", err)
	}
	if current == nil {
		return nil, nil
	}

	return r.loadResolvedKey(ctx, *current)
}

// loadResolvedKey builds the handle for an already-minted alias, unwrapping
// its DB-resident private key under the HSM master when scope carries a
// reference. Certificate-bound aliases are always HSM-resident, whatever
// their scope.
func (r *KeyResolver) loadResolvedKey(ctx context.Context, alias models.KeyAlias) (*ResolvedKey, error) {
	if alias.ReferenceID == "" || alias.CertificateThumbprint != "" {
		entry, err := r.hsmVault.GetOrCreate(ctx, alias.Alias, constants.AlgorithmRSA2048)
		if err != nil {
			return nil, errors.ErrCryptoFailure("hsm_lookup", err)
		}
		pub, err := r.hsmVault.PublicKey(ctx, alias.Alias)
		if err != nil {
			return nil, errors.ErrCryptoFailure("hsm_public_key", err)
		}
		var cert *x509.Certificate
		if len(entry.Certificate) > 0 {
			cert, _ = x509.ParseCertificate(entry.Certificate)
		}
		return &ResolvedKey{
			Alias:       alias,
			PublicKey:   pub,
			Certificate: cert,
			handle:      &hsmHandle{vault: r.hsmVault, alias: alias.Alias, pub: pub},
		}, nil
	}

	wrapped, err := r.wrappedStore.FindByAlias(ctx, alias.Alias)
	if err != nil {
		return nil, errors.ErrStoreFailure("wrapped_key_store", err)
	}
	if wrapped == nil {
		return nil, errors.WrapError(fmt.Errorf("missing wrapped key for alias %s", alias.Alias), constants.ErrCodeNoUniqueAlias, "resolved alias has no backing material")
	}

	privPKCS8, err := r.hsmVault.Unwrap(ctx, wrapped.MasterAlias, wrapped.WrappedPrivateKey)
	if err != nil {
		return nil, errors.ErrCryptoFailure("unwrap_private_key", err)
	}
	priv, err := x509.ParsePKCS8PrivateKey(privPKCS8)
	if err != nil {
		return nil, errors.ErrCryptoFailure("parse_private_key", err)
	}
	pub, err := x509.ParsePKIXPublicKey(wrapped.PublicKeyDER)
	if err != nil {
		return nil, errors.ErrCryptoFailure("parse_public_key", err)
	}

	var cert *x509.Certificate
	if len(wrapped.CertificateData) > 0 {
		cert, _ = x509.ParseCertificate(wrapped.CertificateData)
	}

	return &ResolvedKey{
		Alias:       alias,
		PublicKey:   pub,
		Certificate: cert,
		handle:      &dbHandle{asym: r.asymCrypto, priv: priv, pub: pub},
	}, nil
}

// mintForScope mints a new alias for scope under a per-scope singleflight
// lock, so concurrent callers racing to resolve the same absent scope
// converge on exactly one minted alias.
func (r *KeyResolver) mintForScope(ctx context.Context, scope models.Scope, policy *models.KeyPolicy, forSigning bool) (*ResolvedKey, error) {
	key := scopeKey(scope)
	result, err, _ := r.mint.Do(key, func() (interface{}, error) {
		// Re-check after winning the singleflight slot: another caller may
		// have completed a mint for this scope between our first lookup and
		// acquiring this slot (e.g. across resolver instances backed by the
		// same store), so the store itself stays the source of truth.
		if existing, err := r.lookupCurrent(ctx, scope); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}

		started := r.clock.Now()
		var resolved *ResolvedKey
		var mintErr error
		if forSigning {
			resolved, mintErr = r.doMintSigning(ctx, scope, policy)
		} else {
			resolved, mintErr = r.doMint(ctx, scope, policy)
		}
		if r.metrics != nil {
			r.metrics.RecordMint(scope.ApplicationID, mintErr == nil, r.clock.Now().Sub(started))
		}
		return resolved, mintErr
	})
	if err != nil {
		return nil, err
	}
	return result.(*ResolvedKey), nil
}

// doMintSigning mints a certificate-bound key: a fresh HSM keypair is
// self-signed into a certificate via certSrc, and the certificate is bound
// to the HSM alias. The certificate's validity window doubles as the
// alias's selection window, since this service has no external CA to defer
// to for an independently-issued notAfter.
func (r *KeyResolver) doMintSigning(ctx context.Context, scope models.Scope, policy *models.KeyPolicy) (*ResolvedKey, error) {
	now := r.clock.Now()
	existing, err := r.aliasIndex.FindByScope(ctx, scope)
	if err != nil {
		return nil, errors.ErrStoreFailure("alias_index", err)
	}
	notAfter, err := r.planner.NewAliasWindow(policy, now, existing)
	if err != nil {
		return nil, err
	}

	aliasID := uuid.New().String()
	if _, err := r.hsmVault.GetOrCreate(ctx, aliasID, constants.AlgorithmRSA2048); err != nil {
		return nil, errors.ErrCryptoFailure("hsm_mint", err)
	}
	pub, err := r.hsmVault.PublicKey(ctx, aliasID)
	if err != nil {
		return nil, errors.ErrCryptoFailure("hsm_public_key", err)
	}

	handle := &hsmHandle{vault: r.hsmVault, alias: aliasID, pub: pub}
	commonName := scope.ApplicationID
	if scope.ReferenceID != "" {
		commonName = scope.ApplicationID + ":" + scope.ReferenceID
	}

	certDER, err := r.certSrc.IssueSelfSigned(ctx, pub, &hsmSigner{ctx: ctx, handle: handle}, commonName, now, notAfter)
	if err != nil {
		return nil, errors.ErrCryptoFailure("issue_certificate", err)
	}
	cert, err := r.certSrc.Parse(certDER)
	if err != nil {
		return nil, errors.ErrCertInvalid(aliasID, err.Error())
	}

	if err := r.hsmVault.StoreCertificate(ctx, aliasID, []*x509.Certificate{cert}); err != nil {
		return nil, errors.ErrCryptoFailure("store_certificate", err)
	}

	thumbprint := fmt.Sprintf("%x", cert.Raw[:8])
	alias := models.KeyAlias{
		ApplicationID:         scope.ApplicationID,
		ReferenceID:           scope.ReferenceID,
		Alias:                 aliasID,
		KeyGenerationTime:     now,
		KeyExpiryTime:         notAfter,
		CertificateThumbprint: thumbprint,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := r.aliasIndex.Insert(ctx, alias); err != nil {
		return nil, errors.ErrStoreFailure("alias_index", err)
	}

	if r.klr != nil {
		_ = r.klr.LogEvent(ctx, service.LifecycleEvent{
			EventType:     constants.AuditEventKeyMinted,
			ApplicationID: scope.ApplicationID,
			ReferenceID:   scope.ReferenceID,
			Alias:         alias.Alias,
			Timestamp:     now,
			Metadata:      map[string]interface{}{"certificate_bound": true},
		})
	}

	r.log.Info(ctx, "minted certificate-bound key alias", logger.Fields{
		"application_id": scope.ApplicationID,
		"reference_id":   scope.ReferenceID,
		"alias":          alias.Alias,
	})

	return &ResolvedKey{
		Alias:       alias,
		PublicKey:   pub,
		Certificate: cert,
		handle:      handle,
	}, nil
}

func (r *KeyResolver) doMint(ctx context.Context, scope models.Scope, policy *models.KeyPolicy) (*ResolvedKey, error) {
	now := r.clock.Now()
	existing, err := r.aliasIndex.FindByScope(ctx, scope)
	if err != nil {
		return nil, errors.ErrStoreFailure("alias_index", err)
	}
	expiry, err := r.planner.NewAliasWindow(policy, now, existing)
	if err != nil {
		return nil, err
	}

	alias := models.KeyAlias{
		ApplicationID:     scope.ApplicationID,
		ReferenceID:       scope.ReferenceID,
		Alias:             uuid.New().String(),
		KeyGenerationTime: now,
		KeyExpiryTime:     expiry,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var resolved *ResolvedKey

	if scope.ReferenceID == "" {
		if _, err := r.hsmVault.GetOrCreate(ctx, alias.Alias, constants.AlgorithmRSA2048); err != nil {
			return nil, errors.ErrCryptoFailure("hsm_mint", err)
		}
		pub, err := r.hsmVault.PublicKey(ctx, alias.Alias)
		if err != nil {
			return nil, errors.ErrCryptoFailure("hsm_public_key", err)
		}
		resolved = &ResolvedKey{
			Alias:     alias,
			PublicKey: pub,
			handle:    &hsmHandle{vault: r.hsmVault, alias: alias.Alias, pub: pub},
		}
	} else {
		master, err := r.Resolve(ctx, models.Scope{ApplicationID: scope.ApplicationID, ReferenceID: ""}, true)
		if err != nil {
			return nil, err
		}

		pub, priv, err := r.keypairGen.Generate(ctx, constants.AlgorithmRSA2048)
		if err != nil {
			return nil, errors.ErrCryptoFailure("keypair_generate", err)
		}
		pubDER, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return nil, errors.ErrCryptoFailure("marshal_public_key", err)
		}
		privPKCS8, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return nil, errors.ErrCryptoFailure("marshal_private_key", err)
		}
		wrapped, err := r.asymCrypto.WrapPrivateKey(master.PublicKey, privPKCS8)
		if err != nil {
			return nil, errors.ErrCryptoFailure("wrap_private_key", err)
		}

		if err := r.wrappedStore.Insert(ctx, models.WrappedKey{
			Alias:             alias.Alias,
			MasterAlias:       master.Alias.Alias,
			PublicKeyDER:      pubDER,
			WrappedPrivateKey: wrapped,
			CreatedAt:         now,
			UpdatedAt:         now,
		}); err != nil {
			return nil, errors.ErrStoreFailure("wrapped_key_store", err)
		}

		resolved = &ResolvedKey{
			Alias:     alias,
			PublicKey: pub,
			handle:    &dbHandle{asym: r.asymCrypto, priv: priv, pub: pub},
		}
	}

	if err := r.aliasIndex.Insert(ctx, alias); err != nil {
		return nil, errors.ErrStoreFailure("alias_index", err)
	}

	if r.klr != nil {
		_ = r.klr.LogEvent(ctx, service.LifecycleEvent{
			EventType:     constants.AuditEventKeyMinted,
			ApplicationID: scope.ApplicationID,
			ReferenceID:   scope.ReferenceID,
			Alias:         alias.Alias,
			Timestamp:     now,
		})
	}

	r.log.Info(ctx, "minted key alias", logger.Fields{
		"application_id": scope.ApplicationID,
		"reference_id":   scope.ReferenceID,
		"alias":          alias.Alias,
	})

	return resolved, nil
}
