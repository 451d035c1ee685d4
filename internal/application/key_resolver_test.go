package application_test

import (
	"context"
	"crypto"
	"crypto/x509"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ckms/internal/application"
	"github.com/turtacn/ckms/internal/domain/models"
	"github.com/turtacn/ckms/internal/domain/service"
	ckmscrypto "github.com/turtacn/ckms/internal/infrastructure/crypto"
	"github.com/turtacn/ckms/pkg/errors"
	"github.com/turtacn/ckms/pkg/logger"
)

func newTestResolver(policyStore *fakePolicyStore, clock service.Clock) (*application.KeyResolver, *fakeAliasIndex, *fakeHSMVault, *fakeWrappedKeyStore, *fakeRecordingKLR) {
	aliasIndex := newFakeAliasIndex()
	wrappedStore := newFakeWrappedKeyStore()
	hsmVault := newFakeHSMVault()
	rsaCrypto := ckmscrypto.NewRSACrypto()
	certSrc := ckmscrypto.NewSelfSignedCertificateSource()
	klr := newFakeRecordingKLR()
	metrics := newFakeMetrics()

	resolver := application.NewKeyResolver(
		aliasIndex, policyStore, wrappedStore, hsmVault, rsaCrypto, rsaCrypto, certSrc,
		clock, klr, metrics, logger.NewNoopLogger(),
	)
	return resolver, aliasIndex, hsmVault, wrappedStore, klr
}

// TestKeyResolver_FirstHSMMint matches scenario S1: the first resolution of
// an absent-reference scope mints an alias whose window matches the policy's
// validity days, and a subsequent resolution before the window ends returns
// the same alias.
func TestKeyResolver_FirstHSMMint(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	policyStore := newFakePolicyStore(&models.KeyPolicy{ApplicationID: "KERNEL", ValidityDays: 180, IsActive: true})
	resolver, aliasIndex, _, _, klr := newTestResolver(policyStore, clock)

	ctx := context.Background()
	resolved, err := resolver.Resolve(ctx, models.Scope{ApplicationID: "KERNEL"}, true)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, now, resolved.Alias.KeyGenerationTime)
	assert.Equal(t, now.AddDate(0, 0, 180), resolved.Alias.KeyExpiryTime)
	assert.Equal(t, 1, aliasIndex.count())
	assert.Equal(t, 1, klr.count())

	again, err := resolver.Resolve(ctx, models.Scope{ApplicationID: "KERNEL"}, true)
	require.NoError(t, err)
	assert.Equal(t, resolved.Alias.Alias, again.Alias.Alias)
	assert.Equal(t, 1, aliasIndex.count(), "a second resolve before the window ends must not mint again")
}

// TestKeyResolver_MintTruncatesAgainstALaterExistingAlias matches scenario
// S2 end to end: a scope already has an alias generated in the future
// relative to the mint being requested now, so the newly minted alias's
// persisted and returned window must be truncated to end just before that
// existing alias's generation time, never overlapping it.
func TestKeyResolver_MintTruncatesAgainstALaterExistingAlias(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	policyStore := newFakePolicyStore(&models.KeyPolicy{ApplicationID: "KERNEL", ValidityDays: 365, IsActive: true})
	resolver, aliasIndex, _, _, _ := newTestResolver(policyStore, clock)

	ctx := context.Background()
	scope := models.Scope{ApplicationID: "KERNEL"}
	existing := models.KeyAlias{
		ApplicationID:     "KERNEL",
		Alias:             "a1",
		KeyGenerationTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		KeyExpiryTime:     time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, aliasIndex.Insert(ctx, existing))

	resolved, err := resolver.Resolve(ctx, scope, true)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, now, resolved.Alias.KeyGenerationTime)
	assert.Equal(t, time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC), resolved.Alias.KeyExpiryTime,
		"the new alias's persisted and returned expiry must end before a1's generation, not at generationTime+365d")

	stored, err := aliasIndex.FindByScope(ctx, scope)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, a := range stored {
		if a.Alias == resolved.Alias.Alias {
			assert.Equal(t, time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC), a.KeyExpiryTime,
				"the truncated window must be what was actually inserted, not the untruncated candidate")
		}
	}
}

// TestKeyResolver_ReferenceMintTriggersMasterMint matches scenario S3: a
// reference-scoped resolution against an empty store mints both the
// reference alias and its master, wraps the reference's private key under
// the master's public key, and the wrap round-trips.
func TestKeyResolver_ReferenceMintTriggersMasterMint(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	policyStore := newFakePolicyStore(&models.KeyPolicy{ApplicationID: "KERNEL", ValidityDays: 180, IsActive: true})
	resolver, aliasIndex, hsmVault, wrappedStore, _ := newTestResolver(policyStore, clock)

	ctx := context.Background()
	resolved, err := resolver.Resolve(ctx, models.Scope{ApplicationID: "KERNEL", ReferenceID: "CLIENT-A"}, true)
	require.NoError(t, err)
	require.NotNil(t, resolved)

	assert.Equal(t, 2, aliasIndex.count(), "both the reference alias and its master must be inserted")

	wrapped, err := wrappedStore.FindByAlias(ctx, resolved.Alias.Alias)
	require.NoError(t, err)
	require.NotNil(t, wrapped)

	masterPriv, err := hsmVault.PublicKey(ctx, wrapped.MasterAlias)
	require.NoError(t, err)
	require.NotNil(t, masterPriv)

	plaintext, err := hsmVault.Unwrap(ctx, wrapped.MasterAlias, wrapped.WrappedPrivateKey)
	require.NoError(t, err)

	parsed, err := x509.ParsePKCS8PrivateKey(plaintext)
	require.NoError(t, err)
	_, ok := parsed.(crypto.Signer)
	assert.True(t, ok)
}

// TestKeyResolver_UnknownApplication matches scenario S4.
func TestKeyResolver_UnknownApplication(t *testing.T) {
	clock := newFakeClock(time.Now())
	policyStore := newFakePolicyStore()
	resolver, _, _, _, _ := newTestResolver(policyStore, clock)

	_, err := resolver.Resolve(context.Background(), models.Scope{ApplicationID: "UNKNOWN"}, true)
	require.Error(t, err)
	cbcErr, ok := errors.AsCBCError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid_application", string(cbcErr.Code()))
}

// TestKeyResolver_DecryptWithoutMinting matches scenario S5: a resolve with
// mintIfAbsent=false against an empty store must fail NO_CURRENT_KEY and
// must not insert an alias.
func TestKeyResolver_DecryptWithoutMinting(t *testing.T) {
	clock := newFakeClock(time.Now())
	policyStore := newFakePolicyStore(&models.KeyPolicy{ApplicationID: "KERNEL", ValidityDays: 180, IsActive: true})
	resolver, aliasIndex, _, _, _ := newTestResolver(policyStore, clock)

	_, err := resolver.Resolve(context.Background(), models.Scope{ApplicationID: "KERNEL"}, false)
	require.Error(t, err)
	cbcErr, ok := errors.AsCBCError(err)
	require.True(t, ok)
	assert.Equal(t, "no_current_key", string(cbcErr.Code()))
	assert.Equal(t, 0, aliasIndex.count())
}

// TestKeyResolver_ConcurrentMintConvergesOnOneAlias matches scenario S6: 32
// concurrent resolutions against an empty store for the same scope must
// converge on exactly one minted alias.
func TestKeyResolver_ConcurrentMintConvergesOnOneAlias(t *testing.T) {
	clock := newFakeClock(time.Now())
	policyStore := newFakePolicyStore(&models.KeyPolicy{ApplicationID: "KERNEL", ValidityDays: 180, IsActive: true})
	resolver, aliasIndex, _, _, _ := newTestResolver(policyStore, clock)

	const n = 32
	results := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			resolved, err := resolver.Resolve(context.Background(), models.Scope{ApplicationID: "KERNEL"}, true)
			require.NoError(t, err)
			results[i] = resolved.Alias.Alias
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, aliasIndex.count())
	first := results[0]
	for _, alias := range results {
		assert.Equal(t, first, alias)
	}
}

// TestKeyResolver_SignMintsCertificateBoundKey matches scenario S7: signing
// against an empty store mints a certificate-bound alias whose certificate
// brackets now and is addressed by the same alias recorded in the index.
func TestKeyResolver_SignMintsCertificateBoundKey(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	policyStore := newFakePolicyStore(&models.KeyPolicy{ApplicationID: "KERNEL", ValidityDays: 180, IsActive: true})
	resolver, aliasIndex, _, _, _ := newTestResolver(policyStore, clock)

	ctx := context.Background()
	resolved, err := resolver.ResolveForSigning(ctx, models.Scope{ApplicationID: "KERNEL"})
	require.NoError(t, err)
	require.NotNil(t, resolved.Certificate)
	assert.False(t, now.Before(resolved.Certificate.NotBefore))
	assert.True(t, now.Before(resolved.Certificate.NotAfter))
	assert.Equal(t, 1, aliasIndex.count())

	again, err := resolver.ResolveForSigning(ctx, models.Scope{ApplicationID: "KERNEL"})
	require.NoError(t, err)
	assert.Equal(t, resolved.Alias.Alias, again.Alias.Alias, "a second Sign before the window ends reuses the same certificate-bound alias")
	assert.Equal(t, 1, aliasIndex.count())
}

func TestKeyResolver_ReferenceNormalization(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	policyStore := newFakePolicyStore(&models.KeyPolicy{ApplicationID: "KERNEL", ValidityDays: 180, IsActive: true})
	resolver, aliasIndex, _, _, _ := newTestResolver(policyStore, clock)

	ctx := context.Background()
	absent, err := resolver.Resolve(ctx, models.Scope{ApplicationID: "KERNEL", ReferenceID: ""}, true)
	require.NoError(t, err)

	blank, err := resolver.Resolve(ctx, models.Scope{ApplicationID: "KERNEL", ReferenceID: "   "}, true)
	require.NoError(t, err)

	assert.Equal(t, absent.Alias.Alias, blank.Alias.Alias)
	assert.Equal(t, 1, aliasIndex.count())
}
