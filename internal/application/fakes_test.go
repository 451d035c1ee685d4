package application_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	"github.com/turtacn/ckms/internal/domain/models"
	"github.com/turtacn/ckms/internal/domain/service"
	"github.com/turtacn/ckms/pkg/constants"
)

// fakeClock is a steppable service.Clock for deterministic resolution tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeAliasIndex is an in-memory repository.AliasIndex.
type fakeAliasIndex struct {
	mu      sync.Mutex
	aliases []models.KeyAlias
}

func newFakeAliasIndex() *fakeAliasIndex {
	return &fakeAliasIndex{}
}

func (f *fakeAliasIndex) FindByScope(ctx context.Context, scope models.Scope) ([]models.KeyAlias, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.KeyAlias
	for _, a := range f.aliases {
		if a.ApplicationID == scope.ApplicationID && a.ReferenceID == scope.ReferenceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAliasIndex) FindCurrent(ctx context.Context, scope models.Scope, asOf time.Time) (*models.KeyAlias, error) {
	aliases, _ := f.FindByScope(ctx, scope)
	var matches []models.KeyAlias
	for _, a := range aliases {
		if !asOf.Before(a.KeyGenerationTime) && asOf.Before(a.KeyExpiryTime) {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("multiple current aliases for scope %+v", scope)
	}
}

func (f *fakeAliasIndex) Insert(ctx context.Context, alias models.KeyAlias) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aliases = append(f.aliases, alias)
	return nil
}

func (f *fakeAliasIndex) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.aliases)
}

// fakePolicyStore is an in-memory repository.PolicyStore.
type fakePolicyStore struct {
	policies map[string]*models.KeyPolicy
}

func newFakePolicyStore(policies ...*models.KeyPolicy) *fakePolicyStore {
	store := &fakePolicyStore{policies: make(map[string]*models.KeyPolicy)}
	for _, p := range policies {
		store.policies[p.ApplicationID] = p
	}
	return store
}

func (f *fakePolicyStore) FindByApplication(ctx context.Context, applicationID string) (*models.KeyPolicy, error) {
	return f.policies[applicationID], nil
}

// fakeWrappedKeyStore is an in-memory repository.WrappedKeyStore.
type fakeWrappedKeyStore struct {
	mu    sync.Mutex
	byKey map[string]models.WrappedKey
}

func newFakeWrappedKeyStore() *fakeWrappedKeyStore {
	return &fakeWrappedKeyStore{byKey: make(map[string]models.WrappedKey)}
}

func (f *fakeWrappedKeyStore) FindByAlias(ctx context.Context, alias string) (*models.WrappedKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.byKey[alias]
	if !ok {
		return nil, nil
	}
	return &key, nil
}

func (f *fakeWrappedKeyStore) Insert(ctx context.Context, key models.WrappedKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byKey[key.Alias]; exists {
		return fmt.Errorf("duplicate alias %s", key.Alias)
	}
	f.byKey[key.Alias] = key
	return nil
}

// fakeHSMVault is an in-memory service.HSMKeyVault. It generates real RSA
// keys so certificate issuance and signature verification in tests exercise
// genuine cryptography, not stand-in bytes.
type fakeHSMVault struct {
	mu    sync.Mutex
	keys  map[string]*rsa.PrivateKey
	certs map[string][]byte
}

func newFakeHSMVault() *fakeHSMVault {
	return &fakeHSMVault{
		keys:  make(map[string]*rsa.PrivateKey),
		certs: make(map[string][]byte),
	}
}

func (v *fakeHSMVault) GetOrCreate(ctx context.Context, alias string, algorithm constants.KeyAlgorithm) (*models.HSMEntry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if priv, ok := v.keys[alias]; ok {
		der, _ := x509.MarshalPKIXPublicKey(&priv.PublicKey)
		return &models.HSMEntry{Alias: alias, PublicKeyDER: der, Certificate: v.certs[alias]}, nil
	}
	bits := 2048
	if algorithm == constants.AlgorithmRSA4096 {
		bits = 4096
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	v.keys[alias] = priv
	der, _ := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	return &models.HSMEntry{Alias: alias, PublicKeyDER: der}, nil
}

func (v *fakeHSMVault) PublicKey(ctx context.Context, alias string) (crypto.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	priv, ok := v.keys[alias]
	if !ok {
		return nil, fmt.Errorf("alias %s not found", alias)
	}
	return &priv.PublicKey, nil
}

func (v *fakeHSMVault) Unwrap(ctx context.Context, alias string, ciphertext []byte) ([]byte, error) {
	v.mu.Lock()
	priv, ok := v.keys[alias]
	v.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("alias %s not found", alias)
	}
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
}

func (v *fakeHSMVault) Sign(ctx context.Context, alias string, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	v.mu.Lock()
	priv, ok := v.keys[alias]
	v.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("alias %s not found", alias)
	}
	return rsa.SignPKCS1v15(rand.Reader, priv, opts.HashFunc(), digest)
}

func (v *fakeHSMVault) StoreCertificate(ctx context.Context, alias string, chain []*x509.Certificate) error {
	if len(chain) == 0 {
		return fmt.Errorf("empty chain")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.keys[alias]; !ok {
		return fmt.Errorf("alias %s not found", alias)
	}
	v.certs[alias] = chain[0].Raw
	return nil
}

// fakeRecordingKLR is a service.KeyLifecycleRegistry that records every
// event it receives for assertions.
type fakeRecordingKLR struct {
	mu     sync.Mutex
	events []service.LifecycleEvent
}

func newFakeRecordingKLR() *fakeRecordingKLR {
	return &fakeRecordingKLR{}
}

func (k *fakeRecordingKLR) LogEvent(ctx context.Context, event service.LifecycleEvent) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.events = append(k.events, event)
	return nil
}

func (k *fakeRecordingKLR) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.events)
}

// fakeMetrics is a no-op service.Metrics that counts calls for assertions.
type fakeMetrics struct {
	mu    sync.Mutex
	mints int
	ops   int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{}
}

func (m *fakeMetrics) RecordMint(applicationID string, success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mints++
}

func (m *fakeMetrics) RecordCryptoOp(operation string, success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
}

func (m *fakeMetrics) RecordCacheAccess(cacheType string, hit bool) {}

// fakeCache is an in-memory service.PublicKeyCache.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, alias string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	der, ok := c.data[alias]
	return der, ok
}

func (c *fakeCache) Set(ctx context.Context, alias string, der []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[alias] = der
}

func (c *fakeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
