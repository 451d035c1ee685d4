// Package kms provides HSMKeyVault adapters: a HashiCorp Vault-backed
// software vault and a PKCS#11-backed hardware vault.
package kms

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"sync"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/turtacn/ckms/internal/domain/models"
	"github.com/turtacn/ckms/internal/domain/service"
	"github.com/turtacn/ckms/pkg/constants"
	"github.com/turtacn/ckms/pkg/logger"
)

// VaultProvider is a software HSMKeyVault backed by HashiCorp Vault's
// key-value secrets engine. It mints RSA keypairs on first use and keeps
// the private key PEM inside Vault for the lifetime of the alias.
type VaultProvider struct {
	client    *vaultapi.Client
	mountPath string
	log       logger.Logger

	mu    sync.Mutex
	cache map[string]*rsa.PrivateKey
}

// NewVaultProvider constructs a VaultProvider against an already-configured
// Vault API client, storing secrets under mountPath (e.g. "secret/data/ckms").
func NewVaultProvider(client *vaultapi.Client, mountPath string, log logger.Logger) *VaultProvider {
	return &VaultProvider{
		client:    client,
		mountPath: mountPath,
		log:       log.WithFields(logger.Fields{"component": "vault_provider"}),
		cache:     make(map[string]*rsa.PrivateKey),
	}
}

func (p *VaultProvider) secretPath(alias string) string {
	return fmt.Sprintf("%s/%s", p.mountPath, alias)
}

// GetOrCreate returns the HSM entry for alias, minting and persisting a new
// RSA keypair into Vault if alias has never been created.
func (p *VaultProvider) GetOrCreate(ctx context.Context, alias string, algorithm constants.KeyAlgorithm) (*models.HSMEntry, error) {
	priv, err := p.loadPrivateKey(ctx, alias)
	if err != nil {
		return nil, err
	}
	if priv != nil {
		entry := p.entryFor(priv)
		entry.Alias = alias
		entry.Certificate = p.loadCertificate(ctx, alias)
		return entry, nil
	}

	bits := 2048
	if algorithm == constants.AlgorithmRSA4096 {
		bits = 4096
	}
	priv, err = rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate key for alias %s: %w", alias, err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	secret := map[string]interface{}{"data": map[string]interface{}{"private_key": string(privPEM)}}
	if _, err := p.client.Logical().WriteWithContext(ctx, p.secretPath(alias), secret); err != nil {
		return nil, fmt.Errorf("write alias %s to vault: %w", alias, err)
	}

	p.mu.Lock()
	p.cache[alias] = priv
	p.mu.Unlock()

	entry := p.entryFor(priv)
	entry.Alias = alias
	return entry, nil
}

// loadCertificate returns the certificate bound to alias via
// StoreCertificate, or nil if none has been stored.
func (p *VaultProvider) loadCertificate(ctx context.Context, alias string) []byte {
	path := fmt.Sprintf("%s/%s/certificate", p.mountPath, alias)
	secret, err := p.client.Logical().ReadWithContext(ctx, path)
	if err != nil || secret == nil || secret.Data == nil {
		return nil
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := data["certificate"].(string)
	if !ok {
		return nil
	}
	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	return der
}

// PublicKey returns the public half of alias.
func (p *VaultProvider) PublicKey(ctx context.Context, alias string) (crypto.PublicKey, error) {
	priv, err := p.loadPrivateKey(ctx, alias)
	if err != nil {
		return nil, err
	}
	if priv == nil {
		return nil, fmt.Errorf("alias %s not found in vault", alias)
	}
	return &priv.PublicKey, nil
}

// Unwrap decrypts ciphertext using alias's private key.
func (p *VaultProvider) Unwrap(ctx context.Context, alias string, ciphertext []byte) ([]byte, error) {
	priv, err := p.loadPrivateKey(ctx, alias)
	if err != nil {
		return nil, err
	}
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
}

// Sign produces a signature over digest using alias's private key.
func (p *VaultProvider) Sign(ctx context.Context, alias string, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	priv, err := p.loadPrivateKey(ctx, alias)
	if err != nil {
		return nil, err
	}
	return rsa.SignPKCS1v15(rand.Reader, priv, opts.HashFunc(), digest)
}

// StoreCertificate persists a certificate chain alongside alias's secret.
func (p *VaultProvider) StoreCertificate(ctx context.Context, alias string, chain []*x509.Certificate) error {
	if len(chain) == 0 {
		return fmt.Errorf("store certificate: empty chain")
	}
	secret := map[string]interface{}{"data": map[string]interface{}{"certificate": chain[0].Raw}}
	path := fmt.Sprintf("%s/%s/certificate", p.mountPath, alias)
	_, err := p.client.Logical().WriteWithContext(ctx, path, secret)
	return err
}

func (p *VaultProvider) entryFor(priv *rsa.PrivateKey) *models.HSMEntry {
	der, _ := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	return &models.HSMEntry{PublicKeyDER: der}
}

func (p *VaultProvider) loadPrivateKey(ctx context.Context, alias string) (*rsa.PrivateKey, error) {
	p.mu.Lock()
	if priv, ok := p.cache[alias]; ok {
		p.mu.Unlock()
		return priv, nil
	}
	p.mu.Unlock()

	secret, err := p.client.Logical().ReadWithContext(ctx, p.secretPath(alias))
	if err != nil {
		return nil, fmt.Errorf("read alias %s from vault: %w", alias, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected vault secret shape for alias %s", alias)
	}
	pemStr, ok := data["private_key"].(string)
	if !ok {
		return nil, fmt.Errorf("missing private_key for alias %s", alias)
	}

	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("decode PEM block for alias %s", alias)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key for alias %s: %w", alias, err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("alias %s is not an RSA key", alias)
	}

	p.mu.Lock()
	p.cache[alias] = priv
	p.mu.Unlock()

	return priv, nil
}

var _ service.HSMKeyVault = (*VaultProvider)(nil)
