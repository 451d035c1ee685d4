// Package crypto provides the stdlib-backed implementations of the
// AsymmetricCrypto and KeypairGenerator ports: RSA-OAEP wrap/unwrap,
// PKCS1v15 sign/verify, and keypair generation for DB-resident keys.
//
// These primitives stay on crypto/rsa and crypto/x509 deliberately: none of
// the example repositories in this service's lineage bring in a third-party
// RSA implementation, and the standard library's is the one every adapter
// that touches raw key bytes (HSM providers, wrapped key store) already
// assumes.
package crypto

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/turtacn/ckms/internal/domain/service"
	"github.com/turtacn/ckms/pkg/constants"
)

// RSACrypto implements service.AsymmetricCrypto and service.KeypairGenerator.
type RSACrypto struct{}

// NewRSACrypto constructs an RSACrypto.
func NewRSACrypto() *RSACrypto {
	return &RSACrypto{}
}

func bitsFor(algorithm constants.KeyAlgorithm) int {
	switch algorithm {
	case constants.AlgorithmRSA4096:
		return 4096
	default:
		return 2048
	}
}

// Generate mints a fresh RSA keypair of the requested strength.
func (c *RSACrypto) Generate(ctx context.Context, algorithm constants.KeyAlgorithm) (crypto.PublicKey, crypto.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bitsFor(algorithm))
	if err != nil {
		return nil, nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &priv.PublicKey, priv, nil
}

// WrapPrivateKey encrypts a PKCS8-encoded private key under pub using
// RSA-OAEP with SHA-256.
func (c *RSACrypto) WrapPrivateKey(pub crypto.PublicKey, privPKCS8 []byte) ([]byte, error) {
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("wrap private key: master public key is not RSA")
	}
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, rsaPub, privPKCS8, nil)
}

// UnwrapPrivateKey decrypts a wrapped PKCS8-encoded private key using priv.
func (c *RSACrypto) UnwrapPrivateKey(priv crypto.PrivateKey, wrapped []byte) ([]byte, error) {
	rsaPriv, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unwrap private key: master private key is not RSA")
	}
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, rsaPriv, wrapped, nil)
}

// Sign produces a PKCS1v15 signature over a SHA-256 digest.
func (c *RSACrypto) Sign(priv crypto.PrivateKey, digest []byte) ([]byte, error) {
	rsaPriv, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("sign: private key is not RSA")
	}
	return rsa.SignPKCS1v15(rand.Reader, rsaPriv, crypto.SHA256, digest)
}

// Verify checks a PKCS1v15 signature over a SHA-256 digest.
func (c *RSACrypto) Verify(pub crypto.PublicKey, digest, signature []byte) error {
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("verify: public key is not RSA")
	}
	return rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, digest, signature)
}

// PrivateEncrypt signs data's digest with priv, the legacy "private key
// encrypt" operation this service's Encrypt path preserves.
func (c *RSACrypto) PrivateEncrypt(priv crypto.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return c.Sign(priv, digest[:])
}

// PublicDecrypt performs no operation: it always returns an error. A
// signature produced by PrivateEncrypt is checked with Verify instead.
func (c *RSACrypto) PublicDecrypt(pub crypto.PublicKey, data []byte) ([]byte, error) {
	return nil, fmt.Errorf("public_decrypt: use Verify for signature validation")
}

// SymmetricEncrypt wraps a symmetric key under pub using RSA-OAEP.
func (c *RSACrypto) SymmetricEncrypt(pub crypto.PublicKey, plaintext []byte) ([]byte, error) {
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("symmetric_encrypt: public key is not RSA")
	}
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, rsaPub, plaintext, nil)
}

// SymmetricDecrypt unwraps a symmetric key using priv with RSA-OAEP.
func (c *RSACrypto) SymmetricDecrypt(priv crypto.PrivateKey, ciphertext []byte) ([]byte, error) {
	rsaPriv, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("symmetric_decrypt: private key is not RSA")
	}
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, rsaPriv, ciphertext, nil)
}

var _ service.AsymmetricCrypto = (*RSACrypto)(nil)
var _ service.KeypairGenerator = (*RSACrypto)(nil)
