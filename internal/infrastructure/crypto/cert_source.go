package crypto

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/turtacn/ckms/internal/domain/service"
)

// SelfSignedCertificateSource issues the self-signed certificates bound to
// sign/verify-path aliases. It mirrors the certificate entry this service's
// legacy sign path created for a freshly minted signing key.
type SelfSignedCertificateSource struct{}

// NewSelfSignedCertificateSource constructs a SelfSignedCertificateSource.
func NewSelfSignedCertificateSource() *SelfSignedCertificateSource {
	return &SelfSignedCertificateSource{}
}

// IssueSelfSigned issues a self-signed certificate over pub, signed by signer.
func (s *SelfSignedCertificateSource) IssueSelfSigned(ctx context.Context, pub crypto.PublicKey, signer crypto.Signer, commonName string, notBefore, notAfter time.Time) ([]byte, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageAny},

		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, signer)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	return der, nil
}

// Parse decodes a DER certificate.
func (s *SelfSignedCertificateSource) Parse(der []byte) (*x509.Certificate, error) {
	return x509.ParseCertificate(der)
}

var _ service.CertificateSource = (*SelfSignedCertificateSource)(nil)
