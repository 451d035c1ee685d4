package models

import "time"

// WrappedKey is a row of the key_store table: a DB-resident keypair whose
// private key has been wrapped (RSA-OAEP) under the public key of its master
// alias, which is itself resolved through the HSM key vault.
type WrappedKey struct {
	Alias             string
	MasterAlias       string
	PublicKeyDER      []byte // SubjectPublicKeyInfo, DER
	WrappedPrivateKey []byte // private key PKCS8, encrypted under the master public key
	CertificateData   []byte // DER certificate, present when the key is certificate-bound

	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time
}

// HSMEntry represents a key resident entirely inside the HSM key vault: the
// vault holds the private key material and only discloses operations
// (sign, unwrap) and the public half.
type HSMEntry struct {
	Alias        string
	PublicKeyDER []byte
	Certificate  []byte
	CreatedAt    time.Time
}
