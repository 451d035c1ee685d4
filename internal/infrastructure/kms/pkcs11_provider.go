package kms

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"math/big"
	"sync"

	"github.com/miekg/pkcs11"

	"github.com/turtacn/ckms/internal/domain/models"
	"github.com/turtacn/ckms/internal/domain/service"
	"github.com/turtacn/ckms/pkg/constants"
	"github.com/turtacn/ckms/pkg/logger"
)

// PKCS11Provider is a hardware HSMKeyVault backed by a PKCS#11 token. RSA
// private keys never leave the token: signing and unwrapping are delegated
// to the module, and only the public half is ever read back into Go memory.
type PKCS11Provider struct {
	ctx     *pkcs11.Ctx
	session pkcs11.SessionHandle
	log     logger.Logger

	mu      sync.Mutex
	handles map[string]pkcs11.ObjectHandle // alias -> private key handle
}

// NewPKCS11Provider opens the PKCS#11 module at libPath, logs into the given
// slot with pin, and returns a ready-to-use PKCS11Provider.
func NewPKCS11Provider(libPath, pin string, slotID int, log logger.Logger) (*PKCS11Provider, error) {
	ctx := pkcs11.New(libPath)
	if ctx == nil {
		return nil, fmt.Errorf("load PKCS#11 module at %s", libPath)
	}
	if err := ctx.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize PKCS#11 module: %w", err)
	}

	slots, err := ctx.GetSlotList(true)
	if err != nil {
		return nil, fmt.Errorf("get slot list: %w", err)
	}
	if slotID >= len(slots) {
		return nil, fmt.Errorf("slot id %d out of range (have %d slots)", slotID, len(slots))
	}

	session, err := ctx.OpenSession(slots[slotID], pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	if err := ctx.Login(session, pkcs11.CKU_USER, pin); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	return &PKCS11Provider{
		ctx:     ctx,
		session: session,
		log:     log.WithFields(logger.Fields{"component": "pkcs11_provider"}),
		handles: make(map[string]pkcs11.ObjectHandle),
	}, nil
}

// Close logs out and releases the PKCS#11 session.
func (p *PKCS11Provider) Close() {
	_ = p.ctx.Logout(p.session)
	_ = p.ctx.CloseSession(p.session)
	p.ctx.Finalize()
}

func keyBits(algorithm constants.KeyAlgorithm) int {
	if algorithm == constants.AlgorithmRSA4096 {
		return 4096
	}
	return 2048
}

// GetOrCreate returns the HSM entry for alias, generating an RSA keypair on
// the token if alias's CKA_LABEL is not yet present.
func (p *PKCS11Provider) GetOrCreate(ctx context.Context, alias string, algorithm constants.KeyAlgorithm) (*models.HSMEntry, error) {
	pub, err := p.findPublicKey(alias)
	if err != nil {
		return nil, err
	}
	if pub != nil {
		der, _ := x509.MarshalPKIXPublicKey(pub)
		return &models.HSMEntry{Alias: alias, PublicKeyDER: der}, nil
	}

	pubTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, alias),
		pkcs11.NewAttribute(pkcs11.CKA_ID, []byte(alias)),
		pkcs11.NewAttribute(pkcs11.CKA_ENCRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_VERIFY, true),
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS_BITS, keyBits(algorithm)),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, []byte{0x01, 0x00, 0x01}),
	}
	privTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, alias),
		pkcs11.NewAttribute(pkcs11.CKA_ID, []byte(alias)),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE, true),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, false),
		pkcs11.NewAttribute(pkcs11.CKA_DECRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
	}

	_, privHandle, err := p.ctx.GenerateKeyPair(p.session, []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_KEY_PAIR_GEN, nil)}, pubTemplate, privTemplate)
	if err != nil {
		return nil, fmt.Errorf("generate keypair for alias %s: %w", alias, err)
	}

	p.mu.Lock()
	p.handles[alias] = privHandle
	p.mu.Unlock()

	pub, err = p.findPublicKey(alias)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return &models.HSMEntry{Alias: alias, PublicKeyDER: der}, nil
}

// PublicKey returns the public half of alias.
func (p *PKCS11Provider) PublicKey(ctx context.Context, alias string) (crypto.PublicKey, error) {
	pub, err := p.findPublicKey(alias)
	if err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, fmt.Errorf("alias %s not found on token", alias)
	}
	return pub, nil
}

// Unwrap decrypts ciphertext using alias's token-resident private key.
func (p *PKCS11Provider) Unwrap(ctx context.Context, alias string, ciphertext []byte) ([]byte, error) {
	handle, err := p.privateHandle(alias)
	if err != nil {
		return nil, err
	}
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_OAEP, nil)}
	if err := p.ctx.DecryptInit(p.session, mech, handle); err != nil {
		return nil, fmt.Errorf("decrypt init for alias %s: %w", alias, err)
	}
	return p.ctx.Decrypt(p.session, ciphertext)
}

// Sign produces a signature over digest using alias's token-resident
// private key.
func (p *PKCS11Provider) Sign(ctx context.Context, alias string, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	handle, err := p.privateHandle(alias)
	if err != nil {
		return nil, err
	}
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)}
	if err := p.ctx.SignInit(p.session, mech, handle); err != nil {
		return nil, fmt.Errorf("sign init for alias %s: %w", alias, err)
	}
	return p.ctx.Sign(p.session, digest)
}

// StoreCertificate is not supported by this HSM provider: it always returns
// an error, so certificate-bound (sign/verify) scopes cannot be minted on
// this backend.
func (p *PKCS11Provider) StoreCertificate(ctx context.Context, alias string, chain []*x509.Certificate) error {
	return fmt.Errorf("pkcs11 provider does not support certificate storage for alias %s", alias)
}

func (p *PKCS11Provider) privateHandle(alias string) (pkcs11.ObjectHandle, error) {
	p.mu.Lock()
	handle, ok := p.handles[alias]
	p.mu.Unlock()
	if ok {
		return handle, nil
	}

	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, alias),
	}
	if err := p.ctx.FindObjectsInit(p.session, template); err != nil {
		return 0, fmt.Errorf("find private key for alias %s: %w", alias, err)
	}
	defer p.ctx.FindObjectsFinal(p.session)

	objs, _, err := p.ctx.FindObjects(p.session, 1)
	if err != nil {
		return 0, fmt.Errorf("find private key for alias %s: %w", alias, err)
	}
	if len(objs) == 0 {
		return 0, fmt.Errorf("private key for alias %s not found on token", alias)
	}

	p.mu.Lock()
	p.handles[alias] = objs[0]
	p.mu.Unlock()
	return objs[0], nil
}

func (p *PKCS11Provider) findPublicKey(alias string) (*rsa.PublicKey, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, alias),
	}
	if err := p.ctx.FindObjectsInit(p.session, template); err != nil {
		return nil, fmt.Errorf("find public key for alias %s: %w", alias, err)
	}
	defer p.ctx.FindObjectsFinal(p.session)

	objs, _, err := p.ctx.FindObjects(p.session, 1)
	if err != nil {
		return nil, fmt.Errorf("find public key for alias %s: %w", alias, err)
	}
	if len(objs) == 0 {
		return nil, nil
	}

	attrs, err := p.ctx.GetAttributeValue(p.session, objs[0], []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, nil),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, nil),
	})
	if err != nil {
		return nil, fmt.Errorf("read public key attributes for alias %s: %w", alias, err)
	}

	modulus := new(big.Int).SetBytes(attrs[0].Value)
	exponent := new(big.Int).SetBytes(attrs[1].Value)
	return &rsa.PublicKey{N: modulus, E: int(exponent.Int64())}, nil
}

var _ service.HSMKeyVault = (*PKCS11Provider)(nil)
