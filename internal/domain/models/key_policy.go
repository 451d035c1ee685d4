package models

// KeyOperation enumerates the cryptographic operations a policy may allow.
type KeyOperation string

const (
	OperationEncrypt KeyOperation = "ENCRYPT"
	OperationDecrypt KeyOperation = "DECRYPT"
	OperationSign    KeyOperation = "SIGN"
	OperationVerify  KeyOperation = "VERIFY"
)

// KeyPolicy is a row of the key_policy table: the per-application expiry and
// access rules. KeyResolver checks IsActive and hands ValidityDays to
// ExpiryPlanner; AccessAllowed is exposed through Allows.
type KeyPolicy struct {
	ApplicationID  string
	ValidityDays   int
	PreExpireDays  int
	PostExpireDays int
	AccessAllowed  []KeyOperation
	IsActive       bool

	CreatedBy string
	CreatedAt string
	UpdatedBy string
	UpdatedAt string
}

// Allows reports whether op is permitted by this policy.
func (p *KeyPolicy) Allows(op KeyOperation) bool {
	if !p.IsActive {
		return false
	}
	for _, allowed := range p.AccessAllowed {
		if allowed == op {
			return true
		}
	}
	return false
}
