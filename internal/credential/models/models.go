package models

import (
	"strconv"
	"time"

	"popai/pkg/domain"
)

// Credential is a soulbound proof-of-personhood token. It is immutable once
// minted and never deleted.
type Credential struct {
	TokenID          domain.TokenID
	Sequence         uint64
	Name             string
	Description      string
	IssuedAt         time.Time
	VerificationHash string
	Owner            domain.Identity
}

// TokenIDFor formats the token ID for a ledger sequence number.
func TokenIDFor(prefix string, sequence uint64) domain.TokenID {
	return domain.TokenID(prefix + strconv.FormatUint(sequence, 10))
}

// Template carries the fields every minted credential shares.
type Template struct {
	TokenPrefix string
	Name        string
	Description string
}

// Mint builds the credential for owner at sequence.
func (t Template) Mint(sequence uint64, owner domain.Identity, verificationHash string, issuedAt time.Time) *Credential {
	return &Credential{
		TokenID:          TokenIDFor(t.TokenPrefix, sequence),
		Sequence:         sequence,
		Name:             t.Name,
		Description:      t.Description,
		IssuedAt:         issuedAt,
		VerificationHash: verificationHash,
		Owner:            owner,
	}
}
