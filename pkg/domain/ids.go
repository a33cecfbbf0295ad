// Package domain holds the domain primitives shared across modules.
//
// Primitives are validated once at the trust boundary (transport, token
// parsing) and passed around typed afterwards, so a raw string can never be
// used where an Identity or ChallengeID is expected.
package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "popai/pkg/domain-errors"
)

// MaxIdentityLength bounds the size of an identity accepted from a token subject.
const MaxIdentityLength = 256

// Identity is the opaque principal on whose behalf a call is made.
// It comes from the authenticated bearer token subject.
type Identity string

// ParseIdentity validates a raw subject and returns it as an Identity.
// Empty, oversized, non-UTF-8 and non-printable inputs are rejected.
func ParseIdentity(s string) (Identity, error) {
	if s == "" || strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}
	if len(s) > MaxIdentityLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity must be valid UTF-8")
	}
	for _, r := range s {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "identity contains invalid characters")
		}
	}
	return Identity(s), nil
}

func (i Identity) String() string { return string(i) }

// IsNil reports whether the identity is unset.
func (i Identity) IsNil() bool { return i == "" }

// ChallengeID identifies a verification challenge.
type ChallengeID uuid.UUID

// NewChallengeID returns a fresh random (v4) challenge ID.
func NewChallengeID() (ChallengeID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return ChallengeID{}, err
	}
	return ChallengeID(u), nil
}

// ParseChallengeID validates a client supplied challenge ID.
func ParseChallengeID(s string) (ChallengeID, error) {
	if s == "" {
		return ChallengeID{}, dErrors.New(dErrors.CodeInvalidInput, "challenge_id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return ChallengeID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid challenge_id")
	}
	if u == uuid.Nil {
		return ChallengeID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid challenge_id")
	}
	return ChallengeID(u), nil
}

func (c ChallengeID) String() string { return uuid.UUID(c).String() }

// IsNil reports whether the ID is the zero UUID.
func (c ChallengeID) IsNil() bool { return uuid.UUID(c) == uuid.Nil }

// TokenID identifies a minted credential, e.g. "POP-0".
type TokenID string

// ParseTokenID validates a token ID taken from a URL path.
func ParseTokenID(s string) (TokenID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "token_id is required")
	}
	if len(s) > 64 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid token_id")
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid token_id")
		}
	}
	return TokenID(s), nil
}

func (t TokenID) String() string { return string(t) }
