package models

import (
	"fmt"
	"time"

	"popai/pkg/domain"
)

// PromptKind is the action a principal must perform on camera.
type PromptKind string

const (
	PromptBlink     PromptKind = "blink"
	PromptNod       PromptKind = "nod"
	PromptSayPhrase PromptKind = "say_phrase"
)

// PromptKinds lists every kind in selection order.
var PromptKinds = []PromptKind{PromptBlink, PromptNod, PromptSayPhrase}

var promptTexts = map[PromptKind]string{
	PromptBlink:     "Blink twice slowly.",
	PromptNod:       "Nod your head up and down.",
	PromptSayPhrase: "Clearly say: 'My identity is sovereign'",
}

// Text returns the human-readable instruction for the prompt.
func (k PromptKind) Text() string {
	return promptTexts[k]
}

func (k PromptKind) IsValid() bool {
	_, ok := promptTexts[k]
	return ok
}

// ParsePromptKind validates a stored or transmitted prompt kind.
func ParsePromptKind(s string) (PromptKind, error) {
	k := PromptKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown prompt kind %q", s)
	}
	return k, nil
}

// PromptFromNonce picks a prompt kind from the nonce, so the prompt is as
// unpredictable as the nonce itself. Up to 8 leading bytes are read as a
// big-endian integer; over 64 bits the modulo bias is below 2^-63.
func PromptFromNonce(nonce []byte) PromptKind {
	var v uint64
	for _, b := range nonce[:min(len(nonce), 8)] {
		v = v<<8 | uint64(b)
	}
	return PromptKinds[v%uint64(len(PromptKinds))]
}

// Challenge is an issued liveness challenge. It lives in the registry until
// it is consumed exactly once or expires.
type Challenge struct {
	ID         domain.ChallengeID
	PromptKind PromptKind
	PromptText string
	Nonce      []byte
	IssuedTo   domain.Identity
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// IsExpired reports whether the challenge is past its expiry at now.
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IssuedToIdentity reports whether the challenge was issued to identity.
func (c *Challenge) IssuedToIdentity(identity domain.Identity) bool {
	return c.IssuedTo == identity
}
