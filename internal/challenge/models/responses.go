package models

import (
	"encoding/hex"
	"time"
)

// ChallengeResponse is the wire form of an issued challenge. The owner and
// issue time stay server side.
type ChallengeResponse struct {
	ChallengeID string     `json:"challenge_id"`
	PromptKind  PromptKind `json:"prompt_kind"`
	PromptText  string     `json:"prompt_text"`
	Nonce       string     `json:"nonce"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

func ToResponse(c *Challenge) *ChallengeResponse {
	return &ChallengeResponse{
		ChallengeID: c.ID.String(),
		PromptKind:  c.PromptKind,
		PromptText:  c.PromptText,
		Nonce:       hex.EncodeToString(c.Nonce),
		ExpiresAt:   c.ExpiresAt,
	}
}
