package models

import "strings"

// GenerateRequest asks for a proof over a verification hash.
type GenerateRequest struct {
	VerificationHash string `json:"verification_hash" validate:"required,len=64,hexadecimal"`
}

func (r *GenerateRequest) Normalize() {
	r.VerificationHash = strings.TrimSpace(r.VerificationHash)
}
