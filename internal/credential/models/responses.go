package models

import "time"

// CredentialResponse is the public view of a credential.
type CredentialResponse struct {
	TokenID          string    `json:"token_id"`
	Sequence         uint64    `json:"sequence"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	IssuedAt         time.Time `json:"issued_at"`
	VerificationHash string    `json:"verification_hash"`
	Owner            string    `json:"owner"`
}

func ToResponse(c *Credential) *CredentialResponse {
	return &CredentialResponse{
		TokenID:          c.TokenID.String(),
		Sequence:         c.Sequence,
		Name:             c.Name,
		Description:      c.Description,
		IssuedAt:         c.IssuedAt,
		VerificationHash: c.VerificationHash,
		Owner:            c.Owner.String(),
	}
}
