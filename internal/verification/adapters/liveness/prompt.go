// Package liveness provides LivenessVerifier implementations.
package liveness

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/zeebo/blake3"

	"popai/internal/challenge/models"
)

// Attestation is the evidence document a client submits for the
// prompt-match verifier: the action it observed and the nonce it was
// answering.
type Attestation struct {
	Action models.PromptKind `json:"action"`
	Nonce  string            `json:"nonce"`
}

// PromptMatchVerifier accepts evidence that attests exactly the prompted
// action for exactly this challenge's nonce. It is deterministic and has no
// external dependencies, which makes it the default for development and
// tests.
type PromptMatchVerifier struct {
	modelHash string
}

// NewPromptMatchVerifier returns a verifier reporting modelHash, or a digest
// of its own identifier when modelHash is empty.
func NewPromptMatchVerifier(modelHash string) *PromptMatchVerifier {
	if modelHash == "" {
		sum := blake3.Sum256([]byte("popai/liveness/prompt-match/v1"))
		modelHash = hex.EncodeToString(sum[:])
	}
	return &PromptMatchVerifier{modelHash: modelHash}
}

// Evaluate never fails: evidence that cannot be parsed simply does not pass.
func (v *PromptMatchVerifier) Evaluate(ctx context.Context, challenge *models.Challenge, evidence []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var att Attestation
	dec := json.NewDecoder(bytes.NewReader(evidence))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&att); err != nil {
		return false, nil
	}
	nonce, err := hex.DecodeString(att.Nonce)
	if err != nil {
		return false, nil
	}
	return att.Action == challenge.PromptKind && bytes.Equal(nonce, challenge.Nonce), nil
}

func (v *PromptMatchVerifier) ModelHash() string {
	return v.modelHash
}
