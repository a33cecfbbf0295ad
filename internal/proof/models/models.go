package models

import "fmt"

// Inputs are the public values a proof commits to.
type Inputs struct {
	VerificationHash string
	ModelHash        string
}

// PublicInput renders the inputs in their wire form.
func (in Inputs) PublicInput() string {
	return fmt.Sprintf("verification_hash:%s,model_hash:%s", in.VerificationHash, in.ModelHash)
}

// Proof is an opaque proof bound to PublicInput.
type Proof struct {
	ProofData   string `json:"proof_data"`
	PublicInput string `json:"public_input"`
}
