// Package credential covers credential lookup and proof generation.
package credential

import (
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (any, error)
	Saved(key string) string
}

// RegisterSteps registers credential and proof step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &credentialSteps{tc: tc}
	ctx.Step(`^I fetch my credential$`, steps.fetchMine)
	ctx.Step(`^I look up my credential by token id$`, steps.lookupByTokenID)
	ctx.Step(`^I look up credential "([^"]*)"$`, steps.lookup)
	ctx.Step(`^I request a proof for my verification$`, steps.requestProof)
	ctx.Step(`^I request a proof for hash "([^"]*)"$`, steps.requestProofFor)
	ctx.Step(`^the proof public input should reference my verification hash$`, steps.proofReferencesHash)
}

type credentialSteps struct {
	tc TestContext
}

func (s *credentialSteps) fetchMine() error {
	return s.tc.GET("/v1/credentials/me")
}

func (s *credentialSteps) lookupByTokenID() error {
	id := s.tc.Saved("credential_id")
	if id == "" {
		return fmt.Errorf("no credential minted in this scenario")
	}
	return s.lookup(id)
}

func (s *credentialSteps) lookup(tokenID string) error {
	return s.tc.GET("/v1/credentials/" + tokenID)
}

func (s *credentialSteps) requestProof() error {
	hash := s.tc.Saved("verification_hash")
	if hash == "" {
		return fmt.Errorf("no verification hash recorded in this scenario")
	}
	return s.requestProofFor(hash)
}

func (s *credentialSteps) requestProofFor(hash string) error {
	return s.tc.POST("/v1/proofs", map[string]string{"verification_hash": hash})
}

func (s *credentialSteps) proofReferencesHash() error {
	v, err := s.tc.GetResponseField("public_input")
	if err != nil {
		return err
	}
	want := "verification_hash:" + s.tc.Saved("verification_hash") + ","
	if got := fmt.Sprint(v); len(got) < len(want) || got[:len(want)] != want {
		return fmt.Errorf("public input %q does not start with %q", got, want)
	}
	return nil
}
