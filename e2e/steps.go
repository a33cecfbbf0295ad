package e2e

import (
	"github.com/cucumber/godog"

	"popai/e2e/steps/common"
	"popai/e2e/steps/credential"
	"popai/e2e/steps/ratelimit"
	"popai/e2e/steps/verification"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Identity, generic requests and assertions
	common.RegisterSteps(ctx, tc)

	// Challenge issue and submission
	verification.RegisterSteps(ctx, tc)

	// Credential lookup and proofs
	credential.RegisterSteps(ctx, tc)

	// Issuance rate limit
	ratelimit.RegisterSteps(ctx, tc)
}
