// Package ratelimit covers the per-identity challenge issuance limit.
package ratelimit

import (
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	POST(path string, body any) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers rate-limiting step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}
	ctx.Step(`^I request (\d+) challenges in quick succession$`, steps.requestMany)
	ctx.Step(`^at least one request should have been rate limited$`, steps.someRateLimited)
	ctx.Step(`^the first request should have succeeded$`, steps.firstSucceeded)
}

type ratelimitSteps struct {
	tc       TestContext
	statuses []int
}

func (s *ratelimitSteps) requestMany(n int) error {
	s.statuses = s.statuses[:0]
	for i := 0; i < n; i++ {
		if err := s.tc.POST("/v1/verification/challenges", nil); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) someRateLimited() error {
	for _, st := range s.statuses {
		if st == 429 {
			return nil
		}
	}
	return fmt.Errorf("no request was rate limited: %v", s.statuses)
}

func (s *ratelimitSteps) firstSucceeded() error {
	if len(s.statuses) == 0 || s.statuses[0] != 201 {
		return fmt.Errorf("first request did not succeed: %v", s.statuses)
	}
	return nil
}
