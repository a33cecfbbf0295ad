// Package common holds identity, request and assertion steps shared by every feature.
package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	SetIdentity(identity string)
	Identity() string
	GET(path string) error
	POST(path string, body any) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (any, error)
	Save(key, value string)
	Saved(key string) string
}

// RegisterSteps registers common step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc, run: strconv.FormatInt(time.Now().UnixNano(), 36)}
	ctx.Step(`^the service is healthy$`, steps.serviceIsHealthy)
	ctx.Step(`^I am authenticated as "([^"]*)"$`, steps.authenticatedAs)
	ctx.Step(`^I am not authenticated$`, steps.notAuthenticated)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, steps.fieldShouldBeBool)
	ctx.Step(`^the response field "([^"]*)" should not be empty$`, steps.fieldNotEmpty)
	ctx.Step(`^the response should not contain "([^"]*)"$`, steps.responseNotContains)
}

type commonSteps struct {
	tc  TestContext
	run string
}

func (s *commonSteps) serviceIsHealthy() error {
	if err := s.tc.GET("/healthz"); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return fmt.Errorf("service unhealthy: %d %s", s.tc.GetLastResponseStatus(), s.tc.GetLastResponseBody())
	}
	return nil
}

// Identities are suffixed per run so repeated runs against one server start clean.
func (s *commonSteps) authenticatedAs(name string) error {
	s.tc.SetIdentity(name + "-" + s.run)
	return nil
}

func (s *commonSteps) notAuthenticated() error {
	s.tc.SetIdentity("")
	return nil
}

func (s *commonSteps) statusShouldBe(want int) error {
	if got := s.tc.GetLastResponseStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) fieldShouldBe(field, want string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s=%q, got %q", field, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeBool(field, want string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	b, ok := v.(bool)
	if !ok || strconv.FormatBool(b) != want {
		return fmt.Errorf("expected %s=%s, got %v", field, want, v)
	}
	return nil
}

func (s *commonSteps) fieldNotEmpty(field string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if v == nil || fmt.Sprint(v) == "" {
		return fmt.Errorf("expected %s to be set", field)
	}
	return nil
}

func (s *commonSteps) responseNotContains(needle string) error {
	body := string(s.tc.GetLastResponseBody())
	if needle == "<identity>" {
		needle = s.tc.Identity()
	}
	if strings.Contains(body, needle) {
		return fmt.Errorf("response unexpectedly contains %q", needle)
	}
	return nil
}
