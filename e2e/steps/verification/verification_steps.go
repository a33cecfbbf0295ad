// Package verification drives challenge issuance and submission.
package verification

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	POST(path string, body any) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (any, error)
	SetChallenge(ch map[string]any)
	Challenge() map[string]any
	Save(key, value string)
	Saved(key string) string
}

// RegisterSteps registers verification step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verificationSteps{tc: tc}
	ctx.Step(`^I request a challenge$`, steps.requestChallenge)
	ctx.Step(`^I have an issued challenge$`, steps.haveIssuedChallenge)
	ctx.Step(`^I submit human evidence for the challenge$`, steps.submitHumanEvidence)
	ctx.Step(`^I submit evidence for the wrong action$`, steps.submitWrongAction)
	ctx.Step(`^I submit evidence for challenge "([^"]*)"$`, steps.submitUnknownChallenge)
	ctx.Step(`^I resubmit the same evidence$`, steps.resubmit)
	ctx.Step(`^I complete a verification$`, steps.completeVerification)
}

type verificationSteps struct {
	tc   TestContext
	last map[string]any
}

func (s *verificationSteps) requestChallenge() error {
	if err := s.tc.POST("/v1/verification/challenges", nil); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() == 201 {
		var ch map[string]any
		if err := json.Unmarshal(s.tc.GetLastResponseBody(), &ch); err != nil {
			return err
		}
		s.tc.SetChallenge(ch)
	}
	return nil
}

func (s *verificationSteps) haveIssuedChallenge() error {
	if err := s.requestChallenge(); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 201 {
		return fmt.Errorf("challenge issue failed: %d %s", s.tc.GetLastResponseStatus(), s.tc.GetLastResponseBody())
	}
	return nil
}

// humanSignals are timings a scripted client would not produce: plausible
// reaction time and irregular key intervals.
var humanSignals = json.RawMessage(`{"reaction_ms":420,"key_intervals_ms":[110,180,95,240,130,160]}`)

func (s *verificationSteps) submission(challengeID, action, nonce string) map[string]any {
	liveness, _ := json.Marshal(map[string]string{"action": action, "nonce": nonce})
	return map[string]any{
		"challenge_id":        challengeID,
		"liveness_evidence":   base64.StdEncoding.EncodeToString(liveness),
		"behavioral_evidence": humanSignals,
		"client_timestamp":    time.Now().UnixMilli(),
	}
}

func (s *verificationSteps) submit(body map[string]any) error {
	s.last = body
	if err := s.tc.POST("/v1/verification/submissions", body); err != nil {
		return err
	}
	if v, err := s.tc.GetResponseField("verification_hash"); err == nil {
		s.tc.Save("verification_hash", fmt.Sprint(v))
	}
	if v, err := s.tc.GetResponseField("credential_id"); err == nil {
		s.tc.Save("credential_id", fmt.Sprint(v))
	}
	return nil
}

func (s *verificationSteps) current() (id, kind, nonce string, err error) {
	ch := s.tc.Challenge()
	if ch == nil {
		return "", "", "", fmt.Errorf("no challenge issued in this scenario")
	}
	return fmt.Sprint(ch["challenge_id"]), fmt.Sprint(ch["prompt_kind"]), fmt.Sprint(ch["nonce"]), nil
}

func (s *verificationSteps) submitHumanEvidence() error {
	id, kind, nonce, err := s.current()
	if err != nil {
		return err
	}
	return s.submit(s.submission(id, kind, nonce))
}

func (s *verificationSteps) submitWrongAction() error {
	id, kind, nonce, err := s.current()
	if err != nil {
		return err
	}
	wrong := "blink"
	if kind == wrong {
		wrong = "nod"
	}
	return s.submit(s.submission(id, wrong, nonce))
}

func (s *verificationSteps) submitUnknownChallenge(id string) error {
	return s.submit(s.submission(id, "blink", "00"))
}

func (s *verificationSteps) resubmit() error {
	if s.last == nil {
		return fmt.Errorf("nothing submitted yet")
	}
	return s.submit(s.last)
}

func (s *verificationSteps) completeVerification() error {
	if err := s.haveIssuedChallenge(); err != nil {
		return err
	}
	if err := s.submitHumanEvidence(); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return fmt.Errorf("submission failed: %d %s", s.tc.GetLastResponseStatus(), s.tc.GetLastResponseBody())
	}
	return nil
}
