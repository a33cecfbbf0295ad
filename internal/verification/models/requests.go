package models

import (
	"encoding/json"
	"strings"

	"popai/pkg/domain"
	dErrors "popai/pkg/domain-errors"
)

const (
	// MaxLivenessEvidenceBytes bounds decoded liveness evidence.
	MaxLivenessEvidenceBytes = 2 << 20
	// MaxChallengeIDLength bounds the client supplied challenge ID.
	MaxChallengeIDLength = 128
)

// SubmissionRequest is the JSON body of a challenge submission. Liveness
// evidence is base64 encoded; behavioral evidence is any JSON value.
type SubmissionRequest struct {
	ChallengeID        string          `json:"challenge_id" validate:"required,max=128"`
	LivenessEvidence   []byte          `json:"liveness_evidence"`
	BehavioralEvidence json.RawMessage `json:"behavioral_evidence"`
	ClientTimestamp    int64           `json:"client_timestamp" validate:"gte=0"`

	parsedID domain.ChallengeID
}

func (r *SubmissionRequest) Normalize() {
	r.ChallengeID = strings.TrimSpace(r.ChallengeID)
}

func (r *SubmissionRequest) Validate() error {
	if r.ChallengeID == "" || len(r.ChallengeID) > MaxChallengeIDLength {
		return dErrors.New(dErrors.CodeInvalidInput, "challenge_id is required and at most 128 bytes")
	}
	if len(r.LivenessEvidence) > MaxLivenessEvidenceBytes {
		return dErrors.New(dErrors.CodeInvalidInput, "liveness_evidence too large")
	}
	if len(r.BehavioralEvidence) > 0 && !json.Valid(r.BehavioralEvidence) {
		return dErrors.New(dErrors.CodeInvalidInput, "behavioral_evidence must be valid JSON")
	}
	// IDs we could never have issued keep the nil ID and are answered as
	// unknown challenges.
	if id, err := domain.ParseChallengeID(r.ChallengeID); err == nil {
		r.parsedID = id
	}
	return nil
}

// ToSubmission converts a validated request.
func (r *SubmissionRequest) ToSubmission() Submission {
	return Submission{
		ChallengeID:        r.parsedID,
		LivenessEvidence:   r.LivenessEvidence,
		BehavioralEvidence: r.BehavioralEvidence,
		ClientTimestamp:    r.ClientTimestamp,
	}
}
