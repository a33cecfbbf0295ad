package models

import (
	"encoding/json"

	"popai/pkg/domain"
)

// ErrorKind classifies an unsuccessful verification. These are expected
// outcomes carried inside a Result, not faults.
type ErrorKind string

const (
	ErrorInvalidOrExpiredChallenge ErrorKind = "invalid_or_expired_challenge"
	ErrorVerificationFailed        ErrorKind = "verification_failed"
	ErrorVerifierUnavailable       ErrorKind = "verifier_unavailable"
)

// Submission is a caller's response to a challenge. It is never persisted.
type Submission struct {
	// ChallengeID is nil when the client sent an ID that was never issued.
	ChallengeID        domain.ChallengeID
	LivenessEvidence   []byte
	BehavioralEvidence json.RawMessage
	ClientTimestamp    int64
}

// Result is the outcome of a submission.
type Result struct {
	Success          bool       `json:"success"`
	CredentialID     *string    `json:"credential_id,omitempty"`
	Error            *ErrorKind `json:"error,omitempty"`
	VerificationHash *string    `json:"verification_hash,omitempty"`
	AlreadyVerified  bool       `json:"already_verified,omitempty"`
}

// Failed builds an unsuccessful result. hash may be empty when no
// verification event was recorded.
func Failed(kind ErrorKind, hash string) *Result {
	r := &Result{Error: &kind}
	if hash != "" {
		r.VerificationHash = &hash
	}
	return r
}

// Succeeded builds a successful result for credential tokenID.
func Succeeded(tokenID, hash string, alreadyVerified bool) *Result {
	return &Result{
		Success:          true,
		CredentialID:     &tokenID,
		VerificationHash: &hash,
		AlreadyVerified:  alreadyVerified,
	}
}

// ErrorKindOf returns the error kind or "" for successful results.
func (r *Result) ErrorKindOf() ErrorKind {
	if r == nil || r.Error == nil {
		return ""
	}
	return *r.Error
}
