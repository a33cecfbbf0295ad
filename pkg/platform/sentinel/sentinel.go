package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors or result kinds.
//
//   - ErrNotFound: record does not exist (or was already consumed)
//   - ErrConflict: uniqueness constraint hit (owner already holds a credential)
//   - ErrExpired: challenge outlived its TTL
//   - ErrAlreadyUsed: one-shot record consumed before
//   - ErrInvalidState: record in the wrong state for the operation
//   - ErrUnavailable: backend or capability temporarily unavailable
//
// For validation errors use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
