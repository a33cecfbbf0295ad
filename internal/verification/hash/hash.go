// Package hash derives the verification hash that binds a verification event
// to its inputs and outcome.
//
// Both digests are BLAKE3 in keyed mode with a fixed per-domain key, over the
// deterministic CBOR encoding of their inputs. Changing a domain key or the
// field order invalidates every hash already in the audit log.
package hash

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"popai/pkg/domain"
	"popai/pkg/platform/codec"
)

// Size is the digest length in bytes.
const Size = 32

type domainKey [32]byte

// ASCII domain names, zero-padded to 32 bytes.
var (
	evidenceDomainKey = domainKey{
		'p', 'o', 'p', 'a', 'i', '.', 'e', 'v', 'i', 'd', 'e', 'n', 'c', 'e', 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	verificationDomainKey = domainKey{
		'p', 'o', 'p', 'a', 'i', '.', 'v', 'e', 'r', 'i', 'f', 'i', 'c', 'a', 't', 'i',
		'o', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// Event is everything the verification hash commits to.
type Event struct {
	ChallengeID     domain.ChallengeID
	Identity        domain.Identity
	ClientTimestamp int64
	EvidenceDigest  [Size]byte
	Passed          bool
}

type evidence struct {
	_          struct{} `cbor:",toarray"`
	Liveness   []byte
	Behavioral cbor.RawMessage
}

type event struct {
	_               struct{} `cbor:",toarray"`
	ChallengeID     string
	Identity        string
	ClientTimestamp int64
	EvidenceDigest  []byte
	Passed          bool
}

// EvidenceDigest digests the submitted evidence. Behavioral evidence is
// canonicalized first, so key order and whitespace do not matter.
func EvidenceDigest(liveness []byte, behavioral json.RawMessage) ([Size]byte, error) {
	canonical, err := codec.CanonicalJSON(behavioral)
	if err != nil {
		return [Size]byte{}, fmt.Errorf("behavioral evidence: %w", err)
	}
	if liveness == nil {
		liveness = []byte{}
	}
	enc, err := codec.Marshal(evidence{Liveness: liveness, Behavioral: canonical})
	if err != nil {
		return [Size]byte{}, fmt.Errorf("encode evidence: %w", err)
	}
	return keyedHash(evidenceDomainKey, enc), nil
}

// Verification returns the hex-encoded verification hash of e.
func Verification(e Event) (string, error) {
	enc, err := codec.Marshal(event{
		ChallengeID:     e.ChallengeID.String(),
		Identity:        e.Identity.String(),
		ClientTimestamp: e.ClientTimestamp,
		EvidenceDigest:  e.EvidenceDigest[:],
		Passed:          e.Passed,
	})
	if err != nil {
		return "", fmt.Errorf("encode verification event: %w", err)
	}
	sum := keyedHash(verificationDomainKey, enc)
	return hex.EncodeToString(sum[:]), nil
}

// IsValid reports whether s is a lowercase hex verification hash.
func IsValid(s string) bool {
	if len(s) != hex.EncodedLen(Size) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func keyedHash(key domainKey, data []byte) [Size]byte {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("hash: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(data)
	var sum [Size]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}
