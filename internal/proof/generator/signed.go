// Package generator provides ProofGenerator implementations.
package generator

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"popai/internal/proof/models"
)

const (
	keySize = 32
	issuer  = "popai"
)

var (
	hkdfInfoProof = []byte("popai.proof.v1")

	// ErrInvalidProof is returned by Verify for any proof that does not bind
	// the given public input.
	ErrInvalidProof = errors.New("proof does not match public input")
)

type claims struct {
	PublicInput      string `json:"pub"`
	VerificationHash string `json:"vh"`
	ModelHash        string `json:"mh"`
	jwt.RegisteredClaims
}

// SignedProofGenerator binds public inputs with an HS256 JWS under a key
// derived from a service secret. It is not zero-knowledge; it stands in for
// a proving backend behind the same interface.
type SignedProofGenerator struct {
	key []byte
	now func() time.Time
}

// NewSignedProofGenerator derives the signing key from secret.
func NewSignedProofGenerator(secret string) (*SignedProofGenerator, error) {
	if secret == "" {
		return nil, errors.New("proof secret is empty")
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, hkdfInfoProof), key); err != nil {
		return nil, fmt.Errorf("derive proof key: %w", err)
	}
	return &SignedProofGenerator{key: key, now: time.Now}, nil
}

func (g *SignedProofGenerator) Generate(ctx context.Context, in models.Inputs) (*models.Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	publicInput := in.PublicInput()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		PublicInput:      publicInput,
		VerificationHash: in.VerificationHash,
		ModelHash:        in.ModelHash,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(g.now()),
		},
	})
	signed, err := token.SignedString(g.key)
	if err != nil {
		return nil, fmt.Errorf("sign proof: %w", err)
	}
	return &models.Proof{ProofData: signed, PublicInput: publicInput}, nil
}

// Verify checks that proofData was produced by this generator for publicInput.
func (g *SignedProofGenerator) Verify(proofData, publicInput string) error {
	var c claims
	_, err := jwt.ParseWithClaims(proofData, &c, func(*jwt.Token) (any, error) {
		return g.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}
	if c.PublicInput != publicInput {
		return ErrInvalidProof
	}
	return nil
}
