package generator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popai/internal/proof/models"
)

var inputs = models.Inputs{
	VerificationHash: strings.Repeat("ab", 32),
	ModelHash:        strings.Repeat("cd", 32),
}

func TestSignedProofGenerator_RoundTrip(t *testing.T) {
	g, err := NewSignedProofGenerator("s3cret")
	require.NoError(t, err)

	p, err := g.Generate(context.Background(), inputs)
	require.NoError(t, err)

	assert.Equal(t, "verification_hash:"+inputs.VerificationHash+",model_hash:"+inputs.ModelHash, p.PublicInput)
	assert.NotEmpty(t, p.ProofData)
	assert.NoError(t, g.Verify(p.ProofData, p.PublicInput))
}

func TestSignedProofGenerator_Binding(t *testing.T) {
	g, err := NewSignedProofGenerator("s3cret")
	require.NoError(t, err)
	p, err := g.Generate(context.Background(), inputs)
	require.NoError(t, err)

	t.Run("other public input", func(t *testing.T) {
		other := models.Inputs{VerificationHash: strings.Repeat("00", 32), ModelHash: inputs.ModelHash}
		assert.ErrorIs(t, g.Verify(p.ProofData, other.PublicInput()), ErrInvalidProof)
	})

	t.Run("other secret", func(t *testing.T) {
		g2, err := NewSignedProofGenerator("another")
		require.NoError(t, err)
		assert.ErrorIs(t, g2.Verify(p.ProofData, p.PublicInput), ErrInvalidProof)
	})

	t.Run("tampered proof", func(t *testing.T) {
		assert.ErrorIs(t, g.Verify(p.ProofData+"x", p.PublicInput), ErrInvalidProof)
		assert.ErrorIs(t, g.Verify("not-a-jws", p.PublicInput), ErrInvalidProof)
	})
}

func TestSignedProofGenerator_Errors(t *testing.T) {
	_, err := NewSignedProofGenerator("")
	assert.Error(t, err)

	g, err := NewSignedProofGenerator("s3cret")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, inputs)
	assert.ErrorIs(t, err, context.Canceled)
}
