package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

func TestProofRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeypair()
	require.NoError(t, err)
	now := time.Unix(1_800_000_000, 0)

	signed, err := MintProof("platform-a", "platform-b", "btm", priv, now, time.Minute)
	require.NoError(t, err)

	subject, err := ProofSubject(signed)
	require.NoError(t, err)
	assert.Equal(t, "platform-a", subject)

	proof, err := VerifyProof(signed, "platform-b", pub, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "platform-a", proof.Subject)
	assert.Equal(t, "btm", proof.Component)
}

func TestVerifyProofRejects(t *testing.T) {
	pub, priv, err := GenerateKeypair()
	require.NoError(t, err)
	other, _, err := GenerateKeypair()
	require.NoError(t, err)
	now := time.Unix(1_800_000_000, 0)
	signed, err := MintProof("platform-a", "platform-b", "btm", priv, now, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name     string
		audience string
		key      []byte
		at       time.Time
	}{
		{"wrong audience", "platform-c", pub, now},
		{"wrong key", "platform-b", other, now},
		{"expired", "platform-b", pub, now.Add(2 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyProof(signed, tt.audience, tt.key, tt.at)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestProofSubjectGarbage(t *testing.T) {
	_, err := ProofSubject("garbage")
	assert.ErrorIs(t, err, models.ErrValidation)
}
