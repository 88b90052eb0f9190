package codec

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// Proof is a verified identity proof: the requester platform signed a
// short-lived token addressed to the audience platform.
type Proof struct {
	Subject   string
	Audience  string
	Component string
	ExpiresAt time.Time
}

type proofClaims struct {
	Component string `json:"cmp"`
	jwt.RegisteredClaims
}

// MintProof signs an identity proof for subject addressed to audience.
func MintProof(subject, audience, component string, key ed25519.PrivateKey, now time.Time, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	claims := proofClaims{
		Component: component,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("codec: sign proof: %w", err)
	}
	return signed, nil
}

// ProofSubject returns the unverified subject so the verifier can look up
// the right public key.
func ProofSubject(signed string) (string, error) {
	var claims proofClaims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(signed), &claims); err != nil {
		return "", fmt.Errorf("%w: identity proof: %v", models.ErrValidation, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: identity proof has no subject", models.ErrValidation)
	}
	return claims.Subject, nil
}

// VerifyProof checks signature, expiry and audience of an identity proof.
func VerifyProof(signed, audience string, pub ed25519.PublicKey, now time.Time) (Proof, error) {
	var claims proofClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(signed), &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return pub, nil
	},
		jwt.WithValidMethods(validMethods),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return Proof{}, fmt.Errorf("%w: identity proof: %v", models.ErrValidation, err)
	}
	return Proof{
		Subject:   claims.Subject,
		Audience:  audience,
		Component: claims.Component,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
