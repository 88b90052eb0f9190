// Package codec encodes coupons and identity proofs as compact EdDSA
// signed JWTs.
package codec

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// couponClaims is the wire form of models.Coupon. The registered claims
// carry tokenId (jti), issuer (iss) and issuedAt (iat).
type couponClaims struct {
	CouponType     models.CouponType `json:"ctp"`
	MaxUsage       int64             `json:"mau"`
	FederationID   string            `json:"fid"`
	KeyFingerprint string            `json:"ipk"`
	jwt.RegisteredClaims
}

var validMethods = []string{jwt.SigningMethodEdDSA.Alg()}

// Fingerprint returns the hex blake3 digest of the key's PKIX encoding.
func Fingerprint(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("codec: marshal public key: %w", err)
	}
	sum := blake3.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}

// Mint signs a new coupon with a fresh random token id. The fingerprint
// of the signing key's public half is embedded in the claims.
func Mint(couponType models.CouponType, maxUsage int64, issuer, federationID string, key ed25519.PrivateKey, now time.Time) (string, models.Coupon, error) {
	if !couponType.Valid() {
		return "", models.Coupon{}, fmt.Errorf("%w: coupon type %q cannot be minted", models.ErrInvalidRequest, couponType)
	}
	if maxUsage <= 0 {
		return "", models.Coupon{}, fmt.Errorf("%w: maximum allowed usage must be positive", models.ErrInvalidRequest)
	}
	if issuer == "" || federationID == "" {
		return "", models.Coupon{}, fmt.Errorf("%w: issuer and federation id are required", models.ErrInvalidRequest)
	}
	fp, err := Fingerprint(key.Public().(ed25519.PublicKey))
	if err != nil {
		return "", models.Coupon{}, err
	}
	claims := couponClaims{
		CouponType:     couponType,
		MaxUsage:       maxUsage,
		FederationID:   federationID,
		KeyFingerprint: fp,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	if err != nil {
		return "", models.Coupon{}, fmt.Errorf("codec: sign coupon: %w", err)
	}
	return signed, claims.coupon(), nil
}

// Parse decodes the claims without checking the signature. It fails with
// ErrMalformedCoupon when the encoding or a required claim is missing.
func Parse(signed string) (models.Coupon, error) {
	var claims couponClaims
	if _, _, err := jwt.NewParser(jwt.WithValidMethods(validMethods)).ParseUnverified(strings.TrimSpace(signed), &claims); err != nil {
		return models.Coupon{}, fmt.Errorf("%w: %v", models.ErrMalformedCoupon, err)
	}
	if err := claims.check(); err != nil {
		return models.Coupon{}, err
	}
	return claims.coupon(), nil
}

// VerifySignature reports whether signed carries a valid signature from pub.
func VerifySignature(signed string, pub ed25519.PublicKey) bool {
	_, err := parseVerified(signed, pub)
	return err == nil
}

// ParseVerified decodes the claims and checks the signature against pub.
func ParseVerified(signed string, pub ed25519.PublicKey) (models.Coupon, error) {
	claims, err := parseVerified(signed, pub)
	if err != nil {
		return models.Coupon{}, err
	}
	return claims.coupon(), nil
}

func parseVerified(signed string, pub ed25519.PublicKey) (*couponClaims, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key has %d bytes, want %d", models.ErrMalformedCoupon, len(pub), ed25519.PublicKeySize)
	}
	var claims couponClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(signed), &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return pub, nil
	}, jwt.WithValidMethods(validMethods))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedCoupon, err)
	}
	if err := claims.check(); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (c *couponClaims) check() error {
	var missing []string
	if c.ID == "" {
		missing = append(missing, "jti")
	}
	if c.Issuer == "" {
		missing = append(missing, "iss")
	}
	if c.IssuedAt == nil {
		missing = append(missing, "iat")
	}
	if c.FederationID == "" {
		missing = append(missing, "fid")
	}
	if c.KeyFingerprint == "" {
		missing = append(missing, "ipk")
	}
	if !c.CouponType.Valid() {
		missing = append(missing, "ctp")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing or invalid claims %s", models.ErrMalformedCoupon, strings.Join(missing, ","))
	}
	return nil
}

func (c *couponClaims) coupon() models.Coupon {
	out := models.Coupon{
		TokenID:        c.ID,
		Issuer:         c.Issuer,
		Type:           c.CouponType,
		MaxUsage:       c.MaxUsage,
		FederationID:   c.FederationID,
		KeyFingerprint: c.KeyFingerprint,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time.UTC()
	}
	return out
}
