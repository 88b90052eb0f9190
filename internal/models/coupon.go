package models

import (
	"fmt"
	"strings"
	"time"
)

// CouponType selects how a coupon's MaxUsage budget is interpreted.
type CouponType string

const (
	CouponTypeNone     CouponType = "NONE"
	CouponTypeDiscrete CouponType = "DISCRETE"
	CouponTypePeriodic CouponType = "PERIODIC"
)

// ParseCouponType accepts the type names case-insensitively.
func ParseCouponType(s string) (CouponType, error) {
	switch t := CouponType(strings.ToUpper(strings.TrimSpace(s))); t {
	case CouponTypeDiscrete, CouponTypePeriodic, CouponTypeNone:
		return t, nil
	default:
		return CouponTypeNone, fmt.Errorf("%w: unknown coupon type %q", ErrInvalidRequest, s)
	}
}

// Valid reports whether coupons of this type can be issued.
func (t CouponType) Valid() bool {
	return t == CouponTypeDiscrete || t == CouponTypePeriodic
}

// CouponStatus is both the registry's stored state (VALID, CONSUMED,
// REVOKED) and the outcome of a validity query, which adds
// COUPON_NOT_REGISTERED and DB_MISMATCH.
type CouponStatus string

const (
	StatusValid         CouponStatus = "VALID"
	StatusConsumed      CouponStatus = "CONSUMED"
	StatusRevoked       CouponStatus = "REVOKED"
	StatusNotRegistered CouponStatus = "COUPON_NOT_REGISTERED"
	StatusDBMismatch    CouponStatus = "DB_MISMATCH"
)

// Coupon is the immutable claim set carried inside a signed coupon.
// TokenID + Issuer identify a coupon for all time.
type Coupon struct {
	TokenID        string     `json:"tokenId" gorm:"primaryKey;size:64"`
	Issuer         string     `json:"issuer" gorm:"primaryKey;size:128"`
	Type           CouponType `json:"couponType" gorm:"size:16;index"`
	MaxUsage       int64      `json:"maximumAllowedUsage" gorm:"not null"`
	FederationID   string     `json:"federationId" gorm:"size:128;index"`
	KeyFingerprint string     `json:"issuerPublicKeyFingerprint" gorm:"size:128"`
	IssuedAt       time.Time  `json:"issuedAt"`
}

// CouponKey is the registry key of a coupon.
type CouponKey struct {
	TokenID string
	Issuer  string
}

func (k CouponKey) String() string {
	return k.Issuer + "/" + k.TokenID
}

// Key returns the (tokenId, issuer) pair.
func (c Coupon) Key() CouponKey {
	return CouponKey{TokenID: c.TokenID, Issuer: c.Issuer}
}

// RegisteredCoupon is the Core registry's record. Only the registry
// mutates the counters and status.
type RegisteredCoupon struct {
	Coupon `gorm:"embedded"`

	// Signed is the verbatim signed representation presented at registration.
	Signed                   string       `gorm:"type:text;not null"`
	UsagesCounter            int64        `gorm:"not null;default:0"`
	FirstUseTimestamp        int64        `gorm:"not null;default:0"`
	LastConsumptionTimestamp int64        `gorm:"not null;default:0;index"`
	Status                   CouponStatus `gorm:"size:32;index"`
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

func (RegisteredCoupon) TableName() string { return "registered_coupons" }

// NewRegisteredCoupon builds a fresh VALID record with zeroed counters.
func NewRegisteredCoupon(c Coupon, signed string) *RegisteredCoupon {
	return &RegisteredCoupon{Coupon: c, Signed: signed, Status: StatusValid}
}

// Refresh applies expiry detection at nowMillis and reports whether the
// record changed.
func (rc *RegisteredCoupon) Refresh(nowMillis int64) bool {
	if rc.Status != StatusValid {
		return false
	}
	if rc.Type.Budget().Expired(rc, nowMillis) {
		rc.Status = StatusConsumed
		return true
	}
	return false
}

// Validity reports the record's validity at nowMillis. Callers are
// expected to Refresh first.
func (rc *RegisteredCoupon) Validity(nowMillis int64) CouponValidity {
	if rc.Status != StatusValid {
		return CouponValidity{Status: rc.Status}
	}
	return rc.Type.Budget().Remaining(rc, nowMillis)
}

// Consume records one use at nowMillis.
func (rc *RegisteredCoupon) Consume(nowMillis int64) {
	if rc.FirstUseTimestamp == 0 {
		rc.FirstUseTimestamp = nowMillis
	}
	rc.LastConsumptionTimestamp = nowMillis
	rc.UsagesCounter++
	if rc.Type.Budget().Exhausted(rc) {
		rc.Status = StatusConsumed
	}
}

// CouponOrigin tells whether a wallet coupon was minted here or received
// from a peer.
type CouponOrigin string

const (
	OriginLocal    CouponOrigin = "LOCAL"
	OriginReceived CouponOrigin = "RECEIVED"
)

// StoredCoupon is a platform wallet entry. Status mirrors the last
// validity the Core reported and is refreshed lazily.
type StoredCoupon struct {
	Coupon `gorm:"embedded"`

	Signed string       `gorm:"type:text;not null"`
	Status CouponStatus `gorm:"size:32;index"`
	Origin CouponOrigin `gorm:"size:16;index"`
	// IssuedFor is the peer platform a locally minted coupon was bartered to.
	IssuedFor string `gorm:"size:128;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (StoredCoupon) TableName() string { return "stored_coupons" }
