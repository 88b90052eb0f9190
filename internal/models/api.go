package models

import (
	"errors"
	"fmt"
)

// Request / response bodies shared by the HTTP handlers and clients.

type CouponRequest struct {
	Coupon string `json:"coupon" validate:"required"`
}

type RegisterResponse struct {
	Accepted bool `json:"accepted"`
}

type ConsumeResponse struct {
	Status CouponStatus `json:"status"`
}

type CleanupRequest struct {
	Before int64 `json:"before" validate:"required,gt=0"`
}

type CleanupResponse struct {
	Removed int64 `json:"removed"`
}

type RevokeRequest struct {
	CredentialType string `json:"credentialType" validate:"required"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	Coupon         string `json:"coupon" validate:"required"`
}

type RevokeResponse struct {
	Revoked bool `json:"revoked"`
	Status  int  `json:"status"`
}

// GetCouponRequest is sent by a peer engine. The identity proof travels
// in the Authorization header.
type GetCouponRequest struct {
	Requester    string     `json:"requester" validate:"required"`
	FederationID string     `json:"federationId" validate:"required"`
	CouponType   CouponType `json:"couponType" validate:"required"`
}

type GetCouponResponse struct {
	Coupon string `json:"coupon"`
}

type AuthorizeRequest struct {
	ClientPlatform string     `json:"clientPlatform" validate:"required"`
	FederationID   string     `json:"federationId" validate:"required"`
	ResourceID     string     `json:"resourceId"`
	CouponType     CouponType `json:"couponType" validate:"required"`
}

type AuthorizeResponse struct {
	Authorized bool `json:"authorized"`
}

type IssueRequest struct {
	CouponType   CouponType `json:"couponType" validate:"required"`
	FederationID string     `json:"federationId" validate:"required"`
	IssuedFor    string     `json:"issuedFor"`
}

type FederationRequest struct {
	Members []string `json:"members"`
}

type FederationResponse struct {
	FederationID string   `json:"federationId"`
	Members      []string `json:"members"`
}

type PeersResponse struct {
	Addresses []string `json:"addresses"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

var errorCodes = []struct {
	code string
	err  error
}{
	{"malformed_coupon", ErrMalformedCoupon},
	{"duplicate_coupon", ErrDuplicateCoupon},
	{"invalid_request", ErrInvalidRequest},
	{"validation_failed", ErrValidation},
	{"bartering_failed", ErrBartering},
	{"resolution_failed", ErrResolution},
	{"communication_failure", ErrCommunication},
	{"not_found", ErrNotFound},
}

// ErrorCode returns the wire code for err, or "internal_error".
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal_error"
}

// ErrorFromCode rebuilds a sentinel-wrapped error from a wire code.
// Unknown codes map to ErrCommunication since the remote side failed.
func ErrorFromCode(code, detail string) error {
	for _, ec := range errorCodes {
		if ec.code == code {
			return fmt.Errorf("%w: remote: %s", ec.err, detail)
		}
	}
	return fmt.Errorf("%w: remote %s: %s", ErrCommunication, code, detail)
}
