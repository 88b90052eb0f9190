package models

import "errors"

// Error kinds. Call sites wrap these with fmt.Errorf("%w: ...") and
// callers branch with errors.Is. A declined coupon is never one of these;
// it is reported through CouponValidity or a false result.
var (
	// ErrMalformedCoupon: the encoding, signature or required claims are bad.
	ErrMalformedCoupon = errors.New("malformed coupon")
	// ErrValidation: the request or a claim is semantically invalid.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateCoupon: a coupon with the same (tokenId, issuer) is registered.
	ErrDuplicateCoupon = errors.New("duplicate coupon")
	// ErrResolution: a platform or key is unknown to the identity service.
	ErrResolution = errors.New("resolution failed")
	// ErrCommunication: a downstream service is unreachable or failing.
	ErrCommunication = errors.New("communication failure")
	// ErrInvalidRequest: a required field or referenced federation is missing.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrBartering: a coupon could not be produced for a peer.
	ErrBartering = errors.New("bartering failed")
	// ErrNotFound: the record does not exist.
	ErrNotFound = errors.New("not found")
)

// Retryable reports whether err comes from a downstream fault rather than
// from the request itself.
func Retryable(err error) bool {
	return errors.Is(err, ErrCommunication) || errors.Is(err, ErrResolution)
}
