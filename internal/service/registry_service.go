package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Cheertaboi/bartering-trading-manager/internal/codec"
	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
	"github.com/Cheertaboi/bartering-trading-manager/internal/repository"
)

// RegistryStore is the Core coupon store (use interfaces to allow mocking).
type RegistryStore interface {
	Create(ctx context.Context, rc *models.RegisteredCoupon) error
	Mutate(ctx context.Context, key models.CouponKey, fn repository.MutateFunc) error
	DeleteConsumedBefore(ctx context.Context, beforeMillis int64) (int64, error)
}

// RegistryService is the Core coupon registry. Every read-modify-write of
// a record happens inside one RegistryStore.Mutate call so concurrent
// consumers of the same coupon are serialized.
type RegistryService struct {
	store RegistryStore
	keys  KeyResolver
	options
}

func NewRegistryService(store RegistryStore, keys KeyResolver, opts ...Option) *RegistryService {
	return &RegistryService{store: store, keys: keys, options: buildOptions(opts)}
}

// Register stores a new VALID record for signed after checking that it
// was signed by the key the identity service holds for its issuer.
func (s *RegistryService) Register(ctx context.Context, signed string) (bool, error) {
	signed = strings.TrimSpace(signed)
	c, err := codec.Parse(signed)
	if err != nil {
		s.metrics.ObserveRegistration("malformed")
		return false, fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	if c.MaxUsage <= 0 {
		s.metrics.ObserveRegistration("invalid")
		return false, fmt.Errorf("%w: maximum allowed usage must be positive", models.ErrValidation)
	}

	log := s.log.WithFields(logrus.Fields{"token_id": c.TokenID, "issuer": c.Issuer})
	pub, err := s.keys.GetPublicKey(ctx, ComponentBTM, c.Issuer)
	if err != nil {
		s.metrics.ObserveRegistration("error")
		return false, err
	}
	fp, err := codec.Fingerprint(pub)
	if err != nil {
		return false, err
	}
	if fp != c.KeyFingerprint || !codec.VerifySignature(signed, pub) {
		log.Warn("coupon not signed by issuer's published key")
		s.metrics.ObserveRegistration("invalid")
		return false, fmt.Errorf("%w: coupon %s is not signed by issuer key", models.ErrValidation, c.Key())
	}

	if err := s.store.Create(ctx, models.NewRegisteredCoupon(c, signed)); err != nil {
		s.metrics.ObserveRegistration("rejected")
		return false, err
	}
	s.metrics.ObserveRegistration("accepted")
	log.WithField("federation_id", c.FederationID).Info("coupon registered")
	return true, nil
}

// IsValid reports the coupon's validity, persisting an observed PERIODIC
// expiry.
func (s *RegistryService) IsValid(ctx context.Context, signed string) (models.CouponValidity, error) {
	var out models.CouponValidity
	err := s.withRecord(ctx, signed, func(rc *models.RegisteredCoupon, now int64) bool {
		dirty := rc.Refresh(now)
		out = rc.Validity(now)
		return dirty
	}, &out)
	if err != nil {
		return models.CouponValidity{}, err
	}
	s.metrics.ObserveValidation(out.Status)
	return out, nil
}

// Consume records one use of the coupon if it is VALID and returns the
// status observed before the use. Non-VALID coupons are left untouched.
func (s *RegistryService) Consume(ctx context.Context, signed string) (models.CouponStatus, error) {
	var out models.CouponValidity
	err := s.withRecord(ctx, signed, func(rc *models.RegisteredCoupon, now int64) bool {
		dirty := rc.Refresh(now)
		out = rc.Validity(now)
		if !out.Valid() {
			return dirty
		}
		rc.Consume(now)
		return true
	}, &out)
	if err != nil {
		return "", err
	}
	s.metrics.ObserveConsumption(out.Status)
	return out.Status, nil
}

// withRecord runs fn on the locked record matching signed. Missing and
// mismatching records are answered in miss without calling fn.
func (s *RegistryService) withRecord(ctx context.Context, signed string, fn func(rc *models.RegisteredCoupon, now int64) bool, miss *models.CouponValidity) error {
	signed = strings.TrimSpace(signed)
	c, err := codec.Parse(signed)
	if err != nil {
		return err
	}
	return s.store.Mutate(ctx, c.Key(), func(rc *models.RegisteredCoupon) (bool, error) {
		switch {
		case rc == nil:
			*miss = models.CouponValidity{Status: models.StatusNotRegistered}
			return false, nil
		case rc.Signed != signed:
			*miss = models.CouponValidity{Status: models.StatusDBMismatch}
			return false, nil
		}
		return fn(rc, s.nowMillis()), nil
	})
}

// Cleanup deletes CONSUMED records last used before beforeMillis.
func (s *RegistryService) Cleanup(ctx context.Context, beforeMillis int64) (int64, error) {
	n, err := s.store.DeleteConsumedBefore(ctx, beforeMillis)
	if err != nil {
		return 0, err
	}
	s.metrics.ObserveCleanup(n)
	if n > 0 {
		s.log.WithField("removed", n).Info("consumed coupons cleaned up")
	}
	return n, nil
}

// Revoke marks the record REVOKED whatever its state. It reports false
// when no record exists.
func (s *RegistryService) Revoke(ctx context.Context, key models.CouponKey) (bool, error) {
	var found bool
	err := s.store.Mutate(ctx, key, func(rc *models.RegisteredCoupon) (bool, error) {
		if rc == nil {
			return false, nil
		}
		found = true
		if rc.Status == models.StatusRevoked {
			return false, nil
		}
		rc.Status = models.StatusRevoked
		return true, nil
	})
	if err != nil {
		return false, err
	}
	if found {
		s.log.WithFields(logrus.Fields{"token_id": key.TokenID, "issuer": key.Issuer}).Info("coupon revoked")
	}
	return found, nil
}
