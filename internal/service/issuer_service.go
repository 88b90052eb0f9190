package service

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Cheertaboi/bartering-trading-manager/internal/codec"
	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// WalletStore is the platform wallet.
type WalletStore interface {
	Save(ctx context.Context, sc *models.StoredCoupon) error
	Get(ctx context.Context, key models.CouponKey) (*models.StoredCoupon, error)
	FindReceived(ctx context.Context, issuer string, couponType models.CouponType, federationID string) ([]models.StoredCoupon, error)
	ListByStatus(ctx context.Context, status models.CouponStatus) ([]models.StoredCoupon, error)
	UpdateStatus(ctx context.Context, key models.CouponKey, status models.CouponStatus) (bool, error)
	Delete(ctx context.Context, key models.CouponKey) error
}

type IssuerConfig struct {
	PlatformID       string
	SigningKey       ed25519.PrivateKey
	DiscreteUsages   int64
	PeriodicValidity time.Duration
}

// IssuerService mints coupons signed by this platform and keeps them in
// the wallet.
type IssuerService struct {
	cfg    IssuerConfig
	wallet WalletStore
	options
}

func NewIssuerService(cfg IssuerConfig, wallet WalletStore, opts ...Option) *IssuerService {
	return &IssuerService{cfg: cfg, wallet: wallet, options: buildOptions(opts)}
}

// Issue mints a coupon of the requested type for the federation and saves
// it as a locally owned wallet entry.
func (s *IssuerService) Issue(ctx context.Context, req models.IssueRequest) (*models.StoredCoupon, error) {
	if strings.TrimSpace(req.FederationID) == "" {
		return nil, fmt.Errorf("%w: federation id is required", models.ErrInvalidRequest)
	}
	maxUsage, err := s.budgetFor(req.CouponType)
	if err != nil {
		return nil, err
	}

	signed, c, err := codec.Mint(req.CouponType, maxUsage, s.cfg.PlatformID, req.FederationID, s.cfg.SigningKey, s.now())
	if err != nil {
		return nil, err
	}
	sc := &models.StoredCoupon{
		Coupon:    c,
		Signed:    signed,
		Status:    models.StatusValid,
		Origin:    models.OriginLocal,
		IssuedFor: req.IssuedFor,
	}
	if err := s.wallet.Save(ctx, sc); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"token_id":      c.TokenID,
		"federation_id": c.FederationID,
		"coupon_type":   c.Type,
		"issued_for":    req.IssuedFor,
	}).Info("coupon issued")
	return sc, nil
}

func (s *IssuerService) budgetFor(t models.CouponType) (int64, error) {
	var budget int64
	switch t {
	case models.CouponTypeDiscrete:
		budget = s.cfg.DiscreteUsages
	case models.CouponTypePeriodic:
		budget = s.cfg.PeriodicValidity.Milliseconds()
	default:
		return 0, fmt.Errorf("%w: coupon type %q cannot be issued", models.ErrInvalidRequest, t)
	}
	if budget <= 0 {
		return 0, fmt.Errorf("%w: no positive validity configured for %s coupons", models.ErrInvalidRequest, t)
	}
	return budget, nil
}
