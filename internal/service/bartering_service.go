package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Cheertaboi/bartering-trading-manager/internal/codec"
	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// CoreRegistry is the platform's view of the Core coupon registry.
type CoreRegistry interface {
	RegisterCoupon(ctx context.Context, signed string) (bool, error)
	IsCouponValid(ctx context.Context, signed string) (models.CouponValidity, error)
	ConsumeCoupon(ctx context.Context, signed string) (models.CouponStatus, error)
}

// Discovery resolves peers through the identity service.
type Discovery interface {
	KeyResolver
	ResolvePlatformAddress(ctx context.Context, platformID string) (string, error)
}

// PeerCoupons requests coupons from a peer bartering engine.
type PeerCoupons interface {
	GetCoupon(ctx context.Context, address string, req models.GetCouponRequest, proof string) (string, error)
}

type BarteringConfig struct {
	PlatformID string
	SigningKey ed25519.PrivateKey
	ProofTTL   time.Duration
	// RefreshWorkers bounds concurrent Core calls during RefreshWallet.
	RefreshWorkers int
}

type BarteringDeps struct {
	Federations FederationDirectory
	Wallet      WalletStore
	Core        CoreRegistry
	Identity    Discovery
	Peers       PeerCoupons
	Issuer      *IssuerService
	// Policies defaults to DefaultPolicies(Federations).
	Policies PolicySet
}

// BarteringService is the platform's bartering protocol engine. It pays
// peers with coupons on request and collects coupons from them before
// granting access to local resources.
type BarteringService struct {
	cfg BarteringConfig
	BarteringDeps
	options
}

func NewBarteringService(cfg BarteringConfig, deps BarteringDeps, opts ...Option) *BarteringService {
	if deps.Policies == nil {
		deps.Policies = DefaultPolicies(deps.Federations)
	}
	if cfg.ProofTTL <= 0 {
		cfg.ProofTTL = time.Minute
	}
	return &BarteringService{cfg: cfg, BarteringDeps: deps, options: buildOptions(opts)}
}

// AuthorizeAccess collects a coupon from clientPlatform and reports
// whether it pays for access. Declines are false; configuration and
// connectivity faults are errors.
func (s *BarteringService) AuthorizeAccess(ctx context.Context, req models.AuthorizeRequest) (bool, error) {
	if strings.TrimSpace(req.ClientPlatform) == "" || strings.TrimSpace(req.FederationID) == "" {
		return false, fmt.Errorf("%w: client platform and federation id are required", models.ErrInvalidRequest)
	}
	if !req.CouponType.Valid() {
		return false, fmt.Errorf("%w: coupon type %q", models.ErrInvalidRequest, req.CouponType)
	}
	log := s.log.WithFields(logrus.Fields{
		"platform_id":   req.ClientPlatform,
		"federation_id": req.FederationID,
		"resource_id":   req.ResourceID,
	})

	fed, err := s.Federations.Get(ctx, req.FederationID)
	if err != nil {
		return false, err
	}
	if fed == nil {
		return false, fmt.Errorf("%w: unknown federation %s", models.ErrInvalidRequest, req.FederationID)
	}
	if !fed.HasMember(s.cfg.PlatformID) || !fed.HasMember(req.ClientPlatform) {
		s.metrics.ObserveAuthorization("not_member")
		return false, fmt.Errorf("%w: %s and %s are not both members of federation %s",
			models.ErrValidation, s.cfg.PlatformID, req.ClientPlatform, req.FederationID)
	}

	addr, err := s.Identity.ResolvePlatformAddress(ctx, req.ClientPlatform)
	if err != nil {
		return false, err
	}
	proof, err := codec.MintProof(s.cfg.PlatformID, req.ClientPlatform, ComponentBTM, s.cfg.SigningKey, s.now(), s.cfg.ProofTTL)
	if err != nil {
		return false, err
	}
	signed, err := s.Peers.GetCoupon(ctx, addr, models.GetCouponRequest{
		Requester:    s.cfg.PlatformID,
		FederationID: req.FederationID,
		CouponType:   req.CouponType,
	}, proof)
	if err != nil {
		return false, err
	}

	c, err := codec.Parse(signed)
	if err != nil {
		s.metrics.ObserveAuthorization("malformed")
		return false, err
	}
	if c.FederationID != req.FederationID || c.Type != req.CouponType {
		log.WithField("token_id", c.TokenID).Warn("peer returned coupon for another federation or type")
		s.metrics.ObserveAuthorization("mismatch")
		return false, nil
	}

	if c.Issuer == s.cfg.PlatformID {
		status, err := s.Core.ConsumeCoupon(ctx, signed)
		if err != nil {
			return false, err
		}
		if status != models.StatusValid {
			log.WithField("status", status).Info("reclaimed coupon declined")
			s.metrics.ObserveAuthorization("declined")
			return false, nil
		}
		s.metrics.ObserveAuthorization("reclaimed")
		return true, nil
	}

	validity, err := s.Core.IsCouponValid(ctx, signed)
	if err != nil {
		return false, err
	}
	if !validity.Valid() {
		log.WithField("status", validity.Status).Info("peer coupon declined")
		s.metrics.ObserveAuthorization("declined")
		return false, nil
	}
	held, err := s.Wallet.Get(ctx, c.Key())
	if err != nil {
		return false, err
	}
	if held != nil {
		log.WithField("token_id", c.TokenID).Warn("peer replayed a coupon already collected")
		s.metrics.ObserveAuthorization("replayed")
		return false, nil
	}
	if err := s.Wallet.Save(ctx, &models.StoredCoupon{
		Coupon:    c,
		Signed:    strings.TrimSpace(signed),
		Status:    models.StatusValid,
		Origin:    models.OriginReceived,
		IssuedFor: s.cfg.PlatformID,
	}); err != nil {
		return false, err
	}
	s.metrics.ObserveAuthorization("granted")
	log.WithField("token_id", c.TokenID).Info("access granted for peer coupon")
	return true, nil
}

// GetCoupon hands a peer a coupon to pay with. Coupons the peer issued
// and this platform still holds go back first, so the peer consumes its
// own budget; otherwise a fresh coupon is minted and registered. A minted
// coupon is handed out once.
func (s *BarteringService) GetCoupon(ctx context.Context, req models.GetCouponRequest, proof string) (string, error) {
	if strings.TrimSpace(req.Requester) == "" || strings.TrimSpace(req.FederationID) == "" {
		return "", fmt.Errorf("%w: requester and federation id are required", models.ErrInvalidRequest)
	}
	if !req.CouponType.Valid() {
		return "", fmt.Errorf("%w: coupon type %q", models.ErrInvalidRequest, req.CouponType)
	}
	verified, err := s.verifyProof(ctx, req.Requester, proof)
	if err != nil {
		return "", err
	}
	if err := s.Policies.Authorize(ctx, AccessRequest{
		Requester:    req.Requester,
		FederationID: req.FederationID,
		CouponType:   req.CouponType,
		Proof:        verified,
	}); err != nil {
		return "", err
	}
	log := s.log.WithFields(logrus.Fields{"platform_id": req.Requester, "federation_id": req.FederationID})

	// Pay with the requester's own coupons first so it can reclaim them.
	candidates, err := s.Wallet.FindReceived(ctx, req.Requester, req.CouponType, req.FederationID)
	if err != nil {
		return "", err
	}
	for _, sc := range candidates {
		validity, err := s.Core.IsCouponValid(ctx, sc.Signed)
		if err != nil {
			return "", err
		}
		if validity.Valid() {
			s.metrics.ObserveCouponServed("wallet")
			log.WithField("token_id", sc.TokenID).Debug("returning requester's coupon")
			return sc.Signed, nil
		}
		if err := s.downgrade(ctx, sc, validity.Status); err != nil {
			return "", err
		}
		log.WithFields(logrus.Fields{"token_id": sc.TokenID, "status": validity.Status}).Debug("received coupon dropped")
	}

	sc, err := s.Issuer.Issue(ctx, models.IssueRequest{
		CouponType:   req.CouponType,
		FederationID: req.FederationID,
		IssuedFor:    req.Requester,
	})
	if err != nil {
		return "", fmt.Errorf("%w: issue coupon: %w", models.ErrBartering, err)
	}
	accepted, err := s.Core.RegisterCoupon(ctx, sc.Signed)
	if err == nil && !accepted {
		err = errors.New("registration rejected by core")
	}
	if err != nil {
		if derr := s.Wallet.Delete(ctx, sc.Key()); derr != nil {
			log.WithError(derr).Warn("failed to drop unregistered coupon from wallet")
		}
		return "", fmt.Errorf("%w: register coupon %s: %w", models.ErrBartering, sc.TokenID, err)
	}
	s.metrics.ObserveCouponServed("minted")
	log.WithField("token_id", sc.TokenID).Info("minted coupon for peer")
	return sc.Signed, nil
}

func (s *BarteringService) verifyProof(ctx context.Context, requester, proof string) (codec.Proof, error) {
	proof = strings.TrimSpace(proof)
	if proof == "" {
		return codec.Proof{}, fmt.Errorf("%w: identity proof is required", models.ErrValidation)
	}
	subject, err := codec.ProofSubject(proof)
	if err != nil {
		return codec.Proof{}, err
	}
	if subject != requester {
		return codec.Proof{}, fmt.Errorf("%w: proof subject %s does not match requester %s", models.ErrValidation, subject, requester)
	}
	pub, err := s.Identity.GetPublicKey(ctx, ComponentBTM, subject)
	if err != nil {
		return codec.Proof{}, err
	}
	return codec.VerifyProof(proof, s.cfg.PlatformID, pub, s.now())
}
