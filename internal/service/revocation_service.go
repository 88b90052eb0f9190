package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Cheertaboi/bartering-trading-manager/internal/codec"
	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// CredentialTypeAdmin is the only credential type allowed to revoke.
const CredentialTypeAdmin = "ADMIN"

// AdminCredentials are the owner credentials; PasswordHash is bcrypt.
type AdminCredentials struct {
	Username     string
	PasswordHash []byte
}

// CouponRevoker marks a coupon REVOKED and reports whether it was known.
type CouponRevoker interface {
	Revoke(ctx context.Context, key models.CouponKey) (bool, error)
}

// WalletRevoker revokes the platform's wallet copy of a coupon.
type WalletRevoker struct {
	Wallet WalletStore
}

func (w WalletRevoker) Revoke(ctx context.Context, key models.CouponKey) (bool, error) {
	return w.Wallet.UpdateStatus(ctx, key, models.StatusRevoked)
}

// RevocationService is the administrative revoke path. It never returns
// an error; failures are reported as revoked=false with an HTTP status.
type RevocationService struct {
	admin  AdminCredentials
	keys   KeyResolver
	target CouponRevoker
	options
}

func NewRevocationService(admin AdminCredentials, keys KeyResolver, target CouponRevoker, opts ...Option) *RevocationService {
	return &RevocationService{admin: admin, keys: keys, target: target, options: buildOptions(opts)}
}

func (s *RevocationService) Revoke(ctx context.Context, req models.RevokeRequest) models.RevokeResponse {
	resp := s.revoke(ctx, req)
	result := "revoked"
	if !resp.Revoked {
		result = strings.ToLower(http.StatusText(resp.Status))
	}
	s.metrics.ObserveRevocation(result)
	return resp
}

func (s *RevocationService) revoke(ctx context.Context, req models.RevokeRequest) models.RevokeResponse {
	if !strings.EqualFold(strings.TrimSpace(req.CredentialType), CredentialTypeAdmin) {
		return models.RevokeResponse{Status: http.StatusForbidden}
	}
	if !s.authenticate(req.Username, req.Password) {
		s.log.WithField("username", req.Username).Warn("revocation with bad admin credentials")
		return models.RevokeResponse{Status: http.StatusUnauthorized}
	}

	c, err := codec.Parse(req.Coupon)
	if err != nil {
		return models.RevokeResponse{Status: http.StatusBadRequest}
	}
	log := s.log.WithFields(logrus.Fields{"token_id": c.TokenID, "issuer": c.Issuer})
	pub, err := s.keys.GetPublicKey(ctx, ComponentBTM, c.Issuer)
	switch {
	case errors.Is(err, models.ErrResolution):
		return models.RevokeResponse{Status: http.StatusNotFound}
	case err != nil:
		log.WithError(err).Warn("issuer key lookup failed")
		return models.RevokeResponse{Status: http.StatusBadGateway}
	}
	if !codec.VerifySignature(req.Coupon, pub) {
		return models.RevokeResponse{Status: http.StatusBadRequest}
	}

	revoked, err := s.target.Revoke(ctx, c.Key())
	if err != nil {
		log.WithError(err).Error("revocation failed")
		return models.RevokeResponse{Status: http.StatusInternalServerError}
	}
	if !revoked {
		return models.RevokeResponse{Status: http.StatusNotFound}
	}
	return models.RevokeResponse{Revoked: true, Status: http.StatusOK}
}

// authenticate compares the username in constant time and verifies the
// password against the bcrypt hash.
func (s *RevocationService) authenticate(username, password string) bool {
	if s.admin.Username == "" || len(s.admin.PasswordHash) == 0 {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.admin.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.admin.PasswordHash, []byte(password))
	return userOK && passErr == nil
}
