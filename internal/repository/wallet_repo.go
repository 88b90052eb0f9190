package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// WalletRepo persists the coupons a platform holds for bartering.
type WalletRepo struct {
	db *gorm.DB
}

func NewWalletRepo(db *gorm.DB) *WalletRepo {
	return &WalletRepo{db: db}
}

// Save inserts or replaces the entry for the coupon's key.
func (r *WalletRepo) Save(ctx context.Context, sc *models.StoredCoupon) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(sc).Error
	if err != nil {
		return fmt.Errorf("save wallet coupon: %w", err)
	}
	return nil
}

func (r *WalletRepo) Get(ctx context.Context, key models.CouponKey) (*models.StoredCoupon, error) {
	var sc models.StoredCoupon
	err := r.db.WithContext(ctx).
		Where("token_id = ? AND issuer = ?", key.TokenID, key.Issuer).
		Take(&sc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sc, nil
}

// FindReceived returns coupons received from issuer under
// (couponType, federationID) whose cached status is VALID, oldest first.
// These are what the platform owes back to issuer.
func (r *WalletRepo) FindReceived(ctx context.Context, issuer string, couponType models.CouponType, federationID string) ([]models.StoredCoupon, error) {
	var out []models.StoredCoupon
	err := r.db.WithContext(ctx).
		Where("issuer = ? AND type = ? AND federation_id = ? AND status = ? AND origin = ?",
			issuer, couponType, federationID, models.StatusValid, models.OriginReceived).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("find received coupons: %w", err)
	}
	return out, nil
}

// ListByStatus returns every entry with the given cached status.
func (r *WalletRepo) ListByStatus(ctx context.Context, status models.CouponStatus) ([]models.StoredCoupon, error) {
	var out []models.StoredCoupon
	if err := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list wallet coupons: %w", err)
	}
	return out, nil
}

// UpdateStatus sets the cached status and reports whether the entry exists.
func (r *WalletRepo) UpdateStatus(ctx context.Context, key models.CouponKey, status models.CouponStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.StoredCoupon{}).
		Where("token_id = ? AND issuer = ?", key.TokenID, key.Issuer).
		Update("status", status)
	if res.Error != nil {
		return false, fmt.Errorf("update wallet coupon: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *WalletRepo) Delete(ctx context.Context, key models.CouponKey) error {
	err := r.db.WithContext(ctx).
		Where("token_id = ? AND issuer = ?", key.TokenID, key.Issuer).
		Delete(&models.StoredCoupon{}).Error
	if err != nil {
		return fmt.Errorf("delete wallet coupon: %w", err)
	}
	return nil
}
