package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// RegistryRepo persists the Core registry's RegisteredCoupon records.
type RegistryRepo struct {
	db *gorm.DB
}

func NewRegistryRepo(db *gorm.DB) *RegistryRepo {
	return &RegistryRepo{db: db}
}

// MutateFunc inspects a locked record and reports whether it changed.
// rc is nil when no record exists for the key.
type MutateFunc func(rc *models.RegisteredCoupon) (dirty bool, err error)

// Create inserts a new record, failing with ErrDuplicateCoupon when the
// key is taken.
func (r *RegistryRepo) Create(ctx context.Context, rc *models.RegisteredCoupon) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.RegisteredCoupon{}).
			Where("token_id = ? AND issuer = ?", rc.TokenID, rc.Issuer).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("count coupon: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", models.ErrDuplicateCoupon, rc.Key())
		}
		if err := tx.Create(rc).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", models.ErrDuplicateCoupon, rc.Key())
			}
			return fmt.Errorf("insert coupon: %w", err)
		}
		return nil
	})
}

// Get returns the record or nil when absent.
func (r *RegistryRepo) Get(ctx context.Context, key models.CouponKey) (*models.RegisteredCoupon, error) {
	var rc models.RegisteredCoupon
	err := r.db.WithContext(ctx).
		Where("token_id = ? AND issuer = ?", key.TokenID, key.Issuer).
		Take(&rc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rc, nil
}

// Mutate runs fn against the record while holding its row lock
// (SELECT ... FOR UPDATE) and saves it in the same transaction when fn
// reports a change. Concurrent callers for the same key are serialized.
func (r *RegistryRepo) Mutate(ctx context.Context, key models.CouponKey, fn MutateFunc) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rc models.RegisteredCoupon
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token_id = ? AND issuer = ?", key.TokenID, key.Issuer).
			Take(&rc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_, err = fn(nil)
			return err
		}
		if err != nil {
			return fmt.Errorf("lock coupon: %w", err)
		}

		dirty, err := fn(&rc)
		if err != nil || !dirty {
			return err
		}
		if err := tx.Save(&rc).Error; err != nil {
			return fmt.Errorf("save coupon: %w", err)
		}
		return nil
	})
}

// DeleteConsumedBefore removes CONSUMED records last consumed before the
// given millisecond timestamp and returns how many were removed.
func (r *RegistryRepo) DeleteConsumedBefore(ctx context.Context, beforeMillis int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND last_consumption_timestamp < ?", models.StatusConsumed, beforeMillis).
		Delete(&models.RegisteredCoupon{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete consumed coupons: %w", res.Error)
	}
	return res.RowsAffected, nil
}
