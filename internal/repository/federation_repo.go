package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// FederationRepo is the federation directory kept current by the
// federation sync listener.
type FederationRepo struct {
	db *gorm.DB
}

func NewFederationRepo(db *gorm.DB) *FederationRepo {
	return &FederationRepo{db: db}
}

// Get returns the federation with its members, or nil when unknown.
func (r *FederationRepo) Get(ctx context.Context, id string) (*models.Federation, error) {
	var f models.Federation
	err := r.db.WithContext(ctx).Preload("Members").Where("id = ?", id).Take(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (r *FederationRepo) List(ctx context.Context) ([]models.Federation, error) {
	var out []models.Federation
	if err := r.db.WithContext(ctx).Preload("Members").Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list federations: %w", err)
	}
	return out, nil
}

// Upsert replaces the federation and its member set. Duplicate member ids
// reject the whole update.
func (r *FederationRepo) Upsert(ctx context.Context, f models.Federation) error {
	if strings.TrimSpace(f.ID) == "" {
		return fmt.Errorf("%w: federation id is required", models.ErrInvalidRequest)
	}
	if dups := f.DuplicateMembers(); len(dups) > 0 {
		return fmt.Errorf("%w: duplicate federation members %s", models.ErrValidation, strings.Join(dups, ","))
	}
	members := make([]models.FederationMember, 0, len(f.Members))
	for _, m := range f.Members {
		if strings.TrimSpace(m.PlatformID) == "" {
			return fmt.Errorf("%w: empty platform id in federation %s", models.ErrValidation, f.ID)
		}
		members = append(members, models.FederationMember{FederationID: f.ID, PlatformID: m.PlatformID})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("federation_id = ?", f.ID).Delete(&models.FederationMember{}).Error; err != nil {
			return fmt.Errorf("clear members: %w", err)
		}
		row := models.Federation{ID: f.ID}
		err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("save federation: %w", err)
		}
		if len(members) == 0 {
			return nil
		}
		if err := tx.Create(&members).Error; err != nil {
			return fmt.Errorf("insert members: %w", err)
		}
		return nil
	})
}

// Delete removes the federation and reports whether it existed.
func (r *FederationRepo) Delete(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("federation_id = ?", id).Delete(&models.FederationMember{}).Error; err != nil {
			return fmt.Errorf("clear members: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&models.Federation{})
		if res.Error != nil {
			return fmt.Errorf("delete federation: %w", res.Error)
		}
		removed = res.RowsAffected > 0
		return nil
	})
	return removed, err
}
