package repository

import (
	"gorm.io/gorm"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// AutoMigrate creates the tables used by both roles. A core node only
// touches registered_coupons and a platform node the other three.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.RegisteredCoupon{},
		&models.StoredCoupon{},
		&models.Federation{},
		&models.FederationMember{},
	)
}
