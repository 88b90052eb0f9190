package service

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Cheertaboi/bartering-trading-manager/internal/concurrency"
	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// RefreshReport summarizes one wallet refresh pass.
type RefreshReport struct {
	Checked    int
	Downgraded int
	Deleted    int
	Failed     int
}

// RefreshWallet re-validates every VALID wallet coupon against the Core.
// Downgraded local coupons keep their new status; received coupons the
// Core no longer reports VALID are dropped.
func (s *BarteringService) RefreshWallet(ctx context.Context) (RefreshReport, error) {
	coupons, err := s.Wallet.ListByStatus(ctx, models.StatusValid)
	if err != nil {
		return RefreshReport{}, err
	}

	var (
		mu     sync.Mutex
		report = RefreshReport{Checked: len(coupons)}
	)
	concurrency.SimpleWorkerPool(ctx, s.cfg.RefreshWorkers, len(coupons), func(ctx context.Context, i int) {
		sc := coupons[i]
		log := s.log.WithFields(logrus.Fields{"token_id": sc.TokenID, "issuer": sc.Issuer})
		validity, err := s.Core.IsCouponValid(ctx, sc.Signed)
		if err == nil && validity.Valid() {
			return
		}
		if err == nil {
			err = s.downgrade(ctx, sc, validity.Status)
		}

		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			log.WithError(err).Warn("wallet refresh failed")
			report.Failed++
		case sc.Origin == models.OriginReceived:
			report.Deleted++
		default:
			report.Downgraded++
		}
	})
	if report.Downgraded+report.Deleted > 0 {
		s.log.WithFields(logrus.Fields{
			"checked":    report.Checked,
			"downgraded": report.Downgraded,
			"deleted":    report.Deleted,
		}).Info("wallet refreshed")
	}
	return report, ctx.Err()
}

func (s *BarteringService) downgrade(ctx context.Context, sc models.StoredCoupon, status models.CouponStatus) error {
	s.metrics.ObserveWalletDowngrade(status)
	if sc.Origin == models.OriginReceived {
		return s.Wallet.Delete(ctx, sc.Key())
	}
	_, err := s.Wallet.UpdateStatus(ctx, sc.Key(), status)
	return err
}
