// Package metrics exposes Prometheus collectors for the registry and the
// bartering engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

type BTMMetrics struct {
	registrations    *prometheus.CounterVec
	validations      *prometheus.CounterVec
	consumptions     *prometheus.CounterVec
	revocations      *prometheus.CounterVec
	cleanupRemoved   prometheus.Counter
	authorizations   *prometheus.CounterVec
	couponsServed    *prometheus.CounterVec
	walletDowngrades *prometheus.CounterVec
}

var (
	btmOnce     sync.Once
	btmRegistry *BTMMetrics
)

// BTM returns the process-wide collectors, registering them on first use.
func BTM() *BTMMetrics {
	btmOnce.Do(func() {
		btmRegistry = &BTMMetrics{
			registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "btm_coupon_registrations_total",
				Help: "Coupon registration attempts by result.",
			}, []string{"result"}),
			validations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "btm_coupon_validations_total",
				Help: "Coupon validity checks by reported status.",
			}, []string{"status"}),
			consumptions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "btm_coupon_consumptions_total",
				Help: "Coupon consumption attempts by reported status.",
			}, []string{"status"}),
			revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "btm_coupon_revocations_total",
				Help: "Revocation requests by result.",
			}, []string{"result"}),
			cleanupRemoved: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "btm_coupon_cleanup_removed_total",
				Help: "Consumed coupons removed by the cleanup sweep.",
			}),
			authorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "btm_bartering_authorizations_total",
				Help: "Bartering access authorizations by outcome.",
			}, []string{"outcome"}),
			couponsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "btm_bartering_coupons_served_total",
				Help: "Coupons handed to peers by source.",
			}, []string{"source"}),
			walletDowngrades: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "btm_wallet_downgrades_total",
				Help: "Wallet coupons whose cached status was downgraded, by new status.",
			}, []string{"status"}),
		}
		prometheus.MustRegister(
			btmRegistry.registrations,
			btmRegistry.validations,
			btmRegistry.consumptions,
			btmRegistry.revocations,
			btmRegistry.cleanupRemoved,
			btmRegistry.authorizations,
			btmRegistry.couponsServed,
			btmRegistry.walletDowngrades,
		)
	})
	return btmRegistry
}

func (m *BTMMetrics) ObserveRegistration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

func (m *BTMMetrics) ObserveValidation(status models.CouponStatus) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(string(status)).Inc()
}

func (m *BTMMetrics) ObserveConsumption(status models.CouponStatus) {
	if m == nil {
		return
	}
	m.consumptions.WithLabelValues(string(status)).Inc()
}

func (m *BTMMetrics) ObserveRevocation(result string) {
	if m == nil {
		return
	}
	m.revocations.WithLabelValues(result).Inc()
}

func (m *BTMMetrics) ObserveCleanup(removed int64) {
	if m == nil || removed <= 0 {
		return
	}
	m.cleanupRemoved.Add(float64(removed))
}

func (m *BTMMetrics) ObserveAuthorization(outcome string) {
	if m == nil {
		return
	}
	m.authorizations.WithLabelValues(outcome).Inc()
}

func (m *BTMMetrics) ObserveCouponServed(source string) {
	if m == nil {
		return
	}
	m.couponsServed.WithLabelValues(source).Inc()
}

func (m *BTMMetrics) ObserveWalletDowngrade(status models.CouponStatus) {
	if m == nil {
		return
	}
	m.walletDowngrades.WithLabelValues(string(status)).Inc()
}
