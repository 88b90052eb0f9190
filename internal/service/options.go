package service

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Cheertaboi/bartering-trading-manager/internal/metrics"
	"github.com/Cheertaboi/bartering-trading-manager/pkg/logger"
)

// ComponentBTM is the component role under which platforms publish their
// coupon signing keys.
const ComponentBTM = "btm"

// KeyResolver looks up the public key a platform published for a role.
type KeyResolver interface {
	GetPublicKey(ctx context.Context, role, platformID string) (ed25519.PublicKey, error)
}

type options struct {
	log     logrus.FieldLogger
	metrics *metrics.BTMMetrics
	now     func() time.Time
}

// Option configures a service.
type Option func(*options)

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

func WithMetrics(m *metrics.BTMMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{log: logger.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) nowMillis() int64 {
	return o.now().UnixMilli()
}
