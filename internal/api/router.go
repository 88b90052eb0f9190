package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Cheertaboi/bartering-trading-manager/internal/api/handlers"
	"github.com/Cheertaboi/bartering-trading-manager/internal/api/middleware"
)

// CoreDeps wires the Core registry router. APIKeys are the bearer keys
// platforms present on /registry routes; empty leaves them open.
type CoreDeps struct {
	Registry   handlers.Registry
	Revocation handlers.Revoker
	APIKeys    []string
	Log        logrus.FieldLogger
}

// NewCoreRouter builds the HTTP router for the Core registry role.
func NewCoreRouter(d CoreDeps) http.Handler {
	r := newBaseRouter(d.Log)

	registry := handlers.NewRegistryHandler(d.Registry, d.Log)
	r.Route("/registry/coupons", func(r chi.Router) {
		r.Use(middleware.APIKey(d.APIKeys...))
		r.Post("/", registry.Register)
		r.Post("/validate", registry.Validate)
		r.Post("/consume", registry.Consume)
		r.Post("/cleanup", registry.Cleanup)
	})

	revocation := handlers.NewRevocationHandler(d.Revocation, d.Log)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/revoke", revocation.Revoke)
	})
	return r
}

// PlatformDeps wires the platform router.
type PlatformDeps struct {
	PlatformID  string
	Engine      handlers.BarteringEngine
	Issuer      handlers.Issuer
	Federations handlers.FederationStore
	Peers       handlers.PeerLister
	Revocation  handlers.Revoker
	RateLimit   middleware.RateLimit
	// TrustProxy takes the client address from X-Real-IP/X-Forwarded-For.
	// Enable only behind a proxy that sets them.
	TrustProxy bool
	Log        logrus.FieldLogger
}

// NewPlatformRouter builds the HTTP router for a platform's bartering
// engine.
func NewPlatformRouter(d PlatformDeps) http.Handler {
	r := newBaseRouter(d.Log)

	bartering := handlers.NewBarteringHandler(d.Engine, d.Issuer, d.Log)
	limiter := middleware.NewRateLimiter(d.RateLimit)
	limited := []func(http.Handler) http.Handler{limiter.Middleware}
	if d.TrustProxy {
		limited = append([]func(http.Handler) http.Handler{chimw.RealIP}, limited...)
	}
	r.Route("/bartering", func(r chi.Router) {
		r.With(limited...).Post("/coupons", bartering.GetCoupon)
		r.Post("/authorize", bartering.Authorize)
	})
	r.Post("/coupons", bartering.Issue)

	federations := handlers.NewFederationHandler(d.Federations, d.Peers, d.PlatformID, d.Log)
	r.Route("/federations", func(r chi.Router) {
		r.Get("/{id}", federations.Get)
		r.Put("/{id}", federations.Put)
		r.Delete("/{id}", federations.Delete)
	})
	r.Get("/peers", federations.Peers)

	revocation := handlers.NewRevocationHandler(d.Revocation, d.Log)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/revoke", revocation.Revoke)
	})
	return r
}

func newBaseRouter(log logrus.FieldLogger) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(log))

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
