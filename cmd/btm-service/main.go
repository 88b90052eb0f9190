package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"gorm.io/gorm"

	"github.com/Cheertaboi/bartering-trading-manager/internal/api"
	"github.com/Cheertaboi/bartering-trading-manager/internal/api/middleware"
	"github.com/Cheertaboi/bartering-trading-manager/internal/cache"
	"github.com/Cheertaboi/bartering-trading-manager/internal/client"
	"github.com/Cheertaboi/bartering-trading-manager/internal/codec"
	"github.com/Cheertaboi/bartering-trading-manager/internal/concurrency"
	"github.com/Cheertaboi/bartering-trading-manager/internal/config"
	"github.com/Cheertaboi/bartering-trading-manager/internal/metrics"
	"github.com/Cheertaboi/bartering-trading-manager/internal/repository"
	"github.com/Cheertaboi/bartering-trading-manager/internal/service"
	"github.com/Cheertaboi/bartering-trading-manager/pkg/db"
	"github.com/Cheertaboi/bartering-trading-manager/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	role := flag.String("role", "", "override the configured role (core|platform)")
	listen := flag.String("listen", "", "override the configured listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if *role != "" {
			c.Role = *role
		}
		if *listen != "" {
			c.Listen = *listen
		}
	})
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := logger.New(cfg.Log)
	log.WithFields(logrus.Fields{"role": cfg.Role, "platform_id": cfg.PlatformID}).Info("starting btm-service")

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close(gdb)
	if err := repository.AutoMigrate(gdb); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	keyCache, closeCache := newKeyCache(cfg, log)
	defer closeCache()
	ids, err := client.NewIdentityClient(client.IdentityConfig{
		BaseURL: cfg.Identity.BaseURL,
		APIKey:  cfg.Identity.APIKey,
		Timeout: cfg.Identity.Timeout.Duration,
	}, keyCache)
	if err != nil {
		log.Fatalf("identity client: %v", err)
	}

	admin := service.AdminCredentials{Username: cfg.Admin.Username, PasswordHash: []byte(cfg.Admin.PasswordHash)}
	opts := []service.Option{service.WithLogger(log), service.WithMetrics(metrics.BTM())}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var handler http.Handler
	switch cfg.Role {
	case config.RoleCore:
		handler = buildCore(ctx, cfg, gdb, ids, admin, opts, log)
	default:
		handler = buildPlatform(ctx, cfg, gdb, ids, admin, opts, log)
	}

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// graceful shutdown
	idleConnsClosed := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server Shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	log.Infof("listening on %s", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("listen: %s", err)
	}

	<-idleConnsClosed
	log.Info("server stopped")
}

func newKeyCache(cfg config.Config, log *logrus.Logger) (cache.KeyCache, func()) {
	ttl := cfg.Identity.KeyCacheTTL.Duration
	if cfg.Redis.Addr == "" {
		return cache.NewMemoryKeyCache(ttl), func() {}
	}
	rc, err := cache.NewRedisKeyCache(cfg.Redis, ttl, log)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, caching keys in memory")
		return cache.NewMemoryKeyCache(ttl), func() {}
	}
	return rc, func() { _ = rc.Close() }
}

func buildCore(ctx context.Context, cfg config.Config, gdb *gorm.DB, ids *client.IdentityClient, admin service.AdminCredentials, opts []service.Option, log *logrus.Logger) http.Handler {
	registry := service.NewRegistryService(repository.NewRegistryRepo(gdb), ids, opts...)
	revocation := service.NewRevocationService(admin, ids, registry, opts...)

	retention := cfg.Cleanup.Retention.Duration
	go concurrency.Every(ctx, cfg.Cleanup.Interval.Duration, func(ctx context.Context) {
		before := time.Now().Add(-retention).UnixMilli()
		if _, err := registry.Cleanup(ctx, before); err != nil {
			log.WithError(err).Warn("cleanup sweep failed")
		}
	})

	if len(cfg.Registry.APIKeys) == 0 {
		log.Warn("registry routes are open: no registry.api_keys configured")
	}
	return api.NewCoreRouter(api.CoreDeps{
		Registry:   registry,
		Revocation: revocation,
		APIKeys:    cfg.Registry.APIKeys,
		Log:        log,
	})
}

func buildPlatform(ctx context.Context, cfg config.Config, gdb *gorm.DB, ids *client.IdentityClient, admin service.AdminCredentials, opts []service.Option, log *logrus.Logger) http.Handler {
	key, err := codec.LoadPrivateKey(cfg.Signing.PrivateKeyPath)
	if err != nil {
		log.Fatalf("signing key: %v", err)
	}
	core, err := client.NewCoreClient(client.CoreConfig{
		BaseURL: cfg.Core.BaseURL,
		APIKey:  cfg.Core.APIKey,
		Timeout: cfg.Core.Timeout.Duration,
	})
	if err != nil {
		log.Fatalf("core client: %v", err)
	}

	wallet := repository.NewWalletRepo(gdb)
	federations := repository.NewFederationRepo(gdb)
	issuer := service.NewIssuerService(service.IssuerConfig{
		PlatformID:       cfg.PlatformID,
		SigningKey:       key,
		DiscreteUsages:   cfg.Coupons.DiscreteUsages,
		PeriodicValidity: cfg.Coupons.PeriodicValidity.Duration,
	}, wallet, opts...)
	engine := service.NewBarteringService(service.BarteringConfig{
		PlatformID:     cfg.PlatformID,
		SigningKey:     key,
		ProofTTL:       cfg.Bartering.ProofTTL.Duration,
		RefreshWorkers: cfg.WalletRefresh.Workers,
	}, service.BarteringDeps{
		Federations: federations,
		Wallet:      wallet,
		Core:        core,
		Identity:    ids,
		Peers:       client.NewPeerClient(cfg.Bartering.PeerTimeout.Duration),
		Issuer:      issuer,
		Policies:    service.DefaultPolicies(federations, cfg.Bartering.TrustedPlatforms...),
	}, opts...)
	revocation := service.NewRevocationService(admin, ids, service.WalletRevoker{Wallet: wallet}, opts...)

	go concurrency.Every(ctx, cfg.WalletRefresh.Interval.Duration, func(ctx context.Context) {
		if _, err := engine.RefreshWallet(ctx); err != nil {
			log.WithError(err).Warn("wallet refresh failed")
		}
	})

	return api.NewPlatformRouter(api.PlatformDeps{
		PlatformID:  cfg.PlatformID,
		Engine:      engine,
		Issuer:      issuer,
		Federations: federations,
		Peers:       ids,
		Revocation:  revocation,
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.Bartering.RateLimitPerMinute,
			Burst:             cfg.Bartering.RateLimitBurst,
		},
		TrustProxy: cfg.Bartering.TrustProxyHeaders,
		Log:        log,
	})
}
