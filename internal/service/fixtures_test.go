package service

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Cheertaboi/bartering-trading-manager/internal/codec"
	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
	"github.com/Cheertaboi/bartering-trading-manager/internal/repository"
	"github.com/Cheertaboi/bartering-trading-manager/internal/repository/repotest"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.UnixMilli(1_700_000_000_000).UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeIdentity struct {
	mu    sync.Mutex
	keys  map[string]ed25519.PublicKey
	addrs map[string]string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{keys: map[string]ed25519.PublicKey{}, addrs: map[string]string{}}
}

func (f *fakeIdentity) add(platformID string, pub ed25519.PublicKey, addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[platformID] = pub
	if addr != "" {
		f.addrs[platformID] = addr
	}
}

func (f *fakeIdentity) GetPublicKey(_ context.Context, role, platformID string) (ed25519.PublicKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pub, ok := f.keys[platformID]
	if role != ComponentBTM || !ok {
		return nil, fmt.Errorf("%w: no %s key for %s", models.ErrResolution, role, platformID)
	}
	return pub, nil
}

func (f *fakeIdentity) ResolvePlatformAddress(_ context.Context, platformID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr, ok := f.addrs[platformID]
	if !ok {
		return "", fmt.Errorf("%w: platform %s", models.ErrResolution, platformID)
	}
	return addr, nil
}

// localCore adapts an in-process RegistryService to the platform's
// CoreRegistry view.
type localCore struct {
	reg *RegistryService
}

func (c localCore) RegisterCoupon(ctx context.Context, signed string) (bool, error) {
	return c.reg.Register(ctx, signed)
}

func (c localCore) IsCouponValid(ctx context.Context, signed string) (models.CouponValidity, error) {
	return c.reg.IsValid(ctx, signed)
}

func (c localCore) ConsumeCoupon(ctx context.Context, signed string) (models.CouponStatus, error) {
	return c.reg.Consume(ctx, signed)
}

// failingCore rejects every registration.
type failingCore struct {
	localCore
	err error
}

func (c failingCore) RegisterCoupon(context.Context, string) (bool, error) {
	return false, c.err
}

// enginePeers routes GetCoupon calls to in-process engines by address.
type enginePeers struct {
	mu      sync.Mutex
	engines map[string]*BarteringService
}

func (p *enginePeers) add(addr string, e *BarteringService) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engines == nil {
		p.engines = map[string]*BarteringService{}
	}
	p.engines[addr] = e
}

func (p *enginePeers) GetCoupon(ctx context.Context, addr string, req models.GetCouponRequest, proof string) (string, error) {
	p.mu.Lock()
	e, ok := p.engines[addr]
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: no peer at %s", models.ErrCommunication, addr)
	}
	return e.GetCoupon(ctx, req, proof)
}

type stubPeer struct {
	signed string
	err    error
}

func (p stubPeer) GetCoupon(context.Context, string, models.GetCouponRequest, string) (string, error) {
	return p.signed, p.err
}

type testPlatform struct {
	id          string
	pub         ed25519.PublicKey
	priv        ed25519.PrivateKey
	wallet      *repository.WalletRepo
	federations *repository.FederationRepo
	issuer      *IssuerService
	engine      *BarteringService
}

type platformSetup struct {
	core    CoreRegistry
	ids     *fakeIdentity
	peers   PeerCoupons
	clock   *testClock
	trusted []string
}

func newPlatform(t *testing.T, id string, s platformSetup) *testPlatform {
	t.Helper()
	pub, priv, err := codec.GenerateKeypair()
	require.NoError(t, err)
	s.ids.add(id, pub, "http://"+id+".test")

	gdb := repotest.Open(t)
	p := &testPlatform{
		id:          id,
		pub:         pub,
		priv:        priv,
		wallet:      repository.NewWalletRepo(gdb),
		federations: repository.NewFederationRepo(gdb),
	}
	p.issuer = NewIssuerService(IssuerConfig{
		PlatformID:       id,
		SigningKey:       priv,
		DiscreteUsages:   2,
		PeriodicValidity: time.Hour,
	}, p.wallet, WithClock(s.clock.Now))
	p.engine = NewBarteringService(BarteringConfig{
		PlatformID:     id,
		SigningKey:     priv,
		RefreshWorkers: 2,
	}, BarteringDeps{
		Federations: p.federations,
		Wallet:      p.wallet,
		Core:        s.core,
		Identity:    s.ids,
		Peers:       s.peers,
		Issuer:      p.issuer,
		Policies:    DefaultPolicies(p.federations, s.trusted...),
	}, WithClock(s.clock.Now))
	if ep, ok := s.peers.(*enginePeers); ok {
		ep.add("http://"+id+".test", p.engine)
	}
	return p
}

func (p *testPlatform) joinFederation(t *testing.T, id string, members ...string) {
	t.Helper()
	require.NoError(t, p.federations.Upsert(context.Background(), models.NewFederation(id, members...)))
}

func newRegistry(t *testing.T, ids *fakeIdentity, clock *testClock) *RegistryService {
	t.Helper()
	return NewRegistryService(repository.NewRegistryRepo(repotest.Open(t)), ids, WithClock(clock.Now))
}

func mintCoupon(t *testing.T, priv ed25519.PrivateKey, issuer string, ct models.CouponType, max int64, fed string) (string, models.Coupon) {
	t.Helper()
	signed, c, err := codec.Mint(ct, max, issuer, fed, priv, time.Now())
	require.NoError(t, err)
	return signed, c
}

// registered reads the Core record behind signed.
func registered(t *testing.T, reg *RegistryService, signed string) *models.RegisteredCoupon {
	t.Helper()
	c, err := codec.Parse(signed)
	require.NoError(t, err)
	rc, err := reg.store.(*repository.RegistryRepo).Get(context.Background(), c.Key())
	require.NoError(t, err)
	require.NotNil(t, rc)
	return rc
}
