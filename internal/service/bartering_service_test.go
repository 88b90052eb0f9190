package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cheertaboi/bartering-trading-manager/internal/codec"
	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

type barterWorld struct {
	reg   *RegistryService
	core  localCore
	ids   *fakeIdentity
	peers *enginePeers
	clock *testClock
	a, b  *testPlatform
}

func newBarterWorld(t *testing.T) *barterWorld {
	t.Helper()
	w := &barterWorld{ids: newFakeIdentity(), peers: &enginePeers{}, clock: newTestClock()}
	w.reg = newRegistry(t, w.ids, w.clock)
	w.core = localCore{reg: w.reg}
	setup := platformSetup{core: w.core, ids: w.ids, peers: w.peers, clock: w.clock}
	w.a = newPlatform(t, "platform-a", setup)
	w.b = newPlatform(t, "platform-b", setup)
	for _, p := range []*testPlatform{w.a, w.b} {
		p.joinFederation(t, "fed-1", "platform-a", "platform-b")
		p.joinFederation(t, "fed-2", "platform-a", "platform-b")
	}
	return w
}

func authorizeReq(client, fed string) models.AuthorizeRequest {
	return models.AuthorizeRequest{ClientPlatform: client, FederationID: fed, ResourceID: "res-1", CouponType: models.CouponTypeDiscrete}
}

func TestAuthorizeAccessCollectsPeerCoupon(t *testing.T) {
	w := newBarterWorld(t)
	ctx := context.Background()

	ok, err := w.a.engine.AuthorizeAccess(ctx, authorizeReq("platform-b", "fed-1"))
	require.NoError(t, err)
	assert.True(t, ok)

	received, err := w.a.wallet.ListByStatus(ctx, models.StatusValid)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, models.OriginReceived, received[0].Origin)
	assert.Equal(t, "platform-b", received[0].Issuer)

	minted, err := w.b.wallet.Get(ctx, received[0].Key())
	require.NoError(t, err)
	require.NotNil(t, minted)
	assert.Equal(t, models.OriginLocal, minted.Origin)
	assert.Equal(t, "platform-a", minted.IssuedFor)

	// Another access is paid with a fresh coupon, never the one handed out.
	ok, err = w.a.engine.AuthorizeAccess(ctx, authorizeReq("platform-b", "fed-1"))
	require.NoError(t, err)
	assert.True(t, ok)
	received, err = w.a.wallet.ListByStatus(ctx, models.StatusValid)
	require.NoError(t, err)
	require.Len(t, received, 2)
	assert.NotEqual(t, received[0].Signed, received[1].Signed)
}

func TestBarteringCycleSpendsIssuerBudget(t *testing.T) {
	w := newBarterWorld(t)
	ctx := context.Background()

	// a collects a coupon issued by b.
	ok, err := w.a.engine.AuthorizeAccess(ctx, authorizeReq("platform-b", "fed-1"))
	require.NoError(t, err)
	require.True(t, ok)
	held, err := w.a.wallet.ListByStatus(ctx, models.StatusValid)
	require.NoError(t, err)
	require.Len(t, held, 1)
	debt := held[0]
	assert.Equal(t, int64(0), registered(t, w.reg, debt.Signed).UsagesCounter)

	// b serves a twice: a pays back with b's coupon and b consumes it.
	for i := int64(1); i <= 2; i++ {
		ok, err = w.b.engine.AuthorizeAccess(ctx, authorizeReq("platform-a", "fed-1"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, registered(t, w.reg, debt.Signed).UsagesCounter)
	}
	assert.Equal(t, models.StatusConsumed, registered(t, w.reg, debt.Signed).Status)
	fresh, err := w.b.wallet.ListByStatus(ctx, models.StatusValid)
	require.NoError(t, err)
	for _, sc := range fresh {
		assert.Equal(t, models.OriginLocal, sc.Origin, "b holds nothing from a yet")
	}

	// The spent coupon is dropped and a pays with one of its own.
	ok, err = w.b.engine.AuthorizeAccess(ctx, authorizeReq("platform-a", "fed-1"))
	require.NoError(t, err)
	require.True(t, ok)
	gone, err := w.a.wallet.Get(ctx, debt.Key())
	require.NoError(t, err)
	assert.Nil(t, gone)
	owed, err := w.b.wallet.FindReceived(ctx, "platform-a", models.CouponTypeDiscrete, "fed-1")
	require.NoError(t, err)
	require.Len(t, owed, 1)
	assert.Equal(t, int64(0), registered(t, w.reg, owed[0].Signed).UsagesCounter)
}

func TestAuthorizeAccessDeclinesReplayedCoupon(t *testing.T) {
	w := newBarterWorld(t)
	ctx := context.Background()

	ok, err := w.a.engine.AuthorizeAccess(ctx, authorizeReq("platform-b", "fed-1"))
	require.NoError(t, err)
	require.True(t, ok)
	held, err := w.a.wallet.ListByStatus(ctx, models.StatusValid)
	require.NoError(t, err)
	require.Len(t, held, 1)

	w.a.engine.Peers = stubPeer{signed: held[0].Signed}
	ok, err = w.a.engine.AuthorizeAccess(ctx, authorizeReq("platform-b", "fed-1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeAccessUnknownFederation(t *testing.T) {
	w := newBarterWorld(t)
	_, err := w.a.engine.AuthorizeAccess(context.Background(), authorizeReq("platform-b", "fed-missing"))
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestAuthorizeAccessRequiresBothMembers(t *testing.T) {
	w := newBarterWorld(t)
	ctx := context.Background()
	w.a.joinFederation(t, "fed-solo", "platform-a")
	w.a.joinFederation(t, "fed-others", "platform-b", "platform-c")

	_, err := w.a.engine.AuthorizeAccess(ctx, authorizeReq("platform-b", "fed-solo"))
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = w.a.engine.AuthorizeAccess(ctx, authorizeReq("platform-b", "fed-others"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAuthorizeAccessUnresolvablePeer(t *testing.T) {
	w := newBarterWorld(t)
	w.a.joinFederation(t, "fed-3", "platform-a", "platform-z")
	_, err := w.a.engine.AuthorizeAccess(context.Background(), authorizeReq("platform-z", "fed-3"))
	assert.ErrorIs(t, err, models.ErrResolution)
}

func TestAuthorizeAccessPeerFailureIsNotADecline(t *testing.T) {
	w := newBarterWorld(t)
	w.a.engine.Peers = stubPeer{err: models.ErrCommunication}
	ok, err := w.a.engine.AuthorizeAccess(context.Background(), authorizeReq("platform-b", "fed-1"))
	assert.False(t, ok)
	assert.ErrorIs(t, err, models.ErrCommunication)
}

func TestAuthorizeAccessFederationMismatchIsDeclined(t *testing.T) {
	w := newBarterWorld(t)
	signed, _ := mintCoupon(t, w.b.priv, "platform-b", models.CouponTypeDiscrete, 2, "fed-2")
	w.a.engine.Peers = stubPeer{signed: signed}

	ok, err := w.a.engine.AuthorizeAccess(context.Background(), authorizeReq("platform-b", "fed-1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeAccessDeclinesUnregisteredCoupon(t *testing.T) {
	w := newBarterWorld(t)
	signed, _ := mintCoupon(t, w.b.priv, "platform-b", models.CouponTypeDiscrete, 2, "fed-1")
	w.a.engine.Peers = stubPeer{signed: signed}

	ok, err := w.a.engine.AuthorizeAccess(context.Background(), authorizeReq("platform-b", "fed-1"))
	require.NoError(t, err)
	assert.False(t, ok)
	stored, err := w.a.wallet.ListByStatus(context.Background(), models.StatusValid)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAuthorizeAccessReclaimsOwnCouponUntilSpent(t *testing.T) {
	w := newBarterWorld(t)
	ctx := context.Background()
	const budget = 3
	signed, _ := mintCoupon(t, w.a.priv, "platform-a", models.CouponTypeDiscrete, budget, "fed-1")
	ok, err := w.reg.Register(ctx, signed)
	require.NoError(t, err)
	require.True(t, ok)
	w.a.engine.Peers = stubPeer{signed: signed}

	for i := 0; i < budget; i++ {
		ok, err = w.a.engine.AuthorizeAccess(ctx, authorizeReq("platform-b", "fed-1"))
		require.NoError(t, err)
		assert.True(t, ok, "round trip %d", i+1)
	}
	ok, err = w.a.engine.AuthorizeAccess(ctx, authorizeReq("platform-b", "fed-1"))
	require.NoError(t, err)
	assert.False(t, ok, "budget is spent")

	rc := registered(t, w.reg, signed)
	assert.Equal(t, int64(budget), rc.UsagesCounter)
	assert.Equal(t, models.StatusConsumed, rc.Status)
}

func TestGetCouponRejectsBadProof(t *testing.T) {
	w := newBarterWorld(t)
	ctx := context.Background()
	req := models.GetCouponRequest{Requester: "platform-a", FederationID: "fed-1", CouponType: models.CouponTypeDiscrete}

	_, err := w.b.engine.GetCoupon(ctx, req, "")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, stranger, err := codec.GenerateKeypair()
	require.NoError(t, err)
	forged, err := codec.MintProof("platform-a", "platform-b", ComponentBTM, stranger, w.clock.Now(), time.Minute)
	require.NoError(t, err)
	_, err = w.b.engine.GetCoupon(ctx, req, forged)
	assert.ErrorIs(t, err, models.ErrValidation)

	wrongAudience, err := codec.MintProof("platform-a", "platform-c", ComponentBTM, w.a.priv, w.clock.Now(), time.Minute)
	require.NoError(t, err)
	_, err = w.b.engine.GetCoupon(ctx, req, wrongAudience)
	assert.ErrorIs(t, err, models.ErrValidation)

	otherSubject, err := codec.MintProof("platform-b", "platform-b", ComponentBTM, w.b.priv, w.clock.Now(), time.Minute)
	require.NoError(t, err)
	_, err = w.b.engine.GetCoupon(ctx, req, otherSubject)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGetCouponRequiresExactlyOnePolicy(t *testing.T) {
	w := newBarterWorld(t)
	ctx := context.Background()
	proof, err := codec.MintProof("platform-a", "platform-b", ComponentBTM, w.a.priv, w.clock.Now(), time.Minute)
	require.NoError(t, err)
	w.b.joinFederation(t, "fed-closed", "platform-b", "platform-c")

	// No policy: not a member.
	_, err = w.b.engine.GetCoupon(ctx, models.GetCouponRequest{
		Requester: "platform-a", FederationID: "fed-closed", CouponType: models.CouponTypeDiscrete,
	}, proof)
	assert.ErrorIs(t, err, models.ErrValidation)

	// Two policies: member and trusted.
	w.b.engine.Policies = DefaultPolicies(w.b.federations, "platform-a")
	_, err = w.b.engine.GetCoupon(ctx, models.GetCouponRequest{
		Requester: "platform-a", FederationID: "fed-1", CouponType: models.CouponTypeDiscrete,
	}, proof)
	assert.ErrorIs(t, err, models.ErrValidation)

	// Exactly one: trusted non-member.
	signed, err := w.b.engine.GetCoupon(ctx, models.GetCouponRequest{
		Requester: "platform-a", FederationID: "fed-closed", CouponType: models.CouponTypeDiscrete,
	}, proof)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)
}

func TestGetCouponNeverServesMintedCouponTwice(t *testing.T) {
	w := newBarterWorld(t)
	ctx := context.Background()
	req := models.GetCouponRequest{Requester: "platform-a", FederationID: "fed-1", CouponType: models.CouponTypeDiscrete}
	proof, err := codec.MintProof("platform-a", "platform-b", ComponentBTM, w.a.priv, w.clock.Now(), time.Minute)
	require.NoError(t, err)

	first, err := w.b.engine.GetCoupon(ctx, req, proof)
	require.NoError(t, err)
	again, err := w.b.engine.GetCoupon(ctx, req, proof)
	require.NoError(t, err)
	assert.NotEqual(t, first, again)
	assert.Equal(t, models.StatusValid, registered(t, w.reg, first).Status)
	assert.Equal(t, models.StatusValid, registered(t, w.reg, again).Status)
}

func TestGetCouponReturnsRequesterCoupon(t *testing.T) {
	w := newBarterWorld(t)
	ctx := context.Background()
	req := models.GetCouponRequest{Requester: "platform-a", FederationID: "fed-1", CouponType: models.CouponTypeDiscrete}
	proof, err := codec.MintProof("platform-a", "platform-b", ComponentBTM, w.a.priv, w.clock.Now(), time.Minute)
	require.NoError(t, err)

	// b holds a coupon issued by a.
	signed, c := mintCoupon(t, w.a.priv, "platform-a", models.CouponTypeDiscrete, 1, "fed-1")
	ok, err := w.reg.Register(ctx, signed)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, w.b.wallet.Save(ctx, &models.StoredCoupon{
		Coupon: c, Signed: signed, Status: models.StatusValid, Origin: models.OriginReceived, IssuedFor: "platform-b",
	}))

	got, err := w.b.engine.GetCoupon(ctx, req, proof)
	require.NoError(t, err)
	assert.Equal(t, signed, got)

	// Once a spends it, b drops it and mints its own.
	st, err := w.reg.Consume(ctx, signed)
	require.NoError(t, err)
	require.Equal(t, models.StatusValid, st)

	got, err = w.b.engine.GetCoupon(ctx, req, proof)
	require.NoError(t, err)
	assert.NotEqual(t, signed, got)
	dropped, err := w.b.wallet.Get(ctx, c.Key())
	require.NoError(t, err)
	assert.Nil(t, dropped)
	minted, err := codec.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "platform-b", minted.Issuer)
}

func TestGetCouponDropsCouponTheCoreRejects(t *testing.T) {
	w := newBarterWorld(t)
	ctx := context.Background()
	w.b.engine.Core = failingCore{localCore: w.core, err: models.ErrCommunication}
	proof, err := codec.MintProof("platform-a", "platform-b", ComponentBTM, w.a.priv, w.clock.Now(), time.Minute)
	require.NoError(t, err)

	_, err = w.b.engine.GetCoupon(ctx, models.GetCouponRequest{
		Requester: "platform-a", FederationID: "fed-1", CouponType: models.CouponTypePeriodic,
	}, proof)
	require.ErrorIs(t, err, models.ErrBartering)
	assert.ErrorIs(t, err, models.ErrCommunication)

	left, err := w.b.wallet.ListByStatus(ctx, models.StatusValid)
	require.NoError(t, err)
	assert.Empty(t, left)

	w.b.engine.Core = failingCore{localCore: w.core}
	_, err = w.b.engine.GetCoupon(ctx, models.GetCouponRequest{
		Requester: "platform-a", FederationID: "fed-1", CouponType: models.CouponTypePeriodic,
	}, proof)
	require.ErrorIs(t, err, models.ErrBartering)
	assert.False(t, errors.Is(err, models.ErrCommunication))
}

func TestRefreshWallet(t *testing.T) {
	w := newBarterWorld(t)
	ctx := context.Background()

	ok, err := w.a.engine.AuthorizeAccess(ctx, authorizeReq("platform-b", "fed-1"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = w.a.engine.AuthorizeAccess(ctx, authorizeReq("platform-b", "fed-2"))
	require.NoError(t, err)
	require.True(t, ok)

	received, err := w.a.wallet.ListByStatus(ctx, models.StatusValid)
	require.NoError(t, err)
	require.Len(t, received, 2)
	revoked, err := w.reg.Revoke(ctx, received[0].Key())
	require.NoError(t, err)
	require.True(t, revoked)

	report, err := w.a.engine.RefreshWallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, RefreshReport{Checked: 2, Deleted: 1}, report)
	gone, err := w.a.wallet.Get(ctx, received[0].Key())
	require.NoError(t, err)
	assert.Nil(t, gone)

	// The issuer keeps its own copy with the new status.
	report, err = w.b.engine.RefreshWallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, RefreshReport{Checked: 2, Downgraded: 1}, report)
	local, err := w.b.wallet.Get(ctx, received[0].Key())
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, models.StatusRevoked, local.Status)
}
