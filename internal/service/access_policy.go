package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Cheertaboi/bartering-trading-manager/internal/codec"
	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// FederationDirectory answers federation lookups. Get returns nil for an
// unknown federation.
type FederationDirectory interface {
	Get(ctx context.Context, id string) (*models.Federation, error)
}

// AccessRequest is what a policy sees of an inbound getCoupon call.
// Proof is already verified against the requester's published key.
type AccessRequest struct {
	Requester    string
	FederationID string
	CouponType   models.CouponType
	Proof        codec.Proof
}

// AccessPolicy is one way a peer can be entitled to a coupon.
type AccessPolicy interface {
	Name() string
	Satisfied(ctx context.Context, req AccessRequest) (bool, error)
}

// PolicySet grants access when exactly one policy is satisfied.
type PolicySet []AccessPolicy

func (ps PolicySet) Authorize(ctx context.Context, req AccessRequest) error {
	var matched []string
	for _, p := range ps {
		ok, err := p.Satisfied(ctx, req)
		if err != nil {
			return err
		}
		if ok {
			matched = append(matched, p.Name())
		}
	}
	if len(matched) != 1 {
		return fmt.Errorf("%w: %s satisfies %d access policies [%s], want exactly one",
			models.ErrValidation, req.Requester, len(matched), strings.Join(matched, ","))
	}
	return nil
}

// FederatedBTMPolicy admits a BTM component of a platform that belongs to
// the requested federation.
type FederatedBTMPolicy struct {
	Federations FederationDirectory
}

func (FederatedBTMPolicy) Name() string { return "federated-btm" }

func (p FederatedBTMPolicy) Satisfied(ctx context.Context, req AccessRequest) (bool, error) {
	if req.Proof.Component != ComponentBTM || req.Proof.Subject != req.Requester {
		return false, nil
	}
	fed, err := p.Federations.Get(ctx, req.FederationID)
	if err != nil {
		return false, err
	}
	return fed != nil && fed.HasMember(req.Requester), nil
}

// TrustedPlatformPolicy admits configured partner platforms regardless of
// federation membership.
type TrustedPlatformPolicy struct {
	Platforms map[string]struct{}
}

func NewTrustedPlatformPolicy(ids ...string) TrustedPlatformPolicy {
	p := TrustedPlatformPolicy{Platforms: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			p.Platforms[id] = struct{}{}
		}
	}
	return p
}

func (TrustedPlatformPolicy) Name() string { return "trusted-platform" }

func (p TrustedPlatformPolicy) Satisfied(_ context.Context, req AccessRequest) (bool, error) {
	if req.Proof.Subject != req.Requester {
		return false, nil
	}
	_, ok := p.Platforms[req.Requester]
	return ok, nil
}

// DefaultPolicies returns the federation policy plus a trusted-platform
// policy when any ids are given.
func DefaultPolicies(federations FederationDirectory, trusted ...string) PolicySet {
	set := PolicySet{FederatedBTMPolicy{Federations: federations}}
	if len(trusted) > 0 {
		set = append(set, NewTrustedPlatformPolicy(trusted...))
	}
	return set
}
