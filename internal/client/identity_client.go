package client

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Cheertaboi/bartering-trading-manager/internal/cache"
	"github.com/Cheertaboi/bartering-trading-manager/internal/codec"
	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// IdentityConfig defines the HTTP client settings for the identity and
// discovery service.
type IdentityConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// IdentityClient resolves platform public keys and network addresses.
// Public keys are cached in keys when one is supplied.
type IdentityClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	keys       cache.KeyCache
}

type publicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

type addressResponse struct {
	Address string `json:"address"`
}

func NewIdentityClient(cfg IdentityConfig, keys cache.KeyCache) (*IdentityClient, error) {
	base := normalizeBase(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("identity: base url required")
	}
	return &IdentityClient{
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: newHTTPClient(cfg.Timeout),
		keys:       keys,
	}, nil
}

// GetPublicKey returns the Ed25519 key the platform published for role.
func (c *IdentityClient) GetPublicKey(ctx context.Context, role, platformID string) (ed25519.PublicKey, error) {
	if role == "" || platformID == "" {
		return nil, fmt.Errorf("%w: role and platform id are required", models.ErrInvalidRequest)
	}
	cacheKey := role + ":" + platformID
	if c.keys != nil {
		if pemBytes, ok := c.keys.Get(ctx, cacheKey); ok {
			if pub, err := codec.ParsePublicKey(pemBytes); err == nil {
				return pub, nil
			}
		}
	}

	var payload publicKeyResponse
	path := fmt.Sprintf("/keys/%s/%s", url.PathEscape(role), url.PathEscape(platformID))
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}
	pub, err := codec.ParsePublicKey([]byte(payload.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("%w: identity: key for %s/%s: %v", models.ErrResolution, role, platformID, err)
	}
	if c.keys != nil {
		c.keys.Set(ctx, cacheKey, []byte(payload.PublicKey))
	}
	return pub, nil
}

// ResolvePlatformAddress returns the BTM network address of platformID.
func (c *IdentityClient) ResolvePlatformAddress(ctx context.Context, platformID string) (string, error) {
	var payload addressResponse
	if err := c.get(ctx, "/platforms/"+url.PathEscape(platformID)+"/address", &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.Address) == "" {
		return "", fmt.Errorf("%w: identity: platform %s has no address", models.ErrResolution, platformID)
	}
	return payload.Address, nil
}

// ListFederationMembers returns the addresses of every platform sharing a
// federation with platformID.
func (c *IdentityClient) ListFederationMembers(ctx context.Context, platformID string) ([]string, error) {
	var payload models.PeersResponse
	if err := c.get(ctx, "/platforms/"+url.PathEscape(platformID)+"/federation-members", &payload); err != nil {
		return nil, err
	}
	return payload.Addresses, nil
}

func (c *IdentityClient) get(ctx context.Context, path string, out interface{}) error {
	hdr := http.Header{}
	if c.apiKey != "" {
		hdr.Set("Authorization", "Bearer "+c.apiKey)
	}
	err := call(ctx, c.httpClient, "identity", http.MethodGet, c.baseURL+path, hdr, nil, out)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: identity: %s not registered", models.ErrResolution, path)
	}
	return err
}
