package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

type CoreConfig struct {
	BaseURL string
	// APIKey is sent as a bearer token on every registry call.
	APIKey  string
	Timeout time.Duration
}

// CoreClient talks to the Core registry on behalf of a platform.
type CoreClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewCoreClient(cfg CoreConfig) (*CoreClient, error) {
	base := normalizeBase(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("core: base url required")
	}
	return &CoreClient{
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: newHTTPClient(cfg.Timeout),
	}, nil
}

func (c *CoreClient) RegisterCoupon(ctx context.Context, signed string) (bool, error) {
	var out models.RegisterResponse
	if err := c.post(ctx, "/registry/coupons", signed, &out); err != nil {
		return false, err
	}
	return out.Accepted, nil
}

func (c *CoreClient) IsCouponValid(ctx context.Context, signed string) (models.CouponValidity, error) {
	var out models.CouponValidity
	if err := c.post(ctx, "/registry/coupons/validate", signed, &out); err != nil {
		return models.CouponValidity{}, err
	}
	return out, nil
}

func (c *CoreClient) ConsumeCoupon(ctx context.Context, signed string) (models.CouponStatus, error) {
	var out models.ConsumeResponse
	if err := c.post(ctx, "/registry/coupons/consume", signed, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *CoreClient) post(ctx context.Context, path, signed string, out interface{}) error {
	var hdr http.Header
	if c.apiKey != "" {
		hdr = http.Header{}
		hdr.Set("Authorization", "Bearer "+c.apiKey)
	}
	return call(ctx, c.httpClient, "core", http.MethodPost, c.baseURL+path, hdr, models.CouponRequest{Coupon: signed}, out)
}
