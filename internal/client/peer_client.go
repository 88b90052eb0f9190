package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// PeerClient requests coupons from other platforms' bartering engines.
type PeerClient struct {
	httpClient *http.Client
}

func NewPeerClient(timeout time.Duration) *PeerClient {
	return &PeerClient{httpClient: newHTTPClient(timeout)}
}

// GetCoupon asks the engine at address for a coupon, presenting proof as
// a bearer token.
func (c *PeerClient) GetCoupon(ctx context.Context, address string, req models.GetCouponRequest, proof string) (string, error) {
	base := normalizeBase(address)
	if base == "" {
		return "", fmt.Errorf("%w: peer address is empty", models.ErrResolution)
	}
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+proof)

	var out models.GetCouponResponse
	if err := call(ctx, c.httpClient, "peer", http.MethodPost, base+"/bartering/coupons", hdr, req, &out); err != nil {
		return "", err
	}
	if out.Coupon == "" {
		return "", fmt.Errorf("%w: peer %s returned no coupon", models.ErrCommunication, address)
	}
	return out.Coupon, nil
}
