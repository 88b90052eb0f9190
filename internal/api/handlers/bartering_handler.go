package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

type BarteringEngine interface {
	AuthorizeAccess(ctx context.Context, req models.AuthorizeRequest) (bool, error)
	GetCoupon(ctx context.Context, req models.GetCouponRequest, proof string) (string, error)
}

type Issuer interface {
	Issue(ctx context.Context, req models.IssueRequest) (*models.StoredCoupon, error)
}

type BarteringHandler struct {
	engine BarteringEngine
	issuer Issuer
	log    logrus.FieldLogger
}

func NewBarteringHandler(engine BarteringEngine, issuer Issuer, log logrus.FieldLogger) *BarteringHandler {
	return &BarteringHandler{engine: engine, issuer: issuer, log: log}
}

// GetCoupon handles POST /bartering/coupons. The caller's identity proof
// is the bearer token.
func (h *BarteringHandler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	var req models.GetCouponRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := normalizeType(&req.CouponType); err != nil {
		writeError(w, h.log, err)
		return
	}
	proof := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	signed, err := h.engine.GetCoupon(r.Context(), req, proof)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, models.GetCouponResponse{Coupon: signed})
}

// Authorize handles POST /bartering/authorize
func (h *BarteringHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req models.AuthorizeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := normalizeType(&req.CouponType); err != nil {
		writeError(w, h.log, err)
		return
	}
	ok, err := h.engine.AuthorizeAccess(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, models.AuthorizeResponse{Authorized: ok})
}

// Issue handles POST /coupons
func (h *BarteringHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req models.IssueRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := normalizeType(&req.CouponType); err != nil {
		writeError(w, h.log, err)
		return
	}
	sc, err := h.issuer.Issue(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/coupons/%s", sc.TokenID))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"coupon": sc.Signed,
		"claims": sc.Coupon,
	})
}
