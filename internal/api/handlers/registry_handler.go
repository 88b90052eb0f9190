package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

// Registry is the Core coupon registry.
type Registry interface {
	Register(ctx context.Context, signed string) (bool, error)
	IsValid(ctx context.Context, signed string) (models.CouponValidity, error)
	Consume(ctx context.Context, signed string) (models.CouponStatus, error)
	Cleanup(ctx context.Context, beforeMillis int64) (int64, error)
}

type RegistryHandler struct {
	registry Registry
	log      logrus.FieldLogger
}

func NewRegistryHandler(registry Registry, log logrus.FieldLogger) *RegistryHandler {
	return &RegistryHandler{registry: registry, log: log}
}

// Register handles POST /registry/coupons
func (h *RegistryHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.CouponRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	accepted, err := h.registry.Register(r.Context(), req.Coupon)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.RegisterResponse{Accepted: accepted})
}

// Validate handles POST /registry/coupons/validate
func (h *RegistryHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req models.CouponRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	validity, err := h.registry.IsValid(r.Context(), req.Coupon)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, validity)
}

// Consume handles POST /registry/coupons/consume
func (h *RegistryHandler) Consume(w http.ResponseWriter, r *http.Request) {
	var req models.CouponRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	status, err := h.registry.Consume(r.Context(), req.Coupon)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ConsumeResponse{Status: status})
}

// Cleanup handles POST /registry/coupons/cleanup
func (h *RegistryHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req models.CleanupRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	removed, err := h.registry.Cleanup(r.Context(), req.Before)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, models.CleanupResponse{Removed: removed})
}
