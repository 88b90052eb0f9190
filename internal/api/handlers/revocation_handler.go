package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

type Revoker interface {
	Revoke(ctx context.Context, req models.RevokeRequest) models.RevokeResponse
}

type RevocationHandler struct {
	revoker Revoker
	log     logrus.FieldLogger
}

func NewRevocationHandler(revoker Revoker, log logrus.FieldLogger) *RevocationHandler {
	return &RevocationHandler{revoker: revoker, log: log}
}

// Revoke handles POST /admin/revoke. The body always carries the outcome;
// the status code mirrors it.
func (h *RevocationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req models.RevokeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.RevokeResponse{Status: http.StatusBadRequest})
		return
	}
	resp := h.revoker.Revoke(r.Context(), req)
	writeJSON(w, resp.Status, resp)
}
