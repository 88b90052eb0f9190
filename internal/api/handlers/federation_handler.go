package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

type FederationStore interface {
	Get(ctx context.Context, id string) (*models.Federation, error)
	Upsert(ctx context.Context, f models.Federation) error
	Delete(ctx context.Context, id string) (bool, error)
}

// PeerLister lists the addresses of platforms sharing a federation with
// platformID.
type PeerLister interface {
	ListFederationMembers(ctx context.Context, platformID string) ([]string, error)
}

// FederationHandler receives federation directory updates from the sync
// listener and answers peer discovery queries.
type FederationHandler struct {
	store      FederationStore
	peers      PeerLister
	platformID string
	log        logrus.FieldLogger
}

func NewFederationHandler(store FederationStore, peers PeerLister, platformID string, log logrus.FieldLogger) *FederationHandler {
	return &FederationHandler{store: store, peers: peers, platformID: platformID, log: log}
}

// Get handles GET /federations/{id}
func (h *FederationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if f == nil {
		writeError(w, h.log, fmt.Errorf("%w: federation %s", models.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, models.FederationResponse{FederationID: f.ID, Members: f.MemberIDs()})
}

// Put handles PUT /federations/{id}
func (h *FederationHandler) Put(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.FederationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	f := models.NewFederation(id, req.Members...)
	if err := h.store.Upsert(r.Context(), f); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.log.WithFields(logrus.Fields{"federation_id": id, "members": len(req.Members)}).Info("federation updated")
	writeJSON(w, http.StatusOK, models.FederationResponse{FederationID: id, Members: f.MemberIDs()})
}

// Delete handles DELETE /federations/{id}
func (h *FederationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := h.store.Delete(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if !removed {
		writeError(w, h.log, fmt.Errorf("%w: federation %s", models.ErrNotFound, id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Peers handles GET /peers
func (h *FederationHandler) Peers(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.peers.ListFederationMembers(r.Context(), h.platformID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if addrs == nil {
		addrs = []string{}
	}
	writeJSON(w, http.StatusOK, models.PeersResponse{Addresses: addrs})
}
