// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/supervisor"
)

// ServiceOps adapts one supervisor.ServiceManager[S, C] instance to a
// uniform, non-generic surface the HTTP layer can hold in a map keyed by
// domain.ServiceKind (spec §4.6's "dynamic polymorphism over services",
// §9). The concrete C unmarshal happens inside Update, built once per
// kind in cmd/landscaped where C is known.
type ServiceOps struct {
	Update func(ctx context.Context, iface string, payload json.RawMessage, enable bool) error
	Stop   func(iface string)
	Status func() map[string]supervisor.Status
}

type serviceHandlers struct {
	ops map[domain.ServiceKind]ServiceOps
}

func (h *serviceHandlers) registerRoutes(router *mux.Router) {
	router.HandleFunc("/{kind}/{iface}", h.update).Methods(http.MethodPost, http.MethodPut)
	router.HandleFunc("/{kind}/{iface}", h.stop).Methods(http.MethodDelete)
	router.HandleFunc("/{kind}", h.status).Methods(http.MethodGet)
}

type serviceUpdateRequest struct {
	Enable  bool            `json:"enable"`
	Payload json.RawMessage `json:"payload"`
}

func (h *serviceHandlers) update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ops, ok := h.ops[domain.ServiceKind(vars["kind"])]
	if !ok {
		respondError(w, http.StatusNotFound, "unknown service kind")
		return
	}
	var req serviceUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := ops.Update(r.Context(), vars["iface"], req.Payload, req.Enable); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *serviceHandlers) stop(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ops, ok := h.ops[domain.ServiceKind(vars["kind"])]
	if !ok {
		respondError(w, http.StatusNotFound, "unknown service kind")
		return
	}
	ops.Stop(vars["iface"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *serviceHandlers) status(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ops, ok := h.ops[domain.ServiceKind(vars["kind"])]
	if !ok {
		respondError(w, http.StatusNotFound, "unknown service kind")
		return
	}
	respondJSON(w, http.StatusOK, ops.Status())
}
