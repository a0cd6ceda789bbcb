// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"grimm.is/flywall/internal/netdiag"
)

type netdevHandlers struct{}

func (h *netdevHandlers) registerRoutes(router *mux.Router) {
	router.HandleFunc("/{iface}/link", h.link).Methods(http.MethodGet)
}

// link surfaces NetworkIfaceConfig's link-speed/duplex diagnostic over
// github.com/safchain/ethtool (SPEC_FULL.md DOMAIN STACK).
func (h *netdevHandlers) link(w http.ResponseWriter, r *http.Request) {
	iface := mux.Vars(r)["iface"]
	info, err := netdiag.ReadLink(iface)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, info)
}
