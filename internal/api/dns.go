// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/miekg/dns"

	"grimm.is/flywall/internal/domain"
	steeringdns "grimm.is/flywall/internal/steering/dns"
)

type dnsHandlers struct {
	manager *steeringdns.Manager
}

func (h *dnsHandlers) registerRoutes(router *mux.Router) {
	router.HandleFunc("/{flow_id}/check", h.checkDomain).Methods(http.MethodGet)
}

// checkDomain implements spec §4.5's "Testable checkability" diagnostic:
// GET /dns/{flow_id}/check?name=...&type=A|AAAA
func (h *dnsHandlers) checkDomain(w http.ResponseWriter, r *http.Request) {
	flowID, err := strconv.ParseUint(mux.Vars(r)["flow_id"], 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid flow_id")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	qtype := dns.TypeA
	if r.URL.Query().Get("type") == "AAAA" {
		qtype = dns.TypeAAAA
	}

	trace, err := h.manager.CheckDomain(domain.FlowID(flowID), name, qtype)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, trace)
}
