// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"grimm.is/flywall/internal/configservice"
	"grimm.is/flywall/internal/repository"
)

// mountConfigCRUD registers list/get/set/delete for one ConfigService under
// router, mirroring the generic Set/SetList/Delete shape of spec §4.7.
// parseID converts the {id} path variable into ID; newEntity returns a
// fresh *T for json.Decode (D is itself a pointer type).
func mountConfigCRUD[ID comparable, D repository.Entity[ID]](
	router *mux.Router,
	svc *configservice.ConfigService[ID, D],
	parseID func(string) (ID, bool),
	newEntity func() D,
) {
	router.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, list)
	}).Methods(http.MethodGet)

	router.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		d := newEntity()
		if !decodeJSON(w, r, &d) {
			return
		}
		if err := svc.Set(r.Context(), d); err != nil {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, d)
	}).Methods(http.MethodPost, http.MethodPut)

	router.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(mux.Vars(r)["id"])
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid id")
			return
		}
		d, err := svc.FindByID(r.Context(), id)
		if err != nil {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, d)
	}).Methods(http.MethodGet)

	router.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(mux.Vars(r)["id"])
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid id")
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)
}
