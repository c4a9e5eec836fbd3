package endpoints

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/cryoetdb/cryoetdb/pkg/query"
	"github.com/cryoetdb/cryoetdb/pkg/server"
)

// RegisterAnnotationsEndpoints registers the annotation lookup endpoint
func RegisterAnnotationsEndpoints(s *server.Server) {
	s.Router.HandleFunc("/annotations/{id}", handleLocateAnnotation(s.Querier)).Methods("GET")
}

func handleLocateAnnotation(q query.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || id <= 0 {
			respondWithError(w, http.StatusBadRequest, "annotation id must be a positive integer")
			return
		}

		loc, err := q.LocateAnnotation(r.Context(), id)
		if err != nil {
			respondWithQueryError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, loc)
	}
}
