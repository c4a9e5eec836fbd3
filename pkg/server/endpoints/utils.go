package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cryoetdb/cryoetdb/pkg/db"
	"github.com/cryoetdb/cryoetdb/pkg/query"
)

func respondWithError(w http.ResponseWriter, code int, payload interface{}) {
	respondWithJSON(w, code, map[string]interface{}{"error": payload})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithQueryError maps façade errors onto status codes.
func respondWithQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrTomogramNotFound), errors.Is(err, query.ErrAnnotationNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, query.ErrInvalidThreshold):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrConnection):
		respondWithError(w, http.StatusServiceUnavailable, "database unavailable")
	default:
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}
