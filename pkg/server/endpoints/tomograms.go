package endpoints

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/cryoetdb/cryoetdb/pkg/query"
	"github.com/cryoetdb/cryoetdb/pkg/server"
)

// AnnotationCountResponse is the body of the count endpoint
type AnnotationCountResponse struct {
	TomoName        string `json:"tomo_name"`
	AnnotationCount int64  `json:"annotation_count"`
}

// RichTomogramsResponse is the body of the rich tomograms endpoint
type RichTomogramsResponse struct {
	MinAnnotations int64                `json:"min_annotations"`
	Tomograms      []query.RichTomogram `json:"tomograms"`
}

// RegisterTomogramsEndpoints registers the tomogram query endpoints
func RegisterTomogramsEndpoints(s *server.Server) {
	tomogramsRouter := s.Router.PathPrefix("/tomograms").Subrouter()

	// rich must be registered before {name} so it is not captured as a name
	tomogramsRouter.HandleFunc("/rich", handleRichTomograms(s.Querier)).Methods("GET")
	tomogramsRouter.HandleFunc("/{name}/count", handleCountAnnotations(s.Querier)).Methods("GET")
}

func handleCountAnnotations(q query.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := url.PathUnescape(mux.Vars(r)["name"])
		if err != nil || name == "" {
			respondWithError(w, http.StatusBadRequest, "invalid tomogram name")
			return
		}

		count, err := q.CountAnnotations(r.Context(), name)
		if err != nil {
			respondWithQueryError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, AnnotationCountResponse{TomoName: name, AnnotationCount: count})
	}
}

func handleRichTomograms(q query.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		minCount := int64(query.DefaultMinAnnotations)
		if raw := r.URL.Query().Get("min_annotations"); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, "min_annotations must be an integer")
				return
			}
			minCount = v
		}

		tomograms, err := q.FindRichTomograms(r.Context(), minCount)
		if err != nil {
			respondWithQueryError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, RichTomogramsResponse{MinAnnotations: minCount, Tomograms: tomograms})
	}
}
