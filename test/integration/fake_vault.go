package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// FakeVault serves the subset of the Vault HTTP API used by the secret
// store client: sys/health and KV v2 read/write with check-and-set.
type FakeVault struct {
	*httptest.Server

	mu       sync.Mutex
	secrets  map[string]map[string]interface{}
	versions map[string]int
	sealed   bool
}

// NewFakeVault starts a fake Vault on a local port.
func NewFakeVault() *FakeVault {
	v := &FakeVault{}
	v.Reset()

	r := mux.NewRouter()
	r.HandleFunc("/v1/sys/health", v.handleHealth).Methods("GET", "HEAD")
	r.HandleFunc("/v1/{mount}/data/{path:.+}", v.handleRead).Methods("GET")
	r.HandleFunc("/v1/{mount}/data/{path:.+}", v.handleWrite).Methods("PUT", "POST")
	v.Server = httptest.NewServer(r)
	return v
}

// Reset forgets every stored secret and unseals.
func (v *FakeVault) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets = make(map[string]map[string]interface{})
	v.versions = make(map[string]int)
	v.sealed = false
}

// SetSealed makes the health endpoint report a sealed Vault.
func (v *FakeVault) SetSealed(sealed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sealed = sealed
}

// Secret returns the data stored at mount/path.
func (v *FakeVault) Secret(mount, path string) (map[string]interface{}, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	data, ok := v.secrets[mount+"/"+path]
	return data, ok
}

// Versions returns how many times mount/path was written.
func (v *FakeVault) Versions(mount, path string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.versions[mount+"/"+path]
}

func (v *FakeVault) handleHealth(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	sealed := v.sealed
	v.mu.Unlock()

	code := http.StatusOK
	if sealed {
		// the client asks for sealedcode=299 so the body is still parsed
		code = http.StatusServiceUnavailable
		if c, err := strconv.Atoi(r.URL.Query().Get("sealedcode")); err == nil {
			code = c
		}
	}
	writeJSON(w, code, map[string]interface{}{
		"initialized":  true,
		"sealed":       sealed,
		"standby":      false,
		"version":      "1.15.0",
		"cluster_name": "fake",
	})
}

func (v *FakeVault) handleRead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := vars["mount"] + "/" + vars["path"]

	v.mu.Lock()
	data, ok := v.secrets[key]
	version := v.versions[key]
	v.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"errors": []string{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"data":     data,
			"metadata": versionMetadata(version),
		},
	})
}

func (v *FakeVault) handleWrite(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := vars["mount"] + "/" + vars["path"]

	var body struct {
		Data    map[string]interface{} `json:"data"`
		Options struct {
			CAS *int `json:"cas"`
		} `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": []string{err.Error()}})
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	current := v.versions[key]
	if body.Options.CAS != nil && *body.Options.CAS != current {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"errors": []string{"check-and-set parameter did not match the current version"},
		})
		return
	}

	v.secrets[key] = body.Data
	v.versions[key] = current + 1
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": versionMetadata(current + 1)})
}

func versionMetadata(version int) map[string]interface{} {
	return map[string]interface{}{
		"created_time":    time.Now().UTC().Format(time.RFC3339Nano),
		"custom_metadata": nil,
		"deletion_time":   "",
		"destroyed":       false,
		"version":         version,
	}
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
