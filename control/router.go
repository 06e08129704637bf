// control/router.go
// Author: momentics <momentics@gmail.com>
//
// HTTP exposure of metrics and debug probes.

package control

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter returns a router serving:
//
//	GET /stats          metrics snapshot
//	GET /debug          every probe
//	GET /debug/{probe}  one probe, 404 if unknown
func NewRouter(metrics *MetricsRegistry, probes *DebugProbes) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/stats", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetSnapshot())
	}).Methods(http.MethodGet)
	r.HandleFunc("/debug", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, probes.DumpState())
	}).Methods(http.MethodGet)
	r.HandleFunc("/debug/{probe}", func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["probe"]
		v, ok := probes.Probe(name)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown probe " + name})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{name: v})
	}).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
