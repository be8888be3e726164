package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"

	"github.com/autoclaim/autoclaim/internal/metrics"
	"github.com/autoclaim/autoclaim/internal/scheduler"
)

// StatusFunc reports the daemon's progress for /healthz.
type StatusFunc func() scheduler.Status

type health struct {
	Status string           `json:"status"`
	Daemon scheduler.Status `json:"daemon"`
}

// NewHandler routes /healthz, /metrics and the latest report page at /.
// An empty pagePath disables the page route.
func NewHandler(collector *metrics.Collector, status StatusFunc, pagePath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		body := health{Status: "ok"}
		if status != nil {
			body.Daemon = status()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
	})

	mux.Handle("GET /metrics", collector.Handler())

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		if pagePath == "" {
			http.NotFound(w, r)
			return
		}
		if _, err := os.Stat(pagePath); errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "no report rendered yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, pagePath)
	})

	return collector.InstrumentHandler(mux)
}
