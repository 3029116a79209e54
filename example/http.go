package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Zereker/bcp"
)

// newRouter exposes health, metrics and a small control surface for
// poking the peer by hand.
func newRouter(iface *bcp.Interface, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"state":      iface.ConnectionState().String(),
			"categories": categoryNames(iface.Categories().Keys()),
			"triggers":   iface.Events().Keys(),
		})
	})

	r.Post("/switches/{name}", func(w http.ResponseWriter, req *http.Request) {
		active := true
		if s := req.URL.Query().Get("active"); s != "" {
			v, err := strconv.ParseBool(s)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid active value"})
				return
			}
			active = v
		}
		iface.EnqueueMessage(bcp.Switch{Name: chi.URLParam(req, "name"), Active: active})
		w.WriteHeader(http.StatusAccepted)
	})

	r.Post("/triggers/{name}", func(w http.ResponseWriter, req *http.Request) {
		iface.EnqueueMessage(bcp.Trigger{Name: chi.URLParam(req, "name")})
		w.WriteHeader(http.StatusAccepted)
	})

	return r
}

func categoryNames(categories []bcp.MonitoringCategory) []string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.String())
	}
	return names
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
