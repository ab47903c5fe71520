package api

import (
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"

	"smartlists/handlers"
)

// Handlers groups everything Register mounts.
type Handlers struct {
	Lists   *handlers.ListsHandler
	Rules   *handlers.RulesHandler
	Status  *handlers.StatusHandler
	Webhook *handlers.WebhookHandler
}

// localhostOnlyMiddleware keeps the profiling endpoints off the network.
func localhostOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			http.Error(w, "Debug endpoints only accessible from localhost", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleOptions(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts the webhook, API and debug endpoints onto r.
func Register(r *mux.Router, h Handlers) {
	r.HandleFunc("/webhooks/jellyfin", h.Webhook.Jellyfin).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	api.HandleFunc("/status", h.Status.Get).Methods(http.MethodGet)

	api.HandleFunc("/rules/fields", h.Rules.Fields).Methods(http.MethodGet)
	api.HandleFunc("/rules/validate", h.Rules.Validate).Methods(http.MethodPost)
	api.HandleFunc("/rules/validate", handleOptions).Methods(http.MethodOptions)

	api.HandleFunc("/lists", h.Lists.List).Methods(http.MethodGet)
	api.HandleFunc("/lists", h.Lists.Create).Methods(http.MethodPost)
	api.HandleFunc("/lists", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/lists/{listID}", h.Lists.Get).Methods(http.MethodGet)
	api.HandleFunc("/lists/{listID}", h.Lists.Update).Methods(http.MethodPut)
	api.HandleFunc("/lists/{listID}", h.Lists.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/lists/{listID}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/lists/{listID}/refresh", h.Lists.Refresh).Methods(http.MethodPost)
	api.HandleFunc("/lists/{listID}/refresh", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/lists/{listID}/runs", h.Lists.Runs).Methods(http.MethodGet)
	api.HandleFunc("/lists/{listID}/members", h.Lists.Members).Methods(http.MethodGet)

	debug := r.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(localhostOnlyMiddleware)
	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.PathPrefix("/").HandlerFunc(pprof.Index)
}
