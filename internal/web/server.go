// Package web serves the honeypot dashboard API and the live activity feed.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/user/honeypulse/internal/report"
	"github.com/user/honeypulse/internal/storage"
	"github.com/user/honeypulse/internal/util"
)

// Server is the web server.
type Server struct {
	db     *storage.DB
	config *util.Config
	port   int
	hub    *Hub
	srv    *http.Server
}

// NewServer creates a new web server. db may be nil, which disables the
// report cache.
func NewServer(db *storage.DB, cfg *util.Config, port int) *Server {
	return &Server{
		db:     db,
		config: cfg,
		port:   port,
		hub:    NewHub(),
	}
}

// Hub returns the live feed hub. Publishing to it reaches every client
// connected to /api/live.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	gen := report.NewGenerator(s.db, s.config)
	geo := NewGeoLocator(s.config.GeoIPURL)
	h := NewHandlers(s.config, gen, s.hub, geo)
	a := NewAnalyticsHandlers(s.config, gen, geo)

	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)
	api.HandleFunc("/honeypot-data", h.APIHoneypotData).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/report", h.APIGetReport).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/logs", h.APIGetLogs).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/status", h.APIGetStatus).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/geoip", h.GeoIPHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/live", s.hub.ServeWS)

	api.HandleFunc("/analytics/trend", a.GetTrend).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/analytics/attackers", a.GetAttackers).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/analytics/mermaid", a.MermaidDiagram).Methods(http.MethodGet, http.MethodOptions)

	r.HandleFunc("/report", h.DownloadReport).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/", h.Dashboard).Methods(http.MethodGet)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		util.Info("Web server starting on port %d", s.port)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return s.Stop()
}

// Stop stops the web server and disconnects live feed clients.
func (s *Server) Stop() error {
	s.hub.Close()
	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
