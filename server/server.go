// Package server exposes the letter exporter over HTTP.
//
// Routes under /api/v1 require a bearer token when a JWT secret is
// configured. /healthz is always open; the exporter's connectivity probe
// targets it.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/lvillar/letterpdf"
	"github.com/lvillar/letterpdf/config"
)

// Server routes HTTP requests to an Exporter.
type Server struct {
	exp    *letterpdf.Exporter
	log    *zap.Logger
	router chi.Router
	http   *http.Server
}

// New builds the router. secret may be empty, which disables authentication.
func New(exp *letterpdf.Exporter, cfg config.ServerConfig, secret string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{exp: exp, log: log}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recovery(log))
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}
	if cfg.MaxRequestSize > 0 {
		r.Use(RequestSizeLimit(cfg.MaxRequestSize))
	}

	r.Get("/healthz", s.health)
	r.Head("/healthz", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		if secret != "" {
			r.Use(Auth(secret))
		}
		r.Route("/letters/{id}", func(r chi.Router) {
			r.Get("/pdf", s.downloadPDF)
			r.Get("/preview", s.previewPDF)
			r.Get("/preview/pages/{page}.png", s.previewPage)
			r.Get("/print", s.printHTML)
			r.Get("/export/ws", s.exportWS)
			r.Post("/archive", s.archive)
		})
		r.Post("/bundles", s.bundle)
	})

	s.router = r
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // exports may take up to the export timeout
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
