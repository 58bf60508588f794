package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"feedsnap/internal/blacklist"
	"feedsnap/internal/domain"
)

const shutdownTimeout = 10 * time.Second

// SnapshotService is the part of the refresh manager the routes depend on.
type SnapshotService interface {
	Latest() (*domain.Snapshot, error)
	Refresh(ctx context.Context, reason string) (*blacklist.RefreshOutcome, error)
}

type handler struct {
	service SnapshotService
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// NewRouter builds the HTTP surface. A nil gatherer leaves /metrics unregistered.
func NewRouter(service SnapshotService, gatherer prometheus.Gatherer) http.Handler {
	h := &handler{service: service}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/snapshot", h.getSnapshot)
	r.Get("/snapshot/{name}", h.getFeed)
	r.Post("/refresh", h.refresh)
	r.Get("/healthz", h.health)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func (h *handler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Latest()
	if err != nil {
		writeError(w, "no snapshot captured yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) getFeed(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	snap, err := h.service.Latest()
	if err != nil {
		writeError(w, "no snapshot captured yet", http.StatusNotFound)
		return
	}

	feed, ok := snap.Feeds[name]
	if !ok {
		writeError(w, fmt.Sprintf("unknown feed %q", name), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	// The run outlives a client that hangs up; other callers may share it.
	outcome, err := h.service.Refresh(context.WithoutCancel(r.Context()), "api")
	if err != nil {
		log.Error("Manual refresh failed", "error", err)
		if outcome == nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   err.Error(),
			"outcome": outcome,
		})
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "last_run": nil}
	if snap, err := h.service.Latest(); err == nil {
		body["last_run"] = snap.Timestamp
	} else if !errors.Is(err, blacklist.ErrNoSnapshot) {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started).Round(time.Microsecond),
		)
	})
}

// Serve listens on addr until ctx is done and then shuts the server down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting feedsnap API", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	log.Info("API server stopped")
	return nil
}
