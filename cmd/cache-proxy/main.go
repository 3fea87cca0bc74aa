// cache-proxy exposes the product cache engine over HTTP: single and
// batch product lookups, preload, invalidation, stats and health.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/retailstack/product-cache/internal/config"
	"github.com/retailstack/product-cache/pkg/catalog"
	"github.com/retailstack/product-cache/pkg/engine"
	"github.com/retailstack/product-cache/pkg/logging"
	"github.com/retailstack/product-cache/pkg/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		fallback := logging.NewLogger("cache-proxy")
		fallback.Fatal().Err(err).Msg("Configuration invalid")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.LogLevel)
	logCfg.Pretty = cfg.LogPretty
	logging.Setup(logCfg)
	logger := logging.NewLogger("cache-proxy")

	reg := registry.New(cfg.RegistryOptions())

	ctx := context.Background()
	eng, err := reg.Engine(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to construct cache engine")
	}

	srv := newServer(reg, eng, cfg.RemoteCacheEnabled, logger)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.routes(),
	}

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Starting cache proxy")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := reg.ShutdownAll(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Component shutdown failed")
	}
}

type server struct {
	registry      *registry.Registry
	engine        *engine.Engine
	remoteEnabled bool
	logger        zerolog.Logger
}

func newServer(reg *registry.Registry, eng *engine.Engine, remoteEnabled bool, logger zerolog.Logger) *server {
	return &server{registry: reg, engine: eng, remoteEnabled: remoteEnabled, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products/{id}", s.handleGetProduct)
	mux.HandleFunc("GET /products", s.handleGetProducts)
	mux.HandleFunc("DELETE /products/{id}", s.handleInvalidate)
	mux.HandleFunc("POST /preload", s.handlePreload)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /stats/reset", s.handleResetStats)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.engine.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *server) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		http.Error(w, "missing ids parameter", http.StatusBadRequest)
		return
	}

	ids := splitIDs(raw)
	products, err := s.engine.GetProducts(r.Context(), ids)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Invalidate(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type preloadRequest struct {
	IDs         []string `json:"ids"`
	Concurrency int      `json:"concurrency"`
}

func (s *server) handlePreload(w http.ResponseWriter, r *http.Request) {
	var req preloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		http.Error(w, "ids must not be empty", http.StatusBadRequest)
		return
	}

	if err := s.engine.Preload(r.Context(), req.IDs, req.Concurrency); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"preloaded": len(req.IDs)})
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *server) handleResetStats(w http.ResponseWriter, _ *http.Request) {
	s.engine.ResetStats()
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth reports liveness plus the remote cache state. A down remote
// cache does not fail the check: the engine degrades to local-plus-source
// and keeps serving. When the remote tier is disabled the check never
// touches Redis, so it cannot lazily construct a client nobody uses.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "up"}

	if !s.remoteEnabled {
		health["remote_cache"] = "disabled"
	} else if remote, err := s.registry.RemoteCache(r.Context()); err == nil {
		health["remote_cache"] = remote.HealthCheck(r.Context())
	} else {
		health["remote_cache"] = "unavailable"
	}
	if store, err := s.registry.LocalStore(r.Context()); err == nil {
		health["local_entries"] = store.Len()
	}

	writeJSON(w, http.StatusOK, health)
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrInvalidArgument) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Error().Err(err).Msg("Request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func splitIDs(raw string) []string {
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
