package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/felo/eml-metadata/internal/batch"
	"github.com/felo/eml-metadata/internal/config"
	"github.com/felo/eml-metadata/internal/csvlog"
	"github.com/felo/eml-metadata/internal/logger"
	"github.com/felo/eml-metadata/internal/parser"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	cfg       *config.Config
	parser    *parser.Parser
	log       *csvlog.Log
	processor *batch.Processor
	logger    logger.Logger

	processing sync.Mutex
}

// New creates a new Handlers instance
func New(cfg *config.Config, p *parser.Parser, log *csvlog.Log, processor *batch.Processor, l logger.Logger) *Handlers {
	if l == nil {
		l = logger.NopLogger()
	}
	return &Handlers{
		cfg:       cfg,
		parser:    p,
		log:       log,
		processor: processor,
		logger:    l,
	}
}

// Routes returns the router serving every endpoint
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", h.Health)
	r.Post("/parse", h.Parse)
	r.Get("/records", h.Records)
	r.Post("/process", h.Process)

	return r
}

// Health reports that the server is up
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Errorw("failed to encode response", "error", err)
	}
}
