// Package server exposes the panel and variant management as a JSON API.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Nickm615/personalization-custom-app-example/pkg/kontent"
	"github.com/Nickm615/personalization-custom-app-example/pkg/panel"
	"github.com/Nickm615/personalization-custom-app-example/pkg/personalization"
)

const requestIDHeader = "X-Request-Id"

// Service serves panel snapshots and variant changes.
type Service struct {
	loader  *panel.Loader
	manager *personalization.Manager
	metrics http.Handler
	logger  *zap.Logger
}

// NewService creates a Service. metrics may be nil.
func NewService(loader *panel.Loader, manager *personalization.Manager, metrics http.Handler, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{loader: loader, manager: manager, metrics: metrics, logger: logger}
}

// Router returns a router with the service mounted.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP registers the service endpoints on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Route("/api/v1/environments/{env}/items/{item}/languages/{lang}", func(r chi.Router) {
		r.Get("/panel", s.handlePanel)
		r.Post("/variants", s.handleCreateVariant)
		r.Delete("/variants/{variant}", s.handleDeleteVariant)
	})
}

func (s *Service) handlePanel(w http.ResponseWriter, r *http.Request) {
	snap, err := s.loader.Load(r.Context(), chi.URLParam(r, "env"), chi.URLParam(r, "item"), chi.URLParam(r, "lang"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type createVariantBody struct {
	AudienceTermID string `json:"audienceTermId"`
}

func (s *Service) handleCreateVariant(w http.ResponseWriter, r *http.Request) {
	var body createVariantBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}
	ctx := r.Context()
	req, err := s.loader.VariantRequest(ctx, chi.URLParam(r, "env"), chi.URLParam(r, "item"), chi.URLParam(r, "lang"), body.AudienceTermID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp, err := s.manager.CreateVariant(ctx, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("variant created",
		zap.String("base_item_id", req.SourceItemID),
		zap.String("variant_item_id", resp.ItemID),
		zap.String("audience", req.AudienceName))
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Service) handleDeleteVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	env, item, lang := chi.URLParam(r, "env"), chi.URLParam(r, "item"), chi.URLParam(r, "lang")
	els, err := s.loader.BaseElements(ctx, env, item, lang)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	variant := chi.URLParam(r, "variant")
	if err := s.manager.DeleteVariant(ctx, env, item, lang, els.ContentVariants, variant); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("variant deleted", zap.String("base_item_id", item), zap.String("variant_item_id", variant))
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Service) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get(requestIDHeader)),
			zap.Error(err))
	}
	msg := err.Error()
	var fe *personalization.FetchError
	if errors.As(err, &fe) {
		msg = fe.Message
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func statusFor(err error) int {
	var apiErr *kontent.APIError
	switch {
	case errors.Is(err, personalization.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, kontent.ErrNotFound), errors.Is(err, personalization.ErrNotLinked):
		return http.StatusNotFound
	case errors.Is(err, panel.ErrNotBaseItem):
		return http.StatusConflict
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestID keeps an incoming X-Request-Id or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", r.Header.Get(requestIDHeader)),
			zap.String("remote", r.RemoteAddr))
	})
}
