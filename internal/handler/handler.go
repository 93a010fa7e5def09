package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/essayeval/internal/cache"
	"github.com/pavelanni/essayeval/internal/evaluator"
	"github.com/pavelanni/essayeval/internal/i18n"
	"github.com/pavelanni/essayeval/internal/model"
	"github.com/pavelanni/essayeval/internal/synthesis"
)

const maxBodyBytes = 1 << 20

// Evaluator runs one evaluation.
type Evaluator interface {
	EvaluateWriting(ctx context.Context, sub model.Submission) (*model.EvaluationResult, error)
}

// History reads stored results.
type History interface {
	Get(ctx context.Context, id string) (*model.EvaluationResult, error)
	List(ctx context.Context, f model.HistoryFilter) ([]model.EvaluationSummary, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	eval    Evaluator
	history History
	cache   cache.ResultCache
}

// New creates a new Handler. c may be nil.
func New(e Evaluator, h History, c cache.ResultCache) (*Handler, error) {
	if e == nil || h == nil {
		return nil, errors.New("handler needs an evaluator and a history store")
	}
	return &Handler{eval: e, history: h, cache: c}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/evaluations", h.handleEvaluate)
		r.Get("/evaluations", h.handleList)
		r.Get("/evaluations/{id}", h.handleGet)
		r.Post("/efficiency", h.handleEfficiency)
	})
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, data map[string]any, detail string) {
	writeJSON(w, status, errorResponse{
		Error:  i18n.Td(r.Context(), code, data),
		Code:   code,
		Detail: detail,
	})
}

func writeValidationError(w http.ResponseWriter, r *http.Request, ve *evaluator.ValidationError) {
	code := "FieldInvalid"
	switch {
	case ve.Field == "content" && ve.Constraint == "min":
		code = "ContentTooShort"
	case ve.Field == "content" && ve.Constraint == "max":
		code = "ContentTooLong"
	case ve.Constraint == "required":
		code = "FieldRequired"
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:  i18n.Td(r.Context(), code, map[string]any{"Field": ve.Field, "Param": ve.Param}),
		Code:   code,
		Field:  ve.Field,
		Detail: ve.Message,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", nil, err.Error())
		return false
	}
	return true
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var sub model.Submission
	if !decodeBody(w, r, &sub) {
		return
	}

	// A client disconnect must not abort agent calls already in flight.
	ctx := context.WithoutCancel(r.Context())
	res, err := h.eval.EvaluateWriting(ctx, sub)
	if err != nil {
		var ve *evaluator.ValidationError
		var se *synthesis.Error
		switch {
		case errors.As(err, &ve):
			writeValidationError(w, r, ve)
		case errors.As(err, &se):
			slog.Error("evaluation failed", "error", err)
			writeError(w, r, http.StatusInternalServerError, "EvaluationFailed", nil, err.Error())
		default:
			slog.Error("evaluation error", "error", err)
			writeError(w, r, http.StatusInternalServerError, "InternalError", nil, "")
		}
		return
	}

	h.remember(ctx, res)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.HistoryFilter{
		ExamType: strings.TrimSpace(q.Get("examType")),
		Subject:  strings.TrimSpace(q.Get("subject")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "InvalidRequest", nil, "invalid limit")
			return
		}
		f.Limit = n
	}

	list, err := h.history.List(r.Context(), f)
	if err != nil {
		slog.Error("failed to list evaluations", "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError", nil, "")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if h.cache != nil {
		res, err := h.cache.Get(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, res)
			return
		}
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("cache read failed", "id", id, "error", err)
		}
	}

	res, err := h.history.Get(r.Context(), id)
	if err != nil {
		slog.Error("failed to load evaluation", "id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError", nil, "")
		return
	}
	if res == nil {
		writeError(w, r, http.StatusNotFound, "NotFound", nil, "")
		return
	}
	h.remember(r.Context(), res)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleEfficiency(w http.ResponseWriter, r *http.Request) {
	var meta model.Metadata
	if !decodeBody(w, r, &meta) {
		return
	}
	meta, err := evaluator.ValidateMetadata(meta)
	if err != nil {
		var ve *evaluator.ValidationError
		if errors.As(err, &ve) {
			writeValidationError(w, r, ve)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "InternalError", nil, "")
		return
	}
	writeJSON(w, http.StatusOK, synthesis.ComputeEfficiency(&meta))
}

func (h *Handler) remember(ctx context.Context, res *model.EvaluationResult) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, res); err != nil {
		slog.Warn("cache write failed", "id", res.ID, "error", err)
	}
}
