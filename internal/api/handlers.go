package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/stepd/internal/publish"
	"github.com/roach88/stepd/internal/sensor"
)

// Error codes in JSON error bodies.
const (
	CodeBadRequest  = "E201"
	CodeUnavailable = "E202"
	CodeInternal    = "E203"
)

// DefaultHistoryLimit caps /history when no limit is given.
const DefaultHistoryLimit = 30

const maxBodyBytes = 1 << 10

type handlers struct {
	deps     Deps
	validate *validator.Validate
}

// ReadingRequest is the POST /readings body.
type ReadingRequest struct {
	Odometer *int64 `json:"odometer" validate:"required,gte=0"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		if err := h.deps.Health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "store unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) today(w http.ResponseWriter, r *http.Request) {
	rec := h.deps.Tracker.Today(r.Context())
	writeJSON(w, http.StatusOK, publish.NewSummary(rec, h.deps.Goal, h.deps.Body))
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	totals, err := h.deps.History.History(r.Context(), limit)
	if err != nil {
		slog.Error("history query", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (h *handlers) postReading(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ingest == nil {
		writeError(w, http.StatusConflict, CodeUnavailable, "readings are only accepted with the manual sensor")
		return
	}

	var req ReadingRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, validationMessage(err))
		return
	}

	if err := h.deps.Ingest.Push(*req.Odometer); err != nil {
		if errors.Is(err, sensor.ErrNegativeValue) {
			writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}

	// Reconciled on the next check-in cycle
	writeJSON(w, http.StatusAccepted, map[string]int64{"odometer": *req.Odometer})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return "odometer is required"
		case "gte":
			return "odometer must not be negative"
		}
		return fmt.Sprintf("odometer fails %s", fe.Tag())
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}
