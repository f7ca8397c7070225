package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ratewatch/ratewatch/internal/service"
	"github.com/ratewatch/ratewatch/pkg/httputil"
	"github.com/ratewatch/ratewatch/pkg/validator"
)

// CurrencyHandler handles HTTP requests for currency record endpoints.
type CurrencyHandler struct {
	service *service.CurrencyService
	logger  *slog.Logger
}

// NewCurrencyHandler creates a new currency HTTP handler.
func NewCurrencyHandler(svc *service.CurrencyService, logger *slog.Logger) *CurrencyHandler {
	return &CurrencyHandler{service: svc, logger: logger}
}

// CurrencyRequest is the JSON request body for creating or updating a
// currency record.
type CurrencyRequest struct {
	Name string  `json:"nome" validate:"required,min=1,max=100"`
	High float64 `json:"alta" validate:"gte=0"`
	Low  float64 `json:"baixa" validate:"gte=0"`
}

// List handles GET /api/v1/currencies
func (h *CurrencyHandler) List(w http.ResponseWriter, r *http.Request) {
	currencies, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: currencies})
}

// Create handles POST /api/v1/currencies. The record is accepted into the
// durable queue and persisted by the worker, so the response is 202 with the
// assigned ID rather than 201.
func (h *CurrencyHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	currency, err := h.service.Create(r.Context(), service.CurrencyInput{
		Name: req.Name,
		High: req.High,
		Low:  req.Low,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: currency})
}

// Update handles PUT /api/v1/currencies/{id}
func (h *CurrencyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	currency, err := h.service.Update(r.Context(), id.String(), service.CurrencyInput{
		Name: req.Name,
		High: req.High,
		Low:  req.Low,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: currency})
}

// Delete handles DELETE /api/v1/currencies/{id}
func (h *CurrencyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CurrencyHandler) decode(w http.ResponseWriter, r *http.Request) (CurrencyRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req CurrencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return CurrencyRequest{}, false
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return CurrencyRequest{}, false
	}

	return req, true
}
