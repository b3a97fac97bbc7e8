package records

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clinovault/clinovault/internal/platform/httpx"
	"github.com/clinovault/clinovault/internal/principal"
)

// RecordService defines the business contract the handler depends on.
type RecordService interface {
	Get(ctx context.Context, p *principal.Principal, id uuid.UUID, requested []string) (*FilteredRecord, error)
	Update(ctx context.Context, p *principal.Principal, id uuid.UUID, updates map[string]string) error
	Create(ctx context.Context, p *principal.Principal, in CreateInput) (uuid.UUID, error)
}

// Handler serves the record endpoints.
type Handler struct {
	logger   *slog.Logger
	service  RecordService
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service RecordService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type createRequest struct {
	RecordType string            `json:"record_type" validate:"required"`
	PatientID  string            `json:"patient_id" validate:"omitempty,uuid"`
	Fields     map[string]string `json:"fields" validate:"required,min=1"`
}

type createResponse struct {
	ID string `json:"id"`
}

type updateRequest struct {
	Fields map[string]string `json:"fields" validate:"required,min=1"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid record id")
		return
	}
	var requested []string
	if raw := strings.TrimSpace(r.URL.Query().Get("fields")); raw != "" {
		for _, field := range strings.Split(raw, ",") {
			if field = strings.TrimSpace(field); field != "" {
				requested = append(requested, field)
			}
		}
	}
	filtered, err := h.service.Get(r.Context(), p, id, requested)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, filtered)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := CreateInput{
		RecordType: req.RecordType,
		OrgID:      p.OrgID,
		Fields:     req.Fields,
	}
	if req.PatientID != "" {
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid patient id")
			return
		}
		in.PatientID = patientID
	}
	id, err := h.service.Create(r.Context(), p, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createResponse{ID: id.String()})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid record id")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Update(r.Context(), p, id, req.Fields); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrValidation) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.RespondError(w, err)
}
