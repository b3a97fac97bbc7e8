package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/clinovault/clinovault/internal/audit"
	"github.com/clinovault/clinovault/internal/platform/httpx"
	"github.com/clinovault/clinovault/internal/principal"
)

const (
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
)

// TrailService defines the business contract for audit trail reads.
type TrailService interface {
	Query(ctx context.Context, p *principal.Principal, filters audit.Filters) (audit.Result, error)
	Export(ctx context.Context, p *principal.Principal, filters audit.Filters) ([]audit.Entry, error)
}

// Exporter writes audit trail exports.
type Exporter interface {
	WriteCSV(entries []audit.Entry) ([]byte, error)
}

// Handler menangani permintaan jejak audit.
type Handler struct {
	logger   *slog.Logger
	service  TrailService
	exporter Exporter
	now      func() time.Time
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service TrailService, exporter Exporter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, exporter: exporter, now: time.Now}
}

type entryResponse struct {
	ID          string   `json:"id"`
	At          string   `json:"at"`
	PrincipalID string   `json:"principal_id"`
	Roles       []string `json:"roles"`
	Attribute   string   `json:"attribute"`
	SubjectType string   `json:"subject_type,omitempty"`
	SubjectID   string   `json:"subject_id,omitempty"`
	Outcome     string   `json:"outcome"`
	Reason      string   `json:"reason"`
}

type queryResponse struct {
	Entries []entryResponse `json:"entries"`
	Page    int             `json:"page"`
	HasNext bool            `json:"has_next"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Query(r.Context(), p, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := queryResponse{
		Entries: make([]entryResponse, 0, len(result.Entries)),
		Page:    result.Paging.Page,
		HasNext: result.Paging.HasNext,
	}
	for _, e := range result.Entries {
		resp.Entries = append(resp.Entries, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries, err := h.service.Export(r.Context(), p, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	data, err := h.exporter.WriteCSV(entries)
	if err != nil {
		h.logger.Error("audit export csv", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	filename := fmt.Sprintf("audit-%s.csv", h.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) parseFilters(r *http.Request) (audit.Filters, error) {
	query := r.URL.Query()
	filters := audit.Filters{
		PrincipalID: query.Get("principal"),
		SubjectID:   query.Get("subject"),
		Attribute:   query.Get("attribute"),
	}

	now := h.now().UTC()
	filters.To = now
	filters.From = now.Add(-defaultDateRange)
	if raw := query.Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filters{}, fmt.Errorf("invalid from timestamp")
		}
		filters.From = parsed
	}
	if raw := query.Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filters{}, fmt.Errorf("invalid to timestamp")
		}
		filters.To = parsed
	}
	if filters.To.Before(filters.From) {
		return audit.Filters{}, fmt.Errorf("date range reversed")
	}
	if filters.To.Sub(filters.From) > maxDateRangeHours*time.Hour {
		return audit.Filters{}, fmt.Errorf("date range exceeds %d days", maxDateRangeHours/24)
	}

	if raw := query.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return audit.Filters{}, fmt.Errorf("invalid page")
		}
		filters.Page = page
	}
	if raw := query.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return audit.Filters{}, fmt.Errorf("invalid page size")
		}
		filters.PageSize = size
	}
	return filters, nil
}

func toEntryResponse(e audit.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID.String(),
		At:          e.At.UTC().Format(time.RFC3339),
		PrincipalID: e.PrincipalID,
		Roles:       e.Roles,
		Attribute:   e.Attribute,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		Outcome:     string(e.Outcome),
		Reason:      e.Reason,
	}
}
