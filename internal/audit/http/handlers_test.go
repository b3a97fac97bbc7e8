package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clinovault/clinovault/internal/audit"
	"github.com/clinovault/clinovault/internal/policy"
	"github.com/clinovault/clinovault/internal/principal"
	"github.com/clinovault/clinovault/internal/shared"
	_ "github.com/clinovault/clinovault/testing"
)

type stubTrailService struct {
	result      audit.Result
	entries     []audit.Entry
	err         error
	lastFilters audit.Filters
}

func (s *stubTrailService) Query(ctx context.Context, p *principal.Principal, filters audit.Filters) (audit.Result, error) {
	s.lastFilters = filters
	if s.err != nil {
		return audit.Result{}, s.err
	}
	return s.result, nil
}

func (s *stubTrailService) Export(ctx context.Context, p *principal.Principal, filters audit.Filters) ([]audit.Entry, error) {
	s.lastFilters = filters
	if s.err != nil {
		return nil, s.err
	}
	return s.entries, nil
}

func auditorContext() context.Context {
	p := &principal.Principal{ID: "officer-1", OrgID: "org-1", Roles: []policy.Role{"security-officer"}}
	return principal.WithContext(context.Background(), p)
}

func sampleEntry() audit.Entry {
	return audit.Entry{
		ID:          uuid.New(),
		At:          time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		PrincipalID: "user-9",
		Roles:       []string{"physician", "staff"},
		Attribute:   "view-clinical",
		SubjectType: "record",
		SubjectID:   "rec-1",
		Outcome:     policy.OutcomeGranted,
		Reason:      "role physician",
	}
}

func TestHandleQueryReturnsEntries(t *testing.T) {
	service := &stubTrailService{result: audit.Result{
		Entries: []audit.Entry{sampleEntry()},
		Paging:  audit.PagingInfo{Page: 1, HasNext: true},
	}}
	h := NewHandler(nil, service, audit.NewExporter())

	req := httptest.NewRequest(http.MethodGet, "/?principal=user-9&attribute=view-clinical", nil)
	req = req.WithContext(auditorContext())
	rec := httptest.NewRecorder()
	h.handleQuery(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	require.Equal(t, "user-9", resp.Entries[0].PrincipalID)
	require.Equal(t, "granted", resp.Entries[0].Outcome)
	require.True(t, resp.HasNext)
	require.Equal(t, "user-9", service.lastFilters.PrincipalID)
	require.Equal(t, "view-clinical", service.lastFilters.Attribute)
}

func TestHandleQueryDefaultsDateRange(t *testing.T) {
	service := &stubTrailService{}
	h := NewHandler(nil, service, audit.NewExporter())
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auditorContext())
	h.handleQuery(httptest.NewRecorder(), req)

	require.Equal(t, fixed, service.lastFilters.To)
	require.Equal(t, fixed.Add(-defaultDateRange), service.lastFilters.From)
}

func TestHandleQueryRejectsBadRanges(t *testing.T) {
	for _, raw := range []string{
		"?from=not-a-time",
		"?from=2026-03-10T00:00:00Z&to=2026-03-01T00:00:00Z",
		"?from=2025-01-01T00:00:00Z&to=2026-01-01T00:00:00Z",
		"?page=0",
		"?page_size=-5",
	} {
		req := httptest.NewRequest(http.MethodGet, "/"+raw, nil)
		req = req.WithContext(auditorContext())
		rec := httptest.NewRecorder()
		NewHandler(nil, &stubTrailService{}, audit.NewExporter()).handleQuery(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, raw)
	}
}

func TestHandleQueryDeniedPrincipal(t *testing.T) {
	service := &stubTrailService{err: shared.ErrNotPermitted}
	h := NewHandler(nil, service, audit.NewExporter())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auditorContext())
	rec := httptest.NewRecorder()
	h.handleQuery(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleExportWritesCSVAttachment(t *testing.T) {
	service := &stubTrailService{entries: []audit.Entry{sampleEntry()}}
	h := NewHandler(nil, service, audit.NewExporter())

	req := httptest.NewRequest(http.MethodGet, "/export", nil)
	req = req.WithContext(auditorContext())
	rec := httptest.NewRecorder()
	h.handleExport(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "user-9"))
	require.True(t, strings.Contains(body, "view-clinical"))
}
