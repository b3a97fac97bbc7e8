package audithttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers audit trail routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleQuery)
	r.Get("/export", h.handleExport)
}
