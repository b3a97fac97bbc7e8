package records

import "github.com/go-chi/chi/v5"

// MountRoutes registers record routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{recordID}", h.handleGet)
	r.Patch("/{recordID}", h.handleUpdate)
}
