package handlers

import (
	"net/http"
)

func (h *Handler) HandleCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		h.writeJSON(w, h.cache.Entries())
	case "DELETE":
		if err := h.service.ClearCache(); err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
