package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

type catalogBody struct {
	URL string `json:"url"`
}

// HandleCatalog starts a catalog request; the response carries its id for polling
func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "POST":
		var body catalogBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		req, err := h.service.Start(r.Context(), strings.TrimSpace(body.URL))
		if err != nil {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeJSONStatus(w, req, http.StatusAccepted)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		h.writeJSON(w, h.service.Requests().GetAll())
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleRequestDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/requests/")

	req, ok := h.getRequestOrError(w, id)
	if !ok {
		return
	}

	switch r.Method {
	case "GET":
		h.writeJSON(w, req)
	case "DELETE":
		if !req.Done {
			h.writeError(w, "Request still running", http.StatusConflict)
			return
		}
		h.service.Requests().Delete(id)
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
