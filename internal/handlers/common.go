package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/furnisher/internal/furniture"
	"github.com/lehigh-university-libraries/furnisher/internal/layout"
	"github.com/lehigh-university-libraries/furnisher/internal/modelcache"
	"github.com/lehigh-university-libraries/furnisher/internal/models"
)

type Handler struct {
	service *furniture.Service
	cache   *modelcache.Cache
	layouts *layout.Store
	manager *layout.Manager
}

func New(service *furniture.Service, cache *modelcache.Cache, layouts *layout.Store, manager *layout.Manager) *Handler {
	return &Handler{
		service: service,
		cache:   cache,
		layouts: layouts,
		manager: manager,
	}
}

// Routes registers every API endpoint on mux
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/catalog", h.HandleCatalog)
	mux.HandleFunc("/api/requests", h.HandleRequests)
	mux.HandleFunc("/api/requests/", h.HandleRequestDetail)
	mux.HandleFunc("/api/cache", h.HandleCache)
	mux.HandleFunc("/api/layouts", h.HandleLayouts)
	mux.HandleFunc("/api/layouts/", h.HandleLayoutDetail)
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, data, http.StatusOK)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Debug(message, "code", code)
	}
	http.Error(w, message, code)
}

// Request helpers
func (h *Handler) getRequestOrError(w http.ResponseWriter, id string) (*models.CatalogRequest, bool) {
	req, exists := h.service.Requests().Get(id)
	if !exists {
		h.writeError(w, "Request not found", http.StatusNotFound)
		return nil, false
	}
	return req, true
}
