package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/furnisher/internal/layout"
	"github.com/lehigh-university-libraries/furnisher/internal/models"
)

func (h *Handler) HandleLayouts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		names, err := h.layouts.List()
		if err != nil {
			h.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, names)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleLayoutDetail serves /api/layouts/{name} and /api/layouts/{name}/load
func (h *Handler) HandleLayoutDetail(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/layouts/")
	if rest, ok := strings.CutSuffix(name, "/load"); ok {
		h.handleLayoutLoad(w, r, rest)
		return
	}

	switch r.Method {
	case "GET":
		l, err := h.layouts.Load(name)
		if err != nil {
			h.writeLayoutError(w, err)
			return
		}
		if l == nil {
			h.writeError(w, "Layout not found", http.StatusNotFound)
			return
		}
		h.writeJSON(w, l)
	case "PUT":
		var l models.Layout
		if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if l.Furniture == nil {
			l.Furniture = []models.PlacedItemRecord{}
		}
		if l.Surfaces == nil {
			l.Surfaces = []models.SurfaceRecord{}
		}
		if err := h.layouts.Save(&l, name); err != nil {
			h.writeLayoutError(w, err)
			return
		}
		h.writeJSON(w, l)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleLayoutLoad(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	report, err := h.manager.Load(r.Context(), name)
	if err != nil {
		h.writeLayoutError(w, err)
		return
	}
	if !report.Found {
		h.writeJSONStatus(w, report, http.StatusNotFound)
		return
	}
	h.writeJSON(w, report)
}

// writeLayoutError maps name validation failures to 400 and everything else to 500
func (h *Handler) writeLayoutError(w http.ResponseWriter, err error) {
	if errors.Is(err, layout.ErrInvalidName) {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeError(w, err.Error(), http.StatusInternalServerError)
}
