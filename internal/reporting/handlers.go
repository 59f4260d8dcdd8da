package reporting

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// SummaryHandler always answers 200 so the dashboard stays usable; a failed
// computation is flagged in the body and the X-Data-Status header.
func (h *Handler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Summary(r.Context())
	if err != nil {
		w.Header().Set("X-Data-Status", "degraded")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(report)
}

func SetupRoutes(h *Handler, admin ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(admin...)
	r.Get("/summary", h.SummaryHandler)
	return r
}
