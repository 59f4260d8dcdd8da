package issues

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Guards are the middleware chains the caller supplies for protected routes.
type Guards struct {
	Admin  []func(http.Handler) http.Handler
	Submit []func(http.Handler) http.Handler
}

func SetupRoutes(h *Handler, g Guards) http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.ListHandler)
	r.Get("/{id}/images/{slot}", h.ImageHandler)

	r.Group(func(r chi.Router) {
		r.Use(g.Submit...)
		r.Post("/", h.SubmitHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(g.Admin...)
		r.Post("/{id}", h.UpdateHandler)
		r.Put("/{id}/images/{slot}", h.ReplaceImageHandler)
	})

	return r
}
