package mapview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/EmpoweredVote/meresahar/internal/issues"
	"github.com/go-chi/chi/v5"
)

// Lister is the read side of the issue service.
type Lister interface {
	List(ctx context.Context, f issues.Filters) ([]issues.IssueSummary, error)
	Issue(ctx context.Context, id int64) (issues.IssueSummary, error)
}

// View is the initial map viewport and tile layer.
type View struct {
	Center      LatLng `json:"center"`
	Zoom        int    `json:"zoom"`
	MaxZoom     int    `json:"max_zoom"`
	TileURL     string `json:"tile_url"`
	Attribution string `json:"attribution"`
}

// DefaultView centers on India at country zoom over OpenStreetMap tiles.
func DefaultView(maxZoom int) View {
	return View{
		Center:      LatLng{Lat: 20.5937, Lng: 78.9629},
		Zoom:        5,
		MaxZoom:     maxZoom,
		TileURL:     "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "&copy; OpenStreetMap contributors",
	}
}

type Handler struct {
	lister   Lister
	opts     Options
	view     View
	imageURL ImageURLFunc
}

// NewHandler serves map payloads. imageBase is where the issues router is
// mounted, e.g. "/issues".
func NewHandler(lister Lister, opts Options, imageBase string) *Handler {
	opts = opts.normalized()
	return &Handler{
		lister:   lister,
		opts:     opts,
		view:     DefaultView(opts.MaxZoom),
		imageURL: ImageURL(imageBase),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type configResponse struct {
	View
	ClusterRadius   float64    `json:"cluster_radius"`
	Legend          []Encoding `json:"legend"`
	LoadingText     string     `json:"loading_text"`
	UnavailableText string     `json:"unavailable_text"`
	NoImagesText    string     `json:"no_images_text"`
}

func (h *Handler) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, configResponse{
		View:            h.view,
		ClusterRadius:   h.opts.Radius,
		Legend:          Legend(),
		LoadingText:     LoadingText,
		UnavailableText: UnavailableText,
		NoImagesText:    NoImagesText,
	})
}

type clustersResponse struct {
	Zoom     int       `json:"zoom"`
	MaxZoom  int       `json:"max_zoom"`
	Placed   int       `json:"placed"`
	Skipped  int       `json:"skipped"`
	Features []Feature `json:"features"`
}

// ClustersHandler answers a viewport query: zoom, an optional bbox
// (west, south, east, north) and the listing filters.
func (h *Handler) ClustersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	zoom := h.view.Zoom
	if v := strings.TrimSpace(q.Get("zoom")); v != "" {
		z, err := strconv.Atoi(v)
		if err != nil || z < 0 {
			http.Error(w, "zoom must be a non-negative integer", http.StatusBadRequest)
			return
		}
		zoom = z
	}

	bbox, err := parseBBox(q.Get("west"), q.Get("south"), q.Get("east"), q.Get("north"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	rows, err := h.lister.List(r.Context(), issues.FiltersFromQuery(q))
	if err != nil {
		log.Printf("[map] list failed, serving empty map: %v", err)
		w.Header().Set("X-Data-Status", "degraded")
		writeJSON(w, clustersResponse{Zoom: zoom, MaxZoom: h.opts.MaxZoom, Features: []Feature{}})
		return
	}

	ix := NewIndex(rows, h.opts)
	writeJSON(w, clustersResponse{
		Zoom:     zoom,
		MaxZoom:  ix.MaxZoom(),
		Placed:   ix.Placed,
		Skipped:  ix.Skipped,
		Features: ix.Clusters(bbox, zoom),
	})
}

// PopupHandler returns the popup descriptor with its image slots still
// loading; the client fetches each URL when the popup opens.
func (h *Handler) PopupHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid issue id", http.StatusBadRequest)
		return
	}

	row, err := h.lister.Issue(r.Context(), id)
	switch {
	case errors.Is(err, issues.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
		return
	case err != nil:
		log.Printf("[map] popup for issue %d: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, NewPopup(row, h.imageURL))
}

func parseBBox(west, south, east, north string) (BBox, error) {
	raw := []string{west, south, east, north}
	empty := 0
	for _, v := range raw {
		if strings.TrimSpace(v) == "" {
			empty++
		}
	}
	if empty == len(raw) {
		return World, nil
	}
	if empty > 0 {
		return BBox{}, fmt.Errorf("bbox needs west, south, east and north")
	}

	var vals [4]float64
	for i, v := range raw {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("bbox value %q is not a number", v)
		}
		vals[i] = f
	}
	b := BBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
	if b.South > b.North {
		return BBox{}, fmt.Errorf("bbox south must not exceed north")
	}
	return b, nil
}

func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/config", h.ConfigHandler)
	r.Get("/clusters", h.ClustersHandler)
	r.Get("/markers/{id}/popup", h.PopupHandler)

	return r
}
