package issues

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the issue service over HTTP.
type Handler struct {
	svc       *Service
	maxUpload int64
}

func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	return &Handler{svc: svc, maxUpload: maxUploadBytes}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes. Internal details stay in
// the log.
func writeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// SubmitHandler accepts a citizen report as multipart (with an optional
// "image" file) or urlencoded form.
func (h *Handler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := h.parseForm(r); err != nil {
		writeError(w, err)
		return
	}

	lat, err := parseCoord(r.FormValue("latitude"), "latitude")
	if err != nil {
		writeError(w, err)
		return
	}
	lng, err := parseCoord(r.FormValue("longitude"), "longitude")
	if err != nil {
		writeError(w, err)
		return
	}

	img, err := formFile(r, "image")
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := h.svc.Submit(r.Context(), NewIssue{
		Username:    r.FormValue("username"),
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
		Latitude:    lat,
		Longitude:   lng,
		Image:       img,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSONStatus(w, http.StatusCreated, map[string]int64{"id": id})
}

// ListHandler returns issue summaries filtered by category, status and
// urgency. A store failure degrades to an empty list.
func (h *Handler) ListHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.List(r.Context(), FiltersFromQuery(r.URL.Query()))
	w.Header().Set("Cache-Control", "no-store")
	if err != nil {
		log.Printf("[issues] list failed, serving empty result: %v", err)
		w.Header().Set("X-Data-Status", "degraded")
		writeJSON(w, []IssueSummary{})
		return
	}
	writeJSON(w, rows)
}

// ImageHandler serves one slot's bytes as image/png.
func (h *Handler) ImageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	slot, err := ParseSlot(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := h.svc.Images().FetchImage(r.Context(), id, slot)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("[images] fetch issue %d %s: %v", id, slot, err)
		}
		writeError(w, err)
		return
	}

	etag := imageETag(id, slot, data)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

type imageResponse struct {
	ID    int64 `json:"id"`
	Slot  Slot  `json:"slot"`
	Bytes int   `json:"bytes"`
}

// ReplaceImageHandler writes the "image" file into one slot, overwriting
// whatever was there. Administrators use it to fix a wrong photo without
// touching the lifecycle.
func (h *Handler) ReplaceImageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	slot, err := ParseSlot(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := h.parseForm(r); err != nil {
		writeError(w, err)
		return
	}
	data, err := formFile(r, "image")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.svc.Images().StoreImage(r.Context(), id, slot, data); err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrValidation) {
			log.Printf("[images] replace issue %d %s: %v", id, slot, err)
		}
		writeError(w, err)
		return
	}
	log.Printf("[images] replaced issue %d %s (%d bytes)", id, slot, len(data))
	writeJSON(w, imageResponse{ID: id, Slot: slot, Bytes: len(data)})
}

type updateResponse struct {
	ID         int64   `json:"id"`
	Status     Status  `json:"status"`
	Urgency    Urgency `json:"urgency"`
	AfterImage bool    `json:"after_image_stored"`
}

// UpdateHandler applies an administrator transition with an optional
// "after_image" file.
func (h *Handler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := h.parseForm(r); err != nil {
		writeError(w, err)
		return
	}

	status, err := ParseStatus(strings.TrimSpace(r.FormValue("status")))
	if err != nil {
		writeError(w, err)
		return
	}
	urgency, err := ParseUrgency(strings.TrimSpace(r.FormValue("urgency")))
	if err != nil {
		writeError(w, err)
		return
	}
	after, err := formFile(r, "after_image")
	if err != nil {
		writeError(w, err)
		return
	}

	t := Transition{ID: id, Status: status, Urgency: urgency, AfterImage: after}
	if err := h.svc.ApplyTransition(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, updateResponse{
		ID:         id,
		Status:     status,
		Urgency:    urgency,
		AfterImage: len(after) > 0 && status == StatusCompleted,
	})
}

func (h *Handler) parseForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var err error
	if mediaType == "multipart/form-data" {
		err = r.ParseMultipartForm(h.maxUpload)
	} else {
		err = r.ParseForm()
	}
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return fmt.Errorf("%w: malformed form: %v", ErrValidation, err)
}

// formFile reads an optional upload. A missing file is not an error.
func formFile(r *http.Request, field string) ([]byte, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	f, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrValidation, field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrValidation, field, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func parseCoord(raw, name string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", ErrValidation, name)
	}
	return &v, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid issue id %q", ErrValidation, raw)
	}
	return id, nil
}

// etagMatches reports whether an If-None-Match header names etag. The header
// may be "*" or a comma separated list, and weak tags compare equal.
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func imageETag(id int64, slot Slot, data []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf(`"%d-%s-%d-%x"`, id, slot, len(data), h.Sum64())
}
