package issues

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newTestRouter(t *testing.T, policy TransitionPolicy, g Guards) http.Handler {
	t.Helper()
	svc, _ := newTestService(t, policy)
	return SetupRoutes(NewHandler(svc, 1<<20), g)
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if file != nil {
		fw, err := mw.CreateFormFile(fileField, "photo.png")
		if err != nil {
			t.Fatalf("create file: %v", err)
		}
		_, _ = fw.Write(file)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func submitID(t *testing.T, rec *httptest.ResponseRecorder) int64 {
	t.Helper()
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	return out["id"]
}

func TestSubmitAndFetchImage(t *testing.T) {
	h := newTestRouter(t, Permissive, Guards{})

	body, ct := multipartBody(t, map[string]string{
		"username":    "A",
		"category":    "Pothole",
		"description": "deep hole",
		"latitude":    "12.9",
		"longitude":   "77.6",
	}, "image", pngBytes)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", ct)
	id := submitID(t, do(t, h, req))

	path := "/" + strconv.FormatInt(id, 10) + "/images/before"
	rec := do(t, h, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), pngBytes) {
		t.Errorf("image bytes differ")
	}
	etag := rec.Header().Get("ETag")
	if etag == "" || !strings.Contains(rec.Header().Get("Cache-Control"), "max-age=86400") {
		t.Errorf("missing cache headers: %v", rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("If-None-Match", etag)
	if rec := do(t, h, req); rec.Code != http.StatusNotModified {
		t.Errorf("expected 304 for matching ETag, got %d", rec.Code)
	}

	after := "/" + strconv.FormatInt(id, 10) + "/images/after"
	if rec := do(t, h, httptest.NewRequest(http.MethodGet, after, nil)); rec.Code != http.StatusNotFound {
		t.Errorf("empty after slot: expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, httptest.NewRequest(http.MethodGet, "/999/images/before", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("missing record: expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, httptest.NewRequest(http.MethodGet, "/1/images/side", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("bad slot: expected 400, got %d", rec.Code)
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newTestRouter(t, Permissive, Guards{})

	tests := []struct {
		name string
		form url.Values
		want int
	}{
		{"missing category", url.Values{"description": {"x"}}, http.StatusBadRequest},
		{"non-numeric latitude", url.Values{"category": {"Pothole"}, "latitude": {"north"}}, http.StatusBadRequest},
		{"no coordinates", url.Values{"category": {"Pothole"}}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, postForm("/", tt.form))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSubmitTooLarge(t *testing.T) {
	svc, _ := newTestService(t, Permissive)
	h := SetupRoutes(NewHandler(svc, 64), Guards{})

	form := url.Values{"category": {"Pothole"}, "description": {strings.Repeat("x", 512)}}
	rec := do(t, h, postForm("/", form))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestListFiltersAndShape(t *testing.T) {
	h := newTestRouter(t, Permissive, Guards{})

	submitID(t, do(t, h, postForm("/", url.Values{"category": {"Pothole"}})))
	id := submitID(t, do(t, h, postForm("/", url.Values{"category": {"Garbage"}})))
	rec := do(t, h, postForm("/"+strconv.FormatInt(id, 10), url.Values{"status": {"Ongoing"}, "urgency": {"High"}}))
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/?status=Ongoing&bogus=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rows []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0]["category"] != "Garbage" || rows[0]["urgency"] != "High" {
		t.Fatalf("unexpected rows: %v", rows)
	}
	for _, key := range []string{"has_before", "has_after"} {
		if _, ok := rows[0][key]; !ok {
			t.Errorf("missing %s in listing", key)
		}
	}
	for _, key := range []string{"image", "after_image"} {
		if _, ok := rows[0][key]; ok {
			t.Errorf("listing leaked %s", key)
		}
	}
}

func TestListDegradesWhenStoreDown(t *testing.T) {
	svc := NewService(brokenStore{}, NewImageService(brokenStore{}, nil, time.Minute), Permissive)
	h := SetupRoutes(NewHandler(svc, 1<<20), Guards{})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Data-Status") != "degraded" {
		t.Errorf("expected degraded header")
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected empty array, got %q", body)
	}
}

func TestUpdateWithAfterImage(t *testing.T) {
	h := newTestRouter(t, Permissive, Guards{})
	id := submitID(t, do(t, h, postForm("/", url.Values{"category": {"Pothole"}})))
	idStr := strconv.FormatInt(id, 10)

	body, ct := multipartBody(t, map[string]string{"status": "Completed", "urgency": "High"}, "after_image", pngBytes)
	req := httptest.NewRequest(http.MethodPost, "/"+idStr, body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out updateResponse
	_ = json.NewDecoder(rec.Body).Decode(&out)
	if !out.AfterImage || out.Status != StatusCompleted {
		t.Errorf("unexpected response: %+v", out)
	}

	// Urgency edit without a file keeps the photo.
	rec = do(t, h, postForm("/"+idStr, url.Values{"status": {"Completed"}, "urgency": {"Low"}}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/"+idStr+"/images/after", nil))
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), pngBytes) {
		t.Errorf("after image lost: %d", rec.Code)
	}
}

func TestUpdateErrors(t *testing.T) {
	h := newTestRouter(t, ForwardOnly, Guards{})
	id := submitID(t, do(t, h, postForm("/", url.Values{"category": {"Pothole"}})))
	idStr := strconv.FormatInt(id, 10)

	tests := []struct {
		name string
		path string
		form url.Values
		want int
	}{
		{"unknown status", "/" + idStr, url.Values{"status": {"Closed"}, "urgency": {"Low"}}, http.StatusBadRequest},
		{"missing urgency", "/" + idStr, url.Values{"status": {"Ongoing"}}, http.StatusBadRequest},
		{"bad id", "/abc", url.Values{"status": {"Ongoing"}, "urgency": {"Low"}}, http.StatusBadRequest},
		{"unknown id", "/9999", url.Values{"status": {"Ongoing"}, "urgency": {"Low"}}, http.StatusNotFound},
		{"skips Ongoing", "/" + idStr, url.Values{"status": {"Completed"}, "urgency": {"Low"}}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, postForm(tt.path, tt.form))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUpdateRequiresGuards(t *testing.T) {
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Forbidden: admin access required", http.StatusForbidden)
		})
	}
	h := newTestRouter(t, Permissive, Guards{Admin: []func(http.Handler) http.Handler{deny}})

	id := submitID(t, do(t, h, postForm("/", url.Values{"category": {"Pothole"}})))
	rec := do(t, h, postForm("/"+strconv.FormatInt(id, 10), url.Values{"status": {"Ongoing"}, "urgency": {"Low"}}))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}

	if rec := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusOK {
		t.Errorf("listing should stay public, got %d", rec.Code)
	}
}

func TestImageConditionalRequests(t *testing.T) {
	h := newTestRouter(t, Permissive, Guards{})
	body, ct := multipartBody(t, map[string]string{"category": "Pothole"}, "image", pngBytes)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", ct)
	id := submitID(t, do(t, h, req))
	path := "/" + strconv.FormatInt(id, 10) + "/images/before"

	etag := do(t, h, httptest.NewRequest(http.MethodGet, path, nil)).Header().Get("ETag")
	tests := []struct {
		header string
		want   int
	}{
		{etag, http.StatusNotModified},
		{"W/" + etag, http.StatusNotModified},
		{`"stale", ` + etag, http.StatusNotModified},
		{"*", http.StatusNotModified},
		{`"stale"`, http.StatusOK},
		{"", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if tt.header != "" {
			req.Header.Set("If-None-Match", tt.header)
		}
		if rec := do(t, h, req); rec.Code != tt.want {
			t.Errorf("If-None-Match %q: expected %d, got %d", tt.header, tt.want, rec.Code)
		}
	}
}

func TestReplaceImage(t *testing.T) {
	h := newTestRouter(t, Permissive, Guards{})
	id := submitID(t, do(t, h, postForm("/", url.Values{"category": {"Pothole"}})))
	idStr := strconv.FormatInt(id, 10)

	put := func(path string, file []byte) *httptest.ResponseRecorder {
		body, ct := multipartBody(t, nil, "image", file)
		req := httptest.NewRequest(http.MethodPut, path, body)
		req.Header.Set("Content-Type", ct)
		return do(t, h, req)
	}

	rec := put("/"+idStr+"/images/before", []byte("fixed photo"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out imageResponse
	_ = json.NewDecoder(rec.Body).Decode(&out)
	if out.ID != id || out.Slot != SlotBefore || out.Bytes != len("fixed photo") {
		t.Errorf("unexpected response: %+v", out)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/"+idStr+"/images/before", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "fixed photo" {
		t.Errorf("replacement not served: %d %q", rec.Code, rec.Body.String())
	}

	if rec := put("/"+idStr+"/images/side", []byte("x")); rec.Code != http.StatusBadRequest {
		t.Errorf("bad slot: expected 400, got %d", rec.Code)
	}
	if rec := put("/"+idStr+"/images/after", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing file: expected 400, got %d", rec.Code)
	}
	if rec := put("/9999/images/after", []byte("x")); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", rec.Code)
	}
}
