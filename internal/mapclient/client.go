package mapclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/EmpoweredVote/meresahar/internal/issues"
)

// Client talks to a running issues server. It satisfies mapview.Lister and
// mapview.ImageFetcher so the map engine can run against a remote backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:5050".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// List fetches the filtered listing. A degraded answer from the server is
// reported as issues.ErrStoreUnavailable rather than an empty map.
func (c *Client) List(ctx context.Context, f issues.Filters) ([]issues.IssueSummary, error) {
	params := url.Values{}
	for field, v := range f {
		if v != "" {
			params.Set(string(field), v)
		}
	}
	fullURL := c.baseURL + "/issues"
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	resp, err := c.get(ctx, fullURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list issues", resp)
	}
	if resp.Header.Get("X-Data-Status") == "degraded" {
		return nil, fmt.Errorf("list issues: %w", issues.ErrStoreUnavailable)
	}

	var rows []issues.IssueSummary
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	return rows, nil
}

// Issue finds one issue in the unfiltered listing. The server has no
// single-issue read, so every call downloads the whole list; fine for the CLI,
// not for hot paths.
func (c *Client) Issue(ctx context.Context, id int64) (issues.IssueSummary, error) {
	rows, err := c.List(ctx, nil)
	if err != nil {
		return issues.IssueSummary{}, err
	}
	for _, r := range rows {
		if r.ID == id {
			return r, nil
		}
	}
	return issues.IssueSummary{}, fmt.Errorf("issue %d: %w", id, issues.ErrNotFound)
}

// FetchImage downloads one slot. Missing images map to issues.ErrNotFound.
func (c *Client) FetchImage(ctx context.Context, id int64, slot issues.Slot) ([]byte, error) {
	fullURL := fmt.Sprintf("%s/issues/%d/images/%s", c.baseURL, id, url.PathEscape(string(slot)))

	resp, err := c.get(ctx, fullURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("issue %d %s image: %w", id, slot, issues.ErrNotFound)
	case http.StatusBadRequest:
		return nil, fmt.Errorf("issue %d %s image: %w", id, slot, issues.ErrInvalidSlot)
	default:
		return nil, statusError("fetch image", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, fullURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", fullURL, err)
	}
	return resp, nil
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
