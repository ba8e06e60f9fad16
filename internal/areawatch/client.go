package areawatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/joeblew999/plat-watch/internal/optimistic"
)

const collectionPath = "/api/v1/area-watches"

// Client talks to the area-watch REST collection.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL. A nil httpClient
// uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// List fetches the collection. A body that is not a JSON array fails with
// optimistic.ErrNotCollection.
func (c *Client) List(ctx context.Context) ([]AreaWatch, error) {
	body, err := c.do(ctx, http.MethodGet, collectionPath, "", nil)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, fmt.Errorf("list area watches: %w", optimistic.ErrNotCollection)
	}
	out := make([]AreaWatch, 0, len(raw))
	for _, r := range raw {
		var w AreaWatch
		if err := json.Unmarshal(r, &w); err != nil {
			return nil, fmt.Errorf("decode area watch: %w", err)
		}
		out = append(out, w)
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, w AreaWatch) (AreaWatch, error) {
	payload, err := json.Marshal(w)
	if err != nil {
		return AreaWatch{}, err
	}
	body, err := c.do(ctx, http.MethodPost, collectionPath, "application/json", payload)
	if err != nil {
		return AreaWatch{}, err
	}
	return decode(body)
}

func (c *Client) Patch(ctx context.Context, id string, patch []byte) (AreaWatch, error) {
	body, err := c.do(ctx, http.MethodPatch, itemPath(id), "application/merge-patch+json", patch)
	if err != nil {
		return AreaWatch{}, err
	}
	return decode(body)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, itemPath(id), "", nil)
	return err
}

func itemPath(id string) string {
	return collectionPath + "/" + url.PathEscape(id)
}

func decode(body []byte) (AreaWatch, error) {
	var w AreaWatch
	if err := json.Unmarshal(body, &w); err != nil {
		return AreaWatch{}, fmt.Errorf("decode area watch: %w", err)
	}
	return w, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
