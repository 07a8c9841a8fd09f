package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the HTTP implementation of Store against the back-office API.
//
// Endpoints:
//
//	GET    {base}/collections/{collection}        list records
//	POST   {base}/collections/{collection}        create, returns {"id": ...}
//	PATCH  {base}/collections/{collection}/{id}   update fields
//	DELETE {base}/collections/{collection}/{id}   remove
//	GET    {base}/healthz                         reachability probe
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a remote store client for the given base URL.
// A zero timeout defaults to 10 seconds; without one, a hung remote call
// would pin its queue entry forever.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchAll implements Store.
func (c *Client) FetchAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, c.collectionURL(collection), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", collection, err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s listing: %w", collection, err)
	}
	return records, nil
}

// Create implements Store.
func (c *Client) Create(ctx context.Context, collection string, payload json.RawMessage) (string, error) {
	body, err := c.do(ctx, http.MethodPost, c.collectionURL(collection), payload)
	if err != nil {
		return "", fmt.Errorf("failed to create %s record: %w", collection, err)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("remote store returned no id for created %s record", collection)
	}
	return created.ID, nil
}

// Update implements Store.
func (c *Client) Update(ctx context.Context, collection, id string, payload json.RawMessage) error {
	if _, err := c.do(ctx, http.MethodPatch, c.recordURL(collection, id), payload); err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Remove implements Store.
func (c *Client) Remove(ctx context.Context, collection, id string) error {
	if _, err := c.do(ctx, http.MethodDelete, c.recordURL(collection, id), nil); err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", collection, id, err)
	}
	return nil
}

// Ping implements Pinger.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodGet, c.baseURL+"/healthz", nil); err != nil {
		return fmt.Errorf("remote store unreachable: %w", err)
	}
	return nil
}

func (c *Client) collectionURL(collection string) string {
	return c.baseURL + "/collections/" + url.PathEscape(collection)
}

func (c *Client) recordURL(collection, id string) string {
	return c.collectionURL(collection) + "/" + url.PathEscape(id)
}

// do performs one HTTP exchange and maps the status code to an error.
func (c *Client) do(ctx context.Context, method, u string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("remote store returned %s", resp.Status)
	}

	return body, nil
}
