// Package docs is the client for the court decision index: keyword search
// over the decision corpus and retrieval of individual decision documents.
package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tomasbielik/precedent/internal/metrics"
)

// SearchResult is one hit from the decision index.
type SearchResult struct {
	FileName string         `json:"pdf_file_name"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Snippet  string         `json:"snippet,omitempty"`
}

// SearchResponse is the index's answer to one keyword query.
type SearchResponse struct {
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
	Error        string         `json:"error,omitempty"`
}

// Client talks to the decision index over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	metrics *metrics.Collector
}

// NewClient creates a decision index client. The timeout bounds both search
// and document fetches.
func NewClient(baseURL string, timeout time.Duration, m *metrics.Collector) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// Search queries the decision index for court cases matching the keyword.
func (c *Client) Search(ctx context.Context, keyword string, limit int) (*SearchResponse, error) {
	start := time.Now()
	resp, err := c.search(ctx, keyword, limit)
	if c.metrics != nil {
		c.metrics.RecordTiming(metrics.OpIndexSearch, time.Since(start))
		if err != nil {
			c.metrics.RecordError(metrics.OpIndexSearch)
		}
	}
	return resp, err
}

func (c *Client) search(ctx context.Context, keyword string, limit int) (*SearchResponse, error) {
	u, err := url.Parse(c.baseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("search url: %w", err)
	}
	q := u.Query()
	q.Set("query", keyword)
	q.Set("n_results", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %q: unexpected status %d", keyword, resp.StatusCode)
	}

	var out SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if out.Results == nil {
		out.Results = []SearchResult{}
	}
	return &out, nil
}

// Fetch retrieves one decision document by file name.
func (c *Client) Fetch(ctx context.Context, fileName string) ([]byte, error) {
	start := time.Now()
	data, err := c.fetch(ctx, fileName)
	if c.metrics != nil {
		c.metrics.RecordTiming(metrics.OpDocFetch, time.Since(start))
		if err != nil {
			c.metrics.RecordError(metrics.OpDocFetch)
		}
	}
	return data, err
}

func (c *Client) fetch(ctx context.Context, fileName string) ([]byte, error) {
	u := c.baseURL + "/pdf/" + url.PathEscape(fileName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", fileName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %q: unexpected status %d", fileName, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", fileName, err)
	}
	return data, nil
}
