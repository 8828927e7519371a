package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/ecg.report/internal/catalog"
	"github.com/banshee-data/ecg.report/internal/ecg"
	"github.com/banshee-data/ecg.report/internal/httputil"
)

// Client calls a running server, so batch tools share its result cache.
type Client struct {
	base string
	hc   httputil.HTTPClient
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

// Analyze requests /api/analyze for p.
func (c *Client) Analyze(p Params) (AnalyzeResponse, error) {
	var resp AnalyzeResponse
	err := c.getJSON("/api/analyze", p.Values(), &resp)
	return resp, err
}

// Segments lists the server's catalog.
func (c *Client) Segments() ([]catalog.Segment, error) {
	var segs []catalog.Segment
	err := c.getJSON("/api/segments", nil, &segs)
	return segs, err
}

// CacheStats returns the server's result cache counters.
func (c *Client) CacheStats() (ecg.CacheStats, error) {
	var st ecg.CacheStats
	err := c.getJSON("/api/cache", nil, &st)
	return st, err
}

func (c *Client) getJSON(path string, q url.Values, v interface{}) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	resp, err := c.hc.Get(u)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
