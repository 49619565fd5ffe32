// Package dune pages through the CSV results of a saved Dune query.
package dune

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Dune API root.
const DefaultBaseURL = "https://api.dune.com/api/v1"

// DefaultPageSize is the number of rows requested per page.
const DefaultPageSize = 7000

// APIKeyHeader carries the API key.
const APIKeyHeader = "X-Dune-API-Key"

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("dune: api key not set")

	// ErrMalformedResponse is returned when a page is not valid CSV.
	ErrMalformedResponse = errors.New("dune: malformed csv page")
)

// StatusError is returned for a non-200 response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dune: http status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrMissingAPIKey) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// Page is one chunk of query results. Header is empty when the page had no
// content at all.
type Page struct {
	Header []string
	Rows   [][]string
}

// Empty reports whether the page carried neither header nor rows.
func (p *Page) Empty() bool {
	return len(p.Header) == 0 && len(p.Rows) == 0
}

// Client reads query results.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ResultsPage fetches limit rows of queryID's latest results starting at offset.
func (c *Client) ResultsPage(ctx context.Context, queryID string, limit, offset int) (*Page, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	params := url.Values{}
	params.Set("allow_partial_results", "true")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	u := fmt.Sprintf("%s/query/%s/results/csv?%s", c.baseURL, url.PathEscape(queryID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(APIKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dune: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dune: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b := string(body)
		if len(b) > 256 {
			b = b[:256] + "..."
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: b}
	}
	return parsePage(body)
}

func parsePage(body []byte) (*Page, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return &Page{}, nil
	}
	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(records) == 0 {
		return &Page{}, nil
	}
	return &Page{Header: records[0], Rows: records[1:]}, nil
}
