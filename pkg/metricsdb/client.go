// Package metricsdb queries the cluster's public time-series metrics database
// through its HTTP query proxy.
//
// Requests are GET base?db=<db>&q=<query>&epoch=ms and responses carry
// results[].series[].{name,columns,values}. Values are returned as decoded
// JSON (float64, string, bool or nil); Series offers typed lookups by column
// name.
package metricsdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public metrics query proxy.
const DefaultBaseURL = "https://metrics.solana.com:3000/api/datasources/proxy/uid/HsKEnOt4z/query"

// Databases per cluster.
const (
	DatabaseMainnet = "mainnet-beta"
	DatabaseTestnet = "tds"
)

var (
	// ErrMalformedResponse is returned when the body cannot be decoded or has
	// an unexpected shape. It is not retried.
	ErrMalformedResponse = errors.New("malformed metrics response")

	// ErrNoData is returned when a query matched no series.
	ErrNoData = errors.New("no metrics data")

	// ErrUnknownCluster is returned by DatabaseFor.
	ErrUnknownCluster = errors.New("unknown cluster")
)

// DatabaseFor maps a cluster name to its metrics database.
func DatabaseFor(cluster string) (string, error) {
	switch strings.ToLower(cluster) {
	case "m", "mainnet", "mainnet-beta":
		return DatabaseMainnet, nil
	case "t", "testnet", "tds":
		return DatabaseTestnet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCluster, cluster)
	}
}

// StatusError is returned for a non-200 response. These are transient.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error includes the status code and the response body.
func (e *StatusError) Error() string {
	return fmt.Sprintf("metrics query: http status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether a query error is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrMalformedResponse) && !errors.Is(err, ErrNoData)
}

// Config configures a Client.
type Config struct {
	BaseURL  string
	Database string
	Timeout  time.Duration
}

// Client issues queries against one database.
type Client struct {
	baseURL    string
	database   string
	httpClient *http.Client
}

// NewClient creates a client. Empty fields take defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Database == "" {
		cfg.Database = DatabaseMainnet
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		database:   cfg.Database,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Database returns the database the client queries.
func (c *Client) Database() string {
	return c.database
}

// Response is the decoded query response.
type Response struct {
	Results []Result `json:"results"`
}

// Result is one statement's result.
type Result struct {
	StatementID int      `json:"statement_id"`
	Series      []Series `json:"series"`
	Error       string   `json:"error,omitempty"`
}

// Series is one named table of rows.
type Series struct {
	Name    string            `json:"name"`
	Tags    map[string]string `json:"tags,omitempty"`
	Columns []string          `json:"columns"`
	Values  [][]interface{}   `json:"values"`
}

// Query runs q and decodes the response.
func (c *Client) Query(ctx context.Context, q string) (*Response, error) {
	params := url.Values{}
	params.Set("db", c.database)
	params.Set("q", q)
	params.Set("epoch", "ms")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metrics query: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("metrics query: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		b := string(body)
		if len(b) > 256 {
			b = b[:256] + "..."
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: b}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for _, r := range out.Results {
		if r.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, r.Error)
		}
	}
	return &out, nil
}

// FirstSeries returns the first series of the first result or ErrNoData.
func (r *Response) FirstSeries() (*Series, error) {
	if len(r.Results) == 0 {
		return nil, fmt.Errorf("%w: no results", ErrMalformedResponse)
	}
	if len(r.Results[0].Series) == 0 || len(r.Results[0].Series[0].Values) == 0 {
		return nil, ErrNoData
	}
	return &r.Results[0].Series[0], nil
}

// Column returns the index of name, or -1.
func (s *Series) Column(name string) int {
	for i, c := range s.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Float reads column name of row as a number.
func (s *Series) Float(row int, name string) (float64, error) {
	col := s.Column(name)
	if col < 0 {
		return 0, fmt.Errorf("%w: column %q missing", ErrMalformedResponse, name)
	}
	if row < 0 || row >= len(s.Values) || col >= len(s.Values[row]) {
		return 0, fmt.Errorf("%w: row %d out of range", ErrMalformedResponse, row)
	}
	switch v := s.Values[row][col].(type) {
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	case nil:
		return 0, ErrNoData
	default:
		return 0, fmt.Errorf("%w: column %q is %T", ErrMalformedResponse, name, v)
	}
}

// Last returns the index of the final row.
func (s *Series) Last() int {
	return len(s.Values) - 1
}

// Strings renders row as strings, in column order.
func (s *Series) Strings(row int) []string {
	out := make([]string, len(s.Values[row]))
	for i, v := range s.Values[row] {
		out[i] = formatValue(v)
	}
	return out
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
