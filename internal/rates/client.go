// Package rates fetches exchange-rate snapshots from an Open Exchange Rates
// compatible API.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxBodyBytes = 8 << 20

// ErrMalformedSnapshot is returned when a 200 response cannot be decoded or lacks a timestamp.
var ErrMalformedSnapshot = errors.New("rates: malformed snapshot")

// UpstreamError reports a non-200 response from the rate API.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("rates: upstream returned status %d", e.StatusCode)
}

// Snapshot is one fetched payload. Raw is kept byte for byte.
type Snapshot struct {
	Raw       []byte
	Timestamp time.Time
	Base      string
	Rates     map[string]float64
}

type snapshotEnvelope struct {
	Timestamp json.Number        `json:"timestamp"`
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
}

// ParseSnapshot decodes raw and extracts the snapshot timestamp.
func ParseSnapshot(raw []byte) (Snapshot, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	if env.Timestamp == "" {
		return Snapshot{}, fmt.Errorf("%w: missing timestamp", ErrMalformedSnapshot)
	}
	ts, err := unixTime(env.Timestamp)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: timestamp %s: %w", ErrMalformedSnapshot, env.Timestamp, err)
	}
	return Snapshot{
		Raw:       raw,
		Timestamp: ts,
		Base:      env.Base,
		Rates:     env.Rates,
	}, nil
}

// unixTime accepts integral and fractional epoch seconds.
func unixTime(n json.Number) (time.Time, error) {
	if sec, err := n.Int64(); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	f, err := n.Float64()
	if err != nil {
		return time.Time{}, err
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
}

// Config configures the API client.
type Config struct {
	BaseURL      string
	AppID        string
	BaseCurrency string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client issues a single GET per Fetch.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient validates cfg and builds the request URL once.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("rates: base url is required")
	}
	if cfg.AppID == "" {
		return nil, errors.New("rates: app id is required")
	}
	endpoint, err := BuildURL(cfg.BaseURL, cfg.AppID, cfg.BaseCurrency)
	if err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{endpoint: endpoint, http: httpClient}, nil
}

// BuildURL appends the app_id and base query parameters to baseURL.
func BuildURL(baseURL, appID, baseCurrency string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("rates: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("rates: base url %q must be absolute", baseURL)
	}
	if baseCurrency == "" {
		baseCurrency = "USD"
	}
	q := u.Query()
	q.Set("app_id", appID)
	q.Set("base", baseCurrency)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch downloads the latest snapshot.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rates: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rates: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Snapshot{}, &UpstreamError{StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Snapshot{}, fmt.Errorf("rates: read body: %w", err)
	}
	return ParseSnapshot(raw)
}
