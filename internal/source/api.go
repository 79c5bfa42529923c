// Package source talks to the upstream services: the websocket signal feed
// that carries live telemetry, and the HTTP API that lists vehicles and
// pages through charging history.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nixlim/vf-top/internal/history"
	"github.com/nixlim/vf-top/internal/vehicle"
)

const (
	historyPath = "/ccarcharging/api/v1/charging-sessions/search"
	vehiclePath = "/ccarusermgnt/api/v1/user-vehicle"
)

// Completed, failed and cancelled orders.
var historyQuery = []byte(`{"orderStatus":[3,5,7]}`)

// HTTPDoer is the subset of *http.Client the API client needs.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// NewDefaultHTTPClient returns an *http.Client with the given timeout.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// APIClient calls the vehicle and charging-history endpoints through the
// signing relay at baseURL.
type APIClient struct {
	baseURL string
	token   string
	region  string
	client  HTTPDoer
}

func NewAPIClient(baseURL, token, region string, client HTTPDoer) *APIClient {
	if region == "" {
		region = "vn"
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		region:  region,
		client:  client,
	}
}

func (c *APIClient) headers(vin string) map[string]string {
	h := map[string]string{
		"Accept":              "application/json",
		"x-service-name":      "CAPP",
		"x-device-platform":   "android",
		"x-device-family":     "VFDashboard",
		"x-device-locale":     "vi-VN",
		"x-timezone":          "Asia/Ho_Chi_Minh",
		"x-device-identifier": "vf-top",
	}
	if vin != "" {
		h["x-vin-code"] = vin
	}
	if c.token != "" {
		h["Authorization"] = "Bearer " + c.token
	}
	return h
}

// do executes a request and returns the body of a 2xx response.
func (c *APIClient) do(ctx context.Context, method, path string, query url.Values, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, Status: resp.StatusCode}
	}
	return respBody, nil
}

// FetchPage returns one page of vin's charging history.
func (c *APIClient) FetchPage(ctx context.Context, vin string, page, size int) (history.Page, error) {
	if vin == "" {
		return history.Page{}, history.ErrEmptyVIN
	}
	q := url.Values{}
	q.Set("region", c.region)
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	body, err := c.do(ctx, http.MethodPost, historyPath, q, historyQuery, c.headers(vin))
	if err != nil {
		return history.Page{}, err
	}
	return history.DecodePage(body)
}

// ListVehicles returns the account's vehicles. Entries without a VIN are
// skipped.
func (c *APIClient) ListVehicles(ctx context.Context) ([]vehicle.Identity, error) {
	q := url.Values{}
	q.Set("region", c.region)

	body, err := c.do(ctx, http.MethodGet, vehiclePath, q, nil, c.headers(""))
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding vehicle list: %w", err)
	}
	out := make([]vehicle.Identity, 0, len(resp.Data))
	for _, m := range resp.Data {
		if id, ok := vehicle.IdentityFromMap(m); ok {
			out = append(out, id)
		}
	}
	return out, nil
}
