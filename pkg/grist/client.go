// Package grist is a minimal client for the Grist document REST API: it
// reads table records and applies atomic record updates.
package grist

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/internal/resilience"
)

// DefaultBaseURL is the hosted Grist API.
const DefaultBaseURL = "https://docs.getgrist.com"

// Client reads and updates records of one document.
type Client interface {
	// FetchRecords returns every record of tableID with raw column names.
	FetchRecords(ctx context.Context, tableID string) ([]model.Record, error)
	// UpdateRecord sets fields on one record in a single request, so all
	// fields commit together.
	UpdateRecord(ctx context.Context, tableID string, id model.RecordID, fields map[string]any) error
}

type recordsPayload struct {
	Records []wireRecord `json:"records"`
}

type wireRecord struct {
	ID     model.RecordID `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (self-hosted Grist or tests).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	docID   string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a client for document docID.
func NewClient(apiKey, docID string, opts ...Option) Client {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("grist", "request")
	c := &httpClient{
		apiKey:  apiKey,
		docID:   docID,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) recordsURL(tableID string) string {
	return c.baseURL + "/api/docs/" + url.PathEscape(c.docID) + "/tables/" + url.PathEscape(tableID) + "/records"
}

func (c *httpClient) FetchRecords(ctx context.Context, tableID string) ([]model.Record, error) {
	var payload recordsPayload
	if err := c.do(ctx, http.MethodGet, c.recordsURL(tableID), nil, &payload); err != nil {
		return nil, eris.Wrapf(err, "grist: fetch %s", tableID)
	}
	out := make([]model.Record, len(payload.Records))
	for i, r := range payload.Records {
		out[i] = model.Record{ID: r.ID, Fields: r.Fields}
	}
	return out, nil
}

func (c *httpClient) UpdateRecord(ctx context.Context, tableID string, id model.RecordID, fields map[string]any) error {
	body, err := json.Marshal(recordsPayload{Records: []wireRecord{{ID: id, Fields: fields}}})
	if err != nil {
		return eris.Wrap(err, "grist: marshal update")
	}
	if err := c.do(ctx, http.MethodPatch, c.recordsURL(tableID), body, nil); err != nil {
		return eris.Wrapf(err, "grist: update %s/%d", tableID, id)
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, method, reqURL string, body []byte, out any) error {
	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, rdr)
		if err != nil {
			return eris.Wrap(err, "grist: build request")
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "grist: request")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return eris.Wrapf(resilience.StatusError("grist", resp), "grist: %s", strings.TrimSpace(string(msg)))
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return eris.Wrap(err, "grist: parse response")
		}
		return nil
	})
}
