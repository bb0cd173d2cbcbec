package crawler

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

	"bbsharvest/internal/config"
	"bbsharvest/internal/models"
	"bbsharvest/pkg/utils"
)

// Fetch errors.
var (
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrMalformedResponse    = errors.New("malformed response body")
)

// defaultMaxBodyKb bounds the size of one page response.
const defaultMaxBodyKb = 8 * 1024

// RawPayload is the decoded top-level JSON object of one page response.
type RawPayload map[string]json.RawMessage

// PageFetcher retrieves one page of the topic list for a target.
type PageFetcher interface {
	FetchPage(ctx context.Context, target models.CrawlTarget, pageIndex, pageSize int) (RawPayload, error)
}

// FetchResult carries transport details of one page request.
type FetchResult struct {
	Payload    RawPayload
	Duration   time.Duration
	StatusCode int
	Bytes      int
}

// HTTPFetcher issues one GET per page against the target's endpoint.
// It performs no retries; callers decide how to proceed on failure.
type HTTPFetcher struct {
	client      *http.Client
	headers     http.Header
	credentials config.CredentialProvider
	maxBodyKb   int
}

// NewHTTPFetcher creates a fetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration, headers map[string]string, credentials config.CredentialProvider) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		headers:     utils.NewHTTPHelper().BuildHeaders(headers),
		credentials: credentials,
		maxBodyKb:   defaultMaxBodyKb,
	}
}

// NewHTTPFetcherFromConfig builds a fetcher from the spider settings.
func NewHTTPFetcherFromConfig(cfg *config.SpiderConfig, credentials config.CredentialProvider) *HTTPFetcher {
	return NewHTTPFetcher(cfg.GetTimeout(), cfg.Headers, credentials)
}

// WithHTTPClient replaces the underlying client, for example one with a custom
// transport or TLS configuration. The client's own timeout applies.
func (f *HTTPFetcher) WithHTTPClient(client *http.Client) *HTTPFetcher {
	f.client = client

	return f
}

// FetchPage implements PageFetcher.
func (f *HTTPFetcher) FetchPage(ctx context.Context, target models.CrawlTarget, pageIndex, pageSize int) (RawPayload, error) {
	res, err := f.FetchWithMetrics(ctx, target, pageIndex, pageSize)
	if err != nil {
		return nil, err
	}

	return res.Payload, nil
}

// FetchWithMetrics fetches one page and reports status code, size and latency.
func (f *HTTPFetcher) FetchWithMetrics(ctx context.Context, target models.CrawlTarget, pageIndex, pageSize int) (*FetchResult, error) {
	startTime := time.Now()
	res := &FetchResult{}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, PageURL(target, pageIndex, pageSize), http.NoBody)
	if err != nil {
		return res, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header = f.headers.Clone()

	if f.credentials != nil {
		if cookie := strings.TrimSpace(f.credentials.SessionCookie()); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		res.Duration = time.Since(startTime)

		return res, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Duration = time.Since(startTime)

		return res, fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	limit := int64(f.maxBodyKb) * 1024

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	res.Duration = time.Since(startTime)
	res.Bytes = len(body)

	if err != nil {
		return res, fmt.Errorf("failed to read response body: %w", err)
	}

	var payload RawPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return res, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	res.Payload = payload

	return res, nil
}

// PageURL builds the request URL for one page of a target.
func PageURL(target models.CrawlTarget, pageIndex, pageSize int) string {
	params := url.Values{}
	params.Set("sectionId", target.SectionID)
	params.Set("filterCondition", "1")
	params.Set("pageIndex", strconv.Itoa(pageIndex))
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("topicClassId", target.TopicClassID)

	endpoint := target.Endpoint()

	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint + "?" + params.Encode()
	}

	q := u.Query()
	for k, v := range params {
		q[k] = v
	}

	u.RawQuery = q.Encode()

	return u.String()
}
