// Package telemetry fetches trace events from the observability service's
// public API.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/usagedash/internal/domain/dedupe"
	"github.com/okian/usagedash/internal/domain/model"
	"github.com/okian/usagedash/pkg/logger"
	"github.com/okian/usagedash/pkg/metrics"
)

const (
	tracesPath      = "/api/public/traces"
	defaultPageSize = 100
	defaultMaxPages = 50
	defaultTimeout  = 30 * time.Second
	maxErrorBody    = 512
	maxPageBody     = 32 << 20
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Filter narrows a fetch. Zero value fetches everything in the window.
type Filter struct {
	Tags []string
	Name string
}

// Client pages through the traces endpoint.
type Client struct {
	baseURL   string
	http      *http.Client
	authorize func(*http.Request)
	pageSize  int
	maxPages  int
	logger    logger.Logger
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: defaultTimeout},
		authorize: func(*http.Request) {},
		pageSize:  defaultPageSize,
		maxPages:  defaultMaxPages,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchEvents returns every event in w matching f, fetching pages one at a
// time until a short page, the reported last page, or the page cap.
//
// A failure on the first page is returned as ErrUpstreamUnavailable. A
// failure on any later page ends the fetch and the events gathered so far
// are returned without error. Cancellation of ctx discards partial results.
func (c *Client) FetchEvents(ctx context.Context, w model.Window, f Filter) ([]model.TelemetryEvent, error) {
	start := time.Now()
	seen := dedupe.New(dedupe.WithMaxSize(c.pageSize * c.maxPages))

	var events []model.TelemetryEvent
	for n := 1; n <= c.maxPages; n++ {
		p, err := c.fetchPage(ctx, w, f, n)
		if err != nil {
			if n == 1 {
				metrics.RecordTelemetryPageFailure("first")
				return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			metrics.RecordTelemetryPageFailure("later")
			c.logger.Warn(ctx, "telemetry page failed, returning partial result",
				logger.Int("page", n),
				logger.Int("events", len(events)),
				logger.Error(err))
			break
		}
		metrics.RecordTelemetryPage()
		events = append(events, dedupe.Unique(p.events, seen, metrics.RecordTelemetryDuplicate)...)

		if len(p.events) < c.pageSize {
			break
		}
		if p.totalPages > 0 && n >= p.totalPages {
			break
		}
		if n == c.maxPages {
			c.logger.Info(ctx, "telemetry page cap reached",
				logger.Int("pages", n),
				logger.Int("events", len(events)))
		}
	}

	metrics.RecordTelemetryEvents(len(events))
	metrics.RecordTelemetryFetchDuration(float64(time.Since(start).Milliseconds()))
	return events, nil
}

func (c *Client) fetchPage(ctx context.Context, w model.Window, f Filter, n int) (page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(w, f, n), nil)
	if err != nil {
		return page{}, err
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return page{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return page{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBody))
	if err != nil {
		return page{}, fmt.Errorf("read page %d: %w", n, err)
	}
	return decodePage(body)
}

func (c *Client) pageURL(w model.Window, f Filter, n int) string {
	q := url.Values{}
	if !w.AllTime {
		q.Set("fromTimestamp", w.From.UTC().Format(timestampLayout))
		q.Set("toTimestamp", w.To.UTC().Format(timestampLayout))
	}
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("page", strconv.Itoa(n))
	for _, t := range f.Tags {
		q.Add("tags", t)
	}
	if f.Name != "" {
		q.Set("name", f.Name)
	}
	return c.baseURL + tracesPath + "?" + q.Encode()
}

// IsStatus reports whether err carries an HTTP status equal to code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
