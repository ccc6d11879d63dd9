package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/okian/usagedash/internal/domain/types"
)

const maxBody = 8 << 20

type client struct {
	http    *http.Client
	baseURL string
	token   string
}

func newClient(cfg *Config) *client {
	return &client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
	}
}

func (c *client) get(ctx context.Context, path string) (*http.Response, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, "", err
	}
	id := uuid.NewString()
	req.Header.Set("X-Request-ID", id)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	return resp, id, err
}

func (c *client) health(ctx context.Context) error {
	resp, _, err := c.get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// usage runs one case and fills everything but the invariant checks.
func (c *client) usage(ctx context.Context, tc Case) (res Result, body types.UsageResponse) {
	res.Case = tc
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	resp, id, err := c.get(ctx, "/api/usage?"+tc.Query().Encode())
	res.RequestID = id
	if err != nil {
		res.Err = err
		return res, body
	}
	defer resp.Body.Close()
	res.Status = resp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		res.Err = err
		return res, body
	}
	if resp.StatusCode != http.StatusOK {
		res.Err = fmt.Errorf("status %d: %s", resp.StatusCode, raw)
		return res, body
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		res.Err = fmt.Errorf("decode usage: %w", err)
		return res, body
	}
	res.Source = body.Source
	res.Granularity = body.Granularity
	res.Points = len(body.ChartData)
	res.Orgs = len(body.Organizations)
	return res, body
}
