package tsdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxResponseSize = 10 << 20 // 10 MB

// RangeQuery describes a PromQL range query.
type RangeQuery struct {
	Query string
	Start time.Time
	End   time.Time
	Step  time.Duration
}

func (q RangeQuery) validate() error {
	switch {
	case strings.TrimSpace(q.Query) == "":
		return fmt.Errorf("%w: query is required", ErrInvalidQuery)
	case q.Step <= 0:
		return fmt.Errorf("%w: step must be positive", ErrInvalidQuery)
	case q.End.Before(q.Start):
		return fmt.Errorf("%w: end must not be before start", ErrInvalidQuery)
	}
	return nil
}

// ThroughputQuery returns PromQL summing published bytes per step,
// optionally narrowed to one peer IP.
func ThroughputQuery(peer string, step time.Duration) string {
	selector := "relay_publish_bytes"
	if peer != "" {
		selector += fmt.Sprintf(`{peer=%q}`, peer)
	}
	return fmt.Sprintf("sum(sum_over_time(%s[%s]))", selector, formatStepSeconds(step)+"s")
}

// QueryRange executes a range query against /api/v1/query_range and
// returns the Prometheus API response body untouched.
func (c *Client) QueryRange(ctx context.Context, q RangeQuery) (json.RawMessage, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if err := q.validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", q.Query)
	params.Set("start", formatUnixSeconds(q.Start))
	params.Set("end", formatUnixSeconds(q.End))
	params.Set("step", formatStepSeconds(q.Step))

	return c.get(ctx, "/api/v1/query_range", params)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	endpoint := c.url + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrQueryFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrQueryFailed, resp.StatusCode)
	}

	return json.RawMessage(body), nil
}

func formatUnixSeconds(t time.Time) string {
	seconds := float64(t.UnixNano()) / float64(time.Second)
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

func formatStepSeconds(step time.Duration) string {
	return strconv.FormatFloat(step.Seconds(), 'f', -1, 64)
}
