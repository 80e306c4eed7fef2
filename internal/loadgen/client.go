package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/medrisk/internal/domain/scoring"
)

// Routes exercised by the load run.
const (
	pathHealth = "/healthz"
	pathLight  = "/api/ai/predict/light"
	pathFull   = "/api/ai/predict/full"
)

// ErrThrottled marks a 429 answer from the service.
var ErrThrottled = errors.New("throttled")

// StatusError is a non-2xx answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Is lets callers match 429 answers against ErrThrottled.
func (e *StatusError) Is(target error) bool {
	return target == ErrThrottled && e.Code == http.StatusTooManyRequests
}

type envelope[T any] struct {
	OK   bool `json:"ok"`
	Data T    `json:"data"`
}

// FullAck is the answer to a full prediction submission.
type FullAck struct {
	Status      string         `json:"status"`
	JobID       string         `json:"job_id"`
	StatusURL   string         `json:"status_url"`
	DataPreview scoring.Result `json:"data_preview"`
}

// JobStatus is a polled job snapshot.
type JobStatus struct {
	JobID   string              `json:"job_id"`
	State   string              `json:"state"`
	Preview scoring.Result      `json:"preview"`
	Result  *scoring.FullResult `json:"result"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Terminal reports whether the job finished.
func (j JobStatus) Terminal() bool {
	return j.State == "completed" || j.State == "failed"
}

// Client talks to the prediction API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client with the given per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, pathHealth, nil, nil)
}

// Light posts p to the light prediction route.
func (c *Client) Light(ctx context.Context, p Payload) (scoring.Result, error) {
	var out envelope[scoring.Result]
	if err := c.do(ctx, http.MethodPost, pathLight, p, &out); err != nil {
		return scoring.Result{}, err
	}
	return out.Data, nil
}

// Full submits p as a full prediction job.
func (c *Client) Full(ctx context.Context, p Payload) (FullAck, error) {
	var out FullAck
	if err := c.do(ctx, http.MethodPost, pathFull, p, &out); err != nil {
		return FullAck{}, err
	}
	return out, nil
}

// Job fetches the job at statusURL.
func (c *Client) Job(ctx context.Context, statusURL string) (JobStatus, error) {
	var out envelope[JobStatus]
	if err := c.do(ctx, http.MethodGet, statusURL, nil, &out); err != nil {
		return JobStatus{}, err
	}
	return out.Data, nil
}

// Wait polls statusURL every interval until the job is terminal.
func (c *Client) Wait(ctx context.Context, statusURL string, interval time.Duration) (JobStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		j, err := c.Job(ctx, statusURL)
		if err != nil {
			return JobStatus{}, err
		}
		if j.Terminal() {
			return j, nil
		}
		select {
		case <-ctx.Done():
			return j, fmt.Errorf("wait for %s: %w", j.JobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
