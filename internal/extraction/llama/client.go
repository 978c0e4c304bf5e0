// Package llama talks to the LlamaCloud extraction-agent API: upload a file,
// start an extraction job for a named agent, poll it, fetch the result.
package llama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"payadvice/internal"
	"payadvice/internal/config"
	"payadvice/internal/logger"
	"payadvice/internal/retry"
	"payadvice/internal/util"
)

var (
	ErrAgentNotFound = errors.New("extraction agent not found")
	ErrJobFailed     = errors.New("extraction job failed")
)

type Client struct {
	baseURL      string
	apiKey       string
	agentName    string
	pollInterval time.Duration
	timeout      time.Duration

	httpClient *http.Client
	limiter    *RateLimiter
	agentID    string
}

type agentResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fileResponse struct {
	ID string `json:"id"`
}

type jobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

type resultResponse struct {
	Data json.RawMessage `json:"data"`
}

func NewClient(cfg config.Config) (*Client, error) {
	if err := cfg.Require("LLAMA_API_KEY", cfg.LlamaAPIKey); err != nil {
		return nil, err
	}
	if err := cfg.Require("LLAMA_AGENT", cfg.LlamaAgent); err != nil {
		return nil, err
	}
	poll := cfg.LlamaPollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.LlamaBaseURL, "/"),
		apiKey:       cfg.LlamaAPIKey,
		agentName:    cfg.LlamaAgent,
		pollInterval: poll,
		timeout:      cfg.LlamaTimeout,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		limiter:      NewRateLimiter(cfg.LlamaRateLimitRPS),
	}, nil
}

// Prepare resolves the configured agent name to an id.
func (c *Client) Prepare(ctx context.Context) error {
	if c.agentID != "" {
		return nil
	}
	body, err := c.do(ctx, http.MethodGet, "/api/v1/extraction/extraction-agents/by-name/"+url.PathEscape(c.agentName), nil, "")
	if err != nil {
		var status *statusError
		if errors.As(err, &status) && status.code == http.StatusNotFound {
			return retry.Permanent(fmt.Errorf("%w: %q", ErrAgentNotFound, c.agentName))
		}
		return fmt.Errorf("resolve agent %q: %w", c.agentName, err)
	}
	var agent agentResponse
	if err := json.Unmarshal(body, &agent); err != nil {
		return fmt.Errorf("decode agent: %w", err)
	}
	if agent.ID == "" {
		return retry.Permanent(fmt.Errorf("%w: %q", ErrAgentNotFound, c.agentName))
	}
	c.agentID = agent.ID
	log := logger.FromContext(ctx)
	log.Info().Str("agent", c.agentName).Str("id", agent.ID).Msg("extraction agent ready")
	return nil
}

func (c *Client) Extract(ctx context.Context, path string) (internal.RawExtraction, error) {
	if err := c.Prepare(ctx); err != nil {
		return nil, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	fileID, err := c.upload(ctx, path)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]string{"extraction_agent_id": c.agentID, "file_id": fileID})
	body, err := c.do(ctx, http.MethodPost, "/api/v1/extraction/jobs", bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	var job jobResponse
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if job.ID == "" {
		return nil, errors.New("create job: empty job id")
	}

	if err := c.wait(ctx, job); err != nil {
		return nil, err
	}
	return c.result(ctx, job.ID)
}

func (c *Client) upload(ctx context.Context, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", retry.Permanent(err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("upload_file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	body, err := c.do(ctx, http.MethodPost, "/api/v1/files", &buf, mw.FormDataContentType())
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	var file fileResponse
	if err := json.Unmarshal(body, &file); err != nil {
		return "", fmt.Errorf("decode file: %w", err)
	}
	if file.ID == "" {
		return "", errors.New("upload file: empty file id")
	}
	return file.ID, nil
}

func (c *Client) wait(ctx context.Context, job jobResponse) error {
	for {
		switch strings.ToUpper(job.Status) {
		case "SUCCESS", "PARTIAL_SUCCESS":
			return nil
		case "ERROR", "FAILED", "CANCELLED":
			msg := job.Error
			if msg == "" {
				msg = strings.ToLower(job.Status)
			}
			return fmt.Errorf("%w: job %s: %s", ErrJobFailed, job.ID, msg)
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("job %s: %w", job.ID, ctx.Err())
		case <-timer.C:
		}

		body, err := c.do(ctx, http.MethodGet, "/api/v1/extraction/jobs/"+url.PathEscape(job.ID), nil, "")
		if err != nil {
			return fmt.Errorf("poll job %s: %w", job.ID, err)
		}
		id := job.ID
		if err := json.Unmarshal(body, &job); err != nil {
			return fmt.Errorf("decode job: %w", err)
		}
		if job.ID == "" {
			job.ID = id
		}
	}
}

func (c *Client) result(ctx context.Context, jobID string) (internal.RawExtraction, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/extraction/jobs/"+url.PathEscape(jobID)+"/result", nil, "")
	if err != nil {
		return nil, fmt.Errorf("fetch result %s: %w", jobID, err)
	}
	var res resultResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(res.Data, &data); err != nil || data == nil {
		return nil, retry.Permanent(fmt.Errorf("result %s: data is not an object", jobID))
	}
	return internal.RawExtraction(data), nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llama api error: status=%d body=%s", e.code, e.body)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string) ([]byte, error) {
	if err := c.limiter.WaitTurn(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &statusError{code: resp.StatusCode, body: util.Truncate(string(data), 300)}
		if isRetryableStatus(resp.StatusCode) {
			return nil, statusErr
		}
		return nil, retry.Permanent(statusErr)
	}
	return data, nil
}

func isRetryableStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return status >= 500
	}
}
