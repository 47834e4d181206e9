package leadimport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client talks to the API's import endpoints and implements both Jobs and
// Submitter for the command-line importer.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

type createJobResponse struct {
	ID uuid.UUID `json:"id"`
}

func (c *Client) CreateJob(ctx context.Context, spec JobSpec) (uuid.UUID, error) {
	var resp createJobResponse
	if err := c.post(ctx, "/api/imports", spec, &resp); err != nil {
		return uuid.Nil, err
	}
	if resp.ID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("create import job: response has no id")
	}
	return resp.ID, nil
}

func (c *Client) Submit(ctx context.Context, req Request) (Result, error) {
	var result Result
	if err := c.post(ctx, "/api/imports/process", req, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// apiError covers both the processor's {"error": "..."} body and the
// envelope used by the rest of the API.
type apiError struct {
	Error json.RawMessage `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("POST %s: %s: %s", path, resp.Status, errorMessage(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var body apiError
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Error) == 0 {
		return strings.TrimSpace(string(raw))
	}
	var text string
	if err := json.Unmarshal(body.Error, &text); err == nil {
		return text
	}
	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body.Error, &envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	return strings.TrimSpace(string(raw))
}
