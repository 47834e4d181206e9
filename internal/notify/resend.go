package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// ResendClient sends mail through the Resend HTTP API.
type ResendClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewResendClient(baseURL, apiKey string) *ResendClient {
	return &ResendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type resendResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ProviderError is a non-2xx answer from the provider.
type ProviderError struct {
	Status  int
	Name    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("resend: %d %s: %s", e.Status, e.Name, e.Message)
	}
	return fmt.Sprintf("resend: %d: %s", e.Status, e.Message)
}

func (c *ResendClient) Send(ctx context.Context, msg Message) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read email response: %w", err)
	}

	var decoded resendResponse
	_ = json.Unmarshal(body, &decoded)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := decoded.Message
		if message == "" {
			message = strings.TrimSpace(string(body))
		}
		return "", &ProviderError{Status: resp.StatusCode, Name: decoded.Name, Message: message}
	}
	return decoded.ID, nil
}
