package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPResponder calls the external assistant service over HTTP.
type HTTPResponder struct {
	url    string
	client *http.Client
}

// NewHTTPResponder creates a responder client for the given endpoint.
func NewHTTPResponder(url string, timeout time.Duration) *HTTPResponder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPResponder{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type responderRequest struct {
	TenantID string `json:"tenant_id"`
	Sender   string `json:"sender"`
	Text     string `json:"text"`
}

type responderResponse struct {
	Reply string `json:"reply"`
}

// Reply posts the message to the responder and returns its reply text.
// An empty reply means the assistant chose not to answer.
func (r *HTTPResponder) Reply(ctx context.Context, tenantID, sender, text string) (string, error) {
	body, err := json.Marshal(responderRequest{
		TenantID: tenantID,
		Sender:   sender,
		Text:     text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal responder request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build responder request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("responder call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return "", fmt.Errorf("responder returned status %d", resp.StatusCode)
	}

	var parsed responderResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode responder reply: %w", err)
	}
	return parsed.Reply, nil
}
