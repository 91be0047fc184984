package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/errormapper"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/segmenter"
)

// HTTPSendRequest is the JSON body posted to a generic HTTP SMS provider.
type HTTPSendRequest struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	SenderID string `json:"sender_id"`
}

type HTTPSendResponse struct {
	MessageID string `json:"message_id"`
}

type HTTPConfig struct {
	URL      string
	APIKey   string // X-API-KEY header value
	SenderID string
	Timeout  time.Duration
}

// HTTPClient posts each message as one request; segmentation is the
// provider's job.
type HTTPClient struct {
	config     HTTPConfig
	httpClient *http.Client
}

func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("gateway http url must be provided")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (h *HTTPClient) Send(ctx context.Context, phone, text string) (SendResult, error) {
	logCtx := logging.ContextWithGateway(ctx, h.Name())

	jsonData, err := json.Marshal(HTTPSendRequest{To: phone, Message: text, SenderID: h.config.SenderID})
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("X-API-KEY", h.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return SendResult{}, NewError(errormapper.ErrorCodeGatewayTimeout, ctx.Err())
		}
		// net errors are classified by the caller's ReasonFromError
		return SendResult{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return SendResult{}, NewError(errormapper.ErrorCodeGatewayRateLimited, fmt.Errorf("HTTP API returned status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return SendResult{}, NewError(errormapper.ErrorCodeGatewayUnavailable, fmt.Errorf("HTTP API returned status %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.WarnContext(logCtx, "HTTP gateway rejected message", slog.Int("status", resp.StatusCode), slog.String("body", string(body)))
		return SendResult{}, NewError(errormapper.ErrorCodeGatewayRejected, fmt.Errorf("HTTP API returned status %d", resp.StatusCode))
	}

	var sendResp HTTPSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil && !errors.Is(err, io.EOF) {
		return SendResult{}, NewError(errormapper.ErrorCodeGatewayRejected, fmt.Errorf("failed to decode response: %w", err))
	}
	return SendResult{MessageID: sendResp.MessageID, Segments: segmenter.Units(text)}, nil
}

// HealthCheck issues a HEAD against the provider URL.
func (h *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	req.Header.Set("X-API-KEY", h.config.APIKey)
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (h *HTTPClient) Name() string                { return "http" }
func (h *HTTPClient) Close(context.Context) error { h.httpClient.CloseIdleConnections(); return nil }

var _ Client = (*HTTPClient)(nil)
