package notify

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

	"github.com/warp/insights-engine/logger"
)

// ErrTransportNotConfigured is returned when the gateway has no token.
var ErrTransportNotConfigured = errors.New("message transport not configured")

// Transport sends one text message to one address.
type Transport interface {
	Send(ctx context.Context, address, text string) error
}

// =============================================================================
// HTTP TRANSPORT - WhatsApp-style gateway
// =============================================================================

// HTTPTransport posts to {baseURL}/send/text with a token header.
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPTransport(baseURL, token string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type sendTextRequest struct {
	Number      string `json:"number"`
	Text        string `json:"text"`
	LinkPreview bool   `json:"linkPreview"`
}

func (t *HTTPTransport) Send(ctx context.Context, address, text string) error {
	if t.token == "" || t.baseURL == "" {
		return ErrTransportNotConfigured
	}
	number := NormalizePhone(address)
	if number == "" {
		return fmt.Errorf("invalid address %q", address)
	}

	body, err := json.Marshal(sendTextRequest{Number: number, Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/send/text", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", t.token)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// NormalizePhone keeps digits only and adds the 55 country prefix when missing.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" || strings.HasPrefix(digits, "55") {
		return digits
	}
	return "55" + digits
}

// =============================================================================
// LOG TRANSPORT - Used when no gateway is configured
// =============================================================================

type LogTransport struct {
	log *logger.Logger
}

func NewLogTransport(log *logger.Logger) *LogTransport {
	return &LogTransport{log: log.With("component", "log_transport")}
}

func (t *LogTransport) Send(_ context.Context, address, text string) error {
	t.log.Info("message not sent, no gateway configured", "address", address, "chars", len(text))
	return nil
}
