package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"product-rec-agent/internal/dto"
	"product-rec-agent/internal/pkg/logger"
)

const maxBodyBytes = 10 * 1024 * 1024

// Client calls the agent gateway over HTTP and normalizes gateway anomalies
// (startup redirects, HTML 404 pages, 5xx, dropped connections) into AgentResponse values.
type Client struct {
	BaseURL    string
	Path       string
	HTTPClient *http.Client

	notifier Notifier
	logger   logger.ILogger
}

// Ensure Client implements Transport
var _ Transport = &Client{}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.HTTPClient = hc
	}
}

func WithNotifier(n Notifier) ClientOption {
	return func(c *Client) {
		if n != nil {
			c.notifier = n
		}
	}
}

func WithLogger(l logger.ILogger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL, path string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Path:    "/" + strings.TrimPrefix(path, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		notifier: NopNotifier{},
		logger:   logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) endpoint() string {
	return c.BaseURL + c.Path
}

func (c *Client) Send(ctx context.Context, text, agentId string, turnCtx dto.TurnContext) (*dto.AgentResponse, error) {
	endpoint := c.endpoint()

	payload, err := json.Marshal(dto.AgentRequest{
		Message:   text,
		AgentId:   agentId,
		SessionId: turnCtx.SessionId,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return c.networkFailure(ctx, endpoint, err), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.networkFailure(ctx, endpoint, err), nil
	}

	// Gateway bounced us (usually to a login or warm-up page)
	if finalURL := resp.Request.URL.String(); finalURL != req.URL.String() {
		if isAPIPath(endpoint) {
			c.notify(ctx, Notification{
				Type:     NotificationAPIError,
				Message:  "Backend is starting up. Please try again in a moment.",
				Status:   http.StatusServiceUnavailable,
				Endpoint: endpoint,
			})
			return failure(StartingUpError, StartingUpError), nil
		}
		return nil, &PageTakeoverError{URL: finalURL}
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") && bytes.Contains(body, []byte("tool_auth")) {
		c.notify(ctx, Notification{
			Type:     NotificationToolAuthRequired,
			Message:  "Tool authentication required",
			Status:   resp.StatusCode,
			Endpoint: endpoint,
			ToolAuth: extractToolAuth(body),
		})
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		if strings.Contains(contentType, "text/html") {
			return nil, &PageTakeoverError{URL: endpoint, Document: string(body)}
		}
		c.notify(ctx, Notification{
			Type:     NotificationNetworkError,
			Message:  fmt.Sprintf("Backend returned 404 Not Found for %s", endpoint),
			Status:   resp.StatusCode,
			Endpoint: endpoint,
		})
	case resp.StatusCode >= http.StatusInternalServerError:
		c.notify(ctx, Notification{
			Type:     NotificationAPIError,
			Message:  fmt.Sprintf("Backend returned %d error for %s", resp.StatusCode, endpoint),
			Status:   resp.StatusCode,
			Endpoint: endpoint,
		})
	}

	return decodeResponse(resp.StatusCode, endpoint, body), nil
}

func (c *Client) networkFailure(ctx context.Context, endpoint string, err error) *dto.AgentResponse {
	c.logger.Warn("AGENT", "Agent request failed", map[string]interface{}{
		"endpoint": endpoint,
		"error":    err.Error(),
	})
	c.notify(ctx, Notification{
		Type:     NotificationNetworkError,
		Message:  fmt.Sprintf("Network error: Cannot connect to backend (%s)", endpoint),
		Endpoint: endpoint,
	})
	return failure(NoResponseError, "Network error. The server may be starting up.")
}

func (c *Client) notify(ctx context.Context, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("AGENT", "Notifier panicked", map[string]interface{}{
				"type":  string(n.Type),
				"error": fmt.Sprint(r),
			})
		}
	}()

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if n.Type != NotificationToolAuthRequired {
		c.logger.Error("AGENT", n.Message, map[string]interface{}{
			"status":   n.Status,
			"endpoint": n.Endpoint,
		})
	}
	c.notifier.Notify(ctx, n)
}

// decodeResponse maps a gateway body onto the agent envelope.
// Non-envelope JSON on 2xx is treated as the agent's result object; non-JSON as result text.
func decodeResponse(status int, endpoint string, body []byte) *dto.AgentResponse {
	var probe map[string]json.RawMessage
	isEnvelope := json.Unmarshal(body, &probe) == nil && probe["success"] != nil

	if status >= http.StatusBadRequest {
		var out dto.AgentResponse
		if isEnvelope && json.Unmarshal(body, &out) == nil {
			out.Success = false
			if out.Error == "" {
				out.Error = statusError(status, endpoint)
			}
			return &out
		}
		return failure(statusError(status, endpoint), "")
	}

	if isEnvelope {
		var out dto.AgentResponse
		if err := json.Unmarshal(body, &out); err == nil {
			return &out
		}
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return failure(GenericFailError, "")
	}

	var result any
	if probe != nil && json.Unmarshal(body, &result) == nil {
		return &dto.AgentResponse{Success: true, Response: &dto.AgentReply{Status: "success", Result: result}}
	}
	return &dto.AgentResponse{Success: true, Response: &dto.AgentReply{Status: "success", Result: text}}
}

func failure(errText, message string) *dto.AgentResponse {
	return &dto.AgentResponse{
		Success: false,
		Response: &dto.AgentReply{
			Status:  "error",
			Result:  map[string]any{},
			Message: message,
		},
		Error: errText,
	}
}

func statusError(status int, endpoint string) string {
	return fmt.Sprintf("Backend returned %d error for %s", status, endpoint)
}

func isAPIPath(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.Contains(endpoint, "/api/")
	}
	return strings.Contains(u.Path, "/api/")
}
