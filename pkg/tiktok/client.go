// Package tiktok wraps the TikTok Business Messaging send endpoint.
package tiktok

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

	pkgerrors "github.com/philiathrifts/thriftbot/pkg/errors"
	"github.com/philiathrifts/thriftbot/pkg/logger"
)

const (
	defaultBaseURL        = "https://business-api.tiktok.com/open_api/v1.3/business/message/send/"
	responseBodyReadLimit = 4 * 1024
	defaultRequestTimeout = 30 * time.Second
	headerAccessToken     = "Access-Token"
	messageTypeText       = "text"
)

var errAccessTokenRequired = errors.New("tiktok access token is required")

// SendStatus classifies the outcome of a send attempt that did not error.
type SendStatus string

const (
	// SendStatusSent means the platform accepted the message.
	SendStatusSent SendStatus = "sent"
	// SendStatusAuthRevoked means credentials were rejected (401/403). The
	// caller must not retry; operator action is required.
	SendStatusAuthRevoked SendStatus = "auth_revoked"
	// SendStatusRejected means the platform refused this specific message
	// (other 4xx). Retrying the same payload would fail the same way.
	SendStatusRejected SendStatus = "rejected"
)

// SendResult reports the outcome of a message send.
type SendResult struct {
	Status    SendStatus
	MessageID string
}

// Sent reports whether the platform accepted the message.
func (r *SendResult) Sent() bool {
	return r != nil && r.Status == SendStatusSent
}

// MessageSender is the outbound surface consumed by the conversation pipeline.
type MessageSender interface {
	SendMessage(ctx context.Context, recipientID, text string) (*SendResult, error)
}

// Client calls the Business Messaging API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	businessID  string
	logg        *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the messaging endpoint URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithLogger attaches a logger for auth-failure escalation.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logg = logg
	}
}

// NewClient builds the messaging client given credentials.
func NewClient(accessToken, businessID string, opts ...Option) (*Client, error) {
	trimmedToken := strings.TrimSpace(accessToken)
	if trimmedToken == "" {
		return nil, errAccessTokenRequired
	}

	client := &Client{
		accessToken: trimmedToken,
		businessID:  strings.TrimSpace(businessID),
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: defaultRequestTimeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

type sendRequest struct {
	BusinessID  string      `json:"business_id"`
	RecipientID string      `json:"recipient_id"`
	MessageType string      `json:"message_type"`
	Content     textContent `json:"content"`
}

type textContent struct {
	Text string `json:"text"`
}

// SendMessage delivers a text message to a user OpenID.
//
// Outcomes split three ways: 2xx returns a sent result; 401/403 and other 4xx
// return a non-nil result with a terminal status and a nil error, since
// retrying cannot help; 429 and 5xx return a retryable error so the caller's
// retry policy can re-attempt delivery.
func (c *Client) SendMessage(ctx context.Context, recipientID, text string) (*SendResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tiktok client not configured")
	}
	if strings.TrimSpace(recipientID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient id is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message text is required")
	}

	payload, err := json.Marshal(sendRequest{
		BusinessID:  c.businessID,
		RecipientID: recipientID,
		MessageType: messageTypeText,
		Content:     textContent{Text: text},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal send request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build send request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerAccessToken, c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute send request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var apiResp struct {
			Data struct {
				MessageID string `json:"message_id"`
			} `json:"data"`
		}
		_ = json.Unmarshal(body, &apiResp)
		return &SendResult{Status: SendStatusSent, MessageID: apiResp.Data.MessageID}, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if c.logg != nil {
			c.logg.Critical(ctx, "tiktok credentials rejected; messaging is down until the token is rotated",
				fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}
		return &SendResult{Status: SendStatusAuthRevoked}, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, pkgerrors.Wrap(pkgerrors.CodeRateLimit,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			"tiktok rate limited send")

	case resp.StatusCode >= 500:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			"tiktok send failed upstream")

	default:
		if c.logg != nil {
			c.logg.Error(ctx, "tiktok rejected message",
				fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}
		return &SendResult{Status: SendStatusRejected}, nil
	}
}
