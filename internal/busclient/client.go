// Package busclient talks to the agent bus: registration, inbox polling,
// acknowledgements, progress events and replies. Every mutating call is
// signed with the agent secret in the X-Bus-Signature header.
package busclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader = "X-Bus-Signature"
	AgentHeader     = "X-Agent-ID"

	maxResponseBytes = 8 << 20
)

type InboxEvent struct {
	MessageID      string         `json:"message_id"`
	Type           string         `json:"type"`
	From           string         `json:"from"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Body           string         `json:"body"`
	Meta           map[string]any `json:"meta,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ReplyTo is the meta reply_to address when present, otherwise the sender.
func (e InboxEvent) ReplyTo() string {
	if rt, ok := e.Meta["reply_to"].(string); ok && strings.TrimSpace(rt) != "" {
		return strings.TrimSpace(rt)
	}
	return e.From
}

type Message struct {
	To             string         `json:"to"`
	ConversationID string         `json:"conversation_id,omitempty"`
	RequestID      string         `json:"request_id"`
	Type           string         `json:"type"`
	Body           string         `json:"body"`
	Meta           map[string]any `json:"meta,omitempty"`
}

type AgentInfo struct {
	AgentID      string   `json:"agent_id"`
	Capabilities []string `json:"capabilities"`
	Status       string   `json:"status"`
}

// StatusError is returned when the bus answers with a 4xx or 5xx status.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

// Temporary reports whether retrying the call later may succeed.
func (e *StatusError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func IsTemporary(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return err != nil && !errors.Is(err, context.Canceled)
}

type Client struct {
	baseURL string
	agentID string
	secret  string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL, agentID, secret string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		agentID: agentID,
		secret:  secret,
		http:    &http.Client{Timeout: 75 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) AgentID() string { return c.agentID }

func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, headers map[string]string, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	blob, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(blob))}
	}
	if out == nil || len(bytes.TrimSpace(blob)) == 0 {
		return nil
	}
	return json.Unmarshal(blob, out)
}

func (c *Client) signedPost(ctx context.Context, path string, payload any, headers map[string]string, out any) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headers[SignatureHeader] = Sign(c.secret, blob)
	return c.do(ctx, http.MethodPost, path, blob, headers, out)
}

func (c *Client) Register(ctx context.Context, capabilities []string, ttl time.Duration) error {
	blob, err := json.Marshal(map[string]any{
		"agent_id":     c.agentID,
		"capabilities": capabilities,
		"mode":         "pull",
		"ttl":          int(ttl.Seconds()),
		"secret":       c.secret,
	})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/v1/agents/register", blob, nil, nil)
}

// Poll long-polls the inbox and returns new events plus the cursor to use next.
func (c *Client) Poll(ctx context.Context, cursor int, wait time.Duration) ([]InboxEvent, int, error) {
	q := url.Values{}
	q.Set("agent_id", c.agentID)
	q.Set("cursor", strconv.Itoa(cursor))
	q.Set("wait", strconv.Itoa(int(wait.Seconds())))
	rawQuery := q.Encode()
	var resp struct {
		Events []InboxEvent `json:"events"`
		Cursor string       `json:"cursor"`
	}
	headers := map[string]string{SignatureHeader: Sign(c.secret, []byte(rawQuery))}
	if err := c.do(ctx, http.MethodGet, "/v1/inbox?"+rawQuery, nil, headers, &resp); err != nil {
		return nil, cursor, err
	}
	next, err := strconv.Atoi(strings.TrimSpace(resp.Cursor))
	if err != nil {
		next = cursor
	}
	return resp.Events, next, nil
}

func (c *Client) Ack(ctx context.Context, messageID, status, reason string) error {
	return c.signedPost(ctx, "/v1/acks", map[string]any{
		"agent_id":   c.agentID,
		"message_id": messageID,
		"status":     status,
		"reason":     reason,
	}, nil, nil)
}

func (c *Client) Emit(ctx context.Context, messageID, eventType, body string, meta map[string]any) error {
	return c.signedPost(ctx, "/v1/events", map[string]any{
		"message_id": messageID,
		"type":       eventType,
		"body":       body,
		"meta":       meta,
	}, map[string]string{AgentHeader: c.agentID}, nil)
}

func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	payload := struct {
		From string `json:"from"`
		Message
	}{From: c.agentID, Message: msg}
	var resp struct {
		MessageID string `json:"message_id"`
	}
	if err := c.signedPost(ctx, "/v1/messages", payload, nil, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.MessageID) == "" {
		return "", errors.New("missing message_id in response")
	}
	return resp.MessageID, nil
}

func (c *Client) ListAgents(ctx context.Context, capability string) ([]AgentInfo, error) {
	path := "/v1/agents"
	if capability != "" {
		path += "?capability=" + url.QueryEscape(capability)
	}
	var resp struct {
		Agents []AgentInfo `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}
