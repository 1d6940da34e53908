// Package assistant talks to the form-filling assistant service.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rcliao/formsync/internal/model"
)

// ErrNoResponse is returned when the assistant answered without a payload.
var ErrNoResponse = errors.New("no response from assistant")

// Request is the body posted to the assistant.
type Request struct {
	UserMessage         string                    `json:"user_message"`
	FormFields          model.Snapshot            `json:"form_fields"`
	ConversationHistory []model.ConversationEntry `json:"conversation_history"`
	CurrentField        json.RawMessage           `json:"current_field,omitempty"`
	MissingFields       model.Snapshot            `json:"missing_fields,omitempty"`
}

// BuildRequest assembles a request from the stored state. When a cached
// response exists the conversation continues: its current field is echoed
// and missing fields are narrowed to those still empty in the snapshot.
func BuildRequest(message string, snap model.Snapshot, history []model.ConversationEntry, cached *model.AssistantResponse) Request {
	if snap == nil {
		snap = model.Snapshot{}
	}
	if history == nil {
		history = []model.ConversationEntry{}
	}
	req := Request{UserMessage: message, FormFields: snap, ConversationHistory: history}
	if cached == nil {
		return req
	}

	req.CurrentField = cached.CurrentField
	missing := map[string]bool{}
	for _, f := range cached.MissingFields {
		missing[f.DataID] = true
	}
	for _, f := range snap {
		if missing[f.DataID] && f.FieldValue.Empty() {
			req.MissingFields = append(req.MissingFields, f)
		}
	}
	return req
}

// Client sends one request to the assistant.
type Client interface {
	Complete(ctx context.Context, req Request) (*model.AssistantResponse, error)
}

// HTTPClient posts requests as JSON to an assistant endpoint.
type HTTPClient struct {
	url    string
	client *http.Client
}

// NewHTTPClient creates a client for url. A zero timeout uses 30s.
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{url: url, client: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) Complete(ctx context.Context, r Request) (*model.AssistantResponse, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assistant request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("assistant error %d: %s", resp.StatusCode, string(b))
	}
	return decode(resp.Body)
}

// FileClient answers every request with a canned response read from disk.
type FileClient struct {
	Path string
}

func (c FileClient) Complete(ctx context.Context, _ Request) (*model.AssistantResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("open mock response: %w", err)
	}
	defer f.Close()
	return decode(f)
}

func decode(r io.Reader) (*model.AssistantResponse, error) {
	var out *model.AssistantResponse
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoResponse
		}
		return nil, fmt.Errorf("decode assistant response: %w", err)
	}
	if out == nil {
		return nil, ErrNoResponse
	}
	return out, nil
}
