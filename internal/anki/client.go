// Package anki integrates with AnkiConnect, the local Anki HTTP bridge, to
// pull note text into the card store.
package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// apiVersion is the AnkiConnect protocol version this client speaks.
const apiVersion = 6

// ClientOptions configures the AnkiConnect client.
type ClientOptions struct {
	// BaseURL is the AnkiConnect endpoint (default: "http://localhost:8765")
	BaseURL string
	// RetryMax is the maximum number of retries (default: 3)
	RetryMax int
	// Timeout is the HTTP client timeout (default: 30 seconds)
	Timeout time.Duration
}

// Client is the AnkiConnect API client.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewClient creates a new AnkiConnect client with default settings.
func NewClient(baseURL string) *Client {
	return NewClientWithOptions(ClientOptions{BaseURL: baseURL})
}

// NewClientWithOptions creates a new AnkiConnect client with custom options.
func NewClientWithOptions(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8765"
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil // Disable logging by default

	return &Client{
		baseURL:    opts.BaseURL,
		httpClient: retryClient,
	}
}

// request is the AnkiConnect envelope: every action posts the same shape.
type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// invoke posts one action and decodes the result into out.
func (c *Client) invoke(ctx context.Context, action string, params, out any) error {
	payload, err := json.Marshal(request{Action: action, Version: apiVersion, Params: params})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", action, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", action, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			slog.Error("Failed to read error response body", "error", err)
		}
		return fmt.Errorf("AnkiConnect request failed with status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", action, err)
	}

	if envelope.Error != nil && *envelope.Error != "" {
		return fmt.Errorf("AnkiConnect %s failed: %s", action, *envelope.Error)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to unmarshal %s result: %w", action, err)
		}
	}

	return nil
}

// Version returns the AnkiConnect protocol version, used as a connectivity check.
func (c *Client) Version(ctx context.Context) (int, error) {
	var version int
	if err := c.invoke(ctx, "version", nil, &version); err != nil {
		return 0, err
	}
	return version, nil
}

// DeckNames lists all deck names known to Anki.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.invoke(ctx, "deckNames", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// FindNotes returns note IDs matching an Anki search query (e.g. `deck:"Thai"`).
func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	var ids []int64
	params := map[string]string{"query": query}
	if err := c.invoke(ctx, "findNotes", params, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// NotesInfo fetches full note details for the given note IDs.
func (c *Client) NotesInfo(ctx context.Context, noteIDs []int64) ([]NoteInfo, error) {
	if len(noteIDs) == 0 {
		return nil, nil
	}

	var notes []NoteInfo
	params := map[string][]int64{"notes": noteIDs}
	if err := c.invoke(ctx, "notesInfo", params, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// FindNotesInDeck returns note IDs for every note in the named deck.
func (c *Client) FindNotesInDeck(ctx context.Context, deckName string) ([]int64, error) {
	if deckName == "" {
		return nil, fmt.Errorf("deck name is required")
	}

	return c.FindNotes(ctx, fmt.Sprintf("deck:%q", deckName))
}
