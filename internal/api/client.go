package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledgerline/ledgerline/internal/model"
)

// TokenFunc supplies the current bearer token. It is called per request
// so that sign-in/sign-out takes effect without rebuilding the client.
type TokenFunc func() string

// Client is a thin HTTP client for the ledgerline REST API. It handles
// Bearer token authentication, JSON marshaling, and classification of
// failures into the error taxonomy the queue and poller branch on.
type Client struct {
	baseURL    string
	token      TokenFunc
	httpClient *http.Client
}

// NewClient creates a new API client. The baseURL should be the root URL
// of the backend (e.g. https://api.example.com).
func NewClient(baseURL string, token TokenFunc, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// errorBody is the backend's JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// Do performs an HTTP request against the backend and unmarshals the JSON
// response into result (which may be nil). Failures are returned as typed
// errors from the taxonomy in errors.go.
func (c *Client) Do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectivityError{
			Op:  fmt.Sprintf("%s %s", method, path),
			Err: err,
		}
	}

	return c.finish(method, path, resp, result)
}

// finish reads the response body and maps the status code onto the error
// taxonomy.
func (c *Client) finish(method, path string, resp *http.Response, result interface{}) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectivityError{
			Op:  fmt.Sprintf("%s %s", method, path),
			Err: fmt.Errorf("reading response body: %w", err),
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if result != nil && len(data) > 0 {
			if err := json.Unmarshal(data, result); err != nil {
				return fmt.Errorf(
					"unmarshaling response from %s %s: %w", method, path, err,
				)
			}
		}
		return nil

	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return &AuthError{Status: resp.StatusCode, Message: errorMessage(data)}

	case resp.StatusCode == http.StatusConflict:
		return &ConflictError{Message: errorMessage(data)}

	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return &ValidationError{Status: resp.StatusCode, Message: errorMessage(data)}

	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return &ConnectivityError{
			Op:  fmt.Sprintf("%s %s", method, path),
			Err: fmt.Errorf("backend returned %d", resp.StatusCode),
		}

	default:
		return fmt.Errorf(
			"unexpected status %d from %s %s: %s",
			resp.StatusCode, method, path, errorMessage(data),
		)
	}
}

// errorMessage extracts the backend's error string, falling back to the
// raw body.
func errorMessage(data []byte) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil && eb.Error != "" {
		return eb.Error
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = "(empty response body)"
	}
	return msg
}

// Health probes the backend health endpoint. A nil return means the
// backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.Do(ctx, http.MethodGet, "/health", nil, nil)
}

// FetchNotifications retrieves the current notification events.
func (c *Client) FetchNotifications(ctx context.Context) ([]model.Notification, error) {
	var events []model.Notification
	if err := c.Do(ctx, http.MethodGet, "/notifications", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// MarkNotificationRead confirms a locally applied read mark with the
// backend.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodPost, "/notifications/"+id+"/read", nil, nil)
}

// MarkAllNotificationsRead confirms a mark-all-read with the backend.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/notifications/read-all", nil, nil)
}

// entityPath returns the REST collection path for an entity type.
// The switch is exhaustive over model.EntityTypes. An unknown type is a
// ValidationError so replay dead-letters the row instead of retrying it.
func entityPath(t model.EntityType) (string, error) {
	switch t {
	case model.EntitySale:
		return "/sales", nil
	case model.EntityProduct:
		return "/products", nil
	case model.EntityExpense:
		return "/expenses", nil
	case model.EntityCustomer:
		return "/customers", nil
	default:
		return "", &ValidationError{Message: fmt.Sprintf("unknown entity type %q", t)}
	}
}

// payloadID extracts the remote record id carried in an update or delete
// payload. A payload we cannot read an id from can never be replayed, so
// the failure is a ValidationError rather than something retryable.
func payloadID(payload json.RawMessage) (string, error) {
	var idHolder struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &idHolder); err != nil {
		return "", &ValidationError{Message: fmt.Sprintf("decoding payload id: %v", err)}
	}
	if idHolder.ID == "" {
		return "", &ValidationError{Message: "payload carries no id"}
	}
	return idHolder.ID, nil
}

// ApplyMutation performs the remote operation a queued mutation stands
// for. The (entity, operation) dispatch is exhaustive.
func (c *Client) ApplyMutation(ctx context.Context, m model.QueuedMutation) error {
	path, err := entityPath(m.EntityType)
	if err != nil {
		return err
	}

	switch m.Operation {
	case model.OpCreate:
		return c.Do(ctx, http.MethodPost, path, m.Payload, nil)
	case model.OpUpdate:
		id, err := payloadID(m.Payload)
		if err != nil {
			return err
		}
		return c.Do(ctx, http.MethodPut, path+"/"+id, m.Payload, nil)
	case model.OpDelete:
		id, err := payloadID(m.Payload)
		if err != nil {
			return err
		}
		return c.Do(ctx, http.MethodDelete, path+"/"+id, nil, nil)
	default:
		return &ValidationError{Message: fmt.Sprintf("unknown operation %q", m.Operation)}
	}
}
