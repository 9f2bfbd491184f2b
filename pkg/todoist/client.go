// Package todoist talks to the Todoist unified API.
package todoist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/harrisonrobin/todovault/pkg/model"
	"google.golang.org/api/googleapi"
)

// DefaultBaseURL is the unified API v1 endpoint.
const DefaultBaseURL = "https://api.todoist.com/api/v1"

// resourceTypes is what a sync request asks for.
var resourceTypes = []string{"projects", "items", "sections", "labels"}

// Client is a Todoist API client. The http.Client is expected to add
// authorization, see auth.TodoistClient.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *log.Logger
}

// NewClient creates a client. An empty baseURL selects DefaultBaseURL.
func NewClient(httpClient *http.Client, baseURL string, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[todoist] ", log.LstdFlags)
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// TestConnection checks that the API is reachable and the credential valid.
func (c *Client) TestConnection(ctx context.Context) error {
	var user struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/user", nil, "", &user); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// FetchFullSnapshot fetches the whole workspace. The result is always a
// full payload and carries a fresh sync token.
func (c *Client) FetchFullSnapshot(ctx context.Context) (model.Payload, error) {
	p, err := c.sync(ctx, "*")
	if err != nil {
		return model.Payload{}, fmt.Errorf("full sync failed: %w", err)
	}
	p.FullSync = true
	return p, nil
}

// FetchIncremental fetches what changed since token. The server may still
// answer with a full payload.
func (c *Client) FetchIncremental(ctx context.Context, token string) (model.Payload, error) {
	p, err := c.sync(ctx, token)
	if err != nil {
		return model.Payload{}, fmt.Errorf("incremental sync failed: %w", err)
	}
	return p, nil
}

func (c *Client) sync(ctx context.Context, token string) (model.Payload, error) {
	types, err := json.Marshal(resourceTypes)
	if err != nil {
		return model.Payload{}, err
	}
	form := url.Values{}
	form.Set("sync_token", token)
	form.Set("resource_types", string(types))

	var p model.Payload
	err = c.do(ctx, http.MethodPost, "/sync", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &p)
	return p, err
}

// TaskUpdate carries the task fields to change. Nil fields are left alone.
type TaskUpdate struct {
	Content     *string
	Description *string
	Priority    *int
	// Due is a date (2006-01-02) or a datetime. An empty string clears it.
	Due    *string
	Labels *[]string
}

// IsEmpty reports whether u changes nothing.
func (u TaskUpdate) IsEmpty() bool {
	return u.Content == nil && u.Description == nil && u.Priority == nil && u.Due == nil && u.Labels == nil
}

func (u TaskUpdate) body() map[string]any {
	b := make(map[string]any)
	if u.Content != nil {
		b["content"] = *u.Content
	}
	if u.Description != nil {
		b["description"] = *u.Description
	}
	if u.Priority != nil {
		b["priority"] = *u.Priority
	}
	if u.Due != nil {
		switch due := *u.Due; {
		case due == "":
			b["due_string"] = "no date"
		case strings.Contains(due, "T"):
			b["due_datetime"] = due
		default:
			b["due_date"] = due
		}
	}
	if u.Labels != nil {
		labels := *u.Labels
		if labels == nil {
			labels = []string{}
		}
		b["labels"] = labels
	}
	return b
}

// UpdateTaskFields changes the fields set in u.
func (c *Client) UpdateTaskFields(ctx context.Context, id string, u TaskUpdate) error {
	if u.IsEmpty() {
		return nil
	}
	if err := c.post(ctx, "/tasks/"+url.PathEscape(id), u.body()); err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return nil
}

// SetTaskCompletion closes or reopens a task.
func (c *Client) SetTaskCompletion(ctx context.Context, id string, completed bool) error {
	action := "reopen"
	if completed {
		action = "close"
	}
	if err := c.post(ctx, "/tasks/"+url.PathEscape(id)+"/"+action, nil); err != nil {
		return fmt.Errorf("failed to %s task %s: %w", action, id, err)
	}
	return nil
}

// ProjectUpdate carries the project fields to change.
type ProjectUpdate struct {
	Name       *string
	Color      *string
	IsFavorite *bool
}

// IsEmpty reports whether u changes nothing.
func (u ProjectUpdate) IsEmpty() bool {
	return u.Name == nil && u.Color == nil && u.IsFavorite == nil
}

// UpdateProjectFields changes the fields set in u.
func (c *Client) UpdateProjectFields(ctx context.Context, id string, u ProjectUpdate) error {
	if u.IsEmpty() {
		return nil
	}
	b := make(map[string]any)
	if u.Name != nil {
		b["name"] = *u.Name
	}
	if u.Color != nil {
		b["color"] = *u.Color
	}
	if u.IsFavorite != nil {
		b["is_favorite"] = *u.IsFavorite
	}
	if err := c.post(ctx, "/projects/"+url.PathEscape(id), b); err != nil {
		return fmt.Errorf("failed to update project %s: %w", id, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) error {
	var r io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, http.MethodPost, path, r, contentType, nil)
}

// do sends a request and decodes a JSON answer into out. Non-2xx answers
// come back as *googleapi.Error.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method != http.MethodGet && path != "/sync" {
		req.Header.Set("X-Request-Id", uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return err
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
