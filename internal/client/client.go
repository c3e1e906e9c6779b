// Package client talks to the pumpfleet REST API. It backs the pumpctl
// command and satisfies session.Authenticator so a CLI session can sign in
// through it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/PumpFleet/internal/api/rest"
	"github.com/KevinKickass/PumpFleet/internal/collection"
	"github.com/KevinKickass/PumpFleet/internal/session"
	"github.com/KevinKickass/PumpFleet/internal/types"
	"github.com/KevinKickass/PumpFleet/internal/validation"
)

var (
	// ErrUnauthorized means the token is missing, expired or revoked.
	ErrUnauthorized = errors.New("not signed in or session expired")
	ErrNotFound     = errors.New("not found")
)

// APIError is a non-2xx answer carrying the server's error payload.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *zap.Logger
}

func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With(zap.String("component", "api_client")),
	}
}

// WithToken returns a copy that sends token as bearer.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Authenticate implements session.Authenticator.
func (c *Client) Authenticate(ctx context.Context, creds validation.Credentials) (session.User, error) {
	var res rest.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", creds, &res); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			// surface the server's wording, not ErrUnauthorized
			return session.User{}, errors.New(apiErr.Message)
		}
		return session.User{}, err
	}
	return session.User{Username: res.User, Token: res.Token}, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
}

// Me returns the username the token belongs to.
func (c *Client) Me(ctx context.Context) (string, error) {
	var res struct {
		User string `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, &res); err != nil {
		return "", err
	}
	return res.User, nil
}

func (c *Client) List(ctx context.Context, page, pageSize int) (*rest.ListResponse, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	path := "/api/v1/pumps"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res rest.ListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// WaitLoaded polls the collection state until the first load has finished.
func (c *Client) WaitLoaded(ctx context.Context, every time.Duration) (*collection.State, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		st, err := c.State(ctx)
		if err != nil {
			return nil, err
		}
		if !st.Loading {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) State(ctx context.Context) (*collection.State, error) {
	var st collection.State
	if err := c.do(ctx, http.MethodGet, "/api/v1/pumps/state", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Get(ctx context.Context, id string) (*rest.PumpDetail, error) {
	var res rest.PumpDetail
	if err := c.do(ctx, http.MethodGet, "/api/v1/pumps/"+url.PathEscape(id), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Create(ctx context.Context, form types.PumpForm) (*rest.PumpView, error) {
	var res rest.PumpView
	if err := c.do(ctx, http.MethodPost, "/api/v1/pumps", form, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Update(ctx context.Context, id string, patch types.PumpPatch) (*rest.PumpView, error) {
	var res rest.PumpView
	if err := c.do(ctx, http.MethodPatch, "/api/v1/pumps/"+url.PathEscape(id), patch, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Delete runs the edit-mode flow for ids: enter edit mode, clear the
// selection, select each id, request and confirm. It returns the ids the server removed.
func (c *Client) Delete(ctx context.Context, ids []string) ([]string, error) {
	st, err := c.State(ctx)
	if err != nil {
		return nil, err
	}
	if !st.EditMode {
		if err := c.do(ctx, http.MethodPost, "/api/v1/pumps/edit-mode/toggle", nil, nil); err != nil {
			return nil, err
		}
	}

	// start from an empty selection so nothing picked earlier goes too
	cleared := false
	if err := c.do(ctx, http.MethodPut, "/api/v1/pumps/selection", rest.SelectRequest{Selected: &cleared}, nil); err != nil {
		return nil, err
	}

	selected := true
	for _, id := range ids {
		body := rest.SelectRequest{Selected: &selected}
		if err := c.do(ctx, http.MethodPut, "/api/v1/pumps/selection/"+url.PathEscape(id), body, nil); err != nil {
			return nil, fmt.Errorf("select %s: %w", id, err)
		}
	}

	if err := c.do(ctx, http.MethodPost, "/api/v1/pumps/delete/request", nil, nil); err != nil {
		return nil, err
	}

	var res rest.DeleteResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/pumps/delete/confirm", nil, &res); err != nil {
		return nil, err
	}
	return res.Removed, nil
}

func (c *Client) Search(ctx context.Context, term string) (*collection.State, error) {
	var st collection.State
	if err := c.do(ctx, http.MethodPost, "/api/v1/pumps/search", rest.SearchRequest{Term: term}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Sort(ctx context.Context, key collection.SortKey) (*collection.State, error) {
	var st collection.State
	if err := c.do(ctx, http.MethodPost, "/api/v1/pumps/sort", rest.SortRequest{Key: key}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("API call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload types.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	if json.Unmarshal(data, &payload) == nil && payload.Error.Message != "" {
		apiErr.Code = payload.Error.Code
		apiErr.Message = payload.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
	}
	return apiErr
}
