package main

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

	"github.com/kalambet/errorblob/internal/api"
	"github.com/kalambet/errorblob/internal/model"
)

// apiClient talks to a running `errorblob serve` and satisfies the same
// store contract as the local database.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.BackendError{
			Op:        method + " " + path,
			Transient: true,
			Err:       fmt.Errorf("server not reachable, is `errorblob serve` running? (%w)", err),
		}
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *apiClient) delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// decodeJSON decodes a successful response into v and turns error responses
// back into the store's error taxonomy.
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return statusError(resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func statusError(code int, body []byte) error {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	msg := string(body)
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		msg = payload.Error.Message
	}

	switch code {
	case http.StatusBadRequest:
		msg = strings.TrimPrefix(msg, model.ErrInvalidArgument.Error()+": ")
		return fmt.Errorf("%w: %s", model.ErrInvalidArgument, msg)
	case http.StatusServiceUnavailable:
		return &model.BackendError{Op: "server", Transient: true, Err: errors.New(msg)}
	case http.StatusBadGateway:
		return &model.BackendError{Op: "server", Err: errors.New(msg)}
	case http.StatusInternalServerError:
		return &model.StorageError{Op: "server", Err: errors.New(msg)}
	default:
		return fmt.Errorf("server returned %d: %s", code, msg)
	}
}

func (c *apiClient) Commit(ctx context.Context, d model.Draft) (model.Record, error) {
	resp, err := c.post(ctx, "/errors", api.CommitRequest{
		ErrorText: d.ErrorText,
		FixText:   d.FixText,
		Tags:      d.Tags,
		Author:    d.Author,
	})
	if err != nil {
		return model.Record{}, err
	}
	var rec model.Record
	if err := decodeJSON(resp, &rec); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

func (c *apiClient) Look(ctx context.Context, query string, limit int) ([]model.Match, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	resp, err := c.get(ctx, "/errors/search?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var result api.SearchResponse
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	if result.Results == nil {
		result.Results = []model.Match{}
	}
	return result.Results, nil
}

func (c *apiClient) List(ctx context.Context) ([]model.Record, error) {
	resp, err := c.get(ctx, "/errors")
	if err != nil {
		return nil, err
	}
	var result api.ListResponse
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	if result.Records == nil {
		result.Records = []model.Record{}
	}
	return result.Records, nil
}

func (c *apiClient) Delete(ctx context.Context, id string) (bool, error) {
	resp, err := c.delete(ctx, "/errors/"+url.PathEscape(id))
	if err != nil {
		return false, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return false, nil
	}
	var result api.DeleteResponse
	if err := decodeJSON(resp, &result); err != nil {
		return false, err
	}
	return result.Deleted, nil
}

func (c *apiClient) Status(ctx context.Context) (model.Status, error) {
	resp, err := c.get(ctx, "/status")
	if err != nil {
		return model.Status{}, err
	}
	var result api.StatusResponse
	if err := decodeJSON(resp, &result); err != nil {
		return model.Status{}, err
	}
	return result.Status, nil
}

func (c *apiClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
