package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/errorblob/internal/model"
)

const maxRequestBodySize = 1 << 20 // 1MB

const (
	defaultLookLimit = 5
	// maxLookLimit clamps look_error for MCP clients; HTTP passes the
	// requested limit through to the store.
	maxLookLimit = 50
)

// Store is the subset of the error database the transports need.
type Store interface {
	Commit(ctx context.Context, d model.Draft) (model.Record, error)
	Look(ctx context.Context, query string, limit int) ([]model.Match, error)
	List(ctx context.Context) ([]model.Record, error)
	Delete(ctx context.Context, id string) (bool, error)
	Status(ctx context.Context) (model.Status, error)
}

// TeamInfo is reported alongside the backend status.
type TeamInfo struct {
	Mode string `json:"mode"`
	Name string `json:"name,omitempty"`
}

// Deps holds what the HTTP and MCP surfaces share.
type Deps struct {
	Store Store
	// Author is stamped on commits that do not name one.
	Author string
	Team   TeamInfo
}

type CommitRequest struct {
	ErrorText string   `json:"error_text"`
	FixText   string   `json:"fix_text"`
	Tags      []string `json:"tags,omitempty"`
	Author    string   `json:"author,omitempty"`
}

type ListResponse struct {
	Records []model.Record `json:"records"`
	Total   int            `json:"total"`
}

type SearchResponse struct {
	Query   string        `json:"query"`
	Results []model.Match `json:"results"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type StatusResponse struct {
	model.Status
	Team TeamInfo `json:"team"`
}

// NewHandler returns the REST API over deps.Store.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/health", handleHealth)
	r.Get("/status", handleStatus(deps))
	r.Post("/errors", handleCommit(deps))
	r.Get("/errors", handleList(deps))
	r.Get("/errors/search", handleSearch(deps))
	r.Delete("/errors/{id}", handleDelete(deps))

	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "request_id", id)
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Store.Status(r.Context())
		if err != nil {
			storeError(w, "status", err)
			return
		}
		writeJSON(w, http.StatusOK, StatusResponse{Status: st, Team: deps.Team})
	}
}

func handleCommit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CommitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		author := req.Author
		if author == "" {
			author = deps.Author
		}
		rec, err := deps.Store.Commit(r.Context(), model.Draft{
			ErrorText: req.ErrorText,
			FixText:   req.FixText,
			Tags:      req.Tags,
			Author:    author,
		})
		if err != nil {
			storeError(w, "commit", err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func handleList(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 0, 0)

		recs, err := deps.Store.List(r.Context())
		if err != nil {
			storeError(w, "list", err)
			return
		}

		resp := ListResponse{Records: recs, Total: len(recs)}
		if limit > 0 && len(recs) > limit {
			resp.Records = recs[:limit]
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		if !params.Has("q") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query parameter q is required")
			return
		}
		// A blank q is passed through; every backend answers it with no matches.
		q := strings.TrimSpace(params.Get("q"))

		limit := defaultLookLimit
		if raw := params.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be an integer, got %q", raw)
				return
			}
			limit = n
		}

		matches, err := deps.Store.Look(r.Context(), q, limit)
		if err != nil {
			storeError(w, "look", err)
			return
		}
		writeJSON(w, http.StatusOK, SearchResponse{Query: q, Results: matches})
	}
}

func handleDelete(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ok, err := deps.Store.Delete(r.Context(), id)
		if err != nil {
			storeError(w, "delete", err)
			return
		}
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "error %s not found", id)
			return
		}
		writeJSON(w, http.StatusOK, DeleteResponse{ID: id, Deleted: true})
	}
}

// storeError maps the store's error taxonomy onto HTTP status codes.
func storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, model.ErrBackend) && model.IsTransient(err):
		httpError(w, http.StatusServiceUnavailable, "backend_unavailable", "%s failed: %v", op, err)
	case errors.Is(err, model.ErrBackend):
		httpError(w, http.StatusBadGateway, "backend_error", "%s failed: %v", op, err)
	default:
		slog.Error("store operation failed", "op", op, "error", err)
		httpError(w, http.StatusInternalServerError, "storage_error", "%s failed: %v", op, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
