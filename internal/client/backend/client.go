// Package backend is the HTTP JSON client for the hosted note storage. It
// owns the wire contract: batched sync, full fetch, conflict resolution, and
// tombstone cleanup.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/g1mliii/anchored/internal/common"
	"github.com/g1mliii/anchored/internal/logging"
	"github.com/g1mliii/anchored/internal/models"
)

const (
	requestTimeout = 15 * time.Second

	// Readiness probing is bounded: after readyAttempts failures the client
	// fails closed into offline mode instead of polling forever.
	readyAttempts = 5
	readyBackoff  = 500 * time.Millisecond
)

// SessionSource supplies the bearer token for authenticated calls.
type SessionSource interface {
	Session(ctx context.Context) (*models.Session, error)
}

// Client talks to the Anchored backend over HTTP JSON.
type Client struct {
	baseURL string
	http    *http.Client
	session SessionSource
	log     logging.Logger
}

func New(baseURL string, session SessionSource, log logging.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		session: session,
		log:     log,
	}
}

// errorEnvelope is the backend's JSON error shape.
type errorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Sync delivers a batched mutation payload. Safe to retry: the backend is
// idempotent per (id, updatedAt).
func (c *Client) Sync(ctx context.Context, req *models.SyncRequest) (*models.SyncResponse, error) {
	req.Operation = models.OperationSync
	var resp models.SyncResponse
	if err := c.do(ctx, http.MethodPost, "/api/sync", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchNotes returns all non-deleted encrypted notes for the signed-in user.
func (c *Client) FetchNotes(ctx context.Context) ([]*models.EncryptedNote, error) {
	var notes []*models.EncryptedNote
	if err := c.do(ctx, http.MethodGet, "/api/notes", nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// FetchNote returns a single encrypted note by id.
func (c *Client) FetchNote(ctx context.Context, id string) (*models.EncryptedNote, error) {
	var note models.EncryptedNote
	if err := c.do(ctx, http.MethodGet, "/api/notes/"+id, nil, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// ResolveConflict asks the backend to reconcile two divergent versions.
func (c *Client) ResolveConflict(ctx context.Context, req *models.ResolveRequest) (*models.ResolveResponse, error) {
	var resp models.ResolveResponse
	if err := c.do(ctx, http.MethodPost, "/api/conflict", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cleanup removes tombstones older than the server's retention window.
// Idempotent; returns the number of rows purged.
func (c *Client) Cleanup(ctx context.Context) (int64, error) {
	var resp models.CleanupResponse
	if err := c.do(ctx, http.MethodPost, "/api/cleanup", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Cleaned, nil
}

// Health probes the unauthenticated readiness endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", common.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// WaitReady probes the backend with capped exponential backoff. It fails
// closed: callers that see an error proceed in offline mode rather than
// blocking startup.
func (c *Client) WaitReady(ctx context.Context) error {
	backoff := retry.WithMaxRetries(readyAttempts, retry.NewExponential(readyBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.Health(ctx); err != nil {
			c.log.Debug(ctx, "backend not ready", "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: readiness probe exhausted", common.ErrUnavailable)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	s, err := c.session.Session(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.mapError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) mapError(resp *http.Response) error {
	var envelope errorEnvelope
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &envelope)

	var sentinel error
	switch envelope.Code {
	case "not_found":
		sentinel = common.ErrNotFound
	case "unauthorized":
		sentinel = common.ErrUnauthorized
	case "invalid_resolution":
		sentinel = common.ErrInvalidResolution
	case "validation":
		sentinel = common.ErrValidation
	default:
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			sentinel = common.ErrUnauthorized
		case http.StatusNotFound:
			sentinel = common.ErrNotFound
		case http.StatusServiceUnavailable, http.StatusBadGateway:
			sentinel = common.ErrUnavailable
		default:
			sentinel = common.ErrInternal
		}
	}

	msg := envelope.Error
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
