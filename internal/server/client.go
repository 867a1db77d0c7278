package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"git.home.luguber.info/inful/dayroll/internal/daemon"
	derrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/schedule"
	"git.home.luguber.info/inful/dayroll/internal/state"
)

// Client calls a running daemon's admin API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for baseURL ("http://127.0.0.1:8089").
// A bare host:port is accepted.
func NewClient(baseURL string, hc *http.Client) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

// Diagnostics fetches the diagnostic snapshot.
func (c *Client) Diagnostics(ctx context.Context) (daemon.DiagnosticState, error) {
	var ds daemon.DiagnosticState
	err := c.do(ctx, http.MethodGet, "/api/diagnostics", nil, &ds)
	return ds, err
}

// Trigger asks the daemon to reconcile for a cause or raw signal name.
func (c *Client) Trigger(ctx context.Context, raw string) (TriggerResponse, error) {
	var out TriggerResponse
	err := c.do(ctx, http.MethodPost, "/api/trigger", TriggerRequest{Cause: raw}, &out)
	return out, err
}

// Refresh requests an immediate boundary-equivalent reconciliation.
func (c *Client) Refresh(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/refresh", nil, nil)
}

// ArmSchedule re-arms the wake-ups and the periodic job.
func (c *Client) ArmSchedule(ctx context.Context) (daemon.DiagnosticState, error) {
	var ds daemon.DiagnosticState
	err := c.do(ctx, http.MethodPost, "/api/schedule", nil, &ds)
	return ds, err
}

// DebugWake arms a one-shot debug wake-up.
func (c *Client) DebugWake(ctx context.Context, seconds int) (schedule.WakeRequest, error) {
	var wr schedule.WakeRequest
	err := c.do(ctx, http.MethodPost, "/api/debug/wake", DebugWakeRequest{Seconds: seconds}, &wr)
	return wr, err
}

// Clear removes the diagnostic records, and the daily state when all is set.
func (c *Client) Clear(ctx context.Context, all bool) error {
	path := "/api/diagnostics"
	if all {
		path += "?" + url.Values{"all": {"true"}}.Encode()
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// SetProgress writes an authoritative value for today.
func (c *Client) SetProgress(ctx context.Context, percent int, hasGoal bool) (state.DailyState, error) {
	var st state.DailyState
	err := c.do(ctx, http.MethodPut, "/api/progress", ProgressRequest{Percent: percent, HasGoal: hasGoal}, &st)
	return st, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return derrors.WrapError(err, derrors.CategoryInternal, "failed to encode request").Build()
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryInternal, "failed to build request").Build()
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryTransport, "admin API unreachable").
			WithContext("url", c.base).
			Retryable().
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryTransport, "failed to read admin API response").Build()
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return derrors.WrapError(err, derrors.CategoryTransport, "malformed admin API response").Build()
	}
	return nil
}

// decodeError turns an error payload back into a classified error.
func decodeError(status int, data []byte) error {
	var payload derrors.HTTPErrorResponse
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		return derrors.NewError(derrors.CategoryTransport, fmt.Sprintf("admin API returned %d", status)).
			WithContext("status", status).
			Build()
	}
	category := derrors.ErrorCategory(payload.Code)
	if category == "" {
		category = derrors.CategoryTransport
	}
	b := derrors.NewError(category, payload.Error).WithContext("status", status)
	for k, v := range payload.Details {
		b = b.WithContext(k, v)
	}
	return b.Build()
}
