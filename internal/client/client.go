// Package client is a Go client for the allot HTTP API. Error responses are
// mapped back onto the alloc sentinel errors so callers can use errors.Is.
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

	"allot.org/internal/alloc"
)

// Client talks to one allot API endpoint with one bearer token. The token
// determines the tenant.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response. It unwraps to the matching alloc sentinel
// when the code is known.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	Details   []alloc.Violation
	RetryIn   time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("allot api: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Code == alloc.CodeValidation {
		return &alloc.ValidationError{Violations: e.Details}
	}
	return sentinelFor(e.Code)
}

func sentinelFor(code string) error {
	switch code {
	case alloc.CodeNotFound:
		return alloc.ErrNotFound
	case alloc.CodeCapacityExceeded:
		return alloc.ErrCapacityExceeded
	case alloc.CodeDuplicateActive:
		return alloc.ErrDuplicateActiveAssignment
	case alloc.CodeUnitUnavailable:
		return alloc.ErrUnitUnavailable
	case alloc.CodeConflict:
		return alloc.ErrConflict
	case alloc.CodeInUse:
		return alloc.ErrInUse
	case alloc.CodeInvalidTransition:
		return alloc.ErrInvalidTransition
	default:
		return nil
	}
}

func (c *Client) CreateFacility(ctx context.Context, in alloc.NewFacility) (alloc.Facility, error) {
	var out alloc.Facility
	err := c.do(ctx, http.MethodPost, "/v1/facilities", in, &out)
	return out, err
}

func (c *Client) DeleteFacility(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/facilities/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateUnit(ctx context.Context, in alloc.NewUnit) (alloc.Unit, error) {
	var out alloc.Unit
	err := c.do(ctx, http.MethodPost, "/v1/resources/units", in, &out)
	return out, err
}

func (c *Client) GetUnit(ctx context.Context, id string) (alloc.Unit, error) {
	var out alloc.Unit
	err := c.do(ctx, http.MethodGet, "/v1/resources/units/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) DeleteUnit(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/resources/units/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Admit(ctx context.Context, in alloc.Admission) (alloc.Assignment, error) {
	var out alloc.Assignment
	err := c.do(ctx, http.MethodPost, "/v1/assignments", in, &out)
	return out, err
}

func (c *Client) Transition(ctx context.Context, id string, in alloc.Transition) (alloc.Assignment, error) {
	var out alloc.Assignment
	err := c.do(ctx, http.MethodPatch, "/v1/assignments/"+url.PathEscape(id), in, &out)
	return out, err
}

func (c *Client) GetAssignment(ctx context.Context, id string) (alloc.Assignment, error) {
	var out alloc.Assignment
	err := c.do(ctx, http.MethodGet, "/v1/assignments/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListAssignments returns one page. Empty statuses select ACTIVE only.
func (c *Client) ListAssignments(ctx context.Context, f alloc.AssignmentFilter) ([]alloc.Assignment, error) {
	q := url.Values{}
	setIf(q, "unitId", f.UnitID)
	setIf(q, "facilityId", f.FacilityID)
	setIf(q, "occupantId", f.OccupantID)
	for _, st := range f.Statuses {
		q.Add("status", string(st))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	path := "/v1/assignments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Items []alloc.Assignment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Items, err
}

func (c *Client) ScheduleMaintenance(ctx context.Context, in alloc.NewMaintenance) (alloc.MaintenanceRecord, error) {
	var out alloc.MaintenanceRecord
	err := c.do(ctx, http.MethodPost, "/v1/maintenance", in, &out)
	return out, err
}

func (c *Client) UpdateMaintenance(ctx context.Context, id string, in alloc.MaintenanceUpdate) (alloc.MaintenanceRecord, error) {
	var out alloc.MaintenanceRecord
	err := c.do(ctx, http.MethodPatch, "/v1/maintenance/"+url.PathEscape(id), in, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Error     string            `json:"error"`
		Code      string            `json:"code"`
		Details   []alloc.Violation `json:"details"`
		RequestID string            `json:"request_id"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
	} else {
		apiErr.Message = payload.Error
		apiErr.Code = payload.Code
		apiErr.Details = payload.Details
		apiErr.RequestID = payload.RequestID
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryIn = time.Duration(secs) * time.Second
	}
	return apiErr
}

// Retriable reports whether err is a conflict or rate limit worth retrying.
func Retriable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
		return true
	}
	return alloc.Retriable(err)
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
