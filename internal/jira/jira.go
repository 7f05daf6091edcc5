// Package jira creates and updates issue-tracker tickets, either through the
// voiceplanner server or directly against the JIRA REST API.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TicketInput is the content of a new ticket.
type TicketInput struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
	// Estimate is a JIRA duration such as "2h" or "30m".
	Estimate string `json:"estimate,omitempty"`
}

// TicketChanges is a partial ticket update. Nil fields are left untouched.
type TicketChanges struct {
	Summary     *string `json:"summary,omitempty"`
	Description *string `json:"description,omitempty"`
	Estimate    *string `json:"estimate,omitempty"`
}

// TicketRef identifies a ticket on the tracker.
type TicketRef struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self,omitempty"`
}

// Ref returns the key, falling back to the numeric id.
func (r TicketRef) Ref() string {
	if r.Key != "" {
		return r.Key
	}
	return r.ID
}

// RemoteError is returned when the remote service answers with a non-2xx status.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: remote returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: remote returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4096

// call is one JSON request/response exchange. It never retries.
type call struct {
	op      string
	method  string
	url     string
	body    any
	prepare func(*http.Request)
}

func do(ctx context.Context, hc *http.Client, c call) (status int, body []byte, elapsed time.Duration, err error) {
	var reqBody io.Reader
	if c.body != nil {
		data, err := json.Marshal(c.body)
		if err != nil {
			return 0, nil, 0, fmt.Errorf("%s: marshal request: %w", c.op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, c.url, reqBody)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("%s: create request: %w", c.op, err)
	}
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.prepare != nil {
		c.prepare(req)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	elapsed = time.Since(start)
	if err != nil {
		return 0, nil, elapsed, fmt.Errorf("%s: %w", c.op, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, elapsed, fmt.Errorf("%s: read response: %w", c.op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return resp.StatusCode, nil, elapsed, &RemoteError{Op: c.op, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	return resp.StatusCode, body, elapsed, nil
}
