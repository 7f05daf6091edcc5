package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ajz007/ai-voice-planner/internal/metrics"
)

// Client talks to the voiceplanner server's ticket endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
}

// Option configures a Client or Upstream.
type Option func(*options)

type options struct {
	http    *http.Client
	metrics *metrics.Metrics
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.http = hc }
}

// WithMetrics records request counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	o := buildOptions(opts)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    o.http,
		metrics: o.metrics,
	}
}

// CreateTicket creates a ticket via POST /api/jira/ticket.
func (c *Client) CreateTicket(ctx context.Context, in TicketInput) (TicketRef, error) {
	return c.exchange(ctx, call{
		op:     "create ticket",
		method: http.MethodPost,
		url:    c.baseURL + "/api/jira/ticket",
		body:   in,
	}, "create_ticket")
}

// UpdateTicket updates a ticket via PATCH /api/jira/ticket/{id}.
func (c *Client) UpdateTicket(ctx context.Context, ticketID string, changes TicketChanges) (TicketRef, error) {
	if ticketID == "" {
		return TicketRef{}, fmt.Errorf("update ticket: empty ticket id")
	}
	return c.exchange(ctx, call{
		op:     "update ticket",
		method: http.MethodPatch,
		url:    c.baseURL + "/api/jira/ticket/" + url.PathEscape(ticketID),
		body:   changes,
	}, "update_ticket")
}

func (c *Client) exchange(ctx context.Context, cl call, metricOp string) (TicketRef, error) {
	status, body, elapsed, err := do(ctx, c.http, cl)
	c.metrics.RecordRemoteRequest("jira", metricOp, status, elapsed)
	if err != nil {
		return TicketRef{}, err
	}

	var ref TicketRef
	if err := json.Unmarshal(body, &ref); err != nil {
		return TicketRef{}, fmt.Errorf("%s: decode response: %w", cl.op, err)
	}
	return ref, nil
}
