package jira

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ajz007/ai-voice-planner/internal/metrics"
)

// ErrNotConfigured is returned when the JIRA site or credentials are missing.
var ErrNotConfigured = errors.New("JIRA configuration missing")

// Defaults for new issues.
const (
	DefaultProject   = "PROJ"
	DefaultIssueType = "Task"
)

// Config locates a JIRA Cloud site.
type Config struct {
	URL       string `mapstructure:"url" yaml:"url"`
	Email     string `mapstructure:"email" yaml:"email"`
	Token     string `mapstructure:"token" yaml:"token,omitempty"`
	Project   string `mapstructure:"project" yaml:"project"`
	IssueType string `mapstructure:"issue_type" yaml:"issue_type"`
}

// Configured reports whether the site and credentials are all set.
func (c Config) Configured() bool {
	return c.URL != "" && c.Email != "" && c.Token != ""
}

// Upstream talks to the JIRA REST API v3 with basic auth.
type Upstream struct {
	cfg     Config
	http    *http.Client
	metrics *metrics.Metrics
}

// NewUpstream returns a JIRA API client. It fails when cfg is incomplete.
func NewUpstream(cfg Config, opts ...Option) (*Upstream, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	if cfg.Project == "" {
		cfg.Project = DefaultProject
	}
	if cfg.IssueType == "" {
		cfg.IssueType = DefaultIssueType
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	o := buildOptions(opts)
	return &Upstream{cfg: cfg, http: o.http, metrics: o.metrics}, nil
}

// CreateIssue creates an issue and returns the raw JIRA response.
func (u *Upstream) CreateIssue(ctx context.Context, in TicketInput) (json.RawMessage, error) {
	fields := map[string]any{
		"project":     map[string]string{"key": u.cfg.Project},
		"summary":     in.Summary,
		"description": document(in.Description),
		"issuetype":   map[string]string{"name": u.cfg.IssueType},
	}
	if in.Estimate != "" {
		fields["timetracking"] = map[string]string{"originalEstimate": in.Estimate}
	}

	body, err := u.exchange(ctx, call{
		op:     "create JIRA issue",
		method: http.MethodPost,
		url:    u.cfg.URL + "/rest/api/3/issue",
		body:   map[string]any{"fields": fields},
	}, "create_issue")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// UpdateIssue edits an issue and returns the updated issue as JIRA reports it.
func (u *Upstream) UpdateIssue(ctx context.Context, issueID string, changes TicketChanges) (json.RawMessage, error) {
	fields := map[string]any{}
	if changes.Summary != nil {
		fields["summary"] = *changes.Summary
	}
	if changes.Description != nil {
		fields["description"] = document(*changes.Description)
	}
	if changes.Estimate != nil {
		fields["timetracking"] = map[string]string{"originalEstimate": *changes.Estimate}
	}

	issueURL := u.cfg.URL + "/rest/api/3/issue/" + url.PathEscape(issueID)
	if len(fields) > 0 {
		// PUT answers 204 with no body.
		if _, err := u.exchange(ctx, call{
			op:     "update JIRA issue",
			method: http.MethodPut,
			url:    issueURL,
			body:   map[string]any{"fields": fields},
		}, "update_issue"); err != nil {
			return nil, err
		}
	}

	body, err := u.exchange(ctx, call{
		op:     "get JIRA issue",
		method: http.MethodGet,
		url:    issueURL,
	}, "get_issue")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (u *Upstream) exchange(ctx context.Context, c call, metricOp string) ([]byte, error) {
	c.prepare = func(req *http.Request) {
		req.SetBasicAuth(u.cfg.Email, u.cfg.Token)
	}
	status, body, elapsed, err := do(ctx, u.http, c)
	u.metrics.RecordRemoteRequest("jira_upstream", metricOp, status, elapsed)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// document converts plain text to an Atlassian document, one paragraph per
// blank-line separated block.
func document(text string) map[string]any {
	var content []any
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		content = append(content, map[string]any{
			"type":    "paragraph",
			"content": []any{map[string]any{"type": "text", "text": para}},
		})
	}
	if content == nil {
		content = []any{}
	}
	return map[string]any{"type": "doc", "version": 1, "content": content}
}

// FormatEstimate formats an estimate in hours as a JIRA duration, "2h" or
// "1.5h". Non-positive estimates format as "".
func FormatEstimate(hours float64) string {
	if hours <= 0 {
		return ""
	}
	return strconv.FormatFloat(hours, 'f', -1, 64) + "h"
}
