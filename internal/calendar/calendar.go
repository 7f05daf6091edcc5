// Package calendar authorizes against Google with OAuth2 and schedules tasks
// as events on the user's primary calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ajz007/ai-voice-planner/internal/metrics"
)

var (
	// ErrNotAuthenticated is returned by CreateEvent before a successful Authorize.
	ErrNotAuthenticated = errors.New("not authenticated with Google Calendar")
	// ErrAuthCancelled is returned when the consent window closes without an answer.
	ErrAuthCancelled = errors.New("authentication cancelled")
	// ErrNotConfigured is returned when the OAuth client credentials are missing.
	ErrNotConfigured = errors.New("Google Calendar credentials not configured")
)

// AuthError is returned when the provider rejects the consent or the code
// exchange fails.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "google auth: " + e.Reason
	}
	return fmt.Sprintf("google auth: %s: %v", e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// CalendarID is the calendar events are inserted into.
const CalendarID = "primary"

// defaultDuration is the length of an event with no end and no estimate.
const defaultDuration = time.Hour

// Config holds the OAuth client registration.
type Config struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret,omitempty"`
	RedirectURL  string `mapstructure:"redirect_url" yaml:"redirect_url"`
	// TimeZone is the IANA zone written on events. Empty means UTC.
	TimeZone string `mapstructure:"time_zone" yaml:"time_zone"`
}

// Service holds the OAuth credential for the process and creates events.
type Service struct {
	oauth      *oauth2.Config
	zone       string
	loc        *time.Location
	apiOptions []option.ClientOption
	tokens     TokenStore
	poll       time.Duration
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu    sync.Mutex
	token *oauth2.Token
}

// TokenStore persists the credential between runs.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(*oauth2.Token) error
}

// Option configures a Service.
type Option func(*Service)

// WithTokenStore loads the saved credential and saves new ones to ts.
func WithTokenStore(ts TokenStore) Option {
	return func(s *Service) { s.tokens = ts }
}

// WithAPIOptions passes options to the Calendar API client.
func WithAPIOptions(opts ...option.ClientOption) Option {
	return func(s *Service) { s.apiOptions = append(s.apiOptions, opts...) }
}

// WithEndpoint overrides the OAuth provider endpoint.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(s *Service) { s.oauth.Endpoint = ep }
}

// WithPollInterval sets how often Authorize checks whether the host closed.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) { s.poll = d }
}

// WithClock overrides the clock used for default event start times.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics records API calls on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService returns a calendar service for the OAuth client in cfg.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	zone := cfg.TimeZone
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}

	s := &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gcal.CalendarScope},
			Endpoint:     google.Endpoint,
		},
		zone:   zone,
		loc:    loc,
		poll:   time.Second,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tokens != nil {
		tok, err := s.tokens.Load()
		switch {
		case err == nil:
			s.token = tok
		case errors.Is(err, ErrNotAuthenticated):
		default:
			s.logger.Warn("load saved calendar credential", slog.String("error", err.Error()))
		}
	}
	return s, nil
}

// Authenticated reports whether a credential is held.
func (s *Service) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != nil
}

// SetToken installs a credential obtained elsewhere.
func (s *Service) SetToken(tok *oauth2.Token) {
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
}

// AuthCodeURL returns the consent URL for state.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Authorize shows the consent page on host and waits for its answer.
// It returns ErrAuthCancelled when the host closes first.
func (s *Service) Authorize(ctx context.Context, host ConsentHost) (*oauth2.Token, error) {
	conf := *s.oauth
	if r, ok := host.(interface{ RedirectURL() string }); ok {
		conf.RedirectURL = r.RedirectURL()
	}

	state := uuid.NewString()
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	defer host.Close()
	if err := host.Open(ctx, authURL); err != nil {
		return nil, &AuthError{Reason: "open consent page", Err: err}
	}

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	messages := host.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-ticker.C:
			if host.Closed() {
				return nil, ErrAuthCancelled
			}

		case msg, ok := <-messages:
			if !ok {
				return nil, ErrAuthCancelled
			}
			if msg.State != "" && msg.State != state {
				s.logger.Warn("ignoring consent reply with foreign state")
				continue
			}

			switch msg.Type {
			case MessageSuccess:
				start := time.Now()
				tok, err := conf.Exchange(ctx, msg.Code)
				s.metrics.RecordRemoteRequest("google_oauth", "exchange", statusOf(err), time.Since(start))
				if err != nil {
					return nil, &AuthError{Reason: "exchange code", Err: err}
				}
				s.SetToken(tok)
				if s.tokens != nil {
					if err := s.tokens.Save(tok); err != nil {
						s.logger.Warn("save calendar credential", slog.String("error", err.Error()))
					}
				}
				s.logger.Info("authenticated with Google Calendar")
				return tok, nil

			case MessageError:
				reason := msg.Error
				if reason == "" {
					reason = "authentication failed"
				}
				return nil, &AuthError{Reason: reason}
			}
		}
	}
}

// EventInput is the task data an event is built from.
type EventInput struct {
	Title          string
	Description    string
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	EstimatedHours *float64
}

// EventRef identifies a created event.
type EventRef struct {
	ID       string `json:"eventId"`
	HTMLLink string `json:"htmlLink"`
}

// EventTimes returns the event span for in. The start defaults to now; the
// end is the explicit end, else start plus the estimate, else one hour.
func EventTimes(in EventInput, now time.Time) (start, end time.Time) {
	start = now
	if in.ScheduledStart != nil {
		start = *in.ScheduledStart
	}
	switch {
	case in.ScheduledEnd != nil:
		end = *in.ScheduledEnd
	case in.EstimatedHours != nil && *in.EstimatedHours > 0:
		end = start.Add(time.Duration(*in.EstimatedHours * float64(time.Hour)))
	default:
		end = start.Add(defaultDuration)
	}
	return start, end
}

// CreateEvent inserts in into the primary calendar.
func (s *Service) CreateEvent(ctx context.Context, in EventInput) (EventRef, error) {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()
	if tok == nil {
		return EventRef{}, ErrNotAuthenticated
	}

	fresh, err := s.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return EventRef{}, &AuthError{Reason: "refresh credential", Err: err}
	}
	if fresh.AccessToken != tok.AccessToken {
		s.SetToken(fresh)
		if s.tokens != nil {
			if err := s.tokens.Save(fresh); err != nil {
				s.logger.Warn("save refreshed credential", slog.String("error", err.Error()))
			}
		}
	}

	opts := append([]option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(fresh))),
	}, s.apiOptions...)
	api, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return EventRef{}, fmt.Errorf("create calendar client: %w", err)
	}

	start, end := EventTimes(in, s.now())
	event := &gcal.Event{
		Summary:     in.Title,
		Description: in.Description,
		Start:       &gcal.EventDateTime{DateTime: start.In(s.loc).Format(time.RFC3339), TimeZone: s.zone},
		End:         &gcal.EventDateTime{DateTime: end.In(s.loc).Format(time.RFC3339), TimeZone: s.zone},
		Reminders:   &gcal.EventReminders{UseDefault: true, ForceSendFields: []string{"UseDefault"}},
	}

	began := time.Now()
	created, err := api.Events.Insert(CalendarID, event).Context(ctx).Do()
	s.metrics.RecordRemoteRequest("calendar", "insert_event", statusOf(err), time.Since(began))
	if err != nil {
		return EventRef{}, fmt.Errorf("create calendar event: %w", err)
	}
	if created.Id == "" {
		return EventRef{}, errors.New("create calendar event: no event id returned")
	}

	s.logger.Info("calendar event created", slog.String("id", created.Id))
	return EventRef{ID: created.Id, HTMLLink: created.HtmlLink}, nil
}

// statusOf maps a call result to a status code for metrics.
func statusOf(err error) int {
	if err == nil {
		return 200
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return 0
}
