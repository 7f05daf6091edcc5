package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Message types posted by the OAuth callback page.
const (
	MessageSuccess = "google-oauth-success"
	MessageError   = "google-oauth-error"
)

// CallbackPath is where the provider redirects after consent.
const CallbackPath = "/auth/google/callback"

// CancelPath lets the user abandon a loopback flow from the browser.
const CancelPath = "/auth/google/cancel"

// Message is the answer the consent window sends back to its opener.
type Message struct {
	Type  string `json:"type"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
	State string `json:"state,omitempty"`
}

// MessageFromCallback builds the message for an OAuth redirect's query.
// ok is false when the query carries neither a code nor an error.
func MessageFromCallback(code, state, providerErr string) (msg Message, ok bool) {
	switch {
	case providerErr != "":
		return Message{Type: MessageError, Error: providerErr, State: state}, true
	case code != "":
		return Message{Type: MessageSuccess, Code: code, State: state}, true
	}
	return Message{}, false
}

// ConsentHost shows the consent page and relays the callback's answer.
type ConsentHost interface {
	Open(ctx context.Context, url string) error
	Messages() <-chan Message
	Closed() bool
	Close() error
}

var callbackTmpl = template.Must(template.New("callback").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>voiceplanner</title></head>
<body>
<p>{{.Text}}</p>
<script>
  const msg = {{.Message}};
  if (window.opener) {
    window.opener.postMessage(msg, window.location.origin);
  }
  window.close();
</script>
</body>
</html>
`))

// CallbackPage renders the page served at the OAuth callback. It posts msg
// to the window that opened the consent popup and closes itself.
func CallbackPage(msg Message) []byte {
	text := "Authentication complete. You can close this window."
	if msg.Type == MessageError {
		text = "Authentication failed: " + msg.Error
	}
	var buf bytes.Buffer
	if err := callbackTmpl.Execute(&buf, struct {
		Text    string
		Message Message
	}{text, msg}); err != nil {
		return []byte("<!doctype html><p>" + template.HTMLEscapeString(text) + "</p>")
	}
	return buf.Bytes()
}

// LoopbackHost runs the consent flow for a terminal: it listens on a local
// port for the provider's redirect and opens the consent URL with Opener.
type LoopbackHost struct {
	// Opener shows the consent URL to the user, e.g. by launching a browser.
	Opener func(url string) error
	Logger *slog.Logger

	ln       net.Listener
	srv      *http.Server
	messages chan Message
	closed   atomic.Bool
	once     sync.Once
}

// NewLoopbackHost listens on addr, such as "127.0.0.1:8085". Port 0 picks a
// free port.
func NewLoopbackHost(addr string, opener func(url string) error) (*LoopbackHost, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}
	h := &LoopbackHost{
		Opener:   opener,
		ln:       ln,
		messages: make(chan Message, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, h.handleCallback)
	mux.HandleFunc(CancelPath, h.handleCancel)
	h.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return h, nil
}

// RedirectURL is the callback URL the provider must redirect to.
func (h *LoopbackHost) RedirectURL() string {
	return "http://" + h.ln.Addr().String() + CallbackPath
}

// Open starts serving the callback and shows url.
func (h *LoopbackHost) Open(ctx context.Context, url string) error {
	go func() {
		if err := h.srv.Serve(h.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger().Warn("oauth callback server", slog.String("error", err.Error()))
		}
	}()
	if h.Opener == nil {
		return nil
	}
	return h.Opener(url)
}

func (h *LoopbackHost) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msg, ok := MessageFromCallback(q.Get("code"), q.Get("state"), q.Get("error"))
	if !ok {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	select {
	case h.messages <- msg:
	default:
		// A reply is already pending; later redirects are ignored.
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(CallbackPage(msg))
}

func (h *LoopbackHost) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.closed.Store(true)
	w.Write([]byte("Authentication cancelled. You can close this window.\n"))
}

// Messages delivers callback answers.
func (h *LoopbackHost) Messages() <-chan Message { return h.messages }

// Closed reports whether the flow was cancelled or the host shut down.
func (h *LoopbackHost) Closed() bool { return h.closed.Load() }

// Close stops the callback server.
func (h *LoopbackHost) Close() error {
	var err error
	h.once.Do(func() {
		h.closed.Store(true)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = h.srv.Shutdown(ctx)
		// Shutdown only closes the listener once Serve has run.
		h.ln.Close()
	})
	return err
}

func (h *LoopbackHost) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
