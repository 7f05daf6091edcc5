// Package transcribe turns live speech into a stream of interim and final
// text updates.
package transcribe

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrRecognitionUnavailable is returned when no recognition engine can be used.
	ErrRecognitionUnavailable = errors.New("speech recognition unavailable")
	// ErrAlreadyStarted is returned by Start on a running transcriber.
	ErrAlreadyStarted = errors.New("transcriber already started")
)

// Update is one recognition result.
//
// An interim update carries the best guess for the span currently being
// spoken. A final update carries all text committed so far in the session,
// the newest span appended with a single space.
type Update struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Transcriber is a continuous recognition session. Updates arrive in order
// on the channel returned by Start, which is closed before Stop returns.
type Transcriber interface {
	Start(ctx context.Context) (<-chan Update, error)
	Stop() error
}

// Transcript accumulates updates into the best-effort text of a session.
type Transcript struct {
	final   string
	interim string
}

// Apply folds u into the transcript.
func (t *Transcript) Apply(u Update) {
	if u.Final {
		t.final = u.Text
		t.interim = ""
		return
	}
	t.interim = u.Text
}

// Final returns the committed text.
func (t Transcript) Final() string { return t.final }

// Interim returns the in-progress guess.
func (t Transcript) Interim() string { return t.interim }

// String returns the committed text followed by the in-progress guess.
func (t Transcript) String() string { return Join(t.final, t.interim) }

// Join concatenates two spans with a single space, omitting it when either
// is empty.
func Join(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}
