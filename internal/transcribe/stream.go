package transcribe

import "sync"

// updateBuffer bounds how far the producer may run ahead of the consumer.
const updateBuffer = 64

// stream is the single-producer side of an update channel. The producer
// goroutine must call finish when it returns.
type stream struct {
	out       chan Update
	done      chan struct{}
	exited    chan struct{}
	haltOnce  sync.Once
	committed string
}

func newStream() *stream {
	return &stream{
		out:    make(chan Update, updateBuffer),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// interim emits an in-progress guess. It reports false once halted.
func (s *stream) interim(text string) bool {
	return s.send(Update{Text: text})
}

// final commits span and emits the accumulated committed text.
func (s *stream) final(span string) bool {
	s.committed = Join(s.committed, span)
	return s.send(Update{Text: s.committed, Final: true})
}

func (s *stream) send(u Update) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- u:
		return true
	case <-s.done:
		return false
	}
}

func (s *stream) halted() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *stream) halt() {
	s.haltOnce.Do(func() { close(s.done) })
}

func (s *stream) finish() {
	close(s.out)
	close(s.exited)
}
