package collab

import (
	"net/http"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/dshills/strand/internal/logging"
)

type settings struct {
	log         *logging.Logger
	newBackOff  func() backoff.BackOff
	header      http.Header
	checkOrigin func(*http.Request) bool
	queue       int
}

func newSettings(opts []Option) settings {
	s := settings{
		log: logging.Null,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
		queue: 256,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures transports, hubs and peers.
type Option func(*settings)

// WithLogger sets the logger. Defaults to logging.Null.
func WithLogger(l *logging.Logger) Option {
	return func(s *settings) {
		s.log = logging.OrNull(l)
	}
}

// WithBackOff sets the redial policy of a WebSocketTransport. The
// function is called once per outage. Defaults to an exponential policy
// that never gives up.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(s *settings) {
		if fn != nil {
			s.newBackOff = fn
		}
	}
}

// WithHeader sets the HTTP header sent when dialing.
func WithHeader(h http.Header) Option {
	return func(s *settings) {
		s.header = h
	}
}

// WithCheckOrigin sets the origin check of a Hub. Defaults to the
// same-origin check of gorilla/websocket.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(s *settings) {
		s.checkOrigin = fn
	}
}

// WithQueueSize bounds the envelopes buffered per hub member before the
// member is dropped as too slow.
func WithQueueSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.queue = n
		}
	}
}
