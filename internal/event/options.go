package event

import (
	"time"

	"github.com/dshills/strand/internal/logging"
)

// BusOption configures a Bus.
type BusOption func(*busConfig)

type busConfig struct {
	queueSize      int
	handlerTimeout time.Duration
	panicHandler   PanicHandler
	logger         *logging.Logger
}

func defaultBusConfig() busConfig {
	return busConfig{
		queueSize:      1024,
		handlerTimeout: 5 * time.Second,
		logger:         logging.Null,
	}
}

// WithQueueSize sets the mailbox size of each async subscription.
func WithQueueSize(size int) BusOption {
	return func(c *busConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithHandlerTimeout bounds the context passed to async handlers. Zero
// disables the bound.
func WithHandlerTimeout(d time.Duration) BusOption {
	return func(c *busConfig) {
		c.handlerTimeout = d
	}
}

// WithPanicHandler is called after a handler panic has been recovered.
func WithPanicHandler(h PanicHandler) BusOption {
	return func(c *busConfig) {
		c.panicHandler = h
	}
}

// WithLogger sets the bus logger.
func WithLogger(l *logging.Logger) BusOption {
	return func(c *busConfig) {
		c.logger = logging.OrNull(l)
	}
}
