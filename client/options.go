package client

import (
	"log"
	"time"
)

// Config holds the client timing and logging configuration.
type Config struct {
	// P2 bounds the wait for an ordinary response.
	P2 time.Duration

	// P2Star bounds the wait after the ECU answered response-pending (0x78).
	P2Star time.Duration

	// KeepAliveInterval is the default tester-present period. It must stay
	// well under the ECU's S3 session timeout (typically 5s).
	KeepAliveInterval time.Duration

	// Logger receives diagnostic traces. nil keeps the client silent.
	Logger *log.Logger
}

func defaultConfig() Config {
	return Config{
		P2:                500 * time.Millisecond,
		P2Star:            5 * time.Second,
		KeepAliveInterval: 2 * time.Second,
	}
}

// Option is a functional option for configuring the Client.
type Option func(*Config)

// WithTimings sets the P2 and P2* response budgets.
func WithTimings(p2, p2Star time.Duration) Option {
	return func(c *Config) {
		if p2 > 0 {
			c.P2 = p2
		}
		if p2Star > 0 {
			c.P2Star = p2Star
		}
	}
}

// WithKeepAliveInterval sets the default tester-present period.
func WithKeepAliveInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval > 0 {
			c.KeepAliveInterval = interval
		}
	}
}

// WithLogger directs client traces to the given logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
