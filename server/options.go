package server

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yhtsnda/cometd"
)

const (
	// DefaultTimeout is how long a /meta/connect is held when nothing is
	// delivered to its session
	DefaultTimeout = 30 * time.Second
	// DefaultInterval is the interval advised to clients between connects
	DefaultInterval = 0
	// DefaultMaxInterval is how long a session survives without a connect
	// once the advised interval has elapsed
	DefaultMaxInterval = 10 * time.Second
	// DefaultMaxSessionsPerBrowser is how many connects a browser may hold
	// suspended at the same time
	DefaultMaxSessionsPerBrowser = 1
	// DefaultMultiSessionInterval is the interval advised to clients above
	// the per browser limit
	DefaultMultiSessionInterval = 2 * time.Second
	// DefaultBrowserCookie names the cookie carrying the browser id
	DefaultBrowserCookie = "BAYEUX_BROWSER"
)

// Options configures the Bayeux engine and its long-polling transport
type Options struct {
	Logger                cometd.Logger
	Codec                 cometd.Codec
	Scheduler             cometd.Scheduler
	Timeout               time.Duration
	Interval              time.Duration
	MaxInterval           time.Duration
	MaxSessionsPerBrowser int
	MultiSessionInterval  time.Duration
	BrowserCookie         string
}

// Option mutates Options
type Option func(*Options)

func newOptions(opts []Option) *Options {
	options := &Options{
		Codec:                 cometd.JSONCodec{},
		Scheduler:             cometd.TimeScheduler{},
		Timeout:               DefaultTimeout,
		Interval:              DefaultInterval,
		MaxInterval:           DefaultMaxInterval,
		MaxSessionsPerBrowser: DefaultMaxSessionsPerBrowser,
		MultiSessionInterval:  DefaultMultiSessionInterval,
		BrowserCookie:         DefaultBrowserCookie,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Logger == nil {
		options.Logger = cometd.NewNullLogger()
	}
	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}
	return options
}

// WithLogger logs through a logrus.FieldLogger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(options *Options) {
		options.Logger = cometd.NewLogrusLogger(logger)
	}
}

// WithCometdLogger logs through any cometd.Logger
func WithCometdLogger(logger cometd.Logger) Option {
	return func(options *Options) {
		options.Logger = logger
	}
}

// WithCodec replaces the wire codec
func WithCodec(codec cometd.Codec) Option {
	return func(options *Options) {
		options.Codec = codec
	}
}

// WithScheduler replaces the scheduler backing long-poll timeouts and
// session expiry
func WithScheduler(scheduler cometd.Scheduler) Option {
	return func(options *Options) {
		options.Scheduler = scheduler
	}
}

// WithTimeout sets how long a /meta/connect is held
func WithTimeout(timeout time.Duration) Option {
	return func(options *Options) {
		options.Timeout = timeout
	}
}

// WithInterval sets the interval advised between connects
func WithInterval(interval time.Duration) Option {
	return func(options *Options) {
		options.Interval = interval
	}
}

// WithMaxInterval sets how long a session survives past the advised
// interval without a connect
func WithMaxInterval(maxInterval time.Duration) Option {
	return func(options *Options) {
		options.MaxInterval = maxInterval
	}
}

// WithMaxSessionsPerBrowser limits the connects one browser may hold
// suspended. Zero or less disables the limit.
func WithMaxSessionsPerBrowser(max int) Option {
	return func(options *Options) {
		options.MaxSessionsPerBrowser = max
	}
}

// WithMultiSessionInterval sets the interval advised above the per browser
// limit
func WithMultiSessionInterval(interval time.Duration) Option {
	return func(options *Options) {
		options.MultiSessionInterval = interval
	}
}

// WithBrowserCookie sets the name of the browser id cookie
func WithBrowserCookie(name string) Option {
	return func(options *Options) {
		options.BrowserCookie = name
	}
}
