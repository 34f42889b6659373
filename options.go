package cometd

import (
	"log/slog"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Options configures a ClientSession
type Options struct {
	Logger              Logger
	HTTPClient          *http.Client
	HTTPTransport       http.RoundTripper
	Scheduler           Scheduler
	Transports          []ClientTransport
	UnsuccessfulHandler UnsuccessfulHandler
	Version             string
}

// Option mutates Options
type Option func(*Options)

// WithLogger logs through a logrus.FieldLogger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(options *Options) {
		options.Logger = NewLogrusLogger(logger)
	}
}

// WithSlogLogger logs through a *slog.Logger
func WithSlogLogger(logger *slog.Logger) Option {
	return func(options *Options) {
		options.Logger = NewSlogLogger(logger)
	}
}

// WithHTTPClient sets the http.Client used by the default long-polling
// transport
func WithHTTPClient(client *http.Client) Option {
	return func(options *Options) {
		options.HTTPClient = client
	}
}

// WithHTTPTransport sets the http.RoundTripper used by the default
// long-polling transport
func WithHTTPTransport(transport http.RoundTripper) Option {
	return func(options *Options) {
		options.HTTPTransport = transport
	}
}

// WithScheduler replaces the scheduler used for delayed reconnects
func WithScheduler(scheduler Scheduler) Option {
	return func(options *Options) {
		options.Scheduler = scheduler
	}
}

// WithTransports sets the client transports in preference order, replacing
// the default long-polling transport
func WithTransports(transports ...ClientTransport) Option {
	return func(options *Options) {
		options.Transports = transports
	}
}

// WithUnsuccessfulHandler replaces the policy applied to replies carrying
// successful=false
func WithUnsuccessfulHandler(handler UnsuccessfulHandler) Option {
	return func(options *Options) {
		options.UnsuccessfulHandler = handler
	}
}

// WithVersion sets the Bayeux protocol version sent on handshake
func WithVersion(version string) Option {
	return func(options *Options) {
		options.Version = version
	}
}
