package cometdtest

import "github.com/yhtsnda/cometd"

// ServerOpts configures a Server
type ServerOpts interface {
	apply(s *Server)
}

type serverOptFn func(s *Server)

func (opt serverOptFn) apply(s *Server) {
	opt(s)
}

// WithHandshakeError makes every handshake answer 400 Bad Request
func WithHandshakeError(handshakeError bool) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.handshakeError = handshakeError
	})
}

// WithConnectionTypes sets the connection types offered on handshake
func WithConnectionTypes(types ...string) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.connectionTypes = types
	})
}

// WithAdvice sets the advice attached to handshake and connect replies
func WithAdvice(advice cometd.Advice) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.advice = &advice
	})
}
