// Package server is a small Bayeux server speaking HTTP long-polling.
//
// An Engine owns the sessions and answers the meta channels. A
// LongPollingTransport feeds it the messages of each request and, when a
// /meta/connect finds nothing queued for its session, holds the request
// until a message is delivered, the timeout fires or the client goes away:
//
//	engine := server.NewEngine(server.WithTimeout(20 * time.Second))
//	http.Handle("/cometd", server.NewLongPollingTransport(engine))
//
// Each response is a single JSON array holding the queued messages followed
// by the replies.
package server
