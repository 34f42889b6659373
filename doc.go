// Package cometd is a Bayeux client: a session that handshakes with a
// server, keeps a long-poll connection alive following the server advice and
// dispatches received messages to channel subscribers.
//
// Create a session with the addresses of the server. The first address is
// used until UseServer selects another one.
//
//	session, err := cometd.NewClientSession([]string{"https://localhost:8080/cometd"})
//
// You can also register a custom HTTP transport or logger with your session
//
//	session, err := cometd.NewClientSession(servers,
//		cometd.WithHTTPTransport(transport),
//		cometd.WithLogger(logrus.New()),
//	)
//
// Handshake is asynchronous. Wait for the session to be connected before
// subscribing:
//
//	if err := session.Handshake(); err != nil {
//		return err
//	}
//	if _, err := session.WaitFor(ctx, cometd.Connected); err != nil {
//		return err
//	}
//
// Subscribe to a Bayeux Channel with a listener; NewChanListener forwards
// messages to a chan
//
//	recv := make(chan cometd.Message, 16)
//	err := session.Channel("/example/channel").Subscribe(cometd.NewChanListener(recv))
//
// Sends made inside a batch are held until the outermost batch ends
//
//	err := session.Batch(func() error {
//		if err := session.Publish("/chat/room", msg); err != nil {
//			return err
//		}
//		return session.Channel("/chat/members").Subscribe(listener)
//	})
//
// Extensions implement the MessageExtender interface and see every message
// in both directions. Returning ErrVetoed drops the message.
//
//	type Example struct{}
//	func (e *Example) Registered(session *cometd.ClientSession) {}
//	func (e *Example) Unregistered() {}
//	func (e *Example) Outgoing(m *cometd.Message) error {
//		if m.Channel == cometd.MetaHandshake {
//			m.GetExt(true)["example"] = true
//		}
//		return nil
//	}
//	func (e *Example) Incoming(m *cometd.Message) error { return nil }
//
//	err := session.UseExtension(&Example{})
package cometd
