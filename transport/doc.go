// Package transport owns the single realtime websocket connection of the
// client.
//
// A Client dials the server, decodes inbound frames into protocol envelopes
// and delivers them in arrival order to one event callback. Sends are
// best-effort: while the connection is down Send returns false and nothing is
// queued. When the connection drops without a call to Disconnect, exactly one
// reconnect timer is armed using the configured policy.
//
//	c, err := transport.New(transport.Options{URL: "wss://chat.example.com/ws", Token: tok})
//	c.OnStatus(func(s transport.Status) { log.Println("status", s) })
//	c.OnEvent(func(env protocol.Envelope) { dispatch(env) })
//	if err := c.Connect(ctx); err != nil {
//	    // a reconnect is already scheduled
//	}
//	defer c.Disconnect()
package transport
