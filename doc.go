// Package commlink is a realtime messaging and voice-call client.
//
// A Client connects to a chat backend over a websocket for realtime events
// and over REST for everything else. It keeps the active conversation's
// message log reconciled with incoming events, shows who is typing, offers
// mention autocomplete while composing, reveals sensitive messages for a
// short time and coordinates mesh voice calls over WebRTC. When the realtime
// channel is down it falls back to polling.
//
// # Getting Started
//
//	opts := config.Default()
//	opts.APIURL = "https://chat.example.com"
//	opts.RealtimeURL = "wss://chat.example.com/ws"
//	opts.Token = token
//
//	client, err := commlink.New(opts, commlink.Deps{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop()
//
//	client.Store().OnChange(func(conversationID int64) {
//	    for _, m := range client.Store().Messages() {
//	        fmt.Println(m.SenderID, m.Body)
//	    }
//	})
//
//	if err := client.Start(ctx); err != nil {
//	    log.Println("realtime unavailable, polling:", err)
//	}
//	if err := client.SwitchConversation(ctx, 42); err != nil {
//	    log.Fatal(err)
//	}
//
// # Composing
//
// The composer owns the draft. Input drives typing notifications and mention
// autocomplete; Send delivers the draft and appends the acknowledged message:
//
//	client.Composer().Input("hi @al", 6)
//	if client.Mentions().Open() {
//	    client.Mentions().HandleKey(mention.KeyEnter, false)
//	}
//	msg, err := client.Composer().Send(ctx)
//
// # Calls
//
// StartCall offers a call to every other member of the active conversation.
// Incoming offers are answered automatically while idle and declined as busy
// otherwise:
//
//	client.Calls().OnState(func(s call.State, err error) {
//	    fmt.Println("call:", s, err)
//	})
//	if err := client.StartCall(ctx); err != nil {
//	    log.Println(err)
//	}
//
// # Core Types
//
//   - [Client]: wires every component and routes realtime events
//   - [Deps]: optional collaborators overriding the defaults built from options
//   - [Notice]: a failed user action or a declined inbound call, published
//     through [Client.OnNotice]
//
// Components live in their own packages: messages, typing, call, mention,
// reveal, composer, poll and transport.
package commlink
