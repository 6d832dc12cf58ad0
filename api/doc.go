// Package api is the client for the REST backend that owns persistent chat
// state: conversations, members, message history, search, reactions,
// suggestions, sensitive reveals and files.
//
// The realtime core never depends on *Client directly. Each component takes
// the narrow interface it needs (MessageSource, Revealer, FileService, ...)
// so tests can substitute in-memory fakes.
//
// Example:
//
//	client, err := api.New(api.Config{BaseURL: "https://chat.example.com", Token: token})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	page, err := client.GetMessages(ctx, conversationID, "", 50)
package api
