// Package protocol defines the realtime event envelope exchanged with the
// messaging server over the websocket, the recognized event types, and the
// typed payloads carried in the envelope's data field.
//
// The same Envelope type is used in both directions. Inbound events carry
// their payload in Data; outbound sends use the flat fields
// (conversation_id, target_user_id, sdp, candidate) so the server can route
// them without decoding a nested object.
//
// Wire examples:
//
//	{"type":"message.created","conversation_id":7,"data":{"id":1,...}}
//	{"type":"typing.started","conversation_id":7}
//	{"type":"call.offer","conversation_id":7,"target_user_id":3,"sdp":"v=0..."}
//	{"type":"call.ice","conversation_id":7,"target_user_id":3,"candidate":{"candidate":"..."}}
package protocol
