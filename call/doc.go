// Package call coordinates mesh voice calls over WebRTC.
//
// # Architecture
//
// An [Engine] owns at most one call session. Every input is turned into a
// typed event and processed by a single goroutine that runs one transition
// function:
//
//   - local commands: Start, Hangup, SetMuted, Snapshot, Close
//   - inbound signaling: call.offer, call.answer, call.ice, call.hangup,
//     call.decline (HandleSignal)
//   - peer connection callbacks: ICE candidates, remote tracks, connection
//     state changes
//   - completion of local media acquisition
//
// Nothing outside that goroutine touches the session, so the local stream
// and the peer connection map are released exactly once on every path back
// to idle.
//
// # States
//
//	idle → starting → calling → in_call → idle
//
// error is reported when media acquisition fails; the engine releases
// everything and settles in idle right after reporting it.
//
// # Mesh
//
// The caller sends one offer per remote participant, addressed to that
// participant. Remote audio arrives per peer and is attached to a sink keyed
// by the peer's user id. A failed peer is removed alone; the call ends when
// the last peer is gone.
//
// # WebRTC
//
// [NewWebRTCFactory] builds peer connections with pion/webrtc. [OpusSinkFactory]
// decodes remote Opus audio with pion/opus. Tests substitute fakes for both.
package call
