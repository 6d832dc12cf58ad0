package protocol

func ptr(v int64) *int64 { return &v }

// TypingStarted builds the outbound typing.started send.
func TypingStarted(conversationID int64) Envelope {
	return Envelope{Type: TypeTypingStarted, ConversationID: ptr(conversationID)}
}

// TypingStopped builds the outbound typing.stopped send.
func TypingStopped(conversationID int64) Envelope {
	return Envelope{Type: TypeTypingStopped, ConversationID: ptr(conversationID)}
}

// CallOffer builds an offer addressed to a single peer.
func CallOffer(conversationID, targetUserID int64, sdp string) Envelope {
	return Envelope{Type: TypeCallOffer, ConversationID: ptr(conversationID), TargetUserID: ptr(targetUserID), SDP: sdp}
}

// CallAnswer builds an answer addressed to the offering peer.
func CallAnswer(conversationID, targetUserID int64, sdp string) Envelope {
	return Envelope{Type: TypeCallAnswer, ConversationID: ptr(conversationID), TargetUserID: ptr(targetUserID), SDP: sdp}
}

// CallICE builds a candidate send addressed to a single peer.
func CallICE(conversationID, targetUserID int64, candidate ICECandidate) Envelope {
	return Envelope{Type: TypeCallICE, ConversationID: ptr(conversationID), TargetUserID: ptr(targetUserID), Candidate: &candidate}
}

// CallHangup builds the conversation-wide hangup send.
func CallHangup(conversationID int64) Envelope {
	return Envelope{Type: TypeCallHangup, ConversationID: ptr(conversationID)}
}

// CallDecline tells an offering peer that its offer was refused.
func CallDecline(conversationID, targetUserID int64, reason string) Envelope {
	return Envelope{Type: TypeCallDecline, ConversationID: ptr(conversationID), TargetUserID: ptr(targetUserID), Reason: reason}
}
