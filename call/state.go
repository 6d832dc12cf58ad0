package call

import "sort"

// State is the call session state.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateCalling  State = "calling"
	StateInCall   State = "in_call"
	StateError    State = "error"
)

// allStates lists every state, for metrics.
var allStates = []string{
	string(StateIdle),
	string(StateStarting),
	string(StateCalling),
	string(StateInCall),
	string(StateError),
}

// Active reports whether a session exists in this state.
func (s State) Active() bool {
	return s == StateStarting || s == StateCalling || s == StateInCall
}

// Snapshot is a consistent view of the engine.
type Snapshot struct {
	State          State
	ConversationID int64
	Peers          []int64
	Sinks          []int64
	Muted          bool
	Outgoing       bool
}

// Warning reports an inbound call that was refused.
type Warning struct {
	ConversationID       int64
	FromUserID           int64
	ActiveConversationID int64
	Reason               string
}

func sortedIDs(m map[int64]*peer, withSink bool) []int64 {
	out := make([]int64, 0, len(m))
	for id, p := range m {
		if withSink && p.sink == nil {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
