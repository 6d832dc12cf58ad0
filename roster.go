package commlink

import (
	"context"

	"github.com/opd-ai/commlink/messages"
)

// roster answers the call engine's participant queries from the member list,
// refreshing it from the server so a call never targets stale membership.
type roster struct {
	directory *messages.Directory
}

func (r roster) Participants(ctx context.Context, conversationID int64) ([]int64, error) {
	members, err := r.directory.LoadMembers(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}
