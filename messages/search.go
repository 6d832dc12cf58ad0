package messages

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/api"
	"github.com/opd-ai/commlink/chat"
)

// Search runs filter on the server and returns a flat, ranked result list.
// Every hit is re-checked against the structural parts of the filter.
// Predicates derived from the body (free text, mentions, links) are left to
// the server. Results are ordered by score, then newest first.
func Search(ctx context.Context, searcher api.MessageSearcher, filter chat.SearchFilter) ([]chat.SearchResult, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	results, err := searcher.SearchMessages(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	local := filter
	local.Text = ""
	local.MentionsOnly = false
	local.HasLinks = chat.Any
	kept := make([]chat.SearchResult, 0, len(results))
	for _, r := range results {
		if !local.Matches(&r.Message, "") {
			continue
		}
		kept = append(kept, r)
	}
	if dropped := len(results) - len(kept); dropped > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Search",
			"dropped":  dropped,
		}).Debug("Dropped search hits failing the local filter")
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Message.CreatedAt.Equal(b.Message.CreatedAt) {
			return a.Message.CreatedAt.After(b.Message.CreatedAt)
		}
		return a.Message.ID > b.Message.ID
	})
	if filter.Limit > 0 && len(kept) > filter.Limit {
		kept = kept[:filter.Limit]
	}
	return kept, nil
}
