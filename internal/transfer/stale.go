package transfer

import (
	"regexp"
	"strings"

	"github.com/italolelis/premiumize_downloader/internal/entity"
)

// staleProgressRe matches the remote's zero-progress report for torrents
// with no reachable peers.
var staleProgressRe = regexp.MustCompile(`(?i)^Downloading at 0 mbit/s from \d+ peers\. \d+% of [\d.]+ (\wB|Bytes) finished\. ETA is unknown`)

// IsStale reports whether a transfer is stuck in the same low-progress
// state it was already in during the previous run. Staleness requires two
// observations: the message pattern alone is not enough, the id must also
// appear in the previous run's saved set.
func IsStale(t *entity.Transfer, previousIDs map[string]struct{}) bool {
	if t.Message != entity.MsgLoading && !staleProgressRe.MatchString(t.Message) {
		return false
	}

	_, seenBefore := previousIDs[t.ID]

	return seenBefore
}

// IsFailed reports whether a transfer errored in a way that will never
// recover and should be removed.
func IsFailed(t *entity.Transfer) bool {
	return t.Status == entity.StatusError && strings.HasPrefix(t.Message, entity.MsgCouldNotAdd)
}
