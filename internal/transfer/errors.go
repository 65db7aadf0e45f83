package transfer

import (
	"fmt"
	"time"
)

// StalledError reports a transfer that was declared failed instead of
// being polled forever.
type StalledError struct {
	Name    string        // transfer display name
	Elapsed time.Duration // wall-clock time since the wait began
}

func (e *StalledError) Error() string {
	return fmt.Sprintf("transfer %q did not finish after %s", e.Name, e.Elapsed)
}

// UnresolvedSubmissionError reports a duplicate submission that could not
// be reconciled against the transfer listing: zero or more than one
// candidate qualified, and the engine never guesses.
type UnresolvedSubmissionError struct {
	Source     string // the submitted magnet/URL
	Candidates int    // how many listing entries qualified
}

func (e *UnresolvedSubmissionError) Error() string {
	return fmt.Sprintf("duplicate submission %q matched %d existing transfers, not resolved", e.Source, e.Candidates)
}
