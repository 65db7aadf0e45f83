package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/italolelis/premiumize_downloader/internal/api"
	"github.com/italolelis/premiumize_downloader/internal/entity"
	"github.com/italolelis/premiumize_downloader/internal/logctx"
)

// similarityThreshold is the fuzzy-match cutoff for reconciling a
// duplicate submission by name. Best effort: the remote gives no
// uniqueness guarantee, so exactly one candidate must clear it.
const similarityThreshold = 0.80

// Submitter submits new transfer sources and reconciles the remote's
// duplicate-submission rejections against the existing listing.
type Submitter struct {
	lister   Lister
	recorder Recorder
}

type SubmitterOption func(*Submitter)

// WithSubmitRecorder attaches a metrics recorder to submissions.
func WithSubmitRecorder(r Recorder) SubmitterOption {
	return func(s *Submitter) { s.recorder = r }
}

func NewSubmitter(lister Lister, opts ...SubmitterOption) *Submitter {
	s := &Submitter{lister: lister}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Submit creates a transfer for the given magnet link or URL and returns
// the resulting Transfer from the listing. When the remote reports the
// source as already queued, the existing transfer is located instead.
func (s *Submitter) Submit(ctx context.Context, src string) (*entity.Transfer, error) {
	logger := logctx.LoggerFromContext(ctx)

	id, err := s.lister.CreateTransfer(ctx, src)
	if err == nil {
		record(s.recorder, "submit", "ok")

		return s.lister.GetTransfer(ctx, id)
	}

	if !api.IsDuplicate(err) {
		record(s.recorder, "submit", "error")

		return nil, fmt.Errorf("could not submit %q: %w", src, err)
	}

	logger.Debug("source already in the transfer list, reconciling", "src", src)

	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.TransferID != "" {
		if existing, lookupErr := s.lister.GetTransfer(ctx, apiErr.TransferID); lookupErr == nil {
			record(s.recorder, "submit", "duplicate")

			return existing, nil
		}
	}

	transfers, err := s.lister.GetTransfers(ctx, true)
	if err != nil {
		record(s.recorder, "submit", "error")

		return nil, fmt.Errorf("failed to list transfers for reconciliation: %w", err)
	}

	existing, err := ResolveDuplicate(entity.ParseSource(src), transfers)
	if err != nil {
		logger.Warn("unresolved duplicate submission", "src", src, "err", err)

		record(s.recorder, "submit", "error")

		return nil, err
	}

	record(s.recorder, "submit", "duplicate")

	return existing, nil
}

// ResolveDuplicate locates the existing transfer a rejected submission
// refers to: by parsed source identity, then exact name, then fuzzy name
// similarity when exactly one candidate clears the threshold.
func ResolveDuplicate(src *entity.Source, transfers []*entity.Transfer) (*entity.Transfer, error) {
	for _, t := range transfers {
		if t.Source().Matches(src) {
			return t, nil
		}
	}

	if src.Name == "" {
		return nil, &UnresolvedSubmissionError{Source: src.ID}
	}

	for _, t := range transfers {
		if t.Name == src.Name {
			return t, nil
		}
	}

	var candidates []*entity.Transfer

	for _, t := range transfers {
		if similarity(strings.ToLower(t.Name), strings.ToLower(src.Name)) >= similarityThreshold {
			candidates = append(candidates, t)
		}
	}

	if len(candidates) == 1 {
		return candidates[0], nil
	}

	return nil, &UnresolvedSubmissionError{Source: src.Name, Candidates: len(candidates)}
}

// similarity is a [0,1] ratio from the edit distance of two strings.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}

	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 0
	}

	dist := levenshtein.ComputeDistance(a, b)

	return 1 - float64(dist)/float64(longest)
}
