package fetch

import (
	"context"
	"time"
)

// Recorder receives download metrics. Implemented by the telemetry
// package.
type Recorder interface {
	DownloadStarted()
	DownloadFinished(outcome string, duration time.Duration)
}

// InstrumentedFetcher decorates a Fetcher with metrics recording.
type InstrumentedFetcher struct {
	next     Fetcher
	recorder Recorder
}

func NewInstrumentedFetcher(next Fetcher, recorder Recorder) *InstrumentedFetcher {
	return &InstrumentedFetcher{next: next, recorder: recorder}
}

func (f *InstrumentedFetcher) Fetch(ctx context.Context, link, dest string) error {
	f.recorder.DownloadStarted()
	started := time.Now()

	err := f.next.Fetch(ctx, link, dest)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	f.recorder.DownloadFinished(outcome, time.Since(started))

	return err
}
