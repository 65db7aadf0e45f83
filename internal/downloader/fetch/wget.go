package fetch

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/italolelis/premiumize_downloader/internal/logctx"
)

// WgetFetcher delegates byte movement to an external wget process. A fixed
// worker pool keeps blocking subprocess calls from stalling everything
// else.
type WgetFetcher struct {
	Resume  bool
	workers chan struct{}
}

func NewWgetFetcher(workers int, resume bool) *WgetFetcher {
	if workers <= 0 {
		workers = 4
	}

	return &WgetFetcher{
		Resume:  resume,
		workers: make(chan struct{}, workers),
	}
}

// Fetch runs wget for the link; a zero exit code is success.
func (w *WgetFetcher) Fetch(ctx context.Context, link, dest string) error {
	select {
	case w.workers <- struct{}{}:
		defer func() { <-w.workers }()
	case <-ctx.Done():
		return ctx.Err()
	}

	args := []string{link, "-q", "-O", dest, "--show-progress"}
	if w.Resume {
		args = append(args, "-c")
	}

	logctx.LoggerFromContext(ctx).Debug("spawning wget", "dest", dest)

	cmd := exec.CommandContext(ctx, "wget", args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("wget failed: %w", err)
	}

	return nil
}
