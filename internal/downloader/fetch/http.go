package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/premiumize_downloader/internal/logctx"
)

const (
	dirPerm          = 0755
	progressInterval = int64(100 * 1024 * 1024) // 100MB
)

// HTTPFetcher streams the link with a plain GET. The link already carries
// its own authorization (generated download locations are pre-signed).
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPFetcher{Client: client}
}

func (h *HTTPFetcher) Fetch(ctx context.Context, link, dest string) error {
	logger := logctx.LoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch file: %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}
	defer out.Close()

	total := resp.ContentLength
	pr := newProgressReader(resp.Body, total, progressInterval, func(written, total int64) {
		if total > 0 {
			logger.Debug("download progress",
				"target", dest,
				"downloaded", humanize.Bytes(uint64(written)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(written)*100/float64(total), 2))
		} else {
			logger.Debug("download progress", "target", dest, "downloaded", humanize.Bytes(uint64(written)))
		}
	})

	if _, err := io.Copy(out, pr); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	return nil
}
