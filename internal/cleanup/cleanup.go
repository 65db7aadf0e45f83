package cleanup

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/italolelis/premiumize_downloader/internal/entity"
	"github.com/italolelis/premiumize_downloader/internal/logctx"
	"github.com/italolelis/premiumize_downloader/internal/transfer"
)

const seenFilePerm = 0644

// Lister is the slice of the catalog the cleaner works against.
type Lister interface {
	GetTransfers(ctx context.Context, force bool) ([]*entity.Transfer, error)
	Delete(ctx context.Context, item entity.Item) error
}

// Cleaner removes transfers that failed outright or stalled across runs.
// Stall detection needs a previous sighting, so the IDs of non-finished
// transfers are persisted between runs in a flat file.
type Cleaner struct {
	lister   Lister
	seenFile string
}

func NewCleaner(lister Lister, seenFile string) *Cleaner {
	return &Cleaner{lister: lister, seenFile: seenFile}
}

// Run deletes failed and stale transfers and records the survivors for
// the next run. Individual deletion failures are logged, not fatal.
func (c *Cleaner) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	previous, err := c.readSeen()
	if err != nil {
		return fmt.Errorf("failed to read transfer history: %w", err)
	}

	transfers, err := c.lister.GetTransfers(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to list transfers: %w", err)
	}

	var remaining []*entity.Transfer

	for _, t := range transfers {
		switch {
		case transfer.IsFailed(t):
			logger.Info("deleting failed transfer", "transfer_id", t.ID, "name", t.Name, "message", t.Message)

			if err := c.lister.Delete(ctx, t); err != nil {
				logger.Error("failed to delete transfer", "transfer_id", t.ID, "err", err)
			}
		case transfer.IsStale(t, previous):
			logger.Info("deleting stale transfer", "transfer_id", t.ID, "name", t.Name)

			if err := c.lister.Delete(ctx, t); err != nil {
				logger.Error("failed to delete transfer", "transfer_id", t.ID, "err", err)
			}
		case t.Status != entity.StatusFinished:
			remaining = append(remaining, t)
		}
	}

	return c.writeSeen(remaining)
}

// readSeen loads the IDs recorded by the previous run. A missing file is
// a first run, not an error.
func (c *Cleaner) readSeen() (map[string]struct{}, error) {
	seen := make(map[string]struct{})

	f, err := os.Open(c.seenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return seen, nil
		}

		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			seen[id] = struct{}{}
		}
	}

	return seen, scanner.Err()
}

func (c *Cleaner) writeSeen(transfers []*entity.Transfer) error {
	ids := make([]string, 0, len(transfers))
	for _, t := range transfers {
		ids = append(ids, t.ID)
	}

	sort.Strings(ids)

	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString(id)
		sb.WriteByte('\n')
	}

	return os.WriteFile(c.seenFile, []byte(sb.String()), seenFilePerm)
}
