package downloader

import (
	"context"
	"time"

	"github.com/italolelis/premiumize_downloader/internal/entity"
	"github.com/italolelis/premiumize_downloader/internal/logctx"
)

// applyRetention deletes the entity remotely once the delete-after window
// has elapsed. Only called after a successful (or skipped) download, so a
// deletion never loses data we don't already hold.
func (s *Scheduler) applyRetention(ctx context.Context, item entity.Item) {
	if !s.retentionActive {
		return
	}

	logger := logctx.LoggerFromContext(ctx)

	eligible := false

	switch it := item.(type) {
	case *entity.File:
		eligible = s.agedOut(time.Time(it.CreatedAt))
	case *entity.Folder:
		eligible = s.folderAgedOut(ctx, it)
	case *entity.Transfer:
		eligible = true
	}

	if !eligible {
		return
	}

	if err := s.lib.Delete(ctx, item); err != nil {
		logger.Error("failed to delete remote entity", "name", item.DisplayName(), "err", err)

		return
	}

	logger.Info("deleted remote entity", "name", item.DisplayName())
}

// agedOut reports whether created plus the retention window is in the
// past. A zero creation timestamp counts as aged out.
func (s *Scheduler) agedOut(created time.Time) bool {
	return !created.Add(s.retention).After(s.now())
}

// folderAgedOut is true only when every child of the folder, recursively,
// has aged out. A listing failure keeps the folder.
func (s *Scheduler) folderAgedOut(ctx context.Context, folder *entity.Folder) bool {
	children, err := s.lib.ListFolder(ctx, folder)
	if err != nil {
		return false
	}

	for _, child := range children {
		switch it := child.(type) {
		case *entity.File:
			if !s.agedOut(time.Time(it.CreatedAt)) {
				return false
			}
		case *entity.Folder:
			if !s.folderAgedOut(ctx, it) {
				return false
			}
		default:
			return false
		}
	}

	return true
}
