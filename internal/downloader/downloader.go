package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/premiumize_downloader/internal/downloader/fetch"
	"github.com/italolelis/premiumize_downloader/internal/entity"
	"github.com/italolelis/premiumize_downloader/internal/logctx"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	dirPerm = 0755

	// local size must be within 0.1% of the remote size to count as
	// already downloaded
	sizeTolerance = 0.001

	resolveAttempts = 5
	resolveDelay    = time.Second
)

// Library is the slice of the catalog the scheduler resolves entities
// through.
type Library interface {
	ListFolder(ctx context.Context, folder *entity.Folder) ([]entity.Item, error)
	ResolveProduced(ctx context.Context, t *entity.Transfer) (entity.Item, error)
	GetTransfer(ctx context.Context, id string) (*entity.Transfer, error)
	Delete(ctx context.Context, item entity.Item) error
}

// Links generates download locations for entities that have none in the
// listing.
type Links interface {
	ZipGenerate(ctx context.Context, folderID string) (string, error)
	TorrentBrowse(ctx context.Context, hash string) (string, error)
}

// TransferWaiter blocks until a transfer resolves.
type TransferWaiter interface {
	Wait(ctx context.Context, t *entity.Transfer) (*entity.Transfer, error)
}

// Hooks are optional callbacks fired per completed or failed fetch.
type Hooks struct {
	OnDownloadFinished func(name string)
	OnDownloadError    func(name string, err error)
}

// job is one resolved fetch: a name, a link and what we know about it.
type job struct {
	name         string
	link         string
	size         int64
	generatedZip bool
}

// Scheduler decides whether and what to fetch, bounded by a process-wide
// concurrency cap, and triggers post-processing and retention cleanup.
// Byte movement is delegated to the Fetcher.
type Scheduler struct {
	lib     Library
	links   Links
	waiter  TransferWaiter
	fetcher fetch.Fetcher
	sem     *semaphore.Weighted

	retention       time.Duration
	retentionActive bool
	zipFolders      bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	hooks Hooks
}

type Option func(*Scheduler)

// WithMaxParallel caps simultaneous fetches process-wide.
func WithMaxParallel(n int64) Option {
	return func(s *Scheduler) { s.sem = semaphore.NewWeighted(n) }
}

// WithRetention activates the delete-after policy: entities whose creation
// timestamp plus window is in the past are deleted remotely after a
// successful download. A zero window deletes immediately.
func WithRetention(window time.Duration) Option {
	return func(s *Scheduler) {
		s.retention = window
		s.retentionActive = true
	}
}

// WithZippedFolders fetches folders as remotely generated zips instead of
// recursing into their children.
func WithZippedFolders() Option {
	return func(s *Scheduler) { s.zipFolders = true }
}

// WithClock injects the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSleeper injects the suspension primitive (tests).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// WithHooks attaches per-download callbacks.
func WithHooks(hooks Hooks) Option {
	return func(s *Scheduler) { s.hooks = hooks }
}

func NewScheduler(lib Library, links Links, waiter TransferWaiter, fetcher fetch.Fetcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		lib:     lib,
		links:   links,
		waiter:  waiter,
		fetcher: fetcher,
		sem:     semaphore.NewWeighted(2),
		now:     time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Download fetches one entity into targetDir, dispatching by kind.
func (s *Scheduler) Download(ctx context.Context, item entity.Item, targetDir string) error {
	switch it := item.(type) {
	case *entity.File:
		return s.downloadFile(ctx, it, targetDir)
	case *entity.Download:
		return s.fetchOne(ctx, job{name: it.Name, link: it.Link, size: int64(it.Size), generatedZip: it.GeneratedZip}, targetDir)
	case *entity.Folder:
		return s.downloadFolder(ctx, it, targetDir)
	case *entity.Transfer:
		return s.downloadTransfer(ctx, it, targetDir)
	default:
		return fmt.Errorf("unable to download %q: unknown kind", item.DisplayName())
	}
}

// DownloadAll fetches the given entities with bounded concurrency. A
// failing sibling does not abort the batch; the first error is reported
// after all items settle.
func (s *Scheduler) DownloadAll(ctx context.Context, items []entity.Item, targetDir string) error {
	var g errgroup.Group

	for _, item := range items {
		g.Go(func() error {
			return s.Download(ctx, item, targetDir)
		})
	}

	return g.Wait()
}

func (s *Scheduler) downloadFile(ctx context.Context, f *entity.File, targetDir string) error {
	j := job{name: f.Name, link: f.Link, size: int64(f.Size)}

	if j.link == "" && f.Hash != "" {
		// hash-addressed fallback: fetch the remotely generated zip
		link, err := s.links.TorrentBrowse(ctx, f.Hash)
		if err != nil {
			return fmt.Errorf("could not resolve download link for %q: %w", f.Name, err)
		}

		j.link = link
		j.name += ".zip"
		j.generatedZip = true
	}

	if j.link == "" {
		return fmt.Errorf("no download link for %q", f.Name)
	}

	if err := s.fetchOne(ctx, j, targetDir); err != nil {
		return err
	}

	s.applyRetention(ctx, f)

	return nil
}

func (s *Scheduler) downloadFolder(ctx context.Context, folder *entity.Folder, targetDir string) error {
	logger := logctx.LoggerFromContext(ctx)

	if s.zipFolders {
		location, err := s.links.ZipGenerate(ctx, folder.ID)
		if err != nil {
			return fmt.Errorf("could not create zip for %q: %w", folder.Name, err)
		}

		if err := s.fetchOne(ctx, job{name: folder.Name + ".zip", link: location, size: -1, generatedZip: true}, targetDir); err != nil {
			return err
		}

		s.applyRetention(ctx, folder)

		return nil
	}

	children, err := s.lib.ListFolder(ctx, folder)
	if err != nil {
		return err
	}

	subdir := filepath.Join(targetDir, folder.Name)

	var g errgroup.Group

	for _, child := range children {
		g.Go(func() error {
			return s.Download(ctx, child, subdir)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Debug("folder downloaded", "folder", folder.Name)

	s.applyRetention(ctx, folder)

	return nil
}

func (s *Scheduler) downloadTransfer(ctx context.Context, t *entity.Transfer, targetDir string) error {
	ctx = logctx.With(ctx, "transfer_id", t.ID)
	logger := logctx.LoggerFromContext(ctx)

	resolved, err := s.waiter.Wait(ctx, t)
	if err != nil {
		// a stalled or failed job produced nothing and should not linger
		if delErr := s.lib.Delete(ctx, t); delErr != nil {
			logger.Error("failed to delete failed transfer", "err", delErr)
		}

		return fmt.Errorf("transfer %q failed: %w", t.Name, err)
	}

	// the produced entity may lag the listing; re-poll briefly
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		if err := s.sleep(ctx, resolveDelay); err != nil {
			return err
		}

		cur, err := s.lib.GetTransfer(ctx, resolved.ID)
		if err != nil {
			continue
		}

		item, err := s.lib.ResolveProduced(ctx, cur)
		if err != nil {
			continue
		}

		return s.Download(ctx, item, targetDir)
	}

	return fmt.Errorf("no entity for transfer %q after %d attempts", t.Name, resolveAttempts)
}

// fetchOne performs the dedup check, acquires a concurrency permit,
// delegates the byte transfer and post-processes the artifact.
func (s *Scheduler) fetchOne(ctx context.Context, j job, targetDir string) error {
	logger := logctx.LoggerFromContext(ctx)

	if err := os.MkdirAll(targetDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	dest := filepath.Join(targetDir, j.name)

	if s.alreadyDownloaded(ctx, j, dest) {
		logger.Info("skipped, already exists", "file", j.name)

		return nil
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	if j.size > 0 {
		logger.Info("downloading file", "file", j.name, "size", humanize.Bytes(uint64(j.size)))
	} else {
		logger.Info("downloading file", "file", j.name)
	}

	if err := s.fetcher.Fetch(ctx, j.link, dest); err != nil {
		if s.hooks.OnDownloadError != nil {
			s.hooks.OnDownloadError(j.name, err)
		}

		return fmt.Errorf("failed to download %q: %w", j.name, err)
	}

	if j.generatedZip {
		if err := unzip(dest); err != nil {
			logger.Warn("unzipping failed", "file", dest, "err", err)
		}
	}

	if s.hooks.OnDownloadFinished != nil {
		s.hooks.OnDownloadFinished(j.name)
	}

	logger.Info("downloaded and saved file", "target", dest)

	return nil
}

// alreadyDownloaded reports whether a local copy of the expected size is
// present. An unknown remote size disables the check: existence alone is
// not enough to trust a file.
func (s *Scheduler) alreadyDownloaded(ctx context.Context, j job, dest string) bool {
	if j.size <= 0 {
		return false
	}

	if _, err := os.Stat(dest); err != nil {
		return false
	}

	local, err := localSize(dest)
	if err != nil {
		logctx.LoggerFromContext(ctx).Warn("could not get size of file", "file", dest, "err", err)

		return false
	}

	lower := float64(j.size) * (1 - sizeTolerance)
	upper := float64(j.size) * (1 + sizeTolerance)

	return lower < float64(local) && float64(local) < upper
}

// localSize is the file's size, or the recursive sum for a directory.
func localSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64

	err = filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}

			total += info.Size()
		}

		return nil
	})

	return total, err
}
