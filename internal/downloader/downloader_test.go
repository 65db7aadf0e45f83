package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/premiumize_downloader/internal/entity"
	"github.com/italolelis/premiumize_downloader/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLib struct {
	mu       sync.Mutex
	children map[string][]entity.Item
	byID     map[string]*entity.Transfer
	produced map[string]entity.Item
	deleted  []string
}

func (l *fakeLib) ListFolder(_ context.Context, folder *entity.Folder) ([]entity.Item, error) {
	return l.children[folder.ID], nil
}

func (l *fakeLib) ResolveProduced(_ context.Context, t *entity.Transfer) (entity.Item, error) {
	if item, ok := l.produced[t.ID]; ok {
		return item, nil
	}

	return nil, fmt.Errorf("no entity for transfer %q", t.Name)
}

func (l *fakeLib) GetTransfer(_ context.Context, id string) (*entity.Transfer, error) {
	if t, ok := l.byID[id]; ok {
		return t, nil
	}

	return nil, fmt.Errorf("transfer %s not found", id)
}

func (l *fakeLib) Delete(_ context.Context, item entity.Item) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.deleted = append(l.deleted, item.Kind().String()+":"+item.ItemID())

	return nil
}

type fakeLinks struct {
	zipLocation string
	browseLink  string
}

func (l *fakeLinks) ZipGenerate(_ context.Context, folderID string) (string, error) {
	return l.zipLocation, nil
}

func (l *fakeLinks) TorrentBrowse(_ context.Context, hash string) (string, error) {
	return l.browseLink, nil
}

type fakeWaiter struct {
	result *entity.Transfer
	err    error
}

func (w *fakeWaiter) Wait(_ context.Context, t *entity.Transfer) (*entity.Transfer, error) {
	return w.result, w.err
}

// countingFetcher records every fetched link and tracks the concurrency
// peak.
type countingFetcher struct {
	mu      sync.Mutex
	fetched []string
	active  int
	peak    int
	delay   time.Duration
}

func (f *countingFetcher) Fetch(_ context.Context, link, dest string) error {
	f.mu.Lock()
	f.fetched = append(f.fetched, dest)
	f.active++

	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	return nil
}

func instantSleep(_ context.Context, _ time.Duration) error { return nil }

func newTestScheduler(lib *fakeLib, links *fakeLinks, waiter *fakeWaiter, fetcher *countingFetcher, opts ...Option) *Scheduler {
	opts = append([]Option{WithSleeper(instantSleep)}, opts...)

	return NewScheduler(lib, links, waiter, fetcher, opts...)
}

func TestScheduler_SkipsLocalCopyWithinSizeTolerance(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mkv"), make([]byte, 1000), 0644))

	fetcher := &countingFetcher{}
	s := newTestScheduler(&fakeLib{}, &fakeLinks{}, &fakeWaiter{}, fetcher)

	ctx := context.Background()

	err := s.Download(ctx, &entity.File{ID: "f1", Name: "a.mkv", Size: 1000, Link: "https://server/a.mkv"}, dir)
	require.NoError(t, err)
	assert.Empty(t, fetcher.fetched, "matching local copy must not be fetched again")

	err = s.Download(ctx, &entity.File{ID: "f1", Name: "a.mkv", Size: 1200, Link: "https://server/a.mkv"}, dir)
	require.NoError(t, err)
	assert.Len(t, fetcher.fetched, 1, "size mismatch outside the window forces a refetch")

	err = s.Download(ctx, &entity.File{ID: "f1", Name: "a.mkv", Size: 0, Link: "https://server/a.mkv"}, dir)
	require.NoError(t, err)
	assert.Len(t, fetcher.fetched, 2, "unknown size disables the dedup check")
}

func TestScheduler_DownloadAllBoundsConcurrency(t *testing.T) {
	fetcher := &countingFetcher{delay: 30 * time.Millisecond}
	s := newTestScheduler(&fakeLib{}, &fakeLinks{}, &fakeWaiter{}, fetcher, WithMaxParallel(2))

	items := make([]entity.Item, 0, 6)
	for i := 0; i < 6; i++ {
		items = append(items, &entity.File{
			ID:   fmt.Sprintf("f%d", i),
			Name: fmt.Sprintf("file-%d.bin", i),
			Link: "https://server/file",
		})
	}

	require.NoError(t, s.DownloadAll(context.Background(), items, t.TempDir()))

	assert.Len(t, fetcher.fetched, 6)
	assert.LessOrEqual(t, fetcher.peak, 2, "no more than two fetches may run at once")
}

func TestScheduler_FileWithoutLinkUsesTorrentBrowse(t *testing.T) {
	fetcher := &countingFetcher{}
	links := &fakeLinks{browseLink: "https://server/zip/abc"}
	s := newTestScheduler(&fakeLib{}, links, &fakeWaiter{}, fetcher)

	dir := t.TempDir()

	err := s.Download(context.Background(), &entity.File{ID: "f1", Name: "payload", Hash: "c12fe1c06bba254a9dc9f519b335aa7c1367a88a"}, dir)
	require.NoError(t, err)

	require.Len(t, fetcher.fetched, 1)
	assert.Equal(t, filepath.Join(dir, "payload.zip"), fetcher.fetched[0])
}

func TestScheduler_FileWithoutLinkOrHash(t *testing.T) {
	s := newTestScheduler(&fakeLib{}, &fakeLinks{}, &fakeWaiter{}, &countingFetcher{})

	err := s.Download(context.Background(), &entity.File{ID: "f1", Name: "payload"}, t.TempDir())
	assert.Error(t, err)
}

func TestScheduler_FolderRecursesIntoChildren(t *testing.T) {
	lib := &fakeLib{children: map[string][]entity.Item{
		"d1": {
			&entity.File{ID: "f1", Name: "e01.mkv", Link: "https://server/e01"},
			&entity.Folder{ID: "d2", Name: "extras"},
		},
		"d2": {
			&entity.File{ID: "f2", Name: "bonus.mkv", Link: "https://server/bonus"},
		},
	}}

	fetcher := &countingFetcher{}
	s := newTestScheduler(lib, &fakeLinks{}, &fakeWaiter{}, fetcher)

	dir := t.TempDir()

	require.NoError(t, s.Download(context.Background(), &entity.Folder{ID: "d1", Name: "season 1"}, dir))

	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "season 1", "e01.mkv"),
		filepath.Join(dir, "season 1", "extras", "bonus.mkv"),
	}, fetcher.fetched)
}

func TestScheduler_ZippedFolders(t *testing.T) {
	fetcher := &countingFetcher{}
	links := &fakeLinks{zipLocation: "https://server/zip/d1"}
	s := newTestScheduler(&fakeLib{}, links, &fakeWaiter{}, fetcher, WithZippedFolders())

	dir := t.TempDir()

	require.NoError(t, s.Download(context.Background(), &entity.Folder{ID: "d1", Name: "season 1"}, dir))

	require.Len(t, fetcher.fetched, 1)
	assert.Equal(t, filepath.Join(dir, "season 1.zip"), fetcher.fetched[0])
}

func TestScheduler_StalledTransferIsDeleted(t *testing.T) {
	lib := &fakeLib{}
	waiter := &fakeWaiter{err: &transfer.StalledError{Name: "stuck", Elapsed: 11 * time.Minute}}
	s := newTestScheduler(lib, &fakeLinks{}, waiter, &countingFetcher{})

	err := s.Download(context.Background(), &entity.Transfer{ID: "t1", Name: "stuck"}, t.TempDir())
	require.Error(t, err)

	var stalled *transfer.StalledError
	assert.ErrorAs(t, err, &stalled)
	assert.Equal(t, []string{"transfer:t1"}, lib.deleted)
}

func TestScheduler_TransferDownloadsProducedEntity(t *testing.T) {
	finished := &entity.Transfer{ID: "t1", Name: "job", Status: entity.StatusFinished, FileID: "f1"}
	lib := &fakeLib{
		byID:     map[string]*entity.Transfer{"t1": finished},
		produced: map[string]entity.Item{"t1": &entity.File{ID: "f1", Name: "a.mkv", Link: "https://server/a.mkv"}},
	}

	fetcher := &countingFetcher{}
	s := newTestScheduler(lib, &fakeLinks{}, &fakeWaiter{result: finished}, fetcher)

	dir := t.TempDir()

	require.NoError(t, s.Download(context.Background(), finished, dir))

	require.Len(t, fetcher.fetched, 1)
	assert.Equal(t, filepath.Join(dir, "a.mkv"), fetcher.fetched[0])
}

func TestScheduler_TransferNeverResolves(t *testing.T) {
	finished := &entity.Transfer{ID: "t1", Name: "job", Status: entity.StatusFinished}
	lib := &fakeLib{byID: map[string]*entity.Transfer{"t1": finished}}

	s := newTestScheduler(lib, &fakeLinks{}, &fakeWaiter{result: finished}, &countingFetcher{})

	err := s.Download(context.Background(), finished, t.TempDir())
	assert.Error(t, err)
}

func TestScheduler_RetentionDeletesAgedEntities(t *testing.T) {
	now := time.Unix(1700000000, 0)
	old := entity.Timestamp(now.Add(-48 * time.Hour))
	recent := entity.Timestamp(now.Add(-time.Hour))

	lib := &fakeLib{}
	fetcher := &countingFetcher{}
	s := newTestScheduler(lib, &fakeLinks{}, &fakeWaiter{}, fetcher,
		WithRetention(24*time.Hour),
		WithClock(func() time.Time { return now }),
	)

	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, s.Download(ctx, &entity.File{ID: "f1", Name: "old.mkv", CreatedAt: old, Link: "https://server/old"}, dir))
	assert.Equal(t, []string{"file:f1"}, lib.deleted)

	require.NoError(t, s.Download(ctx, &entity.File{ID: "f2", Name: "recent.mkv", CreatedAt: recent, Link: "https://server/recent"}, dir))
	assert.Equal(t, []string{"file:f1"}, lib.deleted, "entities inside the window stay")
}

func TestScheduler_FolderRetentionNeedsAllChildrenAged(t *testing.T) {
	now := time.Unix(1700000000, 0)
	old := entity.Timestamp(now.Add(-48 * time.Hour))
	recent := entity.Timestamp(now.Add(-time.Hour))

	lib := &fakeLib{children: map[string][]entity.Item{
		"aged": {
			&entity.File{ID: "f1", Name: "a.mkv", CreatedAt: old, Link: "https://server/a"},
		},
		"mixed": {
			&entity.File{ID: "f2", Name: "b.mkv", CreatedAt: old, Link: "https://server/b"},
			&entity.File{ID: "f3", Name: "c.mkv", CreatedAt: recent, Link: "https://server/c"},
		},
	}}

	s := newTestScheduler(lib, &fakeLinks{}, &fakeWaiter{}, &countingFetcher{},
		WithRetention(24*time.Hour),
		WithClock(func() time.Time { return now }),
	)

	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, s.Download(ctx, &entity.Folder{ID: "aged", Name: "aged"}, dir))
	assert.Contains(t, lib.deleted, "folder:aged")

	lib.deleted = nil

	require.NoError(t, s.Download(ctx, &entity.Folder{ID: "mixed", Name: "mixed"}, dir))
	assert.NotContains(t, lib.deleted, "folder:mixed", "one fresh child keeps the whole folder")
}
