package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/italolelis/premiumize_downloader/internal/entity"
	"github.com/italolelis/premiumize_downloader/internal/logctx"
)

// ErrNotFound reports that no remote entity matched a lookup.
var ErrNotFound = errors.New("entity not found")

// API is the slice of the request layer the catalog drives.
type API interface {
	FolderList(ctx context.Context, folderID string) ([]entity.Item, error)
	TransferList(ctx context.Context) ([]*entity.Transfer, error)
	TransferCreate(ctx context.Context, src string) (string, error)
	Delete(ctx context.Context, kind entity.Kind, id string) error
}

// listing is a time-boxed memoized listing result. Population is not
// locked across the underlying call: two concurrent miss-fillers may both
// list, which is accepted since listing is idempotent.
type listing[T any] struct {
	value      []T
	validUntil time.Time
}

func (l *listing[T]) fresh(now time.Time) bool {
	return l.value != nil && !now.After(l.validUntil)
}

// Catalog memoizes the file and transfer listings for a short TTL, long
// enough to coalesce bursts within one orchestration pass. Mutations
// (create, delete) invalidate the relevant cache immediately.
type Catalog struct {
	api API
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	files     listing[entity.Item]
	transfers listing[*entity.Transfer]
}

type Option func(*Catalog)

// WithClock injects the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

func New(api API, ttl time.Duration, opts ...Option) *Catalog {
	c := &Catalog{
		api: api,
		ttl: ttl,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetFiles returns the account root listing, served from cache within the
// TTL window unless force is set.
func (c *Catalog) GetFiles(ctx context.Context, force bool) ([]entity.Item, error) {
	c.mu.Lock()
	if !force && c.files.fresh(c.now()) {
		value := c.files.value
		c.mu.Unlock()

		return value, nil
	}
	c.mu.Unlock()

	items, err := c.api.FolderList(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list root folder: %w", err)
	}

	c.mu.Lock()
	c.files = listing[entity.Item]{value: items, validUntil: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return items, nil
}

// ListFolder lists a folder's children. Child listings are not cached; only
// the root listing is hot enough to memoize.
func (c *Catalog) ListFolder(ctx context.Context, folder *entity.Folder) ([]entity.Item, error) {
	items, err := c.api.FolderList(ctx, folder.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %q: %w", folder.Name, err)
	}

	return items, nil
}

// GetTransfers returns the transfer listing, served from cache within the
// TTL window unless force is set. Orphaned transfers, finished or errored
// without a produced entity, are deleted on sight and excluded.
func (c *Catalog) GetTransfers(ctx context.Context, force bool) ([]*entity.Transfer, error) {
	logger := logctx.LoggerFromContext(ctx)

	c.mu.Lock()
	if !force && c.transfers.fresh(c.now()) {
		value := c.transfers.value
		c.mu.Unlock()

		return value, nil
	}
	c.mu.Unlock()

	listed, err := c.api.TransferList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}

	transfers := make([]*entity.Transfer, 0, len(listed))

	for _, t := range listed {
		if (t.Status == entity.StatusFinished || t.Status == entity.StatusError) && !t.Produced() {
			logger.Info("deleting orphaned transfer", "transfer_id", t.ID, "transfer_name", t.Name, "status", t.Status)

			if err := c.api.Delete(ctx, entity.KindTransfer, t.ID); err != nil {
				logger.Error("failed to delete orphaned transfer", "transfer_id", t.ID, "err", err)
			}

			continue
		}

		transfers = append(transfers, t)
	}

	c.mu.Lock()
	c.transfers = listing[*entity.Transfer]{value: transfers, validUntil: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return transfers, nil
}

// GetTransfer looks a transfer up by id in the (possibly cached) listing.
func (c *Catalog) GetTransfer(ctx context.Context, id string) (*entity.Transfer, error) {
	transfers, err := c.GetTransfers(ctx, false)
	if err != nil {
		return nil, err
	}

	for _, t := range transfers {
		if t.ID == id {
			return t, nil
		}
	}

	return nil, fmt.Errorf("transfer %s: %w", id, ErrNotFound)
}

// ResolveProduced finds the File or Folder a finished transfer points at.
func (c *Catalog) ResolveProduced(ctx context.Context, t *entity.Transfer) (entity.Item, error) {
	files, err := c.GetFiles(ctx, false)
	if err != nil {
		return nil, err
	}

	for _, item := range files {
		switch item.Kind() {
		case entity.KindFolder:
			if t.FolderID != "" && item.ItemID() == t.FolderID {
				return item, nil
			}
		case entity.KindFile:
			if t.FileID != "" && item.ItemID() == t.FileID {
				return item, nil
			}
		}
	}

	return nil, fmt.Errorf("no entity for transfer %q (status %s): %w", t.Name, t.StatusMessage(), ErrNotFound)
}

// CreateTransfer submits a source and invalidates both caches, since the
// mutation shows up in the file and transfer listings.
func (c *Catalog) CreateTransfer(ctx context.Context, src string) (string, error) {
	id, err := c.api.TransferCreate(ctx, src)
	if err != nil {
		return "", err
	}

	c.Invalidate()

	return id, nil
}

// Delete removes a remote entity by kind and invalidates the matching
// cache. Items without an id are treated as already gone.
func (c *Catalog) Delete(ctx context.Context, item entity.Item) error {
	if item == nil || item.ItemID() == "" {
		return nil
	}

	if err := c.api.Delete(ctx, item.Kind(), item.ItemID()); err != nil {
		return fmt.Errorf("failed to delete %s %q: %w", item.Kind(), item.DisplayName(), err)
	}

	c.mu.Lock()
	if item.Kind() == entity.KindTransfer {
		c.transfers = listing[*entity.Transfer]{}
	} else {
		c.files = listing[entity.Item]{}
	}
	c.mu.Unlock()

	return nil
}

// Invalidate drops both caches; the next reads list again.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.files = listing[entity.Item]{}
	c.transfers = listing[*entity.Transfer]{}
	c.mu.Unlock()
}
