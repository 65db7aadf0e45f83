package orchestrator

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/italolelis/premiumize_downloader/internal/api"
	"github.com/italolelis/premiumize_downloader/internal/cleanup"
	"github.com/italolelis/premiumize_downloader/internal/downloader"
	"github.com/italolelis/premiumize_downloader/internal/entity"
	"github.com/italolelis/premiumize_downloader/internal/logctx"
	"github.com/italolelis/premiumize_downloader/internal/transfer"
	"golang.org/x/sync/errgroup"
)

// Catalog is the slice of the listing layer the orchestrator selects
// entities from.
type Catalog interface {
	GetFiles(ctx context.Context, force bool) ([]entity.Item, error)
	GetTransfers(ctx context.Context, force bool) ([]*entity.Transfer, error)
}

// DirectResolver resolves a source into fetchable links without creating
// a transfer.
type DirectResolver interface {
	TransferDirectDL(ctx context.Context, src string) ([]api.DirectLink, error)
}

// Orchestrator wires the selection, submission, download and cleanup
// flows into the user-facing modes.
type Orchestrator struct {
	catalog   Catalog
	direct    DirectResolver
	scheduler *downloader.Scheduler
	submitter *transfer.Submitter
	cleaner   *cleanup.Cleaner

	targetDir      string
	updateInterval time.Duration
}

func New(
	catalog Catalog,
	direct DirectResolver,
	scheduler *downloader.Scheduler,
	submitter *transfer.Submitter,
	cleaner *cleanup.Cleaner,
	targetDir string,
	updateInterval time.Duration,
) *Orchestrator {
	return &Orchestrator{
		catalog:        catalog,
		direct:         direct,
		scheduler:      scheduler,
		submitter:      submitter,
		cleaner:        cleaner,
		targetDir:      targetDir,
		updateInterval: updateInterval,
	}
}

// Download selects the remote entities matching the filter and fetches
// them. Running transfers whose name or source matches are waited on and
// fetched once they resolve.
func (o *Orchestrator) Download(ctx context.Context, filter *entity.Filter) error {
	logger := logctx.LoggerFromContext(ctx)

	if filter.Empty() {
		logger.Warn("no filter criteria given, nothing to download")

		return nil
	}

	selected, err := o.Select(ctx, filter)
	if err != nil {
		return err
	}

	if len(selected) == 0 {
		logger.Info("no remote entities matched")

		return nil
	}

	logger.Info("downloading matched entities", "count", len(selected))

	return o.scheduler.DownloadAll(ctx, selected, o.targetDir)
}

// Select returns the files, folders and running transfers matching the
// filter. Finished transfers are skipped: their produced entities already
// show up in the file listing.
func (o *Orchestrator) Select(ctx context.Context, filter *entity.Filter) ([]entity.Item, error) {
	files, err := o.catalog.GetFiles(ctx, false)
	if err != nil {
		return nil, err
	}

	var selected []entity.Item

	for _, item := range files {
		switch it := item.(type) {
		case *entity.File:
			if filter.Matches(it.Name, it.Hash) {
				selected = append(selected, it)
			}
		case *entity.Folder:
			if filter.Matches(it.Name, "") {
				selected = append(selected, it)
			}
		}
	}

	transfers, err := o.catalog.GetTransfers(ctx, false)
	if err != nil {
		return nil, err
	}

	for _, t := range transfers {
		if t.Status == entity.StatusFinished {
			continue
		}

		var hash string
		if src := t.Source(); src != nil {
			hash = src.ID
		}

		if filter.Matches(t.Name, hash) {
			selected = append(selected, t)
		}
	}

	return selected, nil
}

// Upload submits each source as a new transfer. With wait set, every
// submitted transfer is waited on and its product downloaded; a failing
// source does not abort its siblings.
func (o *Orchestrator) Upload(ctx context.Context, sources []string, wait bool) error {
	var g errgroup.Group

	for _, src := range sources {
		g.Go(func() error {
			t, err := o.submitter.Submit(ctx, src)
			if err != nil {
				return err
			}

			logctx.LoggerFromContext(ctx).Info("transfer submitted", "transfer_id", t.ID, "name", t.Name)

			if !wait {
				return nil
			}

			return o.scheduler.Download(ctx, t, o.targetDir)
		})
	}

	return g.Wait()
}

// FetchDirect resolves each source into direct links and fetches them,
// leaving no transfer behind on the account.
func (o *Orchestrator) FetchDirect(ctx context.Context, sources []string) error {
	logger := logctx.LoggerFromContext(ctx)

	var g errgroup.Group

	for _, src := range sources {
		g.Go(func() error {
			links, err := o.direct.TransferDirectDL(ctx, src)
			if err != nil {
				return err
			}

			logger.Info("resolved direct links", "src", src, "count", len(links))

			items := make([]entity.Item, 0, len(links))
			for _, dl := range links {
				items = append(items, &entity.Download{
					Name: path.Base(dl.Path),
					Link: dl.Link,
					Size: dl.Size,
				})
			}

			return o.scheduler.DownloadAll(ctx, items, o.targetDir)
		})
	}

	return g.Wait()
}

// Cleanup deletes failed and stale transfers.
func (o *Orchestrator) Cleanup(ctx context.Context) error {
	return o.cleaner.Run(ctx)
}

// Watch runs cleanup and download passes on a fixed interval until the
// context is cancelled. A failing pass is logged and retried on the next
// tick.
func (o *Orchestrator) Watch(ctx context.Context, filter *entity.Filter) error {
	logger := logctx.LoggerFromContext(ctx)

	if o.updateInterval <= 0 {
		return fmt.Errorf("invalid update interval %s", o.updateInterval)
	}

	logger.Info("watching for matching entities", "interval", o.updateInterval.String())

	ticker := time.NewTicker(o.updateInterval)
	defer ticker.Stop()

	for {
		o.pass(ctx, filter)

		select {
		case <-ctx.Done():
			logger.Info("shutting down watch loop")

			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) pass(ctx context.Context, filter *entity.Filter) {
	logger := logctx.LoggerFromContext(ctx)

	if err := o.Cleanup(ctx); err != nil {
		logger.Error("cleanup pass failed", "err", err)
	}

	if err := o.Download(ctx, filter); err != nil {
		logger.Error("download pass failed", "err", err)
	}
}
