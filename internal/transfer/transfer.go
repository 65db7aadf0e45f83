package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/premiumize_downloader/internal/catalog"
	"github.com/italolelis/premiumize_downloader/internal/entity"
	"github.com/italolelis/premiumize_downloader/internal/logctx"
)

// Lister is the slice of the catalog the state machine drives.
type Lister interface {
	GetTransfers(ctx context.Context, force bool) ([]*entity.Transfer, error)
	GetTransfer(ctx context.Context, id string) (*entity.Transfer, error)
	CreateTransfer(ctx context.Context, src string) (string, error)
}

// Recorder receives transfer lifecycle metrics. Implemented by the
// telemetry package; a nil Recorder disables recording.
type Recorder interface {
	RecordTransfer(operation, outcome string)
}

func record(r Recorder, operation, outcome string) {
	if r != nil {
		r.RecordTransfer(operation, outcome)
	}
}

// Decision is the outcome of one poll iteration.
type Decision int

const (
	KeepWaiting Decision = iota
	Finished
	Failed
)

// Evaluate decides, purely from (status, message, elapsed), whether a
// transfer has resolved. The hard timeout applies only to the literal
// "Loading..." message; every other wait terminates when the remote does.
func Evaluate(t *entity.Transfer, elapsed, loadingTimeout time.Duration) Decision {
	switch {
	case t == nil:
		// vanished from the listing mid-wait
		return Failed
	case t.Message == entity.MsgLoading && elapsed > loadingTimeout:
		return Failed
	case t.Status == entity.StatusError:
		return Failed
	case t.IsRunning():
		return KeepWaiting
	case t.Status == entity.StatusWaiting:
		// waiting with an unrecoverable message; IsRunning already said no
		return Failed
	default:
		return Finished
	}
}

// Waiter polls a submitted transfer until it resolves.
type Waiter struct {
	lister         Lister
	pollInterval   time.Duration
	loadingTimeout time.Duration
	recorder       Recorder
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error
}

type WaiterOption func(*Waiter)

// WithClock injects the time source (tests).
func WithClock(now func() time.Time) WaiterOption {
	return func(w *Waiter) { w.now = now }
}

// WithSleeper injects the suspension primitive (tests).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) WaiterOption {
	return func(w *Waiter) { w.sleep = sleep }
}

// WithWaitRecorder attaches a metrics recorder to the wait loop.
func WithWaitRecorder(r Recorder) WaiterOption {
	return func(w *Waiter) { w.recorder = r }
}

func NewWaiter(lister Lister, pollInterval, loadingTimeout time.Duration, opts ...WaiterOption) *Waiter {
	w := &Waiter{
		lister:         lister,
		pollInterval:   pollInterval,
		loadingTimeout: loadingTimeout,
		now:            time.Now,
		sleep:          sleepCtx,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Wait polls the transfer by id until it leaves the running state. It
// returns the last observed transfer and a StalledError when the job was
// declared failed.
func (w *Waiter) Wait(ctx context.Context, t *entity.Transfer) (*entity.Transfer, error) {
	ctx = logctx.With(ctx, "transfer_id", t.ID)
	logger := logctx.LoggerFromContext(ctx)

	logger.Info("waiting for the remote to finish the transfer", "transfer_name", t.Name)

	start := w.now()

	for {
		cur, err := w.lister.GetTransfer(ctx, t.ID)
		if err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("failed to poll transfer: %w", err)
		}

		state := "idle"
		if cur != nil && cur.IsRunning() {
			state = "run"
		}

		if cur != nil {
			logger.Info("transfer state", "state", state, "status", cur.Status, "message", cur.Message)
		}

		elapsed := w.now().Sub(start)

		switch Evaluate(cur, elapsed, w.loadingTimeout) {
		case Finished:
			record(w.recorder, "wait", "finished")

			return cur, nil
		case Failed:
			logger.Error("transfer did not finish, aborted", "transfer_name", t.Name, "elapsed", elapsed.String())

			record(w.recorder, "wait", "failed")

			return cur, &StalledError{Name: t.Name, Elapsed: elapsed}
		}

		if err := w.sleep(ctx, w.pollInterval); err != nil {
			return cur, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
