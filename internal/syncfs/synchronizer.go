package syncfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ActionExecutor performs the four action kinds a Synchronizer cycle can
// emit. Declared narrowly at the consumer (spec.md §9): a real
// implementation wires Upload/Download to internal/emerge and
// internal/download, and DeleteVersion/HideRemote to the session's
// DeleteFileVersion/HideFile calls directly (no retry/emerge machinery
// needed for those two).
type ActionExecutor interface {
	Upload(ctx context.Context, a Action) error
	Download(ctx context.Context, a Action) error
	DeleteVersion(ctx context.Context, a Action) error
	HideRemote(ctx context.Context, a Action) error
}

const defaultSyncWorkers = 10

// SyncIncomplete aggregates every action failure from one Run, per spec.md
// §4.10: "any action failure marks the overall sync incomplete, with all
// successfully-submitted actions allowed to finish." Mirrors
// internal/emerge's MaxRetriesExceeded shape: a proper multi-error
// type so errors.Is/As see through to individual causes.
type SyncIncomplete struct {
	Failed int
	Causes []error
}

func (e *SyncIncomplete) Error() string {
	return fmt.Sprintf("syncfs: sync incomplete: %d action(s) failed", e.Failed)
}

// Unwrap exposes every action's error to errors.Is/As.
func (e *SyncIncomplete) Unwrap() []error { return e.Causes }

// Result summarizes one Run.
type Result struct {
	Succeeded int
	Failed    int
}

// Synchronizer is the C15 component: resolves a zip-folders pair stream
// into actions and dispatches them through a bounded worker pool. Grounded
// on internal/sync/worker.go's WorkerPool (flat pool of goroutines reading
// a single channel, atomic counters, mutex-guarded error collection) and
// internal/sync/transfer.go's queue-based admission.
type Synchronizer struct {
	exec    ActionExecutor
	workers int
	log     *slog.Logger
}

// NewSynchronizer builds a Synchronizer. workers <= 0 defaults to 10
// (spec.md §5's default sync worker count); log may be nil.
func NewSynchronizer(exec ActionExecutor, workers int, log *slog.Logger) *Synchronizer {
	if workers <= 0 {
		workers = defaultSyncWorkers
	}

	if log == nil {
		log = slog.Default()
	}

	return &Synchronizer{exec: exec, workers: workers, log: log}
}

// Run consumes source and dest to exhaustion, resolving each zip-folders
// pair into zero or more actions and submitting them to a bounded
// executor. queue_limit is workers+1000 per spec.md §4.10. now is the
// reference time for keep-days retention. Returns the run's tally and, if
// any action failed, a *SyncIncomplete wrapping every cause.
func (sy *Synchronizer) Run(ctx context.Context, source, dest *PathIterator, policy Policy, now time.Time) (Result, error) {
	queue := make(chan Action, sy.workers+1000)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failed    int
		causes    []error
	)

	for range sy.workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for action := range queue {
				err := sy.dispatch(ctx, action)

				mu.Lock()
				if err != nil {
					failed++
					causes = append(causes, fmt.Errorf("%s %s: %w", action.Kind, action.RelativePath, err))
					sy.log.Error("syncfs: action failed", slog.String("kind", action.Kind.String()), slog.String("path", action.RelativePath), slog.Any("error", err))
				} else {
					succeeded++
				}
				mu.Unlock()
			}
		}()
	}

	produceErr := sy.produce(ctx, source, dest, policy, now, queue)
	close(queue)
	wg.Wait()

	if produceErr != nil {
		mu.Lock()
		causes = append(causes, produceErr)
		mu.Unlock()
	}

	result := Result{Succeeded: succeeded, Failed: failed}

	if len(causes) > 0 {
		return result, &SyncIncomplete{Failed: len(causes), Causes: causes}
	}

	return result, nil
}

// produce zips source/dest and resolves+submits actions for each pair,
// blocking on a full queue (the bounded-admission point spec.md §5 names).
// A pair whose resolution raises an error (ErrDestFileNewer under
// NewerModeRaiseError) is recorded but does not stop the scan — the rest
// of the tree is still synced.
func (sy *Synchronizer) produce(ctx context.Context, source, dest *PathIterator, policy Policy, now time.Time, queue chan<- Action) error {
	pairs, err := ZipFolders(source, dest)
	if err != nil {
		return fmt.Errorf("syncfs: scanning: %w", err)
	}

	var errs []error

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}

		transfer, terr := ResolveTransfer(pair, policy)
		if terr != nil {
			if errors.Is(terr, ErrDestFileNewer) {
				errs = append(errs, terr)
				continue
			}

			return terr
		}

		if transfer != nil {
			if err := submit(ctx, queue, *transfer); err != nil {
				return err
			}
		}

		for _, action := range ResolveDeletion(pair, policy, now) {
			if err := submit(ctx, queue, action); err != nil {
				return err
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func submit(ctx context.Context, queue chan<- Action, action Action) error {
	select {
	case queue <- action:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sy *Synchronizer) dispatch(ctx context.Context, action Action) error {
	switch action.Kind {
	case ActionUpload:
		return sy.exec.Upload(ctx, action)
	case ActionDownload:
		return sy.exec.Download(ctx, action)
	case ActionDeleteVersion:
		return sy.exec.DeleteVersion(ctx, action)
	case ActionHideRemote:
		return sy.exec.HideRemote(ctx, action)
	default:
		return fmt.Errorf("syncfs: unknown action kind %d", action.Kind)
	}
}
