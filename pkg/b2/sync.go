package b2

import (
	"context"
	"time"

	"github.com/cloudbin/b2sdk-go/internal/syncfs"
)

// SyncOptions configures a folder sync run between a local directory and a
// bucket prefix — spec.md §4.10/§4.11, components C14/C15.
type SyncOptions struct {
	LocalRoot string
	BucketID  string
	Prefix    string

	Policies syncfs.PoliciesConfig
	Policy   syncfs.Policy // defaults to syncfs.DefaultPolicy()
	Workers  int           // defaults to the configured sync_workers

	Reporter syncfs.Reporter // optional; receives scan-time warnings from both scanners
}

// Sync reconciles a local directory against a bucket prefix according to
// opts.Policy, dispatching upload/download/delete/hide actions through a
// bounded worker pool. Returns a partial Result plus a *syncfs.SyncIncomplete
// (via errors.As) if any action failed — the rest of the scan still runs to
// completion, per spec.md §4.11's "a transfer failure doesn't abort the
// whole sync".
func (c *Client) Sync(ctx context.Context, opts SyncOptions) (syncfs.Result, error) {
	policies, err := syncfs.NewScanPoliciesManager(opts.Policies)
	if err != nil {
		return syncfs.Result{}, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = c.cfg.Transfers.SyncWorkers
	}

	localScanner := syncfs.NewLocalScanner(opts.LocalRoot, policies, opts.Reporter, c.log)
	remoteScanner := syncfs.NewRemoteScanner(c.session, opts.BucketID, opts.Prefix, policies, opts.Reporter)

	executor := syncfs.NewDefaultExecutor(
		c.session,
		opts.BucketID,
		opts.LocalRoot,
		c.cfg.Transfers.ToEmergeConfig(),
		c.cfg.Transfers.ToDownloadConfig(c.cfg.Safety),
		c.log,
	)

	synchronizer := syncfs.NewSynchronizer(executor, workers, c.log)

	policy := opts.Policy
	if (policy == syncfs.Policy{}) {
		policy = syncfs.DefaultPolicy()
	}

	source := localScanner.Scan(ctx)
	dest := remoteScanner.Scan(ctx)

	return synchronizer.Run(ctx, source, dest, policy, timeNow())
}

// timeNow is a var so tests in this package can override it; production
// code always gets the real wall clock.
var timeNow = time.Now
