package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudbin/b2sdk-go/internal/syncfs"
	"github.com/cloudbin/b2sdk-go/pkg/b2"
)

func newSyncCmd() *cobra.Command {
	var (
		prefix        string
		deleteExtra   bool
		excludeRegexp []string
	)

	cmd := &cobra.Command{
		Use:   "sync <local-dir>",
		Short: "Sync a local directory to a bucket prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireBucketID(); err != nil {
				return err
			}

			return runSync(cmd, args[0], prefix, deleteExtra, excludeRegexp)
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "bucket prefix to sync under")
	cmd.Flags().BoolVar(&deleteExtra, "delete", false, "delete remote versions with no local counterpart")
	cmd.Flags().StringSliceVar(&excludeRegexp, "exclude", nil, "regex of local paths to exclude (repeatable)")

	return cmd
}

func runSync(cmd *cobra.Command, localDir, prefix string, deleteExtra bool, excludeRegexp []string) error {
	ctx := ctxOrBackground(cmd)

	client, err := newAuthorizedClient(ctx)
	if err != nil {
		return err
	}

	defer client.Close()

	policy := syncfs.DefaultPolicy()
	if deleteExtra {
		policy.Keep = syncfs.KeepModeDelete
	}

	result, err := client.Sync(ctx, b2.SyncOptions{
		LocalRoot: localDir,
		BucketID:  flagBucketID,
		Prefix:    prefix,
		Policy:    policy,
		Policies: syncfs.PoliciesConfig{
			ExcludeFileRegexes: excludeRegexp,
		},
		Reporter: func(relPath string, reason error) {
			fmt.Printf("skipped %s: %v\n", relPath, reason)
		},
	})

	var incomplete *syncfs.SyncIncomplete
	if errors.As(err, &incomplete) {
		fmt.Printf("sync finished with errors: %v\n", incomplete)
	} else if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	fmt.Printf("sync complete: %d succeeded, %d failed\n", result.Succeeded, result.Failed)

	return nil
}
