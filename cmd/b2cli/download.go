package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cloudbin/b2sdk-go/internal/download"
)

func newDownloadCmd() *cobra.Command {
	var fileID string

	cmd := &cobra.Command{
		Use:   "download <remote-name> <local-file>",
		Short: "Download a file by name (or --file-id) to a local path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fileID == "" {
				if err := requireBucketID(); err != nil {
					return err
				}
			}

			return runDownload(ctxOrBackground(cmd), fileID, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&fileID, "file-id", "", "download by file id instead of bucket+name")

	return cmd
}

func runDownload(ctx context.Context, fileID, remoteName, localPath string) error {
	client, err := newAuthorizedClient(ctx)
	if err != nil {
		return err
	}

	defer client.Close()

	req := download.Request{FileID: fileID}
	if fileID == "" {
		buckets, err := client.ListBuckets(ctx, nil, &flagBucketID)
		if err != nil {
			return fmt.Errorf("looking up bucket %s: %w", flagBucketID, err)
		}

		if len(buckets) == 0 {
			return fmt.Errorf("bucket %s not found", flagBucketID)
		}

		req.BucketName = buckets[0].BucketName
		req.FileName = remoteName
	}

	result, err := client.DownloadFileToPath(ctx, req, localPath)
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}

	fmt.Printf("downloaded %s (%s) to %s\n", remoteName, humanize.Bytes(uint64(result.BytesWritten)), localPath)

	return nil
}
