package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cloudbin/b2sdk-go/pkg/b2"
)

func newUploadCmd() *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "upload <local-file> <remote-name>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireBucketID(); err != nil {
				return err
			}

			return runUpload(ctxOrBackground(cmd), args[0], args[1], contentType)
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (default: b2/x-auto)")

	return cmd
}

func runUpload(ctx context.Context, localPath, remoteName, contentType string) error {
	client, err := newAuthorizedClient(ctx)
	if err != nil {
		return err
	}

	defer client.Close()

	abs, err := filepath.Abs(localPath)
	if err != nil {
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat %s: %w", abs, err)
	}

	version, err := client.UploadFile(ctx, b2.UploadRequest{
		BucketID:    flagBucketID,
		FileName:    remoteName,
		ContentType: contentType,
		Length:      info.Size(),
		Open: func(context.Context) (io.ReadCloser, error) {
			return os.Open(abs)
		},
	})
	if err != nil {
		return fmt.Errorf("uploading: %w", err)
	}

	fmt.Printf("uploaded %s (%s) as file id %s\n", remoteName, humanize.Bytes(uint64(info.Size())), version.FileID)

	return nil
}
