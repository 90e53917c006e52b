package download

import (
	"context"
	"fmt"
	"os"
	"time"
)

// mtimeInfoKey is the file_info key B2 clients conventionally use to carry
// the source's original modification time, per spec.md §4.9's
// modification-time restoration rule.
const mtimeInfoKey = "src_last_modified_millis"

// DownloadToFile downloads req to a local path, choosing the parallel
// strategy when the object is large enough (a plain *os.File satisfies
// RandomAccessDestination), and restores the destination's mtime from the
// object's file_info (or its upload timestamp) afterward.
func (m *Manager) DownloadToFile(ctx context.Context, s sessionDownloader, req Request, path string) (*Result, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("download: creating %s: %w", path, err)
	}

	result, err := m.DownloadToWriter(ctx, s, req, f)

	closeErr := f.Close()
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	if closeErr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("download: closing %s: %w", path, closeErr)
	}

	restoreMtime(path, result)

	return result, nil
}

func restoreMtime(path string, result *Result) {
	if result == nil || result.Info == nil {
		return
	}

	mtime := time.UnixMilli(result.Info.UploadTimestamp.UnixMilli())

	if raw, ok := result.Info.FileInfo[mtimeInfoKey]; ok {
		if ms, err := parseMillis(raw); err == nil {
			mtime = time.UnixMilli(ms)
		}
	}

	_ = os.Chtimes(path, mtime, mtime)
}

func parseMillis(s string) (int64, error) {
	var ms int64

	_, err := fmt.Sscanf(s, "%d", &ms)

	return ms, err
}
