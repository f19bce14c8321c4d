package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/pebble"

	"chatterly/pkg/logger"
)

// SweepOrphans removes message rows and upload directories whose channel
// record no longer exists (channels removed by the directory's
// compensating delete leave both behind). Returns the number of message
// rows removed.
func (l *Local) SweepOrphans(ctx context.Context) (int, error) {
	known := map[string]bool{}
	var orphanKeys [][]byte

	prefix := []byte("channel:")
	err := l.iterPrefix(prefix, func(k, _ []byte) bool {
		rest := string(k[len(prefix):])
		id, _, isMsg := strings.Cut(rest, ":msg:")
		if !isMsg {
			known[rest] = true
			return true
		}
		alive, seen := known[id]
		if !seen {
			alive = l.HasChannel(id)
			known[id] = alive
		}
		if !alive {
			orphanKeys = append(orphanKeys, append([]byte(nil), k...))
		}
		return ctx.Err() == nil
	})
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// channel records sort before their ":msg:" keys, so "not seen" can
	// only happen for channels deleted mid-iteration; HasChannel above
	// settles those.
	if len(orphanKeys) > 0 {
		wb := l.db.NewBatch()
		for _, k := range orphanKeys {
			_ = wb.Delete(k, nil)
		}
		if err := l.db.Apply(wb, pebble.Sync); err != nil {
			return 0, err
		}
	}

	l.sweepUploads(known)

	if len(orphanKeys) > 0 {
		logger.Info("orphan_sweep_done", "messages_removed", len(orphanKeys))
	}
	return len(orphanKeys), nil
}

// sweepUploads removes per-channel upload directories for channels that no
// longer exist. Best-effort; failures are logged.
func (l *Local) sweepUploads(known map[string]bool) {
	root := filepath.Join(l.opts.UploadDir, "uploads")
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("upload_sweep_readdir_failed", "dir", root, "error", err)
		}
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := e.Name()
		alive, seen := known[id]
		if !seen {
			alive = l.HasChannel(id)
		}
		if alive {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, id)); err != nil {
			logger.Warn("upload_sweep_remove_failed", "channel", id, "error", err)
			continue
		}
		logger.Info("upload_sweep_removed", "channel", id)
	}
}
