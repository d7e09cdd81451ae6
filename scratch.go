package letterpdf

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lvillar/letterpdf/htmlrender"
)

// scratchPrefix marks per-export scratch directories.
const scratchPrefix = htmlrender.MarkerClass + "-"

func (e *Exporter) scratchDir(jobID string) (string, error) {
	root := e.scratchRoot
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	dir := filepath.Join(root, scratchPrefix+jobID)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", err
	}
	e.mu.Lock()
	e.active[dir] = struct{}{}
	e.mu.Unlock()
	return dir, nil
}

// cleanup removes the job directory and any marker directory left behind
// by an export that died. Errors are logged, never returned.
func (e *Exporter) cleanup(dir string) {
	if dir != "" {
		e.mu.Lock()
		delete(e.active, dir)
		e.mu.Unlock()
		if err := os.RemoveAll(dir); err != nil {
			e.log.Warn("removing scratch dir", zap.String("dir", dir), zap.Error(err))
		}
	}
	e.sweep()
}

// sweep removes marker directories that no running export owns and that
// are older than the export timeout.
func (e *Exporter) sweep() {
	root := e.scratchRoot
	if root == "" {
		root = os.TempDir()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-e.timeout)
	for _, ent := range entries {
		if !ent.IsDir() || !strings.HasPrefix(ent.Name(), scratchPrefix) {
			continue
		}
		path := filepath.Join(root, ent.Name())
		e.mu.Lock()
		_, busy := e.active[path]
		e.mu.Unlock()
		if busy {
			continue
		}
		info, err := ent.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			e.log.Warn("removing stale scratch dir", zap.String("dir", path), zap.Error(err))
		}
	}
}
