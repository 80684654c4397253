package watcher

import (
	"Go2FlowMeter/pkg/pcap"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Handler processes one capture file.
type Handler func(ctx context.Context, path string) error

// Watcher polls a directory for capture files, hands each one to a Handler and
// moves it to the processed directory afterwards.
type Watcher struct {
	sourceDir    string
	processedDir string
	interval     time.Duration
	handler      Handler
}

// New creates a watcher. processedDir is created on demand.
func New(sourceDir, processedDir string, interval time.Duration, handler Handler) *Watcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Watcher{
		sourceDir:    sourceDir,
		processedDir: processedDir,
		interval:     interval,
		handler:      handler,
	}
}

// Run scans immediately, then on every tick, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	log.Printf("Watching %s every %s", w.sourceDir, w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Scan(ctx); err != nil {
			log.Errorf("Scan of %s failed: %v", w.sourceDir, err)
		}
		select {
		case <-ctx.Done():
			log.Println("Watcher stopped.")
			return nil
		case <-ticker.C:
		}
	}
}

// Scan processes the capture files currently in the source directory, oldest
// name first, and returns how many were handled. A file whose handler fails
// stays in place and is retried on the next scan.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.sourceDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", w.sourceDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	handled := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(w.sourceDir, e.Name())
		if !pcap.IsCapture(path) {
			log.Debugf("Skipping %s: not a capture file", path)
			continue
		}
		if err := w.handler(ctx, path); err != nil {
			log.Errorf("Failed to process %s: %v", path, err)
			continue
		}
		if err := w.moveProcessed(path); err != nil {
			return handled, err
		}
		handled++
	}
	return handled, nil
}

func (w *Watcher) moveProcessed(path string) error {
	if err := os.MkdirAll(w.processedDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", w.processedDir, err)
	}
	dst, err := freeName(w.processedDir, filepath.Base(path))
	if err != nil {
		return err
	}
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("failed to move %s: %w", path, err)
	}
	log.Printf("Moved %s to %s", path, dst)
	return nil
}

// freeName returns dir/name, or dir/<stem>-N<ext> with the smallest N that is
// not taken, so an earlier capture of the same name is never overwritten.
func freeName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for n := 1; ; n++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
}
