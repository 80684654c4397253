package writer

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/factory"
	"Go2FlowMeter/internal/features"
	"Go2FlowMeter/internal/flowtable"
	"Go2FlowMeter/internal/model"
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SnapshotLayout is the timestamp format the engine stamps snapshots with.
const SnapshotLayout = "2006-01-02_15-04-05"

func init() {
	factory.RegisterWriter("csv", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		return NewCSVWriter(def.CSV, interval)
	})
}

// CSVWriter writes every snapshot to a new CSV file under its root path.
type CSVWriter struct {
	rootPath  string
	separator string
	interval  time.Duration
}

// NewCSVWriter creates the root directory and returns the writer.
func NewCSVWriter(cfg config.CSVConfig, interval time.Duration) (*CSVWriter, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("csv writer requires a root_path")
	}
	if err := os.MkdirAll(cfg.RootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create csv root '%s': %w", cfg.RootPath, err)
	}
	sep := cfg.Separator
	if sep == "" {
		sep = features.DefaultSeparator
	}
	return &CSVWriter{rootPath: cfg.RootPath, separator: sep, interval: interval}, nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *CSVWriter) GetInterval() time.Duration {
	return w.interval
}

// Write stores the batch as <root>/<profile>/<uuid>.csv. Empty batches produce no file.
func (w *CSVWriter) Write(batch *model.FeatureBatch, timestamp string) error {
	if batch.Len() == 0 {
		return nil
	}
	dir := filepath.Join(w.rootPath, batch.Profile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create csv directory: %w", err)
	}
	path := filepath.Join(dir, uuid.New().String()+".csv")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file '%s': %w", path, err)
	}
	defer file.Close()

	bw := bufio.NewWriter(file)
	bw.WriteString(strings.Join(batch.Header, w.separator))
	bw.WriteString(flowtable.LineSeparator)
	for _, row := range batch.Rows {
		bw.WriteString(strings.Join(row, w.separator))
		bw.WriteString(flowtable.LineSeparator)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write csv file '%s': %w", path, err)
	}
	return nil
}

// Close is a no-op; every Write closes its own file.
func (w *CSVWriter) Close() error { return nil }
