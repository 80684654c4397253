package writer

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/factory"
	"Go2FlowMeter/internal/model"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	gobRowsFile    = "rows.gob"
	gobSummaryFile = "summary.json"
)

func init() {
	factory.RegisterWriter("gob", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		if def.Gob.RootPath == "" {
			return nil, fmt.Errorf("gob writer requires a root_path")
		}
		return NewGobWriter(def.Gob.RootPath, interval), nil
	})
}

// SummaryData holds the metadata for a snapshot, internal to the writer.
type SummaryData struct {
	Profile   string   `json:"profile"`
	TotalRows int      `json:"total_rows"`
	Columns   []string `json:"columns"`
	Snapshot  string   `json:"snapshot"`
	Timestamp string   `json:"timestamp"`
}

// GobWriter writes snapshot batches to disk in gob format.
type GobWriter struct {
	rootPath string
	interval time.Duration
}

// NewGobWriter creates a new writer for feature batches.
func NewGobWriter(rootPath string, interval time.Duration) *GobWriter {
	return &GobWriter{rootPath: rootPath, interval: interval}
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *GobWriter) GetInterval() time.Duration {
	return w.interval
}

// Write encodes the batch to <root>/<timestamp>/<profile>/rows.gob and
// records a summary.json next to it.
func (w *GobWriter) Write(batch *model.FeatureBatch, timestamp string) error {
	if batch.Len() == 0 {
		return nil
	}

	// 1. Create timestamped directory with a subdirectory per profile
	dir := filepath.Join(w.rootPath, timestamp, batch.Profile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// 2. Write the rows. Values are not encoded; interface slices need registered types.
	rowsPath := filepath.Join(dir, gobRowsFile)
	file, err := os.Create(rowsPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", rowsPath, err)
	}
	defer file.Close()

	stored := model.FeatureBatch{
		Profile: batch.Profile,
		Keys:    batch.Keys,
		Header:  batch.Header,
		Numeric: batch.Numeric,
		Rows:    batch.Rows,
	}
	if err := gob.NewEncoder(file).Encode(&stored); err != nil {
		return fmt.Errorf("failed to encode rows to gob for file '%s': %w", rowsPath, err)
	}

	// 3. Write summary file
	summary := SummaryData{
		Profile:   batch.Profile,
		TotalRows: batch.Len(),
		Columns:   batch.Keys,
		Snapshot:  timestamp,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	summaryFile, err := os.Create(filepath.Join(dir, gobSummaryFile))
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer summaryFile.Close()

	jsonEncoder := json.NewEncoder(summaryFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return nil
}

// Close is a no-op.
func (w *GobWriter) Close() error { return nil }

// ReadGob decodes a rows.gob file written by GobWriter.
func ReadGob(path string) (*model.FeatureBatch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open gob file '%s': %w", path, err)
	}
	defer file.Close()

	var batch model.FeatureBatch
	if err := gob.NewDecoder(file).Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to decode gob file '%s': %w", path, err)
	}
	return &batch, nil
}
