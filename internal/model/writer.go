package model

import "time"

// FeatureBatch is a set of rendered feature rows sharing one column layout.
type FeatureBatch struct {
	Profile string
	// Keys are the output-column keys, Header the display names, both in schema order.
	Keys    []string
	Header  []string
	Numeric []bool
	Rows    [][]string
	// Values mirrors Rows with numeric cells already parsed, for typed stores.
	Values [][]interface{}
}

// Len returns the number of rows in the batch.
func (b *FeatureBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Writer defines a generic interface for writing feature rows to a persistent store.
type Writer interface {
	// Write persists one batch. The timestamp names the snapshot the batch belongs to.
	Write(batch *FeatureBatch, timestamp string) error

	// GetInterval returns the configured snapshot interval for this writer.
	GetInterval() time.Duration

	// Close releases connections and flushes buffered output.
	Close() error
}
