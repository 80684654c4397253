package writer

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/factory"
	"Go2FlowMeter/internal/model"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"
)

// DefaultClickHouseTable receives feature rows when no table is configured.
const DefaultClickHouseTable = "flow_features"

func init() {
	factory.RegisterWriter("clickhouse", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		return NewClickHouseWriter(def.ClickHouse, interval)
	})
}

// ClickHouseWriter inserts feature rows into a ClickHouse table whose columns
// follow the batch layout. The table is created on the first write, so every
// batch sent to one writer must share the same columns.
type ClickHouseWriter struct {
	conn     driver.Conn
	table    string
	interval time.Duration

	mu      sync.Mutex
	created bool
}

// NewClickHouseWriter creates a new ClickHouse writer.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (*ClickHouseWriter, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = DefaultClickHouseTable
	}
	log.Println("Successfully connected to ClickHouse.")
	return &ClickHouseWriter{conn: conn, table: table, interval: interval}, nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

// Connect opens and pings a ClickHouse connection.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// CreateTableStatement returns the DDL for a feature table with the given columns.
// Numeric columns are Float64, everything else String.
func CreateTableStatement(table string, keys []string, numeric []bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	b.WriteString("    SnapshotTime DateTime,\n")
	b.WriteString("    Profile      String")
	for i, k := range keys {
		typ := "String"
		if i < len(numeric) && numeric[i] {
			typ = "Float64"
		}
		fmt.Fprintf(&b, ",\n    %s %s", k, typ)
	}
	b.WriteString("\n) ENGINE = MergeTree()\n")
	b.WriteString("PARTITION BY toYYYYMM(SnapshotTime)\n")
	b.WriteString("ORDER BY (Profile, SnapshotTime);")
	return b.String()
}

func (w *ClickHouseWriter) ensureTable(batch *model.FeatureBatch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.created {
		return nil
	}
	stmt := CreateTableStatement(w.table, batch.Keys, batch.Numeric)
	if err := w.conn.Exec(context.Background(), stmt); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	w.created = true
	return nil
}

// Write inserts the batch rows into the feature table.
func (w *ClickHouseWriter) Write(fb *model.FeatureBatch, timestamp string) error {
	if fb.Len() == 0 {
		return nil // Nothing to write
	}
	if err := w.ensureTable(fb); err != nil {
		return err
	}

	columns := append([]string{"SnapshotTime", "Profile"}, fb.Keys...)
	query := fmt.Sprintf("INSERT INTO %s (%s)", w.table, strings.Join(columns, ", "))
	batch, err := w.conn.PrepareBatch(context.Background(), query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	snapshotTime, err := time.ParseInLocation(SnapshotLayout, timestamp, time.Local)
	if err != nil {
		snapshotTime = time.Now()
	}

	for i, row := range fb.Rows {
		args := make([]interface{}, 0, len(columns))
		args = append(args, snapshotTime, fb.Profile)
		args = append(args, rowValues(fb, i, row)...)
		if err := batch.Append(args...); err != nil {
			return fmt.Errorf("failed to append row to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Wrote %d rows to ClickHouse for profile '%s'", fb.Len(), fb.Profile)
	return nil
}

// rowValues returns typed cells when the batch carries them, the text cells otherwise.
func rowValues(fb *model.FeatureBatch, i int, row []string) []interface{} {
	if i < len(fb.Values) && len(fb.Values[i]) == len(row) {
		return fb.Values[i]
	}
	out := make([]interface{}, len(row))
	for j, v := range row {
		out[j] = v
	}
	return out
}

// Close closes the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
