package query

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/features"
	"Go2FlowMeter/internal/writer"
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// DefaultLimit bounds row queries that do not set a limit.
const DefaultLimit = 100

// ProfileSummary aggregates the rows stored for one profile.
type ProfileSummary struct {
	Profile      string    `json:"profile"`
	Snapshots    uint64    `json:"snapshots"`
	Rows         uint64    `json:"rows"`
	LastSnapshot time.Time `json:"last_snapshot"`
}

// Querier defines the interface for querying stored feature rows.
type Querier interface {
	Summaries(ctx context.Context, profile string, end *time.Time) ([]ProfileSummary, error)
	LatestRows(ctx context.Context, profile string, limit int) ([]map[string]interface{}, error)
	TraceFlow(ctx context.Context, profile, flowID string, end *time.Time) ([]map[string]interface{}, error)
	Close() error
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn  driver.Conn
	table string
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := writer.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = writer.DefaultClickHouseTable
	}
	return &clickhouseQuerier{conn: conn, table: table}, nil
}

// SummaryQuery builds the per-profile aggregation over table.
func SummaryQuery(table, profile string, end *time.Time) (string, []interface{}) {
	var queryBuilder strings.Builder
	fmt.Fprintf(&queryBuilder, `
		SELECT
			Profile,
			uniqExact(SnapshotTime) AS Snapshots,
			count() AS Rows,
			max(SnapshotTime) AS LastSnapshot
		FROM %s`, table)

	var whereClauses []string
	args := []interface{}{}
	if end != nil {
		whereClauses = append(whereClauses, "SnapshotTime <= ?")
		args = append(args, *end)
	}
	if profile != "" {
		whereClauses = append(whereClauses, "Profile = ?")
		args = append(args, profile)
	}
	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}
	queryBuilder.WriteString(" GROUP BY Profile ORDER BY Profile")
	return queryBuilder.String(), args
}

// LatestQuery selects the rows of the most recent snapshot of profile.
func LatestQuery(table, profile string, limit int) (string, []interface{}) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := fmt.Sprintf(`
		SELECT * FROM %[1]s
		WHERE Profile = ? AND SnapshotTime = (SELECT max(SnapshotTime) FROM %[1]s WHERE Profile = ?)
		LIMIT %[2]d`, table, limit)
	return q, []interface{}{profile, profile}
}

// TraceQuery selects every stored row of one flow, oldest snapshot first.
func TraceQuery(table, profile, flowID string, end *time.Time) (string, []interface{}) {
	whereClauses := []string{"Profile = ?", features.Get(features.FlowID).Key + " = ?"}
	args := []interface{}{profile, flowID}
	if end != nil {
		whereClauses = append(whereClauses, "SnapshotTime <= ?")
		args = append(args, *end)
	}
	q := fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY SnapshotTime", table, strings.Join(whereClauses, " AND "))
	return q, args
}

// Summaries returns row and snapshot counts per profile.
func (q *clickhouseQuerier) Summaries(ctx context.Context, profile string, end *time.Time) ([]ProfileSummary, error) {
	stmt, args := SummaryQuery(q.table, profile, end)
	rows, err := q.conn.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var summaries []ProfileSummary
	for rows.Next() {
		var s ProfileSummary
		if err := rows.Scan(&s.Profile, &s.Snapshots, &s.Rows, &s.LastSnapshot); err != nil {
			return nil, fmt.Errorf("failed to scan summary result: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// LatestRows returns the rows of the newest snapshot of profile.
func (q *clickhouseQuerier) LatestRows(ctx context.Context, profile string, limit int) ([]map[string]interface{}, error) {
	stmt, args := LatestQuery(q.table, profile, limit)
	return q.selectRows(ctx, stmt, args)
}

// TraceFlow returns every snapshot row recorded for flowID.
func (q *clickhouseQuerier) TraceFlow(ctx context.Context, profile, flowID string, end *time.Time) ([]map[string]interface{}, error) {
	stmt, args := TraceQuery(q.table, profile, flowID, end)
	return q.selectRows(ctx, stmt, args)
}

// selectRows scans rows of an unknown column layout into maps keyed by column name.
func (q *clickhouseQuerier) selectRows(ctx context.Context, stmt string, args []interface{}) ([]map[string]interface{}, error) {
	rows, err := q.conn.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns := rows.Columns()
	types := rows.ColumnTypes()
	var out []map[string]interface{}
	for rows.Next() {
		dest := make([]interface{}, len(types))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, name := range columns {
			row[name] = reflect.ValueOf(dest[i]).Elem().Interface()
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *clickhouseQuerier) Close() error {
	return q.conn.Close()
}
