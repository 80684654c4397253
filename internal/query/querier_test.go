package query

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummaryQuery(t *testing.T) {
	stmt, args := SummaryQuery("flow_features", "", nil)
	assert.Contains(t, stmt, "FROM flow_features")
	assert.NotContains(t, stmt, "WHERE")
	assert.Empty(t, args)

	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stmt, args = SummaryQuery("flow_features", "cic", &end)
	assert.Contains(t, stmt, "WHERE SnapshotTime <= ? AND Profile = ?")
	assert.Equal(t, []interface{}{end, "cic"}, args)
}

func TestLatestQuery(t *testing.T) {
	stmt, args := LatestQuery("t", "cic", 0)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stmt), "LIMIT 100"))
	assert.Equal(t, []interface{}{"cic", "cic"}, args)
}

func TestTraceQuery(t *testing.T) {
	stmt, args := TraceQuery("t", "cic", "10.0.0.1-10.0.0.2-40000-80-6", nil)
	assert.Equal(t, "SELECT * FROM t WHERE Profile = ? AND Flow_ID = ? ORDER BY SnapshotTime", stmt)
	assert.Len(t, args, 2)
}
