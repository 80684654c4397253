package writer

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/factory"
	"Go2FlowMeter/internal/flowtable"
	"Go2FlowMeter/internal/model"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBatch() *model.FeatureBatch {
	return &model.FeatureBatch{
		Profile: "cic",
		Keys:    []string{"Flow_ID", "Tot_Fwd_Pkts", "Label"},
		Header:  []string{"Flow ID", "Tot Fwd Pkts", "Label"},
		Numeric: []bool{false, true, false},
		Rows: [][]string{
			{"10.0.0.1-10.0.0.2-40000-80-6", "3", "benign"},
			{"10.0.0.3-10.0.0.4-40001-53-17", "1", "benign"},
		},
		Values: [][]interface{}{
			{"10.0.0.1-10.0.0.2-40000-80-6", 3.0, "benign"},
			{"10.0.0.3-10.0.0.4-40001-53-17", 1.0, "benign"},
		},
	}
}

func TestCSVWriter(t *testing.T) {
	root := t.TempDir()
	w, err := NewCSVWriter(config.CSVConfig{RootPath: root, Separator: ";"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, w.GetInterval())

	require.NoError(t, w.Write(sampleBatch(), "2024-01-02_03-04-05"))
	require.NoError(t, w.Write(&model.FeatureBatch{Profile: "cic"}, "2024-01-02_03-04-06"))

	files, err := filepath.Glob(filepath.Join(root, "cic", "*.csv"))
	require.NoError(t, err)
	require.Len(t, files, 1, "empty batches write nothing")

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), flowtable.LineSeparator), flowtable.LineSeparator)
	require.Len(t, lines, 3)
	assert.Equal(t, "Flow ID;Tot Fwd Pkts;Label", lines[0])
	assert.Equal(t, "10.0.0.1-10.0.0.2-40000-80-6;3;benign", lines[1])
	assert.NoError(t, w.Close())

	_, err = NewCSVWriter(config.CSVConfig{}, time.Second)
	assert.Error(t, err)
}

func TestGobWriter(t *testing.T) {
	root := t.TempDir()
	w := NewGobWriter(root, time.Minute)
	require.NoError(t, w.Write(sampleBatch(), "2024-01-02_03-04-05"))

	dir := filepath.Join(root, "2024-01-02_03-04-05", "cic")
	batch, err := ReadGob(filepath.Join(dir, gobRowsFile))
	require.NoError(t, err)
	assert.Equal(t, "cic", batch.Profile)
	assert.Equal(t, sampleBatch().Rows, batch.Rows)
	assert.Equal(t, []bool{false, true, false}, batch.Numeric)
	assert.Nil(t, batch.Values)

	raw, err := os.ReadFile(filepath.Join(dir, gobSummaryFile))
	require.NoError(t, err)
	var summary SummaryData
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, 2, summary.TotalRows)
	assert.Equal(t, "2024-01-02_03-04-05", summary.Snapshot)

	_, err = ReadGob(filepath.Join(root, "missing.gob"))
	assert.Error(t, err)
}

func TestCreateTableStatement(t *testing.T) {
	stmt := CreateTableStatement("flow_features", []string{"Flow_ID", "Tot_Fwd_Pkts"}, []bool{false, true})
	assert.Contains(t, stmt, "CREATE TABLE IF NOT EXISTS flow_features (")
	assert.Contains(t, stmt, "Flow_ID String")
	assert.Contains(t, stmt, "Tot_Fwd_Pkts Float64")
	assert.Contains(t, stmt, "ORDER BY (Profile, SnapshotTime)")
}

func TestRowObject(t *testing.T) {
	b := sampleBatch()
	obj := RowObject(b, 0, b.Rows[0], "ts")
	assert.Equal(t, 3.0, obj["Tot_Fwd_Pkts"])
	assert.Equal(t, "cic", obj["profile"])
	assert.Equal(t, "ts", obj["snapshot"])

	b.Values = nil
	obj = RowObject(b, 1, b.Rows[1], "ts")
	assert.Equal(t, "1", obj["Tot_Fwd_Pkts"])
}

func TestObjectKeyAndCSV(t *testing.T) {
	ts := time.Date(2024, 3, 9, 17, 30, 0, 0, time.UTC)
	key := ObjectKey("flows", "cic", ts)
	assert.True(t, strings.HasPrefix(key, "flows/cic/2024/03/09/17/"), key)
	assert.True(t, strings.HasSuffix(key, ".csv"))

	body := string(EncodeCSV(sampleBatch()))
	assert.True(t, strings.HasPrefix(body, "Flow ID,Tot Fwd Pkts,Label"+flowtable.LineSeparator))
}

func TestFactoryBuildsRegisteredWriters(t *testing.T) {
	assert.Subset(t, factory.Types(), []string{"clickhouse", "csv", "gob", "kafka", "s3"})

	root := t.TempDir()
	writers, err := factory.CreateWriters([]config.WriterDef{
		{Type: "csv", Enabled: true, SnapshotInterval: "5s", CSV: config.CSVConfig{RootPath: root}},
		{Type: "gob", Enabled: false, SnapshotInterval: "5s"},
		{Type: "gob", Enabled: true, SnapshotInterval: "bad", Gob: config.GobConfig{RootPath: root}},
	})
	require.NoError(t, err)
	require.Len(t, writers, 1)
	assert.Equal(t, 5*time.Second, writers[0].GetInterval())

	_, err = factory.CreateWriters([]config.WriterDef{{Type: "nope", Enabled: true, SnapshotInterval: "1s"}})
	assert.Error(t, err)
}
