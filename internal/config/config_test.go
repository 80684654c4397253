package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func known(k string) bool { return k == "Flow_ID" || k == "Label" }

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, DefaultFlowTimeout, cfg.Extractor.FlowTimeout)
	assert.Equal(t, DefaultActivityTimeout, cfg.Extractor.ActivityTimeout)
	assert.Equal(t, ",", cfg.Extractor.FieldSeparator)
	assert.True(t, cfg.Extractor.IsBidirectional())
	assert.True(t, cfg.Extractor.IPv4Enabled())
	assert.True(t, cfg.Extractor.IPv6Enabled())
	require.Len(t, cfg.Extractor.Profiles, 1)
	assert.Equal(t, []string{"all"}, cfg.Extractor.Profiles[0].Features)
	assert.Equal(t, "default", cfg.Engine.Profile)
	assert.NoError(t, cfg.Validate(known))
}

func TestLoadConfig(t *testing.T) {
	yml := `
extractor:
  bidirectional: false
  read_ipv6: false
  flow_timeout: 60000000
  profiles:
    - name: cic
      output_dir: out/cic
      features: [Flow_ID, Label]
      label: benign
watcher:
  source_dir: /data/in
engine:
  writers:
    - type: csv
      enabled: true
      snapshot_interval: 30s
      csv:
        root_path: out/live
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Extractor.IsBidirectional())
	assert.False(t, cfg.Extractor.IPv6Enabled())
	assert.EqualValues(t, 60000000, cfg.Extractor.FlowTimeout)
	assert.Equal(t, filepath.Join("/data/in", "processed"), cfg.Watcher.ProcessedDir)
	assert.Equal(t, "cic", cfg.Engine.Profile)

	p, ok := cfg.Extractor.Profile("cic")
	require.True(t, ok)
	assert.Equal(t, "benign", p.Label)
	assert.NoError(t, cfg.Validate(known))
}

func TestValidate(t *testing.T) {
	cfg, err := Parse([]byte(`
extractor:
  profiles:
    - name: a
      features: [Flow_ID, Bogus]
`))
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.Validate(known), ErrUnknownFeature)

	cfg, err = Parse([]byte(`
extractor:
  flow_timeout: 10
  activity_timeout: 20
`))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate(known))

	cfg, err = Parse([]byte(`
engine:
  writers:
    - type: gob
      enabled: true
      snapshot_interval: soon
`))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate(known))

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestShippedConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "compact", cfg.Engine.Profile)
	assert.Len(t, cfg.Engine.Writers, 5)
	assert.NoError(t, cfg.Validate(func(string) bool { return true }))
}
