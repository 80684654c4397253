package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownFeature is returned when a profile enables a key missing from the feature catalogue.
var ErrUnknownFeature = errors.New("unknown feature key")

// Default values applied by LoadConfig for omitted settings.
const (
	DefaultFlowTimeout     int64 = 120000000
	DefaultActivityTimeout int64 = 5000000
	DefaultSeparator             = ","
	DefaultPollInterval          = "10s"
	DefaultProcessedDir          = "processed"
)

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProfileDef describes one output: which columns, what label, where the CSV files go.
type ProfileDef struct {
	Name      string   `yaml:"name"`
	OutputDir string   `yaml:"output_dir"`
	Features  []string `yaml:"features"`
	Label     string   `yaml:"label"`
}

// ExtractorConfig holds the flow engine settings shared by the offline extractor and the live engine.
type ExtractorConfig struct {
	Bidirectional     *bool        `yaml:"bidirectional"`
	FlowTimeout       int64        `yaml:"flow_timeout"`
	ActivityTimeout   int64        `yaml:"activity_timeout"`
	NumShards         uint32       `yaml:"num_shards"`
	FieldSeparator    string       `yaml:"field_separator"`
	ReadIPv4          *bool        `yaml:"read_ipv4"`
	ReadIPv6          *bool        `yaml:"read_ipv6"`
	ExportClosedFlows bool         `yaml:"export_closed_flows"`
	Profiles          []ProfileDef `yaml:"profiles"`
}

// IsBidirectional reports the bidirectional setting, true when omitted.
func (c ExtractorConfig) IsBidirectional() bool { return c.Bidirectional == nil || *c.Bidirectional }

// IPv4Enabled reports whether IPv4 packets are decoded, true when omitted.
func (c ExtractorConfig) IPv4Enabled() bool { return c.ReadIPv4 == nil || *c.ReadIPv4 }

// IPv6Enabled reports whether IPv6 packets are decoded, true when omitted.
func (c ExtractorConfig) IPv6Enabled() bool { return c.ReadIPv6 == nil || *c.ReadIPv6 }

// Profile returns the profile with the given name.
func (c ExtractorConfig) Profile(name string) (ProfileDef, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return ProfileDef{}, false
}

// WatcherConfig configures directory polling for new capture files.
type WatcherConfig struct {
	SourceDir    string `yaml:"source_dir"`
	ProcessedDir string `yaml:"processed_dir"`
	PollInterval string `yaml:"poll_interval"`
}

// Interval parses PollInterval.
func (c WatcherConfig) Interval() (time.Duration, error) {
	return time.ParseDuration(c.PollInterval)
}

// PersistenceConfig controls archiving of captured traffic by the probe.
type PersistenceConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	Encoding   string `yaml:"encoding"` // gob, text or pcap
	NumWorkers int    `yaml:"num_workers"`
	BufferSize int    `yaml:"buffer_size"`
}

// ProbeConfig configures live capture and the NATS transport.
type ProbeConfig struct {
	NATSURL     string            `yaml:"nats_url"`
	Subject     string            `yaml:"subject"`
	Iface       string            `yaml:"iface"`
	SnapshotLen int32             `yaml:"snapshot_len"`
	Promiscuous bool              `yaml:"promiscuous"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

// ClickHouseConfig holds connection settings for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// GobConfig configures the gob snapshot writer.
type GobConfig struct {
	RootPath string `yaml:"root_path"`
}

// CSVConfig configures the CSV writer.
type CSVConfig struct {
	RootPath  string `yaml:"root_path"`
	Separator string `yaml:"separator"`
}

// KafkaConfig configures the Kafka writer.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// S3Config configures the S3 writer.
type S3Config struct {
	Region   string `yaml:"region"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"`
}

// WriterDef defines a single writer attached to the engine.
type WriterDef struct {
	Type             string           `yaml:"type"`
	Enabled          bool             `yaml:"enabled"`
	SnapshotInterval string           `yaml:"snapshot_interval"`
	CSV              CSVConfig        `yaml:"csv"`
	Gob              GobConfig        `yaml:"gob"`
	ClickHouse       ClickHouseConfig `yaml:"clickhouse"`
	Kafka            KafkaConfig      `yaml:"kafka"`
	S3               S3Config         `yaml:"s3"`
}

// EngineConfig configures the live feature engine.
type EngineConfig struct {
	NumWorkers          int         `yaml:"num_workers"`
	SizeOfPacketChannel int         `yaml:"size_of_packet_channel"`
	Profile             string      `yaml:"profile"`
	SweepExpired        bool        `yaml:"sweep_expired"`
	AdminListenAddr     string      `yaml:"admin_listen_addr"`
	GrpcListenAddr      string      `yaml:"grpc_listen_addr"`
	Writers             []WriterDef `yaml:"writers"`
}

// APIConfig configures the query API.
type APIConfig struct {
	HttpListenAddr   string           `yaml:"http_listen_addr"`
	EngineHealthAddr string           `yaml:"engine_health_addr"`
	ClickHouse       ClickHouseConfig `yaml:"clickhouse"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Probe     ProbeConfig     `yaml:"probe"`
	Engine    EngineConfig    `yaml:"engine"`
	API       APIConfig       `yaml:"api"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	ex := &c.Extractor
	if ex.FlowTimeout <= 0 {
		ex.FlowTimeout = DefaultFlowTimeout
	}
	if ex.ActivityTimeout <= 0 {
		ex.ActivityTimeout = DefaultActivityTimeout
	}
	if ex.FieldSeparator == "" {
		ex.FieldSeparator = DefaultSeparator
	}
	if len(ex.Profiles) == 0 {
		ex.Profiles = []ProfileDef{{Name: "default", OutputDir: "output"}}
	}
	for i := range ex.Profiles {
		if len(ex.Profiles[i].Features) == 0 {
			ex.Profiles[i].Features = []string{"all"}
		}
	}

	if c.Watcher.PollInterval == "" {
		c.Watcher.PollInterval = DefaultPollInterval
	}
	if c.Watcher.ProcessedDir == "" && c.Watcher.SourceDir != "" {
		c.Watcher.ProcessedDir = filepath.Join(c.Watcher.SourceDir, DefaultProcessedDir)
	}

	if c.Probe.Subject == "" {
		c.Probe.Subject = "flowmeter.packets"
	}
	if c.Probe.SnapshotLen <= 0 {
		c.Probe.SnapshotLen = 65535
	}

	if c.Engine.NumWorkers <= 0 {
		c.Engine.NumWorkers = 4
	}
	if c.Engine.SizeOfPacketChannel <= 0 {
		c.Engine.SizeOfPacketChannel = 10000
	}
	if c.Engine.Profile == "" {
		c.Engine.Profile = ex.Profiles[0].Name
	}
}

// Validate checks settings that cannot be defaulted. knownFeature reports
// whether a key exists in the feature catalogue.
func (c *Config) Validate(knownFeature func(key string) bool) error {
	seen := make(map[string]bool, len(c.Extractor.Profiles))
	for _, p := range c.Extractor.Profiles {
		if p.Name == "" {
			return errors.New("profile without a name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate profile '%s'", p.Name)
		}
		seen[p.Name] = true
		for _, k := range p.Features {
			if k != "all" && !knownFeature(k) {
				return fmt.Errorf("profile '%s': %w: %s", p.Name, ErrUnknownFeature, k)
			}
		}
	}
	if !seen[c.Engine.Profile] {
		return fmt.Errorf("engine profile '%s' is not defined", c.Engine.Profile)
	}
	if c.Extractor.ActivityTimeout > c.Extractor.FlowTimeout {
		return fmt.Errorf("activity_timeout %d exceeds flow_timeout %d", c.Extractor.ActivityTimeout, c.Extractor.FlowTimeout)
	}
	if _, err := c.Watcher.Interval(); err != nil {
		return fmt.Errorf("invalid poll_interval: %w", err)
	}
	for _, w := range c.Engine.Writers {
		if !w.Enabled {
			continue
		}
		if _, err := time.ParseDuration(w.SnapshotInterval); err != nil {
			return fmt.Errorf("invalid snapshot_interval for writer type '%s': %w", w.Type, err)
		}
	}
	return nil
}
