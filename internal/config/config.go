// Package config provides configuration management.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"ocp-cost-aggregator/internal/errors"
	"ocp-cost-aggregator/internal/logging"
)

// Provider types recognised in the providers list.
const (
	ProviderOCP    = "OCP"
	ProviderOCPAWS = "OCP_AWS"
)

// Config is the main application configuration
type Config struct {
	// Providers lists the provider runs, executed in declaration order
	Providers []ProviderConfig `yaml:"providers"`

	// DateRange selects the target partition month
	DateRange DateRangeConfig `yaml:"date_range"`

	// Database contains warehouse connection settings
	Database DatabaseConfig `yaml:"database"`

	// ObjectStore contains S3-compatible object store settings
	ObjectStore ObjectStoreConfig `yaml:"object_store"`

	// Performance contains tuning knobs
	Performance PerformanceConfig `yaml:"performance"`

	// Logging contains logging configuration
	Logging logging.Config `yaml:"logging"`
}

// ProviderConfig describes one provider run
type ProviderConfig struct {
	// Type is "OCP" or "OCP_AWS"
	Type string `yaml:"type"`

	// Enabled toggles the provider without removing it
	Enabled bool `yaml:"enabled"`

	// SourceUUID is the OCP partition source for OCP-only providers
	SourceUUID string `yaml:"source_uuid"`

	// OCPSourceUUID / AWSSourceUUID are the paired partitions for OCP_AWS
	OCPSourceUUID string `yaml:"ocp_source_uuid"`
	AWSSourceUUID string `yaml:"aws_source_uuid"`

	// Markup is the cost markup multiplier, in [0, 1]
	Markup float64 `yaml:"markup"`

	// ClusterIDOverride / ClusterAliasOverride replace the cluster identity
	// carried in the OCP records at ingest
	ClusterIDOverride    string `yaml:"cluster_id_override"`
	ClusterAliasOverride string `yaml:"cluster_alias_override"`

	// Timeout bounds total provider runtime; zero means no limit
	Timeout Duration `yaml:"timeout"`
}

// Duration accepts Go duration strings ("30m", "1h") in YAML
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// OCPUUID returns the OCP partition source for either provider type
func (p ProviderConfig) OCPUUID() string {
	if p.Type == ProviderOCPAWS {
		return p.OCPSourceUUID
	}
	return p.SourceUUID
}

// DateRangeConfig selects the partition month and an optional day window
type DateRangeConfig struct {
	Year      string `yaml:"year"`
	Month     string `yaml:"month"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
}

// DatabaseConfig contains warehouse connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"db"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema"`
}

// DSN renders a pgx-compatible connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.Name)
}

// ObjectStoreConfig contains S3-compatible object store settings
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// PerformanceConfig contains pipeline tuning knobs
type PerformanceConfig struct {
	// ParallelReaders is the fan-out across parquet files in one partition
	ParallelReaders int `yaml:"parallel_readers"`

	// UseStreaming switches between streaming row batches and full tables
	UseStreaming bool `yaml:"use_streaming"`

	// ChunkSize is the maximum rows per streamed batch
	ChunkSize int `yaml:"chunk_size"`

	// MaxWorkers bounds per-stage worker tasks
	MaxWorkers int `yaml:"max_workers"`

	// UseArrowCompute is accepted for compatibility with older configs;
	// the row-batch pipeline ignores it
	UseArrowCompute bool `yaml:"use_arrow_compute"`

	// UseBulkCopy selects the streaming copy path for warehouse loads
	UseBulkCopy bool `yaml:"use_bulk_copy"`

	// MemoryBudgetRows caps full-mode reader output; exceeding it is fatal
	MemoryBudgetRows int `yaml:"memory_budget_rows"`

	// MaxRetries bounds transient object-store retry attempts
	MaxRetries int `yaml:"max_retries"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		DateRange: DateRangeConfig{},
		Performance: PerformanceConfig{
			ParallelReaders:  2,
			UseStreaming:     true,
			ChunkSize:        50000,
			MaxWorkers:       4,
			UseBulkCopy:      true,
			MemoryBudgetRows: 5_000_000,
			MaxRetries:       4,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a YAML file. Unknown keys are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfigInvalid, "reading config file", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration over the built-in defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(errors.KindConfigInvalid, "parsing config", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides a subset of configuration for container deployments
func (c *Config) applyEnv() {
	if v := os.Getenv("POC_YEAR"); v != "" {
		c.DateRange.Year = v
	}
	if v := os.Getenv("POC_MONTH"); v != "" {
		c.DateRange.Month = v
	}
	if v := os.Getenv("DATABASE_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DATABASE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Database.Port = p
		}
	}
	if v := os.Getenv("DATABASE_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.ObjectStore.Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		c.ObjectStore.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		c.ObjectStore.SecretKey = v
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if v := os.Getenv("OCP_PROVIDER_UUID"); v != "" {
			if p.Type == ProviderOCPAWS {
				p.OCPSourceUUID = v
			} else {
				p.SourceUUID = v
			}
		}
		if v := os.Getenv("AWS_PROVIDER_UUID"); v != "" && p.Type == ProviderOCPAWS {
			p.AWSSourceUUID = v
		}
		if v := os.Getenv("OCP_CLUSTER_ID"); v != "" {
			p.ClusterIDOverride = v
		}
	}
}

// Validate checks the configuration, aggregating every problem found
func (c *Config) Validate() error {
	var result *multierror.Error

	if len(c.Providers) == 0 {
		result = multierror.Append(result, fmt.Errorf("providers: at least one provider is required"))
	}
	for i, p := range c.Providers {
		switch p.Type {
		case ProviderOCP:
			if p.SourceUUID == "" {
				result = multierror.Append(result, fmt.Errorf("providers[%d]: source_uuid is required for type OCP", i))
			}
		case ProviderOCPAWS:
			if p.OCPSourceUUID == "" || p.AWSSourceUUID == "" {
				result = multierror.Append(result, fmt.Errorf("providers[%d]: ocp_source_uuid and aws_source_uuid are required for type OCP_AWS", i))
			}
		default:
			result = multierror.Append(result, fmt.Errorf("providers[%d]: unknown type %q", i, p.Type))
		}
		if p.Markup < 0 || p.Markup > 1 {
			result = multierror.Append(result, fmt.Errorf("providers[%d]: markup %v outside [0,1]", i, p.Markup))
		}
	}

	if len(c.DateRange.Year) != 4 {
		result = multierror.Append(result, fmt.Errorf("date_range.year: want YYYY, got %q", c.DateRange.Year))
	}
	if len(c.DateRange.Month) != 2 {
		result = multierror.Append(result, fmt.Errorf("date_range.month: want MM, got %q", c.DateRange.Month))
	}

	if c.Database.Host == "" {
		result = multierror.Append(result, fmt.Errorf("database.host is required"))
	}
	if c.Database.Schema == "" {
		result = multierror.Append(result, fmt.Errorf("database.schema is required"))
	}
	if c.ObjectStore.Bucket == "" {
		result = multierror.Append(result, fmt.Errorf("object_store.bucket is required"))
	}

	if c.Performance.ParallelReaders < 1 {
		result = multierror.Append(result, fmt.Errorf("performance.parallel_readers must be >= 1"))
	}
	if c.Performance.ChunkSize < 1 {
		result = multierror.Append(result, fmt.Errorf("performance.chunk_size must be >= 1"))
	}
	if c.Performance.MaxWorkers < 1 {
		result = multierror.Append(result, fmt.Errorf("performance.max_workers must be >= 1"))
	}

	if err := result.ErrorOrNil(); err != nil {
		return errors.Wrap(errors.KindConfigInvalid, "invalid configuration", err)
	}
	return nil
}

var (
	current *Config
	mu      sync.RWMutex
)

// Get returns the current configuration
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return Default()
	}
	return current
}

// Set sets the current configuration
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	current = cfg
}
