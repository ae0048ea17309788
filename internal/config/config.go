// Package config loads the orchestrator's configuration in layers:
// built-in defaults, an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TransportConfig controls which transports the server exposes (spec §4.3, §6.5).
type TransportConfig struct {
	Stdio     bool   `yaml:"stdio" env:"TRANSPORT_STDIO"`
	HTTP      bool   `yaml:"http" env:"TRANSPORT_HTTP"`
	HTTPAddr  string `yaml:"http_addr" env:"TRANSPORT_HTTP_ADDR"`
	WebSocket bool   `yaml:"websocket" env:"TRANSPORT_WEBSOCKET"`
	WSAddr    string `yaml:"websocket_addr" env:"TRANSPORT_WEBSOCKET_ADDR"`
	SSE       bool   `yaml:"sse" env:"TRANSPORT_SSE"`
	SSEAddr   string `yaml:"sse_addr" env:"TRANSPORT_SSE_ADDR"`
}

// SecurityConfig controls path confinement and audit behavior (spec §4.2, §6.5).
type SecurityConfig struct {
	Mode               string   `yaml:"mode" env:"SECURITY_MODE"`
	AllowedDirectories []string `yaml:"allowed_directories" env:"SECURITY_ALLOWED_DIRECTORIES"`
	AllowSymlinks      bool     `yaml:"allow_symlinks" env:"SECURITY_ALLOW_SYMLINKS"`
	JWTSecret          string   `yaml:"-" env:"SECURITY_JWT_SECRET"`
	LockTTLSeconds     int      `yaml:"lock_ttl_seconds" env:"SECURITY_LOCK_TTL_SECONDS"`
}

// OrchestratorConfig controls assignment strategy and workload balancing (spec §4.8, §6.5).
type OrchestratorConfig struct {
	Strategy                  string             `yaml:"strategy" env:"ORCHESTRATOR_STRATEGY"`
	Weights                   map[string]float64 `yaml:"weights"`
	MaxTasksPerAgent          int                `yaml:"max_tasks_per_agent" env:"ORCHESTRATOR_MAX_TASKS_PER_AGENT"`
	WorkloadBalanceThreshold  float64            `yaml:"workload_balance_threshold" env:"ORCHESTRATOR_WORKLOAD_BALANCE_THRESHOLD"`
	WeightsEnv                string             `yaml:"-" env:"ORCHESTRATOR_WEIGHTS"`
}

// JobConfig controls the job fabric's result polling backoff (spec §4.4, §6.5).
type JobConfig struct {
	PollMinIntervalMS int `yaml:"poll_min_interval_ms" env:"JOB_POLL_MIN_INTERVAL_MS"`
	PollMaxIntervalMS int `yaml:"poll_max_interval_ms" env:"JOB_POLL_MAX_INTERVAL_MS"`
}

// CacheConfig controls the storage engine's read-through cache (spec §4.1, §6.5).
type CacheConfig struct {
	Enabled bool `yaml:"enabled" env:"CACHE_ENABLED"`
	MaxSize int  `yaml:"max_size" env:"CACHE_MAX_SIZE"`
	TTLSec  int  `yaml:"ttl_seconds" env:"CACHE_TTL_SECONDS"`
}

// DecompositionConfig controls decomposition batching (spec §4.7, §6.5).
type DecompositionConfig struct {
	ChunkSize         int `yaml:"chunk_size" env:"DECOMPOSITION_CHUNK_SIZE"`
	AtomicHourCeiling int `yaml:"atomic_hour_ceiling" env:"DECOMPOSITION_ATOMIC_HOUR_CEILING"`
}

// TimeoutsConfig controls per-operation deadlines (spec §6.5).
type TimeoutsConfig struct {
	StorageMS       int `yaml:"storage_ms" env:"TIMEOUTS_STORAGE_MS"`
	LockMS          int `yaml:"lock_ms" env:"TIMEOUTS_LOCK_MS"`
	LLMMS           int `yaml:"llm_ms" env:"TIMEOUTS_LLM_MS"`
	TaskExecutionMS int `yaml:"task_execution_ms" env:"TIMEOUTS_TASK_EXECUTION_MS"`
}

// LoggingConfig controls the structured logger (internal/logging).
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED"`
	Addr    string `yaml:"addr" env:"METRICS_ADDR"`
}

// Config is the orchestrator's top-level configuration.
type Config struct {
	Transport     TransportConfig     `yaml:"transport"`
	Security      SecurityConfig      `yaml:"security"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	Job           JobConfig           `yaml:"job"`
	Cache         CacheConfig         `yaml:"cache"`
	Decomposition DecompositionConfig `yaml:"decomposition"`
	Timeouts      TimeoutsConfig      `yaml:"timeouts"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	DataDir       string              `yaml:"data_dir" env:"ORCHESTRATOR_DATA_DIR"`
	StorageFormat string              `yaml:"storage_format" env:"ORCHESTRATOR_STORAGE_FORMAT"`
}

// New returns a Config populated with the defaults named in spec §6.5.
func New() *Config {
	return &Config{
		Transport: TransportConfig{
			Stdio:     true,
			HTTP:      true,
			HTTPAddr:  ":8080",
			WebSocket: true,
			WSAddr:    ":8081",
			SSE:       true,
			SSEAddr:   ":8082",
		},
		Security: SecurityConfig{
			Mode:           "strict",
			AllowSymlinks:  false,
			LockTTLSeconds: 30,
		},
		Orchestrator: OrchestratorConfig{
			Strategy: "intelligent_hybrid",
			Weights: map[string]float64{
				"capability":   0.4,
				"performance":  0.3,
				"availability": 0.3,
			},
			MaxTasksPerAgent:         5,
			WorkloadBalanceThreshold: 0.3,
		},
		Job: JobConfig{
			PollMinIntervalMS: 1000,
			PollMaxIntervalMS: 5000,
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxSize: 1000,
			TTLSec:  300,
		},
		Decomposition: DecompositionConfig{
			ChunkSize:         40,
			AtomicHourCeiling: 4,
		},
		Timeouts: TimeoutsConfig{
			StorageMS:       5000,
			LockMS:          10000,
			LLMMS:           120000,
			TaskExecutionMS: 1800000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		DataDir:       "./data",
		StorageFormat: "json",
	}
}

// Load loads configuration from an optional file and environment variables,
// in that order, with later layers overriding earlier ones.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("ORCHESTRATOR_CONFIG_FILE"))
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	cfg.normalize()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// normalize applies any comma-separated env overrides that need parsing
// beyond what envdecode's struct tags express directly.
func (c *Config) normalize() {
	if c == nil {
		return
	}
	if raw := strings.TrimSpace(c.Orchestrator.WeightsEnv); raw != "" {
		if c.Orchestrator.Weights == nil {
			c.Orchestrator.Weights = make(map[string]float64)
		}
		for k, v := range parseWeightPairs(raw) {
			c.Orchestrator.Weights[k] = v
		}
	}
}

func parseWeightPairs(raw string) map[string]float64 {
	result := make(map[string]float64)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		var val float64
		if _, err := fmt.Sscanf(strings.TrimSpace(kv[1]), "%f", &val); err != nil {
			continue
		}
		result[key] = val
	}
	return result
}
