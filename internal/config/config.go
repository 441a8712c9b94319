package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the control plane.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Node       NodeConfig
	Raft       RaftConfig
	Scheduler  SchedulerConfig
	Sync       SyncConfig
	Telemetry  TelemetryConfig
	Autoscale  AutoscaleConfig
	CrossRegion CrossRegionConfig
	Discovery  DiscoveryConfig
	Monitoring MonitoringConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// NodeConfig identifies this control-plane process within the cluster.
type NodeConfig struct {
	ID     string
	Region string
}

// RaftConfig tunes the consensus layer (C8).
type RaftConfig struct {
	ElectionTimeoutMin  time.Duration
	ElectionTimeoutMax  time.Duration
	HeartbeatInterval   time.Duration
	SnapshotThreshold   int
	Peers               []string
	ListenPort          int
}

// SchedulerConfig selects and tunes the mission assigner (C6) strategy.
// DispatchInterval is not read: internal/mission's dispatch loop runs on
// a fixed 5 s tick.
type SchedulerConfig struct {
	Strategy          string // greedy | proximity | genetic | pso | nsga2
	DispatchInterval  time.Duration
	GeneticGenerations int
	GeneticPopulation  int
	PSOIterations      int
	PSOParticles       int
}

// SyncConfig holds data-sync (C10) settings. internal/datasync reads none
// of them; its incremental (30 s) and full (5 min) sweep intervals are
// constants.
type SyncConfig struct {
	Interval   time.Duration
	BatchSize  int
	RetryMax   int
}

// TelemetryConfig holds ingest (C11) and viewer (C12) settings. Only
// QueueSize is read, to size the viewer broadcaster's queue; the ingest
// significance thresholds and the fleet's 30 s staleness threshold are
// constants, and the other fields are not read.
type TelemetryConfig struct {
	QueueSize              int
	SignificantPositionM   float64
	SignificantBatteryPct  float64
	HeartbeatStaleAfter    time.Duration
}

// AutoscaleConfig tunes the autoscaler (C14).
type AutoscaleConfig struct {
	Enabled           bool
	MinNodes          int
	MaxNodes          int
	ScaleUpThreshold  float64
	ScaleDownThreshold float64
	ScaleUpCooldown   time.Duration
	ScaleDownCooldown time.Duration
	WindowSize        int
	CheckInterval     time.Duration
}

// CrossRegionConfig tunes the cross-region sync layer (C13).
type CrossRegionConfig struct {
	Enabled          bool
	BatchSize        int
	MaxRetries       int
	RetryBackoff     time.Duration
	UnhealthyWindow  int
	UnhealthyFailRate float64
	Peers            []RegionEndpoint
}

// RegionEndpoint names one peer region's sync endpoint, parsed from
// CROSS_REGION_PEERS as "region_id=http://host:port" pairs separated by
// commas, e.g. "eu-west=http://eu-west.internal:8080,us-east=http://us-east.internal:8080".
type RegionEndpoint struct {
	RegionID string
	Endpoint string
}

// DiscoveryConfig selects and tunes the peer-discovery backend (§4.15).
type DiscoveryConfig struct {
	Type          string // static | consul | etcd
	StaticPeers   []string
	ConsulAddr    string
	EtcdEndpoints []string
}

// MonitoringConfig holds monitoring/alerting configuration (C15).
type MonitoringConfig struct {
	Enabled        bool
	PrometheusPort int
	MetricsPath    string
	LogLevel       string
	EvalInterval   time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", "30s"),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", "30s"),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", "120s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "clustercenter"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "clustercenter"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Node: NodeConfig{
			ID:     getEnv("NODE_ID", ""),
			Region: getEnv("NODE_REGION", "default"),
		},
		Raft: RaftConfig{
			ElectionTimeoutMin: getEnvAsDuration("RAFT_ELECTION_TIMEOUT_MIN", "1.5s"),
			ElectionTimeoutMax: getEnvAsDuration("RAFT_ELECTION_TIMEOUT_MAX", "3s"),
			HeartbeatInterval:  getEnvAsDuration("RAFT_HEARTBEAT_INTERVAL", "500ms"),
			SnapshotThreshold:  getEnvAsInt("RAFT_SNAPSHOT_THRESHOLD", 10000),
			Peers:              getEnvStringSlice("RAFT_PEERS", nil),
			ListenPort:         getEnvAsInt("RAFT_LISTEN_PORT", 9091),
		},
		Scheduler: SchedulerConfig{
			Strategy:           getEnv("SCHEDULER_STRATEGY", "greedy"),
			DispatchInterval:   getEnvAsDuration("SCHEDULER_DISPATCH_INTERVAL", "2s"),
			GeneticGenerations: getEnvAsInt("SCHEDULER_GENETIC_GENERATIONS", 50),
			GeneticPopulation:  getEnvAsInt("SCHEDULER_GENETIC_POPULATION", 30),
			PSOIterations:      getEnvAsInt("SCHEDULER_PSO_ITERATIONS", 50),
			PSOParticles:       getEnvAsInt("SCHEDULER_PSO_PARTICLES", 20),
		},
		Sync: SyncConfig{
			Interval:  getEnvAsDuration("SYNC_INTERVAL", "5s"),
			BatchSize: getEnvAsInt("SYNC_BATCH_SIZE", 5),
			RetryMax:  getEnvAsInt("SYNC_RETRY_MAX", 3),
		},
		Telemetry: TelemetryConfig{
			QueueSize:             getEnvAsInt("TELEMETRY_QUEUE_SIZE", 256),
			SignificantPositionM:  getEnvAsFloat("TELEMETRY_SIGNIFICANT_POSITION_M", 1.0),
			SignificantBatteryPct: getEnvAsFloat("TELEMETRY_SIGNIFICANT_BATTERY_PCT", 1.0),
			HeartbeatStaleAfter:   getEnvAsDuration("TELEMETRY_HEARTBEAT_STALE_AFTER", "30s"),
		},
		Autoscale: AutoscaleConfig{
			Enabled:            getEnvAsBool("AUTOSCALE_ENABLED", false),
			MinNodes:           getEnvAsInt("AUTOSCALE_MIN_NODES", 1),
			MaxNodes:           getEnvAsInt("AUTOSCALE_MAX_NODES", 10),
			ScaleUpThreshold:   getEnvAsFloat("AUTOSCALE_SCALE_UP_THRESHOLD", 80.0),
			ScaleDownThreshold: getEnvAsFloat("AUTOSCALE_SCALE_DOWN_THRESHOLD", 50.0),
			ScaleUpCooldown:    getEnvAsDuration("AUTOSCALE_SCALE_UP_COOLDOWN", "300s"),
			ScaleDownCooldown:  getEnvAsDuration("AUTOSCALE_SCALE_DOWN_COOLDOWN", "600s"),
			WindowSize:         getEnvAsInt("AUTOSCALE_WINDOW_SIZE", 10),
			CheckInterval:      getEnvAsDuration("AUTOSCALE_CHECK_INTERVAL", "30s"),
		},
		CrossRegion: CrossRegionConfig{
			Enabled:           getEnvAsBool("CROSS_REGION_ENABLED", false),
			BatchSize:         getEnvAsInt("CROSS_REGION_BATCH_SIZE", 5),
			MaxRetries:        getEnvAsInt("CROSS_REGION_MAX_RETRIES", 3),
			RetryBackoff:      getEnvAsDuration("CROSS_REGION_RETRY_BACKOFF", "5s"),
			UnhealthyWindow:   getEnvAsInt("CROSS_REGION_UNHEALTHY_WINDOW", 20),
			UnhealthyFailRate: getEnvAsFloat("CROSS_REGION_UNHEALTHY_FAIL_RATE", 0.5),
			Peers:             getEnvAsRegionEndpoints("CROSS_REGION_PEERS"),
		},
		Discovery: DiscoveryConfig{
			Type:          getEnv("DISCOVERY_TYPE", "static"),
			StaticPeers:   getEnvStringSlice("PEER_NODES", nil),
			ConsulAddr:    getEnv("CONSUL_ADDR", "http://localhost:8500"),
			EtcdEndpoints: getEnvStringSlice("ETCD_ENDPOINTS", []string{"http://localhost:2379"}),
		},
		Monitoring: MonitoringConfig{
			Enabled:        getEnvAsBool("MONITORING_ENABLED", true),
			PrometheusPort: getEnvAsInt("PROMETHEUS_PORT", 9090),
			MetricsPath:    getEnv("METRICS_PATH", "/metrics"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			EvalInterval:   getEnvAsDuration("ALERT_EVAL_INTERVAL", "10s"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Node.ID == "" {
		return nil, fmt.Errorf("NODE_ID is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ := time.ParseDuration(defaultValue)
		return duration
	}
	return value
}

// getEnvAsRegionEndpoints parses "region_id=endpoint" pairs out of a
// comma-separated env var into RegionEndpoint configs, skipping malformed
// entries.
func getEnvAsRegionEndpoints(key string) []RegionEndpoint {
	var out []RegionEndpoint
	for _, pair := range getEnvStringSlice(key, nil) {
		idx := -1
		for i := 0; i < len(pair); i++ {
			if pair[i] == '=' {
				idx = i
				break
			}
		}
		if idx <= 0 || idx == len(pair)-1 {
			continue
		}
		out = append(out, RegionEndpoint{RegionID: pair[:idx], Endpoint: pair[idx+1:]})
	}
	return out
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	start := 0
	for i := 0; i <= len(valueStr); i++ {
		if i == len(valueStr) || valueStr[i] == ',' {
			if i > start {
				out = append(out, valueStr[start:i])
			}
			start = i + 1
		}
	}
	return out
}
