package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "govcore.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "GOVCORE_PORT")
	setString(&cfg.Server.CORSOrigin, "GOVCORE_CORS_ORIGIN")

	setString(&cfg.Logging.Level, "GOVCORE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "GOVCORE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "GOVCORE_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "GOVCORE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "GOVCORE_BREAKER_TIMEOUT")

	setString(&cfg.LLM.URL, "GOVCORE_LLM_URL")
	setString(&cfg.LLM.APIKey, "GOVCORE_LLM_API_KEY")
	setString(&cfg.LLM.Model, "GOVCORE_LLM_MODEL")
	setFloat64(&cfg.LLM.Temperature, "GOVCORE_LLM_TEMPERATURE")
	setDuration(&cfg.LLM.Timeout, "GOVCORE_LLM_TIMEOUT")

	// Governance
	setString(&cfg.Governance.Mode, "GOVCORE_MODE")
	setFloat64(&cfg.Governance.MaxRiskScore, "GOVCORE_MAX_RISK_SCORE")
	setFloat64(&cfg.Governance.MinFitnessImprovement, "GOVCORE_MIN_FITNESS_IMPROVEMENT")
	setBool(&cfg.Governance.RequireHumanApproval, "GOVCORE_REQUIRE_HUMAN_APPROVAL")
	setList(&cfg.Governance.ProtectedPaths, "GOVCORE_PROTECTED_PATHS")

	// Federation
	setString(&cfg.Federation.ClusterID, "GOVCORE_CLUSTER_ID")
	setString(&cfg.Federation.ClusterName, "GOVCORE_CLUSTER_NAME")
	setString(&cfg.Federation.Region, "GOVCORE_REGION")
	setString(&cfg.Federation.Secret, "GOVCORE_FEDERATION_SECRET")
	setDuration(&cfg.Federation.PacketMaxAge, "GOVCORE_PACKET_MAX_AGE")
	setFloat64(&cfg.Federation.CriticalThreshold, "GOVCORE_CRITICAL_THRESHOLD")
	setDuration(&cfg.Federation.HealthInterval, "GOVCORE_HEALTH_INTERVAL")
	setDuration(&cfg.Federation.RollbackCooldown, "GOVCORE_ROLLBACK_COOLDOWN")

	setString(&cfg.Pipeline.PersonaDir, "GOVCORE_PERSONA_DIR")
	setBool(&cfg.Pipeline.Watch, "GOVCORE_PERSONA_WATCH")
	setInt(&cfg.Pipeline.Candidates, "GOVCORE_PIPELINE_CANDIDATES")
	setDuration(&cfg.Chamber.ValidationTimeout, "GOVCORE_CHAMBER_TIMEOUT")

	// Cache
	setBool(&cfg.Cache.Enabled, "GOVCORE_CACHE_ENABLED")
	setInt64(&cfg.Cache.L1MaxSizeMB, "GOVCORE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "GOVCORE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "GOVCORE_CACHE_L2_TTL")

	setBool(&cfg.NATS.Enabled, "GOVCORE_NATS_ENABLED")
	setString(&cfg.NATS.URL, "NATS_URL")

	// Ledger
	setString(&cfg.Ledger.Driver, "GOVCORE_LEDGER_DRIVER")
	setString(&cfg.Ledger.SQLitePath, "GOVCORE_SQLITE_PATH")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "GOVCORE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "GOVCORE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "GOVCORE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "GOVCORE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "GOVCORE_PG_HEALTH_CHECK")

	// OTEL
	setBool(&cfg.OTEL.Enabled, "GOVCORE_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "GOVCORE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "GOVCORE_OTEL_SAMPLE_RATE")
}

// validate checks required fields and threshold ranges.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	switch strings.ToLower(cfg.Governance.Mode) {
	case "observe", "simulated", "commit":
	default:
		return fmt.Errorf("governance.mode %q must be observe, simulated or commit", cfg.Governance.Mode)
	}
	if cfg.Governance.MaxRiskScore < 0 || cfg.Governance.MaxRiskScore > 1 {
		return fmt.Errorf("governance.max_risk_score must be in [0,1], got %v", cfg.Governance.MaxRiskScore)
	}
	if cfg.Governance.MinFitnessImprovement < 0 {
		return errors.New("governance.min_fitness_improvement must be >= 0")
	}
	if cfg.Governance.ProtectedIncrement < 0 {
		return errors.New("governance.protected_increment must be >= 0")
	}
	if cfg.Federation.ClusterID == "" {
		return errors.New("federation.cluster_id is required")
	}
	if cfg.Federation.CriticalThreshold <= 0 || cfg.Federation.CriticalThreshold > 1 {
		return fmt.Errorf("federation.critical_threshold must be in (0,1], got %v", cfg.Federation.CriticalThreshold)
	}
	if cfg.Federation.PacketMaxAge <= 0 {
		return errors.New("federation.packet_max_age must be > 0")
	}
	seen := make(map[string]bool, len(cfg.Federation.Clusters))
	for i, c := range cfg.Federation.Clusters {
		if c.ID == "" {
			return fmt.Errorf("federation.clusters[%d].id is required", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("federation.clusters: duplicate id %q", c.ID)
		}
		seen[c.ID] = true
	}
	if cfg.NATS.Enabled {
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required when nats is enabled")
		}
		if cfg.Federation.Secret == "" {
			return errors.New("federation.secret is required when nats is enabled")
		}
	}
	if cfg.Pipeline.Candidates < 1 {
		return errors.New("pipeline.candidates must be >= 1")
	}
	switch cfg.Ledger.Driver {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres ledger")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "sqlite":
		if cfg.Ledger.SQLitePath == "" {
			return errors.New("ledger.sqlite_path is required for the sqlite ledger")
		}
	case "none":
	default:
		return fmt.Errorf("ledger.driver %q must be postgres, sqlite or none", cfg.Ledger.Driver)
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return fmt.Errorf("otel.sample_rate must be in [0,1], got %v", cfg.OTEL.SampleRate)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// setList splits a comma-separated env value into dst.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
