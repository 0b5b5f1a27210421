// Package config builds runtime configuration from the environment so main
// stays lean. Every knob has a development default; production deployments
// override via env.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the top-level configuration for the attestation engine process.
type Config struct {
	Server    Server
	Engine    Engine
	Ledger    Ledger
	RateLimit RateLimit
	Redis     Redis
	Postgres  Postgres
	Audit     Audit
	Blob      Blob
}

// Server captures the ops HTTP listener (health, metrics). The business API
// is owned by the embedding layer, not this process.
type Server struct {
	Addr string
}

// Engine configures issuance orchestration.
type Engine struct {
	// DefaultSchemaUID is the registered schema all issued attestations are
	// encoded against and verified to match.
	DefaultSchemaUID string
	// DefaultExpirationHours applies when a create request carries no
	// explicit expiration. Zero means attestations never expire.
	DefaultExpirationHours int
	// RevocationEnabled gates the Revoke operation.
	RevocationEnabled bool
	// BatchSize bounds items per batch submission chunk.
	BatchSize int
	// CacheTTL bounds the in-memory attestation read cache.
	CacheTTL time.Duration
	// SubjectHashSalt is the process-wide salt for the one-way subject hash.
	SubjectHashSalt string
}

// Ledger configures the gateway's RPC endpoint and retry policy.
type Ledger struct {
	RPCURL      string
	ChainID     int64
	MaxAttempts int
	BaseDelay   time.Duration
	// GasSafetyMarginPct is added on top of raw gas estimates.
	GasSafetyMarginPct int
	// SigningKeySeed is the Ed25519 seed for the submitting account,
	// hex-encoded. Development only; production injects a real keystore.
	SigningKeySeed string
}

// RateLimit configures per-recipient issuance windows.
type RateLimit struct {
	MaxPerHour int
	MaxPerDay  int
}

// Redis configures the optional distributed rate-limit store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Postgres configures the attestation persistence boundary.
type Postgres struct {
	DSN string
}

// Audit configures the Kafka audit publisher. Empty brokers disable it and
// events stay on the in-process worker path.
type Audit struct {
	Brokers []string
	Topic   string
}

// Blob configures the optional decentralized blob-storage mirror.
type Blob struct {
	Enabled  bool
	Endpoint string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr: getenv("VERITAS_OPS_ADDR", ":9090"),
		},
		Engine: Engine{
			DefaultSchemaUID:       os.Getenv("VERITAS_SCHEMA_UID"),
			DefaultExpirationHours: getint("VERITAS_DEFAULT_EXPIRATION_HOURS", 0),
			RevocationEnabled:      os.Getenv("VERITAS_REVOCATION_ENABLED") == "true",
			BatchSize:              getint("VERITAS_BATCH_SIZE", 10),
			CacheTTL:               getduration("VERITAS_CACHE_TTL", 5*time.Minute),
			SubjectHashSalt:        getenv("VERITAS_SUBJECT_SALT", "dev-salt-change-in-production"),
		},
		Ledger: Ledger{
			RPCURL:             getenv("VERITAS_RPC_URL", "http://localhost:8545"),
			ChainID:            int64(getint("VERITAS_CHAIN_ID", 11155111)),
			MaxAttempts:        getint("VERITAS_SUBMIT_MAX_ATTEMPTS", 3),
			BaseDelay:          getduration("VERITAS_SUBMIT_BASE_DELAY", time.Second),
			GasSafetyMarginPct: getint("VERITAS_GAS_SAFETY_MARGIN_PCT", 20),
			SigningKeySeed:     os.Getenv("VERITAS_SIGNING_KEY_SEED"),
		},
		RateLimit: RateLimit{
			MaxPerHour: getint("VERITAS_MAX_PER_HOUR", 5),
			MaxPerDay:  getint("VERITAS_MAX_PER_DAY", 20),
		},
		Redis: Redis{
			URL:          os.Getenv("VERITAS_REDIS_URL"),
			PoolSize:     getint("VERITAS_REDIS_POOL_SIZE", 10),
			MinIdleConns: getint("VERITAS_REDIS_MIN_IDLE", 2),
			DialTimeout:  getduration("VERITAS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getduration("VERITAS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getduration("VERITAS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: Postgres{
			DSN: os.Getenv("VERITAS_POSTGRES_DSN"),
		},
		Audit: Audit{
			Brokers: splitNonEmpty(os.Getenv("VERITAS_KAFKA_BROKERS")),
			Topic:   getenv("VERITAS_AUDIT_TOPIC", "veritas.audit"),
		},
		Blob: Blob{
			Enabled:  os.Getenv("VERITAS_BLOB_ENABLED") == "true",
			Endpoint: os.Getenv("VERITAS_BLOB_ENDPOINT"),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
