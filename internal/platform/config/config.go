// Package config loads service configuration.
//
// Values are layered: built-in defaults, then an optional YAML file (path from
// the --config flag or POPAI_CONFIG), then environment variables. Callers
// that want a .env file loaded do so before calling Load.
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

// Backend names accepted by the *_BACKEND settings.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// Liveness and scorer implementations.
const (
	LivenessPromptMatch = "prompt"
	LivenessRemote      = "remote"
	ScorerHeuristic     = "heuristic"
	ScorerStatic        = "static"
)

// Config is the complete service configuration.
type Config struct {
	Environment  string       `yaml:"environment"`
	Server       Server       `yaml:"server"`
	Auth         Auth         `yaml:"auth"`
	Challenge    Challenge    `yaml:"challenge"`
	Verification Verification `yaml:"verification"`
	Ledger       Ledger       `yaml:"ledger"`
	Audit        Audit        `yaml:"audit"`
	Proof        Proof        `yaml:"proof"`
	Redis        RedisConfig  `yaml:"redis"`
	Postgres     Postgres     `yaml:"postgres"`
	AWS          AWS          `yaml:"aws"`
	Kafka        Kafka        `yaml:"kafka"`
	Notify       Notify       `yaml:"notify"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	LogLevel        string        `yaml:"log_level"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Auth configures bearer token validation.
type Auth struct {
	JWTSigningKey string `yaml:"jwt_signing_key"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

// Challenge configures challenge storage and issuance.
type Challenge struct {
	Backend       string        `yaml:"backend"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// IssueRate is challenges per second per identity; IssueBurst the bucket size.
	IssueRate  float64 `yaml:"issue_rate"`
	IssueBurst int     `yaml:"issue_burst"`
}

// Verification configures the decision pipeline.
type Verification struct {
	ScoreThreshold float64       `yaml:"score_threshold"`
	Liveness       string        `yaml:"liveness"`
	RemoteURL      string        `yaml:"remote_url"`
	RemoteTimeout  time.Duration `yaml:"remote_timeout"`
	ModelHash      string        `yaml:"model_hash"`
	Scorer         string        `yaml:"scorer"`
	StaticScore    float64       `yaml:"static_score"`
}

// Ledger configures credential storage and credential metadata.
type Ledger struct {
	Backend               string `yaml:"backend"`
	TokenPrefix           string `yaml:"token_prefix"`
	CredentialName        string `yaml:"credential_name"`
	CredentialDescription string `yaml:"credential_description"`
	DynamoTable           string `yaml:"dynamo_table"`
}

// Audit configures the audit log store.
type Audit struct {
	Backend string `yaml:"backend"`
}

// Proof configures the proof generator.
type Proof struct {
	Secret string `yaml:"secret"`
}

// RedisConfig configures the Redis client pool.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	KeyPrefix    string        `yaml:"key_prefix"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Postgres configures the database pool.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// AWS holds shared AWS SDK settings. EndpointURL is empty in production and
// points at LocalStack in development.
type AWS struct {
	Region          string `yaml:"region"`
	EndpointURL     string `yaml:"endpoint_url"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Kafka configures audit export. Export is disabled when Brokers is empty.
type Kafka struct {
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
	BufferSize        int      `yaml:"buffer_size"`
}

// Notify configures mint notifications. Disabled when TopicARN is empty.
type Notify struct {
	SNSTopicARN string `yaml:"sns_topic_arn"`
}

// Default returns the development defaults.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: Server{
			Addr:            ":8080",
			LogLevel:        "info",
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  20 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: Auth{
			JWTSigningKey: "dev-secret-key-change-in-production",
			Issuer:        "popai",
			Audience:      "popai-api",
		},
		Challenge: Challenge{
			Backend:       BackendMemory,
			TTL:           5 * time.Minute,
			SweepInterval: time.Minute,
			IssueRate:     0.2,
			IssueBurst:    5,
		},
		Verification: Verification{
			ScoreThreshold: 0.5,
			Liveness:       LivenessPromptMatch,
			RemoteTimeout:  5 * time.Second,
			Scorer:         ScorerHeuristic,
			StaticScore:    1,
		},
		Ledger: Ledger{
			Backend:               BackendMemory,
			TokenPrefix:           "POP-",
			CredentialName:        "PoPAI Verified Human",
			CredentialDescription: "This token certifies that the holder has successfully passed a PoPAI liveness and uniqueness challenge.",
			DynamoTable:           "popai_credentials",
		},
		Audit: Audit{Backend: BackendMemory},
		Proof: Proof{Secret: "dev-proof-secret-change-in-production"},
		Redis: RedisConfig{
			KeyPrefix:    "popai:",
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: Postgres{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
		},
		AWS: AWS{Region: "us-east-1"},
		Kafka: Kafka{
			Topic:             "popai.audit",
			Partitions:        1,
			ReplicationFactor: 1,
			BufferSize:        1024,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// (or POPAI_CONFIG when path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("POPAI_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitList(v)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("POPAI_ENV", &c.Environment)
	str("POPAI_ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Server.LogLevel)
	list("ALLOWED_ORIGINS", &c.Server.AllowedOrigins)
	dur("REQUEST_TIMEOUT", &c.Server.RequestTimeout)
	dur("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	str("JWT_SIGNING_KEY", &c.Auth.JWTSigningKey)
	str("JWT_ISSUER", &c.Auth.Issuer)
	str("JWT_AUDIENCE", &c.Auth.Audience)

	str("CHALLENGE_BACKEND", &c.Challenge.Backend)
	dur("CHALLENGE_TTL", &c.Challenge.TTL)
	dur("CHALLENGE_SWEEP_INTERVAL", &c.Challenge.SweepInterval)
	float("CHALLENGE_ISSUE_RATE", &c.Challenge.IssueRate)
	integer("CHALLENGE_ISSUE_BURST", &c.Challenge.IssueBurst)

	float("SCORE_THRESHOLD", &c.Verification.ScoreThreshold)
	str("LIVENESS_VERIFIER", &c.Verification.Liveness)
	str("LIVENESS_REMOTE_URL", &c.Verification.RemoteURL)
	dur("LIVENESS_REMOTE_TIMEOUT", &c.Verification.RemoteTimeout)
	str("LIVENESS_MODEL_HASH", &c.Verification.ModelHash)
	str("BEHAVIORAL_SCORER", &c.Verification.Scorer)
	float("BEHAVIORAL_STATIC_SCORE", &c.Verification.StaticScore)

	str("LEDGER_BACKEND", &c.Ledger.Backend)
	str("TOKEN_PREFIX", &c.Ledger.TokenPrefix)
	str("CREDENTIAL_NAME", &c.Ledger.CredentialName)
	str("CREDENTIAL_DESCRIPTION", &c.Ledger.CredentialDescription)
	str("DYNAMO_TABLE_CREDENTIALS", &c.Ledger.DynamoTable)

	str("AUDIT_BACKEND", &c.Audit.Backend)
	str("PROOF_SECRET", &c.Proof.Secret)

	str("REDIS_URL", &c.Redis.URL)
	str("REDIS_KEY_PREFIX", &c.Redis.KeyPrefix)
	integer("REDIS_POOL_SIZE", &c.Redis.PoolSize)

	str("DATABASE_URL", &c.Postgres.DSN)
	integer("DATABASE_MAX_OPEN_CONNS", &c.Postgres.MaxOpenConns)
	boolean("DATABASE_AUTO_MIGRATE", &c.Postgres.AutoMigrate)

	str("AWS_REGION", &c.AWS.Region)
	str("AWS_ENDPOINT_URL", &c.AWS.EndpointURL)
	str("AWS_ACCESS_KEY_ID", &c.AWS.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &c.AWS.SecretAccessKey)

	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("KAFKA_AUDIT_TOPIC", &c.Kafka.Topic)
	integer("KAFKA_AUDIT_BUFFER_SIZE", &c.Kafka.BufferSize)

	str("SNS_MINT_TOPIC_ARN", &c.Notify.SNSTopicARN)

	return errors.Join(errs...)
}

// Validate checks cross-field constraints after all layers are applied.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unsupported value %q (want one of %s)", field, value, strings.Join(allowed, ", ")))
	}

	oneOf("challenge.backend", c.Challenge.Backend, BackendMemory, BackendRedis)
	oneOf("ledger.backend", c.Ledger.Backend, BackendMemory, BackendPostgres, BackendDynamoDB)
	oneOf("audit.backend", c.Audit.Backend, BackendMemory, BackendPostgres)
	oneOf("verification.liveness", c.Verification.Liveness, LivenessPromptMatch, LivenessRemote)
	oneOf("verification.scorer", c.Verification.Scorer, ScorerHeuristic, ScorerStatic)

	if c.Challenge.TTL <= 0 {
		errs = append(errs, errors.New("challenge.ttl must be positive"))
	}
	if c.Verification.ScoreThreshold < 0 || c.Verification.ScoreThreshold > 1 {
		errs = append(errs, errors.New("verification.score_threshold must be within [0,1]"))
	}
	if c.Verification.StaticScore < 0 || c.Verification.StaticScore > 1 {
		errs = append(errs, errors.New("verification.static_score must be within [0,1]"))
	}
	if c.Verification.Liveness == LivenessRemote {
		if c.Verification.RemoteURL == "" {
			errs = append(errs, errors.New("verification.remote_url is required for the remote liveness verifier"))
		}
		if c.Verification.ModelHash == "" {
			errs = append(errs, errors.New("verification.model_hash is required for the remote liveness verifier"))
		}
	}
	if c.Challenge.Backend == BackendRedis && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required for the redis challenge backend"))
	}
	if (c.Ledger.Backend == BackendPostgres || c.Audit.Backend == BackendPostgres) && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required for postgres backends"))
	}
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("auth.jwt_signing_key is required"))
	}
	if c.Proof.Secret == "" {
		errs = append(errs, errors.New("proof.secret is required"))
	}
	if c.Environment == "production" {
		if c.Auth.JWTSigningKey == Default().Auth.JWTSigningKey || c.Proof.Secret == Default().Proof.Secret {
			errs = append(errs, errors.New("development secrets must be overridden in production"))
		}
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether audit export is configured.
func (c *Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
