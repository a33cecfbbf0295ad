package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) SetupTest() {
	// Keep the ambient environment from leaking into assertions.
	for _, key := range []string{
		"POPAI_CONFIG", "POPAI_ENV", "CHALLENGE_BACKEND", "LEDGER_BACKEND", "AUDIT_BACKEND",
		"CHALLENGE_TTL", "SCORE_THRESHOLD", "TOKEN_PREFIX", "KAFKA_BROKERS", "DATABASE_URL",
		"REDIS_URL", "JWT_SIGNING_KEY", "PROOF_SECRET", "LIVENESS_VERIFIER",
		"LIVENESS_REMOTE_URL", "LIVENESS_MODEL_HASH",
	} {
		s.T().Setenv(key, "")
	}
}

func (s *ConfigSuite) writeFile(body string) string {
	path := filepath.Join(s.T().TempDir(), "popai.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(body), 0o600))
	return path
}

func (s *ConfigSuite) TestDefaults() {
	cfg, err := Load("")
	s.Require().NoError(err)

	s.Equal(":8080", cfg.Server.Addr)
	s.Equal(5*time.Minute, cfg.Challenge.TTL)
	s.Equal(0.5, cfg.Verification.ScoreThreshold)
	s.Equal("POP-", cfg.Ledger.TokenPrefix)
	s.Equal("PoPAI Verified Human", cfg.Ledger.CredentialName)
	s.Equal(BackendMemory, cfg.Challenge.Backend)
	s.False(cfg.KafkaEnabled())
}

func (s *ConfigSuite) TestFileThenEnvLayering() {
	path := s.writeFile(`
challenge:
  ttl: 2m
  backend: redis
redis:
  url: redis://localhost:6379/0
ledger:
  token_prefix: "T"
verification:
  score_threshold: 0.7
`)
	s.T().Setenv("SCORE_THRESHOLD", "0.8")
	s.T().Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load(path)
	s.Require().NoError(err)

	s.Equal(2*time.Minute, cfg.Challenge.TTL)
	s.Equal(BackendRedis, cfg.Challenge.Backend)
	s.Equal("T", cfg.Ledger.TokenPrefix)
	s.Equal(0.8, cfg.Verification.ScoreThreshold, "env overrides file")
	s.Equal([]string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	s.True(cfg.KafkaEnabled())
}

func (s *ConfigSuite) TestConfigPathFromEnv() {
	path := s.writeFile("ledger:\n  token_prefix: ENV-\n")
	s.T().Setenv("POPAI_CONFIG", path)

	cfg, err := Load("")
	s.Require().NoError(err)
	s.Equal("ENV-", cfg.Ledger.TokenPrefix)
}

func (s *ConfigSuite) TestValidationFailures() {
	tests := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{"unknown ledger backend", map[string]string{"LEDGER_BACKEND": "sqlite"}, "ledger.backend"},
		{"redis without url", map[string]string{"CHALLENGE_BACKEND": "redis"}, "redis.url"},
		{"postgres without dsn", map[string]string{"AUDIT_BACKEND": "postgres"}, "postgres.dsn"},
		{"threshold out of range", map[string]string{"SCORE_THRESHOLD": "1.5"}, "score_threshold"},
		{"malformed duration", map[string]string{"CHALLENGE_TTL": "soon"}, "CHALLENGE_TTL"},
		{"remote verifier without url", map[string]string{"LIVENESS_VERIFIER": "remote"}, "remote_url"},
		{"remote verifier without model hash", map[string]string{"LIVENESS_VERIFIER": "remote", "LIVENESS_REMOTE_URL": "http://infer:9000/v1/liveness"}, "model_hash"},
		{"production with dev secrets", map[string]string{"POPAI_ENV": "production"}, "development secrets"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			for k, v := range tt.env {
				s.T().Setenv(k, v)
			}
			_, err := Load("")
			s.Require().Error(err)
			s.Contains(err.Error(), tt.msg)
		})
	}
}

func (s *ConfigSuite) TestMissingFile() {
	_, err := Load(filepath.Join(s.T().TempDir(), "absent.yaml"))
	s.Require().Error(err)
	s.Contains(err.Error(), "read config")
}
