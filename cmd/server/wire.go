package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"popai/internal/audit"
	"popai/internal/audit/export"
	audithandler "popai/internal/audit/handler"
	auditmetrics "popai/internal/audit/metrics"
	auditmemory "popai/internal/audit/store/memory"
	auditpostgres "popai/internal/audit/store/postgres"
	challengehandler "popai/internal/challenge/handler"
	challengemetrics "popai/internal/challenge/metrics"
	challengeservice "popai/internal/challenge/service"
	challengememory "popai/internal/challenge/store/memory"
	challengeredis "popai/internal/challenge/store/redis"
	credentialhandler "popai/internal/credential/handler"
	credentialmetrics "popai/internal/credential/metrics"
	credentialmodels "popai/internal/credential/models"
	credentialservice "popai/internal/credential/service"
	credentialdynamo "popai/internal/credential/store/dynamodb"
	credentialmemory "popai/internal/credential/store/memory"
	credentialpostgres "popai/internal/credential/store/postgres"
	jwttoken "popai/internal/jwt_token"
	"popai/internal/notify"
	platformaws "popai/internal/platform/aws"
	"popai/internal/platform/config"
	"popai/internal/platform/metrics"
	platformpg "popai/internal/platform/postgres"
	platformredis "popai/internal/platform/redis"
	"popai/internal/proof/generator"
	proofhandler "popai/internal/proof/handler"
	proofservice "popai/internal/proof/service"
	"popai/internal/randomness"
	httptransport "popai/internal/transport/http"
	"popai/internal/verification/adapters/liveness"
	"popai/internal/verification/adapters/scoring"
	"popai/internal/verification/engine"
	verificationhandler "popai/internal/verification/handler"
	verificationmetrics "popai/internal/verification/metrics"
	"popai/internal/verification/policy"
	"popai/pkg/platform/circuit"
	authmw "popai/pkg/platform/middleware/auth"
	"popai/pkg/platform/middleware/ratelimit"
)

// app is the assembled service: its router, long-running tasks, and the
// resources to release on exit.
type app struct {
	router     http.Handler
	background []func(context.Context)
	closers    []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// infra holds lazily opened backing services shared by several stores.
type infra struct {
	cfg    *config.Config
	log    *slog.Logger
	app    *app
	db     *sql.DB
	redis  *platformredis.Client
	awsCfg *awssdk.Config
	checks map[string]httptransport.HealthCheck
}

func (in *infra) postgres(ctx context.Context) (*sql.DB, error) {
	if in.db != nil {
		return in.db, nil
	}
	db, err := platformpg.Open(ctx, in.cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if in.cfg.Postgres.AutoMigrate {
		if err := platformpg.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	in.db = db
	in.app.closers = append(in.app.closers, func() { _ = db.Close() })
	in.checks["postgres"] = db.PingContext
	return db, nil
}

func (in *infra) redisClient(ctx context.Context) (*platformredis.Client, error) {
	if in.redis != nil {
		return in.redis, nil
	}
	client, err := platformredis.New(ctx, in.cfg.Redis)
	if err != nil {
		return nil, err
	}
	in.redis = client
	in.app.closers = append(in.app.closers, func() { _ = client.Close() })
	in.checks["redis"] = client.Health
	return client, nil
}

func (in *infra) aws(ctx context.Context) (awssdk.Config, error) {
	if in.awsCfg != nil {
		return *in.awsCfg, nil
	}
	c, err := platformaws.LoadConfig(ctx, in.cfg.AWS)
	if err != nil {
		return awssdk.Config{}, err
	}
	in.awsCfg = &c
	return c, nil
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	in := &infra{cfg: cfg, log: log, app: a, checks: map[string]httptransport.HealthCheck{}}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	challenges, err := buildChallenges(ctx, in, reg)
	if err != nil {
		a.close()
		return nil, err
	}
	credentials, err := buildCredentials(ctx, in, reg)
	if err != nil {
		a.close()
		return nil, err
	}
	auditLog, err := buildAudit(ctx, in, reg)
	if err != nil {
		a.close()
		return nil, err
	}

	verifier := buildLiveness(cfg.Verification, log)
	var scorer engine.BehavioralScorer = scoring.NewHeuristicScorer()
	if cfg.Verification.Scorer == config.ScorerStatic {
		scorer = scoring.NewStaticScorer(cfg.Verification.StaticScore)
	}
	eng := engine.New(challenges, verifier, scorer, credentials, auditLog,
		engine.WithPolicy(policy.NewThreshold(cfg.Verification.ScoreThreshold)),
		engine.WithLogger(log),
		engine.WithMetrics(verificationmetrics.New(reg)),
	)

	proofGen, err := generator.NewSignedProofGenerator(cfg.Proof.Secret)
	if err != nil {
		a.close()
		return nil, err
	}
	proofs := proofservice.New(proofGen, eng, log)

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	requireAuth := authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log)

	issueLimiter := ratelimit.New(rate.Limit(cfg.Challenge.IssueRate), cfg.Challenge.IssueBurst)
	a.background = append(a.background, func(ctx context.Context) { issueLimiter.Run(ctx, time.Minute) })

	credentialH := credentialhandler.New(credentials, log)
	a.router = httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Server:         cfg.Server,
		Auth:           requireAuth,
		Metrics:        metrics.New(reg),
		MetricsHandler: metrics.Handler(reg),
		HealthChecks:   in.checks,
		Public: []httptransport.PublicRoutes{
			credentialH,
			audithandler.New(auditLog, log),
		},
		Protected: []httptransport.Routes{
			challengehandler.New(challenges, log, issueLimiter.Middleware(ratelimit.ByIdentity, log)),
			verificationhandler.New(eng, log),
			credentialH,
			proofhandler.New(proofs, log),
		},
	})
	return a, nil
}

func buildChallenges(ctx context.Context, in *infra, reg prometheus.Registerer) (*challengeservice.Service, error) {
	cfg := in.cfg.Challenge
	var store challengeservice.Store
	switch cfg.Backend {
	case config.BackendRedis:
		client, err := in.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, errors.New("redis challenge backend selected without redis.url")
		}
		store = challengeredis.New(client.Client, challengeredis.WithKeyPrefix(in.cfg.Redis.KeyPrefix))
	default:
		store = challengememory.New()
	}

	svc := challengeservice.New(store, randomness.NewNonceAdapter(randomness.NewCryptoSource()),
		challengeservice.WithTTL(cfg.TTL),
		challengeservice.WithLogger(in.log),
		challengeservice.WithMetrics(challengemetrics.New(reg)),
	)
	if cfg.Backend == config.BackendMemory {
		// Redis expires keys itself.
		in.app.background = append(in.app.background, func(ctx context.Context) { svc.RunSweeper(ctx, cfg.SweepInterval) })
	}
	return svc, nil
}

func buildCredentials(ctx context.Context, in *infra, reg prometheus.Registerer) (*credentialservice.Service, error) {
	cfg := in.cfg.Ledger
	template := credentialmodels.Template{
		TokenPrefix: cfg.TokenPrefix,
		Name:        cfg.CredentialName,
		Description: cfg.CredentialDescription,
	}

	var store credentialservice.Store
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := in.postgres(ctx)
		if err != nil {
			return nil, err
		}
		store = credentialpostgres.New(db, template)
	case config.BackendDynamoDB:
		awsCfg, err := in.aws(ctx)
		if err != nil {
			return nil, err
		}
		ds := credentialdynamo.New(platformaws.NewDynamoDB(awsCfg, in.cfg.AWS), cfg.DynamoTable, template)
		if err := ds.Bootstrap(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap dynamodb ledger: %w", err)
		}
		store = ds
	default:
		store = credentialmemory.New(template)
	}

	opts := []credentialservice.Option{
		credentialservice.WithLogger(in.log),
		credentialservice.WithMetrics(credentialmetrics.New(reg)),
	}
	if arn := in.cfg.Notify.SNSTopicARN; arn != "" {
		awsCfg, err := in.aws(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, credentialservice.WithNotifier(
			notify.NewSNSPublisher(platformaws.NewSNS(awsCfg, in.cfg.AWS), arn),
		))
	}
	return credentialservice.New(store, opts...), nil
}

func buildAudit(ctx context.Context, in *infra, reg prometheus.Registerer) (*audit.Service, error) {
	var store audit.Store
	switch in.cfg.Audit.Backend {
	case config.BackendPostgres:
		db, err := in.postgres(ctx)
		if err != nil {
			return nil, err
		}
		store = auditpostgres.New(db)
	default:
		store = auditmemory.NewInMemoryStore()
	}

	m := auditmetrics.New(reg)
	opts := []audit.Option{audit.WithLogger(in.log), audit.WithMetrics(m)}

	if in.cfg.KafkaEnabled() {
		k := in.cfg.Kafka
		pub, err := export.NewKafkaPublisher(k.Brokers, k.Topic)
		if err != nil {
			return nil, err
		}
		in.app.closers = append(in.app.closers, pub.Close)
		if err := pub.EnsureTopic(ctx, k.Partitions, k.ReplicationFactor); err != nil {
			return nil, err
		}
		worker := export.NewWorker(export.NewRingBuffer(k.BufferSize), pub,
			export.WithLogger(in.log),
			export.WithMetrics(m),
			export.WithBreaker(circuit.New("audit-export")),
		)
		in.app.background = append(in.app.background, func(ctx context.Context) { _ = worker.Run(ctx) })
		opts = append(opts, audit.WithExporter(worker))
	}
	return audit.NewService(store, opts...), nil
}

func buildLiveness(cfg config.Verification, log *slog.Logger) engine.LivenessVerifier {
	if cfg.Liveness == config.LivenessRemote {
		return liveness.NewRemoteVerifier(cfg.RemoteURL, cfg.ModelHash, cfg.RemoteTimeout,
			liveness.WithLogger(log),
			liveness.WithBreaker(circuit.New("liveness-remote")),
		)
	}
	return liveness.NewPromptMatchVerifier(cfg.ModelHash)
}
