package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"example.com/trainingsync/internal/api"
	"example.com/trainingsync/internal/auth"
	"example.com/trainingsync/internal/config"
	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/logging"
	"example.com/trainingsync/internal/outbox"
	"example.com/trainingsync/internal/persistence/postgres"
	"example.com/trainingsync/internal/persistence/redis"
	"example.com/trainingsync/internal/provider/strava"
	httptransport "example.com/trainingsync/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Must("development").Fatal("invalid configuration", zap.Error(err))
	}
	logger := logging.Must(cfg.LogMode)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	redisOpts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("invalid redis url", zap.Error(err))
	}
	redisClient := goredis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable at startup", zap.Error(err))
	}

	repo := postgres.NewRepository(pool)
	dialogues := redis.NewDialogueStore(redisClient, cfg.Dialogue.KeyPrefix, cfg.Dialogue.TTL)
	authStates := redis.NewAuthStateStore(redisClient, "", cfg.Engine.AuthStateTTL)
	provider := strava.NewClient(strava.Config{
		ClientID:     cfg.Provider.ClientID,
		ClientSecret: cfg.Provider.ClientSecret,
		RedirectURL:  cfg.Provider.RedirectURL,
		AuthURL:      cfg.Provider.AuthURL,
		TokenURL:     cfg.Provider.TokenURL,
		APIBaseURL:   cfg.Provider.APIBaseURL,
		Scopes:       cfg.Provider.Scopes,
		Timeout:      cfg.Provider.Timeout,
	})

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL, cfg.SchemaRegistryTimeout)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)

	go dispatcher.Start(ctx)

	service := domain.NewService(domain.Dependencies{
		Credentials: repo,
		Activities:  repo,
		Feedback:    repo,
		Plans:       repo,
		Dialogues:   dialogues,
		AuthStates:  authStates,
		Provider:    provider,
	}, domain.Options{
		RefreshBuffer:      cfg.Engine.RefreshBuffer,
		PageSize:           cfg.Engine.PageSize,
		MatchWindow:        cfg.Engine.MatchWindow,
		MatchCandidates:    cfg.Engine.MatchCandidates,
		MatchScanLimit:     cfg.Engine.MatchScanLimit,
		DialogueCloseDelay: cfg.Dialogue.CloseDelay,
		SharedTimeout:      cfg.Engine.SharedTimeout,
	}, domain.WithLogger(logger.Named("domain")))

	handler := api.NewHandler(service, logger.Named("api"))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.PublicPaths("/healthz", "/metrics"))

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), httptransport.Chain(mux,
		httptransport.RequestLogger(logger.Named("http")),
		httptransport.CORS(cfg.CORSOrigins),
		authMiddleware.Wrap,
	))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("trainingsync api listening", zap.String("address", cfg.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	dispatcher.Wait()
}
