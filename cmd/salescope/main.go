package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/salescope/salescope/internal/analysis"
	"github.com/salescope/salescope/internal/auth"
	"github.com/salescope/salescope/internal/config"
	"github.com/salescope/salescope/internal/health"
	"github.com/salescope/salescope/internal/httpserver"
	"github.com/salescope/salescope/internal/llm"
	"github.com/salescope/salescope/internal/logging"
	"github.com/salescope/salescope/internal/reportstore"
	"github.com/salescope/salescope/internal/reportstore/dynamo"
	sqlitestore "github.com/salescope/salescope/internal/reportstore/sqlite"
	"github.com/salescope/salescope/internal/version"
	"github.com/salescope/salescope/internal/warehouse"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("configuration error")
	}

	log, logCloser, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("logging setup failed")
	}
	defer logCloser.Close()
	log.Info().
		Str("env", cfg.Environment).
		Str("addr", cfg.ListenAddr).
		Str("build", version.FullInfo()).
		Msg("starting salescope")

	db, err := sql.Open("pgx", cfg.WarehouseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open warehouse connection")
	}
	defer db.Close()
	wh := warehouse.New(db, log)

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load AWS configuration")
	}

	var reports reportstore.Store
	switch cfg.ReportBackend {
	case "dynamo":
		reports = dynamo.New(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
		log.Info().Str("table", cfg.DynamoTable).Msg("using DynamoDB report store")
	default:
		store, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open report store")
		}
		defer store.Close()
		reports = store
		log.Info().Str("path", cfg.SQLitePath).Msg("using SQLite report store")
	}

	catalog := llm.DefaultCatalog()
	if cfg.ModelCatalogFile != "" {
		catalog, err = llm.LoadCatalog(cfg.ModelCatalogFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.ModelCatalogFile).Msg("failed to load model catalog")
		}
	}
	invoker := llm.NewBedrock(bedrockruntime.NewFromConfig(awsCfg), catalog, llm.BedrockConfig{
		MaxTokens:      cfg.MaxTokens,
		ThinkingBudget: cfg.ThinkingBudget,
	}, log)

	authMgr, err := auth.NewManager(cfg.JWTSecret, time.Duration(cfg.JWTTTLHours)*time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("auth setup failed")
	}

	reportTTL := time.Duration(cfg.ReportTTLDays) * 24 * time.Hour
	svc := analysis.NewService(wh, invoker, reports, cfg.DefaultModelID, reportTTL, log)
	relay := analysis.NewRelay(wh, invoker, reports, cfg.DefaultModelID, reportTTL, log)

	checker := health.NewChecker()
	checker.Register("warehouse", wh.Ping)

	server := httpserver.New(httpserver.Config{
		Warehouse:      wh,
		Analysis:       svc,
		Relay:          relay,
		Auth:           authMgr,
		Health:         checker,
		AllowedOrigins: cfg.AllowedOrigins,
	}, log)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}
