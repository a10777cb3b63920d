package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/weather-hedge-service/internal/adapter/funding"
	"github.com/couchcryptid/weather-hedge-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/weather-hedge-service/internal/adapter/kafka"
	"github.com/couchcryptid/weather-hedge-service/internal/adapter/oracle"
	"github.com/couchcryptid/weather-hedge-service/internal/adapter/sqlite"
	"github.com/couchcryptid/weather-hedge-service/internal/config"
	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/couchcryptid/weather-hedge-service/internal/observability"
	"github.com/couchcryptid/weather-hedge-service/internal/pipeline"
	"github.com/couchcryptid/weather-hedge-service/internal/projection"
	"github.com/couchcryptid/weather-hedge-service/internal/settlement"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Funding gateway (feature-flagged via FUNDING_URL).
	var funds settlement.FundingAdapter
	if cfg.FundingURL != "" {
		funds = funding.NewClient(cfg.FundingURL, cfg.FundingToken, cfg.FundingTimeout, metrics, logger)
		logger.Info("funding gateway enabled", "url", cfg.FundingURL, "timeout", cfg.FundingTimeout)
	} else {
		funds = funding.LoggingAdapter{Logger: logger}
		logger.Warn("funding gateway disabled, transfers are only logged")
	}

	// Oracle node dispatch (feature-flagged via ORACLE_URL).
	var dispatcher settlement.OracleDispatcher
	if cfg.OracleURL != "" {
		dispatcher = oracle.NewClient(cfg.OracleURL, cfg.OracleToken, cfg.OracleTimeout, metrics, logger)
		logger.Info("oracle dispatch enabled", "url", cfg.OracleURL, "timeout", cfg.OracleTimeout)
	} else {
		logger.Info("oracle dispatch disabled, requests are announced on the event stream only")
	}

	engine := settlement.NewEngine(settlement.Options{
		MinValue:         cfg.MinPolicyAmount,
		DefaultDailyRate: cfg.DefaultDailyRate,
		Codec:            domain.ReadingCodec{Bias: cfg.TemperatureBias},
		Thresholds:       domain.Thresholds{Frost: cfg.FrostThreshold, Drought: cfg.DroughtThreshold},
		CallbackAddress:  cfg.CallbackURL,
		SettleTimeout:    cfg.SettleTimeout,
	}, funds, dispatcher, logger, metrics)

	if cfg.OracleConfigured() {
		if err := engine.SetOracleConfig(domain.OracleConfig{
			Address: cfg.OracleAddress,
			SpecID:  cfg.OracleSpecID,
			Fee:     cfg.OracleFee,
		}); err != nil {
			logger.Error("invalid oracle configuration", "error", err)
			os.Exit(1)
		}
	}

	writer := kafkaadapter.NewWriter(cfg, logger)
	fund := projection.NewFund(engine.Balance())
	sinks := pipeline.FanOut{writer, fund}
	var ready httpadapter.ReadyAll

	api := &httpadapter.API{
		Engine: engine,
		Fund:   fund,
		Logger: logger,
	}

	var journal *sqlite.Journal
	if cfg.JournalPath != "" {
		journal, err = sqlite.Open(cfg.JournalPath)
		if err != nil {
			logger.Error("failed to open event journal", "path", cfg.JournalPath, "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, journal)
		ready = append(ready, journal)
		api.Journal = journal
		logger.Info("event journal enabled", "path", cfg.JournalPath)
	}
	api.Publisher = sinks

	reader := kafkaadapter.NewReader(cfg, logger)
	p := pipeline.New(reader, pipeline.NewProcessor(engine, logger), sinks, logger, metrics, cfg.BatchSize)
	ready = append(ready, p)

	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, api, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start fulfillment pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := journal.Close(); err != nil {
		logger.Error("event journal close error", "error", err)
	}

	logger.Info("shutdown complete", "fund_balance", engine.Balance().String())
}
