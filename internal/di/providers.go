package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"WalletWatch/internal/analytics/accuracy"
	"WalletWatch/internal/analytics/calibration"
	"WalletWatch/internal/analytics/clustering"
	"WalletWatch/internal/analytics/composite"
	"WalletWatch/internal/analytics/pattern"
	"WalletWatch/internal/analytics/ranking"
	"WalletWatch/internal/analytics/volumewindow"
	"WalletWatch/internal/analytics/weights"
	"WalletWatch/internal/analytics/whale"
	"WalletWatch/internal/domain/models"
	"WalletWatch/internal/domain/repository"
	mid "WalletWatch/internal/middleware"
	internalrepo "WalletWatch/internal/repository"
	"WalletWatch/internal/service/marketfeed"
	"WalletWatch/internal/usecase"
	pkgch "WalletWatch/pkg/clickhouse"
	"WalletWatch/pkg/config"
	pkgkafka "WalletWatch/pkg/kafka"
	"WalletWatch/pkg/metrics"
	"WalletWatch/pkg/server"
)

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS walletwatch",
		"CREATE TABLE IF NOT EXISTS walletwatch.trades (trade_id String, market_id String, market_category String, wallet String, side String, size_usd Float64, price Float64, ts DateTime, is_maker UInt8, pre_event UInt8) ENGINE=MergeTree ORDER BY (wallet, ts)",
		"CREATE TABLE IF NOT EXISTS walletwatch.alerts (ts DateTime, wallet String, score Float64, calibrated_score Float64, suspicion_level String, priority_score Float64, priority_level String, is_urgent UInt8, detail String) ENGINE=MergeTree ORDER BY (wallet, ts)",
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideAlertArchive creates ClickHouse alert archive repository.
func ProvideAlertArchive(chClient *pkgch.Client, cfg *config.Config) repository.AlertArchive {
	return internalrepo.NewClickHouseAlertArchive(chClient.DB(), cfg.ClickHouse.Database+".alerts")
}

// ProvideAlertPublisher creates Kafka alert publisher repository.
func ProvideAlertPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.AlertPublisher {
	return internalrepo.NewKafkaAlertPublisher(producer, cfg.Kafka.AlertsTopic)
}

// ProvideTradeHistory creates the archive-backed trade history.
func ProvideTradeHistory(chClient *pkgch.Client) repository.TradeHistory {
	return internalrepo.NewCHTradeHistory(chClient)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaTradesHandler registers handler for the trades topic.
func ProvideKafkaTradesHandler(agg *usecase.SurveillanceAggregator, metrics repository.Metrics, cfg *config.Config) *usecase.KafkaTradesHandler {
	return usecase.NewKafkaTradesHandler(cfg.Kafka.TradesTopic, agg, metrics)
}

// ProvideMarketStream creates the prediction-market WebSocket stream.
func ProvideMarketStream(cfg *config.Config) repository.MarketStream {
	return marketfeed.New(
		cfg.MarketFeed.APIKey,
		cfg.MarketFeed.WebSocketURL,
		cfg.MarketFeed.Markets,
		cfg.MarketFeed.ReconnectDelay,
		cfg.MarketFeed.PingInterval,
	)
}

// ProvideSurveillanceAggregator wires the analytics components.
func ProvideSurveillanceAggregator(
	metrics repository.Metrics,
	history repository.TradeHistory,
	cfg *config.Config,
) *usecase.SurveillanceAggregator {
	tracker := volumewindow.New(volumewindow.DefaultConfig())
	whales := whale.New(whale.DefaultConfig())
	clusters := clustering.New(clustering.DefaultConfig())
	patterns := pattern.New(pattern.DefaultConfig())
	acc := accuracy.New(accuracy.DefaultConfig())

	wcfg := weights.New(weights.DefaultConfig())
	if cfg.Analytics.WeightPreset != "" {
		wcfg.ApplyPreset(models.WeightPreset(strings.ToUpper(cfg.Analytics.WeightPreset)))
	}
	if cfg.Analytics.FlagThreshold > 0 {
		wcfg.SetFlagThreshold(cfg.Analytics.FlagThreshold)
	}
	if cfg.Analytics.InsiderThreshold > 0 {
		wcfg.SetInsiderThreshold(cfg.Analytics.InsiderThreshold)
	}

	calcfg := calibration.DefaultConfig()
	if cfg.Analytics.MinSamplesForCalibration > 0 {
		calcfg.MinSamplesForCalibration = cfg.Analytics.MinSamplesForCalibration
	}
	calibrator := calibration.New(calcfg)

	scorer := composite.New(wcfg, calibrator)
	ranker := ranking.New(ranking.DefaultConfig())

	agg := usecase.NewSurveillanceAggregator(
		tracker, whales, clusters, patterns, acc, wcfg, scorer, calibrator, ranker, metrics,
	)
	agg.SetTradeHistory(history)
	return agg
}

// ProvideAlertProcessor creates the alert processor use case.
func ProvideAlertProcessor(
	pub repository.AlertPublisher,
	archive repository.AlertArchive,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.AlertProcessor {
	return usecase.NewAlertProcessor(
		pub,
		archive,
		metrics,
		cfg.Archive.BatchSize,
		cfg.Archive.BatchTimeout,
	)
}

// ProvideTradeCollector creates trade collector use case.
func ProvideTradeCollector(
	stream repository.MarketStream,
	agg *usecase.SurveillanceAggregator,
	metrics repository.Metrics,
) *usecase.TradeCollector {
	// Build middleware pipeline between WebSocket and the aggregator
	pipe := mid.NewRealtimePipeline(usecase.IngestProc{Agg: agg}, metrics,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewTradeCollector(stream, agg, metrics, pipe)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	collector *usecase.TradeCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTradesHandler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	agg *usecase.SurveillanceAggregator,
	proc *usecase.AlertProcessor,
	m repository.Metrics,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NewHookChain(
			pkgkafka.MetricsHook{Rec: m, Op: "kafka_trades"},
		))
	}
	app := server.New(cfg, collector, consumer, kh, chClient)
	app.Agg = agg
	app.AlertProc = proc
	app.Metrics = m
	app.LogProducer = producer
	return app
}
