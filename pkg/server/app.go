package server

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"WalletWatch/internal/domain/repository"
	"WalletWatch/internal/handler/api"
	icache "WalletWatch/internal/service/cache"
	svcmetrics "WalletWatch/internal/service/metrics"
	"WalletWatch/internal/service/ratelimit"
	"WalletWatch/internal/services/marketapi"
	"WalletWatch/internal/usecase"
	pkgcache "WalletWatch/pkg/cache"
	pkgch "WalletWatch/pkg/clickhouse"
	"WalletWatch/pkg/config"
	xhttp "WalletWatch/pkg/http"
	pkgkafka "WalletWatch/pkg/kafka"
	applogger "WalletWatch/pkg/logger"
	"WalletWatch/pkg/queue"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	collector   *usecase.TradeCollector
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	chClient    *pkgch.Client
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler

	Agg         *usecase.SurveillanceAggregator
	AlertProc   *usecase.AlertProcessor
	Metrics     repository.Metrics
	LogProducer *pkgkafka.Producer

	recalQueue *queue.RedisQueue
	recalPub   *queue.RedisQueue
	poller     *usecase.ResolutionPoller
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	collector *usecase.TradeCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		chClient:  chClient,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// handlerGroup composes several route registrars onto one Echo server.
type handlerGroup []xhttp.Handler

func (g handlerGroup) RegisterRoutes(e *echo.Echo) {
	for _, h := range g {
		h.RegisterRoutes(e)
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// init app logger (console info by default)
	l, _ := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})

	// Aggregate repeated error logs onto a Kafka topic when configured
	if a.cfg.Kafka.LogsTopic != "" && a.LogProducer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   time.Minute,
			CountThreshold: 200,
			Topic:          a.cfg.Kafka.LogsTopic,
			Publisher:      kafkaLogSink{producer: a.LogProducer},
		})
		defer l.RemoveCollector()
	}

	if a.cfg.Metrics.Enabled {
		svcmetrics.Register()
	}

	// Setup Echo HTTP server using pkg/http and register routes via handlers
	var httpHandler xhttp.Handler
	if a.httpHandler != nil {
		httpHandler = a.httpHandler
	} else if a.Agg != nil {
		var bc icache.BytesCache
		if a.cfg.Analytics.Redis.Enabled {
			bc = icache.NewRedisCache(icache.RedisConfig{
				Addr:     a.cfg.Analytics.Redis.Addr,
				Password: a.cfg.Analytics.Redis.Password,
				DB:       a.cfg.Analytics.Redis.DB,
			})
		} else {
			bc = icache.NewTTLCache()
		}

		se := api.NewSurveillanceEchoHandler(l, a.Agg,
			a.Agg.Accuracy(), a.Agg.Calibrator(), a.Agg.Weights(), a.Agg.Clusters(), a.Agg.Ranker())
		cached := api.NewSurveillanceHandler(a.Agg, bc, ratelimit.New(), l)
		httpHandler = handlerGroup{se, cached}
	}

	a.httpServer = xhttp.NewServer(httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(l, time.Second),
	)

	// Route flagged evaluations into the alert pipeline
	if a.Agg != nil && a.AlertProc != nil {
		a.Agg.SetEvaluationSink(func(ctx context.Context, ev *usecase.Evaluation) {
			if err := a.AlertProc.Process(ctx, ev); err != nil {
				l.Warn("alert processing error", applogger.Error(err))
			}
		})
	}

	// Start collector
	go func() {
		if err := a.collector.Start(ctx); err != nil {
			l.Error("collector error", applogger.Error(err))
		}
	}()
	l.Info("collector started", applogger.Strings("markets", a.cfg.MarketFeed.Markets))

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start the recalibration queue when Redis is configured
	if a.cfg.Analytics.Redis.Enabled && a.Agg != nil {
		a.startRecalibration(ctx, l)
		a.attachEvaluationCache(l)
	}

	// Start the market resolution poller when a REST API is configured
	if a.cfg.MarketFeed.RestAPIURL != "" && a.Agg != nil {
		provider := marketapi.NewHTTPResolutionProvider(a.cfg)
		a.poller = usecase.NewResolutionPoller(provider, a.Agg.Accuracy(), a.Metrics, l, a.cfg.MarketFeed.ResolutionPoll)
		a.poller.Start(ctx)
		l.Info("resolution poller started")
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// kafkaLogSink adapts the Kafka producer to the log collector's publisher.
type kafkaLogSink struct {
	producer *pkgkafka.Producer
}

func (s kafkaLogSink) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return s.producer.Publish(ctx, topic, nil, payload)
}

// attachEvaluationCache backs the aggregator with a layered memory+Redis
// evaluation cache shared across instances.
func (a *App) attachEvaluationCache(l *applogger.Logger) {
	host, port := splitHostPort(a.cfg.Analytics.Redis.Addr)
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(a.cfg.Analytics.Redis.Password),
		pkgcache.WithRedisDB(a.cfg.Analytics.Redis.DB),
	)
	if err != nil {
		l.Warn("evaluation cache unavailable", applogger.Error(err))
		return
	}
	a.Agg.SetEvaluationCache(pkgcache.NewLayeredCache(rc), 30*time.Second)
	l.Info("evaluation cache attached", applogger.String("addr", a.cfg.Analytics.Redis.Addr))
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}

// startRecalibration runs the calibration job off the hot path on a Redis
// queue and enqueues a pass on the configured interval.
func (a *App) startRecalibration(ctx context.Context, l *applogger.Logger) {
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Analytics.Redis.Addr,
		Password: a.cfg.Analytics.Redis.Password,
		DB:       a.cfg.Analytics.Redis.DB,
	})

	job := usecase.NewRecalibrationJob(a.Agg.Calibrator(), a.Metrics, l)
	a.recalQueue = queue.NewRedisConsumer(l, &queue.QueueConfig{Workers: 1, RetryLimit: 2}, client, []queue.Job{job})
	if err := a.recalQueue.Start(); err != nil {
		l.Error("recalibration queue start error", applogger.Error(err))
		return
	}
	a.recalPub = queue.NewRedisPublisher(l, client)

	every := a.cfg.Analytics.RecalibrateEvery
	if every <= 0 {
		every = 30 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := a.recalPub.PublishMessage(ctx, usecase.RecalibrationJobType,
					usecase.RecalibrationPayload{Reason: "scheduled"})
				if err != nil {
					l.Warn("recalibration enqueue error", applogger.Error(err))
				}
			}
		}
	}()
	l.Info("recalibration scheduler started")
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	// best-effort logging via stdout
	l, err := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	if err != nil {
		log.Printf("failed to create logger: %v", err)
		return err
	}
	l.Info("shutting down...")

	// Stop collector (pipeline + stream)
	if err := a.collector.Shutdown(ctx); err != nil {
		l.Warn("collector stop error", applogger.Error(err))
	}

	// Shutdown HTTP server
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	// Stop recalibration queue
	if a.recalQueue != nil {
		if err := a.recalQueue.Stop(shutdownCtx); err != nil {
			l.Warn("recalibration queue stop error", applogger.Error(err))
		}
	}

	// Close infrastructure clients
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	// Stop consumer
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Close alert processor resources (publisher/archive)
	if a.AlertProc != nil {
		a.AlertProc.Close()
	}

	l.Info("shutdown complete")
	return nil
}
