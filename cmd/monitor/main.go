// Package main provides the live transaction anomaly monitor.
// It tails a growing log file (or receives shipped lines over WebSocket),
// runs the detection lifecycle, and writes anomaly records to the
// configured sinks.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"txn-sentinel/internal/alert"
	"txn-sentinel/internal/domain"
	"txn-sentinel/internal/ingest"
	"txn-sentinel/internal/monitor"
	"txn-sentinel/internal/observability"
	"txn-sentinel/internal/storage"
	chstore "txn-sentinel/internal/storage/clickhouse"
	"txn-sentinel/internal/storage/jsonl"
	"txn-sentinel/internal/storage/migrations"
	pgstore "txn-sentinel/internal/storage/postgres"
)

func main() {
	logFile := flag.String("log-file", "", "Transaction log file to tail")
	wsEndpoint := flag.String("ws-endpoint", "", "WebSocket endpoint shipping raw lines (alternative to -log-file)")
	anomalyFile := flag.String("anomaly-file", "", "Anomaly record NDJSON output (default <log-file>.anomalies.jsonl)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "Optional PostgreSQL sink DSN")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "Optional ClickHouse sink DSN")
	minWarmup := flag.Int("min-warmup", monitor.DefaultMinWarmup, "Parsed events required before initial training")
	retrainEvery := flag.Int("retrain-every", monitor.DefaultRetrainEvery, "Events between retrains")
	bufferCap := flag.Int("buffer-cap", monitor.DefaultBufferCap, "Rolling training buffer capacity (lines)")
	windowDur := flag.Duration("window", monitor.DefaultWindow, "Sliding window duration for behavioral rules")
	pollInterval := flag.Duration("poll-interval", 1*time.Second, "Log file poll interval")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	logger := log.New(os.Stdout, "[monitor] ", log.LstdFlags)

	if *logFile == "" && *wsEndpoint == "" {
		logger.Fatal("either -log-file or -ws-endpoint is required")
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Sinks: NDJSON file always (unless only remote sinks are wanted),
	// plus optional PostgreSQL and ClickHouse.
	var sinks []storage.AnomalyStore

	path := *anomalyFile
	if path == "" && *logFile != "" {
		path = *logFile + ".anomalies.jsonl"
	}
	if path != "" {
		fileStore, err := jsonl.NewAnomalyStore(path)
		if err != nil {
			logger.Fatalf("Open anomaly file: %v", err)
		}
		defer fileStore.Close()
		sinks = append(sinks, fileStore)
		logger.Printf("Writing anomaly records to %s", path)
	}

	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("Connect to postgres: %v", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("Postgres migrations: %v", err)
		}
		sinks = append(sinks, pgstore.NewAnomalyStore(pool))
		logger.Printf("Writing anomaly records to PostgreSQL")
	}

	if *clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("Connect to clickhouse: %v", err)
		}
		defer conn.Close()
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			logger.Fatalf("Clickhouse migrations: %v", err)
		}
		sinks = append(sinks, chstore.NewAnomalyStore(conn))
		logger.Printf("Writing anomaly records to ClickHouse")
	}

	if len(sinks) == 0 {
		logger.Fatal("No anomaly sink configured. Use -anomaly-file, -postgres-dsn, or -clickhouse-dsn")
	}

	// Alerting: Telegram when configured, otherwise log-only.
	var alerter alert.Alerter = alert.NewLogAlerter(logger)
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		alerter = alert.NewTelegramAlerter(token, os.Getenv("TELEGRAM_CHAT_ID"))
		logger.Printf("Telegram alerting enabled")
	}

	var source ingest.LineSource
	if *wsEndpoint != "" {
		source = ingest.NewWSLineSource(*wsEndpoint, nil, logger)
		logger.Printf("Receiving lines from %s", *wsEndpoint)
	} else {
		source = ingest.NewTailSource(ingest.TailOptions{
			Path:         *logFile,
			PollInterval: *pollInterval,
			Logger:       logger,
		})
		logger.Printf("Tailing %s", *logFile)
	}

	controller := monitor.New(monitor.Options{
		Store:        fanout(sinks),
		Alerter:      alerter,
		Logger:       logger,
		MinWarmup:    *minWarmup,
		RetrainEvery: *retrainEvery,
		BufferCap:    *bufferCap,
		Window:       *windowDur,
	})

	if err := controller.Run(ctx, source); err != nil && err != context.Canceled {
		logger.Fatalf("Monitor stopped: %v", err)
	}
	logger.Printf("Shutdown complete")
}

// fanout returns the single sink, or a store that appends to all of them.
func fanout(sinks []storage.AnomalyStore) storage.AnomalyStore {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &fanoutStore{sinks: sinks}
}

// fanoutStore appends to every sink and reads from the first. A failed
// append on one sink does not stop the others; the last error wins.
type fanoutStore struct {
	sinks []storage.AnomalyStore
}

var _ storage.AnomalyStore = (*fanoutStore)(nil)

func (f *fanoutStore) Append(ctx context.Context, rec *domain.AnomalyRecord) error {
	var lastErr error
	for _, s := range f.sinks {
		if err := s.Append(ctx, rec); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (f *fanoutStore) GetByMerchant(ctx context.Context, merchant string) ([]*domain.AnomalyRecord, error) {
	return f.sinks[0].GetByMerchant(ctx, merchant)
}

func (f *fanoutStore) GetByTimeRange(ctx context.Context, start, end string) ([]*domain.AnomalyRecord, error) {
	return f.sinks[0].GetByTimeRange(ctx, start, end)
}

func (f *fanoutStore) CountByType(ctx context.Context, label string) (int, error) {
	return f.sinks[0].CountByType(ctx, label)
}
