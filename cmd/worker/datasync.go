package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/config"
	"github.com/jmehdipour/data-moodboard/internal/datasource"
	"github.com/jmehdipour/data-moodboard/internal/db"
	"github.com/jmehdipour/data-moodboard/internal/integrations"
	"github.com/jmehdipour/data-moodboard/internal/kafka"
	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/jmehdipour/data-moodboard/internal/metrics"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/jmehdipour/data-moodboard/internal/secret"
	"github.com/jmehdipour/data-moodboard/internal/service/datasync"
	"github.com/jmehdipour/data-moodboard/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDataSyncCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "datasync",
		Short: "Run the data import worker (consumes sync requests from Kafka)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDataSync(cmd, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9101", "address for /metrics; empty disables it")
	return cmd
}

func runDataSync(cmd *cobra.Command, metricsAddr string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	if cfg.Encryption.Key == "" {
		return errors.New("encryption.key is required to read stored credentials")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) DB connection (MySQL)
	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOptsFrom(cfg.MySQL))
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	// 3) repositories (MySQL)
	connsRepo := repository.NewConnectionsRepository(dbx)
	tablesRepo := repository.NewDataTablesRepository(dbx)
	statesRepo := repository.NewOAuthStatesRepository(dbx)

	// 4) credentials: decrypt and refresh through the oauth registry
	box, err := secret.NewBox(cfg.Encryption.Key)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}
	registry := integrations.NewRegistry(cfg.OAuth, cfg.HTTP.PublicURL)
	tokens := integrations.NewService(registry, statesRepo, connsRepo, box, cfg.OAuth.StateTTL)

	// 5) fetchers → dispatcher
	timeout := time.Duration(cfg.DataSync.TimeoutMs) * time.Millisecond
	fetchers := []datasource.Fetcher{
		datasource.NewSheets(timeout),
		datasource.NewGoogleAds(registry.DeveloperToken(model.ProviderGoogleAds), timeout),
		datasource.NewBigQuery(timeout),
		datasource.NewShopify(timeout),
		datasource.NewStripe(nil),
	}
	disp := datasource.NewDispatcher(
		fetchers,
		cfg.DataSync.MaxAttempts,
		cfg.DataSync.MaxRows,
		cfg.DataSync.Breaker.FailThreshold,
		time.Duration(cfg.DataSync.Breaker.OpenForMs)*time.Millisecond,
	)

	// 6) kafka consumer
	topic := cfg.DataSync.Topic
	if topic == "" {
		topic = datasync.DefaultTopic
	}
	kc := kafka.ConfigFrom(cfg.Kafka, topic)
	if kc.GroupID == "" {
		kc.GroupID = "moodboard"
	}
	kc.GroupID += "-datasync"
	consumer := kafka.NewConsumerFromConfig(kc)
	defer consumer.Close()

	w := worker.NewDataSync(consumer, connsRepo, tablesRepo, tokens, disp, cfg.DataSync.WorkerCount, disp.JobTimeout(timeout))

	// 7) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Warn("metrics server exited", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	logger.Log.Info("datasync worker started",
		zap.String("topic", kc.Topic), zap.String("group", kc.GroupID), zap.Int("workers", w.Workers), zap.Duration("job_timeout", w.JobTimeout))

	return w.Run(ctx)
}
