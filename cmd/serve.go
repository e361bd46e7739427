package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/ai"
	"github.com/jmehdipour/data-moodboard/internal/db"
	httpSrv "github.com/jmehdipour/data-moodboard/internal/http"
	"github.com/jmehdipour/data-moodboard/internal/kafka"
	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/jmehdipour/data-moodboard/internal/metrics"
	"github.com/jmehdipour/data-moodboard/internal/storage"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		metrics.MustRegister(prometheus.DefaultRegisterer)

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		// redis and clickhouse are optional: the limiter falls back to local
		// counters and admin metrics report activity_error
		var redisClient *redis.Client
		if cfg.Redis.Addr != "" {
			redisClient, err = db.NewRedisClient(db.RedisOpts{
				Addr:        cfg.Redis.Addr,
				Password:    cfg.Redis.Password,
				DB:          cfg.Redis.DB,
				DialTimeout: cfg.Redis.DialTimeout,
			})
			if err != nil {
				logger.Log.Warn("redis unavailable, rate limits are per process", zap.Error(err))
				redisClient = nil
			} else {
				defer func() { _ = redisClient.Close() }()
			}
		}

		var chDB *sqlx.DB
		if cfg.ClickHouse.DSN != "" {
			chDB, err = db.NewClickHouseConnection(db.ClickHouseOpts{
				DSN:             cfg.ClickHouse.DSN,
				MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
				MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
				ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
				ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
				PingTimeout:     cfg.ClickHouse.PingTimeout,
			})
			if err != nil {
				logger.Log.Warn("clickhouse unavailable, admin activity disabled", zap.Error(err))
				chDB = nil
			} else {
				defer func() { _ = chDB.Close() }()
			}
		}

		minioClient, err := db.NewMinIOClient(db.MinIOOpts{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("minio connect: %w", err)
		}

		openai := ai.NewOpenAIClient(cfg.OpenAI)
		ext := httpSrv.Externals{
			LLM:        openai,
			Images:     openai,
			ImageStore: storage.NewImageStore(minioClient, cfg.MinIO.Bucket, cfg.MinIO.PublicBaseURL),
		}
		if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.ActivityTopic != "" {
			producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ActivityTopic)
			defer func() { _ = producer.Close() }()
			ext.Activity = producer
		}

		server, err := httpSrv.NewServer(cfg, mysqlDB, chDB, redisClient, ext)
		if err != nil {
			return fmt.Errorf("build server: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go server.RunHousekeeping(ctx, 5*time.Minute)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		select {
		case <-ctx.Done():
			logger.Log.Info("signal received, shutting down")
		case err := <-errCh:
			if err != nil {
				logger.Log.Error("http server exited", zap.Error(err))
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)

		return nil
	},
}
