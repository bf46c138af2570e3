// Command grantd serves the goGrant engine over HTTP.
//
// Configuration is read from GRANT_* environment variables, optionally
// seeded from a .env file in the working directory. Without
// GRANT_DATABASE_URL accounts live in memory; without GRANT_SMTP_HOST mail is
// logged instead of sent.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goGrant "github.com/MrEthical07/goGrant"
	"github.com/MrEthical07/goGrant/eventsink"
	"github.com/MrEthical07/goGrant/mail"
	promexport "github.com/MrEthical07/goGrant/metrics/export/prometheus"
	"github.com/MrEthical07/goGrant/provider"
	"github.com/MrEthical07/goGrant/userstore"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "grantd:", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("grantd stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg serverConfig, logger *slog.Logger) error {
	// -------- redis --------
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	// -------- user store --------
	var store userstore.Store
	if cfg.DatabaseURL != "" {
		pg, err := userstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		store = pg
	} else {
		logger.Warn("GRANT_DATABASE_URL not set; accounts are kept in memory")
		store = userstore.NewMemory()
	}

	// -------- providers --------
	engineCfg := cfg.engineConfig()
	discovery := provider.NewDiscoveryCache(&http.Client{Timeout: 10 * time.Second})
	if err := engineCfg.ResolveDiscovery(ctx, discovery); err != nil {
		return err
	}

	builder := goGrant.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithLogger(logger)

	// -------- mail --------
	if cfg.SMTPHost != "" {
		mailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			FromName: cfg.ProductName,
		})
		if err != nil {
			return err
		}
		builder.WithMailer(mailer)
	}

	// -------- events --------
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := eventsink.NewKafka(eventsink.KafkaConfig{
			Brokers:           cfg.KafkaBrokers,
			Topic:             cfg.KafkaTopic,
			ClientID:          "grantd",
			RedactSessionKeys: true,
		}, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Warn("event sink close failed", "err", err)
			}
		}()
		builder.WithEventSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("engine build: %w", err)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: newRouter(&server{
			engine:  engine,
			logger:  logger,
			metrics: promexport.NewPrometheusExporter(engine).Handler(),
			ping:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("grantd listening", "addr", cfg.Addr, "providers", engine.Providers())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
