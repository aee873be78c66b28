package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nhle/bizops/internal/api"
	"github.com/nhle/bizops/internal/credential"
	"github.com/nhle/bizops/internal/mail"
	"github.com/nhle/bizops/internal/notify"
	"github.com/nhle/bizops/internal/reminder"
	"github.com/nhle/bizops/internal/scheduler"
)

// pipeline is the reminder engine and everything it publishes to.
type pipeline struct {
	registry *prometheus.Registry
	hub      *notify.Hub
	engine   *reminder.Engine
	locker   scheduler.Locker
	redis    *redis.Client
}

func buildPipeline(ctx context.Context, e *env) (*pipeline, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var secrets mail.SecretSource
	if vault, err := credential.Open(); err != nil {
		e.logger.Warn("keyring unavailable, using config password only", zap.Error(err))
	} else {
		secrets = vault
	}
	ch, err := mail.New(e.cfg.Mail, secrets, e.logger)
	if err != nil {
		return nil, err
	}

	hub := notify.NewHub(e.cfg.HTTP.CORSOrigins, e.logger)
	engine := reminder.New(e.store, ch, hub, e.logger,
		reminder.NewMetrics(reg), reminder.OptionsFromConfig(e.cfg.Reminders))

	// Leases outlast the longest allowed run.
	leaseTTL := time.Duration(e.cfg.Reminders.ScanTimeoutSec)*time.Second + 5*time.Minute
	p := &pipeline{
		registry: reg,
		hub:      hub,
		engine:   engine,
		locker:   scheduler.NewLeaseLocker(e.store, leaseTTL, e.logger),
	}

	if rc := e.cfg.Redis; rc.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connecting to redis %s: %w", rc.Addr, err)
		}
		ttl := time.Duration(rc.LockTTLSec) * time.Second
		p.redis = client
		p.locker = scheduler.NewRedisLocker(client, ttl, e.logger)
		e.logger.Info("using redis job locks", zap.String("addr", rc.Addr), zap.Duration("ttl", ttl))
	}

	return p, nil
}

func (p *pipeline) close() {
	if p.redis != nil {
		_ = p.redis.Close()
	}
}

func serveCmd(args []string) error {
	fs, cfgPath := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := loadEnv(*cfgPath)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, e)
	if err != nil {
		return err
	}
	defer p.close()

	sched := scheduler.New(e.logger, scheduler.Config{
		Locker:     p.locker,
		Registerer: p.registry,
		RunTimeout: time.Duration(e.cfg.Reminders.ScanTimeoutSec) * time.Second,
	})
	for _, job := range scheduler.ReminderJobs(p.engine, e.cfg.Reminders) {
		if err := sched.Add(job); err != nil {
			return err
		}
		e.logger.Info("job registered",
			zap.String("job", job.Name),
			zap.Duration("interval", job.Interval),
			zap.Bool("run_on_start", job.RunOnStart),
		)
	}

	srv := &http.Server{
		Addr: e.cfg.HTTP.Addr,
		Handler: api.NewHandler(api.Deps{
			Store:       e.store,
			Jobs:        sched,
			Feed:        p.hub,
			Gatherer:    p.registry,
			CORSOrigins: e.cfg.HTTP.CORSOrigins,
			Logger:      e.logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched.Start(ctx)
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		e.logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
