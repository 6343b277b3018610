package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"allot.org/internal/alloc"
	"allot.org/internal/audit"
	"allot.org/internal/auth"
	"allot.org/internal/config"
	"allot.org/internal/events"
	"allot.org/internal/httpapi"
	"allot.org/internal/jobs"
	"allot.org/internal/notify"
	"allot.org/internal/obs"
	"allot.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	signer, err := auth.NewSigner(cfg.AuthSecret, cfg.AuthIssuer)
	if err != nil {
		log.WithError(err).Fatal("init signer")
	}

	var (
		backend alloc.Service
		probe   httpapi.ReadyProbe
		store   *pg.Store
	)
	if cfg.PGDSN != "" {
		store, err = pg.Open(cfg.PGDSN, pg.WithTxTimeout(cfg.TxTimeout), pg.WithMaxAttempts(cfg.MaxTxAttempts))
		if err != nil {
			log.WithError(err).Fatal("open db")
		}
		backend = store
		probe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		if cfg.Production() {
			log.Fatal("ALLOT_PG_DSN is required in production")
		}
		log.Warn("ALLOT_PG_DSN not set, using in-memory store")
		backend = alloc.NewInMemory()
	}

	bus := events.New()
	hooks := []alloc.Hook{audit.Hook{}, bus}
	var publisher *notify.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		hooks = append(hooks, publisher)
		log.WithField("topic", cfg.KafkaTopic).Info("publishing events to kafka")
	}
	svc := alloc.WithHooks(backend, hooks...)

	cron, err := jobs.Schedule(cfg.ReconcileSchedule, jobs.NewReconciler(svc))
	if err != nil {
		log.WithError(err).Fatal("schedule reconciler")
	}
	if cron != nil {
		cron.Start()
		log.WithField("schedule", cfg.ReconcileSchedule).Info("unit reconciler scheduled")
	}

	api := httpapi.New(svc, signer, bus, probe, httpapi.Options{
		Version:     version,
		RateBurst:   cfg.RateBurst,
		RatePerSec:  cfg.RatePerSec,
		CORSOrigins: cfg.CORSOrigins,
		Production:  cfg.Production(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, httpapi.NewGRPCServer(probe))
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.WithError(err).Fatal("grpc listen")
	}

	log.WithFields(map[string]any{
		"version": version,
		"addr":    srv.Addr,
		"grpc":    cfg.GRPCAddr,
		"env":     cfg.Environment,
	}).Info("starting allot-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()
	go func() {
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.WithError(err).Fatal("grpc serve")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cron != nil {
		<-cron.Stop().Done()
	}
	_ = srv.Shutdown(ctx)
	grpcServer.GracefulStop()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.WithError(err).Warn("close kafka writer")
		}
	}
	if store != nil {
		_ = store.Close()
	}
	log.Info("stopped")
}
