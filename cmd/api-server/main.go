package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/medikart/order-lifecycle/internal/api"
	"github.com/medikart/order-lifecycle/internal/config"
	"github.com/medikart/order-lifecycle/internal/db"
	"github.com/medikart/order-lifecycle/internal/inventory"
	"github.com/medikart/order-lifecycle/internal/notify"
	"github.com/medikart/order-lifecycle/internal/order"
	"github.com/medikart/order-lifecycle/internal/prescription"
	redisclient "github.com/medikart/order-lifecycle/internal/redis"
	"github.com/medikart/order-lifecycle/internal/scheduler"
	"github.com/medikart/order-lifecycle/internal/timeline"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	clock := clockwork.NewRealClock()
	emitter := notify.NewRedisEmitter(rdb, notify.DefaultChannel)
	recorder := timeline.NewPgRecorder(pgPool)
	ledger := inventory.NewPgLedger(pgPool)

	jobs := scheduler.NewManager(scheduler.NewPgStore(pgPool), clock)

	pricer := order.DistancePricer{
		Base:      cfg.DeliveryBaseCharge,
		PerKm:     cfg.DeliveryPerKm,
		FreeAbove: cfg.FreeDeliveryAbove,
	}

	orders := order.NewService(order.NewPgRepository(pgPool), ledger, recorder, jobs, emitter, pricer, clock, cfg)
	prescriptions := prescription.NewService(prescription.NewPgRepository(pgPool), orders, recorder, jobs, emitter, clock)

	registerHandlers(jobs, orders, prescriptions, inventory.NewSweeper(ledger, emitter, clock, cfg.LowStockThreshold), clock, cfg)

	if err := jobs.RecoverOnStartup(rootCtx); err != nil {
		log.Fatalf("scheduler recovery error: %v", err)
	}
	go jobs.Run(rootCtx, 30*time.Second)

	router := api.NewRouter(api.RouterConfig{
		Orders:        orders,
		Prescriptions: prescriptions,
		PgPool:        pgPool,
		Redis:         rdb,
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}

// registerHandlers binds every job purpose to its callback. The sweeps
// re-schedule themselves from the time they finish, so restarts never
// accumulate drift.
func registerHandlers(
	jobs *scheduler.Manager,
	orders *order.Service,
	prescriptions *prescription.Service,
	sweeper *inventory.Sweeper,
	clock clockwork.Clock,
	cfg config.Config,
) {
	jobs.RegisterHandler(scheduler.PurposeApprovalExpiry, func(ctx context.Context, j scheduler.Job) error {
		return orders.AutoExpireApproval(ctx, j.EntityID)
	})
	jobs.RegisterHandler(scheduler.PurposeConfirmationExpiry, func(ctx context.Context, j scheduler.Job) error {
		return orders.AutoExpireConfirmation(ctx, j.EntityID)
	})
	jobs.RegisterHandler(scheduler.PurposeRefillDue, func(ctx context.Context, j scheduler.Job) error {
		return prescriptions.HandleRefillDue(ctx, j.EntityID)
	})
	jobs.RegisterHandler(scheduler.PurposeExpirySweep, func(ctx context.Context, j scheduler.Job) error {
		if _, err := prescriptions.ExpireOutdated(ctx); err != nil {
			return err
		}
		return jobs.Schedule(ctx, scheduler.Job{
			ID:      j.ID,
			FireAt:  clock.Now().Add(cfg.PrescriptionSweep),
			Purpose: j.Purpose,
		})
	})
	jobs.RegisterHandler(scheduler.PurposeInventorySweep, func(ctx context.Context, j scheduler.Job) error {
		if err := sweeper.Sweep(ctx); err != nil {
			return err
		}
		return jobs.Schedule(ctx, scheduler.Job{
			ID:      j.ID,
			FireAt:  clock.Now().Add(cfg.InventorySweep),
			Purpose: j.Purpose,
		})
	})
}
