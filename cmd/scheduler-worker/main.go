package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

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

// scheduler-worker is the standalone timer-dispatch process: it recovers
// durable jobs, arms timers, polls for jobs scheduled by the api-server,
// and owns the recurring sweeps.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("scheduler-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s prescription_sweep=%s inventory_sweep=%s",
		cfg.Env, cfg.PrescriptionSweep, cfg.InventorySweep)

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

	// The worker keeps dispatching jobs through a Redis outage; intents fall
	// back to the process log.
	var emitter notify.Emitter = notify.LogEmitter{}
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Printf("redis unavailable, emitting intents to log: %v", err)
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Printf("error closing redis: %v", err)
			}
		}()
		emitter = notify.NewRedisEmitter(rdb, notify.DefaultChannel)
		log.Println("connected to Redis")
	}

	clock := clockwork.NewRealClock()
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
	sweeper := inventory.NewSweeper(ledger, emitter, clock, cfg.LowStockThreshold)

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
		expired, err := prescriptions.ExpireOutdated(ctx)
		if err != nil {
			return err
		}
		log.Printf("prescription expiry sweep complete, expired=%d", expired)
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

	// Bootstrap the recurring sweeps; an existing record wins so restarts
	// keep the already-persisted deadline.
	bootCtx, cancelBoot := context.WithTimeout(rootCtx, 10*time.Second)
	if err := jobs.ScheduleIfAbsent(bootCtx, scheduler.Job{
		ID:      scheduler.PrescriptionExpirySweepJobID,
		FireAt:  clock.Now(),
		Purpose: scheduler.PurposeExpirySweep,
	}); err != nil {
		log.Fatalf("bootstrap prescription sweep: %v", err)
	}
	if err := jobs.ScheduleIfAbsent(bootCtx, scheduler.Job{
		ID:      scheduler.InventorySweepJobID,
		FireAt:  clock.Now(),
		Purpose: scheduler.PurposeInventorySweep,
	}); err != nil {
		log.Fatalf("bootstrap inventory sweep: %v", err)
	}
	cancelBoot()

	if err := jobs.RecoverOnStartup(rootCtx); err != nil {
		log.Fatalf("scheduler recovery error: %v", err)
	}

	jobs.Run(rootCtx, 15*time.Second)
	log.Println("shutdown signal received, stopping scheduler-worker")
}
