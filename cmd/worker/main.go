// ==============================================================================
// COMPLIANCE WORKER - cmd/worker/main.go
// ==============================================================================
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cardguard/internal/aggregate"
	"cardguard/internal/catalog"
	"cardguard/internal/pipeline"
	"cardguard/internal/repository/postgres"
	"cardguard/internal/scheduler"
	"cardguard/pkg/cache"
	"cardguard/pkg/config"
	pkgerrors "cardguard/pkg/errors"
	"cardguard/pkg/logger"
	"cardguard/pkg/metrics"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

const (
	popTimeout            = 5 * time.Second
	catalogReloadInterval = time.Minute
)

// submissionResult is the envelope published back to the submitter under
// the result key for its transaction ID.
type submissionResult struct {
	Status string           `json:"status"` // "accepted", "rejected" or "error"
	Reason pkgerrors.Reason `json:"reason,omitempty"`
	Result *pipeline.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("compliance-worker")

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect to redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer redisCache.Close()

	collector := metrics.NewCollector()

	cat := catalog.New(postgres.NewRuleRepository(db), log)
	if err := cat.Reload(context.Background()); err != nil {
		log.Fatal("Failed to load rule catalog", map[string]interface{}{
			"error": err.Error(),
		})
	}
	log.Info("Rule catalog loaded", map[string]interface{}{
		"rules": cat.Size(),
	})

	svc := pipeline.NewService(
		postgres.NewTransactionRepository(db),
		postgres.NewCardRepository(db),
		postgres.NewReferenceRepository(db),
		cat,
		log,
		collector,
		cfg.Pipeline.VelocityLookback,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Queue consumers.
	for i := 0; i < cfg.Pipeline.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			consume(ctx, worker, cfg, svc, redisCache, log)
		}(i)
	}

	// Hot catalog reload so rule edits land without a restart.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(catalogReloadInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := cat.Reload(ctx); err != nil {
					log.Error("Catalog reload failed", map[string]interface{}{
						"error": err.Error(),
					})
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	var sched *scheduler.Scheduler
	if cfg.Aggregate.Interval > 0 {
		aggSvc := aggregate.NewService(postgres.NewAggregateRepository(db), log, collector)
		sched = scheduler.NewScheduler(aggSvc, cfg.Aggregate.Interval, log)
		sched.Start()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"compliance-worker"}`))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		log.Info("Compliance worker started", map[string]interface{}{
			"address": srv.Addr,
			"workers": cfg.Pipeline.Workers,
			"queue":   cfg.Pipeline.SubmissionQueue,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down compliance worker...", nil)

	cancel()
	if sched != nil {
		sched.Stop()
	}
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Compliance worker forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Compliance worker stopped gracefully", nil)
}

func consume(ctx context.Context, worker int, cfg *config.Config, svc *pipeline.Service, redisCache *cache.RedisCache, log logger.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		payload, err := redisCache.Pop(ctx, cfg.Pipeline.SubmissionQueue, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Queue pop failed", map[string]interface{}{
				"worker": worker,
				"error":  err.Error(),
			})
			time.Sleep(time.Second)
			continue
		}
		if payload == nil {
			continue
		}

		var req pipeline.SubmitRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			log.Error("Malformed submission dropped", map[string]interface{}{
				"worker": worker,
				"error":  err.Error(),
			})
			continue
		}

		key := cfg.Pipeline.ResultKeyPrefix + req.TransactionID.String()

		// Fast path for queue redelivery: a published result means this
		// submission was already processed. The database unique key is
		// still the authoritative duplicate check.
		if seen, err := redisCache.Exists(ctx, key); err == nil && seen {
			log.Info("Duplicate submission skipped", map[string]interface{}{
				"transaction_id": req.TransactionID.String(),
			})
			continue
		}

		result, err := svc.Submit(ctx, &req)
		envelope := buildEnvelope(result, err)

		if envelope.Status == "error" {
			log.Error("Submission failed", map[string]interface{}{
				"transaction_id": req.TransactionID.String(),
				"error":          envelope.Error,
			})
		} else {
			log.Info("Submission processed", map[string]interface{}{
				"transaction_id": req.TransactionID.String(),
				"status":         envelope.Status,
			})
		}

		if err := redisCache.Set(ctx, key, envelope, cfg.Pipeline.ResultTTL); err != nil {
			log.Error("Failed to publish result", map[string]interface{}{
				"transaction_id": req.TransactionID.String(),
				"error":          err.Error(),
			})
		}
	}
}

func buildEnvelope(result *pipeline.Result, err error) *submissionResult {
	switch {
	case err == nil:
		return &submissionResult{Status: "accepted", Result: result}
	case pkgerrors.IsRejection(err):
		return &submissionResult{
			Status: "rejected",
			Reason: pkgerrors.ReasonFor(err),
			Result: result,
			Error:  err.Error(),
		}
	default:
		return &submissionResult{
			Status: "error",
			Reason: pkgerrors.ReasonInternal,
			Error:  err.Error(),
		}
	}
}
