// ==============================================================================
// MONTHLY AGGREGATION - cmd/aggregate/main.go
// ==============================================================================
package main

import (
	"context"
	"flag"
	"time"

	"cardguard/internal/aggregate"
	"cardguard/internal/repository/postgres"
	"cardguard/pkg/config"
	"cardguard/pkg/logger"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load()

	year := flag.Int("year", 0, "calendar year to recompute (defaults to previous month)")
	month := flag.Int("month", 0, "calendar month to recompute, 1-12")
	flag.Parse()

	cfg := config.Load()
	log := logger.New("aggregate")

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required", nil)
	}

	if *year == 0 || *month == 0 {
		prev := time.Now().UTC().AddDate(0, 0, -time.Now().UTC().Day())
		*year, *month = prev.Year(), int(prev.Month())
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	svc := aggregate.NewService(postgres.NewAggregateRepository(db), log, nil)

	summary, err := svc.RecomputeMonth(context.Background(), *year, *month)
	if err != nil {
		log.Fatal("Aggregation failed", map[string]interface{}{
			"year":  *year,
			"month": *month,
			"error": err.Error(),
		})
	}

	if len(summary.Failures) > 0 {
		log.Warn("Aggregation finished with key failures", map[string]interface{}{
			"failures": len(summary.Failures),
		})
	}
}
