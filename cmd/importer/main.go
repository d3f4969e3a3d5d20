// The importer is a batch process: it runs one reconciliation feed to
// completion and exits. Scheduling (cron, CI job) lives outside the binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"pubrec/internal/importer"
	"pubrec/internal/importer/feeds/cors"
	"pubrec/internal/importer/feeds/nris"
	"pubrec/internal/platform/config"
	"pubrec/internal/platform/logger"
	"pubrec/internal/platform/metrics"
	"pubrec/internal/platform/postgres"
	"pubrec/internal/platform/redis"
	"pubrec/internal/records"
	"pubrec/internal/records/controller"
)

func main() {
	feedName := flag.String("feed", "", "feed to reconcile (cors, nris)")
	corsFile := flag.String("cors-file", "", "path to a local cors CSV extract (overrides the HTTP endpoint)")
	corsURL := flag.String("cors-url", os.Getenv("PUBREC_CORS_URL"), "cors extract endpoint")
	corsToken := flag.String("cors-token", os.Getenv("PUBREC_CORS_TOKEN"), "cors bearer token")
	nrisURL := flag.String("nris-url", os.Getenv("PUBREC_NRIS_URL"), "nris API base URL")
	nrisToken := flag.String("nris-token", os.Getenv("PUBREC_NRIS_TOKEN"), "nris bearer token")
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	if *feedName == "" {
		fmt.Fprintln(os.Stderr, "usage: importer -feed <name>")
		os.Exit(2)
	}

	var store records.Store = records.NewMemoryStore()
	var tasks importer.TaskStore = importer.NewMemoryTaskStore()
	if cfg.DatabaseDSN != "" {
		db, err := postgres.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = records.NewPostgres(db)
		tasks = importer.NewPostgresTaskStore(db)
	} else {
		log.Warn("no database configured, records will not be persisted")
	}

	ctrl := controller.New(store, log)

	registry := importer.NewRegistry()
	corsFeed := cors.NewHTTPFeed(nil, *corsURL, *corsToken)
	if *corsFile != "" {
		corsFeed = cors.NewFileFeed(*corsFile)
	}
	mustRegister(registry, importer.Registration{
		Feed:    corsFeed,
		Handler: cors.NewHandler(store, ctrl),
	})
	mustRegister(registry, importer.Registration{
		Feed:    nris.NewFeed(nil, *nrisURL, *nrisToken),
		Handler: nris.NewHandler(store, ctrl),
	})

	var lock importer.Locker
	if redisClient, err := redis.New(cfg.RedisURL); err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	} else if redisClient != nil {
		defer redisClient.Close()
		lock = importer.NewRedisLocker(redisClient.Client, cfg.ImporterLockTTL, log)
	}

	runner := importer.NewRunner(tasks, registry, lock, log, m, cfg.ImporterBatchSize)

	task, err := runner.Run(context.Background(), *feedName)
	if err != nil {
		log.Error("reconciliation run failed", "feed", *feedName, "error", err)
		if task != nil {
			log.Error("terminal task status", "task_id", task.ID.String(), "status", string(task.Status))
		}
		os.Exit(1)
	}

	fmt.Printf("feed %s: %s, %d/%d rows processed\n",
		*feedName, task.Status, task.ItemsProcessed, task.ItemTotal)
	if n := len(task.IndividualRecordStatus); n > 0 {
		fmt.Printf("%d rows failed:\n", n)
		for _, rs := range task.IndividualRecordStatus {
			fmt.Printf("  %s: %s\n", rs.Message, strings.TrimSpace(rs.Error))
		}
	}
}

func mustRegister(registry *importer.Registry, reg importer.Registration) {
	if err := registry.Register(reg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
