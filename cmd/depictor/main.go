package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"depictor/pkg/cache"
	"depictor/pkg/config"
	"depictor/pkg/db"
	"depictor/pkg/generator"
	"depictor/pkg/logging"
	"depictor/pkg/mwapi"
	"depictor/pkg/probe"
	"depictor/pkg/queue"
	"depictor/pkg/request"
	"depictor/pkg/resolver"
	"depictor/pkg/sparql"
	"depictor/pkg/store"
	"depictor/pkg/taxonomy"
	"depictor/pkg/tracker"
	"depictor/pkg/version"
)

var (
	configPath  = flag.String("config", "configs/depictor.yaml", "Path to config file")
	initConfig  = flag.Bool("init-config", false, "Generate default config file and exit")
	generateCat = flag.String("generate", "", "Generate questions for this category (requires -target)")
	targetID    = flag.String("target", "", "Target entity ID for -generate, e.g. Q144")
	resolveID   = flag.Int64("resolve", 0, "Resolve this answer ID and exit")
	worker      = flag.Bool("worker", false, "Run as a queue worker until interrupted")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	// Consumer secrets may come from a local .env instead of the config.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Depictor started", "version", version.Version)

	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.PruneCache(cfg.DB.CacheTTL.D()); err != nil {
		slog.Error("Cache pruning failed", "error", err)
	}

	st := store.NewSQLiteStore(dbConn)
	tr := tracker.New()

	reqCache := cache.NewStoreCache(st, cfg.DB.CacheTTL.D())
	reqClient := request.New(reqCache, tr, cfg.Request, cfg.Wiki.Contact)

	sparqlClient := sparql.NewClient(reqClient, cfg.Wiki.SPARQLEndpoint, slog.Default())
	closures := taxonomy.NewClosures(sparqlClient, cfg.Closure.TTL.D(), slog.Default())

	gateway := mwapi.NewClient(reqClient, cfg.Wiki.CommonsAPI, cfg.Wiki.WikidataAPI,
		cfg.OAuth.ConsumerKey, cfg.OAuth.ConsumerSecret, slog.Default())

	traverser := generator.NewCategoryTraverser(gateway, slog.Default())
	gen, err := generator.New(st, gateway, closures, traverser, tr,
		cfg.Generator, cfg.Wiki.DepictsProperty, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to build generator: %w", err)
	}
	eng := resolver.New(st, gateway, closures, tr, cfg.Wiki.DepictsProperty, slog.Default())

	q := queue.New(slog.Default())
	q.Start(ctx, cfg.Queue.Workers)
	defer q.Shutdown()

	switch {
	case *generateCat != "":
		if *targetID == "" {
			return fmt.Errorf("-generate requires -target")
		}
		return runOnce(ctx, q, generationJob{
			gen: gen, category: *generateCat, target: *targetID,
		})

	case *resolveID != 0:
		return runOnce(ctx, q, resolutionJob{eng: eng, answerID: *resolveID})

	case *worker:
		probes := []probe.Probe{
			{
				Name:     "Wikidata API",
				Critical: true,
				Check: func(ctx context.Context) error {
					_, err := gateway.GetLabel(ctx, "Q1")
					return err
				},
			},
			{
				Name:     "SPARQL endpoint",
				Critical: true,
				Check: func(ctx context.Context) error {
					_, err := sparqlClient.SelectIDs(ctx,
						"SELECT ?item WHERE { BIND(wd:Q1 AS ?item) }", "")
					return err
				},
			},
		}
		if err := probe.AnalyzeResults(probe.Run(ctx, probes)); err != nil {
			return fmt.Errorf("startup checks failed: %w", err)
		}
		return runWorker(ctx, cfg.Queue, tr)

	default:
		flag.Usage()
		return fmt.Errorf("nothing to do: pass -generate, -resolve, or -worker")
	}
}

// runOnce enqueues a single job and waits for it.
func runOnce(ctx context.Context, q *queue.Queue, j queue.Job) error {
	errCh := make(chan []error, 1)
	if err := q.EnqueueBatch(queue.PriorityHigh, []queue.Job{j}, func(failed []error) {
		errCh <- failed
	}); err != nil {
		return err
	}

	select {
	case failed := <-errCh:
		if len(failed) > 0 {
			return failed[0]
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runWorker keeps the process alive for queued work, logging stats
// periodically, restarting on transient failures per the configured
// backoff.
func runWorker(ctx context.Context, cfg config.QueueConfig, tr *tracker.Tracker) error {
	runner := &queue.Runner{
		Name:        "worker",
		MaxRestarts: cfg.MaxRestarts,
		BaseDelay:   cfg.Restart.BaseDelay.D(),
		MaxDelay:    cfg.Restart.MaxDelay.D(),
		Logger:      slog.Default(),
	}

	err := runner.Run(ctx, func(ctx context.Context) error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				snap := tr.GetSnapshot()
				slog.Info("Worker stats",
					"questions_generated", snap.QuestionsGenerated,
					"files_skipped", snap.FilesSkipped,
					"edits_applied", snap.EditsApplied,
					"resolutions_bailed", snap.ResolutionsBailed)
			case <-ctx.Done():
				return nil
			}
		}
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	slog.Info("Worker stopped")
	return nil
}

// generationJob adapts one generator run to the queue.
type generationJob struct {
	gen      *generator.Generator
	category string
	target   string
}

func (j generationJob) Key() string {
	return "generate:" + j.category + ":" + j.target
}

func (j generationJob) Run(ctx context.Context) error {
	stats, err := j.gen.Run(ctx, j.category, j.target, true)
	if err != nil {
		return err
	}
	slog.Info("Generation finished", "category", j.category, "target", j.target,
		"generated", stats.Generated, "skipped", stats.Skipped)
	return nil
}

// resolutionJob adapts one answer resolution to the queue.
type resolutionJob struct {
	eng      *resolver.Engine
	answerID int64
}

func (j resolutionJob) Key() string {
	return fmt.Sprintf("resolve:%d", j.answerID)
}

func (j resolutionJob) Run(ctx context.Context) error {
	return j.eng.Resolve(ctx, j.answerID)
}
