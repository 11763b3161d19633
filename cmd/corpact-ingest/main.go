package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ternarybob/arbor"

	"github.com/cognicore/corpact/internal/logging"
	"github.com/cognicore/corpact/internal/replay"
	"github.com/cognicore/corpact/internal/schedule"
	"github.com/cognicore/corpact/pkg/corpact"
	"github.com/cognicore/corpact/pkg/corpact/config"
	"github.com/cognicore/corpact/pkg/corpact/feed"
	"github.com/cognicore/corpact/pkg/corpact/ingest"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "Config file, .yaml or .toml (optional)")
		envPath    = flag.String("env", ".env", "Environment file loaded before config (optional)")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
		memory     = flag.Bool("memory", false, "Use the in-memory store")
		replayPath = flag.String("replay", "", "Serve feed pages from a JSONL recording instead of HTTP")
		recordPath = flag.String("record", "", "Append every feed response to this JSONL file")
		reclassify = flag.Bool("reclassify", false, "Categorize with the text classifier instead of the search bucket")
		pages      = flag.Int("pages", 0, "Pages fetched per keyword (overrides config)")
		timeout    = flag.Duration("timeout", 0, "Per-run timeout (overrides config)")
		schedule   = flag.String("schedule", "", "Cron expression; run repeatedly until interrupted (overrides config)")
		now        = flag.Bool("now", false, "With a schedule, also run once at startup")
	)
	flag.Parse()

	if *envPath != "" {
		if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to load %s: %v", *envPath, err)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Print("Failed to load configuration: ", err)
		return 1
	}
	if *dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = *dbPath
	}
	if *memory {
		cfg.Store.Driver = "memory"
	}
	if *reclassify {
		cfg.Ingest.Reclassify = true
	}
	if *pages > 0 {
		cfg.Feed.Pages = *pages
	}
	if *timeout > 0 {
		cfg.Ingest.RunTimeout = config.Duration{Duration: *timeout}
	}
	if *schedule != "" {
		cfg.Ingest.Schedule = *schedule
	}

	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var source feed.Source
	if *replayPath != "" {
		src, err := replay.LoadFromJSONL(*replayPath, logger)
		if err != nil {
			log.Print("Failed to load replay: ", err)
			return 1
		}
		logger.Info().Str("file", *replayPath).Int("pages", src.Len()).Msg("Replaying recorded feed")
		source = src
	} else {
		source = corpact.NewFeedClient(cfg.Feed, logger)
	}

	if *recordPath != "" {
		f, err := os.OpenFile(*recordPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Print("Failed to open record file: ", err)
			return 1
		}
		defer f.Close()
		source = replay.NewRecorder(source, f)
	}

	c, err := corpact.Open(ctx, cfg, source, logger)
	if err != nil {
		log.Print("Failed to initialise: ", err)
		return 1
	}

	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close store")
		}
	}()

	if cfg.Ingest.Schedule != "" {
		return runScheduled(ctx, c, cfg, *now, logger)
	}

	runCtx := ctx
	if d := cfg.Ingest.RunTimeout.Duration; d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	report, runErr := c.Run(runCtx)
	if err := writeReport(os.Stdout, report); err != nil {
		log.Print("Failed to write report: ", err)
		return 1
	}

	if runErr != nil || !report.Success {
		return 1
	}
	return 0
}

func runScheduled(ctx context.Context, c *corpact.Corpact, cfg *config.Config, now bool, logger arbor.ILogger) int {
	sched := schedule.New(c.Run, logger, cfg.Ingest.RunTimeout.Duration)
	if err := sched.Start(ctx, cfg.Ingest.Schedule); err != nil {
		log.Print("Failed to start scheduler: ", err)
		return 1
	}
	if now {
		if report, ran, _ := sched.RunNow(); ran {
			if err := writeReport(os.Stdout, report); err != nil {
				logger.Warn().Err(err).Msg("Failed to write report")
			}
		}
	}

	<-ctx.Done()
	sched.Stop()

	runs, skipped := sched.Stats()
	logger.Info().Int("runs", runs).Int("skipped", skipped).Msg("Shutting down")
	return 0
}

func writeReport(w io.Writer, report ingest.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
