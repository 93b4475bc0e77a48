package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"logreport/internal/config"
	"logreport/internal/ledger"
	"logreport/internal/orchestrate"
	"logreport/internal/preflight"
	"logreport/internal/proc"
	"logreport/internal/report"
	"logreport/internal/s3sync"
	"logreport/internal/sites"
	"logreport/internal/workspace"
)

const version = "v1.0.0"

func main() {
	var (
		flagSites      string
		flagSite       string
		flagStream     string
		flagSummary    string
		flagSkipSync   bool
		flagSkipUpload bool
		flagCleanLogs  bool
		flagStrict     bool
		flagDryRun     bool
		flagPlan       bool
	)
	flag.StringVar(&flagSites, "sites", "", "Sites file (.yaml/.yml/.json), default from SITES_FILE")
	flag.StringVar(&flagSite, "site", "", "Only process this site")
	flag.StringVar(&flagStream, "stream", "", "Decompression stream: exec (find|gunzip) or native")
	flag.StringVar(&flagSummary, "summary", "", "Write the run summary as JSON to this path")
	flag.BoolVar(&flagSkipSync, "skip-sync", false, "Use local logs as they are (no aws s3 sync)")
	flag.BoolVar(&flagSkipUpload, "skip-upload", false, "Do not upload reports")
	flag.BoolVar(&flagCleanLogs, "clean-logs", false, "Remove local logs before syncing")
	flag.BoolVar(&flagStrict, "strict-names", false, "Fail a site when a log name has no YYYY-MM")
	flag.BoolVar(&flagDryRun, "dry-run", false, "Log commands instead of running them")
	flag.BoolVar(&flagPlan, "plan", false, "Show plan and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if flagSites != "" {
		cfg.SitesFile = flagSites
	}
	if flagStream != "" {
		cfg.StreamMode = strings.ToLower(flagStream)
	}
	if flagStrict {
		cfg.StrictNames = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	// Nothing touches the filesystem before every command is found.
	if !flagPlan {
		if err := preflight.Check(nil, cfg.Commands()); err != nil {
			log.Fatalf("[FAIL] %v", err)
		}
	}

	reg, err := sites.Load(cfg.SitesFile)
	if err != nil {
		log.Fatalf("sites: %v", err)
	}
	if flagSite != "" {
		if reg, err = reg.Only(flagSite); err != nil {
			log.Fatal(err)
		}
	}

	var runner proc.Runner = proc.Exec{}
	if flagDryRun {
		runner = proc.DryRun{}
	}
	layout := workspace.Layout{Root: cfg.WorkDir, ReportsDir: cfg.ReportsDir, Stylesheet: cfg.Stylesheet}
	deps := orchestrate.Deps{
		Sites:  reg,
		Layout: layout,
		Sync: &s3sync.Client{
			Runner:    runner,
			Bin:       cfg.AWSBin,
			Delete:    cfg.SyncDelete,
			ExtraArgs: cfg.SyncExtraArgs,
		},
		Reports: &report.Generator{Runner: runner, Layout: layout, Opts: report.OptionsFrom(cfg)},
	}
	opts := orchestrate.Options{
		RunID:         fmt.Sprintf("%s-%d", time.Now().UTC().Format("20060102T150405Z"), os.Getpid()),
		LogsBucket:    cfg.LogsBucket,
		ReportsBucket: cfg.ReportsBucket,
		SkipSync:      flagSkipSync,
		SkipUpload:    flagSkipUpload,
		CleanLogs:     flagCleanLogs,
		StrictNames:   cfg.StrictNames,
		Concurrency:   cfg.SiteConcurrency,
		SyncTimeout:   cfg.SyncTimeout,
		ReportTimeout: cfg.ReportTimeout,
	}

	if flagPlan {
		fmt.Printf("==== reportgen %s Execution Plan ====\n", version)
		if err := orchestrate.Plan(os.Stdout, deps, opts); err != nil {
			log.Fatalf("plan: %v", err)
		}
		return
	}

	unlock, err := layout.Lock()
	if errors.Is(err, workspace.ErrBusy) {
		log.Fatalf("[FAIL] another run holds the workspace lock in %s", cfg.WorkDir)
	}
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, cfg, deps, opts, flagSummary)
	stop()
	if err := unlock.Unlock(); err != nil {
		log.Printf("[WARN] workspace unlock: %v", err)
	}
	os.Exit(code)
}

// execute runs the report cycle with the optional ledger and returns the exit code.
func execute(ctx context.Context, cfg *config.Config, deps orchestrate.Deps, opts orchestrate.Options, summaryPath string) int {
	start := time.Now()
	defer func() {
		log.Printf("[DONE] run %s completed in %v", opts.RunID, time.Since(start).Round(time.Millisecond))
	}()

	var led *ledger.Ledger
	if cfg.LedgerEnabled {
		conn, err := ledger.Open(ctx, cfg)
		if err != nil {
			log.Printf("[FAIL] ledger open error: %v", err)
			return 1
		}
		defer conn.Close()

		lctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lk, err := ledger.AcquireLock(lctx, conn, "reportgen_"+cfg.LogsBucket, 10)
		cancel()
		if err != nil {
			log.Printf("[FAIL] ledger lock: %v", err)
			return 1
		}
		defer func() {
			if err := lk.Release(context.Background()); err != nil {
				log.Printf("[WARN] ledger unlock: %v", err)
			}
		}()

		sctx, cancel := context.WithTimeout(ctx, 20*time.Second)
		err = ledger.EnsureSchema(sctx, conn)
		cancel()
		if err != nil {
			log.Printf("[FAIL] ledger schema: %v", err)
			return 1
		}
		led = ledger.New(conn)
		deps.Recorder = led
		log.Printf("[INFO] ledger enabled (%s@%s:%d/%s)", cfg.MySQLUser, cfg.MySQLHost, cfg.MySQLPort, cfg.MySQLDB)
	}

	log.Printf("[INFO] run %s: %d site(s), stream=%s", opts.RunID, len(deps.Sites.All()), cfg.StreamMode)
	sum, runErr := orchestrate.Run(ctx, deps, opts)

	code := 0
	if led != nil {
		fctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
		if err := led.Flush(fctx); err != nil {
			log.Printf("[FAIL] ledger flush: %v", err)
			code = 1
		}
		cancel()
	}
	if summaryPath != "" {
		if err := sum.WriteFile(summaryPath); err != nil {
			log.Printf("[FAIL] write summary: %v", err)
			code = 1
		} else {
			log.Printf("[OK] summary written to %s", summaryPath)
		}
	}
	if runErr != nil {
		log.Printf("[FAIL] run interrupted: %v", runErr)
		return 1
	}
	if sum.Failed() {
		return 1
	}
	return code
}
