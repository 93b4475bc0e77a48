package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"logreport/internal/buckets"
	"logreport/internal/ledger"
	"logreport/internal/report"
	"logreport/internal/s3sync"
	"logreport/internal/sites"
	"logreport/internal/workspace"
)

// Recorder receives one entry per finished step. *ledger.Ledger implements it.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

type Deps struct {
	Sites    *sites.Registry
	Layout   workspace.Layout
	Sync     *s3sync.Client
	Reports  *report.Generator
	Recorder Recorder // optional
}

type Options struct {
	RunID         string
	LogsBucket    string
	ReportsBucket string

	SkipSync    bool
	SkipUpload  bool
	CleanLogs   bool
	StrictNames bool

	Concurrency   int
	SyncTimeout   time.Duration
	ReportTimeout time.Duration
}

type runner struct {
	deps Deps
	opts Options
}

// Run syncs, discovers and reports every site, then uploads the reports tree.
// Step failures are recorded in the summary; the returned error is non-nil
// only when ctx was cancelled.
func Run(ctx context.Context, deps Deps, opts Options) (*Summary, error) {
	r := &runner{deps: deps, opts: opts}
	all := deps.Sites.All()
	sum := &Summary{
		RunID:   opts.RunID,
		Started: time.Now().UTC(),
		Sites:   make([]*SiteOutcome, len(all)),
	}

	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, s := range all {
		g.Go(func() error {
			sum.Sites[i] = r.site(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case ctx.Err() != nil:
		sum.Upload = Step{Status: ledger.StatusSkipped, Error: ctx.Err().Error()}
	case opts.SkipUpload:
		sum.Upload = Step{Status: ledger.StatusSkipped}
		log.Printf("[SKIP] report upload disabled")
	default:
		sum.Upload = r.upload(ctx)
	}
	sum.Finished = time.Now().UTC()

	c := sum.Counts()
	log.Printf("[DONE] %d site(s), reports ok=%d skipped=%d failed=%d in %s",
		len(all), c[ledger.StatusOK], c[ledger.StatusSkipped], c[ledger.StatusFailed],
		sum.Finished.Sub(sum.Started).Round(time.Millisecond))

	return sum, ctx.Err()
}

func (r *runner) site(ctx context.Context, s sites.Site) *SiteOutcome {
	out := &SiteOutcome{Site: s.Name, Reports: []ReportOutcome{}}
	l := r.deps.Layout

	if r.opts.CleanLogs {
		if err := l.ClearLogs(s.Name); err != nil {
			out.Prepare = r.fail(ctx, s.Name, ledger.StepPrepare, 0, err)
			return out
		}
	}
	if err := l.EnsureSiteFolders(s.Name); err != nil {
		out.Prepare = r.fail(ctx, s.Name, ledger.StepPrepare, 0, err)
		return out
	}
	out.Prepare = Step{Status: ledger.StatusOK}

	if r.opts.SkipSync {
		out.Sync = Step{Status: ledger.StatusSkipped}
	} else {
		start := time.Now()
		sctx, cancel := withTimeout(ctx, r.opts.SyncTimeout)
		err := r.deps.Sync.SyncLogs(sctx, r.opts.LogsBucket, s.Name, l.LogsDir(s.Name))
		cancel()
		if err != nil {
			out.Sync = r.fail(ctx, s.Name, ledger.StepSyncLogs, time.Since(start), err)
			log.Printf("[SKIP] %s: reports skipped after failed sync", s.Name)
			return out
		}
		out.Sync = Step{Status: ledger.StatusOK, DurationMS: time.Since(start).Milliseconds()}
		r.record(ctx, ledger.Entry{RunID: r.opts.RunID, Site: s.Name, Step: ledger.StepSyncLogs, Status: ledger.StatusOK, Duration: time.Since(start)})
		if n, size, err := l.LogStats(s.Name); err == nil {
			log.Printf("[OK] %s: synced logs, %s file(s), %s in %s",
				s.Name, humanize.Comma(int64(n)), humanize.Bytes(uint64(size)), time.Since(start).Round(time.Millisecond))
		}
	}

	ix, skipped, err := buckets.Discover(l.LogsDir(s.Name), r.opts.StrictNames)
	if err != nil {
		out.Discover = r.fail(ctx, s.Name, ledger.StepDiscover, 0, fmt.Errorf("discover buckets: %w", err))
		return out
	}
	out.Discover = Step{Status: ledger.StatusOK}
	out.Skipped = skipped
	for _, name := range skipped {
		log.Printf("[WARN] %s: no YYYY-MM in %q, skipped", s.Name, name)
	}
	if len(ix) == 0 {
		log.Printf("[INFO] %s: no dated log files", s.Name)
	}

	for _, y := range ix.Years() {
		targets := []report.Target{{Site: s, Year: y}}
		for _, m := range ix.Months(y) {
			targets = append(targets, report.Target{Site: s, Year: y, Month: m})
		}
		for _, t := range targets {
			if ctx.Err() != nil {
				return out
			}
			out.Reports = append(out.Reports, r.report(ctx, t))
		}
	}
	return out
}

func (r *runner) report(ctx context.Context, t report.Target) ReportOutcome {
	ro := ReportOutcome{Year: t.Year, Month: t.Month, Output: t.OutputPath(r.deps.Layout)}
	entry := ledger.Entry{RunID: r.opts.RunID, Site: t.Site.Name, Year: t.Year, Month: t.Month, Step: ledger.StepReport, Output: ro.Output}

	if err := r.deps.Layout.PrepareReportFolder(t.Site.Name, t.Year, t.Month); err != nil {
		ro.Step = Step{Status: ledger.StatusFailed, Error: err.Error()}
		log.Printf("[FAIL] %s: %v", t, err)
		entry.Status, entry.Err = ledger.StatusFailed, err.Error()
		r.record(ctx, entry)
		return ro
	}

	rctx, cancel := withTimeout(ctx, r.opts.ReportTimeout)
	res, err := r.deps.Reports.Generate(rctx, t)
	cancel()
	ro.Files = res.Files
	ro.DurationMS = res.Duration.Milliseconds()
	entry.Files, entry.Duration = res.Files, res.Duration

	switch {
	case errors.Is(err, report.ErrNoInput):
		ro.Status = ledger.StatusSkipped
		log.Printf("[SKIP] %s: no files match %s", t, t.NamePattern())
	case err != nil:
		ro.Status, ro.Error = ledger.StatusFailed, err.Error()
		entry.Err = err.Error()
		log.Printf("[FAIL] %v", err)
	default:
		ro.Status = ledger.StatusOK
		log.Printf("[OK] %s -> %s (%s file(s), %s)", t, res.Output, humanize.Comma(int64(res.Files)), res.Duration.Round(time.Millisecond))
	}
	entry.Status = ro.Status
	r.record(ctx, entry)
	return ro
}

func (r *runner) upload(ctx context.Context) Step {
	start := time.Now()
	uctx, cancel := withTimeout(ctx, r.opts.SyncTimeout)
	err := r.deps.Sync.SyncReports(uctx, r.deps.Layout.ReportsDir, r.opts.ReportsBucket)
	cancel()
	if err != nil {
		return r.fail(ctx, "", ledger.StepSyncReports, time.Since(start), err)
	}
	r.record(ctx, ledger.Entry{RunID: r.opts.RunID, Step: ledger.StepSyncReports, Status: ledger.StatusOK, Duration: time.Since(start)})
	log.Printf("[OK] reports uploaded to %s in %s", s3sync.URI(r.opts.ReportsBucket, ""), time.Since(start).Round(time.Millisecond))
	return Step{Status: ledger.StatusOK, DurationMS: time.Since(start).Milliseconds()}
}

func (r *runner) fail(ctx context.Context, site, step string, d time.Duration, err error) Step {
	if site != "" {
		log.Printf("[FAIL] %s: %v", site, err)
	} else {
		log.Printf("[FAIL] %v", err)
	}
	r.record(ctx, ledger.Entry{RunID: r.opts.RunID, Site: site, Step: step, Status: ledger.StatusFailed, Duration: d, Err: err.Error()})
	return Step{Status: ledger.StatusFailed, Error: err.Error(), DurationMS: d.Milliseconds()}
}

func (r *runner) record(ctx context.Context, e ledger.Entry) {
	if r.deps.Recorder == nil {
		return
	}
	if err := r.deps.Recorder.Record(ctx, e); err != nil {
		log.Printf("[WARN] ledger: %v", err)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
