package report

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar"
	"github.com/bytedance/sonic"

	"logreport/internal/config"
	"logreport/internal/iox"
	"logreport/internal/proc"
	"logreport/internal/sites"
	"logreport/internal/workspace"
)

// ErrNoInput means no local log file matched the target.
var ErrNoInput = errors.New("report: no matching log files")

const customCSSHref = "/custom.css"

// Target is one report: a site and a year, optionally narrowed to a month.
type Target struct {
	Site  sites.Site
	Year  string
	Month string
}

func (t Target) String() string {
	if t.Month == "" {
		return t.Site.Name + " " + t.Year
	}
	return t.Site.Name + " " + t.Year + "/" + t.Month
}

// Glob is the file-name pattern selecting the target's log files.
func (t Target) Glob() string {
	if t.Month == "" {
		return "*" + t.Year + "*"
	}
	return "*" + t.Year + "-" + t.Month + "*"
}

// NamePattern is Glob plus the compressed suffix CDN logs require.
func (t Target) NamePattern() string {
	if t.Site.Type.IsCDN() {
		return t.Glob() + ".gz"
	}
	return t.Glob()
}

// Title is the HTML report title.
func (t Target) Title() string {
	if t.Month == "" {
		return t.Site.Name + " - " + t.Year
	}
	return t.Site.Name + " - " + t.Year + " - " + t.Month
}

func (t Target) OutputPath(l workspace.Layout) string {
	return filepath.Join(l.ReportDir(t.Site.Name, t.Year, t.Month), "index.html")
}

type Options struct {
	GoAccessBin string
	FindBin     string
	GunzipBin   string
	GeoIPDB     string
	Theme       string
	StreamMode  string // config.StreamExec or config.StreamNative
}

// OptionsFrom copies report settings out of the run configuration.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		GoAccessBin: cfg.GoAccessBin,
		FindBin:     cfg.FindBin,
		GunzipBin:   cfg.GunzipBin,
		GeoIPDB:     cfg.GeoIPDB,
		Theme:       cfg.HTMLTheme,
		StreamMode:  cfg.StreamMode,
	}
}

// Pipeline is a planned report generation. Stream is empty in native mode.
type Pipeline struct {
	Target   Target
	Pattern  string
	Output   string
	Stream   proc.Command
	Analyzer proc.Command
}

func (p Pipeline) Native() bool { return p.Stream.Name == "" }

type Generator struct {
	Runner proc.Runner
	Layout workspace.Layout
	Opts   Options
}

// Plan builds the commands for t without touching the filesystem.
func (g *Generator) Plan(t Target) (Pipeline, error) {
	prefs, err := sonic.Marshal(map[string]string{"theme": g.Opts.Theme})
	if err != nil {
		return Pipeline{}, fmt.Errorf("report: encode html prefs: %w", err)
	}
	p := Pipeline{
		Target:  t,
		Pattern: t.NamePattern(),
		Output:  t.OutputPath(g.Layout),
	}
	logsDir := g.Layout.LogsDir(t.Site.Name) + string(filepath.Separator)
	if g.Opts.StreamMode != config.StreamNative {
		p.Stream = proc.Command{
			Name: or(g.Opts.FindBin, "find"),
			Args: []string{logsDir, "-type", "f", "-name", p.Pattern, "-exec", or(g.Opts.GunzipBin, "gunzip"), "-c", "{}", ";"},
		}
	}
	p.Analyzer = proc.Command{
		Name: or(g.Opts.GoAccessBin, "goaccess"),
		Args: []string{
			"--log-format", string(t.Site.Type), "-",
			"--geoip-database=" + g.Opts.GeoIPDB,
			"--with-output-resolver",
			"--agent-list",
			"--ignore-crawlers",
			"--real-os",
			"--json-pretty-print",
			"--db-path=" + g.Layout.DBDir(t.Site.Name) + string(filepath.Separator),
			"--persist",
			"--output=" + p.Output,
			"--html-prefs=" + string(prefs),
			"--html-custom-css=" + customCSSHref,
			"--html-report-title=" + t.Title(),
		},
	}
	return p, nil
}

// MatchFiles walks dir like find(1) and returns regular files whose base name
// matches pattern, sorted by path.
func MatchFiles(dir, pattern string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ok, err := doublestar.Match(pattern, d.Name())
		if err != nil {
			return err
		}
		if ok {
			out = append(out, p)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("report: match %s in %s: %w", pattern, dir, err)
	}
	sort.Strings(out)
	return out, nil
}

type Result struct {
	Target   Target
	Output   string
	Files    int
	Duration time.Duration
}

// Generate runs the analyzer for t. The report folder must already be prepared.
func (g *Generator) Generate(ctx context.Context, t Target) (Result, error) {
	p, err := g.Plan(t)
	if err != nil {
		return Result{}, err
	}
	res := Result{Target: t, Output: p.Output}
	files, err := MatchFiles(g.Layout.LogsDir(t.Site.Name), p.Pattern)
	if err != nil {
		return res, err
	}
	res.Files = len(files)
	if len(files) == 0 {
		return res, ErrNoInput
	}

	start := time.Now()
	if p.Native() {
		stream := iox.Concat(files)
		err = g.Runner.Run(ctx, p.Analyzer, stream)
		if cerr := stream.Close(); err == nil {
			err = cerr
		}
	} else {
		err = g.Runner.Pipe(ctx, p.Stream, p.Analyzer)
	}
	res.Duration = time.Since(start)
	if err != nil {
		return res, fmt.Errorf("report %s: %w", t, err)
	}
	return res, nil
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
