package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"

	"logreport/internal/config"
	"logreport/internal/proc"
	"logreport/internal/sites"
	"logreport/internal/workspace"
)

type fakeRunner struct {
	pipes [][2]proc.Command
	runs  []proc.Command
	stdin []string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, c proc.Command, stdin io.Reader) error {
	f.runs = append(f.runs, c)
	if stdin != nil {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		f.stdin = append(f.stdin, string(b))
	}
	return f.err
}

func (f *fakeRunner) Pipe(_ context.Context, src, dst proc.Command) error {
	f.pipes = append(f.pipes, [2]proc.Command{src, dst})
	return f.err
}

var (
	cdnSite    = sites.Site{Name: "example.com", Type: sites.CloudFront}
	originSite = sites.Site{Name: "origin.example.com", Type: sites.AWSELB}
)

func newGenerator(mode string) (*Generator, *fakeRunner) {
	r := &fakeRunner{}
	return &Generator{
		Runner: r,
		Layout: workspace.Layout{Root: ".", ReportsDir: "./reports", Stylesheet: "./custom.css"},
		Opts: Options{
			GeoIPDB:    "./geoip/GeoLite2-City.mmdb",
			Theme:      "bright",
			StreamMode: mode,
		},
	}, r
}

func TestPlanMonthlyCDN(t *testing.T) {
	g, _ := newGenerator(config.StreamExec)
	p, err := g.Plan(Target{Site: cdnSite, Year: "2024", Month: "03"})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if p.Pattern != "*2024-03*.gz" {
		t.Fatalf("expected pattern *2024-03*.gz, got %q", p.Pattern)
	}
	if want := filepath.Join("reports", "example.com", "2024", "03", "index.html"); p.Output != want {
		t.Fatalf("expected output %s, got %s", want, p.Output)
	}
	wantStream := proc.Command{
		Name: "find",
		Args: []string{"example.com/logs/", "-type", "f", "-name", "*2024-03*.gz", "-exec", "gunzip", "-c", "{}", ";"},
	}
	if diff := cmp.Diff(wantStream, p.Stream); diff != "" {
		t.Fatalf("stream mismatch (-want +got):\n%s", diff)
	}
	wantAnalyzer := proc.Command{
		Name: "goaccess",
		Args: []string{
			"--log-format", "CLOUDFRONT", "-",
			"--geoip-database=./geoip/GeoLite2-City.mmdb",
			"--with-output-resolver",
			"--agent-list",
			"--ignore-crawlers",
			"--real-os",
			"--json-pretty-print",
			"--db-path=example.com/db/",
			"--persist",
			"--output=reports/example.com/2024/03/index.html",
			`--html-prefs={"theme":"bright"}`,
			"--html-custom-css=/custom.css",
			"--html-report-title=example.com - 2024 - 03",
		},
	}
	if diff := cmp.Diff(wantAnalyzer, p.Analyzer); diff != "" {
		t.Fatalf("analyzer mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanYearlyOrigin(t *testing.T) {
	g, _ := newGenerator(config.StreamExec)
	p, err := g.Plan(Target{Site: originSite, Year: "2024"})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if p.Pattern != "*2024*" {
		t.Fatalf("expected pattern *2024* without .gz, got %q", p.Pattern)
	}
	if want := filepath.Join("reports", "origin.example.com", "2024", "index.html"); p.Output != want {
		t.Fatalf("expected output %s, got %s", want, p.Output)
	}
	if got := p.Analyzer.Args[1]; got != "AWSELB" {
		t.Fatalf("expected --log-format AWSELB, got %s", got)
	}
	if got := p.Analyzer.Args[len(p.Analyzer.Args)-1]; got != "--html-report-title=origin.example.com - 2024" {
		t.Fatalf("unexpected title arg %q", got)
	}
}

func TestPlanNativeHasNoStreamCommand(t *testing.T) {
	g, _ := newGenerator(config.StreamNative)
	p, err := g.Plan(Target{Site: cdnSite, Year: "2024"})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if !p.Native() {
		t.Fatalf("expected a native pipeline, got stream %v", p.Stream)
	}
}

func writeGz(t *testing.T, path, body string) {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(body))
	_ = zw.Close()
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func logsFixture(t *testing.T) workspace.Layout {
	t.Helper()
	root := t.TempDir()
	l := workspace.Layout{Root: root, ReportsDir: filepath.Join(root, "reports")}
	if err := l.EnsureSiteFolders(cdnSite.Name); err != nil {
		t.Fatalf("EnsureSiteFolders: %v", err)
	}
	logs := l.LogsDir(cdnSite.Name)
	writeGz(t, filepath.Join(logs, "access-2024-02-15.log.gz"), "feb\n")
	writeGz(t, filepath.Join(logs, "access-2024-01-01.log.gz"), "jan\n")
	if err := os.MkdirAll(filepath.Join(logs, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir nested: %v", err)
	}
	writeGz(t, filepath.Join(logs, "nested", "access-2024-01-20.log.gz"), "jan-nested\n")
	if err := os.WriteFile(filepath.Join(logs, "access-2024-01-02.log"), []byte("plain\n"), 0o644); err != nil {
		t.Fatalf("write plain: %v", err)
	}
	return l
}

func TestMatchFiles(t *testing.T) {
	l := logsFixture(t)
	got, err := MatchFiles(l.LogsDir(cdnSite.Name), "*2024-01*.gz")
	if err != nil {
		t.Fatalf("MatchFiles() error: %v", err)
	}
	logs := l.LogsDir(cdnSite.Name)
	want := []string{
		filepath.Join(logs, "access-2024-01-01.log.gz"),
		filepath.Join(logs, "nested", "access-2024-01-20.log.gz"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MatchFiles mismatch (-want +got):\n%s", diff)
	}
	none, err := MatchFiles(filepath.Join(l.Root, "missing"), "*")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no files for missing dir, got %v %v", none, err)
	}
}

func TestGenerateNativeStreamsDecompressedFiles(t *testing.T) {
	g, r := newGenerator(config.StreamNative)
	g.Layout = logsFixture(t)

	res, err := g.Generate(context.Background(), Target{Site: cdnSite, Year: "2024"})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if res.Files != 3 {
		t.Fatalf("expected 3 matched .gz files, got %d", res.Files)
	}
	if len(r.runs) != 1 || len(r.pipes) != 0 {
		t.Fatalf("expected a single native run, got runs=%d pipes=%d", len(r.runs), len(r.pipes))
	}
	if diff := cmp.Diff([]string{"jan\nfeb\njan-nested\n"}, r.stdin); diff != "" {
		t.Fatalf("stdin mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateExecUsesPipe(t *testing.T) {
	g, r := newGenerator(config.StreamExec)
	g.Layout = logsFixture(t)

	res, err := g.Generate(context.Background(), Target{Site: cdnSite, Year: "2024", Month: "02"})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if res.Files != 1 || len(r.pipes) != 1 {
		t.Fatalf("expected 1 file and 1 pipe, got %d and %d", res.Files, len(r.pipes))
	}
	if r.pipes[0][0].Name != "find" || r.pipes[0][1].Name != "goaccess" {
		t.Fatalf("unexpected pipe %v", r.pipes[0])
	}
}

func TestGenerateNoInput(t *testing.T) {
	g, r := newGenerator(config.StreamExec)
	g.Layout = logsFixture(t)
	_, err := g.Generate(context.Background(), Target{Site: cdnSite, Year: "2019"})
	if !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
	if len(r.pipes)+len(r.runs) != 0 {
		t.Fatalf("nothing should run without input")
	}
}

func TestGeneratePropagatesRunnerFailure(t *testing.T) {
	g, r := newGenerator(config.StreamExec)
	g.Layout = logsFixture(t)
	r.err = &proc.ExitError{Command: proc.Command{Name: "goaccess"}, Code: 1}
	_, err := g.Generate(context.Background(), Target{Site: cdnSite, Year: "2024"})
	var ee *proc.ExitError
	if !errors.As(err, &ee) || ee.Command.Name != "goaccess" {
		t.Fatalf("expected goaccess exit error, got %v", err)
	}
}
