package orchestrate

import (
	"fmt"
	"io"

	"logreport/internal/buckets"
	"logreport/internal/report"
	"logreport/internal/s3sync"
)

// Plan prints the commands a run would execute, using the logs currently on
// disk for discovery. Nothing is created or spawned.
func Plan(w io.Writer, deps Deps, opts Options) error {
	l := deps.Layout
	fmt.Fprintf(w, "Work dir           : %s\n", l.Root)
	fmt.Fprintf(w, "Reports dir        : %s\n", l.ReportsDir)
	fmt.Fprintf(w, "Logs bucket        : %s\n", s3sync.URI(opts.LogsBucket, ""))
	fmt.Fprintf(w, "Reports bucket     : %s\n", s3sync.URI(opts.ReportsBucket, ""))
	fmt.Fprintf(w, "Stream mode        : %s\n", deps.Reports.Opts.StreamMode)
	fmt.Fprintf(w, "Site concurrency   : %d\n", opts.Concurrency)

	for _, s := range deps.Sites.All() {
		fmt.Fprintf(w, "\n[%s] %s\n", s.Name, s.Type)
		if opts.SkipSync {
			fmt.Fprintf(w, "  sync   : skipped\n")
		} else {
			fmt.Fprintf(w, "  sync   : %s\n", deps.Sync.Command(s3sync.URI(opts.LogsBucket, s.Name), l.LogsDir(s.Name)+"/"))
		}
		ix, skipped, err := buckets.Discover(l.LogsDir(s.Name), opts.StrictNames)
		if err != nil {
			return err
		}
		for _, name := range skipped {
			fmt.Fprintf(w, "  skip   : %s\n", name)
		}
		for _, y := range ix.Years() {
			targets := []report.Target{{Site: s, Year: y}}
			for _, m := range ix.Months(y) {
				targets = append(targets, report.Target{Site: s, Year: y, Month: m})
			}
			for _, t := range targets {
				p, err := deps.Reports.Plan(t)
				if err != nil {
					return err
				}
				if p.Native() {
					fmt.Fprintf(w, "  report : <%s> | %s\n", p.Pattern, p.Analyzer)
				} else {
					fmt.Fprintf(w, "  report : %s | %s\n", p.Stream, p.Analyzer)
				}
			}
		}
	}

	if opts.SkipUpload {
		fmt.Fprintf(w, "\nupload   : skipped\n")
	} else {
		fmt.Fprintf(w, "\nupload   : %s\n", deps.Sync.Command(l.ReportsDir+"/", s3sync.URI(opts.ReportsBucket, "")))
	}
	return nil
}
