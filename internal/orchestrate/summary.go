package orchestrate

import (
	"io"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"logreport/internal/ledger"
)

// Step is the outcome of one sync or report step.
type Step struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func (s Step) failed() bool { return s.Status == ledger.StatusFailed }

type ReportOutcome struct {
	Year   string `json:"year"`
	Month  string `json:"month,omitempty"`
	Output string `json:"output"`
	Files  int    `json:"files"`
	Step
}

type SiteOutcome struct {
	Site     string          `json:"site"`
	Prepare  Step            `json:"prepare"`
	Sync     Step            `json:"sync"`
	Discover Step            `json:"discover"`
	Skipped  []string        `json:"skipped_names,omitempty"`
	Reports  []ReportOutcome `json:"reports"`
}

// Failed reports whether any step of the site failed.
func (o *SiteOutcome) Failed() bool {
	if o.Prepare.failed() || o.Sync.failed() || o.Discover.failed() {
		return true
	}
	for _, r := range o.Reports {
		if r.failed() {
			return true
		}
	}
	return false
}

type Summary struct {
	RunID    string         `json:"run_id"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Sites    []*SiteOutcome `json:"sites"`
	Upload   Step           `json:"upload"`
}

// Failed is true when any site or the report upload failed.
func (s *Summary) Failed() bool {
	if s.Upload.failed() {
		return true
	}
	for _, o := range s.Sites {
		if o != nil && o.Failed() {
			return true
		}
	}
	return false
}

// Counts returns the number of reports per status.
func (s *Summary) Counts() map[string]int {
	out := map[string]int{}
	for _, o := range s.Sites {
		if o == nil {
			continue
		}
		for _, r := range o.Reports {
			out[r.Status]++
		}
	}
	return out
}

func (s *Summary) WriteJSON(w io.Writer) error {
	b, err := sonic.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// WriteFile writes the summary JSON to path, replacing it atomically.
func (s *Summary) WriteFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := s.WriteJSON(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
