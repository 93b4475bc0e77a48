package workspace

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/danjacques/gofslock/fslock"
)

const (
	lockName       = ".reportgen.lock"
	stylesheetName = "custom.css"
)

// ErrBusy is returned by Lock when another run holds the workspace.
var ErrBusy = errors.New("workspace: another run holds the lock")

// Layout describes where per-site data and reports live on disk.
type Layout struct {
	Root       string // <Root>/<site>/logs, <Root>/<site>/db
	ReportsDir string // <ReportsDir>/<site>/<year>[/<month>]/index.html
	Stylesheet string // source copied to <ReportsDir>/<site>/custom.css
}

func (l Layout) SiteDir(site string) string { return filepath.Join(l.Root, site) }
func (l Layout) LogsDir(site string) string { return filepath.Join(l.Root, site, "logs") }
func (l Layout) DBDir(site string) string { return filepath.Join(l.Root, site, "db") }
func (l Layout) SiteReports(site string) string { return filepath.Join(l.ReportsDir, site) }

// ReportDir returns the bucket folder; month == "" is the yearly folder.
func (l Layout) ReportDir(site, year, month string) string {
	if month == "" {
		return filepath.Join(l.ReportsDir, site, year)
	}
	return filepath.Join(l.ReportsDir, site, year, month)
}

// EnsureSiteFolders creates the logs and db folders. Existing folders are fine.
func (l Layout) EnsureSiteFolders(site string) error {
	for _, d := range []string{l.LogsDir(site), l.DBDir(site)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("workspace: create %s: %w", d, err)
		}
	}
	return nil
}

// ClearLogs removes the local copy of a site's logs. A missing folder is fine.
func (l Layout) ClearLogs(site string) error {
	if err := os.RemoveAll(l.LogsDir(site)); err != nil {
		return fmt.Errorf("workspace: clear logs for %s: %w", site, err)
	}
	return nil
}

// PrepareReportFolder creates the report bucket folder and makes sure the
// site's stylesheet matches the source.
func (l Layout) PrepareReportFolder(site, year, month string) error {
	dir := l.ReportDir(site, year, month)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("workspace: create %s: %w", dir, err)
	}
	return l.syncStylesheet(site)
}

func (l Layout) syncStylesheet(site string) error {
	src, err := os.ReadFile(l.Stylesheet)
	if err != nil {
		return fmt.Errorf("workspace: read stylesheet: %w", err)
	}
	dst := filepath.Join(l.SiteReports(site), stylesheetName)
	if cur, err := os.ReadFile(dst); err == nil && bytes.Equal(cur, src) {
		return nil
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, src, 0o644); err != nil {
		return fmt.Errorf("workspace: write stylesheet: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("workspace: install stylesheet: %w", err)
	}
	return nil
}

// LogStats counts regular files and their total size under the logs folder.
func (l Layout) LogStats(site string) (int, int64, error) {
	var files int
	var size int64
	err := filepath.WalkDir(l.LogsDir(site), func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		size += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, nil
	}
	return files, size, err
}

// Unlocker releases a workspace lock.
type Unlocker interface {
	Unlock() error
}

// Lock takes an exclusive, non-blocking lock on the workspace root.
func (l Layout) Lock() (Unlocker, error) {
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create root: %w", err)
	}
	h, err := fslock.Lock(filepath.Join(l.Root, lockName))
	switch {
	case err == fslock.ErrLockHeld:
		return nil, ErrBusy
	case err != nil:
		return nil, fmt.Errorf("workspace: lock: %w", err)
	}
	return h, nil
}
