package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StreamExec   = "exec"
	StreamNative = "native"
)

type Config struct {
	LogsBucket    string
	ReportsBucket string
	SitesFile     string

	WorkDir    string
	ReportsDir string
	Stylesheet string
	GeoIPDB    string
	HTMLTheme  string

	AWSBin      string
	GoAccessBin string
	FindBin     string
	GunzipBin   string
	// RequiredCommands overrides the list derived from the binaries above.
	RequiredCommands []string

	StreamMode      string
	StrictNames     bool
	SyncDelete      bool
	SyncExtraArgs   []string
	SyncTimeout     time.Duration
	ReportTimeout   time.Duration
	SiteConcurrency int

	LedgerEnabled  bool
	MySQLHost      string
	MySQLPort      int
	MySQLUser      string
	MySQLPassword  string
	MySQLDB        string
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load() // optional

	cfg := &Config{
		LogsBucket:    getenv("LOGS_BUCKET", "logs.example.com"),
		ReportsBucket: getenv("REPORTS_BUCKET", "reports.example.com"),
		SitesFile:     getenv("SITES_FILE", ""),

		WorkDir:    getenv("WORK_DIR", "."),
		ReportsDir: getenv("REPORTS_DIR", "./reports"),
		Stylesheet: getenv("STYLESHEET", "./custom.css"),
		GeoIPDB:    getenv("GEOIP_DB", "./geoip/GeoLite2-City.mmdb"),
		HTMLTheme:  getenv("HTML_THEME", "bright"),

		AWSBin:           getenv("AWS_BIN", "aws"),
		GoAccessBin:      getenv("GOACCESS_BIN", "goaccess"),
		FindBin:          getenv("FIND_BIN", "find"),
		GunzipBin:        getenv("GUNZIP_BIN", "gunzip"),
		RequiredCommands: getenvList("REQUIRED_COMMANDS"),

		StreamMode:      strings.ToLower(getenv("STREAM_MODE", StreamExec)),
		StrictNames:     getenvBool("STRICT_NAMES", false),
		SyncDelete:      getenvBool("SYNC_DELETE", true),
		SyncExtraArgs:   strings.Fields(getenv("SYNC_EXTRA_ARGS", "")),
		SyncTimeout:     time.Duration(getenvInt("SYNC_TIMEOUT", 1800)) * time.Second,
		ReportTimeout:   time.Duration(getenvInt("REPORT_TIMEOUT", 3600)) * time.Second,
		SiteConcurrency: getenvInt("SITE_CONCURRENCY", 1),

		LedgerEnabled:  getenvBool("LEDGER_ENABLED", false),
		MySQLHost:      getenv("MYSQL_HOST", "127.0.0.1"),
		MySQLPort:      getenvInt("MYSQL_PORT", 3306),
		MySQLUser:      getenv("MYSQL_USER", "root"),
		MySQLPassword:  getenv("MYSQL_PASSWORD", ""),
		MySQLDB:        getenv("MYSQL_DB", "logreport"),
		ConnectTimeout: time.Duration(getenvInt("DB_CONNECT_TIMEOUT", 5)) * time.Second,
		QueryTimeout:   time.Duration(getenvInt("DB_QUERY_TIMEOUT", 30)) * time.Second,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	switch c.StreamMode {
	case StreamExec, StreamNative:
	default:
		return fmt.Errorf("config: STREAM_MODE must be %q or %q (got %q)", StreamExec, StreamNative, c.StreamMode)
	}
	if strings.TrimSpace(c.LogsBucket) == "" || strings.TrimSpace(c.ReportsBucket) == "" {
		return fmt.Errorf("config: LOGS_BUCKET and REPORTS_BUCKET must not be empty")
	}
	if c.SiteConcurrency < 1 {
		c.SiteConcurrency = 1
	}
	return nil
}

// Commands returns the executables the run depends on.
func (c *Config) Commands() []string {
	if len(c.RequiredCommands) > 0 {
		return c.RequiredCommands
	}
	cmds := []string{c.AWSBin, c.GoAccessBin}
	if c.StreamMode == StreamExec {
		cmds = append(cmds, c.FindBin, c.GunzipBin)
	}
	return cmds
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// getenvList splits a comma separated value, dropping empty items.
func getenvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
