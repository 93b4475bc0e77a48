package sites

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// LogType is a GoAccess --log-format name.
type LogType string

const (
	CloudFront   LogType = "CLOUDFRONT"
	Combined     LogType = "COMBINED"
	VCombined    LogType = "VCOMBINED"
	Common       LogType = "COMMON"
	VCommon      LogType = "VCOMMON"
	W3C          LogType = "W3C"
	CloudStorage LogType = "CLOUDSTORAGE"
	AWSELB       LogType = "AWSELB"
	AWSALB       LogType = "AWSALB"
	AWSS3        LogType = "AWSS3"
	Squid        LogType = "SQUID"
	Caddy        LogType = "CADDY"
	TraefikCLF   LogType = "TRAEFIKCLF"
)

var known = map[LogType]struct{}{
	CloudFront: {}, Combined: {}, VCombined: {}, Common: {}, VCommon: {}, W3C: {},
	CloudStorage: {}, AWSELB: {}, AWSALB: {}, AWSS3: {}, Squid: {}, Caddy: {}, TraefikCLF: {},
}

// IsCDN reports whether logs of this type arrive as gzip objects from the CDN.
func (t LogType) IsCDN() bool { return t == CloudFront }

func (t LogType) Valid() bool {
	_, ok := known[t]
	return ok
}

type Site struct {
	Name string  `json:"name" yaml:"name"`
	Type LogType `json:"type" yaml:"type"`
}

// Registry maps site names to their log format. It is read-only after construction.
type Registry struct {
	sites []Site
	index map[string]int
}

func New(list []Site) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(list))}
	for _, s := range list {
		s.Name = strings.TrimSpace(s.Name)
		s.Type = LogType(strings.ToUpper(strings.TrimSpace(string(s.Type))))
		if s.Name == "" {
			return nil, errors.New("sites: entry with empty name")
		}
		if strings.ContainsAny(s.Name, `/\`) || s.Name == "." || s.Name == ".." {
			return nil, fmt.Errorf("sites: %q is not usable as a directory name", s.Name)
		}
		if !s.Type.Valid() {
			return nil, fmt.Errorf("sites: %q has unknown log type %q", s.Name, s.Type)
		}
		if _, dup := r.index[s.Name]; dup {
			return nil, fmt.Errorf("sites: duplicate site %q", s.Name)
		}
		r.index[s.Name] = len(r.sites)
		r.sites = append(r.sites, s)
	}
	if len(r.sites) == 0 {
		return nil, errors.New("sites: no sites configured")
	}
	return r, nil
}

// Defaults returns the built-in registry used when no sites file is given.
func Defaults() *Registry {
	r, _ := New([]Site{
		{Name: "example.com", Type: CloudFront},
		{Name: "public.example.com", Type: CloudFront},
	})
	return r
}

// Load reads a registry from a JSON or YAML file. path == "" selects Defaults.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Defaults(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []Site
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &list)
	case ".json":
		err = sonic.Unmarshal(b, &list)
	default:
		return nil, errors.New("sites: unsupported file format (use .json or .yaml/.yml)")
	}
	if err != nil {
		return nil, fmt.Errorf("sites: parse %s: %w", path, err)
	}
	return New(list)
}

// All returns sites in configuration order.
func (r *Registry) All() []Site {
	return append([]Site(nil), r.sites...)
}

func (r *Registry) Lookup(name string) (Site, bool) {
	i, ok := r.index[name]
	if !ok {
		return Site{}, false
	}
	return r.sites[i], true
}

// Suggest returns the configured site names closest to name, nearest first.
func (r *Registry) Suggest(name string) []string {
	type cand struct {
		name string
		dist int
	}
	limit := len(name)/3 + 2
	var cs []cand
	for _, s := range r.sites {
		if d := levenshtein.ComputeDistance(name, s.Name); d <= limit {
			cs = append(cs, cand{s.Name, d})
		}
	}
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].dist < cs[j].dist })
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.name
	}
	return out
}

// Only narrows the registry to one site.
func (r *Registry) Only(name string) (*Registry, error) {
	s, ok := r.Lookup(name)
	if !ok {
		if sug := r.Suggest(name); len(sug) > 0 {
			return nil, fmt.Errorf("sites: unknown site %q (did you mean %q?)", name, sug[0])
		}
		return nil, fmt.Errorf("sites: unknown site %q", name)
	}
	return New([]Site{s})
}
