package buckets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

var tokenRe = regexp.MustCompile(`(\d{4})-(\d{2})`)

// Index maps a year to the set of months seen for it.
type Index map[string]map[string]struct{}

func (ix Index) Add(year, month string) {
	m, ok := ix[year]
	if !ok {
		m = make(map[string]struct{})
		ix[year] = m
	}
	m[month] = struct{}{}
}

// Years returns the years in ascending order.
func (ix Index) Years() []string {
	out := make([]string, 0, len(ix))
	for y := range ix {
		out = append(out, y)
	}
	sort.Strings(out)
	return out
}

// Months returns the months of year in ascending order.
func (ix Index) Months(year string) []string {
	out := make([]string, 0, len(ix[year]))
	for m := range ix[year] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// MalformedNameError is returned in strict mode for a name without a YYYY-MM token.
type MalformedNameError struct {
	Name string
}

func (e *MalformedNameError) Error() string {
	return fmt.Sprintf("buckets: %q has no YYYY-MM token", e.Name)
}

// Extract returns the first YYYY-MM token of name.
func Extract(name string) (year, month string, ok bool) {
	m := tokenRe.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Discover groups the direct entries of dir by the year and month embedded in
// their names. In strict mode a name without a token aborts discovery; otherwise
// such names are returned in skipped. A missing dir yields an empty index.
func Discover(dir string, strict bool) (Index, []string, error) {
	ix := make(Index)
	ents, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return ix, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("buckets: list %s: %w", dir, err)
	}
	var skipped []string
	for _, e := range ents {
		name := filepath.Base(e.Name())
		y, m, ok := Extract(name)
		if !ok {
			if strict {
				return nil, nil, &MalformedNameError{Name: name}
			}
			skipped = append(skipped, name)
			continue
		}
		ix.Add(y, m)
	}
	return ix, skipped, nil
}
