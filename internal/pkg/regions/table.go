// Package regions holds the region-name → centroid table used as the
// fallback location for entities without an exact coordinate.
package regions

import (
	"math"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/samirrijal/proxima/internal/core/domain"
)

// Entry is one region centroid, as stored in a data file.
type Entry struct {
	Name    string   `mapstructure:"name" json:"name"`
	Lat     float64  `mapstructure:"lat" json:"lat"`
	Lng     float64  `mapstructure:"lng" json:"lng"`
	Aliases []string `mapstructure:"aliases" json:"aliases,omitempty"`
}

// Point returns the entry's centroid.
func (e Entry) Point() domain.GeoPoint {
	return domain.GeoPoint{Lat: e.Lat, Lng: e.Lng}
}

// Normalize folds case and whitespace so that " South AFRICA " and
// "south africa" address the same region.
func Normalize(name string) string {
	return strings.Join(strings.Fields(cases.Fold().String(name)), " ")
}

// Table is a concurrency-safe lookup of normalized region names.
// The zero value is an empty table.
type Table struct {
	mu      sync.RWMutex
	entries []Entry
	index   map[string]domain.GeoPoint
}

// New builds a table from entries, skipping invalid ones.
func New(entries []Entry) *Table {
	t := &Table{}
	t.Replace(entries)
	return t
}

// Replace swaps the table contents atomically and returns how many entries
// were accepted. Entries with an empty name or out-of-range coordinate are
// dropped; later duplicates win.
func (t *Table) Replace(entries []Entry) int {
	index := make(map[string]domain.GeoPoint, len(entries))
	byName := make(map[string]Entry, len(entries))
	for _, e := range entries {
		key := Normalize(e.Name)
		if key == "" || !e.Point().Valid() {
			continue
		}
		byName[key] = e
		index[key] = e.Point()
		for _, alias := range e.Aliases {
			if a := Normalize(alias); a != "" {
				index[a] = e.Point()
			}
		}
	}

	kept := make([]Entry, 0, len(byName))
	for _, e := range byName {
		kept = append(kept, e)
	}
	sort.Slice(kept, func(i, j int) bool { return Normalize(kept[i].Name) < Normalize(kept[j].Name) })

	t.mu.Lock()
	t.entries = kept
	t.index = index
	t.mu.Unlock()
	return len(kept)
}

// Lookup returns the centroid for a region name in any case/spacing.
func (t *Table) Lookup(name string) (domain.GeoPoint, bool) {
	key := Normalize(name)
	if key == "" {
		return domain.GeoPoint{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.index[key]
	return p, ok
}

// Len returns the number of distinct regions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Entries returns a copy of the regions sorted by normalized name.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Nearest returns the region whose centroid is closest to p.
func (t *Table) Nearest(p domain.GeoPoint) (domain.RegionMatch, bool) {
	if !p.Valid() {
		return domain.RegionMatch{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	best := domain.RegionMatch{DistanceKm: math.Inf(1)}
	for _, e := range t.entries {
		if d := p.DistanceKm(e.Point()); d < best.DistanceKm {
			best = domain.RegionMatch{Name: e.Name, Centroid: e.Point(), DistanceKm: d}
		}
	}
	return best, best.Name != ""
}
