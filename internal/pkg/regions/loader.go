package regions

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/spf13/viper"
)

// ReadFile parses a centroid data file. GeoJSON feature collections
// (.geojson) use each feature's "name" property and the centroid of its
// geometry; anything else is handed to viper and must carry a "regions" list.
func ReadFile(path string) ([]Entry, error) {
	if strings.EqualFold(filepath.Ext(path), ".geojson") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return parseGeoJSON(data)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc struct {
		Regions []Entry `mapstructure:"regions"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc.Regions, nil
}

func parseGeoJSON(data []byte) ([]Entry, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("geojson: %w", err)
	}

	entries := make([]Entry, 0, len(fc.Features))
	for _, f := range fc.Features {
		name := f.Properties.MustString("name", "")
		if name == "" || f.Geometry == nil {
			continue
		}

		var center orb.Point
		if p, ok := f.Geometry.(orb.Point); ok {
			center = p
		} else {
			center, _ = planar.CentroidArea(f.Geometry)
		}

		e := Entry{Name: name, Lat: center.Lat(), Lng: center.Lon()}
		if raw, ok := f.Properties["aliases"].([]interface{}); ok {
			for _, a := range raw {
				if s, ok := a.(string); ok {
					e.Aliases = append(e.Aliases, s)
				}
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// LoadFile reads path into a new table.
func LoadFile(path string, logger *slog.Logger) (*Table, error) {
	entries, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	t := New(entries)
	if dropped := len(entries) - t.Len(); dropped > 0 {
		logger.Warn("region entries skipped", "file", path, "skipped", dropped)
	}
	logger.Info("region table loaded", "file", path, "regions", t.Len())
	return t, nil
}

// Watch reloads the table whenever path changes on disk, until ctx is done.
// A file that fails to parse leaves the current contents in place.
func (t *Table) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch regions: %w", err)
	}

	// Watch the directory: editors and config managers replace files by rename.
	dir, file := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != file || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				entries, err := ReadFile(path)
				if err != nil {
					logger.Warn("region table reload failed", "file", path, "error", err)
					continue
				}
				n := t.Replace(entries)
				logger.Info("region table reloaded", "file", path, "regions", n)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("region watcher error", "error", err)
			}
		}
	}()
	return nil
}
