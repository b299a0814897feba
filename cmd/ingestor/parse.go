package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cast"

	"github.com/samirrijal/proxima/internal/core/domain"
)

func readCatalog(ctx context.Context, client *http.Client, c CatalogEntry) ([]byte, error) {
	if c.Path != "" {
		return os.ReadFile(c.Path)
	}
	if c.URL == "" {
		return nil, errors.New("catalog needs a path or url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, c.URL)
	}
	return io.ReadAll(resp.Body)
}

// parseCatalog decodes a catalog file. Rows lacking an id or a name are
// skipped and counted. Coordinates are kept as submitted.
func parseCatalog(data []byte, format string) ([]domain.LocatableEntity, int, error) {
	switch strings.ToLower(format) {
	case "csv", "":
		return parseCSV(data)
	case "json":
		return parseJSON(data)
	default:
		return nil, 0, fmt.Errorf("unsupported catalog format %q", format)
	}
}

var csvCoreColumns = map[string]bool{
	"id": true, "name": true, "lat": true, "lng": true, "region": true, "is_online": true,
}

// parseCSV reads a header row then one provider per row. Columns other than
// id, name, lat, lng, region and is_online become attributes.
func parseCSV(data []byte) ([]domain.LocatableEntity, int, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	cols := indexColumns(header)
	if _, ok := cols["id"]; !ok {
		return nil, 0, errors.New("csv header has no id column")
	}

	var (
		out     []domain.LocatableEntity
		skipped int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}

		e := domain.LocatableEntity{
			ID:         getField(record, cols, "id"),
			Name:       getField(record, cols, "name"),
			RegionName: getField(record, cols, "region"),
			IsOnline:   cast.ToBool(getField(record, cols, "is_online")),
		}
		if e.ID == "" || e.Name == "" {
			skipped++
			continue
		}

		lat, lng := getField(record, cols, "lat"), getField(record, cols, "lng")
		if lat != "" || lng != "" {
			e.ExactLocation = &domain.RawPoint{Lat: nilEmpty(lat), Lng: nilEmpty(lng)}
		}

		for name, i := range cols {
			if csvCoreColumns[name] || i >= len(record) || record[i] == "" {
				continue
			}
			if e.Attributes == nil {
				e.Attributes = map[string]any{}
			}
			e.Attributes[name] = record[i]
		}
		out = append(out, e)
	}
	return out, skipped, nil
}

func parseJSON(data []byte) ([]domain.LocatableEntity, int, error) {
	var all []domain.LocatableEntity
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, 0, fmt.Errorf("decode json: %w", err)
	}
	out := all[:0]
	skipped := 0
	for _, e := range all {
		if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.Name) == "" {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, skipped, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[h] = i
	}
	return cols
}

func getField(record []string, cols map[string]int, name string) string {
	if i, ok := cols[name]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}

func nilEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
