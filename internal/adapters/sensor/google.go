package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"googlemaps.github.io/maps"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
)

// Google locates the host through the Google Maps Geolocation API. Low
// accuracy requests rely on the caller's IP; high accuracy requests add the
// nearby WiFi access points and the serving cell tower.
type Google struct {
	client     *maps.Client
	modemIndex int
	logger     *slog.Logger

	scanWiFi  func(ctx context.Context) ([]maps.WiFiAccessPoint, error)
	scanCells func(ctx context.Context, modemIndex int) ([]maps.CellTower, error)
}

// NewGoogle creates a Google sensor.
func NewGoogle(apiKey string, modemIndex int, logger *slog.Logger) (*Google, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Google{
		client:     c,
		modemIndex: modemIndex,
		logger:     logger,
		scanWiFi:   getWiFiAccessPoints,
		scanCells:  getCellTowers,
	}, nil
}

func (g *Google) RequestLocation(ctx context.Context, req ports.SensorRequest) (domain.GeoPoint, error) {
	resp, err := g.client.Geolocate(ctx, g.buildRequest(ctx, req.HighAccuracy))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.GeoPoint{}, &domain.LocationError{Code: domain.LocationTimeout, Err: err}
		}
		return domain.GeoPoint{}, &domain.LocationError{Code: domain.LocationUnavailable, Err: fmt.Errorf("geolocate: %w", err)}
	}

	g.logger.Debug("google geolocation fix", "accuracy_m", resp.Accuracy)
	return domain.GeoPoint{Lat: resp.Location.Lat, Lng: resp.Location.Lng}, nil
}

// buildRequest gathers radio observations for high accuracy requests. Scan
// failures only narrow the request down to IP-based lookup.
func (g *Google) buildRequest(ctx context.Context, highAccuracy bool) *maps.GeolocationRequest {
	req := &maps.GeolocationRequest{ConsiderIP: true}
	if !highAccuracy {
		return req
	}

	if aps, err := g.scanWiFi(ctx); err != nil {
		g.logger.Debug("wifi scan unavailable", "error", err)
	} else {
		req.WiFiAccessPoints = aps
	}

	if towers, err := g.scanCells(ctx, g.modemIndex); err != nil {
		g.logger.Debug("cell scan unavailable", "error", err)
	} else {
		req.CellTowers = towers
	}
	return req
}
