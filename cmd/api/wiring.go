package main

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/samirrijal/proxima/internal/adapters/sensor"
	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
	"github.com/samirrijal/proxima/internal/core/usecases"
	"github.com/samirrijal/proxima/internal/pkg/config"
)

func profilesFromConfig(c config.AcquisitionConfig) map[domain.ProfileName]domain.AcquisitionProfile {
	profile := func(name domain.ProfileName, p config.ProfileConfig) domain.AcquisitionProfile {
		return domain.AcquisitionProfile{
			Name:         name,
			HighAccuracy: p.HighAccuracy,
			Timeout:      p.Timeout,
			MaxCacheAge:  p.MaxCacheAge,
		}
	}
	return map[domain.ProfileName]domain.AcquisitionProfile{
		domain.ProfileFast:    profile(domain.ProfileFast, c.Fast),
		domain.ProfilePrecise: profile(domain.ProfilePrecise, c.Precise),
	}
}

func viewportFromConfig(c config.ViewportConfig) usecases.ViewportConfig {
	return usecases.ViewportConfig{
		DefaultCenter:        domain.GeoPoint{Lat: c.DefaultLat, Lng: c.DefaultLng},
		ZoomClose:            c.ZoomClose,
		ZoomMedium:           c.ZoomMedium,
		ZoomWide:             c.ZoomWide,
		ZoomWorld:            c.ZoomWorld,
		SeveralMax:           c.SeveralMax,
		ApplyMaxRetries:      c.ApplyMaxRetries,
		ApplyInitialInterval: c.ApplyInitialInterval,
		ApplyMaxInterval:     c.ApplyMaxInterval,
		ApplyMaxElapsed:      c.ApplyMaxElapsed,
	}
}

// sensorFromConfig builds the server-side sensor. The client backend has
// none: map clients report their own position.
func sensorFromConfig(c config.SensorConfig, logger *slog.Logger) (ports.LocationSensor, error) {
	switch c.Backend {
	case config.SensorClient:
		return nil, nil
	case config.SensorGoogle:
		return sensor.NewGoogle(c.MapsAPIKey, c.ModemIndex, logger)
	case config.SensorGPS:
		return sensor.NewGPS(c.GPSPort, c.GPSBaudRate), nil
	case config.SensorFixed:
		return sensor.NewFixed(c.FixedLat, c.FixedLng), nil
	default:
		return nil, fmt.Errorf("unknown sensor backend %q", c.Backend)
	}
}

// corsConfig must allow every method the router registers.
func corsConfig() cors.Config {
	return cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}
}
