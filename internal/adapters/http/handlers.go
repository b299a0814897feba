package http

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/usecases"
)

var errHalfCoordinate = errors.New("lat and lng must be given together")

// parseConsumer reads an optional lat/lng pair from the query string.
// Absent coordinates yield nil.
func parseConsumer(c *fiber.Ctx) (*domain.GeoPoint, error) {
	latStr := strings.TrimSpace(c.Query("lat"))
	lngStr := strings.TrimSpace(c.Query("lng"))
	if latStr == "" && lngStr == "" {
		return nil, nil
	}
	if latStr == "" || lngStr == "" {
		return nil, errHalfCoordinate
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, errors.New("lat must be a number")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, errors.New("lng must be a number")
	}

	p := domain.GeoPoint{Lat: lat, Lng: lng}
	if !p.Valid() {
		return nil, errors.New("lat must be within [-90, 90] and lng within [-180, 180]")
	}
	return &p, nil
}

// RankedEntitiesHandler returns the catalog ranked by proximity to the
// optional consumer coordinate.
func RankedEntitiesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		consumer, err := parseConsumer(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		ranked, err := deps.Proximity.Rank(c.UserContext(), consumer)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("ranking failed", "error", err)
			return errInternal(c, "could not rank catalog")
		}

		page, pg := paginate(ranked, c.QueryInt("offset", 0), c.QueryInt("limit", 50), 50, 200)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// MapView is the payload of GET /v1/entities/map.
type MapView struct {
	Entities []domain.RankedEntity `json:"entities"`
	Bounds   *domain.Bounds        `json:"bounds,omitempty"`
	Viewport domain.Viewport       `json:"viewport"`
	Unplaced int                   `json:"unplaced"`
}

// MapEntitiesHandler returns the placeable entities with their bounding box
// and the viewport a map should show for them.
func MapEntitiesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		consumer, err := parseConsumer(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		ranked, err := deps.Proximity.Rank(c.UserContext(), consumer)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("ranking failed", "error", err)
			return errInternal(c, "could not rank catalog")
		}

		placed := usecases.MapPlacements(ranked)
		view := MapView{
			Entities: placed,
			Bounds:   boundsOf(placed, consumer),
			Viewport: usecases.ComputeViewportTarget(consumer, ranked, deps.MapSessions.Viewport),
			Unplaced: len(ranked) - len(placed),
		}
		return c.JSON(view)
	}
}

// boundsOf returns the box around the placed entities and the consumer.
func boundsOf(placed []domain.RankedEntity, consumer *domain.GeoPoint) *domain.Bounds {
	var mp orb.MultiPoint
	for _, e := range placed {
		mp = append(mp, orb.Point{e.ResolvedLocation.Lng, e.ResolvedLocation.Lat})
	}
	if consumer != nil {
		mp = append(mp, orb.Point{consumer.Lng, consumer.Lat})
	}
	if len(mp) == 0 {
		return nil
	}
	b := mp.Bound()
	return &domain.Bounds{MinLat: b.Min.Lat(), MinLng: b.Min.Lon(), MaxLat: b.Max.Lat(), MaxLng: b.Max.Lon()}
}

// ListRegionsHandler returns the region centroid table.
func ListRegionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entries := deps.Regions.Entries()
		c.Set("Cache-Control", "public, max-age=3600")
		return c.JSON(fiber.Map{"data": entries, "total": len(entries)})
	}
}

// NearestRegionHandler returns the region whose centroid is closest to a point.
func NearestRegionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := parseConsumer(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if p == nil {
			return errBadRequest(c, "lat and lng are required")
		}

		match, ok := deps.Proximity.InferRegion(*p)
		if !ok {
			return errNotFound(c, "no regions loaded")
		}
		return c.JSON(match)
	}
}

// LocateResponse is the payload of POST /v1/locate.
type LocateResponse struct {
	Profile  domain.ProfileName  `json:"profile"`
	Location domain.GeoPoint     `json:"location"`
	Region   *domain.RegionMatch `json:"region,omitempty"`
}

// LocateHandler acquires the host position from the server-side sensor.
func LocateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Acquirer == nil {
			return newError(c, fiber.StatusNotImplemented, "sensor_unavailable",
				"no server-side location sensor is configured")
		}

		profile := domain.ProfileName(c.Query("profile", string(domain.ProfileFast)))
		if _, ok := deps.Acquirer.Profile(profile); !ok {
			return errBadRequest(c, "profile must be fast or precise")
		}

		p, err := deps.Acquirer.Acquire(c.UserContext(), profile)
		if err != nil {
			return errLocation(c, err)
		}

		resp := LocateResponse{Profile: profile, Location: p}
		if match, ok := deps.Proximity.InferRegion(p); ok {
			resp.Region = &match
		}
		return c.JSON(resp)
	}
}

// SessionHandler returns a live map session's state.
func SessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, ok := deps.Sessions.Get(c.Params("id"))
		if !ok {
			return errNotFound(c, "session not found")
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(s.Snapshot())
	}
}

// RefreshCatalogHandler drops the resolved catalog and tells other instances.
func RefreshCatalogHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Proximity.RefreshCatalog(c.UserContext()); err != nil {
			LoggerFromCtx(c.UserContext()).Warn("catalog refresh not broadcast", "error", err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status":  "refreshing",
			"version": deps.Proximity.CatalogVersion(),
		})
	}
}

type presenceRequest struct {
	Online *bool `json:"online"`
}

// PresenceHandler accepts a provider heartbeat and forwards it to the
// presence worker.
func PresenceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Presence == nil {
			return newError(c, fiber.StatusServiceUnavailable, "presence_unavailable", "presence updates are not accepted right now")
		}
		var req presenceRequest
		if err := c.BodyParser(&req); err != nil || req.Online == nil {
			return errBadRequest(c, "body must be {\"online\": true|false}")
		}
		ev := domain.PresenceEvent{ProviderID: c.Params("id"), Online: *req.Online, At: time.Now().UTC()}
		if err := deps.Presence.PublishPresence(c.UserContext(), ev); err != nil {
			LoggerFromCtx(c.UserContext()).Error("failed to publish presence", "provider", ev.ProviderID, "error", err)
			return errInternal(c, "could not record presence")
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}
