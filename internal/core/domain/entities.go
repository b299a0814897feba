package domain

import "encoding/json"

// LocationPrecision describes how an entity's map coordinate was obtained.
// Higher values are preferred.
type LocationPrecision int

const (
	PrecisionUnknown LocationPrecision = iota
	PrecisionRegion
	PrecisionExact
)

func (p LocationPrecision) String() string {
	switch p {
	case PrecisionExact:
		return "exact"
	case PrecisionRegion:
		return "region"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the precision by name.
func (p LocationPrecision) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a precision name; unrecognised names map to unknown.
func (p *LocationPrecision) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "exact":
		*p = PrecisionExact
	case "region":
		*p = PrecisionRegion
	default:
		*p = PrecisionUnknown
	}
	return nil
}

// LocatableEntity is a service provider record as read from the catalog.
type LocatableEntity struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	ExactLocation *RawPoint      `json:"exact_location,omitempty"`
	RegionName    string         `json:"region_name,omitempty"`
	IsOnline      bool           `json:"is_online"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// ResolvedEntity is a catalog entity with its best-known map coordinate.
type ResolvedEntity struct {
	LocatableEntity
	ResolvedLocation *GeoPoint         `json:"resolved_location,omitempty"`
	Precision        LocationPrecision `json:"location_precision"`
}

// Placeable reports whether the entity can be drawn on a map.
func (e ResolvedEntity) Placeable() bool {
	return e.ResolvedLocation != nil && e.Precision != PrecisionUnknown
}

// RankedEntity is a resolved entity annotated with its distance to the consumer.
type RankedEntity struct {
	ResolvedEntity
	DistanceKm *float64 `json:"distance_km,omitempty"` // computed field
}
