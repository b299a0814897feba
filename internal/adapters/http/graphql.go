package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/proxima/internal/core/domain"
)

func geoPointMap(p *domain.GeoPoint) map[string]interface{} {
	if p == nil {
		return nil
	}
	return map[string]interface{}{"lat": p.Lat, "lng": p.Lng}
}

func rankedEntityMap(e domain.RankedEntity) map[string]interface{} {
	m := map[string]interface{}{
		"id":        e.ID,
		"name":      e.Name,
		"region":    e.RegionName,
		"online":    e.IsOnline,
		"precision": e.Precision.String(),
		"location":  geoPointMap(e.ResolvedLocation),
	}
	if e.DistanceKm != nil {
		m["distance_km"] = *e.DistanceKm
	}
	return m
}

func regionMatchMap(r domain.RegionMatch) map[string]interface{} {
	return map[string]interface{}{
		"name":        r.Name,
		"centroid":    geoPointMap(&r.Centroid),
		"distance_km": r.DistanceKm,
	}
}

// optionalPoint reads nullable lat/lng arguments, which must come in pairs.
func optionalPoint(args map[string]interface{}) (*domain.GeoPoint, error) {
	lat, hasLat := args["lat"].(float64)
	lng, hasLng := args["lng"].(float64)
	if !hasLat && !hasLng {
		return nil, nil
	}
	if hasLat != hasLng {
		return nil, errHalfCoordinate
	}
	p := domain.GeoPoint{Lat: lat, Lng: lng}
	if !p.Valid() {
		return nil, errors.New("coordinate out of range")
	}
	return &p, nil
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	entityType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RankedEntity",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"name":        &graphql.Field{Type: graphql.String},
			"region":      &graphql.Field{Type: graphql.String},
			"online":      &graphql.Field{Type: graphql.Boolean},
			"precision":   &graphql.Field{Type: graphql.String},
			"location":    &graphql.Field{Type: geoPointType},
			"distance_km": &graphql.Field{Type: graphql.Float},
		},
	})

	regionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Region",
		Fields: graphql.Fields{
			"name":     &graphql.Field{Type: graphql.String},
			"centroid": &graphql.Field{Type: geoPointType},
		},
	})

	regionMatchType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RegionMatch",
		Fields: graphql.Fields{
			"name":        &graphql.Field{Type: graphql.String},
			"centroid":    &graphql.Field{Type: geoPointType},
			"distance_km": &graphql.Field{Type: graphql.Float},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"rankedEntities": &graphql.Field{
				Type:        graphql.NewList(entityType),
				Description: "Catalog ranked by distance from an optional consumer position",
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.Float},
					"lng":    &graphql.ArgumentConfig{Type: graphql.Float},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					consumer, err := optionalPoint(p.Args)
					if err != nil {
						return nil, err
					}
					ranked, err := deps.Proximity.Rank(p.Context, consumer)
					if err != nil {
						return nil, err
					}
					page, _ := paginate(ranked, p.Args["offset"].(int), p.Args["limit"].(int), 50, 200)
					result := make([]map[string]interface{}, 0, len(page))
					for _, e := range page {
						result = append(result, rankedEntityMap(e))
					}
					return result, nil
				},
			},
			"regions": &graphql.Field{
				Type:        graphql.NewList(regionType),
				Description: "Known region centroids",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					entries := deps.Regions.Entries()
					result := make([]map[string]interface{}, 0, len(entries))
					for _, e := range entries {
						pt := e.Point()
						result = append(result, map[string]interface{}{
							"name":     e.Name,
							"centroid": geoPointMap(&pt),
						})
					}
					return result, nil
				},
			},
			"nearestRegion": &graphql.Field{
				Type:        regionMatchType,
				Description: "Region whose centroid is closest to a point",
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pt, err := optionalPoint(p.Args)
					if err != nil {
						return nil, err
					}
					match, ok := deps.Proximity.InferRegion(*pt)
					if !ok {
						return nil, nil
					}
					return regionMatchMap(match), nil
				},
			},
			"catalogVersion": &graphql.Field{
				Type:        graphql.Int,
				Description: "Generation of the resolved catalog",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return int(deps.Proximity.CatalogVersion()), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// Programming error in the schema definition.
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
