package http

import (
	"fmt"
	"slices"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// stringer resolves named string types (phase, status, source) that graphql.String
// would otherwise not recognise.
func stringer[T ~string](get func(src any) (T, bool)) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		v, ok := get(p.Source)
		if !ok {
			return nil, nil
		}
		return string(v), nil
	}
}

func argCoordinate(p graphql.ResolveParams) (domain.Coordinate, error) {
	pt := domain.Coordinate{Lat: p.Args["lat"].(float64), Lng: p.Args["lng"].(float64)}
	if !pt.Valid() {
		return pt, domain.NewError(domain.KindInvalidCoordinate, "graphql", fmt.Sprintf("invalid coordinate %v,%v", pt.Lat, pt.Lng), nil)
	}
	return pt, nil
}

var coordinateArgs = graphql.FieldConfigArgument{
	"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
	"lng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"lat":      &graphql.Field{Type: graphql.Float},
			"lng":      &graphql.Field{Type: graphql.Float},
			"accuracy": &graphql.Field{Type: graphql.Float},
		},
	})

	minuteRangeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MinuteRange",
		Fields: graphql.Fields{
			"min": &graphql.Field{Type: graphql.Int},
			"max": &graphql.Field{Type: graphql.Int},
		},
	})

	zoneType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Zone",
		Fields: graphql.Fields{
			"id":                      &graphql.Field{Type: graphql.Int},
			"name":                    &graphql.Field{Type: graphql.String},
			"center":                  &graphql.Field{Type: coordinateType},
			"maximum_distance_meters": &graphql.Field{Type: graphql.Float},
			"minimum_order":           &graphql.Field{Type: graphql.Float},
			"delivery_fee": &graphql.Field{Type: graphql.NewObject(graphql.ObjectConfig{
				Name: "DeliveryFee",
				Fields: graphql.Fields{
					"minimum": &graphql.Field{Type: graphql.Float},
					"per_km":  &graphql.Field{Type: graphql.Float},
				},
			})},
			"delivery_time_minutes": &graphql.Field{Type: minuteRangeType},
			"status": &graphql.Field{Type: graphql.String, Resolve: stringer(func(src any) (domain.ZoneStatus, bool) {
				z, ok := src.(domain.Zone)
				return z.Status, ok
			})},
		},
	})

	coverageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ZoneCoverage",
		Fields: graphql.Fields{
			"zone_id":         &graphql.Field{Type: graphql.Int},
			"zone_name":       &graphql.Field{Type: graphql.String},
			"distance_meters": &graphql.Field{Type: graphql.Float},
			"in_polygon":      &graphql.Field{Type: graphql.Boolean},
			"in_range":        &graphql.Field{Type: graphql.Boolean},
			"source": &graphql.Field{Type: graphql.String, Resolve: stringer(func(src any) (domain.CoverageSource, bool) {
				c, ok := src.(*domain.ZoneCoverage)
				if !ok || c == nil {
					return "", false
				}
				return c.Source, true
			})},
		},
	})

	resolutionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ZoneResolution",
		Fields: graphql.Fields{
			"covered": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					res, _ := p.Source.(*domain.ZoneResolution)
					return res.Covered(), nil
				},
			},
			"coverage": &graphql.Field{Type: coverageType},
			"nearest":  &graphql.Field{Type: coverageType},
		},
	})

	storeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Store",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.String},
			"name":            &graphql.Field{Type: graphql.String},
			"address":         &graphql.Field{Type: graphql.String},
			"coordinate":      &graphql.Field{Type: coordinateType},
			"zone_id":         &graphql.Field{Type: graphql.Int},
			"distance_meters": &graphql.Field{Type: graphql.Float},
			"operating_hours": &graphql.Field{Type: graphql.String},
			"is_open":         &graphql.Field{Type: graphql.Boolean},
		},
	})

	addressType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Address",
		Fields: graphql.Fields{
			"formatted":     &graphql.Field{Type: graphql.String},
			"street_number": &graphql.Field{Type: graphql.String},
			"street":        &graphql.Field{Type: graphql.String},
			"city":          &graphql.Field{Type: graphql.String},
			"state":         &graphql.Field{Type: graphql.String},
			"postal_code":   &graphql.Field{Type: graphql.String},
			"country":       &graphql.Field{Type: graphql.String},
			"coordinate":    &graphql.Field{Type: coordinateType},
			"place_id":      &graphql.Field{Type: graphql.String},
		},
	})

	quoteType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DeliveryQuote",
		Fields: graphql.Fields{
			"zone_id":                &graphql.Field{Type: graphql.Int},
			"zone_name":              &graphql.Field{Type: graphql.String},
			"deliverable":            &graphql.Field{Type: graphql.Boolean},
			"meets_minimum":          &graphql.Field{Type: graphql.Boolean},
			"minimum_order":          &graphql.Field{Type: graphql.Float},
			"delivery_fee":           &graphql.Field{Type: graphql.Float},
			"distance_meters":        &graphql.Field{Type: graphql.Float},
			"estimated_time_minutes": &graphql.Field{Type: minuteRangeType},
		},
	})

	snapshotType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LocationSnapshot",
		Fields: graphql.Fields{
			"session_id": &graphql.Field{Type: graphql.String},
			"phase": &graphql.Field{Type: graphql.String, Resolve: stringer(func(src any) (domain.Phase, bool) {
				s, ok := src.(domain.LocationSnapshot)
				return s.Phase, ok
			})},
			"current_location": &graphql.Field{Type: coordinateType},
			"address":          &graphql.Field{Type: graphql.String},
			"resolution":       &graphql.Field{Type: resolutionType},
			"nearby_stores":    &graphql.Field{Type: graphql.NewList(storeType)},
			"selected_store_id": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, _ := p.Source.(domain.LocationSnapshot)
					return s.Selection.StoreID, nil
				},
			},
			"last_error": &graphql.Field{Type: graphql.NewObject(graphql.ObjectConfig{
				Name: "LocationError",
				Fields: graphql.Fields{
					"kind":       &graphql.Field{Type: graphql.String},
					"message":    &graphql.Field{Type: graphql.String},
					"actionable": &graphql.Field{Type: graphql.Boolean},
				},
			})},
			"stale":   &graphql.Field{Type: graphql.Boolean},
			"version": &graphql.Field{Type: graphql.Int},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"zones": &graphql.Field{
				Type:        graphql.NewList(zoneType),
				Description: "The delivery zone catalogue",
				Args: graphql.FieldConfigArgument{
					"activeOnly": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					zones, err := deps.Zones.Zones(p.Context)
					if err != nil {
						return nil, err
					}
					if p.Args["activeOnly"].(bool) {
						zones = slices.DeleteFunc(slices.Clone(zones), func(z domain.Zone) bool { return !z.Active() })
					}
					return zones, nil
				},
			},
			"coverage": &graphql.Field{
				Type:        resolutionType,
				Description: "Delivery zone covering a coordinate",
				Args:        coordinateArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pt, err := argCoordinate(p)
					if err != nil {
						return nil, err
					}
					return deps.Zones.ResolveZone(p.Context, pt)
				},
			},
			"deliveryQuote": &graphql.Field{
				Type:        quoteType,
				Description: "Delivery fee and time for an order at a coordinate",
				Args: graphql.FieldConfigArgument{
					"lat":         coordinateArgs["lat"],
					"lng":         coordinateArgs["lng"],
					"orderAmount": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 0.0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pt, err := argCoordinate(p)
					if err != nil {
						return nil, err
					}
					return deps.Zones.ValidateDelivery(p.Context, pt, p.Args["orderAmount"].(float64))
				},
			},
			"storesNearby": &graphql.Field{
				Type:        graphql.NewList(storeType),
				Description: "Stores serving a coordinate, closest first",
				Args:        coordinateArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pt, err := argCoordinate(p)
					if err != nil {
						return nil, err
					}
					res, err := deps.Zones.ResolveZone(p.Context, pt)
					if err != nil {
						return nil, err
					}
					return deps.Stores.ResolveStores(p.Context, pt, res)
				},
			},
			"geocode": &graphql.Field{
				Type:        coordinateType,
				Description: "Coordinate of an address",
				Args: graphql.FieldConfigArgument{
					"address": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Geocoder == nil {
						return nil, domain.NewError(domain.KindProviderError, "graphql", "geocoding not configured", nil)
					}
					return deps.Geocoder.AddressToCoordinate(p.Context, p.Args["address"].(string))
				},
			},
			"reverseGeocode": &graphql.Field{
				Type:        addressType,
				Description: "Address of a coordinate",
				Args:        coordinateArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Geocoder == nil {
						return nil, domain.NewError(domain.KindProviderError, "graphql", "geocoding not configured", nil)
					}
					pt, err := argCoordinate(p)
					if err != nil {
						return nil, err
					}
					return deps.Geocoder.CoordinateToAddress(p.Context, pt)
				},
			},
			"location": &graphql.Field{
				Type:        snapshotType,
				Description: "Location state of an existing session",
				Args: graphql.FieldConfigArgument{
					"session": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, ok := deps.Locations.Lookup(p.Args["session"].(string))
					if !ok {
						return nil, nil
					}
					return s.Snapshot(), nil
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
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
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
