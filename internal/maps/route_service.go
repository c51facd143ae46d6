// README: Road-network travel estimates via the Google Maps Directions API.
package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"mediroute/internal/types"
)

// RouteService resolves driving times between courier waypoints through the
// Google Maps Directions API. It refines the linear ETA estimate when an
// API key is configured.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// latLng renders a coordinate in the "lat,lng" waypoint form the Directions
// API accepts. Coordinate waypoints need no region or language bias.
func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

// EstimateTravel returns the road-network driving time from origin to dest.
func (s *RouteService) EstimateTravel(ctx context.Context, origin, dest types.Point) (time.Duration, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(dest),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}

	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, fmt.Errorf("no route found")
	}

	return routes[0].Legs[0].Duration, nil
}
