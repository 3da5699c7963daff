// Package routing computes travel costs between itinerary waypoints.
package routing

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrDistanceTooShort is returned for train and flight lookups between
	// points too close for the mode to make sense.
	ErrDistanceTooShort = errors.New("distance too short for this mode")
	// ErrUnresolvedLocation indicates a waypoint without coordinates that
	// could not be geocoded.
	ErrUnresolvedLocation = errors.New("location could not be resolved")
	// ErrUnsupportedMode indicates a mode the service has no strategy for.
	ErrUnsupportedMode = errors.New("unsupported travel mode")
)

// Provider computes road routes.
type Provider interface {
	// GetDirections retrieves a route between two points.
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
	// SupportedProfiles returns the list of route profiles this provider supports.
	SupportedProfiles() []RouteProfile
}

// Geocoder resolves a place name to coordinates. city narrows the search
// and may be empty.
type Geocoder interface {
	Geocode(ctx context.Context, query, city string) (Coordinate, error)
}

// RouteProfile is a provider routing profile.
type RouteProfile string

const (
	// ProfileDriving is the driving-car profile.
	ProfileDriving RouteProfile = "driving-car"
	// ProfileWalk is the foot-walking profile for pedestrian routing.
	ProfileWalk RouteProfile = "foot-walking"
	// ProfileBike is the cycling-regular profile for bike routing.
	ProfileBike RouteProfile = "cycling-regular"
)

// Coordinate represents a geographic point.
type Coordinate struct {
	Lat float64
	Lon float64
}

// DirectionsRequest is the request for computing a route.
type DirectionsRequest struct {
	Origin      Coordinate
	Destination Coordinate
	Profile     RouteProfile
}

// DirectionsResponse is the provider's answer.
type DirectionsResponse struct {
	Routes    []Route
	Provider  string
	FetchedAt time.Time
}

// Route represents a single route option.
type Route struct {
	DistanceMeters  int
	DurationSeconds int
	Summary         string
	BoundingBox     *BoundingBox
}

// BoundingBox represents a geographic bounding box.
type BoundingBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
