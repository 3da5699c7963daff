package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/voyaai/voyaai/internal/itinerary"
)

const instrumentationName = "github.com/voyaai/voyaai/internal/routing"

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Provider is the road routing provider.
	Provider Provider

	// Geocoder resolves waypoints that have no coordinates (optional).
	Geocoder Geocoder

	// Meter records lookup metrics (default: the global meter).
	Meter metric.Meter

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache routing data (default: 5 minutes).
	CacheTTL time.Duration

	// CacheGridSize is the size of cache grid cells in degrees (default: 0.01 ~ 1.1km).
	// Points within the same grid cell share cached data.
	CacheGridSize float64

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 15 minutes).
	StaleIfErrorTTL time.Duration

	// CleanupInterval is how often to clean up expired entries (default: 5 minutes).
	CleanupInterval time.Duration
}

// Service computes segment costs. Road modes go to the provider through a
// grid-quantized cache; train and flight are great-circle estimates.
type Service struct {
	provider        Provider
	geocoder        Geocoder
	logger          zerolog.Logger
	tracer          trace.Tracer
	lookups         metric.Int64Counter
	lookupDuration  metric.Float64Histogram
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration

	mu          sync.RWMutex
	cache       map[string]*cachedDirections
	lastCleanup time.Time
}

type cachedDirections struct {
	response  *DirectionsResponse
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.01 // ~1.1km at equator
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 15 * time.Minute
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}

	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	lookups, err := meter.Int64Counter(
		"voyaai.cost.lookups",
		metric.WithDescription("Segment cost lookups by mode and outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("failed to create lookup counter")
	}
	lookupDuration, err := meter.Float64Histogram(
		"voyaai.cost.lookup.duration",
		metric.WithDescription("Duration of segment cost lookups in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("failed to create lookup histogram")
	}

	return &Service{
		provider:        cfg.Provider,
		geocoder:        cfg.Geocoder,
		logger:          cfg.Logger,
		tracer:          otel.Tracer(instrumentationName),
		lookups:         lookups,
		lookupDuration:  lookupDuration,
		cacheTTL:        cacheTTL,
		cacheGridSize:   cacheGridSize,
		staleIfErrorTTL: staleIfErrorTTL,
		cleanupInterval: cleanupInterval,
		cache:           make(map[string]*cachedDirections),
	}
}

var _ itinerary.CostProvider = (*Service)(nil)

// Lookup returns the distance, duration and fare estimate for travelling
// from origin to destination by mode.
func (s *Service) Lookup(ctx context.Context, origin, destination itinerary.Waypoint, mode itinerary.Mode, contextCity string) (itinerary.Cost, error) {
	ctx, span := s.tracer.Start(ctx, "routing.Lookup", trace.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("city", contextCity),
	))
	defer span.End()

	start := time.Now()
	cost, err := s.lookup(ctx, origin, destination, mode, contextCity)

	outcome := "ok"
	switch {
	case errors.Is(err, ErrDistanceTooShort):
		outcome = "too_short"
	case errors.Is(err, ErrUnresolvedLocation):
		outcome = "unresolved"
	case err != nil:
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("outcome", outcome),
	)
	if s.lookups != nil {
		s.lookups.Add(ctx, 1, attrs)
	}
	if s.lookupDuration != nil {
		s.lookupDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return itinerary.Cost{}, err
	}
	return cost, nil
}

func (s *Service) lookup(ctx context.Context, origin, destination itinerary.Waypoint, mode itinerary.Mode, contextCity string) (itinerary.Cost, error) {
	from, err := s.resolve(ctx, origin, contextCity)
	if err != nil {
		return itinerary.Cost{}, err
	}
	to, err := s.resolve(ctx, destination, contextCity)
	if err != nil {
		return itinerary.Cost{}, err
	}

	switch mode {
	case itinerary.ModeTrain, itinerary.ModeFlight:
		return estimateLongDistance(mode, HaversineKm(from, to))
	case itinerary.ModeDriving, itinerary.ModeTransit:
		km, minutes, err := s.road(ctx, from, to, ProfileDriving)
		if err != nil {
			return itinerary.Cost{}, err
		}
		if mode == itinerary.ModeTransit {
			minutes = int(math.Round(float64(minutes) * transitDurationScale))
		}
		return costOf(mode, km, minutes), nil
	case itinerary.ModeWalking:
		km, minutes, err := s.road(ctx, from, to, ProfileWalk)
		if err != nil {
			return itinerary.Cost{}, err
		}
		return costOf(mode, km, minutes), nil
	case itinerary.ModeCycling:
		km, minutes, err := s.road(ctx, from, to, ProfileBike)
		if err != nil {
			return itinerary.Cost{}, err
		}
		return costOf(mode, km, minutes), nil
	}
	return itinerary.Cost{}, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
}

// resolve returns a waypoint's coordinates, geocoding it when needed.
func (s *Service) resolve(ctx context.Context, wp itinerary.Waypoint, contextCity string) (Coordinate, error) {
	if wp.HasCoordinates() {
		return Coordinate{Lat: *wp.Lat, Lon: *wp.Lng}, nil
	}
	if s.geocoder == nil {
		return Coordinate{}, fmt.Errorf("%w: %q has no coordinates", ErrUnresolvedLocation, wp.Name)
	}

	city := wp.City
	if city == "" {
		city = contextCity
	}
	query := wp.Name
	if wp.Address != "" {
		query = wp.Address
	}

	c, err := s.geocoder.Geocode(ctx, query, city)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: %q: %w", ErrUnresolvedLocation, wp.Name, err)
	}
	return c, nil
}

func (s *Service) road(ctx context.Context, from, to Coordinate, profile RouteProfile) (float64, int, error) {
	if s.provider == nil {
		return 0, 0, ErrProviderUnavailable
	}
	resp, err := s.GetDirections(ctx, DirectionsRequest{Origin: from, Destination: to, Profile: profile})
	if err != nil {
		return 0, 0, err
	}
	if len(resp.Routes) == 0 {
		return 0, 0, ErrNoRouteFound
	}
	r := resp.Routes[0]
	return float64(r.DistanceMeters) / 1000, int(math.Round(float64(r.DurationSeconds) / 60)), nil
}

// GetDirections returns route directions between two points.
// Uses cached data if available and not expired.
func (s *Service) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	// Validate coordinates
	if err := validateCoordinates(req.Origin); err != nil {
		return nil, &Error{
			Provider: s.ProviderName(),
			Code:     "INVALID_ORIGIN",
			Message:  "invalid origin coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}
	if err := validateCoordinates(req.Destination); err != nil {
		return nil, &Error{
			Provider: s.ProviderName(),
			Code:     "INVALID_DESTINATION",
			Message:  "invalid destination coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}

	cacheKey := s.cacheKey(req)

	// Check cache (read lock)
	s.mu.RLock()
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cache hit for directions")
		return cached.response, nil
	}
	s.mu.RUnlock()

	// Fetch from provider
	return s.fetchDirections(ctx, req, cacheKey)
}

// fetchDirections fetches directions from provider and updates cache.
func (s *Service) fetchDirections(ctx context.Context, req DirectionsRequest, cacheKey string) (*DirectionsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check cache (prevents thundering herd)
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cache hit after double-check")
		return cached.response, nil
	}

	s.logger.Debug().
		Float64("origin_lat", req.Origin.Lat).
		Float64("origin_lon", req.Origin.Lon).
		Float64("dest_lat", req.Destination.Lat).
		Float64("dest_lon", req.Destination.Lon).
		Str("profile", string(req.Profile)).
		Str("provider", s.provider.Name()).
		Msg("fetching directions from provider")

	resp, err := s.provider.GetDirections(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).
			Float64("origin_lat", req.Origin.Lat).
			Float64("origin_lon", req.Origin.Lon).
			Float64("dest_lat", req.Destination.Lat).
			Float64("dest_lon", req.Destination.Lon).
			Str("profile", string(req.Profile)).
			Msg("failed to fetch directions")

		// Check for stale data (stale-if-error pattern)
		if cached, ok := s.cache[cacheKey]; ok {
			if time.Now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
				s.logger.Warn().
					Time("fetched_at", cached.fetchedAt).
					Str("cache_key", cacheKey).
					Msg("serving stale directions data due to provider error")
				return cached.response, nil
			}
		}

		return nil, err
	}

	// Update cache
	now := time.Now()
	s.cache[cacheKey] = &cachedDirections{
		response:  resp,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}

	s.logger.Debug().
		Str("cache_key", cacheKey).
		Int("route_count", len(resp.Routes)).
		Msg("cached directions response")

	// Periodic cleanup
	s.cleanupIfNeeded()

	return resp, nil
}

// cacheKey generates a cache key for a routing request.
// Uses grid-based quantization for both origin and destination.
// Format: {profile}:{gridOriginLat},{gridOriginLon}:{gridDestLat},{gridDestLon}.
func (s *Service) cacheKey(req DirectionsRequest) string {
	gridOriginLat := math.Floor(req.Origin.Lat/s.cacheGridSize) * s.cacheGridSize
	gridOriginLon := math.Floor(req.Origin.Lon/s.cacheGridSize) * s.cacheGridSize
	gridDestLat := math.Floor(req.Destination.Lat/s.cacheGridSize) * s.cacheGridSize
	gridDestLon := math.Floor(req.Destination.Lon/s.cacheGridSize) * s.cacheGridSize

	return fmt.Sprintf("%s:%.2f,%.2f:%.2f,%.2f",
		req.Profile,
		gridOriginLat, gridOriginLon,
		gridDestLat, gridDestLon,
	)
}

// cleanupIfNeeded removes expired entries if cleanup interval has passed.
func (s *Service) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}

	s.lastCleanup = now
	expired := 0

	for key, cached := range s.cache {
		// Remove entries that are past the stale-if-error window
		if now.After(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.cache, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired routing cache entries")
	}
}

// InvalidateCache clears all cached data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedDirections)
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	fresh := 0
	stale := 0

	for _, c := range s.cache {
		if now.Before(c.expiresAt) {
			fresh++
		} else if now.Before(c.fetchedAt.Add(s.staleIfErrorTTL)) {
			stale++
		}
	}

	return CacheStats{
		TotalEntries: len(s.cache),
		FreshEntries: fresh,
		StaleEntries: stale,
		Provider:     s.ProviderName(),
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
	Provider     string
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// validateCoordinates checks if coordinates are within valid ranges.
func validateCoordinates(c Coordinate) error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", c.Lon)
	}
	return nil
}
