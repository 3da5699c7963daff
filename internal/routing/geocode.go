package routing

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// CachedGeocoderConfig configures a CachedGeocoder.
type CachedGeocoderConfig struct {
	// TTL for successful lookups (default: 24 hours).
	TTL time.Duration

	// CleanupInterval for expired entries (default: 1 hour).
	CleanupInterval time.Duration

	Logger zerolog.Logger
}

// CachedGeocoder memoizes another Geocoder. Place names in an itinerary
// repeat across legs and days, so the same query is resolved many times.
type CachedGeocoder struct {
	next   Geocoder
	cache  *cache.Cache
	logger zerolog.Logger
}

var _ Geocoder = (*CachedGeocoder)(nil)

// NewCachedGeocoder wraps next with an in-process cache.
func NewCachedGeocoder(next Geocoder, cfg CachedGeocoderConfig) *CachedGeocoder {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	cleanup := cfg.CleanupInterval
	if cleanup == 0 {
		cleanup = time.Hour
	}

	return &CachedGeocoder{
		next:   next,
		cache:  cache.New(ttl, cleanup),
		logger: cfg.Logger,
	}
}

// Geocode returns the cached coordinate for query in city, asking the
// wrapped geocoder on a miss. Failures are not cached.
func (g *CachedGeocoder) Geocode(ctx context.Context, query, city string) (Coordinate, error) {
	key := geocodeKey(query, city)
	if v, ok := g.cache.Get(key); ok {
		g.logger.Debug().Str("query", query).Str("city", city).Msg("geocode cache hit")
		return v.(Coordinate), nil
	}

	c, err := g.next.Geocode(ctx, query, city)
	if err != nil {
		return Coordinate{}, err
	}
	g.cache.SetDefault(key, c)
	return c, nil
}

// Len reports the number of cached entries, including expired ones not yet
// cleaned up.
func (g *CachedGeocoder) Len() int {
	return g.cache.ItemCount()
}

func geocodeKey(query, city string) string {
	return strings.ToLower(strings.TrimSpace(city)) + "|" + strings.ToLower(strings.TrimSpace(query))
}
