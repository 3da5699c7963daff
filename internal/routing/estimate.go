package routing

import (
	"math"

	"github.com/voyaai/voyaai/internal/itinerary"
)

// Currency of every cost estimate.
const Currency = "CNY"

const earthRadiusKm = 6371.0

// Great-circle estimates for modes without a road profile.
const (
	trainSpeedKmh      = 160.0
	trainMinDistanceKm = 30.0

	flightSpeedKmh       = 750.0
	flightOverheadMin    = 90
	flightMinDistanceKm  = 150.0
	transitDurationScale = 1.4
)

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// estimateLongDistance prices a train or flight from the straight-line distance.
func estimateLongDistance(mode itinerary.Mode, km float64) (itinerary.Cost, error) {
	switch mode {
	case itinerary.ModeTrain:
		if km < trainMinDistanceKm {
			return itinerary.Cost{}, ErrDistanceTooShort
		}
		return costOf(mode, km, int(math.Round(km/trainSpeedKmh*60))), nil
	case itinerary.ModeFlight:
		if km < flightMinDistanceKm {
			return itinerary.Cost{}, ErrDistanceTooShort
		}
		return costOf(mode, km, int(math.Round(km/flightSpeedKmh*60))+flightOverheadMin), nil
	}
	return itinerary.Cost{}, ErrUnsupportedMode
}

func costOf(mode itinerary.Mode, km float64, minutes int) itinerary.Cost {
	km = math.Round(km*10) / 10
	price := EstimateCost(mode, km)
	return itinerary.Cost{
		DistanceKm:      km,
		DurationMinutes: minutes,
		CostEstimate:    &price,
		Currency:        Currency,
	}
}

// EstimateCost is a rough fare for the distance, in CNY.
func EstimateCost(mode itinerary.Mode, km float64) float64 {
	var price float64
	switch mode {
	case itinerary.ModeDriving:
		price = math.Max(10, km*3.5)
	case itinerary.ModeTransit:
		if km < 20 {
			price = 2 + math.Floor(km/5)
		} else {
			price = km * 0.5
		}
	case itinerary.ModeFlight:
		price = 150 + km*0.8
	case itinerary.ModeTrain:
		price = km * 0.5
	}
	return math.Round(price*100) / 100
}
