// Package geo answers nearest-neighbour and containment queries over
// substations, weather grids and census polygons.
package geo

import "math"

const (
	EarthRadiusKM = 6371
	KMPerMile     = 1.609344
)

// Haversine returns the great-circle distance in km between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKM * c
}

// UnitVector converts a latitude/longitude to an earth-centred unit vector.
// Euclidean distance between unit vectors is monotonic in great-circle
// distance, so it can rank neighbours without lat/lon distortion.
func UnitVector(lat, lon float64) [3]float64 {
	phi := lat * math.Pi / 180
	lambda := lon * math.Pi / 180
	return [3]float64{
		math.Cos(phi) * math.Cos(lambda),
		math.Cos(phi) * math.Sin(lambda),
		math.Sin(phi),
	}
}

// PathLength sums the great-circle length in km of a vertex path given as
// (lon, lat) pairs.
func PathLength(lons, lats []float64) float64 {
	var total float64
	for i := 1; i < len(lons) && i < len(lats); i++ {
		total += Haversine(lats[i-1], lons[i-1], lats[i], lons[i])
	}
	return total
}
