// Package geo provides great-circle geometry helpers used when comparing
// asserted hotspot positions and sampling terrain along a radio path.
package geo

import "math"

// EarthRadiusM is the mean Earth radius in meters (IUGG).
const EarthRadiusM = 6371000.0

// Point is a geographic position in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// DistanceM returns the great-circle distance between a and b in meters,
// using the haversine formula. Good to ~0.5% which is far below the
// uncertainty of an asserted hotspot position.
func DistanceM(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180.0
	dLon := (b.Lon - a.Lon) * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * EarthRadiusM * math.Asin(math.Min(1.0, math.Sqrt(h)))
}

// DistanceKM returns the great-circle distance between a and b in kilometers.
func DistanceKM(a, b Point) float64 {
	return DistanceM(a, b) / 1000.0
}

// Intermediate returns the point at fraction f (0..1) along the great-circle
// path from a to b. f=0 returns a, f=1 returns b. Uses spherical linear
// interpolation; for coincident endpoints it returns a.
func Intermediate(a, b Point, f float64) Point {
	lat1 := a.Lat * math.Pi / 180.0
	lon1 := a.Lon * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	lon2 := b.Lon * math.Pi / 180.0

	// Angular distance between the endpoints
	d := DistanceM(a, b) / EarthRadiusM
	if d == 0 {
		return a
	}

	p := math.Sin((1-f)*d) / math.Sin(d)
	q := math.Sin(f*d) / math.Sin(d)

	x := p*math.Cos(lat1)*math.Cos(lon1) + q*math.Cos(lat2)*math.Cos(lon2)
	y := p*math.Cos(lat1)*math.Sin(lon1) + q*math.Cos(lat2)*math.Sin(lon2)
	z := p*math.Sin(lat1) + q*math.Sin(lat2)

	return Point{
		Lat: math.Atan2(z, math.Sqrt(x*x+y*y)) * 180.0 / math.Pi,
		Lon: math.Atan2(y, x) * 180.0 / math.Pi,
	}
}

// Path returns n evenly-spaced points along the great-circle path from a to
// b, inclusive of both endpoints. n must be at least 2.
func Path(a, b Point, n int) []Point {
	if n < 2 {
		n = 2
	}
	pts := make([]Point, n)
	for i := 0; i < n; i++ {
		pts[i] = Intermediate(a, b, float64(i)/float64(n-1))
	}
	// Avoid accumulating interpolation error at the far endpoint
	pts[0] = a
	pts[n-1] = b
	return pts
}
