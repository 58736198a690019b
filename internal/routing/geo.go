package routing

import (
	"math"
	"time"
)

const earthRadiusKm = 6371.0

// Point географическая точка
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceKm возвращает расстояние по дуге большого круга (haversine)
func DistanceKm(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// TravelTime переводит расстояние во время в пути, округляя вверх до минуты
func TravelTime(km, speedKph float64) time.Duration {
	if km <= 0 || speedKph <= 0 {
		return 0
	}
	minutes := math.Ceil(km / speedKph * 60)
	return time.Duration(minutes) * time.Minute
}

func centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var lat, lon float64
	for _, p := range points {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(points))
	return Point{Lat: lat / n, Lon: lon / n}
}
