package routing

import (
	"math"
	"sort"

	"van-dispatch/internal/models"
)

// Cluster группирует кандидатов в k географических кластеров (k-means).
// Первый центр берется у самой срочной заявки, следующие у наиболее удаленных
// от уже выбранных центров. Порядок кандидатов внутри кластера сохраняется.
func Cluster(cands []Candidate, k, maxIterations int) [][]Candidate {
	if k <= 0 || len(cands) == 0 {
		return nil
	}
	if k > len(cands) {
		k = len(cands)
	}
	if maxIterations <= 0 {
		maxIterations = 1
	}

	points := make([]Point, len(cands))
	for i, c := range cands {
		points[i] = c.Location()
	}

	centers := seedCenters(points, k)
	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}

	for it := 0; it < maxIterations; it++ {
		changed := false
		for i, p := range points {
			nearest := nearestCenter(p, centers)
			if assign[i] != nearest {
				assign[i] = nearest
				changed = true
			}
		}
		if !changed {
			break
		}

		members := make([][]Point, k)
		for i, c := range assign {
			members[c] = append(members[c], points[i])
		}
		for c := range centers {
			if len(members[c]) > 0 {
				centers[c] = centroid(members[c])
			}
		}
	}

	groups := make([][]Candidate, k)
	for i, c := range assign {
		groups[c] = append(groups[c], cands[i])
	}

	out := make([][]Candidate, 0, k)
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g)
		}
	}
	return out
}

func seedCenters(points []Point, k int) []Point {
	centers := []Point{points[0]}
	for len(centers) < k {
		best, bestDist := -1, -1.0
		for i, p := range points {
			d := math.MaxFloat64
			for _, c := range centers {
				if dc := DistanceKm(p, c); dc < d {
					d = dc
				}
			}
			if d > bestDist {
				best, bestDist = i, d
			}
		}
		centers = append(centers, points[best])
	}
	return centers
}

func nearestCenter(p Point, centers []Point) int {
	best, bestDist := 0, math.MaxFloat64
	for i, c := range centers {
		if d := DistanceKm(p, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// ClusterAssignment кластер, закрепленный за фургоном
type ClusterAssignment struct {
	Van        models.Van
	Candidates []Candidate
}

// AssignClusters закрепляет кластеры за фургонами: крупные кластеры первыми,
// каждому ближайший по депо свободный фургон. Кластеры без фургона возвращаются отдельно.
func AssignClusters(clusters [][]Candidate, vans []models.Van, opts Options) ([]ClusterAssignment, []Candidate) {
	order := make([]int, len(clusters))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := clusters[order[a]], clusters[order[b]]
		if len(ca) != len(cb) {
			return len(ca) > len(cb)
		}
		return totalUrgency(ca) > totalUrgency(cb)
	})

	used := make([]bool, len(vans))
	var out []ClusterAssignment
	var leftover []Candidate
	for _, ci := range order {
		cl := clusters[ci]
		pts := make([]Point, len(cl))
		for i, c := range cl {
			pts[i] = c.Location()
		}
		center := centroid(pts)

		best, bestDist := -1, math.MaxFloat64
		for vi, v := range vans {
			if used[vi] {
				continue
			}
			d := 0.0
			if depot, ok := depotOf(v, opts); ok {
				d = DistanceKm(depot, center)
			}
			if d < bestDist {
				best, bestDist = vi, d
			}
		}
		if best < 0 {
			leftover = append(leftover, cl...)
			continue
		}
		used[best] = true
		out = append(out, ClusterAssignment{Van: vans[best], Candidates: cl})
	}
	return out, leftover
}

func totalUrgency(cands []Candidate) float64 {
	var sum float64
	for _, c := range cands {
		sum += c.Urgency
	}
	return sum
}

// depotOf возвращает депо фургона или депо по умолчанию; false, если не задано ни одно
func depotOf(v models.Van, opts Options) (Point, bool) {
	if v.DepotLat != 0 || v.DepotLon != 0 {
		return Point{Lat: v.DepotLat, Lon: v.DepotLon}, true
	}
	if opts.DefaultDepot != (Point{}) {
		return opts.DefaultDepot, true
	}
	return Point{}, false
}
