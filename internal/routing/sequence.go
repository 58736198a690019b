package routing

import (
	"time"

	"van-dispatch/internal/models"
)

// PlannedStop остановка маршрута с расчетным временем
type PlannedStop struct {
	Candidate
	Sequence           int
	Arrival            time.Duration
	Departure          time.Duration
	DistanceFromPrevKm float64
}

// PlannedRoute маршрут фургона на один день до сохранения
type PlannedRoute struct {
	Van             models.Van
	Start           Point
	Stops           []PlannedStop
	TotalDistanceKm float64

	hasStart    bool
	windowStart time.Duration
}

// NewRoute создает пустой маршрут, начинающийся в депо фургона в начале окна.
// Без депо маршрут начинается с самой срочной заявки.
func NewRoute(v models.Van, opts Options) *PlannedRoute {
	start, ok := depotOf(v, opts)
	return &PlannedRoute{Van: v, Start: start, hasStart: ok, windowStart: opts.WindowStart}
}

// EfficiencyScore = км / количество остановок, меньше лучше
func (r *PlannedRoute) EfficiencyScore() float64 {
	if len(r.Stops) == 0 {
		return 0
	}
	return r.TotalDistanceKm / float64(len(r.Stops))
}

// StartTime время выезда из депо
func (r *PlannedRoute) StartTime() time.Duration {
	return r.windowStart
}

// EndTime время окончания последнего визита
func (r *PlannedRoute) EndTime() time.Duration {
	if len(r.Stops) == 0 {
		return r.windowStart
	}
	return r.Stops[len(r.Stops)-1].Departure
}

func (r *PlannedRoute) distanceTo(c Candidate) float64 {
	if len(r.Stops) == 0 {
		if !r.hasStart {
			return 0
		}
		return DistanceKm(r.Start, c.Location())
	}
	return DistanceKm(r.Stops[len(r.Stops)-1].Location(), c.Location())
}

// Extend дописывает в маршрут ближайшие допустимые остановки (nearest neighbor).
// Остановка, визит в которую закончится позже конца окна, откладывается, и
// пробуется следующая по близости. Возвращает отложенные заявки.
func (r *PlannedRoute) Extend(cands []Candidate, opts Options) []Candidate {
	remaining := append([]Candidate(nil), cands...)

	for len(remaining) > 0 && len(r.Stops) < opts.MaxStopsPerVan {
		now := r.EndTime()

		best := -1
		var bestDist float64
		var bestArrival, bestDeparture time.Duration
		for i, c := range remaining {
			d := r.distanceTo(c)
			arrival := now + TravelTime(d, opts.AverageSpeedKph)
			departure := arrival + serviceDuration(c.Request, opts)
			if departure > opts.WindowEnd {
				continue
			}
			if best < 0 || closer(d, c, bestDist, remaining[best]) {
				best = i
				bestDist = d
				bestArrival, bestDeparture = arrival, departure
			}
		}
		if best < 0 {
			break
		}

		r.Stops = append(r.Stops, PlannedStop{
			Candidate:          remaining[best],
			Sequence:           len(r.Stops) + 1,
			Arrival:            bestArrival,
			Departure:          bestDeparture,
			DistanceFromPrevKm: bestDist,
		})
		r.TotalDistanceKm += bestDist
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	return remaining
}

// SequenceNearestNeighbor упорядочивает остановки одного фургона жадным алгоритмом ближайшего соседа
func SequenceNearestNeighbor(v models.Van, cands []Candidate, opts Options) (*PlannedRoute, []Candidate) {
	r := NewRoute(v, opts)
	deferred := r.Extend(cands, opts)
	return r, deferred
}

// closer: меньшее расстояние, затем большая срочность, затем меньший id
func closer(d float64, c Candidate, bestD float64, best Candidate) bool {
	const eps = 1e-9
	if d < bestD-eps {
		return true
	}
	if d > bestD+eps {
		return false
	}
	if c.Urgency != best.Urgency {
		return c.Urgency > best.Urgency
	}
	return c.Request.ID.String() < best.Request.ID.String()
}

func serviceDuration(r models.ServiceRequest, opts Options) time.Duration {
	minutes := r.DurationMinutes
	if minutes <= 0 {
		minutes = opts.ServiceMinutes
	}
	return time.Duration(minutes) * time.Minute
}
