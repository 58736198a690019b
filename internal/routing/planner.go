package routing

import (
	"time"

	"van-dispatch/internal/models"

	"github.com/google/uuid"
)

// DayPlan результат планирования одного дня
type DayPlan struct {
	Date     time.Time
	Routes   []*PlannedRoute
	Deferred []Candidate
}

// RequestsAssigned количество заявок, попавших в маршруты дня
func (d DayPlan) RequestsAssigned() int {
	n := 0
	for _, r := range d.Routes {
		n += len(r.Stops)
	}
	return n
}

// PlanDay строит маршруты на один день.
//
// Срочность решает, какие заявки допускаются при нехватке емкости
// (фургоны × MaxStopsPerVan). Внутри кластера порядок определяет только
// расстояние, срочность разрешает равенство. Отложенные заявки затем
// предлагаются всем фургонам с оставшимся временем.
func PlanDay(planDate time.Time, requests []models.ServiceRequest, vans []models.Van, opts Options) DayPlan {
	plan := DayPlan{Date: truncateDay(planDate)}

	eligible := make([]models.ServiceRequest, 0, len(requests))
	for _, r := range requests {
		if Eligible(r, planDate) {
			eligible = append(eligible, r)
		}
	}
	cands := Prioritize(eligible, planDate, opts)
	if len(vans) == 0 || len(cands) == 0 {
		plan.Deferred = cands
		return plan
	}

	capacity := len(vans) * opts.MaxStopsPerVan
	admitted, overflow := cands, []Candidate(nil)
	if len(cands) > capacity {
		admitted, overflow = cands[:capacity], cands[capacity:]
	}

	k := len(vans)
	if k > len(admitted) {
		k = len(admitted)
	}
	clusters := Cluster(admitted, k, opts.MaxClusterIterations)
	pairs, leftover := AssignClusters(clusters, vans, opts)

	routes := make(map[uuid.UUID]*PlannedRoute, len(vans))
	var pool []Candidate
	for _, p := range pairs {
		r, deferred := SequenceNearestNeighbor(p.Van, p.Candidates, opts)
		routes[p.Van.ID] = r
		pool = append(pool, deferred...)
	}
	pool = append(pool, leftover...)
	pool = append(pool, overflow...)

	// Второй проход: отложенные заявки любому фургону, у которого осталось время
	if len(pool) > 0 {
		sortByUrgency(pool)
		for _, v := range vans {
			if len(pool) == 0 {
				break
			}
			r, ok := routes[v.ID]
			if !ok {
				r = NewRoute(v, opts)
				routes[v.ID] = r
			}
			pool = r.Extend(pool, opts)
		}
	}

	for _, v := range vans {
		if r, ok := routes[v.ID]; ok && len(r.Stops) > 0 {
			plan.Routes = append(plan.Routes, r)
		}
	}
	sortByUrgency(pool)
	plan.Deferred = pool
	return plan
}

// PlanHorizon планирует дни [start, start+daysAhead). Назначенная заявка
// исключается из следующих дней; отложенная переносится и ее срочность растет.
// busy содержит фургоны, у которых на дату (YYYY-MM-DD) уже есть расписание.
func PlanHorizon(start time.Time, daysAhead int, requests []models.ServiceRequest, vans []models.Van,
	busy map[string]map[uuid.UUID]bool, opts Options) []DayPlan {

	pool := append([]models.ServiceRequest(nil), requests...)
	plans := make([]DayPlan, 0, daysAhead)

	for d := 0; d < daysAhead; d++ {
		date := truncateDay(start).AddDate(0, 0, d)
		key := date.Format(models.DateLayout)

		available := make([]models.Van, 0, len(vans))
		for _, v := range vans {
			if v.Status != "" && v.Status != models.VanStatusActive {
				continue
			}
			if busy[key][v.ID] {
				continue
			}
			available = append(available, v)
		}

		plan := PlanDay(date, pool, available, opts)
		plans = append(plans, plan)

		if plan.RequestsAssigned() == 0 {
			continue
		}
		assigned := make(map[uuid.UUID]bool, plan.RequestsAssigned())
		for _, r := range plan.Routes {
			for _, s := range r.Stops {
				assigned[s.Request.ID] = true
			}
		}
		next := pool[:0]
		for _, r := range pool {
			if !assigned[r.ID] {
				next = append(next, r)
			}
		}
		pool = next
	}

	return plans
}
