package client

import (
	"fmt"
	"math"
	"sort"
	"time"

	"van-dispatch/internal/models"
)

// Числовые поля декодируются через FlexFloat/FlexInt: сервис может прислать их строками.

// Assignment остановка маршрута
type Assignment struct {
	ID                     string           `json:"id"`
	ScheduleID             string           `json:"schedule_id"`
	ServiceRequestID       string           `json:"service_request_id"`
	RouteSequence          models.FlexInt   `json:"route_sequence"`
	EstimatedArrivalTime   string           `json:"estimated_arrival_time"`
	EstimatedDepartureTime string           `json:"estimated_departure_time"`
	UrgencyScore           models.FlexFloat `json:"urgency_score"`
	DistanceFromPrevKm     models.FlexFloat `json:"distance_from_prev_km"`
	CustomerName           string           `json:"customer_name,omitempty"`
	Address                string           `json:"address,omitempty"`
	City                   string           `json:"city,omitempty"`
	ServiceType            string           `json:"service_type,omitempty"`
	Tier                   string           `json:"tier,omitempty"`
}

// Schedule расписание фургона на дату
type Schedule struct {
	ID           string `json:"id"`
	VanID        string `json:"van_id"`
	VanNumber    string `json:"van_number,omitempty"`
	VanName      string `json:"van_name,omitempty"`
	ScheduleDate string `json:"schedule_date"`
	Status       string `json:"status"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
}

// Route маршрут одного фургона
type Route struct {
	Schedule        Schedule         `json:"schedule"`
	Assignments     []Assignment     `json:"assignments"`
	TotalDistanceKm models.FlexFloat `json:"totalDistanceKm"`
	EfficiencyScore models.FlexFloat `json:"efficiencyScore"`
}

// DayRoutes маршруты одного дня
type DayRoutes struct {
	Date             string         `json:"date"`
	Routes           []Route        `json:"routes"`
	RequestsAssigned models.FlexInt `json:"requestsAssigned"`
	RequestsDeferred models.FlexInt `json:"requestsDeferred"`
}

// WeeklyRoutes результат генерации
type WeeklyRoutes struct {
	TotalRoutes           models.FlexInt `json:"totalRoutes"`
	TotalRequestsAssigned models.FlexInt `json:"totalRequestsAssigned"`
	RoutesByDay           []DayRoutes    `json:"routesByDay"`
}

// Van фургон со сводкой расписания на дату
type Van struct {
	ID              string           `json:"id"`
	VanNumber       string           `json:"van_number"`
	VanName         string           `json:"van_name"`
	Zone            string           `json:"zone"`
	Status          string           `json:"status"`
	DepotLat        models.FlexFloat `json:"depot_lat"`
	DepotLon        models.FlexFloat `json:"depot_lon"`
	ScheduleID      *string          `json:"schedule_id,omitempty"`
	ScheduleStatus  *string          `json:"schedule_status,omitempty"`
	StartTime       *string          `json:"start_time,omitempty"`
	EndTime         *string          `json:"end_time,omitempty"`
	AssignmentCount *models.FlexInt  `json:"assignment_count,omitempty"`
}

// SortAssignments сортирует остановки по route_sequence
func SortAssignments(a []Assignment) {
	sort.SliceStable(a, func(i, j int) bool { return a[i].RouteSequence < a[j].RouteSequence })
}

// CheckTotals сверяет сводные счетчики с содержимым маршрутов
func (w *WeeklyRoutes) CheckTotals() error {
	total := 0
	for _, d := range w.RoutesByDay {
		n := 0
		for _, r := range d.Routes {
			n += len(r.Assignments)
		}
		if n != d.RequestsAssigned.Int() {
			return fmt.Errorf("%s: requestsAssigned %d, assignments %d", d.Date, d.RequestsAssigned.Int(), n)
		}
		total += n
	}
	if total != w.TotalRequestsAssigned.Int() {
		return fmt.Errorf("totalRequestsAssigned %d, sum of days %d", w.TotalRequestsAssigned.Int(), total)
	}
	return nil
}

// CheckSequence проверяет, что остановки идут 1..N без пропусков и efficiencyScore = km / N
func (r *Route) CheckSequence() error {
	for i, a := range r.Assignments {
		if a.RouteSequence.Int() != i+1 {
			return fmt.Errorf("schedule %s: position %d has route_sequence %d", r.Schedule.ID, i+1, a.RouteSequence.Int())
		}
	}
	if n := len(r.Assignments); n > 0 {
		want := r.TotalDistanceKm.Float64() / float64(n)
		if math.Abs(want-r.EfficiencyScore.Float64()) > 0.01 {
			return fmt.Errorf("schedule %s: efficiencyScore %.2f, expected %.2f", r.Schedule.ID, r.EfficiencyScore.Float64(), want)
		}
	}
	return nil
}

// ValidateDaysAhead повторяет ограничение формы: 1–14 дней
func ValidateDaysAhead(days int) error {
	if days < 1 || days > 14 {
		return fmt.Errorf("days ahead must be between 1 and 14, got %d", days)
	}
	return nil
}

// ValidateDate проверяет формат YYYY-MM-DD
func ValidateDate(date string) error {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD, got %q", date)
	}
	return nil
}
