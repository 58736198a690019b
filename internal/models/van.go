package models

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout формат календарной даты в API
const DateLayout = "2006-01-02"

// ClockLayout формат времени суток в расписаниях
const ClockLayout = "15:04"

// VanStatus представляет статус фургона
type VanStatus string

const (
	VanStatusActive      VanStatus = "active"
	VanStatusMaintenance VanStatus = "maintenance"
	VanStatusRetired     VanStatus = "retired"
)

// Van представляет фургон автопарка
type Van struct {
	ID        uuid.UUID `json:"id" db:"id"`
	VanNumber string    `json:"van_number" db:"van_number"`
	VanName   string    `json:"van_name" db:"van_name"`
	Zone      string    `json:"zone" db:"zone"`
	Status    VanStatus `json:"status" db:"status"`
	DepotLat  float64   `json:"depot_lat" db:"depot_lat"`
	DepotLon  float64   `json:"depot_lon" db:"depot_lon"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Заполняются только в выборке по дате, если у фургона есть расписание
	ScheduleID      *uuid.UUID      `json:"schedule_id,omitempty"`
	ScheduleStatus  *ScheduleStatus `json:"schedule_status,omitempty"`
	StartTime       *string         `json:"start_time,omitempty"`
	EndTime         *string         `json:"end_time,omitempty"`
	AssignmentCount *int            `json:"assignment_count,omitempty"`
}

// CreateVanRequest представляет запрос на создание фургона
type CreateVanRequest struct {
	VanNumber string   `json:"van_number"`
	VanName   string   `json:"van_name"`
	Zone      string   `json:"zone"`
	DepotLat  *float64 `json:"depot_lat,omitempty"`
	DepotLon  *float64 `json:"depot_lon,omitempty"`
}

// UpdateVanStatusRequest представляет запрос на смену статуса фургона
type UpdateVanStatusRequest struct {
	Status VanStatus `json:"status"`
}

// ScheduleStatus представляет статус дневного расписания фургона
type ScheduleStatus string

const (
	ScheduleStatusPlanned    ScheduleStatus = "planned"
	ScheduleStatusInProgress ScheduleStatus = "in_progress"
	ScheduleStatusCompleted  ScheduleStatus = "completed"
	ScheduleStatusCancelled  ScheduleStatus = "cancelled"
)

// CanTransition проверяет допустимость перехода статуса расписания
func (s ScheduleStatus) CanTransition(next ScheduleStatus) bool {
	switch s {
	case ScheduleStatusPlanned:
		return next == ScheduleStatusInProgress || next == ScheduleStatusCancelled
	case ScheduleStatusInProgress:
		return next == ScheduleStatusCompleted || next == ScheduleStatusCancelled
	default:
		return false
	}
}

// VanSchedule представляет расписание фургона на одну календарную дату
type VanSchedule struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	VanID        uuid.UUID      `json:"van_id" db:"van_id"`
	VanNumber    string         `json:"van_number,omitempty"`
	VanName      string         `json:"van_name,omitempty"`
	ScheduleDate string         `json:"schedule_date" db:"schedule_date"`
	Status       ScheduleStatus `json:"status" db:"status"`
	StartTime    string         `json:"start_time" db:"start_time"`
	EndTime      string         `json:"end_time" db:"end_time"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// UpdateScheduleStatusRequest представляет запрос на смену статуса расписания
type UpdateScheduleStatusRequest struct {
	Status ScheduleStatus `json:"status"`
}

// RouteAssignment представляет одну остановку в расписании фургона
type RouteAssignment struct {
	ID                     uuid.UUID `json:"id" db:"id"`
	ScheduleID             uuid.UUID `json:"schedule_id" db:"schedule_id"`
	ServiceRequestID       uuid.UUID `json:"service_request_id" db:"service_request_id"`
	RouteSequence          int       `json:"route_sequence" db:"route_sequence"`
	EstimatedArrivalTime   string    `json:"estimated_arrival_time" db:"estimated_arrival_time"`
	EstimatedDepartureTime string    `json:"estimated_departure_time" db:"estimated_departure_time"`
	UrgencyScore           float64   `json:"urgency_score" db:"urgency_score"`
	DistanceFromPrevKm     float64   `json:"distance_from_prev_km" db:"distance_from_prev_km"`

	CustomerName string `json:"customer_name,omitempty"`
	Address      string `json:"address,omitempty"`
	City         string `json:"city,omitempty"`
	ServiceType  string `json:"service_type,omitempty"`
	Tier         Tier   `json:"tier,omitempty"`
}
