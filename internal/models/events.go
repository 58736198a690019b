package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType представляет тип события
type EventType string

const (
	EventTypeServiceRequestCreated   EventType = "service_request.created"
	EventTypeServiceRequestCancelled EventType = "service_request.cancelled"
	EventTypeScheduleCreated         EventType = "schedule.created"
	EventTypeScheduleStatusChanged   EventType = "schedule.status_changed"
	EventTypeRoutesGenerated         EventType = "routes.generated"
)

// Event представляет базовое событие
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ServiceRequestCancelledEvent представляет событие отмены заявки в системе бронирования
type ServiceRequestCancelledEvent struct {
	ServiceRequestID uuid.UUID `json:"service_request_id"`
	Reason           string    `json:"reason,omitempty"`
}

// ScheduleCreatedEvent представляет событие создания расписания фургона
type ScheduleCreatedEvent struct {
	ScheduleID        uuid.UUID   `json:"schedule_id"`
	VanID             uuid.UUID   `json:"van_id"`
	ScheduleDate      string      `json:"schedule_date"`
	ServiceRequestIDs []uuid.UUID `json:"service_request_ids"`
	TotalDistanceKm   float64     `json:"total_distance_km"`
	EfficiencyScore   float64     `json:"efficiency_score"`
}

// ScheduleStatusChangedEvent представляет событие изменения статуса расписания
type ScheduleStatusChangedEvent struct {
	ScheduleID uuid.UUID      `json:"schedule_id"`
	OldStatus  ScheduleStatus `json:"old_status"`
	NewStatus  ScheduleStatus `json:"new_status"`
	Timestamp  time.Time      `json:"timestamp"`
}

// RoutesGeneratedEvent представляет итог запуска генерации маршрутов
type RoutesGeneratedEvent struct {
	StartDate             string `json:"start_date"`
	DaysAhead             int    `json:"days_ahead"`
	TotalRoutes           int    `json:"total_routes"`
	TotalRequestsAssigned int    `json:"total_requests_assigned"`
}

// DecodeData переводит Data события в типизированную структуру dst.
// После json.Unmarshal Data содержит map[string]interface{}.
func (e *Event) DecodeData(dst interface{}) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode %s event data: %w", e.Type, err)
	}
	return nil
}
