package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tier представляет уровень подписки клиента
type Tier string

const (
	TierEternal Tier = "eternal"
	TierPlus    Tier = "plus"
	TierBasic   Tier = "basic"
)

// ParseTier нормализует название уровня; неизвестные значения считаются basic
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierEternal:
		return TierEternal
	case TierPlus:
		return TierPlus
	default:
		return TierBasic
	}
}

// RequestStatus представляет статус заявки на выездное обслуживание
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusAssigned  RequestStatus = "assigned"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// ServiceRequest представляет заявку клиента, требующую выезда фургона
type ServiceRequest struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	CustomerName    string        `json:"customer_name" db:"customer_name"`
	Address         string        `json:"address" db:"address"`
	City            string        `json:"city" db:"city"`
	Lat             float64       `json:"lat" db:"lat"`
	Lon             float64       `json:"lon" db:"lon"`
	ServiceType     string        `json:"service_type" db:"service_type"`
	Tier            Tier          `json:"tier" db:"tier"`
	PreferredDate   time.Time     `json:"preferred_date" db:"preferred_date"`
	DurationMinutes int           `json:"duration_minutes" db:"duration_minutes"`
	Status          RequestStatus `json:"status" db:"status"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// CreateServiceRequest представляет запрос на создание заявки
type CreateServiceRequest struct {
	ID              *uuid.UUID `json:"id,omitempty"`
	CustomerName    string     `json:"customer_name"`
	Address         string     `json:"address"`
	City            string     `json:"city"`
	Lat             float64    `json:"lat"`
	Lon             float64    `json:"lon"`
	ServiceType     string     `json:"service_type"`
	Tier            string     `json:"tier"`
	PreferredDate   string     `json:"preferred_date"`
	DurationMinutes int        `json:"duration_minutes"`
}
