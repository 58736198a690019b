package repository

import (
	"context"
	"errors"

	"van-dispatch/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("not found")
	// ErrConflict запись изменилась или нарушает уникальность (например, второе расписание фургона на дату)
	ErrConflict = errors.New("conflict")
)

// ScheduledRoute расписание фургона вместе с остановками, сохраняется одной транзакцией
type ScheduledRoute struct {
	Schedule    models.VanSchedule
	Assignments []models.RouteAssignment
}

// Repository хранилище заявок, фургонов, расписаний и назначений
type Repository interface {
	// Заявки
	UpsertServiceRequest(ctx context.Context, req *models.ServiceRequest) error
	GetServiceRequest(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	ListServiceRequests(ctx context.Context, status models.RequestStatus) ([]models.ServiceRequest, error)
	CancelServiceRequest(ctx context.Context, id uuid.UUID) error

	// Фургоны
	CreateVan(ctx context.Context, van *models.Van) error
	GetVan(ctx context.Context, id uuid.UUID) (*models.Van, error)
	ListVans(ctx context.Context) ([]models.Van, error)
	ListVansForDate(ctx context.Context, date string) ([]models.Van, error)
	UpdateVanStatus(ctx context.Context, id uuid.UUID, status models.VanStatus) (*models.Van, error)

	// Расписания
	ListSchedules(ctx context.Context, fromDate, toDate string) ([]models.VanSchedule, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (*models.VanSchedule, error)
	ListAssignments(ctx context.Context, scheduleID uuid.UUID) ([]models.RouteAssignment, error)
	SaveRoutes(ctx context.Context, routes []ScheduledRoute) error
	SetScheduleStatus(ctx context.Context, id uuid.UUID, from, to models.ScheduleStatus) error

	Health(ctx context.Context) error
}
