package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"van-dispatch/internal/logger"
	"van-dispatch/internal/models"
	"van-dispatch/internal/repository"

	"github.com/google/uuid"
)

// ServiceRequestService принимает заявки из системы бронирования и от администраторов
type ServiceRequestService struct {
	repo  repository.Repository
	log   *logger.Logger
	today func() time.Time
}

// NewServiceRequestService создает сервис заявок
func NewServiceRequestService(repo repository.Repository, log *logger.Logger) *ServiceRequestService {
	return &ServiceRequestService{repo: repo, log: log, today: time.Now}
}

// Create проверяет и сохраняет заявку в статусе pending.
// Повторная заявка с тем же ID обновляет данные, пока она не назначена.
func (s *ServiceRequestService) Create(ctx context.Context, in models.CreateServiceRequest) (*models.ServiceRequest, error) {
	req, err := s.fromInput(in)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpsertServiceRequest(ctx, req); err != nil {
		return nil, translate(err, "service request")
	}

	s.log.WithFields(map[string]interface{}{
		"service_request_id": req.ID,
		"tier":               req.Tier,
		"preferred_date":     req.PreferredDate.Format(models.DateLayout),
	}).Info("Service request accepted")

	return req, nil
}

func (s *ServiceRequestService) fromInput(in models.CreateServiceRequest) (*models.ServiceRequest, error) {
	name := strings.TrimSpace(in.CustomerName)
	if name == "" {
		return nil, invalidInput("customer_name is required")
	}
	if in.Lat < -90 || in.Lat > 90 || in.Lon < -180 || in.Lon > 180 {
		return nil, invalidInput("coordinates out of range: %v,%v", in.Lat, in.Lon)
	}
	if in.Lat == 0 && in.Lon == 0 {
		return nil, invalidInput("coordinates are required")
	}
	if in.DurationMinutes < 0 {
		return nil, invalidInput("duration_minutes must not be negative")
	}

	var preferred time.Time
	if strings.TrimSpace(in.PreferredDate) == "" {
		y, m, d := s.today().Date()
		preferred = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	} else {
		p, err := time.Parse(models.DateLayout, strings.TrimSpace(in.PreferredDate))
		if err != nil {
			return nil, invalidInput("preferred_date must be YYYY-MM-DD, got %q", in.PreferredDate)
		}
		preferred = p
	}

	req := &models.ServiceRequest{
		CustomerName:    name,
		Address:         strings.TrimSpace(in.Address),
		City:            strings.TrimSpace(in.City),
		Lat:             in.Lat,
		Lon:             in.Lon,
		ServiceType:     strings.TrimSpace(in.ServiceType),
		Tier:            models.ParseTier(in.Tier),
		PreferredDate:   preferred,
		DurationMinutes: in.DurationMinutes,
		Status:          models.RequestStatusPending,
	}
	if in.ID != nil {
		req.ID = *in.ID
	}
	return req, nil
}

// List возвращает заявки, status пустой означает все
func (s *ServiceRequestService) List(ctx context.Context, status string) ([]models.ServiceRequest, error) {
	st := models.RequestStatus(strings.ToLower(strings.TrimSpace(status)))
	switch st {
	case "", models.RequestStatusPending, models.RequestStatusAssigned,
		models.RequestStatusCompleted, models.RequestStatusCancelled:
	default:
		return nil, invalidInput("unknown status %q", status)
	}

	requests, err := s.repo.ListServiceRequests(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("failed to list service requests: %w", err)
	}
	if requests == nil {
		requests = []models.ServiceRequest{}
	}
	return requests, nil
}

// Cancel отменяет заявку, если она еще не выполнена
func (s *ServiceRequestService) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.CancelServiceRequest(ctx, id); err != nil {
		return translate(err, "service request "+id.String())
	}
	s.log.WithField("service_request_id", id).Info("Service request cancelled")
	return nil
}

// HandleCreatedEvent обработчик события service_request.created
func (s *ServiceRequestService) HandleCreatedEvent(ctx context.Context, event *models.Event) error {
	var in models.CreateServiceRequest
	if err := event.DecodeData(&in); err != nil {
		return err
	}
	if _, err := s.Create(ctx, in); err != nil {
		return fmt.Errorf("event %s: %w", event.ID, err)
	}
	return nil
}

// HandleCancelledEvent обработчик события service_request.cancelled
func (s *ServiceRequestService) HandleCancelledEvent(ctx context.Context, event *models.Event) error {
	var data models.ServiceRequestCancelledEvent
	if err := event.DecodeData(&data); err != nil {
		return err
	}
	if data.ServiceRequestID == uuid.Nil {
		return invalidInput("event %s has no service_request_id", event.ID)
	}
	return s.Cancel(ctx, data.ServiceRequestID)
}
