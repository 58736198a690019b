package services

import (
	"context"
	"strings"

	"van-dispatch/internal/logger"
	"van-dispatch/internal/models"
	"van-dispatch/internal/repository"

	"github.com/google/uuid"
)

// VanService управляет парком фургонов
type VanService struct {
	repo repository.Repository
	log  *logger.Logger
}

// NewVanService создает сервис фургонов
func NewVanService(repo repository.Repository, log *logger.Logger) *VanService {
	return &VanService{repo: repo, log: log}
}

// Create добавляет фургон в парк в статусе active
func (s *VanService) Create(ctx context.Context, in models.CreateVanRequest) (*models.Van, error) {
	number := strings.TrimSpace(in.VanNumber)
	if number == "" {
		return nil, invalidInput("van_number is required")
	}

	van := &models.Van{
		VanNumber: number,
		VanName:   strings.TrimSpace(in.VanName),
		Zone:      strings.TrimSpace(in.Zone),
		Status:    models.VanStatusActive,
	}
	if in.DepotLat != nil && in.DepotLon != nil {
		if *in.DepotLat < -90 || *in.DepotLat > 90 || *in.DepotLon < -180 || *in.DepotLon > 180 {
			return nil, invalidInput("depot coordinates out of range")
		}
		van.DepotLat, van.DepotLon = *in.DepotLat, *in.DepotLon
	}

	if err := s.repo.CreateVan(ctx, van); err != nil {
		return nil, translate(err, "van")
	}

	s.log.WithField("van_id", van.ID).WithField("van_number", van.VanNumber).Info("Van created")
	return van, nil
}

// List возвращает все фургоны
func (s *VanService) List(ctx context.Context) ([]models.Van, error) {
	vans, err := s.repo.ListVans(ctx)
	if err != nil {
		return nil, translate(err, "vans")
	}
	if vans == nil {
		vans = []models.Van{}
	}
	return vans, nil
}

// UpdateStatus меняет статус фургона. В маршруты попадают только active.
func (s *VanService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.VanStatus) (*models.Van, error) {
	switch status {
	case models.VanStatusActive, models.VanStatusMaintenance, models.VanStatusRetired:
	default:
		return nil, invalidInput("unknown van status %q", status)
	}

	van, err := s.repo.UpdateVanStatus(ctx, id, status)
	if err != nil {
		return nil, translate(err, "van "+id.String())
	}

	s.log.WithField("van_id", id).WithField("status", status).Info("Van status updated")
	return van, nil
}
