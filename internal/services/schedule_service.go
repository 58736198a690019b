package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"van-dispatch/internal/logger"
	"van-dispatch/internal/models"
	"van-dispatch/internal/redis"
	"van-dispatch/internal/repository"

	"github.com/google/uuid"
)

// ScheduleService отдает расписания фургонов и их остановки
type ScheduleService struct {
	repo   repository.Repository
	cache  Cache
	events EventPublisher
	log    *logger.Logger
}

// NewScheduleService создает сервис расписаний. cache и events могут быть nil.
func NewScheduleService(repo repository.Repository, cache Cache, events EventPublisher, log *logger.Logger) *ScheduleService {
	if cache == nil {
		cache = nopCache{}
	}
	if events == nil {
		events = nopPublisher{}
	}
	return &ScheduleService{repo: repo, cache: cache, events: events, log: log}
}

// GetVansForDate возвращает фургоны со сводкой их расписания на дату
func (s *ScheduleService) GetVansForDate(ctx context.Context, date string) ([]models.Van, error) {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, invalidInput("date must be YYYY-MM-DD, got %q", date)
	}

	key := BuildKey(redis.KeyPrefixVansByDate, date)
	var cached []models.Van
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	vans, err := s.repo.ListVansForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list vans for %s: %w", date, err)
	}
	if vans == nil {
		vans = []models.Van{}
	}

	// Сводка меняется при каждой генерации и смене статуса
	if err := s.cache.Set(ctx, key, vans, s.cache.GetHotDataTTL()); err != nil {
		s.log.WithError(err).WithField("date", date).Warn("Failed to cache vans")
	}
	return vans, nil
}

// GetSchedule возвращает расписание по ID
func (s *ScheduleService) GetSchedule(ctx context.Context, id uuid.UUID) (*models.VanSchedule, error) {
	schedule, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return nil, translate(err, "schedule "+id.String())
	}
	return schedule, nil
}

// GetAssignments возвращает остановки расписания по возрастанию route_sequence
func (s *ScheduleService) GetAssignments(ctx context.Context, scheduleID uuid.UUID) ([]models.RouteAssignment, error) {
	// Остановки сохраненного расписания не меняются, поэтому живут в кеше дольше
	key := BuildKey(redis.KeyPrefixAssignments, scheduleID.String())
	var cached []models.RouteAssignment
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	assignments, err := s.repo.ListAssignments(ctx, scheduleID)
	if err != nil {
		return nil, translate(err, "schedule "+scheduleID.String())
	}
	if assignments == nil {
		assignments = []models.RouteAssignment{}
	}
	sort.SliceStable(assignments, func(i, j int) bool {
		return assignments[i].RouteSequence < assignments[j].RouteSequence
	})

	if err := s.cache.Set(ctx, key, assignments, s.cache.GetDefaultTTL()); err != nil {
		s.log.WithError(err).WithField("schedule_id", scheduleID).Warn("Failed to cache assignments")
	}
	return assignments, nil
}

// UpdateScheduleStatus переводит расписание в новый статус.
// Отмена возвращает заявки в очередь планирования.
func (s *ScheduleService) UpdateScheduleStatus(ctx context.Context, id uuid.UUID, status models.ScheduleStatus) (*models.VanSchedule, error) {
	current, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return nil, translate(err, "schedule "+id.String())
	}
	if !current.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	if err := s.repo.SetScheduleStatus(ctx, id, current.Status, status); err != nil {
		return nil, translate(err, "schedule "+id.String())
	}

	if err := s.cache.Delete(ctx, BuildKey(redis.KeyPrefixVansByDate, current.ScheduleDate)); err != nil {
		s.log.WithError(err).WithField("date", current.ScheduleDate).Warn("Failed to invalidate vans cache")
	}
	if err := s.events.PublishScheduleStatusChanged(id, current.Status, status); err != nil {
		s.log.WithError(err).WithField("schedule_id", id).Warn("Failed to publish schedule status event")
	}

	s.log.WithFields(map[string]interface{}{
		"schedule_id": id,
		"old_status":  current.Status,
		"new_status":  status,
	}).Info("Schedule status updated")

	updated, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return nil, translate(err, "schedule "+id.String())
	}
	return updated, nil
}
