package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"van-dispatch/internal/config"
	"van-dispatch/internal/logger"
	"van-dispatch/internal/metrics"
	"van-dispatch/internal/models"
	"van-dispatch/internal/redis"
	"van-dispatch/internal/repository"
	"van-dispatch/internal/routing"

	"github.com/google/uuid"
)

// RouteGenerationService строит и сохраняет маршруты фургонов на несколько дней вперед
type RouteGenerationService struct {
	repo   repository.Repository
	opts   routing.Options
	cfg    config.GenerationConfig
	locker Locker
	cache  Cache
	events EventPublisher
	log    *logger.Logger
	today  func() time.Time
}

// NewRouteGenerationService создает сервис генерации. cache и events могут быть nil.
func NewRouteGenerationService(repo repository.Repository, opts routing.Options, cfg config.GenerationConfig,
	locker Locker, cache Cache, events EventPublisher, log *logger.Logger) *RouteGenerationService {
	if cache == nil {
		cache = nopCache{}
	}
	if events == nil {
		events = nopPublisher{}
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	if cfg.MaxDaysAhead <= 0 || cfg.MaxDaysAhead > config.MaxDaysAhead {
		cfg.MaxDaysAhead = config.MaxDaysAhead
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 120
	}
	return &RouteGenerationService{
		repo:   repo,
		opts:   opts,
		cfg:    cfg,
		locker: locker,
		cache:  cache,
		events: events,
		log:    log,
		today:  time.Now,
	}
}

// GenerateWeeklyRoutes планирует дни [startDate, startDate+daysAhead) и сохраняет расписания.
// Пустая startDate означает сегодня. В результате ровно daysAhead дней по порядку.
func (s *RouteGenerationService) GenerateWeeklyRoutes(ctx context.Context, startDate string, daysAhead int) (*models.GenerateWeeklyRoutesResult, error) {
	started := time.Now()
	outcome := "error"
	defer func() {
		metrics.GenerationDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	}()

	start, err := s.parseStart(startDate)
	if err != nil {
		outcome = "invalid"
		return nil, err
	}
	if daysAhead < 1 || daysAhead > s.cfg.MaxDaysAhead {
		outcome = "invalid"
		return nil, invalidInput("days_ahead must be between 1 and %d", s.cfg.MaxDaysAhead)
	}

	owner := uuid.New().String()
	ok, err := s.locker.AcquireLock(ctx, redis.KeyRouteGenerationLock, owner, time.Duration(s.cfg.LockTTL)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire generation lock: %w", err)
	}
	if !ok {
		outcome = "locked"
		return nil, ErrGenerationInProgress
	}
	defer func() {
		// Снимаем блокировку даже при отмене запроса
		if err := s.locker.ReleaseLock(context.Background(), redis.KeyRouteGenerationLock, owner); err != nil {
			s.log.WithError(err).Warn("Failed to release generation lock")
		}
	}()

	log := s.log.WithFields(map[string]interface{}{
		"start_date": start.Format(models.DateLayout),
		"days_ahead": daysAhead,
	})
	log.Info("Route generation started")

	requests, err := s.repo.ListServiceRequests(ctx, models.RequestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending requests: %w", err)
	}
	vans, err := s.repo.ListVans(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load vans: %w", err)
	}
	end := start.AddDate(0, 0, daysAhead-1)
	existing, err := s.repo.ListSchedules(ctx, start.Format(models.DateLayout), end.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to load existing schedules: %w", err)
	}

	busy := make(map[string]map[uuid.UUID]bool)
	for _, sch := range existing {
		if sch.Status == models.ScheduleStatusCancelled {
			continue
		}
		if busy[sch.ScheduleDate] == nil {
			busy[sch.ScheduleDate] = make(map[uuid.UUID]bool)
		}
		busy[sch.ScheduleDate][sch.VanID] = true
	}

	plans := routing.PlanHorizon(start, daysAhead, requests, vans, busy, s.opts)

	result := &models.GenerateWeeklyRoutesResult{RoutesByDay: make([]models.DayRoutes, 0, daysAhead)}
	var deferred int
	for _, plan := range plans {
		day, scheduled := buildDay(plan)
		if len(scheduled) > 0 {
			if err := s.repo.SaveRoutes(ctx, scheduled); err != nil {
				return nil, translate(err, "failed to save routes for "+day.Date)
			}
			s.publishDay(day)
		}
		if err := s.cache.Delete(ctx, BuildKey(redis.KeyPrefixVansByDate, day.Date)); err != nil {
			log.WithError(err).WithField("date", day.Date).Warn("Failed to invalidate vans cache")
		}

		result.TotalRoutes += len(day.Routes)
		result.TotalRequestsAssigned += day.RequestsAssigned
		result.RoutesByDay = append(result.RoutesByDay, day)
		deferred += day.RequestsDeferred
	}

	metrics.RoutesCreated.Add(float64(result.TotalRoutes))
	metrics.RequestsAssigned.Add(float64(result.TotalRequestsAssigned))
	metrics.RequestsDeferred.Add(float64(deferred))

	if err := s.events.PublishRoutesGenerated(models.RoutesGeneratedEvent{
		StartDate:             start.Format(models.DateLayout),
		DaysAhead:             daysAhead,
		TotalRoutes:           result.TotalRoutes,
		TotalRequestsAssigned: result.TotalRequestsAssigned,
	}); err != nil {
		log.WithError(err).Warn("Failed to publish routes generated event")
	}

	outcome = "success"
	log.WithFields(map[string]interface{}{
		"total_routes":            result.TotalRoutes,
		"total_requests_assigned": result.TotalRequestsAssigned,
		"duration":                time.Since(started).String(),
	}).Info("Route generation completed")

	return result, nil
}

func (s *RouteGenerationService) parseStart(startDate string) (time.Time, error) {
	startDate = strings.TrimSpace(startDate)
	if startDate == "" {
		y, m, d := s.today().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	start, err := time.Parse(models.DateLayout, startDate)
	if err != nil {
		return time.Time{}, invalidInput("start_date must be YYYY-MM-DD, got %q", startDate)
	}
	return start, nil
}

func (s *RouteGenerationService) publishDay(day models.DayRoutes) {
	for i := range day.Routes {
		route := &day.Routes[i]
		if err := s.events.PublishScheduleCreated(route); err != nil {
			s.log.WithError(err).WithField("schedule_id", route.Schedule.ID).Warn("Failed to publish schedule created event")
		}
	}
}

// buildDay переводит план дня в ответ API и записи для сохранения
func buildDay(plan routing.DayPlan) (models.DayRoutes, []repository.ScheduledRoute) {
	date := plan.Date.Format(models.DateLayout)
	day := models.DayRoutes{
		Date:             date,
		Routes:           make([]models.Route, 0, len(plan.Routes)),
		RequestsAssigned: plan.RequestsAssigned(),
		RequestsDeferred: len(plan.Deferred),
	}
	scheduled := make([]repository.ScheduledRoute, 0, len(plan.Routes))

	for _, pr := range plan.Routes {
		schedule := models.VanSchedule{
			ID:           uuid.New(),
			VanID:        pr.Van.ID,
			VanNumber:    pr.Van.VanNumber,
			VanName:      pr.Van.VanName,
			ScheduleDate: date,
			Status:       models.ScheduleStatusPlanned,
			StartTime:    routing.FormatClock(pr.StartTime()),
			EndTime:      routing.FormatClock(pr.EndTime()),
		}

		assignments := make([]models.RouteAssignment, 0, len(pr.Stops))
		for _, stop := range pr.Stops {
			req := stop.Request
			assignments = append(assignments, models.RouteAssignment{
				ID:                     uuid.New(),
				ScheduleID:             schedule.ID,
				ServiceRequestID:       req.ID,
				RouteSequence:          stop.Sequence,
				EstimatedArrivalTime:   routing.FormatClock(stop.Arrival),
				EstimatedDepartureTime: routing.FormatClock(stop.Departure),
				UrgencyScore:           stop.Urgency,
				DistanceFromPrevKm:     stop.DistanceFromPrevKm,
				CustomerName:           req.CustomerName,
				Address:                req.Address,
				City:                   req.City,
				ServiceType:            req.ServiceType,
				Tier:                   models.ParseTier(string(req.Tier)),
			})
		}

		day.Routes = append(day.Routes, models.Route{
			Schedule:        schedule,
			Assignments:     assignments,
			TotalDistanceKm: pr.TotalDistanceKm,
			EfficiencyScore: pr.EfficiencyScore(),
		})
		scheduled = append(scheduled, repository.ScheduledRoute{Schedule: schedule, Assignments: assignments})
	}
	return day, scheduled
}
