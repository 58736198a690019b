package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"van-dispatch/internal/config"
	"van-dispatch/internal/logger"
	"van-dispatch/internal/models"
	"van-dispatch/internal/redis"
	"van-dispatch/internal/repository"
	"van-dispatch/internal/routing"

	"github.com/google/uuid"
)

type fakeCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
	gets    int
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string, target interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, target)
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

func (c *fakeCache) GetDefaultTTL() time.Duration { return time.Minute }
func (c *fakeCache) GetHotDataTTL() time.Duration { return 10 * time.Second }

type fakePublisher struct {
	mu        sync.Mutex
	created   []uuid.UUID
	changed   []models.ScheduleStatus
	summaries []models.RoutesGeneratedEvent
}

func (p *fakePublisher) PublishScheduleCreated(route *models.Route) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, route.Schedule.ID)
	return nil
}

func (p *fakePublisher) PublishScheduleStatusChanged(id uuid.UUID, oldStatus, newStatus models.ScheduleStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, newStatus)
	return nil
}

func (p *fakePublisher) PublishRoutesGenerated(summary models.RoutesGeneratedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, summary)
	return nil
}

type fixture struct {
	repo      *repository.Memory
	cache     *fakeCache
	events    *fakePublisher
	locker    *LocalLocker
	gen       *RouteGenerationService
	schedules *ScheduleService
	requests  *ServiceRequestService
	vans      *VanService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewDiscard()
	f := &fixture{
		repo:   repository.NewMemory(),
		cache:  newFakeCache(),
		events: &fakePublisher{},
		locker: NewLocalLocker(),
	}
	f.gen = NewRouteGenerationService(f.repo, routing.DefaultOptions(),
		config.GenerationConfig{LockTTL: 30, MaxDaysAhead: 14}, f.locker, f.cache, f.events, log)
	f.gen.today = func() time.Time { return time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC) }
	f.schedules = NewScheduleService(f.repo, f.cache, f.events, log)
	f.requests = NewServiceRequestService(f.repo, log)
	f.requests.today = f.gen.today
	f.vans = NewVanService(f.repo, log)
	return f
}

func (f *fixture) addVan(t *testing.T, number string) *models.Van {
	t.Helper()
	lat, lon := 50.0, 14.0
	v, err := f.vans.Create(context.Background(), models.CreateVanRequest{
		VanNumber: number, VanName: "Van " + number, DepotLat: &lat, DepotLon: &lon,
	})
	if err != nil {
		t.Fatalf("Create van: %v", err)
	}
	return v
}

func (f *fixture) addRequests(t *testing.T, n int, preferred string) []models.ServiceRequest {
	t.Helper()
	var out []models.ServiceRequest
	for i := 0; i < n; i++ {
		r, err := f.requests.Create(context.Background(), models.CreateServiceRequest{
			CustomerName:  "customer",
			City:          "Prague",
			Lat:           50.0 + float64(i+1)*0.005,
			Lon:           14.0 + float64(i%2)*0.005,
			Tier:          "plus",
			PreferredDate: preferred,
		})
		if err != nil {
			t.Fatalf("Create request: %v", err)
		}
		out = append(out, *r)
	}
	return out
}

func TestGenerateWeeklyRoutesReturnsEveryDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addVan(t, "VAN-01")
	f.addVan(t, "VAN-02")
	f.addRequests(t, 6, "2024-06-03")

	res, err := f.gen.GenerateWeeklyRoutes(ctx, "2024-06-03", 3)
	if err != nil {
		t.Fatalf("GenerateWeeklyRoutes: %v", err)
	}
	if len(res.RoutesByDay) != 3 {
		t.Fatalf("expected 3 days, got %d", len(res.RoutesByDay))
	}
	for i, want := range []string{"2024-06-03", "2024-06-04", "2024-06-05"} {
		if res.RoutesByDay[i].Date != want {
			t.Fatalf("day %d: got %s, want %s", i, res.RoutesByDay[i].Date, want)
		}
	}
	if res.TotalRequestsAssigned != 6 {
		t.Fatalf("expected 6 requests assigned, got %d", res.TotalRequestsAssigned)
	}
	if res.TotalRoutes == 0 || len(res.RoutesByDay[0].Routes) != res.TotalRoutes {
		t.Fatalf("all routes should land on the first day: total=%d day0=%d", res.TotalRoutes, len(res.RoutesByDay[0].Routes))
	}

	for _, route := range res.RoutesByDay[0].Routes {
		if route.Schedule.Status != models.ScheduleStatusPlanned {
			t.Fatalf("schedule status: %s", route.Schedule.Status)
		}
		for i, a := range route.Assignments {
			if a.RouteSequence != i+1 {
				t.Fatalf("route sequence %d at position %d", a.RouteSequence, i)
			}
			if a.EstimatedArrivalTime < "09:00" || a.EstimatedDepartureTime > "18:00" {
				t.Fatalf("stop outside the operating window: %s-%s", a.EstimatedArrivalTime, a.EstimatedDepartureTime)
			}
		}
	}

	pending, _ := f.repo.ListServiceRequests(ctx, models.RequestStatusPending)
	if len(pending) != 0 {
		t.Fatalf("expected no pending requests, got %d", len(pending))
	}
	if len(f.events.created) != res.TotalRoutes {
		t.Fatalf("expected %d schedule events, got %d", res.TotalRoutes, len(f.events.created))
	}
	if len(f.events.summaries) != 1 || f.events.summaries[0].TotalRequestsAssigned != 6 {
		t.Fatalf("unexpected summary events: %+v", f.events.summaries)
	}
	if len(f.cache.deleted) != 3 {
		t.Fatalf("expected cache invalidation per day, got %v", f.cache.deleted)
	}
}

func TestGenerateWeeklyRoutesEmptyStartMeansToday(t *testing.T) {
	f := newFixture(t)
	res, err := f.gen.GenerateWeeklyRoutes(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("GenerateWeeklyRoutes: %v", err)
	}
	if len(res.RoutesByDay) != 2 || res.RoutesByDay[0].Date != "2024-06-03" {
		t.Fatalf("unexpected days: %+v", res.RoutesByDay)
	}
	if res.TotalRoutes != 0 || res.TotalRequestsAssigned != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
	for _, d := range res.RoutesByDay {
		if d.Routes == nil {
			t.Fatalf("routes of %s must be an empty list, not null", d.Date)
		}
	}
}

func TestGenerateWeeklyRoutesValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		start string
		days  int
	}{
		{"2024-06-03", 0},
		{"2024-06-03", 15},
		{"03/06/2024", 7},
		{"2024-13-01", 7},
	}
	for _, c := range cases {
		if _, err := f.gen.GenerateWeeklyRoutes(ctx, c.start, c.days); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("start=%q days=%d: expected ErrInvalidInput, got %v", c.start, c.days, err)
		}
	}
}

func TestGenerateWeeklyRoutesHorizonNeverExceedsTwoWeeks(t *testing.T) {
	f := newFixture(t)
	gen := NewRouteGenerationService(f.repo, routing.DefaultOptions(),
		config.GenerationConfig{LockTTL: 30, MaxDaysAhead: 30}, f.locker, f.cache, f.events, logger.NewDiscard())
	gen.today = f.gen.today

	if _, err := gen.GenerateWeeklyRoutes(context.Background(), "2024-06-03", 20); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for 20 days, got %v", err)
	}
	res, err := gen.GenerateWeeklyRoutes(context.Background(), "2024-06-03", 14)
	if err != nil {
		t.Fatalf("14 days: %v", err)
	}
	if len(res.RoutesByDay) != 14 {
		t.Fatalf("expected 14 days, got %d", len(res.RoutesByDay))
	}
}

func TestGenerateWeeklyRoutesRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, _ := f.locker.AcquireLock(ctx, redis.KeyRouteGenerationLock, "other", time.Minute)
	if !ok {
		t.Fatal("failed to take lock")
	}
	if _, err := f.gen.GenerateWeeklyRoutes(ctx, "2024-06-03", 7); !errors.Is(err, ErrGenerationInProgress) {
		t.Fatalf("expected ErrGenerationInProgress, got %v", err)
	}

	_ = f.locker.ReleaseLock(ctx, redis.KeyRouteGenerationLock, "other")
	if _, err := f.gen.GenerateWeeklyRoutes(ctx, "2024-06-03", 7); err != nil {
		t.Fatalf("run after release: %v", err)
	}
	// Блокировка снята после успешного запуска
	if ok, _ := f.locker.AcquireLock(ctx, redis.KeyRouteGenerationLock, "next", time.Minute); !ok {
		t.Fatal("lock was not released")
	}
}

func TestGenerateWeeklyRoutesSkipsAlreadyScheduledVans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addVan(t, "VAN-01")
	f.addRequests(t, 2, "2024-06-03")

	first, err := f.gen.GenerateWeeklyRoutes(ctx, "2024-06-03", 1)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.TotalRoutes != 1 {
		t.Fatalf("expected 1 route, got %d", first.TotalRoutes)
	}

	f.addRequests(t, 2, "2024-06-03")
	second, err := f.gen.GenerateWeeklyRoutes(ctx, "2024-06-03", 2)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.RoutesByDay[0].Routes) != 0 {
		t.Fatalf("van already has a schedule on 2024-06-03")
	}
	if second.RoutesByDay[0].RequestsDeferred != 2 {
		t.Fatalf("expected 2 deferred on day one, got %d", second.RoutesByDay[0].RequestsDeferred)
	}
	if len(second.RoutesByDay[1].Routes) != 1 || second.RoutesByDay[1].RequestsAssigned != 2 {
		t.Fatalf("expected new requests on 2024-06-04: %+v", second.RoutesByDay[1])
	}
}

func TestScheduleServiceVansForDateUsesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addVan(t, "VAN-01")
	f.addRequests(t, 2, "2024-06-03")
	if _, err := f.gen.GenerateWeeklyRoutes(ctx, "2024-06-03", 1); err != nil {
		t.Fatalf("GenerateWeeklyRoutes: %v", err)
	}

	vans, err := f.schedules.GetVansForDate(ctx, "2024-06-03")
	if err != nil {
		t.Fatalf("GetVansForDate: %v", err)
	}
	if len(vans) != 1 || vans[0].ScheduleID == nil || *vans[0].AssignmentCount != 2 {
		t.Fatalf("unexpected vans: %+v", vans)
	}
	if _, ok := f.cache.data[BuildKey(redis.KeyPrefixVansByDate, "2024-06-03")]; !ok {
		t.Fatal("vans were not cached")
	}

	// Второй вызов отдается из кеша, даже если хранилище изменилось
	f.addVan(t, "VAN-02")
	cached, err := f.schedules.GetVansForDate(ctx, "2024-06-03")
	if err != nil {
		t.Fatalf("GetVansForDate: %v", err)
	}
	if len(cached) != 1 {
		t.Fatalf("expected cached answer, got %d vans", len(cached))
	}

	empty, err := f.schedules.GetVansForDate(ctx, "2024-06-10")
	if err != nil {
		t.Fatalf("GetVansForDate: %v", err)
	}
	for _, v := range empty {
		if v.ScheduleID != nil {
			t.Fatalf("van %s has no schedule on 2024-06-10", v.VanNumber)
		}
	}

	if _, err := f.schedules.GetVansForDate(ctx, "tomorrow"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestScheduleServiceAssignmentsAndStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addVan(t, "VAN-01")
	f.addRequests(t, 3, "2024-06-03")
	res, err := f.gen.GenerateWeeklyRoutes(ctx, "2024-06-03", 1)
	if err != nil {
		t.Fatalf("GenerateWeeklyRoutes: %v", err)
	}
	scheduleID := res.RoutesByDay[0].Routes[0].Schedule.ID

	assignments, err := f.schedules.GetAssignments(ctx, scheduleID)
	if err != nil {
		t.Fatalf("GetAssignments: %v", err)
	}
	if len(assignments) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(assignments))
	}
	for i, a := range assignments {
		if a.RouteSequence != i+1 || a.CustomerName == "" {
			t.Fatalf("assignment %d: %+v", i, a)
		}
	}

	if _, err := f.schedules.GetAssignments(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := f.schedules.UpdateScheduleStatus(ctx, scheduleID, models.ScheduleStatusCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("planned -> completed must be rejected, got %v", err)
	}

	updated, err := f.schedules.UpdateScheduleStatus(ctx, scheduleID, models.ScheduleStatusCancelled)
	if err != nil {
		t.Fatalf("UpdateScheduleStatus: %v", err)
	}
	if updated.Status != models.ScheduleStatusCancelled {
		t.Fatalf("status: %s", updated.Status)
	}
	pending, _ := f.repo.ListServiceRequests(ctx, models.RequestStatusPending)
	if len(pending) != 3 {
		t.Fatalf("cancel must release requests, got %d pending", len(pending))
	}
	if len(f.events.changed) != 1 || f.events.changed[0] != models.ScheduleStatusCancelled {
		t.Fatalf("unexpected status events: %v", f.events.changed)
	}

	// Отмененное расписание освобождает день для повторной генерации
	again, err := f.gen.GenerateWeeklyRoutes(ctx, "2024-06-03", 1)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if again.TotalRequestsAssigned != 3 {
		t.Fatalf("expected 3 reassigned, got %d", again.TotalRequestsAssigned)
	}
}

func TestServiceRequestServiceValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bad := []models.CreateServiceRequest{
		{Lat: 50, Lon: 14},
		{CustomerName: "a", Lat: 91, Lon: 14},
		{CustomerName: "a", Lat: 50, Lon: 181},
		{CustomerName: "a"},
		{CustomerName: "a", Lat: 50, Lon: 14, PreferredDate: "June 3"},
		{CustomerName: "a", Lat: 50, Lon: 14, DurationMinutes: -5},
	}
	for i, in := range bad {
		if _, err := f.requests.Create(ctx, in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}

	r, err := f.requests.Create(ctx, models.CreateServiceRequest{
		CustomerName: " Jana ", Lat: 50, Lon: 14, Tier: "GOLD",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.CustomerName != "Jana" || r.Tier != models.TierBasic || r.Status != models.RequestStatusPending {
		t.Fatalf("unexpected request: %+v", r)
	}
	if got := r.PreferredDate.Format(models.DateLayout); got != "2024-06-03" {
		t.Fatalf("empty preferred date should mean today, got %s", got)
	}

	if _, err := f.requests.List(ctx, "unknown"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	list, err := f.requests.List(ctx, "PENDING")
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v %d", err, len(list))
	}

	if err := f.requests.Cancel(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceRequestEventHandlers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := uuid.New()

	// Data после чтения из Kafka приходит как map
	created := &models.Event{
		ID:   uuid.New(),
		Type: models.EventTypeServiceRequestCreated,
		Data: map[string]interface{}{
			"id":             id.String(),
			"customer_name":  "Petr",
			"lat":            49.19,
			"lon":            16.6,
			"tier":           "eternal",
			"preferred_date": "2024-06-01",
		},
	}
	if err := f.requests.HandleCreatedEvent(ctx, created); err != nil {
		t.Fatalf("HandleCreatedEvent: %v", err)
	}
	stored, err := f.repo.GetServiceRequest(ctx, id)
	if err != nil {
		t.Fatalf("GetServiceRequest: %v", err)
	}
	if stored.Tier != models.TierEternal || stored.CustomerName != "Petr" {
		t.Fatalf("unexpected request: %+v", stored)
	}

	// Повторная доставка того же события обновляет заявку
	if err := f.requests.HandleCreatedEvent(ctx, created); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	all, _ := f.requests.List(ctx, "")
	if len(all) != 1 {
		t.Fatalf("redelivery created a duplicate: %d", len(all))
	}

	cancelled := &models.Event{
		ID:   uuid.New(),
		Type: models.EventTypeServiceRequestCancelled,
		Data: models.ServiceRequestCancelledEvent{ServiceRequestID: id, Reason: "customer"},
	}
	if err := f.requests.HandleCancelledEvent(ctx, cancelled); err != nil {
		t.Fatalf("HandleCancelledEvent: %v", err)
	}
	stored, _ = f.repo.GetServiceRequest(ctx, id)
	if stored.Status != models.RequestStatusCancelled {
		t.Fatalf("status: %s", stored.Status)
	}

	if err := f.requests.HandleCancelledEvent(ctx, &models.Event{Data: map[string]interface{}{}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestVanService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.vans.Create(ctx, models.CreateVanRequest{VanNumber: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	v := f.addVan(t, "VAN-07")
	if v.Status != models.VanStatusActive || v.DepotLat != 50.0 {
		t.Fatalf("unexpected van: %+v", v)
	}
	if _, err := f.vans.Create(ctx, models.CreateVanRequest{VanNumber: "VAN-07"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if _, err := f.vans.UpdateStatus(ctx, v.ID, "broken"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	updated, err := f.vans.UpdateStatus(ctx, v.ID, models.VanStatusMaintenance)
	if err != nil || updated.Status != models.VanStatusMaintenance {
		t.Fatalf("UpdateStatus: %v %+v", err, updated)
	}
	if _, err := f.vans.UpdateStatus(ctx, uuid.New(), models.VanStatusActive); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Фургон на обслуживании не получает маршрутов
	f.addRequests(t, 2, "2024-06-03")
	res, err := f.gen.GenerateWeeklyRoutes(ctx, "2024-06-03", 1)
	if err != nil {
		t.Fatalf("GenerateWeeklyRoutes: %v", err)
	}
	if res.TotalRoutes != 0 {
		t.Fatalf("van in maintenance got %d routes", res.TotalRoutes)
	}

	list, err := f.vans.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v %d", err, len(list))
	}
}
