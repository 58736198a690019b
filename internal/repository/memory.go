package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"van-dispatch/internal/models"

	"github.com/google/uuid"
)

// Memory хранилище в памяти процесса. Используется при STORAGE_DRIVER=memory и в тестах.
type Memory struct {
	mu          sync.RWMutex
	requests    map[uuid.UUID]models.ServiceRequest
	vans        map[uuid.UUID]models.Van
	schedules   map[uuid.UUID]models.VanSchedule
	assignments map[uuid.UUID][]models.RouteAssignment // schedule id -> остановки
	now         func() time.Time
}

// NewMemory создает пустое хранилище
func NewMemory() *Memory {
	return &Memory{
		requests:    map[uuid.UUID]models.ServiceRequest{},
		vans:        map[uuid.UUID]models.Van{},
		schedules:   map[uuid.UUID]models.VanSchedule{},
		assignments: map[uuid.UUID][]models.RouteAssignment{},
		now:         time.Now,
	}
}

func (m *Memory) UpsertServiceRequest(ctx context.Context, req *models.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if existing, ok := m.requests[req.ID]; ok {
		if existing.Status != models.RequestStatusPending {
			return fmt.Errorf("service request %s is %s: %w", req.ID, existing.Status, ErrConflict)
		}
		req.CreatedAt = existing.CreatedAt
	} else if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	req.UpdatedAt = now
	m.requests[req.ID] = *req
	return nil
}

func (m *Memory) GetServiceRequest(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) ListServiceRequests(ctx context.Context, status models.RequestStatus) ([]models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ServiceRequest, 0, len(m.requests))
	for _, r := range m.requests {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.PreferredDate.Equal(b.PreferredDate) {
			return a.PreferredDate.Before(b.PreferredDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return out, nil
}

func (m *Memory) CancelServiceRequest(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status == models.RequestStatusCompleted {
		return fmt.Errorf("service request %s already completed: %w", id, ErrConflict)
	}
	r.Status = models.RequestStatusCancelled
	r.UpdatedAt = m.now().UTC()
	m.requests[id] = r
	return nil
}

func (m *Memory) CreateVan(ctx context.Context, van *models.Van) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range m.vans {
		if v.VanNumber == van.VanNumber {
			return fmt.Errorf("van number %s already exists: %w", van.VanNumber, ErrConflict)
		}
	}
	if van.ID == uuid.Nil {
		van.ID = uuid.New()
	}
	if van.Status == "" {
		van.Status = models.VanStatusActive
	}
	now := m.now().UTC()
	van.CreatedAt, van.UpdatedAt = now, now
	m.vans[van.ID] = *van
	return nil
}

func (m *Memory) GetVan(ctx context.Context, id uuid.UUID) (*models.Van, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.vans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *Memory) ListVans(ctx context.Context) ([]models.Van, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedVans(false), nil
}

func (m *Memory) ListVansForDate(ctx context.Context, date string) ([]models.Van, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vans := m.sortedVans(true)
	for i := range vans {
		for _, s := range m.schedules {
			if s.VanID != vans[i].ID || s.ScheduleDate != date {
				continue
			}
			if vans[i].ScheduleID != nil && s.Status == models.ScheduleStatusCancelled {
				continue
			}
			id, status, start, end := s.ID, s.Status, s.StartTime, s.EndTime
			count := len(m.assignments[s.ID])
			vans[i].ScheduleID = &id
			vans[i].ScheduleStatus = &status
			vans[i].StartTime = &start
			vans[i].EndTime = &end
			vans[i].AssignmentCount = &count
		}
	}
	return vans, nil
}

func (m *Memory) sortedVans(skipRetired bool) []models.Van {
	out := make([]models.Van, 0, len(m.vans))
	for _, v := range m.vans {
		if skipRetired && v.Status == models.VanStatusRetired {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VanNumber < out[j].VanNumber })
	return out
}

func (m *Memory) UpdateVanStatus(ctx context.Context, id uuid.UUID, status models.VanStatus) (*models.Van, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vans[id]
	if !ok {
		return nil, ErrNotFound
	}
	v.Status = status
	v.UpdatedAt = m.now().UTC()
	m.vans[id] = v
	return &v, nil
}

func (m *Memory) ListSchedules(ctx context.Context, fromDate, toDate string) ([]models.VanSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.VanSchedule
	for _, s := range m.schedules {
		// YYYY-MM-DD сравнивается лексикографически
		if s.ScheduleDate >= fromDate && s.ScheduleDate <= toDate {
			out = append(out, m.withVan(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduleDate != out[j].ScheduleDate {
			return out[i].ScheduleDate < out[j].ScheduleDate
		}
		return out[i].VanNumber < out[j].VanNumber
	})
	return out, nil
}

func (m *Memory) GetSchedule(ctx context.Context, id uuid.UUID) (*models.VanSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	s = m.withVan(s)
	return &s, nil
}

func (m *Memory) withVan(s models.VanSchedule) models.VanSchedule {
	if v, ok := m.vans[s.VanID]; ok {
		s.VanNumber, s.VanName = v.VanNumber, v.VanName
	}
	return s
}

func (m *Memory) ListAssignments(ctx context.Context, scheduleID uuid.UUID) ([]models.RouteAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.schedules[scheduleID]; !ok {
		return nil, ErrNotFound
	}
	src := m.assignments[scheduleID]
	out := make([]models.RouteAssignment, 0, len(src))
	for _, a := range src {
		if r, ok := m.requests[a.ServiceRequestID]; ok {
			a.CustomerName, a.Address, a.City = r.CustomerName, r.Address, r.City
			a.ServiceType, a.Tier = r.ServiceType, r.Tier
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RouteSequence < out[j].RouteSequence })
	return out, nil
}

// SaveRoutes сохраняет все маршруты или ни одного
func (m *Memory) SaveRoutes(ctx context.Context, routes []ScheduledRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	taken := make(map[string]bool)
	for _, s := range m.schedules {
		if s.Status != models.ScheduleStatusCancelled {
			taken[s.VanID.String()+s.ScheduleDate] = true
		}
	}
	claimed := make(map[uuid.UUID]bool)
	for _, r := range routes {
		key := r.Schedule.VanID.String() + r.Schedule.ScheduleDate
		if taken[key] {
			return fmt.Errorf("van %s already scheduled on %s: %w", r.Schedule.VanID, r.Schedule.ScheduleDate, ErrConflict)
		}
		taken[key] = true
		for _, a := range r.Assignments {
			req, ok := m.requests[a.ServiceRequestID]
			if !ok || req.Status != models.RequestStatusPending || claimed[a.ServiceRequestID] {
				return fmt.Errorf("service request %s is not pending: %w", a.ServiceRequestID, ErrConflict)
			}
			claimed[a.ServiceRequestID] = true
		}
	}

	now := m.now().UTC()
	for _, r := range routes {
		s := r.Schedule
		s.CreatedAt, s.UpdatedAt = now, now
		m.schedules[s.ID] = s
		m.assignments[s.ID] = append([]models.RouteAssignment(nil), r.Assignments...)
		for _, a := range r.Assignments {
			req := m.requests[a.ServiceRequestID]
			req.Status = models.RequestStatusAssigned
			req.UpdatedAt = now
			m.requests[req.ID] = req
		}
	}
	return nil
}

func (m *Memory) SetScheduleStatus(ctx context.Context, id uuid.UUID, from, to models.ScheduleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status != from {
		return fmt.Errorf("schedule %s is %s: %w", id, s.Status, ErrConflict)
	}
	now := m.now().UTC()
	s.Status = to
	s.UpdatedAt = now
	m.schedules[id] = s

	var next models.RequestStatus
	switch to {
	case models.ScheduleStatusCancelled:
		next = models.RequestStatusPending
	case models.ScheduleStatusCompleted:
		next = models.RequestStatusCompleted
	default:
		return nil
	}
	for _, a := range m.assignments[id] {
		req, ok := m.requests[a.ServiceRequestID]
		if !ok || req.Status != models.RequestStatusAssigned {
			continue
		}
		req.Status = next
		req.UpdatedAt = now
		m.requests[req.ID] = req
	}
	return nil
}

func (m *Memory) Health(ctx context.Context) error {
	return nil
}
