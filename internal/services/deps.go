package services

import (
	"context"
	"sync"
	"time"

	"van-dispatch/internal/models"

	"github.com/google/uuid"
)

// EventPublisher публикует события расписаний (реализован kafka.Producer)
type EventPublisher interface {
	PublishScheduleCreated(route *models.Route) error
	PublishScheduleStatusChanged(scheduleID uuid.UUID, oldStatus, newStatus models.ScheduleStatus) error
	PublishRoutesGenerated(summary models.RoutesGeneratedEvent) error
}

// Cache кеш ответов (реализован CacheService)
type Cache interface {
	Get(ctx context.Context, key string, target interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	GetDefaultTTL() time.Duration
	GetHotDataTTL() time.Duration
}

// Locker распределенная блокировка (реализован redis.Client)
type Locker interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

type nopPublisher struct{}

func (nopPublisher) PublishScheduleCreated(*models.Route) error { return nil }
func (nopPublisher) PublishScheduleStatusChanged(uuid.UUID, models.ScheduleStatus, models.ScheduleStatus) error {
	return nil
}
func (nopPublisher) PublishRoutesGenerated(models.RoutesGeneratedEvent) error { return nil }

type nopCache struct{}

func (nopCache) Get(context.Context, string, interface{}) (bool, error)        { return false, nil }
func (nopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (nopCache) Delete(context.Context, ...string) error                       { return nil }
func (nopCache) GetDefaultTTL() time.Duration                                  { return 0 }
func (nopCache) GetHotDataTTL() time.Duration                                  { return 0 }

// LocalLocker блокировка в пределах процесса, используется без Redis
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]localLock
}

type localLock struct {
	owner   string
	expires time.Time
}

// NewLocalLocker создает блокировку в памяти
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]localLock)}
}

func (l *LocalLocker) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if cur, ok := l.locks[key]; ok && now.Before(cur.expires) {
		return false, nil
	}
	l.locks[key] = localLock{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (l *LocalLocker) ReleaseLock(ctx context.Context, key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.locks[key]; ok && cur.owner == owner {
		delete(l.locks, key)
	}
	return nil
}
