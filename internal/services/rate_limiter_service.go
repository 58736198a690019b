package services

import (
	"context"
	"math"
	"time"

	"van-dispatch/internal/config"
	"van-dispatch/internal/logger"
	"van-dispatch/internal/redis"

	goredis "github.com/go-redis/redis/v8"
)

// Lua скрипт для атомарной проверки и инкремента счетчика
const rateLimitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = redis.call('GET', key)
if not current then
    current = 0
else
    current = tonumber(current)
end

current = current + 1

if current > limit then
    return {0, current, limit}
end

redis.call('SET', key, current, 'EX', ttl)
return {1, current, limit}
`

// окно счетчика в секундах
const rateLimitWindow = 60

// RateLimiterService ограничивает частоту тяжелых запросов (генерация маршрутов) по IP
type RateLimiterService struct {
	redis  *redis.Client
	config *config.RateLimitConfig
	log    *logger.Logger
}

// RateLimitResult содержит результат проверки rate limit
type RateLimitResult struct {
	Allowed     bool
	Remaining   int
	Limit       int
	ResetAt     time.Time
	BannedUntil time.Time
	RetryAfter  int
}

// NewRateLimiterService создает сервис ограничения запросов
func NewRateLimiterService(redis *redis.Client, cfg *config.RateLimitConfig, log *logger.Logger) *RateLimiterService {
	return &RateLimiterService{
		redis:  redis,
		config: cfg,
		log:    log,
	}
}

func (s *RateLimiterService) unlimited() *RateLimitResult {
	return &RateLimitResult{Allowed: true, Remaining: math.MaxInt, Limit: math.MaxInt}
}

func (s *RateLimiterService) limitFor(isVIP bool) int {
	if isVIP {
		return s.config.VIPRPM
	}
	return s.config.DefaultRPM
}

// banned возвращает результат, если IP сейчас забанен
func (s *RateLimiterService) banned(ctx context.Context, client *goredis.Client, ip string, limit int) *RateLimitResult {
	banKey := BuildKey(redis.KeyPrefixRateLimitBan, ip)
	v, err := client.Get(ctx, banKey).Result()
	if err != nil || v == "" {
		return nil
	}
	ttl, _ := client.TTL(ctx, banKey).Result()
	return &RateLimitResult{
		Allowed:     false,
		Remaining:   0,
		Limit:       limit,
		BannedUntil: time.Now().Add(ttl),
		RetryAfter:  int(ttl.Seconds()),
	}
}

// CheckLimit учитывает запрос и сообщает, разрешен ли он
func (s *RateLimiterService) CheckLimit(ctx context.Context, ip string, isVIP bool) (*RateLimitResult, error) {
	if !s.config.Enabled || s.redis == nil {
		return s.unlimited(), nil
	}

	client := s.redis.GetClient()
	limit := s.limitFor(isVIP)

	if res := s.banned(ctx, client, ip, limit); res != nil {
		return res, nil
	}

	key := BuildKey(redis.KeyPrefixRateLimitIP, ip)
	result, err := client.Eval(ctx, rateLimitLuaScript, []string{key}, limit, rateLimitWindow).Result()
	if err != nil {
		// fail-open: недоступный Redis не должен блокировать администраторов
		s.log.WithError(err).WithField("ip", ip).Error("Rate limit script failed")
		return &RateLimitResult{Allowed: true, Remaining: limit, Limit: limit}, nil
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		s.log.WithField("ip", ip).WithField("result", result).Error("Unexpected rate limit script result")
		return &RateLimitResult{Allowed: true, Remaining: limit, Limit: limit}, nil
	}
	allowed, _ := values[0].(int64)
	current, _ := values[1].(int64)

	if allowed != 1 {
		ban := time.Duration(s.config.BanDuration) * time.Second
		client.Set(ctx, BuildKey(redis.KeyPrefixRateLimitBan, ip), "1", ban)

		s.log.WithFields(map[string]interface{}{
			"ip":           ip,
			"count":        current,
			"limit":        limit,
			"ban_duration": s.config.BanDuration,
		}).Warn("Client exceeded rate limit and was banned")

		return &RateLimitResult{
			Allowed:     false,
			Remaining:   0,
			Limit:       limit,
			BannedUntil: time.Now().Add(ban),
			RetryAfter:  s.config.BanDuration,
		}, nil
	}

	ttl, _ := client.TTL(ctx, key).Result()
	return &RateLimitResult{
		Allowed:   true,
		Remaining: limit - int(current),
		Limit:     limit,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

// GetStatus возвращает текущий статус без изменения счетчика
func (s *RateLimiterService) GetStatus(ctx context.Context, ip string, isVIP bool) (*RateLimitResult, error) {
	if !s.config.Enabled || s.redis == nil {
		return s.unlimited(), nil
	}

	client := s.redis.GetClient()
	limit := s.limitFor(isVIP)

	if res := s.banned(ctx, client, ip, limit); res != nil {
		return res, nil
	}

	key := BuildKey(redis.KeyPrefixRateLimitIP, ip)
	count, err := client.Get(ctx, key).Int()
	if err != nil {
		count = 0
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	var resetAt time.Time
	if ttl, _ := client.TTL(ctx, key).Result(); ttl > 0 {
		resetAt = time.Now().Add(ttl)
	}

	return &RateLimitResult{
		Allowed:   count < limit,
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   resetAt,
	}, nil
}

// ResetLimit сбрасывает счетчик и бан для IP
func (s *RateLimiterService) ResetLimit(ctx context.Context, ip string) error {
	if s.redis == nil {
		return nil
	}
	if err := s.redis.Delete(ctx,
		BuildKey(redis.KeyPrefixRateLimitIP, ip),
		BuildKey(redis.KeyPrefixRateLimitBan, ip),
	); err != nil {
		s.log.WithError(err).WithField("ip", ip).Error("Failed to reset rate limit")
		return err
	}

	s.log.WithField("ip", ip).Info("Rate limit reset")
	return nil
}
