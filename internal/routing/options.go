// Package routing строит дневные маршруты фургонов по заявкам в очереди.
//
// План дня строится по шагам. Сначала заявки отбираются по срочности,
// затем группируются по географии (k-means, кластер на свободный фургон).
// Внутри кластера остановки упорядочиваются ближайшим соседом с учетом
// рабочего окна. Пакет не выполняет ввода-вывода.
package routing

import (
	"fmt"
	"strings"
	"time"

	"van-dispatch/internal/config"
	"van-dispatch/internal/models"
)

// Options управляет параметрами планирования
type Options struct {
	WindowStart          time.Duration // смещение от полуночи
	WindowEnd            time.Duration
	AverageSpeedKph      float64
	ServiceMinutes       int
	MaxStopsPerVan       int
	MaxClusterIterations int
	TierMultipliers      map[models.Tier]float64
	DefaultDepot         Point
}

// DefaultOptions возвращает параметры по умолчанию: окно 09:00–18:00, 30 км/ч, 45 минут на визит
func DefaultOptions() Options {
	return Options{
		WindowStart:          9 * time.Hour,
		WindowEnd:            18 * time.Hour,
		AverageSpeedKph:      30,
		ServiceMinutes:       45,
		MaxStopsPerVan:       12,
		MaxClusterIterations: 20,
		TierMultipliers: map[models.Tier]float64{
			models.TierEternal: 1.5,
			models.TierPlus:    1.2,
			models.TierBasic:   1.0,
		},
	}
}

// OptionsFromConfig переводит конфигурацию маршрутизации в Options
func OptionsFromConfig(cfg config.RoutingConfig) (Options, error) {
	opts := DefaultOptions()

	if cfg.WindowStart != "" {
		d, err := ParseClock(cfg.WindowStart)
		if err != nil {
			return Options{}, fmt.Errorf("invalid window start: %w", err)
		}
		opts.WindowStart = d
	}
	if cfg.WindowEnd != "" {
		d, err := ParseClock(cfg.WindowEnd)
		if err != nil {
			return Options{}, fmt.Errorf("invalid window end: %w", err)
		}
		opts.WindowEnd = d
	}
	if cfg.AverageSpeedKph > 0 {
		opts.AverageSpeedKph = cfg.AverageSpeedKph
	}
	if cfg.ServiceMinutes > 0 {
		opts.ServiceMinutes = cfg.ServiceMinutes
	}
	if cfg.MaxStopsPerVan > 0 {
		opts.MaxStopsPerVan = cfg.MaxStopsPerVan
	}
	if cfg.MaxClusterIteration > 0 {
		opts.MaxClusterIterations = cfg.MaxClusterIteration
	}
	opts.DefaultDepot = Point{Lat: cfg.DepotLat, Lon: cfg.DepotLon}
	for name, m := range cfg.TierMultipliers {
		tier, err := knownTier(name)
		if err != nil {
			return Options{}, err
		}
		if m > 0 {
			opts.TierMultipliers[tier] = m
		}
	}

	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// knownTier в отличие от models.ParseTier не сводит неизвестные названия к basic
func knownTier(name string) (models.Tier, error) {
	switch tier := models.Tier(strings.ToLower(strings.TrimSpace(name))); tier {
	case models.TierEternal, models.TierPlus, models.TierBasic:
		return tier, nil
	default:
		return "", fmt.Errorf("unknown tier %q in tier multipliers", name)
	}
}

// Validate проверяет согласованность параметров
func (o Options) Validate() error {
	if o.WindowStart < 0 || o.WindowEnd > 24*time.Hour {
		return fmt.Errorf("operating window must lie within one day")
	}
	if o.WindowEnd <= o.WindowStart {
		return fmt.Errorf("operating window end %s must be after start %s",
			FormatClock(o.WindowEnd), FormatClock(o.WindowStart))
	}
	if o.AverageSpeedKph <= 0 {
		return fmt.Errorf("average speed must be positive")
	}
	if o.ServiceMinutes <= 0 {
		return fmt.Errorf("service minutes must be positive")
	}
	if o.MaxStopsPerVan <= 0 {
		return fmt.Errorf("max stops per van must be positive")
	}
	return nil
}

// ParseClock разбирает время суток в формате HH:MM
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse(models.ClockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// FormatClock форматирует смещение от полуночи как HH:MM
func FormatClock(d time.Duration) string {
	total := int(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
