package routing

import (
	"sort"
	"time"

	"van-dispatch/internal/models"
)

// Candidate заявка с вычисленной срочностью на конкретную дату
type Candidate struct {
	Request     models.ServiceRequest
	DaysOverdue int
	Multiplier  float64
	Urgency     float64
}

// Location возвращает координаты заявки
func (c Candidate) Location() Point {
	return Point{Lat: c.Request.Lat, Lon: c.Request.Lon}
}

// TierMultiplier возвращает стандартный множитель уровня: eternal 1.5, plus 1.2, basic 1.0
func TierMultiplier(tier models.Tier) float64 {
	return DefaultOptions().TierMultiplier(tier)
}

// TierMultiplier возвращает множитель уровня с учетом настроек
func (o Options) TierMultiplier(tier models.Tier) float64 {
	if m, ok := o.TierMultipliers[models.ParseTier(string(tier))]; ok && m > 0 {
		return m
	}
	return 1.0
}

// DaysOverdue считает полные дни между желаемой датой и датой планирования, не меньше нуля
func DaysOverdue(preferred, planDate time.Time) int {
	if preferred.IsZero() {
		return 0
	}
	days := int(truncateDay(planDate).Sub(truncateDay(preferred)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// UrgencyScore = days_overdue × tier_multiplier
func UrgencyScore(daysOverdue int, multiplier float64) float64 {
	return float64(daysOverdue) * multiplier
}

// Eligible сообщает, можно ли обслужить заявку в указанный день
func Eligible(r models.ServiceRequest, planDate time.Time) bool {
	if r.Status != "" && r.Status != models.RequestStatusPending {
		return false
	}
	if r.PreferredDate.IsZero() {
		return true
	}
	return !truncateDay(r.PreferredDate).After(truncateDay(planDate))
}

// Prioritize оценивает заявки и сортирует их по убыванию срочности
func Prioritize(requests []models.ServiceRequest, planDate time.Time, opts Options) []Candidate {
	cands := make([]Candidate, 0, len(requests))
	for _, r := range requests {
		days := DaysOverdue(r.PreferredDate, planDate)
		mult := opts.TierMultiplier(r.Tier)
		cands = append(cands, Candidate{
			Request:     r,
			DaysOverdue: days,
			Multiplier:  mult,
			Urgency:     UrgencyScore(days, mult),
		})
	}
	sortByUrgency(cands)
	return cands
}

// sortByUrgency: срочность, множитель, желаемая дата, дата создания, id
func sortByUrgency(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Urgency != b.Urgency {
			return a.Urgency > b.Urgency
		}
		if a.Multiplier != b.Multiplier {
			return a.Multiplier > b.Multiplier
		}
		if !a.Request.PreferredDate.Equal(b.Request.PreferredDate) {
			return a.Request.PreferredDate.Before(b.Request.PreferredDate)
		}
		if !a.Request.CreatedAt.Equal(b.Request.CreatedAt) {
			return a.Request.CreatedAt.Before(b.Request.CreatedAt)
		}
		return a.Request.ID.String() < b.Request.ID.String()
	})
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
