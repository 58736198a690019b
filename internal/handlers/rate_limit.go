package handlers

import (
	"net/http"
	"strings"
	"time"

	"van-dispatch/internal/logger"
	"van-dispatch/internal/middleware"
	"van-dispatch/internal/services"
)

// RateLimitHandler обрабатывает запросы связанные с rate limiting
type RateLimitHandler struct {
	rateLimiter *services.RateLimiterService
	log         *logger.Logger
}

// NewRateLimitHandler создает новый RateLimitHandler
func NewRateLimitHandler(rateLimiter *services.RateLimiterService, log *logger.Logger) *RateLimitHandler {
	return &RateLimitHandler{
		rateLimiter: rateLimiter,
		log:         log,
	}
}

// Route обрабатывает /admin/rate-limit: GET статус, DELETE сброс
func (h *RateLimitHandler) Route(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.GetStatus(w, r)
	case http.MethodDelete:
		h.Reset(w, r)
	default:
		MethodNotAllowed(w, r)
	}
}

// GetStatus возвращает текущий статус rate limit для клиента (без инкремента счетчика)
func (h *RateLimitHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ip := targetIP(r)

	result, err := h.rateLimiter.GetStatus(r.Context(), ip, false)
	if err != nil {
		h.log.WithError(err).WithField("ip", ip).Error("Failed to get rate limit status")
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to get rate limit status")
		return
	}

	response := map[string]interface{}{
		"ip":        ip,
		"limit":     result.Limit,
		"remaining": result.Remaining,
		"is_banned": !result.Allowed,
	}
	if !result.ResetAt.IsZero() {
		response["reset_at"] = result.ResetAt.Format(time.RFC3339)
	}

	// Для забаненного клиента добавляем срок бана
	if !result.Allowed && !result.BannedUntil.IsZero() {
		response["banned_until"] = result.BannedUntil.Format(time.RFC3339)
		response["retry_after"] = result.RetryAfter
	}

	writeSuccess(w, http.StatusOK, response)
}

// Reset снимает ограничение с IP (?ip=, по умолчанию IP вызывающего)
func (h *RateLimitHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ip := targetIP(r)

	if err := h.rateLimiter.ResetLimit(r.Context(), ip); err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to reset rate limit")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{"ip": ip})
}

func targetIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.URL.Query().Get("ip")); ip != "" {
		return ip
	}
	return middleware.ClientIP(r)
}
