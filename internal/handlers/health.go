package handlers

import (
	"context"
	"net/http"
	"time"

	"van-dispatch/internal/models"
	"van-dispatch/internal/redis"
)

// StorageChecker хранилище, умеющее проверять свое состояние
type StorageChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler представляет обработчик для проверки здоровья системы
type HealthHandler struct {
	storage      StorageChecker
	redisClient  *redis.Client
	kafkaEnabled bool
}

// NewHealthHandler создает новый обработчик здоровья. redisClient может быть nil.
func NewHealthHandler(storage StorageChecker, redisClient *redis.Client, kafkaEnabled bool) *HealthHandler {
	return &HealthHandler{
		storage:      storage,
		redisClient:  redisClient,
		kafkaEnabled: kafkaEnabled,
	}
}

// HealthResponse представляет ответ проверки здоровья
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Version  string            `json:"version"`
	Uptime   string            `json:"uptime"`
}

// Version версия сборки, задается через -ldflags
var Version = "1.0.0"

var startTime = time.Now()

// Health проверяет состояние всех компонентов системы
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)
	overallStatus := "healthy"

	if err := h.storage.Health(ctx); err != nil {
		services["storage"] = "unhealthy: " + err.Error()
		overallStatus = "unhealthy"
	} else {
		services["storage"] = "healthy"
	}

	if h.redisClient == nil {
		services["redis"] = "disabled"
	} else if err := h.redisClient.Health(ctx); err != nil {
		services["redis"] = "unhealthy: " + err.Error()
		overallStatus = "unhealthy"
	} else {
		services["redis"] = "healthy"
	}

	if h.kafkaEnabled {
		services["kafka"] = "not checked"
	} else {
		services["kafka"] = "disabled"
	}

	response := HealthResponse{
		Status:   overallStatus,
		Services: services,
		Version:  Version,
		Uptime:   time.Since(startTime).String(),
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, models.Envelope{Success: statusCode == http.StatusOK, Data: response})
}

// Readiness проверяет готовность приложения к обработке запросов
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.storage.Health(ctx); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "Storage not ready")
		return
	}

	if h.redisClient != nil {
		if err := h.redisClient.Health(ctx); err != nil {
			writeErrorResponse(w, http.StatusServiceUnavailable, "Redis not ready")
			return
		}
	}

	writeSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Liveness проверяет, что приложение живо
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(startTime).String(),
	})
}
