package handlers

import (
	"net/http"
	"strings"

	"van-dispatch/internal/logger"
	"van-dispatch/internal/models"
	"van-dispatch/internal/services"
)

const (
	vansPrefix      = "/vans/"
	schedulesPrefix = "/vans/schedules/"
)

// VanHandler представляет обработчик фургонов, расписаний и генерации маршрутов
type VanHandler struct {
	generator *services.RouteGenerationService
	schedules *services.ScheduleService
	vans      *services.VanService
	log       *logger.Logger
}

// NewVanHandler создает новый обработчик фургонов
func NewVanHandler(generator *services.RouteGenerationService, schedules *services.ScheduleService,
	vans *services.VanService, log *logger.Logger) *VanHandler {
	return &VanHandler{
		generator: generator,
		schedules: schedules,
		vans:      vans,
		log:       log,
	}
}

// GenerateWeeklyRoutes строит маршруты на days_ahead дней начиная со start_date
func (h *VanHandler) GenerateWeeklyRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r)
		return
	}

	var req models.GenerateWeeklyRoutesRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.generator.GenerateWeeklyRoutes(r.Context(), req.StartDate, req.DaysAhead.Int())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to generate routes")
		return
	}

	writeSuccess(w, http.StatusOK, result)
}

// GetVans возвращает фургоны. С параметром date добавляет сводку расписания на дату.
func (h *VanHandler) GetVans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	var (
		vans []models.Van
		err  error
	)
	if date := strings.TrimSpace(r.URL.Query().Get("date")); date != "" {
		vans, err = h.schedules.GetVansForDate(r.Context(), date)
	} else {
		vans, err = h.vans.List(r.Context())
	}
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get vans")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{"vans": vans})
}

// CreateVan добавляет фургон в парк
func (h *VanHandler) CreateVan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r)
		return
	}

	var req models.CreateVanRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	van, err := h.vans.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create van")
		return
	}

	writeSuccess(w, http.StatusCreated, van)
}

// UpdateVanStatus меняет статус фургона: PUT /vans/{id}/status
func (h *VanHandler) UpdateVanStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		MethodNotAllowed(w, r)
		return
	}

	id, err := extractUUIDFromPath(r.URL.Path, vansPrefix)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid van ID")
		return
	}

	var req models.UpdateVanStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	van, err := h.vans.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update van status")
		return
	}

	writeSuccess(w, http.StatusOK, van)
}

// GetAssignments возвращает остановки расписания: GET /vans/schedules/{id}/assignments
func (h *VanHandler) GetAssignments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	id, err := extractUUIDFromPath(r.URL.Path, schedulesPrefix)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid schedule ID")
		return
	}

	assignments, err := h.schedules.GetAssignments(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get assignments")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{"assignments": assignments})
}

// UpdateScheduleStatus меняет статус расписания: PUT /vans/schedules/{id}/status
func (h *VanHandler) UpdateScheduleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		MethodNotAllowed(w, r)
		return
	}

	id, err := extractUUIDFromPath(r.URL.Path, schedulesPrefix)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid schedule ID")
		return
	}

	var req models.UpdateScheduleStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	schedule, err := h.schedules.UpdateScheduleStatus(r.Context(), id, req.Status)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update schedule status")
		return
	}

	writeSuccess(w, http.StatusOK, schedule)
}

// Route разбирает пути под /vans/ и вызывает нужный обработчик
func (h *VanHandler) Route(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/vans/generate-weekly-routes":
		h.GenerateWeeklyRoutes(w, r)
	case strings.HasPrefix(path, schedulesPrefix) && strings.HasSuffix(path, "/assignments"):
		h.GetAssignments(w, r)
	case strings.HasPrefix(path, schedulesPrefix) && strings.HasSuffix(path, "/status"):
		h.UpdateScheduleStatus(w, r)
	case strings.HasSuffix(path, "/status") && !strings.HasPrefix(path, schedulesPrefix):
		h.UpdateVanStatus(w, r)
	default:
		NotFound(w, r)
	}
}

// Collection обрабатывает /vans
func (h *VanHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.GetVans(w, r)
	case http.MethodPost:
		h.CreateVan(w, r)
	default:
		MethodNotAllowed(w, r)
	}
}
