package handlers

import (
	"net/http"

	"van-dispatch/internal/logger"
	"van-dispatch/internal/models"
	"van-dispatch/internal/services"
)

// ServiceRequestHandler представляет обработчик заявок на выезд
type ServiceRequestHandler struct {
	service *services.ServiceRequestService
	log     *logger.Logger
}

// NewServiceRequestHandler создает новый обработчик заявок
func NewServiceRequestHandler(service *services.ServiceRequestService, log *logger.Logger) *ServiceRequestHandler {
	return &ServiceRequestHandler{service: service, log: log}
}

// Collection обрабатывает /service-requests
func (h *ServiceRequestHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.List(w, r)
	case http.MethodPost:
		h.Create(w, r)
	default:
		MethodNotAllowed(w, r)
	}
}

// List возвращает заявки, фильтр ?status=
func (h *ServiceRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get service requests")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"service_requests": requests})
}

// Create принимает заявку вручную
func (h *ServiceRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateServiceRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create service request")
		return
	}
	writeSuccess(w, http.StatusCreated, created)
}

// Cancel отменяет заявку: DELETE /service-requests/{id}
func (h *ServiceRequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		MethodNotAllowed(w, r)
		return
	}

	id, err := extractUUIDFromPath(r.URL.Path, "/service-requests/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid service request ID")
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err, "Failed to cancel service request")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"id": id, "status": models.RequestStatusCancelled})
}
