package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry отдельный реестр Prometheus сервиса
	Registry = prometheus.NewRegistry()

	// HTTPRequests количество запросов по методу, пути и статусу
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration длительность запросов в секундах
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// GenerationDuration длительность генерации маршрутов по исходу
	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "route_generation_duration_seconds", Help: "Route generation duration in seconds.", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}},
		[]string{"outcome"},
	)
	RoutesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "van_routes_created_total", Help: "Van routes (schedules) created by generation."},
	)
	RequestsAssigned = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "service_requests_assigned_total", Help: "Service requests assigned to a route."},
	)
	RequestsDeferred = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "service_requests_deferred_total", Help: "Eligible service requests left unassigned on a planned day."},
	)

	// IntakeEvents события приема заявок из Kafka по типу и исходу
	IntakeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "service_request_events_total", Help: "Service request events consumed from Kafka."},
		[]string{"type", "outcome"},
	)
)

var regOnce sync.Once

// RegisterDefault регистрирует коллекторы в Registry. Повторный вызов ничего не делает.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(GenerationDuration)
		Registry.MustRegister(RoutesCreated)
		Registry.MustRegister(RequestsAssigned)
		Registry.MustRegister(RequestsDeferred)
		Registry.MustRegister(IntakeEvents)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
