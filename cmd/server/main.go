package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"van-dispatch/internal/config"
	"van-dispatch/internal/database"
	"van-dispatch/internal/handlers"
	"van-dispatch/internal/kafka"
	"van-dispatch/internal/logger"
	"van-dispatch/internal/metrics"
	"van-dispatch/internal/middleware"
	"van-dispatch/internal/models"
	"van-dispatch/internal/redis"
	"van-dispatch/internal/repository"
	"van-dispatch/internal/routing"
	"van-dispatch/internal/services"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Загрузка конфигурации
	cfg := config.Load()

	// Инициализация логгера
	log := logger.New(&cfg.Logger)
	log.Info("Starting van dispatch server...")

	metrics.RegisterDefault()

	if err := cfg.Auth.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid auth configuration")
	}

	opts, err := routing.OptionsFromConfig(cfg.Routing)
	if err == nil {
		err = opts.Validate()
	}
	if err != nil {
		log.WithError(err).Fatal("Invalid routing configuration")
	}

	// Хранилище
	var repo repository.Repository
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn("Using in-memory storage, data is lost on restart")
		repo = repository.NewMemory()
	default:
		db, err := database.Connect(&cfg.Database, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		if cfg.Database.Migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := db.Migrate(ctx, log)
			cancel()
			if err != nil {
				log.WithError(err).Fatal("Failed to migrate database")
			}
		}
		repo = repository.NewPostgres(db)
	}

	// Redis: кеш, блокировка генерации, rate limit
	var (
		redisClient  *redis.Client
		cacheService *services.CacheService
		cache        services.Cache
		locker       services.Locker
	)
	if cfg.Redis.Enabled {
		redisClient, err = redis.Connect(&cfg.Redis, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()

		cacheService = services.NewCacheService(redisClient, &cfg.Cache, log)
		cache = cacheService
		locker = redisClient
	} else {
		log.Warn("Redis disabled: cache off, generation lock is process-local, rate limit off")
	}

	// Kafka: публикация расписаний и прием заявок
	var events services.EventPublisher
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(&cfg.Kafka, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		events = producer

		consumer, err = kafka.NewConsumer(&cfg.Kafka, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Kafka consumer")
		}
		defer consumer.Stop()
	}

	// Инициализация сервисов
	generator := services.NewRouteGenerationService(repo, opts, cfg.Generation, locker, cache, events, log)
	scheduleService := services.NewScheduleService(repo, cache, events, log)
	vanService := services.NewVanService(repo, log)
	requestService := services.NewServiceRequestService(repo, log)
	rateLimiter := services.NewRateLimiterService(redisClient, &cfg.RateLimit, log)

	if consumer != nil {
		registerEventHandlers(consumer, requestService)
		if err := consumer.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start Kafka consumer")
		}
	}

	// Инициализация handlers
	vanHandler := handlers.NewVanHandler(generator, scheduleService, vanService, log)
	requestHandler := handlers.NewServiceRequestHandler(requestService, log)
	healthHandler := handlers.NewHealthHandler(repo, redisClient, cfg.Kafka.Enabled)
	cacheHandler := handlers.NewCacheHandler(cacheService, log)
	rateLimitHandler := handlers.NewRateLimitHandler(rateLimiter, log)

	// Настройка HTTP роутера
	mux := setupRoutes(routeDeps{
		jwt:         middleware.NewJWT(&cfg.Auth),
		rateLimiter: rateLimiter,
		vans:        vanHandler,
		requests:    requestHandler,
		health:      healthHandler,
		cache:       cacheHandler,
		rateLimit:   rateLimitHandler,
		log:         log,
	})

	// Создание HTTP сервера
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RealIP(cfg.RateLimit.TrustProxy), middleware.AccessLog(log), handlers.CORS),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запуск сервера в горутине
	go func() {
		log.WithField("address", server.Addr).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}

type routeDeps struct {
	jwt         *middleware.JWTService
	rateLimiter *services.RateLimiterService
	vans        *handlers.VanHandler
	requests    *handlers.ServiceRequestHandler
	health      *handlers.HealthHandler
	cache       *handlers.CacheHandler
	rateLimit   *handlers.RateLimitHandler
	log         *logger.Logger
}

// setupRoutes настраивает маршруты HTTP сервера
func setupRoutes(d routeDeps) *http.ServeMux {
	mux := http.NewServeMux()
	auth := middleware.Auth(d.jwt, d.log)
	protect := func(h http.HandlerFunc) http.Handler { return auth(h) }

	// Health check и метрики без авторизации
	mux.HandleFunc("/health", d.health.Health)
	mux.HandleFunc("/health/readiness", d.health.Readiness)
	mux.HandleFunc("/health/liveness", d.health.Liveness)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// Генерация маршрутов: авторизация, затем лимит по IP
	mux.Handle("/vans/generate-weekly-routes", middleware.Chain(
		http.HandlerFunc(d.vans.GenerateWeeklyRoutes),
		auth,
		middleware.RateLimit(d.rateLimiter, d.log),
	))

	// Фургоны и расписания
	mux.Handle("/vans", protect(d.vans.Collection))
	mux.Handle("/vans/", protect(d.vans.Route))

	// Заявки
	mux.Handle("/service-requests", protect(d.requests.Collection))
	mux.Handle("/service-requests/", protect(d.requests.Cancel))

	// Администрирование
	mux.Handle("/admin/cache/metrics", protect(d.cache.GetMetrics))
	mux.Handle("/admin/rate-limit", protect(d.rateLimit.Route))

	return mux
}

// registerEventHandlers регистрирует обработчики событий Kafka
func registerEventHandlers(consumer *kafka.Consumer, requests *services.ServiceRequestService) {
	consumer.RegisterHandler(models.EventTypeServiceRequestCreated, requests.HandleCreatedEvent)
	consumer.RegisterHandler(models.EventTypeServiceRequestCancelled, requests.HandleCancelledEvent)
}
