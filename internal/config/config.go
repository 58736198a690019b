package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server     ServerConfig     `json:"server"`
	Storage    StorageConfig    `json:"storage"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Kafka      KafkaConfig      `json:"kafka"`
	Logger     LoggerConfig     `json:"logger"`
	Cache      CacheConfig      `json:"cache"`
	RateLimit  RateLimitConfig  `json:"rate_limit"`
	Auth       AuthConfig       `json:"auth"`
	Routing    RoutingConfig    `json:"routing"`
	Generation GenerationConfig `json:"generation"`
}

// CacheConfig представляет конфигурацию кеширования
type CacheConfig struct {
	Enabled    bool `json:"enabled"`
	DefaultTTL int  `json:"default_ttl"`  // TTL для обычных данных (секунды)
	HotDataTTL int  `json:"hot_data_ttl"` // TTL для горячих данных (секунды)
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
}

// StorageConfig выбирает хранилище: postgres или memory
type StorageConfig struct {
	Driver string `json:"driver"`
}

// DatabaseConfig представляет конфигурацию базы данных
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
	Migrate  bool   `json:"migrate"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig представляет конфигурацию Kafka
type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Topics представляет список топиков Kafka
type Topics struct {
	ServiceRequests string `json:"service_requests"`
	Routes          string `json:"routes"`
	Schedules       string `json:"schedules"`
}

// LoggerConfig представляет конфигурацию логгера
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// RateLimitConfig представляет конфигурацию ограничения запросов на генерацию маршрутов
type RateLimitConfig struct {
	Enabled     bool `json:"enabled"`
	DefaultRPM  int  `json:"default_rpm"`
	VIPRPM      int  `json:"vip_rpm"`
	BanDuration int  `json:"ban_duration"` // секунды
	TrustProxy  bool `json:"trust_proxy"`  // брать IP из X-Forwarded-For / X-Real-IP
}

// AuthConfig представляет конфигурацию проверки bearer токенов
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
	AdminRole string `json:"admin_role"`
}

// Validate требует секрет подписи: без него сервис не запускается
func (a AuthConfig) Validate() error {
	if strings.TrimSpace(a.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	return nil
}

// RoutingConfig содержит параметры алгоритма построения маршрутов
type RoutingConfig struct {
	WindowStart         string             `json:"window_start" yaml:"window_start"`
	WindowEnd           string             `json:"window_end" yaml:"window_end"`
	AverageSpeedKph     float64            `json:"average_speed_kph" yaml:"average_speed_kph"`
	ServiceMinutes      int                `json:"service_minutes" yaml:"service_minutes"`
	MaxStopsPerVan      int                `json:"max_stops_per_van" yaml:"max_stops_per_van"`
	MaxClusterIteration int                `json:"max_cluster_iterations" yaml:"max_cluster_iterations"`
	DepotLat            float64            `json:"depot_lat" yaml:"depot_lat"`
	DepotLon            float64            `json:"depot_lon" yaml:"depot_lon"`
	TierMultipliers     map[string]float64 `json:"tier_multipliers" yaml:"tier_multipliers"`
}

// MaxDaysAhead верхняя граница горизонта генерации
const MaxDaysAhead = 14

// GenerationConfig содержит параметры запуска генерации маршрутов.
// MaxDaysAhead может только сузить горизонт, но не расширить его сверх 14 дней.
type GenerationConfig struct {
	LockTTL      int `json:"lock_ttl"` // секунды
	MaxDaysAhead int `json:"max_days_ahead"`
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	// .env необязателен
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 60),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", "postgres"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "dispatch_user"),
			Password: getEnv("DB_PASSWORD", "dispatch_pass"),
			DBName:   getEnv("DB_NAME", "van_dispatch"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			Migrate:  getEnvAsBool("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvAsBool("KAFKA_ENABLED", true),
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", "van-dispatch"),
			Topics: Topics{
				ServiceRequests: getEnv("KAFKA_TOPIC_SERVICE_REQUESTS", "service_requests"),
				Routes:          getEnv("KAFKA_TOPIC_ROUTES", "van_routes"),
				Schedules:       getEnv("KAFKA_TOPIC_SCHEDULES", "van_schedules"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Cache: CacheConfig{
			Enabled:    getEnvAsBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvAsInt("CACHE_DEFAULT_TTL", 300), // 5 минут
			HotDataTTL: getEnvAsInt("CACHE_HOT_DATA_TTL", 60), // 1 минута
		},
		RateLimit: RateLimitConfig{
			Enabled:     getEnvAsBool("RATE_LIMIT_ENABLED", true),
			DefaultRPM:  getEnvAsInt("RATE_LIMIT_DEFAULT_RPM", 10),
			VIPRPM:      getEnvAsInt("RATE_LIMIT_VIP_RPM", 60),
			BanDuration: getEnvAsInt("RATE_LIMIT_BAN_DURATION", 60),
			TrustProxy:  getEnvAsBool("RATE_LIMIT_TRUST_PROXY", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "pet-care-admin"),
			AdminRole: getEnv("JWT_ADMIN_ROLE", "admin"),
		},
		Routing: DefaultRouting(),
		Generation: GenerationConfig{
			LockTTL:      getEnvAsInt("GENERATION_LOCK_TTL", 120),
			MaxDaysAhead: getEnvAsInt("GENERATION_MAX_DAYS_AHEAD", MaxDaysAhead),
		},
	}

	if cfg.Generation.MaxDaysAhead <= 0 || cfg.Generation.MaxDaysAhead > MaxDaysAhead {
		cfg.Generation.MaxDaysAhead = MaxDaysAhead
	}

	cfg.Routing.WindowStart = getEnv("ROUTING_WINDOW_START", cfg.Routing.WindowStart)
	cfg.Routing.WindowEnd = getEnv("ROUTING_WINDOW_END", cfg.Routing.WindowEnd)
	cfg.Routing.AverageSpeedKph = getEnvAsFloat("ROUTING_AVERAGE_SPEED_KPH", cfg.Routing.AverageSpeedKph)
	cfg.Routing.ServiceMinutes = getEnvAsInt("ROUTING_SERVICE_MINUTES", cfg.Routing.ServiceMinutes)
	cfg.Routing.MaxStopsPerVan = getEnvAsInt("ROUTING_MAX_STOPS_PER_VAN", cfg.Routing.MaxStopsPerVan)
	cfg.Routing.DepotLat = getEnvAsFloat("ROUTING_DEPOT_LAT", cfg.Routing.DepotLat)
	cfg.Routing.DepotLon = getEnvAsFloat("ROUTING_DEPOT_LON", cfg.Routing.DepotLon)

	if path := getEnv("ROUTING_CONFIG_FILE", ""); path != "" {
		if err := cfg.Routing.LoadFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "routing config %s ignored: %v\n", path, err)
		}
	}

	return cfg
}

// DefaultRouting возвращает параметры маршрутизации по умолчанию
func DefaultRouting() RoutingConfig {
	return RoutingConfig{
		WindowStart:         "09:00",
		WindowEnd:           "18:00",
		AverageSpeedKph:     30,
		ServiceMinutes:      45,
		MaxStopsPerVan:      12,
		MaxClusterIteration: 20,
		TierMultipliers: map[string]float64{
			"eternal": 1.5,
			"plus":    1.2,
			"basic":   1.0,
		},
	}
}

// LoadFile накладывает YAML профиль маршрутизации поверх текущих значений
func (r *RoutingConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read routing config: %w", err)
	}
	return r.apply(data)
}

func (r *RoutingConfig) apply(data []byte) error {
	var overlay RoutingConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse routing config: %w", err)
	}

	if overlay.WindowStart != "" {
		r.WindowStart = overlay.WindowStart
	}
	if overlay.WindowEnd != "" {
		r.WindowEnd = overlay.WindowEnd
	}
	if overlay.AverageSpeedKph > 0 {
		r.AverageSpeedKph = overlay.AverageSpeedKph
	}
	if overlay.ServiceMinutes > 0 {
		r.ServiceMinutes = overlay.ServiceMinutes
	}
	if overlay.MaxStopsPerVan > 0 {
		r.MaxStopsPerVan = overlay.MaxStopsPerVan
	}
	if overlay.MaxClusterIteration > 0 {
		r.MaxClusterIteration = overlay.MaxClusterIteration
	}
	if overlay.DepotLat != 0 || overlay.DepotLon != 0 {
		r.DepotLat = overlay.DepotLat
		r.DepotLon = overlay.DepotLon
	}
	if len(overlay.TierMultipliers) > 0 {
		if r.TierMultipliers == nil {
			r.TierMultipliers = make(map[string]float64)
		}
		for tier, m := range overlay.TierMultipliers {
			r.TierMultipliers[strings.ToLower(tier)] = m
		}
	}
	return nil
}

// getEnv получает значение переменной окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt получает значение переменной окружения как int с значением по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat получает значение переменной окружения как float64
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool получает значение переменной окружения как bool
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
