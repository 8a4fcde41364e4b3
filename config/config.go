package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredential indica que falta una API key necesaria para generar forecasts.
var ErrMissingCredential = errors.New("missing credential")

var validate = validator.New()

// Config es la configuración completa de edgescan.
// Los defaults de los tags `default` se aplican antes de leer el YAML, así que un
// cero explícito se respeta (max_markets: 0 = sin límite, min_hours_to_resolution: 0,
// max_days_to_resolution: 0). Los campos con validate gt=0 o gte=1 rechazan el cero.
type Config struct {
	Scanner ScannerConfig `yaml:"scanner"`
	Filter  FilterConfig  `yaml:"filter"`
	Events  EventsConfig  `yaml:"events"`
	API     APIConfig     `yaml:"api"`
	LLM     LLMConfig     `yaml:"llm"`
	Cache   CacheConfig   `yaml:"cache"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ScannerConfig controla el loop de ranking.
type ScannerConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds" default:"3600" validate:"gt=0"`
	ForecastWorkers int    `yaml:"forecast_workers" default:"4" validate:"gte=1,lte=64"`
	Source          string `yaml:"source" default:"markets" validate:"oneof=markets events"`
	Top             int    `yaml:"top" default:"10" validate:"gt=0"` // filas por tabla de ranking
}

// FilterConfig selecciona los mercados que pasan al pipeline de forecast.
type FilterConfig struct {
	MinHoursToResolution float64  `yaml:"min_hours_to_resolution" default:"24" validate:"gte=0"`
	MaxDaysToResolution  float64  `yaml:"max_days_to_resolution" default:"30" validate:"gte=0"`
	AllowMissingEndDate  bool     `yaml:"allow_missing_end_date"`
	ExcludeCategories    []string `yaml:"exclude_categories" default:"[\"Sports\"]"`
	MaxMarkets           int      `yaml:"max_markets" default:"50" validate:"gte=0"` // cada mercado nuevo cuesta llamadas a los modelos
}

// EventsConfig se usa solo con scanner.source = events.
type EventsConfig struct {
	IncludeTag              string `yaml:"include_tag"`
	ExcludeTag              string `yaml:"exclude_tag" default:"Sports"`
	IncludeClosed           bool   `yaml:"include_closed"`
	IncludeWithoutOrderBook bool   `yaml:"include_without_order_book"`
}

// APIConfig contiene los base URLs de las APIs de datos de mercado.
type APIConfig struct {
	CLOBBase       string `yaml:"clob_base" default:"https://clob.polymarket.com" validate:"url"`
	GammaBase      string `yaml:"gamma_base" default:"https://gamma-api.polymarket.com" validate:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" default:"10" validate:"gt=0"`
	MaxRetries     int    `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
}

// LLMConfig configura los servicios de research, razonamiento y extracción.
// Las API keys solo se leen del entorno (o .env).
type LLMConfig struct {
	PerplexityBase    string        `yaml:"perplexity_base" default:"https://api.perplexity.ai" validate:"url"`
	ResearchModel     string        `yaml:"research_model" default:"sonar-pro"`
	GeminiBase        string        `yaml:"gemini_base" default:"https://generativelanguage.googleapis.com" validate:"url"`
	ReasoningModel    string        `yaml:"reasoning_model" default:"gemini-2.0-flash-thinking-exp-01-21"`
	ExtractionModel   string        `yaml:"extraction_model" default:"gemini-2.0-flash-lite"`
	ResearchTimeout   time.Duration `yaml:"research_timeout" default:"120s" validate:"gt=0"`
	ReasoningTimeout  time.Duration `yaml:"reasoning_timeout" default:"180s" validate:"gt=0"`
	ExtractionTimeout time.Duration `yaml:"extraction_timeout" default:"60s" validate:"gt=0"`
	RatePerSecond     float64       `yaml:"rate_per_second" default:"1" validate:"gt=0"`
	Burst             int           `yaml:"burst" default:"2" validate:"gte=1"`
	BreakerFailures   uint32        `yaml:"breaker_failures" default:"5" validate:"gte=1"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown" default:"60s" validate:"gt=0"`

	PerplexityAPIKey string `yaml:"-"`
	GeminiAPIKey     string `yaml:"-"`
}

// CacheConfig controla la cache de respuestas de los modelos.
type CacheConfig struct {
	Backend     string        `yaml:"backend" default:"file" validate:"oneof=file redis"`
	Dir         string        `yaml:"dir" default:"api_cache"`
	TTL         time.Duration `yaml:"ttl" default:"24h" validate:"gt=0"`
	RedisAddr   string        `yaml:"redis_addr" default:"localhost:6379" validate:"required_if=Backend redis"`
	RedisDB     int           `yaml:"redis_db" validate:"gte=0"`
	RedisPrefix string        `yaml:"redis_prefix" default:"polyedge:cache:"`

	RedisPassword string `yaml:"-"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn" default:"polyedge.db"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

// MetricsConfig controla el endpoint de Prometheus. Addr vacío = deshabilitado.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
// No comprueba credenciales: eso lo hace Validate, solo en los comandos que las usan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse construye la configuración: defaults, luego el YAML dado y por último el entorno.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("config.Parse: defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Parse: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config.Parse: invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate comprueba que están las credenciales de los modelos.
// Se llama al arrancar los comandos que generan forecasts: nunca falla por request.
func (c *Config) Validate() error {
	var missing []error
	if c.LLM.PerplexityAPIKey == "" {
		missing = append(missing, fmt.Errorf("%w: PERPLEXITY_API_KEY", ErrMissingCredential))
	}
	if c.LLM.GeminiAPIKey == "" {
		missing = append(missing, fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingCredential))
	}
	return errors.Join(missing...)
}

// ScanInterval devuelve el intervalo de escaneo como time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scanner.IntervalSeconds) * time.Second
}

// APITimeout devuelve el timeout de las APIs de datos como time.Duration.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("EDGESCAN_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	cfg.Cache.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.LLM.PerplexityAPIKey = os.Getenv("PERPLEXITY_API_KEY")
	cfg.LLM.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
}
