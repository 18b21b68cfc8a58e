package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string      `yml:"env" default:"local"`
	Postgres    Postgres    `yml:"postgres"`
	Server      Server      `yml:"server" env-required:"true"`
	Scheduler   Scheduler   `yml:"scheduler"`
	Scraper     Scraper     `yml:"scraper"`
	Attribution Attribution `yml:"attribution"`
	Gateway     Gateway     `yml:"gateway"`
	Reconciler  Reconciler  `yml:"reconciler"`
}

type Postgres struct {
	Username        string        `env:"POSTGRES_USER" env-required:"true"`
	Password        string        `env:"POSTGRES_PASSWORD" env-required:"true"`
	Host            string        `yml:"host" env-required:"true"`
	Port            string        `env:"POSTGRES_PORT" env-required:"true"`
	Database        string        `env:"POSTGRES_DB" env-required:"true"`
	MaxOpenConns    int           `yml:"max_open_conns" default:"50"`
	MaxIdleConns    int           `yml:"max_idle_conns" default:"10"`
	ConnMaxLifetime time.Duration `yml:"conn_max_lifetime" default:"5m"`
	ConnMaxIdleTime time.Duration `yml:"conn_max_idle_time" default:"1m"`
}

type Server struct {
	Host    string        `yml:"host" default:"localhost"`
	Port    string        `yml:"port" default:"8080"`
	Timeout time.Duration `yml:"timeout" default:"5s"`
}

// Scheduler configures the durable delayed-execution service the dispatcher
// enqueues attribution callbacks into, and the key pair used to verify the
// signatures it puts on those callbacks. Current and next key are both
// accepted so key rotation never causes an invocation gap.
type Scheduler struct {
	BaseURL         string        `yml:"base_url" env:"SCHEDULER_BASE_URL" env-required:"true"`
	Token           string        `env:"SCHEDULER_TOKEN" env-required:"true"`
	CallbackBaseURL string        `yml:"callback_base_url" env:"CALLBACK_BASE_URL" env-required:"true"`
	SigningKey      string        `env:"SCHEDULER_SIGNING_KEY" env-required:"true"`
	NextSigningKey  string        `env:"SCHEDULER_NEXT_SIGNING_KEY"`
	Delay           time.Duration `yml:"delay" default:"2h"`
	Timeout         time.Duration `yml:"timeout" default:"10s"`
}

type Scraper struct {
	Timeout        time.Duration `yml:"timeout" default:"10s"`
	RatePerSecond  int           `yml:"rate_per_second" default:"2"`
	YandexBaseURL  string        `yml:"yandex_base_url" default:"https://yandex.ru"`
	YandexAPIBase  string        `yml:"yandex_api_base" default:"https://yandex.ru/maps/api"`
	GisBaseURL     string        `yml:"gis_base_url" default:"https://2gis.ru"`
	GisReviewsBase string        `yml:"gis_reviews_base" default:"https://public-api.reviews.2gis.com"`
}

type Attribution struct {
	MatchWindow       time.Duration `yml:"match_window" default:"4h"`
	PositiveThreshold int           `yml:"positive_threshold" default:"4"`
}

type Gateway struct {
	BaseURL string        `yml:"base_url" env:"SMS_GATEWAY_URL"`
	APIKey  string        `env:"SMS_GATEWAY_KEY"`
	Sender  string        `yml:"sender" default:"feedbackhub"`
	Timeout time.Duration `yml:"timeout" default:"10s"`
}

// Reconciler sweeps requests whose click was recorded but whose attribution
// job never fired, and re-enqueues them once.
type Reconciler struct {
	Enabled  bool          `yml:"enabled" default:"true"`
	CronSpec string        `yml:"cron_spec" default:"*/15 * * * *"`
	Grace    time.Duration `yml:"grace" default:"30m"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		return nil, errors.New("CONFIG_PATH is not set")
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config file does not exist: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	return &cfg, nil
}
