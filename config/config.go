package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Litper   LitperConfig   `yaml:"litper"`
	Carriers CarriersConfig `yaml:"carriers"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"min=0,max=65535"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port" validate:"min=0,max=65535"`
	ShipmentCheckedTopicName string `yaml:"shipment_checked_topic_name"`
	RescueActivityTopicName  string `yaml:"rescue_activity_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=0,max=65535"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

type LitperConfig struct {
	GRPCAddr           string `yaml:"grpc_addr"`
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	TrackingCacheTTLSeconds int `yaml:"tracking_cache_ttl_seconds" validate:"min=0"`
	ShipmentCacheTTLSeconds int `yaml:"shipment_cache_ttl_seconds" validate:"min=0"`
	BulkMaxConcurrent       int `yaml:"bulk_max_concurrent" validate:"min=0,max=100"`
	CarrierTimeoutSeconds   int `yaml:"carrier_timeout_seconds" validate:"min=0,max=300"`
	HTTPRateLimitPerMinute  int `yaml:"http_rate_limit_per_minute" validate:"min=0"`

	RescueMaxAttempts            int  `yaml:"rescue_max_attempts" validate:"min=0,max=50"`
	RescueBulkSendIntervalMillis int  `yaml:"rescue_bulk_send_interval_millis" validate:"min=0"`
	RescueAutoEnqueue            bool `yaml:"rescue_auto_enqueue"`

	WorkerHTTPAddr            string `yaml:"worker_http_addr"`
	WorkerPollIntervalSeconds int    `yaml:"worker_poll_interval_seconds" validate:"min=0"`
	WorkerBatchSize           int    `yaml:"worker_batch_size" validate:"min=0"`
	WorkerConcurrency         int    `yaml:"worker_concurrency" validate:"min=0,max=100"`
	WorkerLeaseSeconds        int    `yaml:"worker_lease_seconds" validate:"min=0"`

	// Worker scheduling (optional). Defaults: IN_TRANSIT 30..120 minutes, EXCEPTION 20 minutes,
	// UNKNOWN 90 minutes, backoff 5/15/30/60 minutes.
	WorkerNextCheckInTransitMinSeconds int `yaml:"worker_next_check_in_transit_min_seconds" validate:"min=0"`
	WorkerNextCheckInTransitMaxSeconds int `yaml:"worker_next_check_in_transit_max_seconds" validate:"min=0"`
	WorkerNextCheckExceptionSeconds    int `yaml:"worker_next_check_exception_seconds" validate:"min=0"`
	WorkerNextCheckUnknownSeconds      int `yaml:"worker_next_check_unknown_seconds" validate:"min=0"`
	WorkerBackoff1Seconds              int `yaml:"worker_backoff_1_seconds" validate:"min=0"`
	WorkerBackoff2Seconds              int `yaml:"worker_backoff_2_seconds" validate:"min=0"`
	WorkerBackoff3Seconds              int `yaml:"worker_backoff_3_seconds" validate:"min=0"`
	WorkerBackoff4Seconds              int `yaml:"worker_backoff_4_seconds" validate:"min=0"`
}

// CarrierConfig: live mode включается, только если заданы и base_url, и api_key.
type CarrierConfig struct {
	BaseURL            string `yaml:"base_url" validate:"omitempty,url"`
	APIKey             string `yaml:"api_key"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute" validate:"min=0"`
}

func (c CarrierConfig) Live() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

type CarriersConfig struct {
	Coordinadora CarrierConfig `yaml:"coordinadora"`
	Servientrega CarrierConfig `yaml:"servientrega"`
	// Interrapidísimo, Envía и TCC идут через агрегатор.
	Aggregator CarrierConfig `yaml:"aggregator"`

	BreakerConsecutiveFailures int `yaml:"breaker_consecutive_failures" validate:"min=0"`
	BreakerOpenSeconds         int `yaml:"breaker_open_seconds" validate:"min=0"`
}

type WhatsAppConfig struct {
	BaseURL       string `yaml:"base_url" validate:"omitempty,url"`
	Token         string `yaml:"token"`
	PhoneNumberID string `yaml:"phone_number_id"`
	Template      string `yaml:"template"`
	Language      string `yaml:"language"`
}

func (c WhatsAppConfig) Live() bool {
	return c.Token != "" && c.PhoneNumberID != ""
}

// ConnString собирает DSN для pgx; sslmode по умолчанию disable.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
