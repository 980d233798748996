/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	DEFAULT_WHATSAPP_API_URL     = "https://graph.facebook.com"
	DEFAULT_WHATSAPP_API_VERSION = "v20.0"

	DEFAULT_PRINT_QUEUE   = "print_jobs"
	DEFAULT_WEBHOOK_QUEUE = "dashboard_webhooks"
	DEFAULT_SWEEP_QUEUE   = "session_sweeps"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"COMANDA_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"COMANDA_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"COMANDA_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"COMANDA_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"COMANDA_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"COMANDA_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"COMANDA_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"COMANDA_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"COMANDA_REDIS_SKIP_TLS_VERIFY"`
}

// WhatsAppConfig points the delivery client at the messaging provider.
type WhatsAppConfig struct {
	ApiURL        string `json:"api_url" envconfig:"COMANDA_WHATSAPP_API_URL"`
	ApiVersion    string `json:"api_version" envconfig:"COMANDA_WHATSAPP_API_VERSION"`
	PhoneNumberID string `json:"phone_number_id" envconfig:"COMANDA_WHATSAPP_PHONE_NUMBER_ID"`
	AccessToken   string `json:"access_token" envconfig:"COMANDA_WHATSAPP_ACCESS_TOKEN"`
	VerifyToken   string `json:"verify_token" envconfig:"COMANDA_WHATSAPP_VERIFY_TOKEN"`
	AppSecret     string `json:"app_secret" envconfig:"COMANDA_WHATSAPP_APP_SECRET"`
}

// DeliveryConfig holds the timeout, retry and circuit breaker policy for outbound sends.
type DeliveryConfig struct {
	AttemptTimeoutSeconds  int     `json:"attempt_timeout_seconds" envconfig:"COMANDA_DELIVERY_ATTEMPT_TIMEOUT_SECONDS"`
	SendTimeoutSeconds     int     `json:"send_timeout_seconds" envconfig:"COMANDA_DELIVERY_SEND_TIMEOUT_SECONDS"`
	MaxRetries             *int    `json:"max_retries" envconfig:"COMANDA_DELIVERY_MAX_RETRIES"` // nil means the default; 0 disables retries
	InitialBackoffMs       int     `json:"initial_backoff_ms" envconfig:"COMANDA_DELIVERY_INITIAL_BACKOFF_MS"`
	MaxBackoffMs           int     `json:"max_backoff_ms" envconfig:"COMANDA_DELIVERY_MAX_BACKOFF_MS"`
	FailureRatio           float64 `json:"failure_ratio" envconfig:"COMANDA_DELIVERY_FAILURE_RATIO"`
	MinimumThroughput      int     `json:"minimum_throughput" envconfig:"COMANDA_DELIVERY_MINIMUM_THROUGHPUT"`
	SamplingWindowSeconds  int     `json:"sampling_window_seconds" envconfig:"COMANDA_DELIVERY_SAMPLING_WINDOW_SECONDS"`
	SamplingWindowCapacity int     `json:"sampling_window_capacity" envconfig:"COMANDA_DELIVERY_SAMPLING_WINDOW_CAPACITY"`
	BreakDurationSeconds   int     `json:"break_duration_seconds" envconfig:"COMANDA_DELIVERY_BREAK_DURATION_SECONDS"`
}

// SessionConfig holds the defaults of the inactivity watchdog. The timeout and
// warning values can be overridden at runtime from the settings table.
type SessionConfig struct {
	TimeoutMinutes        int `json:"timeout_minutes" envconfig:"COMANDA_SESSION_TIMEOUT_MINUTES"`
	WarningMinutes        int `json:"warning_minutes" envconfig:"COMANDA_SESSION_WARNING_MINUTES"`
	ClosingWarningMinutes int `json:"closing_warning_minutes" envconfig:"COMANDA_SESSION_CLOSING_WARNING_MINUTES"`
	SweepIntervalSeconds  int `json:"sweep_interval_seconds" envconfig:"COMANDA_SESSION_SWEEP_INTERVAL_SECONDS"`
}

type OrderingConfig struct {
	LateOrderHour  int    `json:"late_order_hour" envconfig:"COMANDA_ORDERING_LATE_ORDER_HOUR"`
	TimeZone       string `json:"time_zone" envconfig:"COMANDA_ORDERING_TIME_ZONE"`
	PrinterName    string `json:"printer_name" envconfig:"COMANDA_ORDERING_PRINTER_NAME"`
	PrintServerURL string `json:"print_server_url" envconfig:"COMANDA_ORDERING_PRINT_SERVER_URL"`
	BusinessHours  string `json:"business_hours" envconfig:"COMANDA_ORDERING_BUSINESS_HOURS"`
}

type DedupConfig struct {
	TTLHours int `json:"ttl_hours" envconfig:"COMANDA_DEDUP_TTL_HOURS"`
}

type QueueConfig struct {
	PrintQueue     string `json:"print_queue" envconfig:"COMANDA_QUEUE_PRINT_QUEUE"`
	WebhookQueue   string `json:"webhook_queue" envconfig:"COMANDA_QUEUE_WEBHOOK_QUEUE"`
	SweepQueue     string `json:"sweep_queue" envconfig:"COMANDA_QUEUE_SWEEP_QUEUE"`
	PrintRetries   int    `json:"print_retries" envconfig:"COMANDA_QUEUE_PRINT_RETRIES"`
	WorkerPoolSize int    `json:"worker_pool_size" envconfig:"COMANDA_QUEUE_WORKER_POOL_SIZE"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"COMANDA_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"COMANDA_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"COMANDA_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"COMANDA_SLACK_WEBHOOK_URL"`
}

type DashboardWebhook struct {
	Url     string            `json:"url" envconfig:"COMANDA_DASHBOARD_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook     `json:"slack"`
	Webhook DashboardWebhook `json:"webhook"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"COMANDA_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"COMANDA_ENABLE_TELEMETRY"`
	OtelEndpoint    string           `json:"otel_endpoint" envconfig:"COMANDA_OTEL_ENDPOINT"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	WhatsApp        WhatsAppConfig   `json:"whatsapp"`
	Delivery        DeliveryConfig   `json:"delivery"`
	Session         SessionConfig    `json:"session"`
	Ordering        OrderingConfig   `json:"ordering"`
	Dedup           DedupConfig      `json:"dedup"`
	Queue           QueueConfig      `json:"queue"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("comanda", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called comanda.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Comanda"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.setWhatsAppDefaults()
	cnf.setDeliveryDefaults()
	cnf.setSessionDefaults()
	cnf.setOrderingDefaults()
	cnf.setQueueDefaults()

	if cnf.Dedup.TTLHours <= 0 {
		cnf.Dedup.TTLHours = 24
	}

	if cnf.Delivery.FailureRatio <= 0 || cnf.Delivery.FailureRatio > 1 {
		return errors.New("delivery failure ratio must be between 0 and 1")
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (cnf *Configuration) setWhatsAppDefaults() {
	if cnf.WhatsApp.ApiURL == "" {
		cnf.WhatsApp.ApiURL = DEFAULT_WHATSAPP_API_URL
	}
	if cnf.WhatsApp.ApiVersion == "" {
		cnf.WhatsApp.ApiVersion = DEFAULT_WHATSAPP_API_VERSION
	}
	cnf.WhatsApp.ApiURL = strings.TrimRight(strings.TrimSpace(cnf.WhatsApp.ApiURL), "/")
	if cnf.WhatsApp.PhoneNumberID == "" {
		log.Println("Warning: WhatsApp phone number id is empty. Outbound messages will fail.")
	}
}

func (cnf *Configuration) setDeliveryDefaults() {
	d := &cnf.Delivery
	if d.AttemptTimeoutSeconds <= 0 {
		d.AttemptTimeoutSeconds = 10
	}
	if d.SendTimeoutSeconds <= 0 {
		d.SendTimeoutSeconds = 20
	}
	if d.MaxRetries == nil {
		retries := 3
		d.MaxRetries = &retries
	} else if *d.MaxRetries < 0 {
		*d.MaxRetries = 0
	}
	if d.InitialBackoffMs <= 0 {
		d.InitialBackoffMs = 500
	}
	if d.MaxBackoffMs <= 0 {
		d.MaxBackoffMs = 8000
	}
	if d.FailureRatio == 0 {
		d.FailureRatio = 0.5
	}
	if d.MinimumThroughput <= 0 {
		d.MinimumThroughput = 10
	}
	if d.SamplingWindowSeconds <= 0 {
		d.SamplingWindowSeconds = 30
	}
	if d.SamplingWindowCapacity <= 0 {
		d.SamplingWindowCapacity = 100
	}
	if d.BreakDurationSeconds <= 0 {
		d.BreakDurationSeconds = 30
	}
}

func (cnf *Configuration) setSessionDefaults() {
	s := &cnf.Session
	if s.TimeoutMinutes <= 0 {
		s.TimeoutMinutes = 30
	}
	if s.WarningMinutes <= 0 || s.WarningMinutes >= s.TimeoutMinutes {
		s.WarningMinutes = 5
	}
	if s.ClosingWarningMinutes <= 0 {
		s.ClosingWarningMinutes = 60
	}
	if s.SweepIntervalSeconds <= 0 {
		s.SweepIntervalSeconds = 60
	}
}

func (cnf *Configuration) setOrderingDefaults() {
	o := &cnf.Ordering
	if o.LateOrderHour <= 0 || o.LateOrderHour > 23 {
		o.LateOrderHour = 16
	}
	if o.TimeZone == "" {
		o.TimeZone = "America/Mexico_City"
	}
	if _, err := time.LoadLocation(o.TimeZone); err != nil {
		log.Printf("Warning: invalid time zone %q, falling back to UTC", o.TimeZone)
		o.TimeZone = "UTC"
	}
	if o.PrinterName == "" {
		o.PrinterName = "cocina"
	}
	if o.BusinessHours == "" {
		o.BusinessHours = "Lunes a sábado de 8:00 a 18:00, domingo de 8:00 a 14:00."
	}
}

func (cnf *Configuration) setQueueDefaults() {
	q := &cnf.Queue
	if q.PrintQueue == "" {
		q.PrintQueue = DEFAULT_PRINT_QUEUE
	}
	if q.WebhookQueue == "" {
		q.WebhookQueue = DEFAULT_WEBHOOK_QUEUE
	}
	if q.SweepQueue == "" {
		q.SweepQueue = DEFAULT_SWEEP_QUEUE
	}
	if q.PrintRetries <= 0 {
		q.PrintRetries = 5
	}
	if q.WorkerPoolSize <= 0 {
		q.WorkerPoolSize = 10
	}
}

// Location returns the business time zone used for the late-order rule.
func (cnf *Configuration) Location() *time.Location {
	loc, err := time.LoadLocation(cnf.Ordering.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
