package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"weather-etl-pipeline/internal/weather"
)

var validate = validator.New()

// AppConfig holds everything the pipeline components receive at
// construction. There is no process-wide mutable state; each component
// gets the values it needs from here.
type AppConfig struct {
	// Upstream request parameters.
	BaseURL       string
	Cities        []weather.City
	HourlyFields  []string
	ForecastHours int
	Timezone      string
	APITimeout    time.Duration

	// Local storage layout.
	RawDir       string
	CleanDir     string
	AuditLogPath string

	// Remote storage config file (YAML, see StorageConfig).
	StorageConfigPath string

	// Scheduler behaviour.
	FetchInterval time.Duration
	RunRetries    int
	RetryDelay    time.Duration

	Port string
}

// DefaultHourlyFields are the Open-Meteo hourly variables the pipeline
// requests, in the order their arrays are decoded.
var DefaultHourlyFields = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"weather_code",
	"wind_speed_10m",
}

// DefaultCities is the fixed set of tracked Punjab cities.
var DefaultCities = []weather.City{
	{Name: "Lahore", Lat: 31.5497, Lon: 74.3436},
	{Name: "Faisalabad", Lat: 31.4180, Lon: 73.0791},
	{Name: "Rawalpindi", Lat: 33.6844, Lon: 73.0479},
	{Name: "Multan", Lat: 30.1989, Lon: 71.4687},
	{Name: "Sialkot", Lat: 32.5000, Lon: 74.5333},
	{Name: "Gujranwala", Lat: 32.1877, Lon: 74.1945},
	{Name: "Bahawalpur", Lat: 29.3957, Lon: 71.6833},
	{Name: "Rahim Yar Khan", Lat: 28.4202, Lon: 70.2952},
	{Name: "Dera Ghazi Khan", Lat: 30.0459, Lon: 70.6403},
	{Name: "Sahiwal", Lat: 30.6612, Lon: 73.1086},
	{Name: "Okara", Lat: 30.8081, Lon: 73.4458},
	{Name: "Kasur", Lat: 31.1164, Lon: 74.4500},
	{Name: "Sheikhupura", Lat: 31.7131, Lon: 73.9783},
	{Name: "Jhang", Lat: 31.2780, Lon: 72.3118},
	{Name: "Gujrat", Lat: 32.5731, Lon: 74.0780},
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		BaseURL:       getenvDefault("OPEN_METEO_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
		HourlyFields:  DefaultHourlyFields,
		ForecastHours: getenvInt("FORECAST_HOURS", 1),
		Timezone:      getenvDefault("FORECAST_TIMEZONE", "Asia/Karachi"),

		RawDir:       getenvDefault("RAW_DIR", "data/raw"),
		CleanDir:     getenvDefault("CLEAN_DIR", "data/clean"),
		AuditLogPath: getenvDefault("AUDIT_LOG_PATH", "logs/etl_audit_log.csv"),

		StorageConfigPath: getenvDefault("STORAGE_CONFIG_PATH", "config/aws_config.yaml"),

		RunRetries: getenvInt("RUN_RETRIES", 1),
		Port:       getenvDefault("PORT", "8080"),
	}

	timeoutStr := getenvDefault("API_TIMEOUT", "15s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid API_TIMEOUT: %w", err)
	}
	cfg.APITimeout = timeout

	intervalStr := getenvDefault("FETCH_INTERVAL", "1h")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid FETCH_INTERVAL: %w", err)
	}
	cfg.FetchInterval = interval

	delayStr := getenvDefault("RETRY_DELAY", "5m")
	delay, err := time.ParseDuration(delayStr)
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_DELAY: %w", err)
	}
	cfg.RetryDelay = delay

	cities, err := loadCities()
	if err != nil {
		return nil, err
	}
	cfg.Cities = cities

	return cfg, nil
}

// loadCities returns the tracked city table, read from CITIES_FILE when
// set, otherwise the built-in default set.
func loadCities() ([]weather.City, error) {
	path := os.Getenv("CITIES_FILE")
	if path == "" {
		return DefaultCities, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cities file: %w", err)
	}

	var cities []weather.City
	if err := yaml.Unmarshal(raw, &cities); err != nil {
		return nil, fmt.Errorf("parse cities file %q: %w", path, err)
	}
	if len(cities) == 0 {
		return nil, fmt.Errorf("cities file %q is empty", path)
	}
	return cities, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
