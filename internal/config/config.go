/**
 * @description
 * This package handles the configuration management for the payout-service.
 * It uses the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payout-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	BookingEventQueue         string `mapstructure:"BOOKING_EVENT_QUEUE"`
	AdminJWKSURL              string `mapstructure:"ADMIN_JWKS_URL"`
	AdminAllowedOrigins       string `mapstructure:"ADMIN_ALLOWED_ORIGINS"`
	InternalAPIKey            string `mapstructure:"INTERNAL_API_KEY"`
	EarningsJobSchedule       string `mapstructure:"EARNINGS_JOB_SCHEDULE"`
	DisputeReconcileSchedule  string `mapstructure:"DISPUTE_RECONCILE_SCHEDULE"`
	DisputeRateLimitPerHour   int    `mapstructure:"DISPUTE_RATE_LIMIT_PER_HOUR"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("BOOKING_EVENT_QUEUE", "payout_service.booking_payments")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "sailhaven:rate_limit")
	viper.SetDefault("EARNINGS_JOB_SCHEDULE", "0 2 * * *")
	viper.SetDefault("DISPUTE_RECONCILE_SCHEDULE", "*/15 * * * *")
	viper.SetDefault("DISPUTE_RATE_LIMIT_PER_HOUR", 5)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("BOOKING_EVENT_QUEUE")
	_ = viper.BindEnv("ADMIN_JWKS_URL")
	_ = viper.BindEnv("ADMIN_ALLOWED_ORIGINS")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "PAYOUT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("EARNINGS_JOB_SCHEDULE")
	_ = viper.BindEnv("DISPUTE_RECONCILE_SCHEDULE")
	_ = viper.BindEnv("DISPUTE_RATE_LIMIT_PER_HOUR")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("PAYOUT_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "sailhaven:rate_limit"
	}
	if strings.TrimSpace(config.EarningsJobSchedule) == "" {
		config.EarningsJobSchedule = "0 2 * * *"
	}
	if strings.TrimSpace(config.DisputeReconcileSchedule) == "" {
		config.DisputeReconcileSchedule = "*/15 * * * *"
	}
	if config.DisputeRateLimitPerHour <= 0 {
		config.DisputeRateLimitPerHour = 5
	}

	return
}
