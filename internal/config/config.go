/**
 * @description
 * This package handles the configuration management for the deposit-service.
 * It uses the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application settings.
 *
 * Required secrets are validated once at bootstrap via Validate(); the process
 * refuses to start without them rather than failing individual requests later.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the deposit-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	DepositEventExchange      string `mapstructure:"DEPOSIT_EVENT_EXCHANGE"`
	PayscribeEnv              string `mapstructure:"PAYSCRIBE_ENV"`
	PayscribeAPIKey           string `mapstructure:"PAYSCRIBE_API_KEY"`
	PayscribeAPIKeyProd       string `mapstructure:"PAYSCRIBE_API_KEY_PROD"`
	PayscribeBaseURL          string `mapstructure:"PAYSCRIBE_BASE_URL"`
	PayscribeSecretKey        string `mapstructure:"PAYSCRIBE_SECRET_KEY"`
	InternalAPIKey            string `mapstructure:"INTERNAL_API_KEY"`
	AdminJWKSURL              string `mapstructure:"ADMIN_JWKS_URL"`
	CORSAllowedOrigins        string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	WebhookRateLimitPerMinute int    `mapstructure:"WEBHOOK_RATE_LIMIT_PER_MINUTE"`
	ExpiryJobSchedule         string `mapstructure:"VIRTUAL_ACCOUNT_EXPIRY_SCHEDULE"`
	FirebaseServiceAccount    string `mapstructure:"FIREBASE_SERVICE_ACCOUNT"`
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
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("DEPOSIT_EVENT_EXCHANGE", "hazpay.events")
	viper.SetDefault("PAYSCRIBE_ENV", "sandbox")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "hazpay:rate_limit")
	viper.SetDefault("WEBHOOK_RATE_LIMIT_PER_MINUTE", 120)
	viper.SetDefault("VIRTUAL_ACCOUNT_EXPIRY_SCHEDULE", "*/10 * * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("DEPOSIT_EVENT_EXCHANGE")
	_ = viper.BindEnv("PAYSCRIBE_ENV")
	_ = viper.BindEnv("PAYSCRIBE_API_KEY")
	_ = viper.BindEnv("PAYSCRIBE_API_KEY_PROD")
	_ = viper.BindEnv("PAYSCRIBE_BASE_URL")
	_ = viper.BindEnv("PAYSCRIBE_SECRET_KEY")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "DEPOSIT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("ADMIN_JWKS_URL")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("WEBHOOK_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("VIRTUAL_ACCOUNT_EXPIRY_SCHEDULE")
	_ = viper.BindEnv("FIREBASE_SERVICE_ACCOUNT")

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

	config.PayscribeEnv = strings.ToLower(strings.TrimSpace(config.PayscribeEnv))
	if config.PayscribeEnv == "" {
		config.PayscribeEnv = "sandbox"
	}
	config.PayscribeSecretKey = strings.TrimSpace(config.PayscribeSecretKey)
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "hazpay:rate_limit"
	}
	if config.WebhookRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative webhook rate limit configured; disabling\" limit=%d", config.WebhookRateLimitPerMinute)
		config.WebhookRateLimitPerMinute = 0
	}
	if config.ExpiryJobSchedule == "" {
		config.ExpiryJobSchedule = "*/10 * * * *"
	}

	return
}

// ActivePayscribeAPIKey returns the API key for the configured environment.
func (c Config) ActivePayscribeAPIKey() string {
	if c.PayscribeEnv == "production" && c.PayscribeAPIKeyProd != "" {
		return c.PayscribeAPIKeyProd
	}
	return c.PayscribeAPIKey
}

// Validate checks that the secrets the service cannot run without are present.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.DatabaseURL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.PayscribeSecretKey == "" {
		missing = append(missing, "PAYSCRIBE_SECRET_KEY")
	}
	if len(missing) > 0 {
		return errors.New("missing required configuration: " + strings.Join(missing, ", "))
	}
	return nil
}
