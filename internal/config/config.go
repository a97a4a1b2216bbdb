package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Storage       StorageConfig      `yaml:"storage"`
	Uploads       UploadsConfig      `yaml:"uploads"`
	Listings      ListingsConfig     `yaml:"listings"`
	Email         EmailConfig        `yaml:"email"`
	Notifications NotificationConfig `yaml:"notifications"`
}

type ServerConfig struct {
	Port         string          `yaml:"port" env:"PORT"`
	Host         string          `yaml:"host" env:"HOST"`
	Debug        bool            `yaml:"debug" env:"DEBUG"`
	CORSOrigins  []string        `yaml:"cors_origins" env:"CORS_ORIGINS"`
	RateLimiting RateLimitConfig `yaml:"rate_limiting"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

type StorageConfig struct {
	DataDir         string `yaml:"data_dir" env:"DATA_DIR"`
	UploadDir       string `yaml:"upload_dir" env:"UPLOAD_DIR"`
	UploadURLPrefix string `yaml:"upload_url_prefix"`
	RecordFile      string `yaml:"record_file"`
	ErrorLogFile    string `yaml:"error_log_file"`
}

type UploadsConfig struct {
	MaxFiles          int      `yaml:"max_files"`
	MaxFileSize       int64    `yaml:"max_file_size"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	BlockedExtensions []string `yaml:"blocked_extensions"`
	AllowedMIMETypes  []string `yaml:"allowed_mime_types"`
}

// ListingsConfig maps the form enumerations to their display labels.
type ListingsConfig struct {
	OperationTypes map[string]string `yaml:"operation_types"`
	PropertyTypes  map[string]string `yaml:"property_types"`
}

type EmailConfig struct {
	AdminEmail string     `yaml:"admin_email" env:"ADMIN_EMAIL"`
	SMTP       SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM"`
}

type NotificationConfig struct {
	Ntfy NtfyConfig `yaml:"ntfy"`
}

type NtfyConfig struct {
	Enabled bool   `yaml:"enabled" env:"NTFY_ENABLED"`
	URL     string `yaml:"url" env:"NTFY_URL"`
	Topic   string `yaml:"topic" env:"NTFY_TOPIC"`
	Token   string `yaml:"token" env:"NTFY_TOKEN"`
}

// RecordPath is the full path of the append-only submission log.
func (c *Config) RecordPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.RecordFile)
}

// ErrorLogPath is the full path of the internal incident log.
func (c *Config) ErrorLogPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.ErrorLogFile)
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config := &Config{}

	// Set defaults
	config.setDefaults()

	// Read from file if it exists
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	config.loadFromEnv()

	return config, nil
}

func (c *Config) setDefaults() {
	c.Server.Port = "8080"
	c.Server.Host = "0.0.0.0"
	c.Server.Debug = false
	c.Server.CORSOrigins = []string{"*"}
	c.Server.RateLimiting.Enabled = true
	c.Server.RateLimiting.RequestsPerMinute = 60

	c.Storage.DataDir = "./data"
	c.Storage.UploadDir = "./uploads"
	c.Storage.UploadURLPrefix = "uploads"
	c.Storage.RecordFile = "submissions.csv"
	c.Storage.ErrorLogFile = "errors.log"

	c.Uploads.MaxFiles = 5
	c.Uploads.MaxFileSize = 5 * 1024 * 1024
	c.Uploads.AllowedExtensions = []string{"jpg", "jpeg", "png", "pdf"}
	c.Uploads.BlockedExtensions = []string{
		"php", "phtml", "php3", "php4", "php5", "php7", "php8", "phps",
		"shtml", "asp", "aspx", "jsp", "exe", "js", "sh", "bat", "cmd",
		"com", "csh", "pl", "cgi",
	}
	c.Uploads.AllowedMIMETypes = []string{"image/jpeg", "image/png", "application/pdf"}

	c.Listings.OperationTypes = map[string]string{
		"vendita": "Vendita",
		"affitto": "Affitto",
		"altro":   "Altro",
	}
	c.Listings.PropertyTypes = map[string]string{
		"appartamento":      "Appartamento",
		"casa_indipendente": "Casa indipendente",
		"commerciale":       "Commerciale",
		"terreno":           "Terreno",
		"altro":             "Altro",
	}

	c.Email.AdminEmail = "info@example.com"
	c.Email.SMTP.Port = 587
	c.Email.SMTP.From = "no-reply@subitocasaweb.local"
}

func (c *Config) loadFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}
	if debug := os.Getenv("DEBUG"); debug == "true" {
		c.Server.Debug = true
	}

	// Storage env vars
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDir = dataDir
	}
	if uploadDir := os.Getenv("UPLOAD_DIR"); uploadDir != "" {
		c.Storage.UploadDir = uploadDir
	}

	// Email env vars
	if adminEmail := os.Getenv("ADMIN_EMAIL"); adminEmail != "" {
		c.Email.AdminEmail = adminEmail
	}
	if smtpHost := os.Getenv("SMTP_HOST"); smtpHost != "" {
		c.Email.SMTP.Host = smtpHost
	}
	if smtpPort := os.Getenv("SMTP_PORT"); smtpPort != "" {
		if port, err := strconv.Atoi(smtpPort); err == nil {
			c.Email.SMTP.Port = port
		}
	}
	if smtpUser := os.Getenv("SMTP_USERNAME"); smtpUser != "" {
		c.Email.SMTP.Username = smtpUser
	}
	if smtpPass := os.Getenv("SMTP_PASSWORD"); smtpPass != "" {
		c.Email.SMTP.Password = smtpPass
	}
	if smtpFrom := os.Getenv("SMTP_FROM"); smtpFrom != "" {
		c.Email.SMTP.From = smtpFrom
	}

	// Ntfy env vars
	if ntfyEnabled := os.Getenv("NTFY_ENABLED"); ntfyEnabled == "true" {
		c.Notifications.Ntfy.Enabled = true
	}
	if ntfyURL := os.Getenv("NTFY_URL"); ntfyURL != "" {
		c.Notifications.Ntfy.URL = ntfyURL
	}
	if ntfyTopic := os.Getenv("NTFY_TOPIC"); ntfyTopic != "" {
		c.Notifications.Ntfy.Topic = ntfyTopic
	}
	if ntfyToken := os.Getenv("NTFY_TOKEN"); ntfyToken != "" {
		c.Notifications.Ntfy.Token = ntfyToken
	}
}
