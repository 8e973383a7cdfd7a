// config.go: This file contains the configuration for the LansoScan-Go application. It defines the settings struct and functions to load and save the settings.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig contains settings for application logging.
type LogConfig struct {
	Enabled  bool         // true to enable file logging
	Path     string       // path to log file
	Rotation RotationType // rotation type: daily, weekly or size
	MaxSize  int64        // max size in bytes for size rotation
}

// MainSettings contains general application settings.
type MainSettings struct {
	Name string    // name of the node
	Log  LogConfig // application log settings
}

// GeminiSettings contains settings for the Gemini vision-language model client.
type GeminiSettings struct {
	APIKey          string        // Gemini API key
	Model           string        // model identifier, e.g. gemini-1.5-flash
	Endpoint        string        // API base URL
	Temperature     float64       // generation temperature
	TopK            int           // top-k sampling parameter
	TopP            float64       // top-p sampling parameter
	MaxOutputTokens int           // maximum tokens in the response
	SafetyThreshold string        // harm block threshold for all safety categories
	Timeout         time.Duration // per-request timeout
	RateLimitMS     int           // minimum milliseconds between requests
	CacheTTL        time.Duration // TTL for the analysis response cache
}

// AnalysisSettings contains settings for image preparation and verdict handling.
type AnalysisSettings struct {
	JPEGQuality   int     // quality for JPEG re-encoding (1-100)
	MaxDimension  int     // longest image side before downscaling for upload
	ThumbnailSize int     // longest side of generated thumbnails
	MinConfidence float64 // confidence below which a verdict is flagged unreliable
}

// StorageSettings contains filesystem paths for stored scan images.
type StorageSettings struct {
	ImagesPath     string // directory for compressed scan images
	ThumbnailsPath string // directory for generated thumbnails
}

// SQLiteSettings contains settings for the embedded SQLite database.
type SQLiteSettings struct {
	Enabled bool   // true to enable SQLite
	Path    string // path to the database file
}

// MySQLSettings contains settings for an optional shared MySQL database.
type MySQLSettings struct {
	Enabled  bool   // true to enable MySQL
	Username string // MySQL username
	Password string // MySQL password
	Database string // MySQL database name
	Host     string // MySQL host
	Port     int    // MySQL port
}

// OutputSettings contains database output settings.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// WebServerSettings contains settings for the REST API server.
type WebServerSettings struct {
	Enabled bool      // true to enable the API server
	Port    string    // port to listen on
	Log     LogConfig // server log settings
}

// CleanupSettings contains settings for the orphaned image sweep.
type CleanupSettings struct {
	Interval time.Duration // time between automatic sweeps while serving, 0 disables
	DryRun   bool          // report orphans without deleting
}

// Settings contains all configuration options for the LansoScan-Go application.
type Settings struct {
	Debug bool // true to enable debug mode

	Main      MainSettings
	Gemini    GeminiSettings
	Analysis  AnalysisSettings
	Storage   StorageSettings
	Output    OutputSettings
	WebServer WebServerSettings
	Cleanup   CleanupSettings

	Version string // build version, runtime value
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into the settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	// Initialize viper and read config
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	// Unmarshal the config into settings
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	// Validate settings
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Get OS specific config paths
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	// Read configuration file
	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	// Create directories for config file
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	// Write default config file
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetTestSettings replaces the settings instance. Intended for tests only.
func SetTestSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
}

