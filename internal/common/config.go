package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendLocal  = "local"
	BackendGDrive = "gdrive"
)

// Property store drivers.
const (
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
	DriverMemory    = "memory"
)

// Config holds all application configuration
type Config struct {
	Backend    string           `mapstructure:"backend"`
	Properties PropertiesConfig `mapstructure:"properties"`
	Local      LocalConfig      `mapstructure:"local"`
	Drive      DriveConfig      `mapstructure:"drive"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Decode     DecodeConfig     `mapstructure:"decode"`
	Fields     FieldsConfig     `mapstructure:"fields"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Log        LogConfig        `mapstructure:"log"`
}

// PropertiesConfig selects and configures the key-value property store
type PropertiesConfig struct {
	Driver              string        `mapstructure:"driver"`
	DSN                 string        `mapstructure:"dsn"`
	Namespace           string        `mapstructure:"namespace"`
	MaxConns            int32         `mapstructure:"max_conns"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	FirestoreProject    string        `mapstructure:"firestore_project"`
	FirestoreCollection string        `mapstructure:"firestore_collection"`
}

// LocalConfig holds local filesystem backend configuration
type LocalConfig struct {
	Root string `mapstructure:"root"`
}

// DriveConfig holds Google Drive backend configuration
type DriveConfig struct {
	CredentialsFile   string        `mapstructure:"credentials_file"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	OCRLanguage       string        `mapstructure:"ocr_language"`
}

// OCRConfig holds local OCR tool configuration
type OCRConfig struct {
	Pdftotext       string `mapstructure:"pdftotext"`
	Pdftoppm        string `mapstructure:"pdftoppm"`
	Tesseract       string `mapstructure:"tesseract"`
	TesseractLang   string `mapstructure:"tesseract_lang"`
	TessdataDir     string `mapstructure:"tessdata_dir"`
	DPI             int    `mapstructure:"dpi"`
	MaxPages        int    `mapstructure:"max_pages"`
	PreferTextLayer bool   `mapstructure:"prefer_text_layer"`
}

// DecodeConfig controls raw byte decoding of plain documents
type DecodeConfig struct {
	FallbackCharset string `mapstructure:"fallback_charset"`
}

// FieldsConfig points at an optional pattern override file
type FieldsConfig struct {
	PatternsFile string `mapstructure:"patterns_file"`
}

// WatchConfig holds daemon scheduling configuration
type WatchConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	Debounce   time.Duration `mapstructure:"debounce"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
	HealthAddr string        `mapstructure:"health_addr"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NewViper returns a viper instance bound to KABALOT_* environment variables with defaults applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("KABALOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers every configuration key so environment overrides are picked up on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendLocal)

	v.SetDefault("properties.driver", DriverSQLite)
	v.SetDefault("properties.dsn", "./kabalot.db")
	v.SetDefault("properties.namespace", "default")
	v.SetDefault("properties.max_conns", 4)
	v.SetDefault("properties.dial_timeout", 3*time.Second)
	v.SetDefault("properties.firestore_project", "")
	v.SetDefault("properties.firestore_collection", "kabalot-properties")

	v.SetDefault("local.root", ".")

	v.SetDefault("drive.credentials_file", "")
	v.SetDefault("drive.requests_per_second", 5.0)
	v.SetDefault("drive.burst", 5)
	v.SetDefault("drive.max_retries", 4)
	v.SetDefault("drive.retry_base_delay", 500*time.Millisecond)
	v.SetDefault("drive.ocr_language", "he")

	v.SetDefault("ocr.pdftotext", "pdftotext")
	v.SetDefault("ocr.pdftoppm", "pdftoppm")
	v.SetDefault("ocr.tesseract", "tesseract")
	v.SetDefault("ocr.tesseract_lang", "heb")
	v.SetDefault("ocr.tessdata_dir", "")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.max_pages", 0)
	v.SetDefault("ocr.prefer_text_layer", false)

	v.SetDefault("decode.fallback_charset", "windows-1255")

	v.SetDefault("fields.patterns_file", "")

	v.SetDefault("watch.interval", 5*time.Minute)
	v.SetDefault("watch.debounce", 2*time.Second)
	v.SetDefault("watch.run_timeout", 30*time.Minute)
	v.SetDefault("watch.health_addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig loads configuration from defaults, an optional YAML file, and KABALOT_* environment variables
func LoadConfig(configFile string) (*Config, error) {
	v := NewViper()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError(CodeConfig, fmt.Sprintf("read config file %s", configFile), err)
		}
	}
	return LoadWithViper(v)
}

// LoadWithViper unmarshals configuration from a prepared viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, NewAppError(CodeConfig, "unmarshal config", err)
	}
	return &cfg, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("backend", c.Backend, OneOf(BackendLocal, BackendGDrive))
	v.Field("properties.driver", c.Properties.Driver, OneOf(DriverSQLite, DriverPostgres, DriverFirestore, DriverMemory))
	v.Field("properties.namespace", c.Properties.Namespace, Required)

	switch c.Properties.Driver {
	case DriverSQLite, DriverPostgres:
		v.Field("properties.dsn", c.Properties.DSN, Required)
	case DriverFirestore:
		v.Field("properties.firestore_project", c.Properties.FirestoreProject, Required)
		v.Field("properties.firestore_collection", c.Properties.FirestoreCollection, Required)
	}

	switch c.Backend {
	case BackendLocal:
		v.Field("local.root", c.Local.Root, Required)
		v.Field("ocr.tesseract_lang", c.OCR.TesseractLang, Required)
	case BackendGDrive:
		v.Field("drive.ocr_language", c.Drive.OCRLanguage, Required)
		v.Field("drive.max_retries", c.Drive.MaxRetries, NonNegative)
		v.Field("drive.requests_per_second", c.Drive.RequestsPerSecond, NonNegative)
	}

	v.Field("watch.run_timeout", c.Watch.RunTimeout, NonNegative)
	v.Field("ocr.dpi", c.OCR.DPI, NonNegative)
	v.Field("ocr.max_pages", c.OCR.MaxPages, NonNegative)
	v.Field("log.format", c.Log.Format, OneOf("json", "text"))
	return v.Error()
}
