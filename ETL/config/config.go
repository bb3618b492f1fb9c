package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ETLConfig содержит конфигурацию для ETL-процесса
type ETLConfig struct {
	// Аналитическое хранилище DuckDB
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// Удаленное объектное хранилище (Cloudflare R2 и аналоги)
	Remote RemoteConfig `yaml:"remote"`

	// Источники данных Всемирного банка
	WorldBank WorldBankConfig `yaml:"worldbank"`

	// Допуски при сравнении Parquet-снимков
	Compare CompareConfig `yaml:"compare"`

	// Cloudflare D1
	D1 D1Config `yaml:"d1"`

	// Реляционные цели для populate
	Populate PopulateConfig `yaml:"populate"`

	// Журнал запусков ETL
	State StateConfig `yaml:"state"`

	// Интервал запуска ETL по расписанию
	Schedule ScheduleConfig `yaml:"schedule"`

	// HTTP-сервер статуса
	Server ServerConfig `yaml:"server"`

	Logging LoggingConfig `yaml:"logging"`
}

// WarehouseConfig содержит настройки DuckDB
type WarehouseConfig struct {
	DuckDBPath   string   `yaml:"duckdb_path"`
	Schema       string   `yaml:"schema"`
	MartPrefixes []string `yaml:"mart_prefixes"`
}

// RemoteConfig содержит настройки объектного хранилища
type RemoteConfig struct {
	// rclone, s3, gcs или local
	Backend       string `yaml:"backend"`
	RcloneRemote  string `yaml:"rclone_remote"`
	RcloneBinary  string `yaml:"rclone_binary"`
	SourcesPrefix string `yaml:"sources_prefix"`
	// Пустой префикс: витрины лежат в корне бакета
	MartsPrefix string    `yaml:"marts_prefix"`
	DumpsPrefix string    `yaml:"dumps_prefix"`
	S3          S3Config  `yaml:"s3"`
	GCS         GCSConfig `yaml:"gcs"`
	LocalRoot   string    `yaml:"local_root"`
}

// S3Config содержит настройки S3-совместимого хранилища (R2)
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GCSConfig содержит настройки Google Cloud Storage
type GCSConfig struct {
	Bucket string `yaml:"bucket"`
}

// WorldBankConfig содержит адреса и параметры API Всемирного банка
type WorldBankConfig struct {
	WDIZipURL   string        `yaml:"wdi_zip_url"`
	APIBaseURL  string        `yaml:"api_base_url"`
	Indicator   string        `yaml:"indicator"`
	Date        string        `yaml:"date"`
	PerPage     int           `yaml:"per_page"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// CompareConfig задает относительный и абсолютный допуск сравнения
type CompareConfig struct {
	RTol float64 `yaml:"rtol"`
	ATol float64 `yaml:"atol"`
}

// D1Config содержит настройки Cloudflare D1 и wrangler
type D1Config struct {
	Database   string   `yaml:"database"`
	Wrangler   []string `yaml:"wrangler"`
	Mode       string   `yaml:"mode"`
	SampleRate float64  `yaml:"sample_rate"`
}

// PopulateConfig содержит строки подключения реляционных целей
type PopulateConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	MySQLDSN    string `yaml:"mysql_dsn"`
}

// StateConfig содержит путь к SQLite базе журнала запусков
type StateConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig содержит интервал запуска
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig содержит адрес HTTP-сервера
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig содержит настройки логирования
type LoggingConfig struct {
	// debug, info, warn или error
	Level   string `yaml:"level"`
	Verbose bool   `yaml:"verbose"`
	JSON    bool   `yaml:"json"`
	File    string `yaml:"file"`
}

// Допустимые бэкенды удаленного хранилища
const (
	BackendRclone = "rclone"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendLocal  = "local"
)

// Режимы D1
const (
	D1ModeLocal  = "local"
	D1ModeRemote = "remote"
)

// DefaultETLConfig возвращает значения конфигурации по умолчанию
func DefaultETLConfig() ETLConfig {
	return ETLConfig{
		Warehouse: WarehouseConfig{
			DuckDBPath:   "wdi.duckdb",
			Schema:       "public",
			MartPrefixes: []string{"fct_", "dim_", "agg_"},
		},
		Remote: RemoteConfig{
			Backend:       BackendRclone,
			RcloneRemote:  "r2:wdi",
			RcloneBinary:  "rclone",
			SourcesPrefix: "sources",
			DumpsPrefix:   "dumps",
			S3: S3Config{
				Region: "auto",
			},
		},
		WorldBank: WorldBankConfig{
			WDIZipURL:   "https://databank.worldbank.org/data/download/WDI_CSV.zip",
			APIBaseURL:  "http://api.worldbank.org/v2",
			Indicator:   "SP.POP.TOTL",
			Date:        "2022",
			PerPage:     1000,
			HTTPTimeout: 10 * time.Minute,
		},
		Compare: CompareConfig{
			RTol: 1e-5,
			ATol: 5e-4,
		},
		D1: D1Config{
			Database:   "wdi",
			Wrangler:   []string{"npx", "wrangler@latest"},
			Mode:       D1ModeRemote,
			SampleRate: 0.01,
		},
		State: StateConfig{
			Path: "etl_state.sqlite3",
		},
		Schedule: ScheduleConfig{
			Interval: 24 * time.Hour,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig читает конфигурацию из YAML-файла и применяет переменные окружения.
// Пустой путь означает конфигурацию по умолчанию.
func LoadConfig(path string) (ETLConfig, error) {
	// .env необязателен
	_ = godotenv.Load()

	cfg := DefaultETLConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("ошибка чтения конфигурации: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return cfg, fmt.Errorf("ошибка разбора конфигурации: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides переопределяет значения из переменных окружения
func (c *ETLConfig) applyEnvOverrides() {
	if v := os.Getenv("WDI_DUCKDB_PATH"); v != "" {
		c.Warehouse.DuckDBPath = v
	}
	if v := os.Getenv("WDI_REMOTE_BACKEND"); v != "" {
		c.Remote.Backend = v
	}
	if v := os.Getenv("WDI_RCLONE_REMOTE"); v != "" {
		c.Remote.RcloneRemote = v
	}
	if v := os.Getenv("WDI_S3_ENDPOINT"); v != "" {
		c.Remote.S3.Endpoint = v
	}
	if v := os.Getenv("WDI_S3_BUCKET"); v != "" {
		c.Remote.S3.Bucket = v
	}
	if v := os.Getenv("WDI_S3_ACCESS_KEY_ID"); v != "" {
		c.Remote.S3.AccessKeyID = v
	}
	if v := os.Getenv("WDI_S3_SECRET_ACCESS_KEY"); v != "" {
		c.Remote.S3.SecretAccessKey = v
	}
	if v := os.Getenv("WDI_GCS_BUCKET"); v != "" {
		c.Remote.GCS.Bucket = v
	}
	if v := os.Getenv("WDI_POSTGRES_DSN"); v != "" {
		c.Populate.PostgresDSN = v
	}
	if v := os.Getenv("WDI_MYSQL_DSN"); v != "" {
		c.Populate.MySQLDSN = v
	}
	if v := os.Getenv("WDI_D1_DATABASE"); v != "" {
		c.D1.Database = v
	}
	if v := os.Getenv("WDI_STATE_PATH"); v != "" {
		c.State.Path = v
	}
	if v := os.Getenv("WDI_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("WDI_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("WDI_VERBOSE"); v != "" {
		if verbose, err := strconv.ParseBool(v); err == nil {
			c.Logging.Verbose = verbose
		}
	}
}

// Validate проверяет корректность конфигурации
func (c *ETLConfig) Validate() error {
	switch c.Remote.Backend {
	case BackendRclone:
		if c.Remote.RcloneRemote == "" {
			return fmt.Errorf("не задан rclone_remote для бэкенда rclone")
		}
	case BackendS3:
		if c.Remote.S3.Bucket == "" {
			return fmt.Errorf("не задан bucket для бэкенда s3")
		}
	case BackendGCS:
		if c.Remote.GCS.Bucket == "" {
			return fmt.Errorf("не задан bucket для бэкенда gcs")
		}
	case BackendLocal:
		if c.Remote.LocalRoot == "" {
			return fmt.Errorf("не задан local_root для бэкенда local")
		}
	default:
		return fmt.Errorf("неизвестный бэкенд удаленного хранилища: %q", c.Remote.Backend)
	}

	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("неизвестный уровень логирования: %q", c.Logging.Level)
		}
	}

	if c.Warehouse.DuckDBPath == "" {
		return fmt.Errorf("не задан путь к DuckDB")
	}
	if len(c.Warehouse.MartPrefixes) == 0 {
		return fmt.Errorf("не заданы префиксы витрин")
	}
	if c.WorldBank.PerPage <= 0 {
		return fmt.Errorf("per_page должен быть положительным, получено %d", c.WorldBank.PerPage)
	}
	if c.Compare.RTol < 0 || c.Compare.ATol < 0 {
		return fmt.Errorf("допуски сравнения не могут быть отрицательными")
	}
	if c.D1.SampleRate <= 0 || c.D1.SampleRate > 1 {
		return fmt.Errorf("sample_rate должен быть в диапазоне (0, 1], получено %v", c.D1.SampleRate)
	}
	if len(c.D1.Wrangler) == 0 {
		return fmt.Errorf("не задана команда wrangler")
	}
	if c.D1.Mode != D1ModeLocal && c.D1.Mode != D1ModeRemote {
		return fmt.Errorf("неизвестный режим D1: %q", c.D1.Mode)
	}
	return nil
}
