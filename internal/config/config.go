package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/params"
)

// EnvPrefix namespaces every environment variable, e.g. TPI_SERVER_PORT.
const EnvPrefix = "TPI"

// Config represents the complete application configuration
type Config struct {
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	Server      ServerConfig      `yaml:"server" envconfig:"SERVER"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" envconfig:"TELEMETRY"`
	Paths       PathsConfig       `yaml:"paths" envconfig:"PATHS"`
	Pipeline    PipelineConfig    `yaml:"pipeline" envconfig:"PIPELINE"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" envconfig:"DIAGNOSTICS"`
	Countries   CountriesConfig   `yaml:"countries" envconfig:"COUNTRIES"`
	Indicators  []IndicatorConfig `yaml:"indicators" ignored:"true" validate:"dive"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// TelemetryConfig selects the OpenTelemetry exporters.
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableTracing  bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	EnableMetrics  bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// PathsConfig contains file system paths configuration. Relative paths
// are resolved against the directory of the configuration file.
type PathsConfig struct {
	BaseDir   string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR"`
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR"`
	LogsDir   string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// PipelineConfig selects the scaler and imputer by name.
type PipelineConfig struct {
	Scaler         string        `yaml:"scaler" envconfig:"SCALER"`
	ScalerParams   params.Params `yaml:"scaler_params" ignored:"true"`
	Imputer        string        `yaml:"imputer" envconfig:"IMPUTER"`
	ImputerParams  params.Params `yaml:"imputer_params" ignored:"true"`
	Summarize      bool          `yaml:"summarize" envconfig:"SUMMARIZE"`
	RescaleIndex   bool          `yaml:"rescale_index" envconfig:"RESCALE_INDEX"`
	ScorePrecision int           `yaml:"score_precision" envconfig:"SCORE_PRECISION" validate:"gte=0,lte=6"`
}

// DiagnosticsConfig holds the settings of the audits and simulations.
type DiagnosticsConfig struct {
	StabilityShare   float64       `yaml:"stability_share" envconfig:"STABILITY_SHARE" validate:"gt=0,lte=1"`
	TuningTrials     int           `yaml:"tuning_trials" envconfig:"TUNING_TRIALS" validate:"min=1"`
	TuningMissing    float64       `yaml:"tuning_missing_share" envconfig:"TUNING_MISSING_SHARE" validate:"gt=0,lt=1"`
	NeighborRange    []int         `yaml:"neighbor_range" envconfig:"NEIGHBOR_RANGE" validate:"dive,min=1"`
	Seed             uint64        `yaml:"seed" envconfig:"SEED"`
	OutlierMethod    string        `yaml:"outlier_method" envconfig:"OUTLIER_METHOD" validate:"oneof=empirical inter_quartile_range"`
	CollinearityHigh float64       `yaml:"collinearity_upper" envconfig:"COLLINEARITY_UPPER" validate:"gte=-1,lte=1"`
	CollinearityLow  float64       `yaml:"collinearity_lower" envconfig:"COLLINEARITY_LOWER" validate:"gte=-1,lte=1"`
	Grouping         string        `yaml:"grouping" envconfig:"GROUPING"`
	Workers          int           `yaml:"workers" envconfig:"WORKERS" validate:"min=1"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// CountriesConfig names the registry file and the study country sets.
type CountriesConfig struct {
	RegistryFile string              `yaml:"registry_file" envconfig:"REGISTRY_FILE" validate:"required"`
	Study        string              `yaml:"study" envconfig:"STUDY" validate:"required"`
	Sets         map[string][]string `yaml:"sets" ignored:"true"`
	Exclude      []string            `yaml:"exclude" envconfig:"EXCLUDE"`
}

// IndicatorConfig describes one indicator source.
type IndicatorConfig struct {
	Name        string   `yaml:"name" validate:"required"`
	Dimension   string   `yaml:"dimension" validate:"required"`
	File        string   `yaml:"file" validate:"required"`
	Sheet       string   `yaml:"sheet"`
	MoreIsWorse *bool    `yaml:"more_is_worse"`
	FillValue   *float64 `yaml:"fill_value"`
	Latest      bool     `yaml:"latest"`
}

// Worse reports the configured polarity, true when unset.
func (i IndicatorConfig) Worse() bool {
	return i.MoreIsWorse == nil || *i.MoreIsWorse
}

// Load reads the configuration: defaults, then the YAML file at path if
// one is given, then TPI_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("reading %s", path), err)
		}
		if cfg.Paths.BaseDir == "" {
			cfg.Paths.BaseDir = filepath.Dir(path)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("reading environment", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// Validate checks struct tags and the cross-field rules.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return apperrors.NewConfigError("invalid configuration", err)
	}
	if c.Diagnostics.CollinearityLow >= c.Diagnostics.CollinearityHigh {
		return apperrors.NewConfigError("invalid configuration",
			fmt.Errorf("collinearity lower bound %v must be below upper bound %v",
				c.Diagnostics.CollinearityLow, c.Diagnostics.CollinearityHigh))
	}
	if _, ok := c.Countries.Sets[c.Countries.Study]; len(c.Countries.Sets) > 0 && !ok {
		return apperrors.NewConfigError("invalid configuration",
			fmt.Errorf("study set %q is not one of the configured sets", c.Countries.Study))
	}
	seen := make(map[string]bool, len(c.Indicators))
	for _, ind := range c.Indicators {
		if seen[ind.Name] {
			return apperrors.NewConfigError("invalid configuration",
				apperrors.NewDuplicateKeyError("indicators", ind.Name))
		}
		seen[ind.Name] = true
	}
	return nil
}

// Resolve joins a relative path onto the base directory.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Paths.BaseDir == "" {
		return path
	}
	return filepath.Join(c.Paths.BaseDir, path)
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/tpi.log",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   40,
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "toughest-places-index",
			Environment:    "development",
			EnableTracing:  false,
			EnableMetrics:  true,
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1,
		},
		Paths: PathsConfig{
			DataDir:   "data",
			OutputDir: "output",
			LogsDir:   "logs",
		},
		Pipeline: PipelineConfig{
			Scaler:         "quantile",
			Imputer:        "knn",
			ImputerParams:  params.Params{"n_neighbors": 10},
			Summarize:      true,
			RescaleIndex:   true,
			ScorePrecision: 1,
		},
		Diagnostics: DiagnosticsConfig{
			StabilityShare:   0.1,
			TuningTrials:     500,
			TuningMissing:    0.05,
			NeighborRange:    []int{2, 5, 10},
			Seed:             1,
			OutlierMethod:    "empirical",
			CollinearityHigh: 0.7,
			CollinearityLow:  -0.7,
			Workers:          4,
			Timeout:          10 * time.Minute,
		},
		Countries: CountriesConfig{
			RegistryFile: "data/countries.csv",
			Study:        "study",
		},
	}
}
