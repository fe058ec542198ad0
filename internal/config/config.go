package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/veldscape/landcover-cli/internal/fetch"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Layers     LayersConfig     `yaml:"layers" mapstructure:"layers"`
	Masks      MasksConfig      `yaml:"masks" mapstructure:"masks"`
	Legend     LegendConfig     `yaml:"legend" mapstructure:"legend"`
	Index      IndexConfig      `yaml:"index" mapstructure:"index"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Coastline  CoastlineConfig  `yaml:"coastline" mapstructure:"coastline"`
	Render     RenderConfig     `yaml:"render" mapstructure:"render"`
	Watch      WatchConfig      `yaml:"watch" mapstructure:"watch"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run-history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	Path        string `yaml:"path" mapstructure:"path"`     // sqlite database file
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PipelineConfig holds the reclassification thresholds and the working CRS.
type PipelineConfig struct {
	// TargetCRS is the CRS every layer is warped to before the rules run.
	// Empty keeps each scene's native CRS.
	TargetCRS        string  `yaml:"target_crs" mapstructure:"target_crs"`
	ModeRadius       int     `yaml:"mode_radius" mapstructure:"mode_radius"`
	HANDMax          float64 `yaml:"hand_max" mapstructure:"hand_max"`
	IndexMin         float64 `yaml:"index_min" mapstructure:"index_min"`
	BuiltSentinel    int     `yaml:"built_sentinel" mapstructure:"built_sentinel"`
	SettlementDilate int     `yaml:"settlement_dilate" mapstructure:"settlement_dilate"`
}

// LayersConfig points at the standing auxiliary rasters. They are regional
// mosaics shared by every scene; postprocess flags override them per run.
type LayersConfig struct {
	HAND       string `yaml:"hand" mapstructure:"hand"`
	Buildings  string `yaml:"buildings" mapstructure:"buildings"`
	Settlement string `yaml:"settlement" mapstructure:"settlement"`
	Index      string `yaml:"index" mapstructure:"index"`
}

// MaskConfig locates one vector mask layer: either a file (shapefile,
// GeoJSON, FlatGeobuf) or an allowlisted PostGIS table.
type MaskConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Table string `yaml:"table" mapstructure:"table"`
	CRS   string `yaml:"crs" mapstructure:"crs"`
}

// Set reports whether the mask points anywhere at all.
func (m MaskConfig) Set() bool {
	return m.Path != "" || m.Table != ""
}

// MasksConfig configures the vector masks consumed by the rule sequence.
type MasksConfig struct {
	Rivers MaskConfig `yaml:"rivers" mapstructure:"rivers"`
	Roads  MaskConfig `yaml:"roads" mapstructure:"roads"`
	Coast  MaskConfig `yaml:"coast" mapstructure:"coast"`

	RoadSurfaceKey string   `yaml:"road_surface_key" mapstructure:"road_surface_key"`
	RoadSurfaces   []string `yaml:"road_surfaces" mapstructure:"road_surfaces"`
	RoadBufferM    float64  `yaml:"road_buffer_m" mapstructure:"road_buffer_m"`
	CoastBufferM   float64  `yaml:"coast_buffer_m" mapstructure:"coast_buffer_m"`
}

// LegendConfig points at a YAML class legend; empty uses the built-in one.
type LegendConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// IndexConfig selects the bands of the water-index computation.
type IndexConfig struct {
	GreenBand int `yaml:"green_band" mapstructure:"green_band"`
	SWIRBand  int `yaml:"swir_band" mapstructure:"swir_band"`
}

// FetchConfig configures auxiliary layer downloads.
type FetchConfig struct {
	Dir         string         `yaml:"dir" mapstructure:"dir"`
	Concurrency int            `yaml:"concurrency" mapstructure:"concurrency"`
	UserAgent   string         `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int            `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64        `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int            `yaml:"burst" mapstructure:"burst"`
	Sources     []fetch.Source `yaml:"sources" mapstructure:"sources"`
}

// CoastlineConfig configures the coastline geometry service. An empty
// BaseURL disables the client; the coast mask then comes from masks.coast.
// The bbox is the region extent, expressed in the requested CRS.
type CoastlineConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Year          int     `yaml:"year" mapstructure:"year"`
	CRS           string  `yaml:"crs" mapstructure:"crs"`
	MinX          float64 `yaml:"min_x" mapstructure:"min_x"`
	MinY          float64 `yaml:"min_y" mapstructure:"min_y"`
	MaxX          float64 `yaml:"max_x" mapstructure:"max_x"`
	MaxY          float64 `yaml:"max_y" mapstructure:"max_y"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// RenderConfig configures preview rendering.
type RenderConfig struct {
	Palette string `yaml:"palette" mapstructure:"palette"` // TOML palette file, empty generates colors
}

// WatchConfig configures hot-folder processing.
type WatchConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	OutDir     string `yaml:"out_dir" mapstructure:"out_dir"`
	Suffix     string `yaml:"suffix" mapstructure:"suffix"`
	SettleSecs int    `yaml:"settle_secs" mapstructure:"settle_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentScenes int `yaml:"max_concurrent_scenes" mapstructure:"max_concurrent_scenes"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// PreviewDir confines the preview endpoint; only rasters under it are
	// rendered. Empty disables the endpoint.
	PreviewDir string `yaml:"preview_dir" mapstructure:"preview_dir"`
}

// MonitoringConfig configures background run-health checks. An empty
// WebhookURL disables alert delivery; the stats endpoint works regardless.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LANDCOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "landcover.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.mode_radius", 2)
	v.SetDefault("pipeline.hand_max", 45.0)
	v.SetDefault("pipeline.index_min", 0.0)
	v.SetDefault("pipeline.built_sentinel", 255)
	v.SetDefault("pipeline.settlement_dilate", 5)
	v.SetDefault("masks.road_surface_key", "surface")
	v.SetDefault("masks.road_surfaces", []string{
		"paved", "asphalt", "concrete", "paving_stones", "compacted",
	})
	v.SetDefault("masks.road_buffer_m", 10.0)
	v.SetDefault("masks.coast_buffer_m", 50000.0)
	v.SetDefault("index.green_band", 3)
	v.SetDefault("index.swir_band", 11)
	v.SetDefault("fetch.dir", "layers")
	v.SetDefault("fetch.concurrency", 3)
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_sec", 5)
	v.SetDefault("fetch.burst", 5)
	v.SetDefault("coastline.crs", "EPSG:4326")
	v.SetDefault("coastline.rate_per_sec", 2)
	v.SetDefault("coastline.max_retries", 3)
	v.SetDefault("coastline.cache_ttl_hours", 24)
	v.SetDefault("watch.suffix", ".tif")
	v.SetDefault("watch.settle_secs", 2)
	v.SetDefault("batch.max_concurrent_scenes", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for one command mode. Mode-specific
// requirements come first, shared bounds always apply; every problem found
// is reported, not just the first.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "postprocess", "watch", "runs", "serve":
		problems = append(problems, c.storeProblems()...)
		if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		if mode == "watch" && c.Watch.Dir == "" {
			problems = append(problems, "watch.dir is required")
		}
	case "fetch":
		if c.Fetch.Dir == "" {
			problems = append(problems, "fetch.dir is required")
		}
		if len(c.Fetch.Sources) == 0 {
			problems = append(problems, "fetch.sources is empty")
		}
	case "masks":
		// The mask tables live in PostGIS even when runs are tracked in
		// SQLite, so the URL is required independent of store.driver.
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	case "index", "sample", "report", "render", "legend":
		// nothing beyond the shared bounds
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pipeline.ModeRadius < 0 || c.Pipeline.ModeRadius > 32 {
		problems = append(problems, "pipeline.mode_radius must be between 0 and 32")
	}
	if c.Pipeline.HANDMax < 0 {
		problems = append(problems, "pipeline.hand_max must be >= 0")
	}
	if c.Pipeline.BuiltSentinel < 0 || c.Pipeline.BuiltSentinel > 255 {
		problems = append(problems, "pipeline.built_sentinel must be a uint8 value")
	}
	if c.Pipeline.SettlementDilate < 0 {
		problems = append(problems, "pipeline.settlement_dilate must be >= 0")
	}
	if c.Masks.RoadBufferM < 0 || c.Masks.CoastBufferM < 0 {
		problems = append(problems, "masks buffer widths must be >= 0")
	}
	if c.Batch.MaxConcurrentScenes < 1 || c.Batch.MaxConcurrentScenes > 32 {
		problems = append(problems, "batch.max_concurrent_scenes must be between 1 and 32")
	}
	if c.Monitoring.WebhookURL != "" {
		if c.Monitoring.FailureRateThreshold <= 0 || c.Monitoring.FailureRateThreshold > 1 {
			problems = append(problems, "monitoring.failure_rate_threshold must be between 0 and 1")
		}
		if c.Monitoring.CheckIntervalSecs <= 0 {
			problems = append(problems, "monitoring.check_interval_secs must be > 0")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) storeProblems() []string {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return []string{"store.path is required"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	default:
		return []string{"store.driver must be sqlite or postgres"}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
