package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when no -config flag is given.
const DefaultPath = "config/config.yml"

type Config struct {
	Arbiter   ArbiterConfig   `yaml:"arbiter"`
	Pairs     []string        `yaml:"pairs"`
	API       APIConfig       `yaml:"api"`
	Reporter  ReporterConfig  `yaml:"reporter"`
	Exchanges ExchangesConfig `yaml:"exchanges"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Profiling ProfilingConfig `yaml:"profiling"`
}

type ArbiterConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type APIConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Address is the listen address for the query server.
func (c APIConfig) Address() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

type ReporterConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Warmup   time.Duration `yaml:"warmup"`
	Interval time.Duration `yaml:"interval"`
	Top      int           `yaml:"top"`
}

type ExchangesConfig struct {
	Binance BinanceConfig `yaml:"binance"`
	Bybit   BybitConfig   `yaml:"bybit"`
	Kucoin  KucoinConfig  `yaml:"kucoin"`
}

// StreamConfig holds the websocket settings shared by streaming venues.
type StreamConfig struct {
	Enabled        bool          `yaml:"enabled"`
	WSURL          string        `yaml:"ws_url"`
	RestURL        string        `yaml:"rest_url"`
	DepthLevels    int           `yaml:"depth_levels"`
	Timeout        time.Duration `yaml:"timeout"`
	Reconnect      bool          `yaml:"reconnect"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type BinanceConfig struct {
	StreamConfig `yaml:",inline"`
	UpdateSpeed  time.Duration `yaml:"update_speed"`
}

type BybitConfig struct {
	StreamConfig `yaml:",inline"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

type KucoinConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RestURL           string        `yaml:"rest_url"`
	DepthLevels       int           `yaml:"depth_levels"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
	Reconnect         bool          `yaml:"reconnect"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Path       string           `yaml:"path"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Namespace       string `yaml:"namespace"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type ProfilingConfig struct {
	Enabled         bool   `yaml:"enabled"`
	ServerAddress   string `yaml:"server_address"`
	ApplicationName string `yaml:"application_name"`
}

// Default returns the built-in configuration used when no file is present.
func Default() Config {
	return Config{
		Arbiter: ArbiterConfig{Name: "arbiter", Version: "0.1.0"},
		Pairs:   []string{"BTCUSDT", "ETHUSDT"},
		API: APIConfig{
			Port:         3000,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Reporter: ReporterConfig{
			Enabled:  true,
			Warmup:   3 * time.Second,
			Interval: 5 * time.Second,
			Top:      5,
		},
		Exchanges: ExchangesConfig{
			Binance: BinanceConfig{
				StreamConfig: StreamConfig{
					Enabled:        true,
					WSURL:          "wss://fstream.binance.com/ws",
					RestURL:        "https://fapi.binance.com",
					DepthLevels:    20,
					Timeout:        10 * time.Second,
					ReconnectDelay: 5 * time.Second,
				},
				UpdateSpeed: 100 * time.Millisecond,
			},
			Bybit: BybitConfig{
				StreamConfig: StreamConfig{
					Enabled:        true,
					WSURL:          "wss://stream.bybit.com/v5/public/linear",
					RestURL:        "https://api.bybit.com",
					DepthLevels:    50,
					Timeout:        10 * time.Second,
					ReconnectDelay: 5 * time.Second,
				},
				PingInterval: 20 * time.Second,
			},
			Kucoin: KucoinConfig{
				RestURL:           "https://api-futures.kucoin.com",
				DepthLevels:       20,
				PollInterval:      time.Second,
				RequestsPerSecond: 5,
				Burst:             1,
				Timeout:           10 * time.Second,
				ReconnectDelay:    5 * time.Second,
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Metrics: MetricsConfig{
			Enabled:    true,
			Path:       "/metrics",
			CloudWatch: CloudWatchConfig{Namespace: "Arbiter"},
		},
		Profiling: ProfilingConfig{
			ServerAddress:   "http://localhost:4040",
			ApplicationName: "arbiter",
		},
	}
}

// LoadConfig reads path on top of the defaults, applies environment overrides
// and validates the result. A missing file at DefaultPath is not an error.
func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultPath, map[string]string{
		environmentProduction: "config/config.production.yml",
		environmentStaging:    "config/config.staging.yml",
	})

	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnvOverrides(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	config.Pairs = normalizePairs(config.Pairs)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv("PAIRS"); ok {
		cfg.Pairs = ParsePairs(v)
	}
	if v, ok := os.LookupEnv("API_PORT"); ok {
		port, err := ParsePort(v)
		if err != nil {
			return err
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("AWS_REGION"); v != "" && cfg.Metrics.CloudWatch.Region == "" {
		cfg.Metrics.CloudWatch.Region = strings.TrimSpace(v)
	}
	return nil
}

// ParsePairs splits a comma-separated pair list, trimming and uppercasing each
// entry and dropping empty ones.
func ParsePairs(raw string) []string {
	return normalizePairs(strings.Split(raw, ","))
}

func normalizePairs(pairs []string) []string {
	out := make([]string, 0, len(pairs))
	seen := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// ParsePort parses a TCP port in the range 1-65535.
func ParsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("API_PORT %q is not a number", raw)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("API_PORT %d is out of range", port)
	}
	return port, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Arbiter.Name == "" {
		return fmt.Errorf("arbiter.name is required")
	}
	if len(cfg.Pairs) == 0 {
		return fmt.Errorf("at least one pair is required")
	}
	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port %d is out of range", cfg.API.Port)
	}
	if cfg.Reporter.Enabled {
		if cfg.Reporter.Interval <= 0 {
			return fmt.Errorf("reporter.interval must be greater than 0")
		}
		if cfg.Reporter.Top <= 0 {
			return fmt.Errorf("reporter.top must be greater than 0")
		}
	}

	ex := cfg.Exchanges
	if !ex.Binance.Enabled && !ex.Bybit.Enabled && !ex.Kucoin.Enabled {
		return fmt.Errorf("at least one exchange must be enabled")
	}
	if ex.Binance.Enabled && ex.Binance.WSURL == "" {
		return fmt.Errorf("exchanges.binance.ws_url is required when binance is enabled")
	}
	if ex.Bybit.Enabled && ex.Bybit.WSURL == "" {
		return fmt.Errorf("exchanges.bybit.ws_url is required when bybit is enabled")
	}
	if ex.Kucoin.Enabled {
		if ex.Kucoin.RestURL == "" {
			return fmt.Errorf("exchanges.kucoin.rest_url is required when kucoin is enabled")
		}
		if ex.Kucoin.PollInterval <= 0 {
			return fmt.Errorf("exchanges.kucoin.poll_interval must be greater than 0")
		}
	}

	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Namespace == "" {
		return fmt.Errorf("metrics.cloudwatch.namespace is required when CloudWatch is enabled")
	}
	if cfg.Profiling.Enabled && cfg.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.server_address is required when profiling is enabled")
	}
	return nil
}
