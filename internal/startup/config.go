package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gifbot/internal/logging"
	"gifbot/internal/policy"
	"gifbot/internal/workers"

	"github.com/pelletier/go-toml/v2"
)

// Defaults for settings that are not conversion limits.
const (
	DefaultFFmpegPath  = "ffmpeg"
	DefaultFFprobePath = "ffprobe"
	DefaultMetricsPort = "9090"
	DefaultLockName    = "gifbot.lock"

	// maxConcurrentLimit caps MAX_CONCURRENT_CONVERSIONS regardless of host size.
	maxConcurrentLimit = 32
	// defaultConcurrentCap bounds the CPU-derived default.
	defaultConcurrentCap = 4
)

// ErrMissingToken is returned when no bot token is configured.
var ErrMissingToken = errors.New("TELEGRAM_TOKEN is required")

// Config holds all application configuration
type Config struct {
	Token       string
	APIEndpoint string

	ScratchDir string
	LockFile   string

	MaxInputBytes    int64
	MaxOutputBytes   int64
	MaxDuration      time.Duration
	MaxWidth         int
	TargetFPS        int
	OperationTimeout time.Duration
	MaxConcurrent    int

	FFmpegPath  string
	FFprobePath string

	MetricsEnabled bool
	MetricsPort    string

	// ConfigFile is the TOML file the settings were seeded from, if any.
	ConfigFile string
}

// Policy returns the conversion limits carried by the configuration.
func (c *Config) Policy() policy.Policy {
	return policy.Policy{
		MaxInputBytes:    c.MaxInputBytes,
		MaxOutputBytes:   c.MaxOutputBytes,
		MaxDuration:      c.MaxDuration,
		MaxWidth:         c.MaxWidth,
		TargetFPS:        c.TargetFPS,
		OperationTimeout: c.OperationTimeout,
	}
}

// fileConfig mirrors the optional TOML file. Zero values mean "not set".
type fileConfig struct {
	Telegram struct {
		Token       string `toml:"token"`
		APIEndpoint string `toml:"api_endpoint"`
	} `toml:"telegram"`
	Paths struct {
		ScratchDir string `toml:"scratch_dir"`
		LockFile   string `toml:"lock_file"`
	} `toml:"paths"`
	Limits struct {
		MaxInputBytes           int64 `toml:"max_input_bytes"`
		MaxOutputBytes          int64 `toml:"max_output_bytes"`
		MaxDurationSeconds      int   `toml:"max_duration_seconds"`
		MaxWidthPx              int   `toml:"max_width_px"`
		TargetFPS               int   `toml:"target_fps"`
		OperationTimeoutSeconds int   `toml:"operation_timeout_seconds"`
		MaxConcurrent           int   `toml:"max_concurrent"`
	} `toml:"limits"`
	Encoder struct {
		FFmpeg  string `toml:"ffmpeg"`
		FFprobe string `toml:"ffprobe"`
	} `toml:"encoder"`
	Metrics struct {
		Enabled *bool  `toml:"enabled"`
		Port    string `toml:"port"`
	} `toml:"metrics"`
}

func defaultConfig() Config {
	limits := policy.Default()
	return Config{
		ScratchDir:       filepath.Join(os.TempDir(), "gifbot"),
		MaxInputBytes:    limits.MaxInputBytes,
		MaxOutputBytes:   limits.MaxOutputBytes,
		MaxDuration:      limits.MaxDuration,
		MaxWidth:         limits.MaxWidth,
		TargetFPS:        limits.TargetFPS,
		OperationTimeout: limits.OperationTimeout,
		MaxConcurrent:    workers.ForCPU(defaultConcurrentCap),
		FFmpegPath:       DefaultFFmpegPath,
		FFprobePath:      DefaultFFprobePath,
		MetricsEnabled:   true,
		MetricsPort:      DefaultMetricsPort,
	}
}

// loadConfig layers defaults, the TOML file and the environment, in that
// order, and validates the result.
func loadConfig(configPath string) (*Config, error) {
	cfg := defaultConfig()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_FILE")
	}
	if configPath != "" {
		file, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		applyFile(&cfg, file)
		cfg.ConfigFile = configPath
	}

	applyEnv(&cfg)

	if cfg.LockFile == "" {
		cfg.LockFile = filepath.Join(cfg.ScratchDir, DefaultLockName)
	}

	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if err := cfg.Policy().Validate(); err != nil {
		return nil, fmt.Errorf("invalid limits: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(path string) (fileConfig, error) {
	var file fileConfig

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return file, fmt.Errorf("config file %s does not exist", path)
		}
		return file, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	decoder := toml.NewDecoder(f)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&file); err != nil {
		return file, fmt.Errorf("parse config: %w", err)
	}
	return file, nil
}

func applyFile(cfg *Config, file fileConfig) {
	setString(&cfg.Token, file.Telegram.Token)
	setString(&cfg.APIEndpoint, file.Telegram.APIEndpoint)
	setString(&cfg.ScratchDir, file.Paths.ScratchDir)
	setString(&cfg.LockFile, file.Paths.LockFile)
	setString(&cfg.FFmpegPath, file.Encoder.FFmpeg)
	setString(&cfg.FFprobePath, file.Encoder.FFprobe)
	setString(&cfg.MetricsPort, file.Metrics.Port)

	limits := file.Limits
	if limits.MaxInputBytes > 0 {
		cfg.MaxInputBytes = limits.MaxInputBytes
	}
	if limits.MaxOutputBytes > 0 {
		cfg.MaxOutputBytes = limits.MaxOutputBytes
	}
	if limits.MaxDurationSeconds > 0 {
		cfg.MaxDuration = time.Duration(limits.MaxDurationSeconds) * time.Second
	}
	if limits.MaxWidthPx > 0 {
		cfg.MaxWidth = limits.MaxWidthPx
	}
	if limits.TargetFPS > 0 {
		cfg.TargetFPS = limits.TargetFPS
	}
	if limits.OperationTimeoutSeconds > 0 {
		cfg.OperationTimeout = time.Duration(limits.OperationTimeoutSeconds) * time.Second
	}
	if limits.MaxConcurrent != 0 {
		cfg.MaxConcurrent = workers.Clamp(limits.MaxConcurrent, maxConcurrentLimit, cfg.MaxConcurrent)
	}
	if file.Metrics.Enabled != nil {
		cfg.MetricsEnabled = *file.Metrics.Enabled
	}
}

func applyEnv(cfg *Config) {
	cfg.Token = getEnv("TELEGRAM_TOKEN", getEnv("BOT_TOKEN", cfg.Token))
	cfg.APIEndpoint = getEnv("TELEGRAM_API_ENDPOINT", cfg.APIEndpoint)
	cfg.ScratchDir = getEnv("SCRATCH_DIR", cfg.ScratchDir)
	cfg.LockFile = getEnv("LOCK_FILE", cfg.LockFile)

	cfg.MaxInputBytes = getEnvInt64("MAX_INPUT_BYTES", cfg.MaxInputBytes)
	cfg.MaxOutputBytes = getEnvInt64("MAX_OUTPUT_BYTES", cfg.MaxOutputBytes)
	cfg.MaxDuration = getEnvSeconds("MAX_DURATION", cfg.MaxDuration)
	cfg.MaxWidth = getEnvInt("MAX_WIDTH", cfg.MaxWidth)
	cfg.TargetFPS = getEnvInt("TARGET_FPS", cfg.TargetFPS)
	cfg.OperationTimeout = getEnvSeconds("OPERATION_TIMEOUT", cfg.OperationTimeout)

	if raw := os.Getenv("MAX_CONCURRENT_CONVERSIONS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			logging.Warn("Invalid MAX_CONCURRENT_CONVERSIONS %q, using default: %d", raw, cfg.MaxConcurrent)
		} else {
			cfg.MaxConcurrent = workers.Clamp(n, maxConcurrentLimit, cfg.MaxConcurrent)
		}
	}

	cfg.FFmpegPath = getEnv("FFMPEG_PATH", cfg.FFmpegPath)
	cfg.FFprobePath = getEnv("FFPROBE_PATH", cfg.FFprobePath)
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsPort = getEnv("METRICS_PORT", cfg.MetricsPort)
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid %s value: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid %s value: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvSeconds accepts either a bare number of seconds or a Go duration.
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			logging.Warn("Invalid %s value: %q, using default: %v", key, value, defaultValue)
			return defaultValue
		}
		return time.Duration(secs * float64(time.Second))
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid %s duration: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
