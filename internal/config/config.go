package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tracker-codec/internal/payload"
)

var ErrInvalidConfig = errors.New("invalid config")

// DeviceConfig fija la variante de firmware de un dispositivo.
type DeviceConfig struct {
	Encoding string `yaml:"encoding"`
	FlagSet  string `yaml:"flagSet"`
}

type Config struct {
	TCPPort         string                  `yaml:"tcpPort"`
	HTTPPort        string                  `yaml:"httpPort"`
	GRPCForwarder   string                  `yaml:"grpcForwarder"`
	RedisAddr       string                  `yaml:"redisAddr"`
	RedisDB         int                     `yaml:"redisDB"`
	SQLitePath      string                  `yaml:"sqlitePath"`
	FeedAddr        string                  `yaml:"feedAddr"`
	LogLevel        string                  `yaml:"logLevel"`
	RawLogDir       string                  `yaml:"rawLogDir"`
	DefaultEncoding string                  `yaml:"defaultEncoding"`
	DedupTTL        time.Duration           `yaml:"dedupTTL"`
	Devices         map[string]DeviceConfig `yaml:"devices"`
}

func defaults() Config {
	return Config{
		TCPPort:         "8001",
		HTTPPort:        "9000",
		RedisAddr:       "localhost:6379",
		SQLitePath:      "uplinks.db",
		LogLevel:        "info",
		RawLogDir:       "logs",
		DefaultEncoding: payload.CoordOffsetMicro.String(),
		DedupTTL:        10 * time.Minute,
	}
}

// Load arma la configuración: valores por defecto, luego el YAML de
// CONFIG_FILE si existe, y por último las variables de entorno.
func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.TCPPort = getEnv("TCP_PORT", cfg.TCPPort)
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCForwarder = getEnv("GRPC_FORWARDER", cfg.GRPCForwarder)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.FeedAddr = getEnv("FEED_ADDR", cfg.FeedAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.RawLogDir = getEnv("RAW_LOG_DIR", cfg.RawLogDir)
	cfg.DefaultEncoding = getEnv("DEFAULT_ENCODING", cfg.DefaultEncoding)

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", cfg.RedisDB); err != nil {
		return Config{}, err
	}
	if cfg.DedupTTL, err = getEnvDuration("DEDUP_TTL", cfg.DedupTTL); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

// Validate verifica que los nombres de encoding y flag set existan.
func (c Config) Validate() error {
	if _, err := payload.ParseCoordinateEncoding(c.DefaultEncoding); err != nil {
		return fmt.Errorf("%w: default encoding: %v", ErrInvalidConfig, err)
	}
	for eui, d := range c.Devices {
		if _, err := payload.ParseCoordinateEncoding(d.Encoding); err != nil {
			return fmt.Errorf("%w: device %s: %v", ErrInvalidConfig, eui, err)
		}
		if d.FlagSet == "" {
			continue
		}
		if _, err := payload.ParseFlagSet(d.FlagSet); err != nil {
			return fmt.Errorf("%w: device %s: %v", ErrInvalidConfig, eui, err)
		}
	}
	return nil
}

// DeviceOptions devuelve las opciones del codec para un dev_eui. Sin entrada
// propia el dispositivo usa el encoding por defecto.
func (c Config) DeviceOptions(devEUI string) []payload.Option {
	enc, _ := payload.ParseCoordinateEncoding(c.DefaultEncoding)
	opts := []payload.Option{payload.WithCoordinateEncoding(enc)}

	d, ok := c.lookupDevice(devEUI)
	if !ok {
		return opts
	}
	if d.Encoding != "" {
		if e, err := payload.ParseCoordinateEncoding(d.Encoding); err == nil {
			opts = append(opts, payload.WithCoordinateEncoding(e))
		}
	}
	if d.FlagSet != "" {
		if fs, err := payload.ParseFlagSet(d.FlagSet); err == nil {
			opts = append(opts, payload.WithFlagSet(fs))
		}
	}
	return opts
}

func (c Config) lookupDevice(devEUI string) (DeviceConfig, bool) {
	for eui, d := range c.Devices {
		if strings.EqualFold(eui, devEUI) {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return d, nil
}
