package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/cloudx-io/openmarket/core"
)

// Transport selects the listener the socket protocol is served on.
const (
	TransportTCP   = "tcp"
	TransportVsock = "vsock"
)

type Config struct {
	Ledger struct {
		Escrow         string `yaml:"escrow"`
		RefundMode     string `yaml:"refund_mode"`
		EventRetention int    `yaml:"event_retention"`
		SnapshotPath   string `yaml:"snapshot_path"`
		SigningKeyPath string `yaml:"signing_key_path"`
	} `yaml:"ledger"`
	Server struct {
		Transport  string   `yaml:"transport"`
		Address    string   `yaml:"address"`
		VsockPort  uint32   `yaml:"vsock_port"`
		MaxWorkers int      `yaml:"max_workers"`
		HTTPAddr   string   `yaml:"http_address"`
		CORSOrigin []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Publish struct {
		NATSURL     string `yaml:"nats_url"`
		NATSStream  string `yaml:"nats_stream"`
		RedisAddr   string `yaml:"redis_address"`
		PostgresDSN string `yaml:"postgres_dsn"`
		QueueSize   int    `yaml:"queue_size"`
	} `yaml:"publish"`
	// Deposits seeds the in-memory bank on startup.
	Deposits map[string]string `yaml:"deposits"`
}

func defaults() Config {
	var cfg Config
	cfg.Ledger.Escrow = string(core.DefaultEscrow)
	cfg.Ledger.RefundMode = string(core.RefundPush)
	cfg.Ledger.SnapshotPath = "ledger.snapshot"
	cfg.Ledger.SigningKeyPath = "receipt-key.pem"
	cfg.Server.Transport = TransportTCP
	cfg.Server.Address = "127.0.0.1:5000"
	cfg.Server.VsockPort = 5000
	cfg.Server.MaxWorkers = 16
	cfg.Server.HTTPAddr = ":8080"
	cfg.Publish.NATSStream = "MARKET_EVENTS"
	cfg.Publish.QueueSize = 1024
	return cfg
}

// Load reads .env (if present), then the YAML file named by LEDGER_CONFIG
// (if set), then applies environment overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()
	if path := os.Getenv("LEDGER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config file: %w", err)
		}
		log.Printf("INFO: Loaded config from %s", path)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.Ledger.Escrow = GetEnv("LEDGER_ESCROW", c.Ledger.Escrow)
	c.Ledger.RefundMode = GetEnv("LEDGER_REFUND_MODE", c.Ledger.RefundMode)
	c.Ledger.SnapshotPath = GetEnv("LEDGER_SNAPSHOT_PATH", c.Ledger.SnapshotPath)
	c.Ledger.SigningKeyPath = GetEnv("LEDGER_SIGNING_KEY", c.Ledger.SigningKeyPath)
	c.Server.Transport = GetEnv("LEDGER_TRANSPORT", c.Server.Transport)
	c.Server.Address = GetEnv("LEDGER_ADDRESS", c.Server.Address)
	c.Server.HTTPAddr = GetEnv("LEDGER_HTTP_ADDRESS", c.Server.HTTPAddr)
	c.Publish.NATSURL = GetEnv("NATS_URL", c.Publish.NATSURL)
	c.Publish.RedisAddr = GetEnv("REDIS_ADDR", c.Publish.RedisAddr)
	c.Publish.PostgresDSN = GetEnv("POSTGRES_DSN", c.Publish.PostgresDSN)

	if origins := os.Getenv("LEDGER_CORS_ORIGINS"); origins != "" {
		c.Server.CORSOrigin = strings.Split(origins, ",")
	}

	var err error
	if c.Ledger.EventRetention, err = GetEnvInt("LEDGER_EVENT_RETENTION", c.Ledger.EventRetention); err != nil {
		return err
	}
	if c.Server.MaxWorkers, err = GetEnvInt("LEDGER_MAX_WORKERS", c.Server.MaxWorkers); err != nil {
		return err
	}
	if c.Publish.QueueSize, err = GetEnvInt("PUBLISH_QUEUE_SIZE", c.Publish.QueueSize); err != nil {
		return err
	}
	port, err := GetEnvInt("LEDGER_VSOCK_PORT", int(c.Server.VsockPort))
	if err != nil {
		return err
	}
	c.Server.VsockPort = uint32(port)
	return nil
}

func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportTCP, TransportVsock:
	default:
		return fmt.Errorf("unknown transport %q", c.Server.Transport)
	}
	switch core.RefundMode(c.Ledger.RefundMode) {
	case core.RefundPush, core.RefundPull:
	default:
		return fmt.Errorf("unknown refund mode %q", c.Ledger.RefundMode)
	}
	if c.Server.MaxWorkers <= 0 {
		return fmt.Errorf("max workers must be positive, got %d", c.Server.MaxWorkers)
	}
	if c.Ledger.EventRetention < 0 {
		return fmt.Errorf("event retention must not be negative, got %d", c.Ledger.EventRetention)
	}
	return nil
}

// LedgerConfig is the subset handed to core.New.
func (c *Config) LedgerConfig() core.Config {
	return core.Config{
		Escrow:         core.NewAddress(c.Ledger.Escrow),
		RefundMode:     core.RefundMode(c.Ledger.RefundMode),
		EventRetention: c.Ledger.EventRetention,
	}
}

func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func GetEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}
	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue, nil
}

// GetRequiredEnvInt is for settings with no sensible default.
func GetRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue, nil
}
