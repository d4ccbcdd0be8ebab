// Package config provides configuration management for forgecalc.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultWorkerPort is the HTTP API port.
	DefaultWorkerPort = 37780
	// EnvPort overrides the port.
	EnvPort = "FORGECALC_PORT"
	// EnvDataDir overrides the data directory.
	EnvDataDir = "FORGECALC_DATA_DIR"
)

// Config holds all runtime settings.
type Config struct {
	WorkerPort int `yaml:"worker_port"`
	MaxConns   int `yaml:"max_conns"`

	// PoolSize is the compute-pool worker count. Zero selects the default
	// (available parallelism capped at 4).
	PoolSize int `yaml:"pool_size"`
	// MemoCapacity bounds each compute worker's memoization cache.
	MemoCapacity int `yaml:"memo_capacity"`

	DataDir          string `yaml:"data_dir"`
	DBPath           string `yaml:"db_path"`
	GameDataPath     string `yaml:"game_data_path"`
	PriceCatalogPath string `yaml:"price_catalog_path"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		WorkerPort:       DefaultWorkerPort,
		MaxConns:         4,
		PoolSize:         0,
		MemoCapacity:     1000,
		DataDir:          dataDir,
		DBPath:           filepath.Join(dataDir, "forgecalc.db"),
		GameDataPath:     filepath.Join(dataDir, "gamedata.yaml"),
		PriceCatalogPath: filepath.Join(dataDir, "prices.yaml"),
	}
}

// Load reads the config file, fills unset fields from defaults, and applies
// environment overrides. A missing file yields the defaults.
func Load() (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(configPath())
	if err == nil {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// EnsureAll creates the data directory when missing.
func EnsureAll() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	return os.MkdirAll(cfg.DataDir, 0o755)
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.WorkerPort <= 0 {
		cfg.WorkerPort = def.WorkerPort
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = def.MaxConns
	}
	if cfg.MemoCapacity <= 0 {
		cfg.MemoCapacity = def.MemoCapacity
	}
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "forgecalc.db")
	}
	if cfg.GameDataPath == "" {
		cfg.GameDataPath = filepath.Join(cfg.DataDir, "gamedata.yaml")
	}
	if cfg.PriceCatalogPath == "" {
		cfg.PriceCatalogPath = filepath.Join(cfg.DataDir, "prices.yaml")
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.WorkerPort = port
		}
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
		cfg.DBPath = filepath.Join(v, "forgecalc.db")
		cfg.GameDataPath = filepath.Join(v, "gamedata.yaml")
		cfg.PriceCatalogPath = filepath.Join(v, "prices.yaml")
	}
}

func configPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".forgecalc"
	}
	return filepath.Join(home, ".forgecalc")
}
