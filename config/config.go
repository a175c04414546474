package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress        string `toml:"ListenAddress"`
	DataDir              string `toml:"DataDir"`
	NetworkName          string `toml:"NetworkName"`
	DisputeFeeTreasury   string `toml:"DisputeFeeTreasury"`
	BaseDisputeCost      string `toml:"BaseDisputeCost"`
	MinConsensus         uint8  `toml:"MinConsensus"`
	MaxScoreDeviation    uint8  `toml:"MaxScoreDeviation"`
	RPCRequestsPerMinute int    `toml:"RPCRequestsPerMinute"`
	RPCBurst             int    `toml:"RPCBurst"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./x402-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "x402-local"
	}
	if strings.TrimSpace(cfg.BaseDisputeCost) == "" {
		cfg.BaseDisputeCost = "1000000"
	}
	if cfg.MinConsensus == 0 {
		cfg.MinConsensus = 2
	}
	if cfg.MaxScoreDeviation == 0 {
		cfg.MaxScoreDeviation = 15
	}
	if cfg.RPCRequestsPerMinute <= 0 {
		cfg.RPCRequestsPerMinute = 120
	}
	if cfg.RPCBurst <= 0 {
		cfg.RPCBurst = 20
	}
}

// Validate checks the configuration for values the node cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if _, err := c.Treasury(); err != nil {
		return err
	}
	if _, err := c.DisputeCost(); err != nil {
		return err
	}
	if c.MinConsensus < 2 {
		return fmt.Errorf("config: MinConsensus must be at least 2")
	}
	if c.MaxScoreDeviation == 0 || c.MaxScoreDeviation > 50 {
		return fmt.Errorf("config: MaxScoreDeviation must be in [1, 50]")
	}
	return nil
}

// Treasury decodes the dispute fee treasury address.
func (c *Config) Treasury() ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(c.DisputeFeeTreasury), "0x")
	if trimmed == "" {
		return addr, fmt.Errorf("config: DisputeFeeTreasury must be set")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != len(addr) {
		return addr, fmt.Errorf("config: DisputeFeeTreasury must be a 20-byte hex address")
	}
	copy(addr[:], raw)
	if addr == ([20]byte{}) {
		return addr, fmt.Errorf("config: DisputeFeeTreasury must not be the zero address")
	}
	return addr, nil
}

// DisputeCost decodes the base dispute filing cost in native units.
func (c *Config) DisputeCost() (*big.Int, error) {
	cost, ok := new(big.Int).SetString(strings.TrimSpace(c.BaseDisputeCost), 10)
	if !ok || cost.Sign() <= 0 {
		return nil, fmt.Errorf("config: BaseDisputeCost must be a positive integer")
	}
	return cost, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
