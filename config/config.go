package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	OpsAddress  string `toml:"OpsAddress"`
	DataDir     string `toml:"DataDir"`
	Environment string `toml:"Environment"`

	// MaxFeeBps caps the platform fee any caller may request.
	MaxFeeBps uint32 `toml:"MaxFeeBps"`

	// Privileged principals, hex-encoded 20-byte addresses.
	PlatformAccount string `toml:"PlatformAccount"`
	ArbiterAccount  string `toml:"ArbiterAccount"`
	AdminAccount    string `toml:"AdminAccount"`

	// RateLimitPerMinute bounds mutating requests per source address.
	RateLimitPerMinute int `toml:"RateLimitPerMinute"`

	// EventTail is the capacity of the in-memory event ring served by
	// the events_latest method.
	EventTail int `toml:"EventTail"`

	LogFile       string `toml:"LogFile"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`
	LogMaxBackups int    `toml:"LogMaxBackups"`
	LogMaxAgeDays int    `toml:"LogMaxAgeDays"`
}

// Load reads the configuration at path, creating and persisting a
// default file when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8645"
	}
	if strings.TrimSpace(c.OpsAddress) == "" {
		c.OpsAddress = ":8646"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./agora-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.MaxFeeBps == 0 {
		c.MaxFeeBps = 1_000
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = 120
	}
	if c.EventTail <= 0 {
		c.EventTail = 512
	}
}

// Validate rejects configurations that cannot be served.
func (c *Config) Validate() error {
	if c.MaxFeeBps > 10_000 {
		return fmt.Errorf("config: MaxFeeBps %d exceeds 10000", c.MaxFeeBps)
	}
	for field, value := range map[string]string{
		"PlatformAccount": c.PlatformAccount,
		"ArbiterAccount":  c.ArbiterAccount,
		"AdminAccount":    c.AdminAccount,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := ParseAddress(value); err != nil {
			return fmt.Errorf("config: %s: %w", field, err)
		}
	}
	return nil
}

// Platform returns the configured platform fee account.
func (c *Config) Platform() ([20]byte, error) { return ParseAddress(c.PlatformAccount) }

// Arbiter returns the configured escrow arbiter account.
func (c *Config) Arbiter() ([20]byte, error) { return ParseAddress(c.ArbiterAccount) }

// Admin returns the configured administrative account.
func (c *Config) Admin() ([20]byte, error) { return ParseAddress(c.AdminAccount) }

// ParseAddress decodes a hex-encoded 20-byte address, with or without a
// 0x prefix.
func ParseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	cleaned := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", value, err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("invalid address %q: want %d bytes, got %d", value, len(addr), len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
