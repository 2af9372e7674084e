package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from a TOML file.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	Environment   string `toml:"Environment"`
	DataDir       string `toml:"DataDir"`

	LogPath       string `toml:"LogPath"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`
	LogMaxBackups int    `toml:"LogMaxBackups"`
	LogMaxAgeDays int    `toml:"LogMaxAgeDays"`

	AuthSecret      string `toml:"AuthSecret"`
	RateLimitPerMin int    `toml:"RateLimitPerMin"`

	PostgresDSN string `toml:"PostgresDSN"`
	EventDBPath string `toml:"EventDBPath"`

	OTLPEndpoint     string `toml:"OTLPEndpoint"`
	OTLPInsecure     bool   `toml:"OTLPInsecure"`
	OTLPHeaders      string `toml:"OTLPHeaders"`
	TelemetryTraces  bool   `toml:"TelemetryTraces"`
	TelemetryMetrics bool   `toml:"TelemetryMetrics"`

	CollateralDecimals uint8 `toml:"CollateralDecimals"`
	DebtDecimals       uint8 `toml:"DebtDecimals"`
	OracleDecimals     uint8 `toml:"OracleDecimals"`

	// WAD-scaled decimal strings.
	CollateralFactor      string `toml:"CollateralFactor"`
	LiquidationThreshold  string `toml:"LiquidationThreshold"`
	LiquidationBonus      string `toml:"LiquidationBonus"`
	InterestRatePerSecond string `toml:"InterestRatePerSecond"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists.
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
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8689"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./lendpool-data"
	}
	if strings.TrimSpace(c.EventDBPath) == "" {
		c.EventDBPath = "./lendpool-data/events.db"
	}
	if c.RateLimitPerMin <= 0 {
		c.RateLimitPerMin = 600
	}
	if c.CollateralDecimals == 0 {
		c.CollateralDecimals = 18
	}
	if c.DebtDecimals == 0 {
		c.DebtDecimals = 18
	}
	if c.OracleDecimals == 0 {
		c.OracleDecimals = 8
	}
	if strings.TrimSpace(c.CollateralFactor) == "" {
		c.CollateralFactor = "750000000000000000"
	}
	if strings.TrimSpace(c.LiquidationThreshold) == "" {
		c.LiquidationThreshold = "800000000000000000"
	}
	if strings.TrimSpace(c.LiquidationBonus) == "" {
		c.LiquidationBonus = "1080000000000000000"
	}
	if strings.TrimSpace(c.InterestRatePerSecond) == "" {
		c.InterestRatePerSecond = "0"
	}
}

// Validate checks that every numeric parameter parses.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"CollateralFactor":      c.CollateralFactor,
		"LiquidationThreshold":  c.LiquidationThreshold,
		"LiquidationBonus":      c.LiquidationBonus,
		"InterestRatePerSecond": c.InterestRatePerSecond,
	} {
		if _, err := parseBig(value); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if strings.TrimSpace(c.AuthSecret) == "" {
		return fmt.Errorf("config: AuthSecret is required")
	}
	return nil
}

// BigParam returns a named WAD parameter as a big integer. Call Validate
// first; unparseable values yield zero here.
func (c *Config) BigParam(value string) *big.Int {
	parsed, err := parseBig(value)
	if err != nil {
		return big.NewInt(0)
	}
	return parsed
}

func parseBig(value string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative value %q", value)
	}
	return parsed, nil
}

// createDefault creates and saves a default configuration file. The auth
// secret is intentionally left blank so the daemon refuses to start until one
// is set.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, fmt.Errorf("config: wrote default config to %s; set AuthSecret and restart", path)
}
