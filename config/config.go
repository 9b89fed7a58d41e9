package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"earthexchange/native/dex"
)

type Config struct {
	DataDir     string    `toml:"DataDir"`
	Environment string    `toml:"Environment"`
	Log         Log       `toml:"log"`
	Telemetry   Telemetry `toml:"telemetry"`
	Dex         Dex       `toml:"dex"`
	Journal     Journal   `toml:"journal"`
}

// Default returns the configuration written on first start.
func Default() *Config {
	params := dex.DefaultParams()
	return &Config{
		DataDir:     "./earth-data",
		Environment: "local",
		Log: Log{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
			Insecure: true,
			Headers:  map[string]string{},
		},
		Dex: Dex{
			HubAsset:           "erth",
			BuybackAsset:       "anml",
			Manager:            "earth-governance",
			Custody:            "earth-exchange",
			ProtocolFeeBps:     params.ProtocolFeeBps,
			TakerFeeBps:        params.TakerFeeBps,
			MakerFeeBps:        params.MakerFeeBps,
			UnbondingSeconds:   params.UnbondingSeconds,
			ClaimWindowSeconds: params.ClaimWindowSeconds,
			AutoDistribute:     params.AutoDistribute,
		},
		Journal: Journal{Driver: "sqlite"},
	}
}

// Load loads the configuration from the given path, writing the defaults when
// the file does not exist yet. Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.Telemetry.Headers == nil {
		cfg.Telemetry.Headers = map[string]string{}
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.Journal.DSN = strings.TrimSpace(cfg.Journal.DSN)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DexParams converts the [dex] table into engine parameters.
func (c *Config) DexParams() (dex.Params, error) {
	p := dex.Params{
		HubAsset:           strings.TrimSpace(c.Dex.HubAsset),
		BuybackAsset:       strings.TrimSpace(c.Dex.BuybackAsset),
		Manager:            strings.TrimSpace(c.Dex.Manager),
		Custody:            strings.TrimSpace(c.Dex.Custody),
		ProtocolFeeBps:     c.Dex.ProtocolFeeBps,
		TakerFeeBps:        c.Dex.TakerFeeBps,
		MakerFeeBps:        c.Dex.MakerFeeBps,
		UnbondingSeconds:   c.Dex.UnbondingSeconds,
		ClaimWindowSeconds: c.Dex.ClaimWindowSeconds,
		AutoDistribute:     c.Dex.AutoDistribute,
		Paused:             c.Dex.Paused,
	}
	return p, p.Validate()
}

// LedgerPath is where the LevelDB ledger lives inside DataDir.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger")
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
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
