package config

// Log controls the structured logger.
type Log struct {
	Level  string `toml:"Level"`
	Format string `toml:"Format"`
	// File enables a rotated log file in addition to stdout.
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry describes the OTLP/HTTP exporters.
type Telemetry struct {
	Endpoint string            `toml:"Endpoint"`
	Insecure bool              `toml:"Insecure"`
	Headers  map[string]string `toml:"Headers"`
	Traces   bool              `toml:"Traces"`
	Metrics  bool              `toml:"Metrics"`
}

// Enabled reports whether any exporter is switched on.
func (t Telemetry) Enabled() bool {
	return t.Traces || t.Metrics
}

// Dex carries the exchange parameters applied at genesis.
type Dex struct {
	HubAsset           string `toml:"HubAsset"`
	BuybackAsset       string `toml:"BuybackAsset"`
	Manager            string `toml:"Manager"`
	Custody            string `toml:"Custody"`
	ProtocolFeeBps     uint64 `toml:"ProtocolFeeBps"`
	TakerFeeBps        uint64 `toml:"TakerFeeBps"`
	MakerFeeBps        uint64 `toml:"MakerFeeBps"`
	UnbondingSeconds   uint64 `toml:"UnbondingSeconds"`
	ClaimWindowSeconds uint64 `toml:"ClaimWindowSeconds"`
	AutoDistribute     bool   `toml:"AutoDistribute"`
	Paused             bool   `toml:"Paused"`
}

// Journal points at the SQL event journal. An empty DSN disables it.
type Journal struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Enabled reports whether a journal database is configured.
func (j Journal) Enabled() bool {
	return j.DSN != ""
}
