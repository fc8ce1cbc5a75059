// Package config loads the agent configuration from a YAML file and fills
// in the defaults the mobile client ships with.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Servers holds the endpoint base URLs. Empty entries are derived from Base.
type Servers struct {
	// Base is the common server base, e.g. https://sistemadev.com.
	Base string `yaml:"base"`

	// ThreatIntelligence defaults to Base.
	ThreatIntelligence string `yaml:"threatIntelligence"`

	// Provisioning defaults to Base + "/provision".
	Provisioning string `yaml:"provisioning"`

	// VTap defaults to Base + "/vtap".
	VTap string `yaml:"vtap"`

	// PKI defaults to Base.
	PKI string `yaml:"pki"`

	// TMS defaults to Base.
	TMS string `yaml:"tms"`
}

// Identity holds the defaults for the TMS user-create payload.
type Identity struct {
	CustomerID  string `yaml:"customerId"`
	UserID      string `yaml:"userId"`
	CreatedUser string `yaml:"createdUser"`
	NRIC        string `yaml:"nric"`
	FirstName   string `yaml:"firstName"`
	LastName    string `yaml:"lastName"`
	Country     string `yaml:"country"`
}

// Config is the agent configuration.
type Config struct {
	Servers  Servers  `yaml:"servers"`
	Identity Identity `yaml:"identity"`

	// AssetDir is where the bundled firmware lives.
	AssetDir string `yaml:"assetDir"`

	// DownloadDir is passed to the token firmware-load call.
	DownloadDir string `yaml:"downloadDir"`

	// DataDir holds persisted device state such as the push token.
	DataDir string `yaml:"dataDir"`

	ListenAddr  string `yaml:"listenAddr"`
	MetricsAddr string `yaml:"metricsAddr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := defaults()
	cfg.applyDerived()
	return cfg
}

// defaults returns the base configuration before endpoint derivation, so a
// loaded file can override the base URL and still have the endpoints derive
// from it.
func defaults() *Config {
	return &Config{
		Servers: Servers{Base: "https://sistemadev.com"},
		Identity: Identity{
			CustomerID:  "7824",
			UserID:      "test@test.id",
			CreatedUser: "sistema_server",
			NRIC:        "ABC123",
			FirstName:   "Test",
			LastName:    "Sistema",
			Country:     "ID",
		},
		AssetDir:    "assets",
		DownloadDir: "download",
		DataDir:     "data",
		ListenAddr:  "127.0.0.1:8080",
		MetricsAddr: "127.0.0.1:8090",
	}
}

// Load reads a YAML config file and applies defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Servers.Base == "" {
		return nil, fmt.Errorf("config: servers.base is required")
	}
	cfg.applyDerived()
	return cfg, nil
}

func (c *Config) applyDerived() {
	if c.Servers.ThreatIntelligence == "" {
		c.Servers.ThreatIntelligence = c.Servers.Base
	}
	if c.Servers.Provisioning == "" {
		c.Servers.Provisioning = c.Servers.Base + "/provision"
	}
	if c.Servers.VTap == "" {
		c.Servers.VTap = c.Servers.Base + "/vtap"
	}
	if c.Servers.PKI == "" {
		c.Servers.PKI = c.Servers.Base
	}
	if c.Servers.TMS == "" {
		c.Servers.TMS = c.Servers.Base
	}
}
