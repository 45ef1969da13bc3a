package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const DefaultReplicationFactor = 2

type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

type ReplicationConfig struct {
	Factor int `json:"factor" yaml:"factor"`
}

type KubernetesDiscoveryConfig struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Service   string `json:"service" yaml:"service"`
	Port      int    `json:"port" yaml:"port"`
}

type DiscoveryConfig struct {
	// Mode selects the registry backend: "static" or "kubernetes".
	Mode       string                    `json:"mode" yaml:"mode"`
	Nodes      []string                  `json:"nodes" yaml:"nodes"`
	Kubernetes KubernetesDiscoveryConfig `json:"kubernetes" yaml:"kubernetes"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

type Config struct {
	Server      ServerConfig      `json:"server" yaml:"server"`
	Replication ReplicationConfig `json:"replication" yaml:"replication"`
	Discovery   DiscoveryConfig   `json:"discovery" yaml:"discovery"`
	Log         LogConfig         `json:"log" yaml:"log"`
}

// LoadConfig reads a JSON or YAML config file, the decoder chosen by
// extension, and applies defaults and validation.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var cfg Config
	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Replication.Factor < 1 {
		logrus.WithField("factor", c.Replication.Factor).
			Warn("invalid replication factor, defaulting to 2")
		c.Replication.Factor = DefaultReplicationFactor
	}
	if c.Discovery.Mode == "" {
		c.Discovery.Mode = "static"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
