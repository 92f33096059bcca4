package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/courierlabs/messaging-test-harness/isolation"
)

// SuiteConfig is the YAML configuration for one suite run. The port and
// namespace are fixed for the whole suite: the port is reserved so only one
// suite instance can run on a host, and the namespace outlives every test.
type SuiteConfig struct {
	Port      int    `yaml:"port"`
	StorePath string `yaml:"storePath"`

	// Namespace marks every record the suite creates. Generated fresh when
	// left empty; if set, it must carry the reserved test marker.
	Namespace string `yaml:"namespace"`

	// ReservedNamespaces lists markers other suites on this host use, so
	// that overlap can be rejected before any data is touched.
	ReservedNamespaces []string `yaml:"reservedNamespaces"`

	Fixtures isolation.Fixtures `yaml:"fixtures"`
}

func defaultConfig() SuiteConfig {
	return SuiteConfig{
		Port:      defaultPort,
		StorePath: "harness.db",
	}
}

func loadConfig(path string) (SuiteConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "harness.db"
	}
	return cfg, nil
}

func (c SuiteConfig) namespaces() (own isolation.Namespace, reserved []isolation.Namespace) {
	if c.Namespace == "" {
		own = isolation.NewNamespace()
	} else {
		own = isolation.Namespace(c.Namespace)
	}
	for _, ns := range c.ReservedNamespaces {
		reserved = append(reserved, isolation.Namespace(ns))
	}
	return own, reserved
}
