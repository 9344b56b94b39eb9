// Package config reads the gateway configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway configuration. Durations are written as Go
// duration strings ("10s").
type Config struct {
	Schema    SchemaConfig             `yaml:"schema"`
	Server    ServerConfig             `yaml:"server"`
	Engine    EngineConfig             `yaml:"engine"`
	Transport TransportConfig          `yaml:"transport"`
	Services  map[string]ServiceConfig `yaml:"services"`
	Otel      OtelConfig               `yaml:"otel"`
	Metrics   MetricsConfig            `yaml:"metrics"`
	Log       LogConfig                `yaml:"log"`
}

type SchemaConfig struct {
	// Root is the directory holding <service>.graphql and
	// <service>.underlying.graphql files.
	Root string `yaml:"root"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Pretty          bool          `yaml:"pretty"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
	MetadataHeaders []string      `yaml:"metadataHeaders"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	GraphiQL        bool          `yaml:"graphiql"`
}

type EngineConfig struct {
	GracePeriod       time.Duration `yaml:"gracePeriod"`
	DocumentCacheSize int           `yaml:"documentCacheSize"`
}

type TransportConfig struct {
	GRPC GRPCConfig `yaml:"grpc"`
	HTTP HTTPConfig `yaml:"http"`
}

type GRPCConfig struct {
	MaxConnsPerEndpoint int           `yaml:"maxConnsPerEndpoint"`
	RPCTimeout          time.Duration `yaml:"rpcTimeout"`
	ForwardMetadata     bool          `yaml:"forwardMetadata"`
}

type HTTPConfig struct {
	Timeout         time.Duration     `yaml:"timeout"`
	ForwardMetadata bool              `yaml:"forwardMetadata"`
	Headers         map[string]string `yaml:"headers"`
}

// ServiceConfig says how to reach one service. Exactly one of GRPC and
// URL is set.
type ServiceConfig struct {
	// GRPC lists endpoints of a service speaking the gRPC envelope.
	GRPC []string `yaml:"grpc"`
	// URL is the GraphQL-over-HTTP endpoint of the service.
	URL string `yaml:"url"`
}

type OtelConfig struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

type MetricsConfig struct {
	// Path serves Prometheus metrics on the server address. Empty disables.
	Path string `yaml:"path"`
}

type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Schema: SchemaConfig{Root: "."},
		Server: ServerConfig{
			Addr:     ":8080",
			Timeout:  10 * time.Second,
			GraphiQL: true,
		},
		Engine: EngineConfig{
			GracePeriod:       60 * time.Second,
			DocumentCacheSize: 1024,
		},
		Transport: TransportConfig{
			GRPC: GRPCConfig{MaxConnsPerEndpoint: 2, RPCTimeout: 3 * time.Second},
			HTTP: HTTPConfig{Timeout: 3 * time.Second},
		},
		Services: map[string]ServiceConfig{},
		Otel:     OtelConfig{Service: "nadel"},
		Metrics:  MetricsConfig{Path: "/metrics"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. A relative schema root is resolved
// against the directory of path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(cfg.Schema.Root) {
		cfg.Schema.Root = filepath.Join(filepath.Dir(path), cfg.Schema.Root)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Services == nil {
		cfg.Services = map[string]ServiceConfig{}
	}
	return cfg, nil
}

// Validate checks that every named service has exactly one transport.
func (c *Config) Validate(services []string) error {
	var errs []error
	for _, name := range services {
		sc, ok := c.Services[name]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("service %q has no transport configured", name))
		case len(sc.GRPC) > 0 && sc.URL != "":
			errs = append(errs, fmt.Errorf("service %q configures both grpc and url", name))
		case len(sc.GRPC) == 0 && sc.URL == "":
			errs = append(errs, fmt.Errorf("service %q configures neither grpc nor url", name))
		}
	}
	known := make(map[string]bool, len(services))
	for _, name := range services {
		known[name] = true
	}
	var unknown []string
	for name := range c.Services {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		errs = append(errs, fmt.Errorf("service %q is configured but has no schema", name))
	}
	return errors.Join(errs...)
}
