// Package config loads the client and pod settings file.
//
// Example:
//
//	actor: https://pod.example/alice
//	pod_url: https://pod.example
//	sources:
//	  - https://pod.example
//	  - https://other.example
//	database: ~/.graffiti/local.db
//	token_secret: change-me
//	token_ttl: 24h
//	listen: :8080
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/graffiti-garden/implementation-federated/internal/auth"
	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// Defaults for settings left out of the file.
const (
	DefaultDatabase = "graffiti.db"
	DefaultListen   = ":8080"
)

// Config holds every setting the CLI and pod read.
type Config struct {
	// Actor is the identity the CLI acts as. A network address makes the
	// session remote-capable once a token secret is known.
	Actor string `yaml:"actor"`

	// PodURL is the actor's home pod, where writes without an explicit
	// source go.
	PodURL string `yaml:"pod_url"`

	// Sources is the default discovery federation.
	Sources []string `yaml:"sources"`

	// Database is the SQLite file of the local store (client) or the object
	// store (pod).
	Database string `yaml:"database"`

	// TokenSecret signs and verifies session tokens.
	TokenSecret string `yaml:"token_secret"`

	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration `yaml:"token_ttl"`

	// Listen is the pod's listen address.
	Listen string `yaml:"listen"`
}

// Default returns a configuration for an anonymous, local-only client.
func Default() *Config {
	return &Config{
		Database: DefaultDatabase,
		TokenTTL: auth.DefaultTTL,
		Listen:   DefaultListen,
	}
}

// Load reads the YAML file at path over Default. An empty path yields the
// defaults. Unknown keys are rejected so typos surface early.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings are usable together.
func (c *Config) Validate() error {
	if c.Database == "" {
		return errors.New("database must not be empty")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive, got %s", c.TokenTTL)
	}
	if c.PodURL != "" && !graffiti.IsNetworkAddress(c.PodURL) {
		return fmt.Errorf("pod_url %q is not a network address", c.PodURL)
	}
	for i, src := range c.Sources {
		if !graffiti.IsNetworkAddress(src) {
			return fmt.Errorf("sources[%d]: %q is not a network address", i, src)
		}
	}
	if c.PodURL != "" && c.Actor == "" {
		return errors.New("pod_url requires an actor")
	}
	return nil
}

// RemoteCapable reports whether sessions built from c can reach pods.
func (c *Config) RemoteCapable() bool {
	return c.TokenSecret != "" && graffiti.IsNetworkAddress(c.Actor)
}
