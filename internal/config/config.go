// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "pollsync.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultRPCEndpoint    = "http://127.0.0.1:8899"
	DefaultCommitment     = "confirmed"
	DefaultKeyStore       = KeyStoreBadger
	DefaultConfirmTimeout = "30s"
	DefaultPollDuration   = "24h"
	DefaultMetricsPort    = 12799
)

// KeyStore backends for the signing identity
const (
	KeyStoreBadger = "badger"
	KeyStoreSqlite = "sqlite"
	KeyStoreMemory = "memory"
)

var ErrInvalidConfig = errors.New("invalid config")

var validCommitments = []string{"processed", "confirmed", "finalized"}

type Config struct {
	RPCEndpoint    string `yaml:"rpcEndpoint" envconfig:"rpc_endpoint"`
	Commitment     string `yaml:"commitment" split_words:"true"`
	ProgramID      string `yaml:"programId" envconfig:"program_id"`
	IdlPath        string `yaml:"idlPath" split_words:"true"`
	KeyStore       string `yaml:"keyStore" split_words:"true"`
	DataDir        string `yaml:"dataDir" split_words:"true"`
	IdentityKey    string `yaml:"identityKey" split_words:"true"`
	ConfirmTimeout string `yaml:"confirmTimeout" split_words:"true"`
	PollDuration   string `yaml:"pollDuration" split_words:"true"`
	SkipSimulation bool   `yaml:"skipSimulation" split_words:"true"`
	MetricsPort    uint   `yaml:"metricsPort" split_words:"true"`
	Tracing        bool   `yaml:"tracing"`
	TracingStdout  bool   `yaml:"tracingStdout" split_words:"true"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	dataDir := ".pollsync"
	if homeDir, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(homeDir, ".pollsync", "data")
	}
	return &Config{
		RPCEndpoint:    DefaultRPCEndpoint,
		Commitment:     DefaultCommitment,
		KeyStore:       DefaultKeyStore,
		DataDir:        dataDir,
		ConfirmTimeout: DefaultConfirmTimeout,
		PollDuration:   DefaultPollDuration,
		MetricsPort:    DefaultMetricsPort,
	}
}

// searchPaths lists the config files tried when none is given
func searchPaths() []string {
	var ret []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		ret = append(ret, filepath.Join(homeDir, ".pollsync", "pollsync.yaml"))
	}
	return append(ret, "/etc/pollsync/pollsync.yaml")
}

// LoadConfig builds the config from the defaults, the YAML file (if any)
// and then the environment
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		for _, path := range searchPaths() {
			if _, err := os.Stat(path); err == nil {
				configFile = path
				break
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process("pollsync", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.RPCEndpoint == "" {
		return fmt.Errorf("%w: rpcEndpoint is required", ErrInvalidConfig)
	}
	if !slices.Contains(validCommitments, c.Commitment) {
		return fmt.Errorf(
			"%w: commitment %q must be one of %v",
			ErrInvalidConfig,
			c.Commitment,
			validCommitments,
		)
	}
	switch c.KeyStore {
	case KeyStoreBadger, KeyStoreSqlite, KeyStoreMemory:
	default:
		return fmt.Errorf(
			"%w: keyStore %q must be 'badger', 'sqlite' or 'memory'",
			ErrInvalidConfig,
			c.KeyStore,
		)
	}
	if _, err := c.ConfirmTimeoutDuration(); err != nil {
		return err
	}
	pollDuration, err := c.PollDurationValue()
	if err != nil {
		return err
	}
	if pollDuration < time.Second {
		return fmt.Errorf(
			"%w: pollDuration must be at least 1s",
			ErrInvalidConfig,
		)
	}
	return nil
}

func (c *Config) ConfirmTimeoutDuration() (time.Duration, error) {
	return parseDuration("confirmTimeout", c.ConfirmTimeout)
}

func (c *Config) PollDurationValue() (time.Duration, error) {
	return parseDuration("pollDuration", c.PollDuration)
}

func parseDuration(name string, value string) (time.Duration, error) {
	ret, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	if ret < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
	}
	return ret, nil
}
