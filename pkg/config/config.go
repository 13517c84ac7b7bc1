// Copyright 2024 The voltmq-go Authors
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

// Package config provides configuration management for the registry:
// node identity, admission bucket sizing, queue bounds and the
// registration-time defaults.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/voltmq/voltmq-go/pkg/admission"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// RegistryConfig holds the registry core settings.
type RegistryConfig struct {
	// NodeID identifies this node in subscription records.
	NodeID string `yaml:"node_id" json:"node_id"`
	// TradeConsistency is the configured value of the flag that lets
	// subscribe/unsubscribe/publish skip the cluster-readiness check. The
	// registry does not read it: those operations take the flag as an
	// argument on every call.
	TradeConsistency bool `yaml:"trade_consistency" json:"trade_consistency"`
	// MaxQueuedMessages bounds each subscriber queue.
	MaxQueuedMessages int `yaml:"max_queued_messages" json:"max_queued_messages"`
	// AllowMultipleSessions is the configured value of the shared-queue
	// registration flag. The registry does not read it; RegisterSession
	// takes the flag in its RegisterOpts.
	AllowMultipleSessions bool `yaml:"allow_multiple_sessions" json:"allow_multiple_sessions"`
	// BalanceSessions is the configured value of the balanced-delivery
	// registration flag. The registry does not read it; RegisterSession
	// takes the flag in its RegisterOpts.
	BalanceSessions bool `yaml:"balance_sessions" json:"balance_sessions"`
	// MigrationTimeout caps each per-node RPC during queue handover.
	MigrationTimeout time.Duration `yaml:"migration_timeout" json:"migration_timeout"`
}

// MetadataBuckets sizes the admission buckets in front of the metadata store.
type MetadataBuckets struct {
	Subscribe admission.BucketConfig `yaml:"subscribe" json:"subscribe"`
	Delete    admission.BucketConfig `yaml:"delete" json:"delete"`
	Remap     admission.BucketConfig `yaml:"remap" json:"remap"`
}

// PostgresACLConfig configures the optional PostgreSQL subscribe-ACL provider.
type PostgresACLConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
	Table    string `yaml:"table" json:"table"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode"`
}

// Config holds the complete configuration.
type Config struct {
	Registry    RegistryConfig    `yaml:"registry" json:"registry"`
	Buckets     MetadataBuckets   `yaml:"buckets" json:"buckets"`
	PostgresACL PostgresACLConfig `yaml:"postgres_acl" json:"postgres_acl"`
	MetricsPort string            `yaml:"metrics_port" json:"metrics_port"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			NodeID:            "voltmq-node",
			TradeConsistency:  false,
			MaxQueuedMessages: 1000,
			MigrationTimeout:  5 * time.Second,
		},
		Buckets: MetadataBuckets{
			Subscribe: admission.DefaultBucketConfig(),
			Delete:    admission.DefaultBucketConfig(),
			Remap:     admission.DefaultBucketConfig(),
		},
		PostgresACL: PostgresACLConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    5432,
			Table:   "mqtt_acl",
			SSLMode: "disable",
		},
		MetricsPort: ":8082",
	}
}

// LoadConfig loads configuration from a file. An empty path yields the
// default configuration.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		log.Println("[INFO] No config file specified, using default configuration")
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("[INFO] Loaded configuration from %s", configPath)
	return cfg, nil
}

// Validate checks the loaded values for internal consistency.
func (c *Config) Validate() error {
	if c.Registry.NodeID == "" {
		return fmt.Errorf("%w: node_id must not be empty", ErrInvalidConfig)
	}
	if c.Registry.MaxQueuedMessages < 0 {
		return fmt.Errorf("%w: max_queued_messages must be >= 0, got %d",
			ErrInvalidConfig, c.Registry.MaxQueuedMessages)
	}
	if c.Registry.MigrationTimeout <= 0 {
		return fmt.Errorf("%w: migration_timeout must be positive", ErrInvalidConfig)
	}
	for name, b := range map[string]admission.BucketConfig{
		"subscribe": c.Buckets.Subscribe,
		"delete":    c.Buckets.Delete,
		"remap":     c.Buckets.Remap,
	} {
		if b.Size <= 0 || b.Rate <= 0 {
			return fmt.Errorf("%w: bucket %s must have positive size and rate", ErrInvalidConfig, name)
		}
	}
	return nil
}
