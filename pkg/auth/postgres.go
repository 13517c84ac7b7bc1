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

package auth

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/voltmq/voltmq-go/pkg/metadata"
)

// PostgresConfig holds PostgreSQL ACL provider settings.
type PostgresConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Username        string        `json:"username" yaml:"username"`
	Password        string        `json:"password" yaml:"password"`
	Database        string        `json:"database" yaml:"database"`
	Table           string        `json:"table" yaml:"table"`
	SSLMode         string        `json:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `json:"query_timeout" yaml:"query_timeout"`
	CacheTTL        time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// DefaultPostgresConfig returns defaults matching a local PostgreSQL.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		Database:        "voltmq",
		Table:           "mqtt_acl",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    3 * time.Second,
		CacheTTL:        30 * time.Second,
	}
}

type cachedRules struct {
	rules   []ACLRule
	fetched time.Time
}

// PostgresAuthorizer is a subscribe ACL backed by a PostgreSQL table of
// (username, pattern, allow) rows. Rules are cached per user for a
// short TTL so a subscribe burst does not become a query burst.
type PostgresAuthorizer struct {
	cfg     PostgresConfig
	db      *sql.DB
	enabled bool

	mu    sync.RWMutex
	cache map[string]cachedRules
}

// NewPostgresAuthorizer opens the database connection pool and verifies
// connectivity.
func NewPostgresAuthorizer(cfg PostgresConfig) (*PostgresAuthorizer, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	log.Printf("[INFO] PostgreSQL ACL provider connected to %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return &PostgresAuthorizer{
		cfg:     cfg,
		db:      db,
		enabled: true,
		cache:   make(map[string]cachedRules),
	}, nil
}

// Name implements SubscribeAuthorizer.
func (p *PostgresAuthorizer) Name() string {
	return "postgres"
}

// Enabled implements SubscribeAuthorizer.
func (p *PostgresAuthorizer) Enabled() bool {
	return p.enabled
}

// Close releases the connection pool.
func (p *PostgresAuthorizer) Close() error {
	return p.db.Close()
}

// AuthorizeSubscribe implements SubscribeAuthorizer. A user with no
// rows is ignored; a query failure is reported as ResultError so the
// chain can fall through to another provider.
func (p *PostgresAuthorizer) AuthorizeSubscribe(user string, _ metadata.SubscriberID, subs []packets.Subscription) (Result, []packets.Subscription) {
	rules, err := p.rulesFor(user)
	if err != nil {
		log.Printf("[ERROR] PostgreSQL ACL query failed for user %s: %v", user, err)
		return ResultError, nil
	}
	if len(rules) == 0 {
		return ResultIgnore, nil
	}

	for _, sub := range subs {
		if !allowedBy(rules, sub.Filter) {
			return ResultFailure, nil
		}
	}
	return ResultSuccess, nil
}

func (p *PostgresAuthorizer) rulesFor(user string) ([]ACLRule, error) {
	p.mu.RLock()
	cached, ok := p.cache[user]
	p.mu.RUnlock()
	if ok && time.Since(cached.fetched) < p.cfg.CacheTTL {
		return cached.rules, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.QueryTimeout)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT pattern, allow FROM %s WHERE username = $1 ORDER BY id", p.cfg.Table)
	rows, err := p.db.QueryContext(ctx, query, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []ACLRule
	for rows.Next() {
		var r ACLRule
		if err := rows.Scan(&r.Pattern, &r.Allow); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[user] = cachedRules{rules: rules, fetched: time.Now()}
	p.mu.Unlock()
	return rules, nil
}
