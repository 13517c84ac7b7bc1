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

// package main is the entrypoint for a standalone voltmq registry node.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/voltmq/voltmq-go/pkg/admission"
	"github.com/voltmq/voltmq-go/pkg/auth"
	"github.com/voltmq/voltmq-go/pkg/config"
	"github.com/voltmq/voltmq-go/pkg/metrics"
	"github.com/voltmq/voltmq-go/pkg/registry"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	log.Println("Starting voltmq registry node...")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	nodeID := cfg.Registry.NodeID
	if nodeID == "" || nodeID == config.DefaultConfig().Registry.NodeID {
		if hostname, herr := os.Hostname(); herr == nil && hostname != "" {
			nodeID = hostname
		}
	}
	log.Printf("Node ID: %s", nodeID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := admission.NewGate()
	gate.Declare(registry.BucketSubscribe, cfg.Buckets.Subscribe)
	gate.Declare(registry.BucketDelete, cfg.Buckets.Delete)
	gate.Declare(registry.BucketRemap, cfg.Buckets.Remap)

	chain := auth.NewChain()
	if cfg.PostgresACL.Enabled {
		pgCfg := auth.DefaultPostgresConfig()
		pgCfg.Host = cfg.PostgresACL.Host
		pgCfg.Port = cfg.PostgresACL.Port
		pgCfg.Username = cfg.PostgresACL.Username
		pgCfg.Password = cfg.PostgresACL.Password
		pgCfg.Database = cfg.PostgresACL.Database
		pgCfg.Table = cfg.PostgresACL.Table
		pgCfg.SSLMode = cfg.PostgresACL.SSLMode
		pg, perr := auth.NewPostgresAuthorizer(pgCfg)
		if perr != nil {
			log.Fatalf("Failed to start PostgreSQL ACL provider: %v", perr)
		}
		defer pg.Close()
		chain.AddAuthorizer(pg)
	}

	reg := registry.New(registry.Options{
		Node:   nodeID,
		Config: cfg.Registry,
		Gate:   gate,
		Chain:  chain,
	})
	if err := reg.Start(ctx); err != nil {
		log.Fatalf("Failed to start registry: %v", err)
	}

	go metrics.Serve(cfg.MetricsPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %v, shutting down", sig)
	cancel()
}
