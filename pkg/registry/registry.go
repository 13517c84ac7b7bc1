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

// Package registry is the core of the broker: it maps subscriber ids to
// the process holding their message queue, maintains the cluster-wide
// subscription table that routes published messages, and coordinates
// session handover when a subscriber reconnects on a different node.
package registry

import (
	"context"

	"github.com/voltmq/voltmq-go/pkg/admission"
	"github.com/voltmq/voltmq-go/pkg/auth"
	"github.com/voltmq/voltmq-go/pkg/cluster"
	"github.com/voltmq/voltmq-go/pkg/config"
	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/queue"
	"github.com/voltmq/voltmq-go/pkg/retained"
	"github.com/voltmq/voltmq-go/pkg/routing"
	"github.com/voltmq/voltmq-go/pkg/supervisor"
)

// Admission bucket names used by the registry.
const (
	BucketSubscribe = "registry_subscribe"
	BucketDelete    = "registry_delete"
	BucketRemap     = "registry_remap"
)

// Options wires a registry together. Zero-valued fields fall back to
// node-local defaults, so a bare Options{Node: "n1"} yields a working
// standalone registry.
type Options struct {
	// Node is this node's cluster-unique name.
	Node string
	// Config tunes queue bounds and registration defaults.
	Config config.RegistryConfig
	// Gate guards metadata mutations. Defaults to an unlimited gate.
	Gate *admission.Gate
	// Store is the replicated subscription store. Defaults to a
	// standalone in-memory store.
	Store metadata.Store
	// Retained is the retained-message store.
	Retained *retained.Store
	// View is the routing view. Defaults to a trie over Store.
	View routing.View
	// Oracle is the cluster membership and transport view. Defaults to
	// a single-node in-process cluster.
	Oracle cluster.Oracle
	// Leader serializes registration per subscriber id.
	Leader cluster.RegisterLeader
	// Chain holds the authorization and event hooks.
	Chain *auth.Chain
}

// Registry implements the registry core. It also implements
// cluster.Peer, which is the surface other nodes reach it through.
type Registry struct {
	node     string
	cfg      config.RegistryConfig
	gate     *admission.Gate
	store    metadata.Store
	retained *retained.Store
	view     routing.View
	oracle   cluster.Oracle
	leader   cluster.RegisterLeader
	chain    *auth.Chain
	table    *SessionTable
	coord    *Coordinator
	sup      supervisor.Supervisor
	locks    keyLock
}

// New assembles a registry from opts.
func New(opts Options) *Registry {
	cfg := opts.Config
	if cfg.NodeID == "" {
		cfg = config.DefaultConfig().Registry
		cfg.NodeID = opts.Node
	}
	if cfg.MigrationTimeout <= 0 {
		cfg.MigrationTimeout = config.DefaultConfig().Registry.MigrationTimeout
	}

	gate := opts.Gate
	if gate == nil {
		gate = admission.NewGate()
	}

	store := opts.Store
	if store == nil {
		store = metadata.NewMemStore(opts.Node)
	}

	ret := opts.Retained
	if ret == nil {
		ret = retained.NewStore()
	}

	view := opts.View
	if view == nil {
		view = routing.NewTrieView(opts.Node, store)
	}

	oracle := opts.Oracle
	leader := opts.Leader
	if oracle == nil {
		standalone := cluster.NewInProc()
		oracle = standalone
		if leader == nil {
			leader = standalone.Leader()
		}
	}
	if leader == nil {
		leader = cluster.NewKeyedLeader()
	}

	chain := opts.Chain
	if chain == nil {
		chain = auth.NewChain()
	}

	table := NewSessionTable()
	r := &Registry{
		node:     opts.Node,
		cfg:      cfg,
		gate:     gate,
		store:    store,
		retained: ret,
		view:     view,
		oracle:   oracle,
		leader:   leader,
		chain:    chain,
		table:    table,
		coord: NewCoordinator(opts.Node, table, queue.Options{
			MaxQueued: cfg.MaxQueuedMessages,
			Mode:      queue.DeliverFanout,
		}),
		sup: supervisor.NewOneForOneSupervisor(),
	}
	if inproc, ok := oracle.(*cluster.InProc); ok {
		inproc.Join(r)
	}
	return r
}

// Start launches the registry coordinator under supervision. It returns
// immediately; the registry serves until ctx ends.
func (r *Registry) Start(ctx context.Context) error {
	return r.sup.Start(ctx, []supervisor.Spec{{
		ID:      "registry-coordinator-" + r.node,
		Actor:   r.coord,
		Restart: supervisor.RestartPermanent,
		Mailbox: r.coord.Mailbox(),
	}})
}

// NodeID implements cluster.Peer.
func (r *Registry) NodeID() string {
	return r.node
}

// GetQueue returns the local queue handle for id, or ErrNotFound.
func (r *Registry) GetQueue(id metadata.SubscriberID) (*queue.Queue, error) {
	return r.table.GetQueue(id)
}

// EnsureQueue returns the queue handle for id, starting one when the id
// has no row yet.
func (r *Registry) EnsureQueue(ctx context.Context, id metadata.SubscriberID) (*queue.Queue, error) {
	return r.coord.EnsureQueue(ctx, id)
}

// readyFor gates consistency-favoring operations on cluster readiness.
func (r *Registry) readyFor(tradeConsistency bool) error {
	if tradeConsistency {
		return nil
	}
	if !r.oracle.IsReady() {
		return ErrNotReady
	}
	return nil
}
