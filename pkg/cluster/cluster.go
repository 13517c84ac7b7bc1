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

// Package cluster defines the registry's view of the rest of the
// cluster: a membership oracle, a remote delivery path, and the leader
// that serializes subscriber registration. The in-process mesh
// implementation lets several registry instances form a cluster inside
// one process, which is how multi-node behavior is exercised in tests.
package cluster

import (
	"context"
	"errors"
	"sync"

	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/queue"
)

// ErrNoSuchNode is returned when a remote operation names an unknown peer.
var ErrNoSuchNode = errors.New("cluster: no such node")

// Peer is the surface a registry exposes to the rest of the cluster.
type Peer interface {
	// NodeID returns the peer's cluster-unique name.
	NodeID() string
	// RouteLocal delivers a message that was published on another node
	// to this node's matching local subscribers.
	RouteLocal(msg queue.Message)
	// MigrateSessionTo hands the local queue for id, if any, over to
	// target and tears the local queue down.
	MigrateSessionTo(id metadata.SubscriberID, target *queue.Queue)
}

// Oracle is the registry's cluster-membership and transport view.
type Oracle interface {
	// IsReady reports whether the cluster has settled enough for
	// consistency-favoring operations to proceed.
	IsReady() bool
	// Nodes lists every cluster member, including the local node.
	Nodes() []string
	// PublishToRemote forwards a published message to a peer that has
	// matching subscribers.
	PublishToRemote(node string, msg queue.Message) error
	// MigrateSession asks a peer to hand its queue for id over to
	// target. A peer without a queue for id treats this as a no-op.
	MigrateSession(ctx context.Context, node string, id metadata.SubscriberID, target *queue.Queue) error
}

// RegisterLeader serializes subscriber registration cluster-wide: for a
// given id, at most one register closure runs at a time.
type RegisterLeader interface {
	RegisterSubscriber(ctx context.Context, id metadata.SubscriberID,
		register func(ctx context.Context) (*queue.Queue, error)) (*queue.Queue, error)
}

// InProc is an in-process cluster: peers join it, and every peer sees
// the same membership, readiness flag and keyed registration leader.
type InProc struct {
	mu     sync.RWMutex
	peers  map[string]Peer
	order  []string
	ready  bool
	leader *KeyedLeader
}

// NewInProc creates an empty, ready in-process cluster.
func NewInProc() *InProc {
	return &InProc{
		peers:  make(map[string]Peer),
		ready:  true,
		leader: NewKeyedLeader(),
	}
}

// Join adds a peer to the mesh.
func (c *InProc) Join(p Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.peers[p.NodeID()]; !exists {
		c.order = append(c.order, p.NodeID())
	}
	c.peers[p.NodeID()] = p
}

// SetReady flips the readiness flag, letting tests model a cluster that
// has not settled.
func (c *InProc) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// Leader returns the mesh-wide registration serializer.
func (c *InProc) Leader() RegisterLeader {
	return c.leader
}

// IsReady implements Oracle.
func (c *InProc) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Nodes implements Oracle.
func (c *InProc) Nodes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	nodes := make([]string, len(c.order))
	copy(nodes, c.order)
	return nodes
}

// PublishToRemote implements Oracle.
func (c *InProc) PublishToRemote(node string, msg queue.Message) error {
	c.mu.RLock()
	p, ok := c.peers[node]
	c.mu.RUnlock()
	if !ok {
		return ErrNoSuchNode
	}
	p.RouteLocal(msg)
	return nil
}

// MigrateSession implements Oracle.
func (c *InProc) MigrateSession(ctx context.Context, node string, id metadata.SubscriberID, target *queue.Queue) error {
	c.mu.RLock()
	p, ok := c.peers[node]
	c.mu.RUnlock()
	if !ok {
		return ErrNoSuchNode
	}
	done := make(chan struct{})
	go func() {
		p.MigrateSessionTo(id, target)
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
