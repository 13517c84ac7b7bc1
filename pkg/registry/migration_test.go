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

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltmq/voltmq-go/pkg/cluster"
	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/queue"
	"github.com/voltmq/voltmq-go/pkg/routing"
)

// startCluster runs two registries that share a replicated store mesh
// and an in-process cluster transport.
func startCluster(t *testing.T) (*Registry, *Registry) {
	t.Helper()
	mesh := metadata.NewMesh()
	storeA := metadata.NewMemStore("nodeA")
	storeB := metadata.NewMemStore("nodeB")
	mesh.Join(storeA)
	mesh.Join(storeB)

	inproc := cluster.NewInProc()
	newNode := func(name string, store *metadata.MemStore) *Registry {
		r := New(Options{
			Node:   name,
			Store:  store,
			Oracle: inproc,
			Leader: inproc.Leader(),
		})
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		require.NoError(t, r.Start(ctx))
		return r
	}
	return newNode("nodeA", storeA), newNode("nodeB", storeB)
}

func TestCrossNodeMigration(t *testing.T) {
	regA, regB := startCluster(t)
	id := metadata.SubscriberID{ClientID: "c5"}

	// The subscriber first lives on node B.
	sessB := &captureRef{}
	qB, err := regB.RegisterSession(context.Background(), sessB, id, RegisterOpts{})
	require.NoError(t, err)
	_, err = regB.Subscribe(false, "", id, oneSub("t", 1))
	require.NoError(t, err)
	waitRoute(t, regB, "", "t", 1)

	// It reconnects on node A: B's queue must migrate over.
	sessA := &captureRef{}
	qA, err := regA.RegisterSession(context.Background(), sessA, id, RegisterOpts{})
	require.NoError(t, err)
	assert.NotSame(t, qB, qA)

	// B's session table is purged by the migration-induced queue death.
	require.Eventually(t, func() bool {
		_, err := regB.GetQueue(id)
		return err == ErrNotFound
	}, time.Second, 5*time.Millisecond)

	// The migrated session reference now hangs off A's queue, next to
	// the fresh one.
	require.Eventually(t, func() bool { return len(qA.GetSessions()) == 2 }, time.Second, 5*time.Millisecond)

	// Every subscription tuple was remapped to node A, on both replicas.
	for _, r := range []*Registry{regA, regB} {
		require.Eventually(t, func() bool {
			set, err := r.store.Get(id)
			if err != nil || len(set) == 0 {
				return false
			}
			for _, sub := range set.Slice() {
				if sub.Node != "nodeA" {
					return false
				}
			}
			return true
		}, time.Second, 5*time.Millisecond, "store on %s", r.NodeID())
	}

	// A publish on node B reaches the queue's new home on node A.
	require.Eventually(t, func() bool {
		remote := false
		regB.view.Fold("", "t", func(tgt routing.Target) bool {
			remote = remote || tgt.Remote == "nodeA"
			return true
		})
		return remote
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, regB.Publish(false, queue.Message{Topic: "t", Payload: []byte("hello")}))
	require.Eventually(t, func() bool {
		return len(sessA.deliveries()) == 1 && len(sessB.deliveries()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "hello", string(sessA.deliveries()[0].Msg.Payload))
}

func TestMigrationCarriesBufferedMessages(t *testing.T) {
	regA, regB := startCluster(t)
	id := metadata.SubscriberID{ClientID: "c6"}

	// Queue on B with no session attached buffers a publish.
	_, err := regB.EnsureQueue(context.Background(), id)
	require.NoError(t, err)
	_, err = regB.Subscribe(false, "", id, oneSub("t", 1))
	require.NoError(t, err)
	waitRoute(t, regB, "", "t", 1)
	require.NoError(t, regB.Publish(false, queue.Message{Topic: "t", Payload: []byte("buffered")}))
	require.Eventually(t, func() bool { return regB.Stored(id) == 1 }, time.Second, 5*time.Millisecond)

	// Registration on A pulls the queue, buffer included.
	sessA := &captureRef{}
	_, err = regA.RegisterSession(context.Background(), sessA, id, RegisterOpts{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sessA.deliveries()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "buffered", string(sessA.deliveries()[0].Msg.Payload))
}

func TestRemotePublishFailureIsSwallowed(t *testing.T) {
	r := startRegistry(t, "node1")
	id := metadata.SubscriberID{ClientID: "far"}
	// A record owned by a node the oracle does not know.
	require.NoError(t, r.store.Put(id, metadata.NewSubscriptionSet(
		metadata.Subscription{Topic: "t", QoS: 0, Node: "vanished"},
	)))
	waitRoute(t, r, "", "t", 1)

	assert.NoError(t, r.Publish(false, queue.Message{Topic: "t", Payload: []byte("p")}),
		"remote failures are logged, not surfaced")
}
