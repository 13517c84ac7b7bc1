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

package cluster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/queue"
)

type fakePeer struct {
	id string

	mu       sync.Mutex
	routed   []queue.Message
	migrated []metadata.SubscriberID
}

func (p *fakePeer) NodeID() string { return p.id }

func (p *fakePeer) RouteLocal(msg queue.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routed = append(p.routed, msg)
}

func (p *fakePeer) MigrateSessionTo(id metadata.SubscriberID, _ *queue.Queue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.migrated = append(p.migrated, id)
}

func TestInProcMembership(t *testing.T) {
	c := NewInProc()
	assert.True(t, c.IsReady())
	assert.Empty(t, c.Nodes())

	c.Join(&fakePeer{id: "a"})
	c.Join(&fakePeer{id: "b"})
	c.Join(&fakePeer{id: "a"}) // rejoin must not duplicate
	assert.Equal(t, []string{"a", "b"}, c.Nodes())

	c.SetReady(false)
	assert.False(t, c.IsReady())
}

func TestPublishToRemote(t *testing.T) {
	c := NewInProc()
	peer := &fakePeer{id: "b"}
	c.Join(peer)

	msg := queue.Message{Topic: "t", Payload: []byte("p")}
	require.NoError(t, c.PublishToRemote("b", msg))
	assert.Len(t, peer.routed, 1)

	assert.ErrorIs(t, c.PublishToRemote("ghost", msg), ErrNoSuchNode)
}

func TestMigrateSession(t *testing.T) {
	c := NewInProc()
	peer := &fakePeer{id: "b"}
	c.Join(peer)

	id := metadata.SubscriberID{ClientID: "c1"}
	require.NoError(t, c.MigrateSession(context.Background(), "b", id, nil))
	assert.Equal(t, []metadata.SubscriberID{id}, peer.migrated)

	assert.ErrorIs(t, c.MigrateSession(context.Background(), "ghost", id, nil), ErrNoSuchNode)
}

func TestKeyedLeaderSerializesPerID(t *testing.T) {
	l := NewKeyedLeader()
	id := metadata.SubscriberID{ClientID: "c1"}

	inside := 0
	maxInside := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.RegisterSubscriber(context.Background(), id, func(context.Context) (*queue.Queue, error) {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside, "register bodies for one id must not overlap")
}

func TestKeyedLeaderHonorsContext(t *testing.T) {
	l := NewKeyedLeader()
	id := metadata.SubscriberID{ClientID: "c1"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.RegisterSubscriber(ctx, id, func(context.Context) (*queue.Queue, error) {
		t.Fatal("register must not run with a dead context")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
