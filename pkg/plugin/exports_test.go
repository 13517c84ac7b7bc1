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

package plugin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltmq/voltmq-go/pkg/queue"
	"github.com/voltmq/voltmq-go/pkg/registry"
)

func startRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New(registry.Options{Node: "node1"})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, r.Start(ctx))
	return r
}

func TestExportsStableID(t *testing.T) {
	r := startRegistry(t)
	e1 := NewExports(r, "bridge", nil)
	e2 := NewExports(r, "bridge", nil)
	e3 := NewExports(r, "other", nil)

	assert.Equal(t, e1.ID(), e2.ID(), "the synthetic id is stable per plugin name")
	assert.NotEqual(t, e1.ID(), e3.ID())
}

func TestExportsRoundTrip(t *testing.T) {
	r := startRegistry(t)

	var mu sync.Mutex
	var got []queue.Delivery
	e := NewExports(r, "bridge", func(d queue.Delivery) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, d)
	})
	defer e.Close()

	require.NoError(t, e.Register(context.Background()))

	// A retained message published before the subscription replays to
	// the synthetic session as soon as it subscribes.
	require.NoError(t, e.Publish(false, queue.Message{
		Topic: "plugin/in", Payload: []byte("seed"), QoS: 1, Retain: true,
	}))

	effective, err := e.Subscribe(false, []packets.Subscription{{Filter: "plugin/in", Qos: 1}})
	require.NoError(t, err)
	require.Len(t, effective, 1)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "seed", string(got[0].Msg.Payload))
	assert.True(t, got[0].Msg.Retain)
	mu.Unlock()

	// Live publishes flow once the routing view has caught up; the
	// registry is at-most-once, so retry until one lands.
	require.Eventually(t, func() bool {
		require.NoError(t, e.Publish(false, queue.Message{
			Topic: "plugin/in", Payload: []byte("ping"), QoS: 1,
		}))
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "ping", string(got[len(got)-1].Msg.Payload))
	mu.Unlock()

	require.NoError(t, e.Unsubscribe(false, []string{"plugin/in"}))
}
