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
	"hash/fnv"
	"sync"

	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/queue"
)

const numLeaderShards = 128

// KeyedLeader serializes registration per subscriber id using sharded
// mutexes. Registrations for different ids are unlikely to contend.
// Within one process (or one in-process mesh) this gives the
// cluster-wide mutual exclusion the registration path requires.
type KeyedLeader struct {
	shards [numLeaderShards]sync.Mutex
}

// NewKeyedLeader creates a leader.
func NewKeyedLeader() *KeyedLeader {
	return &KeyedLeader{}
}

// RegisterSubscriber implements RegisterLeader.
func (l *KeyedLeader) RegisterSubscriber(ctx context.Context, id metadata.SubscriberID,
	register func(ctx context.Context) (*queue.Queue, error)) (*queue.Queue, error) {
	i := l.index(id.String())
	l.shards[i].Lock()
	defer l.shards[i].Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return register(ctx)
}

func (l *KeyedLeader) index(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % numLeaderShards
}
