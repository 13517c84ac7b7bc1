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
	"github.com/google/uuid"

	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/routing"
)

// ClientStats summarizes the session table for operators.
type ClientStats struct {
	Total    int
	Active   int
	Inactive int
}

// Stats derives the operator counters: total rows, rows with a live
// queue watch (active) and detached rows (inactive).
func (r *Registry) Stats() ClientStats {
	var stats ClientStats
	r.table.Fold(func(row SessionRow) bool {
		stats.Total++
		if row.Token == uuid.Nil {
			stats.Inactive++
		} else {
			stats.Active++
		}
		return true
	})
	return stats
}

// TotalSessions returns the session-row count on this node.
func (r *Registry) TotalSessions() int {
	return r.table.Len()
}

// TotalSubscriptions returns the number of live records in the
// replicated subscription store.
func (r *Registry) TotalSubscriptions() int {
	return r.store.Size()
}

// TotalRetained returns the retained-store size.
func (r *Registry) TotalRetained() int {
	return r.retained.Size()
}

// Stored returns the buffered depth of the id's queue, or 0 when the id
// has no queue on this node.
func (r *Registry) Stored(id metadata.SubscriberID) int {
	q, err := r.table.GetQueue(id)
	if err != nil {
		return 0
	}
	return q.Status().Queued
}

// FoldSessions iterates the session table's rows.
func (r *Registry) FoldSessions(f func(row SessionRow) bool) {
	r.table.Fold(f)
}

// FoldSubscribers walks every subscription tuple in the store, yielding
// a local delivery target when the tuple is owned by this node and a
// remote forwarding target otherwise. The walk is a best-effort
// snapshot: concurrent writes may be missed or seen twice.
func (r *Registry) FoldSubscribers(f func(mountpoint, topic string, t routing.Target) bool) {
	r.store.Fold(func(id metadata.SubscriberID, set metadata.SubscriptionSet) bool {
		for _, sub := range set.Slice() {
			var t routing.Target
			if sub.Node == r.node {
				t = routing.Target{ID: id, QoS: sub.QoS}
			} else {
				t = routing.Target{Remote: sub.Node}
			}
			if !f(id.Mountpoint, sub.Topic, t) {
				return false
			}
		}
		return true
	})
}
