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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/queue"
)

// SessionRow is one live session entry. The table keeps a bag of rows
// per subscriber id to represent shared-queue sessions; the queue
// handle is identical across all rows of a key.
type SessionRow struct {
	ID       metadata.SubscriberID
	Queue    *queue.Queue
	Token    uuid.UUID
	LastSeen int64
	Balance  bool
	Clean    bool
}

// SessionTable is the node-local map from subscriber id to live session
// rows. Reads are served from any goroutine under a read lock; all
// mutation goes through the registry coordinator, which is the table's
// only writer.
type SessionTable struct {
	mu   sync.RWMutex
	rows map[metadata.SubscriberID][]*SessionRow
}

// NewSessionTable creates an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{rows: make(map[metadata.SubscriberID][]*SessionRow)}
}

// GetQueue returns the queue handle for id, or ErrNotFound when the id
// has no row on this node.
func (t *SessionTable) GetQueue(id metadata.SubscriberID) (*queue.Queue, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := t.rows[id]
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0].Queue, nil
}

// insert adds a row. Coordinator only.
func (t *SessionTable) insert(row *SessionRow) {
	row.LastSeen = time.Now().Unix()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[row.ID] = append(t.rows[row.ID], row)
}

// removeDead deletes every row whose queue and liveness token both
// match the death notification. A row rebound to a fresh queue keeps a
// different token and survives stale notifications. Coordinator only.
func (t *SessionTable) removeDead(q *queue.Queue, token uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, rows := range t.rows {
		kept := rows[:0]
		for _, row := range rows {
			if row.Queue == q && row.Token == token {
				removed++
				continue
			}
			kept = append(kept, row)
		}
		if len(kept) == 0 {
			delete(t.rows, id)
		} else {
			t.rows[id] = kept
		}
	}
	return removed
}

// touch refreshes LastSeen on every row of id. Coordinator only.
func (t *SessionTable) touch(id metadata.SubscriberID) {
	now := time.Now().Unix()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, row := range t.rows[id] {
		row.LastSeen = now
	}
}

// Len returns the total row count.
func (t *SessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, rows := range t.rows {
		n += len(rows)
	}
	return n
}

// Fold iterates a snapshot of the table's rows. Returning false stops
// the fold.
func (t *SessionTable) Fold(f func(row SessionRow) bool) {
	t.mu.RLock()
	snapshot := make([]SessionRow, 0, len(t.rows))
	for _, rows := range t.rows {
		for _, row := range rows {
			snapshot = append(snapshot, *row)
		}
	}
	t.mu.RUnlock()

	for _, row := range snapshot {
		if !f(row) {
			return
		}
	}
}
