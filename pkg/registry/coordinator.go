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
	"log"

	"github.com/google/uuid"

	"github.com/voltmq/voltmq-go/pkg/actor"
	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/queue"
)

type ensureQueueReq struct {
	id    metadata.SubscriberID
	reply chan *queue.Queue
}

type queueDown struct {
	token uuid.UUID
	q     *queue.Queue
}

// Coordinator is the single writer of the session table. It serves
// requests strictly in arrival order, which makes EnsureQueue
// single-flight per subscriber id without per-key locking, and it is
// the only component reacting to queue-death notifications.
type Coordinator struct {
	node  string
	table *SessionTable
	opts  queue.Options
	mb    *actor.Mailbox

	// ctx is the coordinator's run context; queues started by
	// EnsureQueue are children of it.
	ctx context.Context
}

// NewCoordinator creates a coordinator writing to table. Queues it
// starts inherit opts.
func NewCoordinator(node string, table *SessionTable, opts queue.Options) *Coordinator {
	return &Coordinator{
		node:  node,
		table: table,
		opts:  opts,
		mb:    actor.NewMailbox(256),
	}
}

// Mailbox exposes the coordinator's mailbox for supervision.
func (c *Coordinator) Mailbox() *actor.Mailbox {
	return c.mb
}

// Start implements actor.Actor. It blocks until ctx ends.
func (c *Coordinator) Start(ctx context.Context, mb *actor.Mailbox) error {
	c.ctx = ctx
	log.Printf("[INFO] Registry coordinator started on node %s", c.node)
	for {
		msg, err := mb.Receive(ctx)
		if err != nil {
			log.Printf("[INFO] Registry coordinator on node %s shutting down: %v", c.node, err)
			return err
		}
		switch m := msg.(type) {
		case *ensureQueueReq:
			m.reply <- c.handleEnsureQueue(m.id)
		case *queueDown:
			if n := c.table.removeDead(m.q, m.token); n > 0 {
				log.Printf("[INFO] Queue for %s died, removed %d session rows", m.q.ID(), n)
			}
		default:
			log.Printf("[WARN] Registry coordinator received unknown message type: %T", m)
		}
	}
}

// EnsureQueue returns the queue handle for id, starting a queue if the
// id has none. Concurrent calls for the same id observe exactly one
// queue because the coordinator serializes them.
func (c *Coordinator) EnsureQueue(ctx context.Context, id metadata.SubscriberID) (*queue.Queue, error) {
	req := &ensureQueueReq{id: id, reply: make(chan *queue.Queue, 1)}
	c.mb.Send(req)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case q := <-req.reply:
		return q, nil
	}
}

func (c *Coordinator) handleEnsureQueue(id metadata.SubscriberID) *queue.Queue {
	if q, err := c.table.GetQueue(id); err == nil {
		c.table.touch(id)
		return q
	}

	q := queue.Start(c.ctx, id, c.opts)
	token := q.Watch(func(token uuid.UUID, dead *queue.Queue) {
		c.mb.Send(&queueDown{token: token, q: dead})
	})
	c.table.insert(&SessionRow{ID: id, Queue: q, Token: token})
	return q
}
