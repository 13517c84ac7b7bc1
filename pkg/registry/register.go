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
	"time"

	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/queue"
)

// RegisterOpts selects the registration mode for a connecting session.
type RegisterOpts struct {
	// CleanSession discards all prior subscription state for the id.
	// Ignored in multi-session mode: shared queues never tear down the
	// state of the sessions already attached.
	CleanSession bool
	// AllowMultipleSessions attaches this session to the id's existing
	// queue instead of taking the queue over exclusively.
	AllowMultipleSessions bool
	// BalanceSessions switches the shared queue to balanced delivery.
	BalanceSessions bool
}

// RegisterSession binds a connecting session to the id's queue,
// creating, taking over or joining the queue depending on opts. It
// returns the queue handle the session will be served from.
func (r *Registry) RegisterSession(ctx context.Context, session queue.SessionRef, id metadata.SubscriberID, opts RegisterOpts) (*queue.Queue, error) {
	if opts.AllowMultipleSessions {
		q, err := r.coord.EnsureQueue(ctx, id)
		if err != nil {
			return nil, err
		}
		q.AddSession(session, false, true)
		if opts.BalanceSessions {
			q.SetOpts(queue.Options{
				MaxQueued: r.cfg.MaxQueuedMessages,
				Mode:      queue.DeliverBalance,
			})
		}
		return q, nil
	}

	q, err := r.leader.RegisterSubscriber(ctx, id, func(ctx context.Context) (*queue.Queue, error) {
		return r.registerSubscriber(ctx, session, id, opts.CleanSession)
	})
	if err != nil {
		return nil, err
	}
	if !opts.CleanSession {
		if err := r.remapSubscription(ctx, id); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// registerSubscriber is the leader-serialized registration body,
// running on the node the session connected to: tear down state for a
// clean session, materialize the local queue, pull any remote queue
// over, then attach the session.
func (r *Registry) registerSubscriber(ctx context.Context, session queue.SessionRef, id metadata.SubscriberID, cleanSession bool) (*queue.Queue, error) {
	if cleanSession {
		if err := r.deleteSubscriptionsRetry(ctx, id); err != nil {
			return nil, err
		}
	}

	q, err := r.coord.EnsureQueue(ctx, id)
	if err != nil {
		return nil, err
	}

	for _, node := range r.oracle.Nodes() {
		if node == r.node {
			continue
		}
		rpcCtx, cancel := context.WithTimeout(ctx, r.cfg.MigrationTimeout)
		err := r.oracle.MigrateSession(rpcCtx, node, id, q)
		cancel()
		if err != nil {
			// A timed-out or failed peer is treated as a peer without a
			// queue for this id.
			log.Printf("[WARN] Migration RPC to node %s for %s failed: %v", node, id, err)
		}
	}

	q.AddSession(session, cleanSession, false)
	return q, nil
}

// MigrateSessionTo implements cluster.Peer: the remote endpoint of the
// registration handover. Without a local queue for id it is a no-op;
// otherwise the local queue transfers its buffer and sessions to target
// and terminates, which purges this node's session rows.
func (r *Registry) MigrateSessionTo(id metadata.SubscriberID, target *queue.Queue) {
	q, err := r.table.GetQueue(id)
	if err != nil {
		return
	}
	if q == target {
		return
	}
	log.Printf("[INFO] Migrating queue for %s away from node %s", id, r.node)
	q.Migrate(target)
}

// remapSubscription rewrites every tuple of the id's record to this
// node, so publishes routed by the replicated record reach the queue's
// new home. Overload backs off and retries.
func (r *Registry) remapSubscription(ctx context.Context, id metadata.SubscriberID) error {
	for {
		err := r.gate.WithToken(BucketRemap, func() error {
			r.locks.Lock(id.String())
			defer r.locks.Unlock(id.String())
			set, err := r.store.Get(id)
			if err != nil {
				return err
			}
			remapped := metadata.NewSubscriptionSet()
			changed := false
			for _, sub := range set.Slice() {
				if sub.Node != r.node {
					sub.Node = r.node
					changed = true
				}
				remapped.Add(sub)
			}
			if !changed {
				return nil
			}
			return r.store.Put(id, remapped)
		})
		if err != ErrOverloaded {
			return err
		}
		log.Printf("[WARN] Overloaded remapping subscriptions for %s, retrying", id)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(overloadBackoff):
		}
	}
}

// WaitTilReady polls the cluster oracle until it reports ready. Callers
// needing a deadline bound ctx.
func (r *Registry) WaitTilReady(ctx context.Context) error {
	for {
		if r.oracle.IsReady() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(overloadBackoff):
		}
	}
}
