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
	"strings"
	"time"

	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/metrics"
	"github.com/voltmq/voltmq-go/pkg/queue"
)

const overloadBackoff = 100 * time.Millisecond

// Subscribe runs the full subscribe path for id: readiness gate,
// authorization chain, admission-gated record merge, retained replay
// and event hooks. It returns the effective subscriptions, which differ
// from the requested ones when an authorizer rewrote them.
func (r *Registry) Subscribe(tradeConsistency bool, user string, id metadata.SubscriberID, subs []packets.Subscription) ([]packets.Subscription, error) {
	if err := r.readyFor(tradeConsistency); err != nil {
		return nil, err
	}
	for _, sub := range subs {
		if err := validateFilter(sub.Filter); err != nil {
			return nil, err
		}
	}

	allowed, effective := r.chain.AuthorizeSubscribe(user, id, subs)
	if !allowed {
		return nil, ErrNotAllowed
	}

	err := r.gate.WithToken(BucketSubscribe, func() error {
		r.locks.Lock(id.String())
		defer r.locks.Unlock(id.String())
		set, err := r.store.Get(id)
		if err != nil {
			return err
		}
		for _, sub := range effective {
			set.Add(metadata.Subscription{Topic: sub.Filter, QoS: sub.Qos, Node: r.node})
		}
		return r.store.Put(id, set)
	})
	if err != nil {
		return nil, err
	}

	if q, qerr := r.table.GetQueue(id); qerr == nil {
		for _, sub := range effective {
			r.replayRetained(q, id.Mountpoint, sub)
		}
	}

	r.chain.FireOnSubscribe(user, id, effective)
	for _, sub := range effective {
		metrics.SubscriptionsGauge.WithLabelValues(sub.Filter).Inc()
	}
	return effective, nil
}

// replayRetained enqueues every retained message matching the freshly
// subscribed filter, flagged retain=true so the session can tell replay
// from live traffic.
func (r *Registry) replayRetained(q *queue.Queue, mountpoint string, sub packets.Subscription) {
	r.retained.MatchFold(mountpoint, sub.Filter, func(topic string, payload []byte) bool {
		q.Enqueue(queue.Delivery{
			QoS: sub.Qos,
			Msg: queue.Message{
				Mountpoint: mountpoint,
				Topic:      topic,
				Payload:    payload,
				QoS:        sub.Qos,
				Retain:     true,
				Dup:        false,
			},
		})
		return true
	})
}

// Unsubscribe removes this node's tuples for the given topics from the
// id's record. Tuples owned by other nodes are untouched.
func (r *Registry) Unsubscribe(tradeConsistency bool, user string, id metadata.SubscriberID, topics []string) error {
	if err := r.readyFor(tradeConsistency); err != nil {
		return err
	}

	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
	}

	err := r.gate.WithToken(BucketSubscribe, func() error {
		r.locks.Lock(id.String())
		defer r.locks.Unlock(id.String())
		set, err := r.store.Get(id)
		if err != nil {
			return err
		}
		kept := metadata.NewSubscriptionSet()
		for _, sub := range set.Slice() {
			_, listed := drop[sub.Topic]
			if sub.Node != r.node || !listed {
				kept.Add(sub)
			}
		}
		return r.store.Put(id, kept)
	})
	if err != nil {
		return err
	}

	r.chain.FireOnUnsubscribe(user, id, topics)
	for _, t := range topics {
		metrics.SubscriptionsGauge.WithLabelValues(t).Dec()
	}
	return nil
}

// DeleteSubscriptions tombstones the id's record. No authorization, no
// events.
func (r *Registry) DeleteSubscriptions(id metadata.SubscriberID) error {
	return r.gate.WithToken(BucketDelete, func() error {
		return r.store.Delete(id)
	})
}

// deleteSubscriptionsRetry is the registration-path variant: it must
// succeed eventually, so overload backs off and retries instead of
// surfacing.
func (r *Registry) deleteSubscriptionsRetry(ctx context.Context, id metadata.SubscriberID) error {
	for {
		err := r.DeleteSubscriptions(id)
		if err != ErrOverloaded {
			return err
		}
		log.Printf("[WARN] Overloaded deleting subscriptions for %s, retrying", id)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(overloadBackoff):
		}
	}
}

// validateFilter applies the MQTT filter rules the registry cares
// about: non-empty, # only as the final level, + alone in its level.
func validateFilter(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return ErrInvalidTopic
		}
		if strings.Contains(level, "+") && level != "+" {
			return ErrInvalidTopic
		}
	}
	return nil
}
