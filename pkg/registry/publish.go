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
	"log"

	"github.com/voltmq/voltmq-go/pkg/metrics"
	"github.com/voltmq/voltmq-go/pkg/queue"
	"github.com/voltmq/voltmq-go/pkg/routing"
)

// Publish routes msg to every matching subscriber through the default
// routing view. Retained handling runs before fan-out: an empty retained
// payload deletes the retained record and delivers nothing, a non-empty
// one is stored and then fanned out with the retain flag cleared.
func (r *Registry) Publish(tradeConsistency bool, msg queue.Message) error {
	return r.PublishWithView(tradeConsistency, msg, r.view)
}

// PublishWithView is Publish with an explicit routing view.
func (r *Registry) PublishWithView(tradeConsistency bool, msg queue.Message, view routing.View) error {
	if err := r.readyFor(tradeConsistency); err != nil {
		return err
	}

	if msg.Retain {
		if len(msg.Payload) == 0 {
			r.retained.Delete(msg.Mountpoint, msg.Topic)
			return nil
		}
		r.retained.Insert(msg.Mountpoint, msg.Topic, msg.Payload)
		msg.Retain = false
	}

	r.fanOut(msg, view, true)
	return nil
}

// RouteLocal implements cluster.Peer: it delivers a message that was
// published on another node to this node's local subscribers only, so
// a forwarded message never bounces back out.
func (r *Registry) RouteLocal(msg queue.Message) {
	r.fanOut(msg, r.view, false)
}

func (r *Registry) fanOut(msg queue.Message, view routing.View, forwardRemote bool) {
	view.Fold(msg.Mountpoint, msg.Topic, func(t routing.Target) bool {
		if t.Remote != "" {
			if !forwardRemote {
				return true
			}
			if err := r.oracle.PublishToRemote(t.Remote, msg); err != nil {
				log.Printf("[WARN] Failed to publish to remote node %s: %v", t.Remote, err)
				metrics.RemotePublishErrorsTotal.Inc()
			}
			return true
		}

		q, err := r.table.GetQueue(t.ID)
		if err != nil {
			// The record points here but the queue is gone or not yet
			// set up; the publish is dropped for this subscriber.
			return true
		}
		q.Enqueue(queue.Delivery{QoS: effectiveQoS(t.QoS, msg.QoS), Msg: msg})
		return true
	})
}

func effectiveQoS(subQoS, msgQoS byte) byte {
	if msgQoS < subQoS {
		return msgQoS
	}
	return subQoS
}
