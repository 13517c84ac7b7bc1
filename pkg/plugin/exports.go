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

// Package plugin gives host plugins direct registry access through a
// synthetic session. The session is an actor that translates queue
// deliveries into plugin-visible callbacks, and the exported operations
// are bound to a subscriber id derived from a stable hash of the
// plugin's name.
package plugin

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/queue"
	"github.com/voltmq/voltmq-go/pkg/registry"
)

// Handler receives the deliveries the synthetic session consumes.
type Handler func(d queue.Delivery)

// sessionActor is the synthetic session: a message-consuming loop that
// hands queue deliveries to the plugin.
type sessionActor struct {
	id      metadata.SubscriberID
	handler Handler
}

// Receive is the message handler for the synthetic session actor.
func (a *sessionActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		log.Printf("[INFO] Plugin session %s started", a.id)
	case *actor.Stopping:
		log.Printf("[INFO] Plugin session %s stopping", a.id)
	case queue.Delivery:
		a.handler(msg)
	}
}

// pidRef adapts a protoactor PID to the queue's session reference.
type pidRef struct {
	system *actor.ActorSystem
	pid    *actor.PID
}

// Deliver implements queue.SessionRef.
func (r pidRef) Deliver(d queue.Delivery) {
	r.system.Root.Send(r.pid, d)
}

// Exports is the tuple of operations handed to a host plugin.
type Exports struct {
	reg     *registry.Registry
	id      metadata.SubscriberID
	user    string
	system  *actor.ActorSystem
	pid     *actor.PID
	handler Handler
}

// NewExports builds the export object for the named plugin. The
// subscriber id is stable across restarts. Register attaches with a
// clean session, which deletes the id's earlier subscription records.
func NewExports(reg *registry.Registry, name string, handler Handler) *Exports {
	h := fnv.New64a()
	h.Write([]byte(name))
	return &Exports{
		reg:     reg,
		id:      metadata.SubscriberID{ClientID: fmt.Sprintf("plugin-%016x", h.Sum64())},
		user:    name,
		system:  actor.NewActorSystem(),
		handler: handler,
	}
}

// ID returns the synthetic subscriber id the exports operate as.
func (e *Exports) ID() metadata.SubscriberID {
	return e.id
}

// Register spawns the synthetic session and binds it to the registry.
func (e *Exports) Register(ctx context.Context) error {
	props := actor.PropsFromProducer(func() actor.Actor {
		return &sessionActor{id: e.id, handler: e.handler}
	})
	e.pid = e.system.Root.Spawn(props)

	_, err := e.reg.RegisterSession(ctx, pidRef{system: e.system, pid: e.pid}, e.id, registry.RegisterOpts{
		CleanSession: true,
	})
	if err != nil {
		e.system.Root.Stop(e.pid)
		e.pid = nil
	}
	return err
}

// Publish publishes on the plugin's behalf.
func (e *Exports) Publish(tradeConsistency bool, msg queue.Message) error {
	return e.reg.Publish(tradeConsistency, msg)
}

// Subscribe subscribes the synthetic session to the given filters.
func (e *Exports) Subscribe(tradeConsistency bool, subs []packets.Subscription) ([]packets.Subscription, error) {
	return e.reg.Subscribe(tradeConsistency, e.user, e.id, subs)
}

// Unsubscribe removes the synthetic session's subscriptions.
func (e *Exports) Unsubscribe(tradeConsistency bool, topics []string) error {
	return e.reg.Unsubscribe(tradeConsistency, e.user, e.id, topics)
}

// Close stops the synthetic session actor.
func (e *Exports) Close() {
	if e.pid != nil {
		e.system.Root.Stop(e.pid)
		e.pid = nil
	}
}
