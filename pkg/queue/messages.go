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

package queue

// Message is a routed MQTT application message as the registry sees it:
// no wire framing, just the routing key and delivery flags.
type Message struct {
	// Mountpoint is the namespace the message flows within.
	Mountpoint string
	// Topic is the concrete routing key the message was published to.
	Topic string
	// Payload is the application payload.
	Payload []byte
	// QoS is the publisher's quality-of-service level.
	QoS byte
	// Retain marks a retained-replay copy when set on delivery.
	Retain bool
	// Dup marks a possible redelivery.
	Dup bool
}

// Delivery pairs a message with the effective QoS granted to the
// subscription it is being delivered for.
type Delivery struct {
	QoS byte
	Msg Message
}

// SessionRef is the queue's handle to an attached session: anything
// that can accept deliveries. Implementations must not block the
// caller indefinitely.
type SessionRef interface {
	Deliver(d Delivery)
}

// internal mailbox messages

type addSessionReq struct {
	ref          SessionRef
	clean        bool
	queuePresent bool
	done         chan struct{}
}

type setOptsReq struct {
	opts Options
	done chan struct{}
}

type enqueueReq struct {
	d Delivery
}

type migrateReq struct {
	target *Queue
	done   chan struct{}
}

type getSessionsReq struct {
	reply chan []SessionRef
}

type statusReq struct {
	reply chan Status
}

type notifyReq struct{}
