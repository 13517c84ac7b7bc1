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

// package session provides the front-end adapter between a subscriber
// queue and an MQTT connection: an actor that turns queue deliveries
// into PUBLISH frames on the wire.
package session

import (
	"bytes"
	"context"
	"io"
	"log"

	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/voltmq/voltmq-go/pkg/actor"
	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/queue"
)

// Session is the actor behind one client connection. Its mailbox
// receives queue deliveries; its only job is encoding them out.
type Session struct {
	ID   metadata.SubscriberID
	conn io.Writer
	mb   *actor.Mailbox

	nextPacketID uint16
}

// New creates a session actor writing to conn.
func New(id metadata.SubscriberID, conn io.Writer) *Session {
	return &Session{
		ID:   id,
		conn: conn,
		mb:   actor.NewMailbox(128),
	}
}

// Mailbox returns the session's mailbox for supervision.
func (s *Session) Mailbox() *actor.Mailbox {
	return s.mb
}

// Deliver implements queue.SessionRef. A session that has fallen too
// far behind sheds deliveries rather than stalling the queue.
func (s *Session) Deliver(d queue.Delivery) {
	if !s.mb.TrySend(d) {
		log.Printf("[WARN] Session %s mailbox full, delivery dropped", s.ID)
	}
}

// Start is the session's run loop. It blocks until ctx ends or the
// connection write fails.
func (s *Session) Start(ctx context.Context, mb *actor.Mailbox) error {
	log.Printf("Session actor started for client %s", s.ID)
	for {
		msg, err := mb.Receive(ctx)
		if err != nil {
			log.Printf("Session actor for client %s shutting down: %v", s.ID, err)
			return err
		}

		d, ok := msg.(queue.Delivery)
		if !ok {
			log.Printf("Session actor for %s received unknown message type: %T", s.ID, msg)
			continue
		}
		if err := s.writeDelivery(d); err != nil {
			log.Printf("Error writing to client %s: %v", s.ID, err)
			return err
		}
	}
}

func (s *Session) writeDelivery(d queue.Delivery) error {
	pk := &packets.Packet{
		FixedHeader: packets.FixedHeader{
			Type:   packets.Publish,
			Qos:    d.QoS,
			Retain: d.Msg.Retain,
			Dup:    d.Msg.Dup,
		},
		TopicName: d.Msg.Topic,
		Payload:   d.Msg.Payload,
	}
	if d.QoS > 0 {
		s.nextPacketID++
		if s.nextPacketID == 0 {
			s.nextPacketID = 1
		}
		pk.PacketID = s.nextPacketID
	}

	var buf bytes.Buffer
	if err := pk.PublishEncode(&buf); err != nil {
		log.Printf("Error encoding publish packet for %s: %v", s.ID, err)
		return nil
	}
	_, err := s.conn.Write(buf.Bytes())
	return err
}
