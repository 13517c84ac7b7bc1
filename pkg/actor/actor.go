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

// Package actor provides the bounded mailbox primitive that the registry
// coordinator and the per-subscriber queue processes are built on. A
// mailbox is a buffered channel with context-aware receive; the goroutine
// draining it is the single owner of whatever state it guards.
package actor

import "context"

// Actor is a process that drains a mailbox until its context ends.
type Actor interface {
	// Start blocks, consuming messages from mb, until the actor
	// terminates. A non-nil error indicates abnormal termination.
	Start(ctx context.Context, mb *Mailbox) error
}

// Mailbox is a bounded, channel-backed message queue.
type Mailbox struct {
	messages chan any
}

// NewMailbox creates a mailbox with capacity size.
func NewMailbox(size int) *Mailbox {
	return &Mailbox{messages: make(chan any, size)}
}

// Send enqueues msg, blocking while the mailbox is full.
func (mb *Mailbox) Send(msg any) {
	mb.messages <- msg
}

// TrySend enqueues msg without blocking. It reports whether the message
// was accepted; callers that use it treat a full mailbox as a dropped
// notification, not an error.
func (mb *Mailbox) TrySend(msg any) bool {
	select {
	case mb.messages <- msg:
		return true
	default:
		return false
	}
}

// Receive blocks until a message arrives or ctx is done.
func (mb *Mailbox) Receive(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-mb.messages:
		return msg, nil
	}
}

// Chan exposes the underlying channel read-only, for callers that need
// to select over several mailboxes at once.
func (mb *Mailbox) Chan() <-chan any {
	return mb.messages
}

// Len returns the number of buffered messages.
func (mb *Mailbox) Len() int {
	return len(mb.messages)
}
