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

// Package queue implements the per-subscriber message queue process.
// Each queue is a mailbox-driven actor buffering outbound messages and
// fanning them out to one or more attached sessions. The registry
// coordinator owns queue lifecycles; everyone else talks to a queue
// through its handle.
package queue

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/voltmq/voltmq-go/pkg/actor"
	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/metrics"
)

// DeliverMode selects how a queue spreads deliveries over its sessions.
type DeliverMode int

const (
	// DeliverFanout delivers every message to every attached session.
	DeliverFanout DeliverMode = iota
	// DeliverBalance delivers each message to one session, round-robin.
	DeliverBalance
)

// Options tune a queue at start or via SetOpts.
type Options struct {
	// MaxQueued bounds the offline buffer. Zero buffers nothing.
	MaxQueued int
	// Mode is the delivery mode across attached sessions.
	Mode DeliverMode
}

// DefaultOptions matches the registry default queue bound.
func DefaultOptions() Options {
	return Options{MaxQueued: 1000, Mode: DeliverFanout}
}

// Status is a point-in-time queue snapshot.
type Status struct {
	// State is "online" when at least one session is attached.
	State string
	// Queued is the offline buffer depth.
	Queued int
}

// DeathFunc is invoked once, after the queue's run loop has exited.
// The token is the nonce the watcher registered with, so a stale
// notification can be told apart from the death of a fresh queue.
type DeathFunc func(token uuid.UUID, q *Queue)

type watcher struct {
	token uuid.UUID
	fn    DeathFunc
}

type sessionEntry struct {
	ref   SessionRef
	clean bool
}

// Queue is the handle to a running queue actor.
type Queue struct {
	id     metadata.SubscriberID
	mb     *actor.Mailbox
	cancel context.CancelFunc

	// watchers are registered before the queue is published in the
	// session table, and fired exactly once on exit.
	wmu      sync.Mutex
	watchers []watcher
	dead     bool

	// state below is owned by the run loop
	opts     Options
	sessions []sessionEntry
	buf      []Delivery
	dropped  uint64
	next     int // round-robin cursor for balance mode
}

// Start launches a queue actor for id. The returned handle is live
// until the context ends, Stop is called, or the queue migrates away.
func Start(ctx context.Context, id metadata.SubscriberID, opts Options) *Queue {
	qctx, cancel := context.WithCancel(ctx)
	q := &Queue{
		id:     id,
		mb:     actor.NewMailbox(256),
		cancel: cancel,
		opts:   opts,
	}
	metrics.QueueSetupTotal.Inc()
	go q.run(qctx)
	return q
}

// ID returns the subscriber id the queue serves.
func (q *Queue) ID() metadata.SubscriberID {
	return q.id
}

// Watch registers fn to run after the queue dies. The returned token is
// the nonce fn receives back, letting the watcher discard notifications
// for queues it no longer tracks. If the queue is already dead, fn runs
// immediately.
func (q *Queue) Watch(fn DeathFunc) uuid.UUID {
	token := uuid.New()
	q.wmu.Lock()
	if q.dead {
		q.wmu.Unlock()
		go fn(token, q)
		return token
	}
	q.watchers = append(q.watchers, watcher{token: token, fn: fn})
	q.wmu.Unlock()
	return token
}

// Dead reports whether the queue's run loop has exited.
func (q *Queue) Dead() bool {
	q.wmu.Lock()
	defer q.wmu.Unlock()
	return q.dead
}

// AddSession attaches a session to the queue. A clean attach discards
// buffered messages first. queuePresent is accepted but not recorded or
// acted on by the queue.
func (q *Queue) AddSession(ref SessionRef, clean, queuePresent bool) {
	if q.Dead() {
		return
	}
	done := make(chan struct{})
	q.mb.Send(&addSessionReq{ref: ref, clean: clean, queuePresent: queuePresent, done: done})
	<-done
}

// SetOpts replaces the queue's options.
func (q *Queue) SetOpts(opts Options) {
	if q.Dead() {
		return
	}
	done := make(chan struct{})
	q.mb.Send(&setOptsReq{opts: opts, done: done})
	<-done
}

// Enqueue hands a delivery to the queue. It blocks only while the
// queue's mailbox is full.
func (q *Queue) Enqueue(d Delivery) {
	q.mb.Send(&enqueueReq{d: d})
}

// Migrate transfers buffered messages and attached sessions to target,
// then terminates this queue. It blocks until the handover is complete.
func (q *Queue) Migrate(target *Queue) {
	if q.Dead() {
		return
	}
	done := make(chan struct{})
	q.mb.Send(&migrateReq{target: target, done: done})
	<-done
}

// GetSessions returns the attached session references.
func (q *Queue) GetSessions() []SessionRef {
	if q.Dead() {
		return nil
	}
	reply := make(chan []SessionRef, 1)
	q.mb.Send(&getSessionsReq{reply: reply})
	return <-reply
}

// Status returns the queue state and buffered depth.
func (q *Queue) Status() Status {
	if q.Dead() {
		return Status{State: "offline"}
	}
	reply := make(chan Status, 1)
	q.mb.Send(&statusReq{reply: reply})
	return <-reply
}

// Active reports whether at least one session is attached.
func (q *Queue) Active() bool {
	return q.Status().State == "online"
}

// Notify pokes the queue to drain its offline buffer to the attached
// sessions, if any.
func (q *Queue) Notify() {
	q.mb.TrySend(&notifyReq{})
}

// Stop terminates the queue actor.
func (q *Queue) Stop() {
	q.cancel()
}

func (q *Queue) run(ctx context.Context) {
	// On exit, mark the queue dead first so new callers bail out, then
	// release whoever is already parked on a pending request.
	defer q.failPending()
	defer q.fireWatchers()
	for {
		msg, err := q.mb.Receive(ctx)
		if err != nil {
			return
		}
		switch m := msg.(type) {
		case *addSessionReq:
			q.handleAddSession(m)
		case *setOptsReq:
			q.opts = m.opts
			close(m.done)
		case *enqueueReq:
			q.handleEnqueue(m.d)
		case *migrateReq:
			q.handleMigrate(m)
			return
		case *getSessionsReq:
			refs := make([]SessionRef, 0, len(q.sessions))
			for _, s := range q.sessions {
				refs = append(refs, s.ref)
			}
			m.reply <- refs
		case *statusReq:
			m.reply <- q.snapshot()
		case *notifyReq:
			q.drain()
		default:
			log.Printf("[WARN] Queue %s received unknown message type: %T", q.id, m)
		}
	}
}

func (q *Queue) snapshot() Status {
	state := "offline"
	if len(q.sessions) > 0 {
		state = "online"
	}
	return Status{State: state, Queued: len(q.buf)}
}

func (q *Queue) handleAddSession(m *addSessionReq) {
	if m.clean {
		q.buf = nil
	}
	q.sessions = append(q.sessions, sessionEntry{ref: m.ref, clean: m.clean})
	close(m.done)
	q.drain()
}

func (q *Queue) handleEnqueue(d Delivery) {
	if len(q.sessions) == 0 {
		if q.opts.MaxQueued <= 0 {
			q.dropped++
			metrics.QueueDroppedTotal.Inc()
			return
		}
		if len(q.buf) >= q.opts.MaxQueued {
			// Drop the oldest so the buffer tracks the present.
			q.buf = q.buf[1:]
			q.dropped++
			metrics.QueueDroppedTotal.Inc()
		}
		q.buf = append(q.buf, d)
		return
	}
	q.deliver(d)
}

func (q *Queue) deliver(d Delivery) {
	if q.opts.Mode == DeliverBalance {
		q.next = q.next % len(q.sessions)
		q.sessions[q.next].ref.Deliver(d)
		q.next++
		return
	}
	for _, s := range q.sessions {
		s.ref.Deliver(d)
	}
}

func (q *Queue) drain() {
	if len(q.sessions) == 0 {
		return
	}
	for _, d := range q.buf {
		q.deliver(d)
	}
	q.buf = nil
}

func (q *Queue) handleMigrate(m *migrateReq) {
	for _, d := range q.buf {
		m.target.Enqueue(d)
	}
	q.buf = nil
	for _, s := range q.sessions {
		m.target.AddSession(s.ref, false, true)
	}
	q.sessions = nil
	log.Printf("[INFO] Queue %s migrated away", q.id)
	metrics.MigrationsTotal.Inc()
	q.cancel()
	close(m.done)
}

// failPending answers every request still sitting in the mailbox after
// death, so no caller stays parked on a reply that will never come.
func (q *Queue) failPending() {
	for {
		select {
		case msg := <-q.mb.Chan():
			switch m := msg.(type) {
			case *addSessionReq:
				close(m.done)
			case *setOptsReq:
				close(m.done)
			case *migrateReq:
				close(m.done)
			case *getSessionsReq:
				m.reply <- nil
			case *statusReq:
				m.reply <- Status{State: "offline"}
			}
		default:
			return
		}
	}
}

func (q *Queue) fireWatchers() {
	metrics.QueueTeardownTotal.Inc()
	q.wmu.Lock()
	ws := q.watchers
	q.watchers = nil
	q.dead = true
	q.wmu.Unlock()
	for _, w := range ws {
		go w.fn(w.token, q)
	}
}
