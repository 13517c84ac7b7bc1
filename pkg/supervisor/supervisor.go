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

// package supervisor provides an OTP-style supervisor keeping the
// registry's long-lived actors alive across failures.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/voltmq/voltmq-go/pkg/actor"
	"github.com/voltmq/voltmq-go/pkg/metrics"
)

// RestartStrategy defines the restart behavior for a supervised child.
type RestartStrategy int

const (
	// RestartPermanent indicates the child should always be restarted.
	RestartPermanent RestartStrategy = iota
	// RestartTransient restarts the child only on abnormal termination.
	RestartTransient
	// RestartTemporary never restarts the child.
	RestartTemporary
)

// Spec defines one supervised child.
type Spec struct {
	// ID is a unique identifier for the child, used for logging and
	// the restart metric.
	ID string
	// Actor is the child to supervise.
	Actor actor.Actor
	// Restart is the child's restart strategy.
	Restart RestartStrategy
	// Mailbox is handed to the actor on every (re)start.
	Mailbox *actor.Mailbox
	// startFunc is an optional replacement start, useful for testing.
	startFunc func(context.Context, *actor.Mailbox) error
}

// Supervisor starts and monitors children.
type Supervisor interface {
	// Start begins supervision of a set of children. Non-blocking.
	Start(ctx context.Context, specs []Spec) error
	// StartChild starts and supervises a single child dynamically.
	StartChild(ctx context.Context, spec Spec)
}

// OneForOneSupervisor restarts each failed child on its own.
type OneForOneSupervisor struct{}

// NewOneForOneSupervisor creates a one-for-one supervisor.
func NewOneForOneSupervisor() *OneForOneSupervisor {
	return &OneForOneSupervisor{}
}

// Start launches the initial set of children.
func (s *OneForOneSupervisor) Start(ctx context.Context, specs []Spec) error {
	if len(specs) == 0 {
		return fmt.Errorf("no child specs provided")
	}
	for _, spec := range specs {
		s.StartChild(ctx, spec)
	}
	return nil
}

// StartChild launches and monitors a single child in its own goroutine.
func (s *OneForOneSupervisor) StartChild(ctx context.Context, spec Spec) {
	childCtx, cancel := context.WithCancel(ctx)
	go s.monitorChild(childCtx, cancel, spec)
}

func (s *OneForOneSupervisor) monitorChild(ctx context.Context, cancel context.CancelFunc, spec Spec) {
	defer cancel()

	for {
		var err error
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("actor %s panicked: %v", spec.ID, rec)
				}
			}()
			err = s.startActor(ctx, spec)
		}()

		log.Printf("Actor %s terminated. Reason: %v", spec.ID, err)

		select {
		case <-ctx.Done():
			log.Printf("Supervisor context is done, not restarting actor %s.", spec.ID)
			return
		default:
		}

		shouldRestart := false
		switch spec.Restart {
		case RestartPermanent:
			shouldRestart = true
		case RestartTransient:
			shouldRestart = err != nil
		case RestartTemporary:
		}

		if !shouldRestart {
			log.Printf("Actor %s will not be restarted based on strategy.", spec.ID)
			return
		}

		metrics.SupervisorRestartsTotal.WithLabelValues(spec.ID).Inc()
		log.Printf("Restarting actor %s...", spec.ID)
		// Damp restart storms when a child fails persistently.
		time.Sleep(1 * time.Second)
	}
}

func (s *OneForOneSupervisor) startActor(ctx context.Context, spec Spec) error {
	log.Printf("Starting actor %s...", spec.ID)
	if spec.startFunc != nil {
		return spec.startFunc(ctx, spec.Mailbox)
	}
	return spec.Actor.Start(ctx, spec.Mailbox)
}
