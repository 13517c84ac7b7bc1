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

// Package auth provides the plugin chains the subscribe path runs:
// an authorization chain that may refuse or rewrite the requested
// topics, and best-effort event hooks fired after the fact.
package auth

import (
	"log"

	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/voltmq/voltmq-go/pkg/metadata"
)

// Result is the outcome of one authorizer in the chain.
type Result int

const (
	// ResultSuccess authorizes the request, possibly with rewritten topics.
	ResultSuccess Result = iota
	// ResultFailure refuses the request; the chain stops.
	ResultFailure
	// ResultIgnore passes the decision to the next authorizer.
	ResultIgnore
	// ResultError means the authorizer broke; the chain logs and continues.
	ResultError
)

// String returns the string representation of Result.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	case ResultIgnore:
		return "ignore"
	case ResultError:
		return "error"
	default:
		return "unknown"
	}
}

// SubscribeAuthorizer decides whether a user may subscribe to a set of
// topic filters. A ResultSuccess with a non-nil slice substitutes the
// returned filters for the requested ones.
type SubscribeAuthorizer interface {
	Name() string
	Enabled() bool
	AuthorizeSubscribe(user string, id metadata.SubscriberID, subs []packets.Subscription) (Result, []packets.Subscription)
}

// EventHook observes completed subscribe and unsubscribe operations.
// Hooks are best-effort: they cannot veto, and every hook runs.
type EventHook interface {
	Name() string
	OnSubscribe(user string, id metadata.SubscriberID, subs []packets.Subscription)
	OnUnsubscribe(user string, id metadata.SubscriberID, topics []string)
}

// Chain holds the configured authorizers and event hooks.
type Chain struct {
	authorizers []SubscribeAuthorizer
	hooks       []EventHook
}

// NewChain creates an empty chain. An empty chain authorizes everything
// with the requested topics unchanged.
func NewChain() *Chain {
	return &Chain{}
}

// AddAuthorizer appends an authorizer to the chain.
func (c *Chain) AddAuthorizer(a SubscribeAuthorizer) {
	c.authorizers = append(c.authorizers, a)
}

// AddHook appends an event hook.
func (c *Chain) AddHook(h EventHook) {
	c.hooks = append(c.hooks, h)
}

// AuthorizeSubscribe walks the chain until one authorizer decides:
// the first success wins and its possibly-rewritten topics are used,
// the first failure refuses, errors are logged and skipped. If every
// authorizer ignores the request it is allowed unchanged, matching a
// registry with no ACL configured.
func (c *Chain) AuthorizeSubscribe(user string, id metadata.SubscriberID, subs []packets.Subscription) (bool, []packets.Subscription) {
	for _, a := range c.authorizers {
		if !a.Enabled() {
			continue
		}
		result, rewritten := a.AuthorizeSubscribe(user, id, subs)
		switch result {
		case ResultSuccess:
			if rewritten != nil {
				log.Printf("[DEBUG] Authorizer %s rewrote topics for %s", a.Name(), id)
				return true, rewritten
			}
			return true, subs
		case ResultFailure:
			log.Printf("[WARN] Authorizer %s refused subscribe for user %s (%s)", a.Name(), user, id)
			return false, nil
		case ResultError:
			log.Printf("[ERROR] Authorizer %s errored for user %s, trying next", a.Name(), user)
			continue
		case ResultIgnore:
			continue
		}
	}
	return true, subs
}

// FireOnSubscribe notifies every hook of a completed subscribe.
func (c *Chain) FireOnSubscribe(user string, id metadata.SubscriberID, subs []packets.Subscription) {
	for _, h := range c.hooks {
		h.OnSubscribe(user, id, subs)
	}
}

// FireOnUnsubscribe notifies every hook of a completed unsubscribe.
func (c *Chain) FireOnUnsubscribe(user string, id metadata.SubscriberID, topics []string) {
	for _, h := range c.hooks {
		h.OnUnsubscribe(user, id, topics)
	}
}
