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

package auth

import (
	"sync"

	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/voltmq/voltmq-go/pkg/metadata"
	"github.com/voltmq/voltmq-go/pkg/retained"
)

// ACLRule allows or denies subscribing to filters matching Pattern.
type ACLRule struct {
	Pattern string
	Allow   bool
}

// MemoryAuthorizer is an in-memory subscribe ACL keyed by username.
// A user with no rules is ignored, deferring to the next authorizer.
type MemoryAuthorizer struct {
	mu      sync.RWMutex
	rules   map[string][]ACLRule
	enabled bool
}

// NewMemoryAuthorizer creates an empty in-memory ACL.
func NewMemoryAuthorizer() *MemoryAuthorizer {
	return &MemoryAuthorizer{
		rules:   make(map[string][]ACLRule),
		enabled: true,
	}
}

// Name implements SubscribeAuthorizer.
func (m *MemoryAuthorizer) Name() string {
	return "memory"
}

// Enabled implements SubscribeAuthorizer.
func (m *MemoryAuthorizer) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// SetEnabled enables or disables this authorizer.
func (m *MemoryAuthorizer) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// AddRule appends a rule for username. Rules are evaluated in insertion
// order; the first matching rule decides.
func (m *MemoryAuthorizer) AddRule(username string, rule ACLRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[username] = append(m.rules[username], rule)
}

// AuthorizeSubscribe implements SubscribeAuthorizer. Every requested
// filter must be allowed by the user's first matching rule; a single
// denied filter refuses the whole request.
func (m *MemoryAuthorizer) AuthorizeSubscribe(user string, _ metadata.SubscriberID, subs []packets.Subscription) (Result, []packets.Subscription) {
	m.mu.RLock()
	rules, ok := m.rules[user]
	m.mu.RUnlock()
	if !ok {
		return ResultIgnore, nil
	}

	for _, sub := range subs {
		if !allowedBy(rules, sub.Filter) {
			return ResultFailure, nil
		}
	}
	return ResultSuccess, nil
}

func allowedBy(rules []ACLRule, filter string) bool {
	for _, r := range rules {
		if retained.MatchFilter(filter, r.Pattern) {
			return r.Allow
		}
	}
	return false
}
