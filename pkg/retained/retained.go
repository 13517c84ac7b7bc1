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

// Package retained stores the most recent retained message per topic,
// partitioned by mountpoint. New subscribers of a matching filter get
// these replayed before live traffic.
package retained

import (
	"strings"
	"sync"
)

// Store keeps retained messages keyed by (mountpoint, topic).
type Store struct {
	mu      sync.RWMutex
	entries map[string]map[string][]byte // mountpoint -> topic -> payload
}

// NewStore creates an empty retained store.
func NewStore() *Store {
	return &Store{entries: make(map[string]map[string][]byte)}
}

// Insert stores payload as the retained message for topic. An empty
// payload is not stored; callers delete instead.
func (s *Store) Insert(mountpoint, topic string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byTopic, ok := s.entries[mountpoint]
	if !ok {
		byTopic = make(map[string][]byte)
		s.entries[mountpoint] = byTopic
	}
	byTopic[topic] = payload
}

// Delete removes the retained message for topic, if any.
func (s *Store) Delete(mountpoint, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTopic, ok := s.entries[mountpoint]
	if !ok {
		return
	}
	delete(byTopic, topic)
	if len(byTopic) == 0 {
		delete(s.entries, mountpoint)
	}
}

// MatchFold walks every retained message within mountpoint whose topic
// matches filter under MQTT wildcard rules. Returning false from f
// stops the walk. The walk runs over a snapshot.
func (s *Store) MatchFold(mountpoint, filter string, f func(topic string, payload []byte) bool) {
	s.mu.RLock()
	byTopic := s.entries[mountpoint]
	matched := make(map[string][]byte)
	for topic, payload := range byTopic {
		if MatchFilter(topic, filter) {
			matched[topic] = payload
		}
	}
	s.mu.RUnlock()

	for topic, payload := range matched {
		if !f(topic, payload) {
			return
		}
	}
}

// Size returns the total number of retained messages across mountpoints.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, byTopic := range s.entries {
		n += len(byTopic)
	}
	return n
}

// MatchFilter reports whether a concrete topic matches a subscription
// filter under MQTT 3.1.1 wildcard rules: + matches one level, # matches
// the remainder and must be the final level.
func MatchFilter(topic, filter string) bool {
	if topic == filter {
		return true
	}

	topicLevels := strings.Split(topic, "/")
	filterLevels := strings.Split(filter, "/")

	for i, fl := range filterLevels {
		if fl == "#" {
			return i == len(filterLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if fl != "+" && fl != topicLevels[i] {
			return false
		}
	}

	return len(topicLevels) == len(filterLevels)
}
