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

package routing

import (
	"strings"
	"sync"

	"github.com/voltmq/voltmq-go/pkg/metadata"
)

type subKey struct {
	id  metadata.SubscriberID
	qos byte
}

type trieNode struct {
	children map[string]*trieNode
	locals   map[subKey]struct{}
	remotes  map[string]map[subKey]struct{} // node -> subscriptions behind it
}

func newTrieNode() *trieNode {
	return &trieNode{
		children: make(map[string]*trieNode),
		locals:   make(map[subKey]struct{}),
		remotes:  make(map[string]map[subKey]struct{}),
	}
}

func (n *trieNode) empty() bool {
	return len(n.children) == 0 && len(n.locals) == 0 && len(n.remotes) == 0
}

// TrieView is the default routing view: a per-mountpoint topic trie fed
// by the subscription store's change stream. Local tuples index the
// subscriber id and qos; tuples owned by other nodes collapse into one
// remote target per node.
type TrieView struct {
	node   string
	mu     sync.RWMutex
	roots  map[string]*trieNode
	stopCh chan struct{}
}

// NewTrieView builds a view for the given node over store. It registers
// the change watcher before seeding from a fold, so a write landing in
// between is applied at most twice, which the index absorbs because
// inserts and removals are idempotent per tuple.
func NewTrieView(node string, store metadata.Store) *TrieView {
	v := &TrieView{
		node:   node,
		roots:  make(map[string]*trieNode),
		stopCh: make(chan struct{}),
	}

	changes := store.Watch()
	store.Fold(func(id metadata.SubscriberID, set metadata.SubscriptionSet) bool {
		for _, sub := range set.Slice() {
			v.add(id, sub)
		}
		return true
	})
	go v.consume(changes)
	return v
}

// Close stops the change consumer.
func (v *TrieView) Close() {
	close(v.stopCh)
}

func (v *TrieView) consume(changes <-chan metadata.ChangeEvent) {
	for {
		select {
		case <-v.stopCh:
			return
		case ev := <-changes:
			switch ev.Type {
			case metadata.ChangeUpdate:
				for _, sub := range ev.Added {
					v.add(ev.ID, sub)
				}
				for _, sub := range ev.Removed {
					v.remove(ev.ID, sub)
				}
			case metadata.ChangeDelete:
				for _, sub := range ev.Old.Slice() {
					v.remove(ev.ID, sub)
				}
			}
		}
	}
}

func (v *TrieView) add(id metadata.SubscriberID, sub metadata.Subscription) {
	v.mu.Lock()
	defer v.mu.Unlock()

	root, ok := v.roots[id.Mountpoint]
	if !ok {
		root = newTrieNode()
		v.roots[id.Mountpoint] = root
	}

	n := root
	for _, word := range strings.Split(sub.Topic, "/") {
		child, ok := n.children[word]
		if !ok {
			child = newTrieNode()
			n.children[word] = child
		}
		n = child
	}

	key := subKey{id: id, qos: sub.QoS}
	if sub.Node == v.node {
		n.locals[key] = struct{}{}
		return
	}
	behind, ok := n.remotes[sub.Node]
	if !ok {
		behind = make(map[subKey]struct{})
		n.remotes[sub.Node] = behind
	}
	behind[key] = struct{}{}
}

func (v *TrieView) remove(id metadata.SubscriberID, sub metadata.Subscription) {
	v.mu.Lock()
	defer v.mu.Unlock()

	root, ok := v.roots[id.Mountpoint]
	if !ok {
		return
	}

	words := strings.Split(sub.Topic, "/")
	path := make([]*trieNode, 0, len(words)+1)
	n := root
	path = append(path, n)
	for _, word := range words {
		child, ok := n.children[word]
		if !ok {
			return
		}
		n = child
		path = append(path, n)
	}

	key := subKey{id: id, qos: sub.QoS}
	if sub.Node == v.node {
		delete(n.locals, key)
	} else if behind, ok := n.remotes[sub.Node]; ok {
		delete(behind, key)
		if len(behind) == 0 {
			delete(n.remotes, sub.Node)
		}
	}

	// Prune empty branches bottom-up.
	for i := len(path) - 1; i > 0; i-- {
		if !path[i].empty() {
			break
		}
		delete(path[i-1].children, words[i-1])
	}
	if root.empty() {
		delete(v.roots, id.Mountpoint)
	}
}

// Fold implements View. Local matches are visited once per matching
// subscription tuple; remote nodes are deduplicated across filters so a
// message is forwarded to each peer at most once.
func (v *TrieView) Fold(mountpoint, topic string, visit func(t Target) bool) {
	v.mu.RLock()
	root, ok := v.roots[mountpoint]
	if !ok {
		v.mu.RUnlock()
		return
	}

	var locals []Target
	remotes := make(map[string]struct{})
	collect := func(n *trieNode) {
		for key := range n.locals {
			locals = append(locals, Target{ID: key.id, QoS: key.qos})
		}
		for node := range n.remotes {
			remotes[node] = struct{}{}
		}
	}
	match(root, strings.Split(topic, "/"), collect)
	v.mu.RUnlock()

	for _, t := range locals {
		if !visit(t) {
			return
		}
	}
	for node := range remotes {
		if !visit(Target{Remote: node}) {
			return
		}
	}
}

// match walks the trie against the concrete topic words, honoring the
// + and # wildcards stored in filters.
func match(n *trieNode, words []string, collect func(*trieNode)) {
	if hash, ok := n.children["#"]; ok {
		collect(hash)
	}
	if len(words) == 0 {
		collect(n)
		return
	}
	if child, ok := n.children[words[0]]; ok {
		match(child, words[1:], collect)
	}
	if plus, ok := n.children["+"]; ok {
		match(plus, words[1:], collect)
	}
}
