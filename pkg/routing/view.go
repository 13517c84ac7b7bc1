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

// Package routing provides the view the publish router folds over to
// find where a message must go. The default implementation is a topic
// trie kept in sync with the replicated subscription store.
package routing

import (
	"github.com/voltmq/voltmq-go/pkg/metadata"
)

// Target is one routing destination yielded by a fold: either a local
// subscriber (Remote empty) or a remote node that has matching
// subscribers and forwards on its own.
type Target struct {
	Remote string
	ID     metadata.SubscriberID
	QoS    byte
}

// View walks the routing destinations matching a published topic.
type View interface {
	// Fold visits every target matching topic within mountpoint.
	// Returning false from visit stops the fold.
	Fold(mountpoint, topic string, visit func(t Target) bool)
}
