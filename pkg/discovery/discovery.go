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

// Package discovery finds the other registry nodes of the cluster and
// feeds the membership oracle.
package discovery

import "context"

// Member is another registry node in the cluster.
type Member struct {
	// ID is the node's registry name, as it appears in subscription
	// records' owner fields.
	ID string
	// Address is where the node's inter-broker transport listens.
	Address string
}

// Source enumerates cluster members.
type Source interface {
	// Members returns every known peer node, excluding the local one.
	Members(ctx context.Context) ([]Member, error)
}

// Static is a fixed member list, used for tests and hand-rolled
// deployments.
type Static []Member

// Members implements Source.
func (s Static) Members(context.Context) ([]Member, error) {
	out := make([]Member, len(s))
	copy(out, s)
	return out, nil
}
