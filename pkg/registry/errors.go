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

package registry

import (
	"errors"

	"github.com/voltmq/voltmq-go/pkg/admission"
)

var (
	// ErrNotReady is returned by consistency-favoring operations while
	// the cluster has not settled.
	ErrNotReady = errors.New("registry: cluster not ready")

	// ErrNotAllowed is returned when the authorization chain refuses a
	// subscribe request.
	ErrNotAllowed = errors.New("registry: not allowed")

	// ErrNotFound is returned when an id has no live session row.
	ErrNotFound = errors.New("registry: not found")

	// ErrOverloaded is returned when the admission gate refuses a
	// metadata operation.
	ErrOverloaded = admission.ErrOverloaded

	// ErrInvalidTopic is returned for malformed topic filters.
	ErrInvalidTopic = errors.New("registry: invalid topic")
)
