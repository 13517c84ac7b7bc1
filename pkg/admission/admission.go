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

// Package admission implements the token-bucket gate that sits in front
// of every metadata mutation. Saturation is reported synchronously with
// ErrOverloaded; the gate never queues callers.
package admission

import (
	"errors"
	"math"
	"sync"

	"golang.org/x/time/rate"

	"github.com/voltmq/voltmq-go/pkg/metrics"
)

// ErrOverloaded is returned when a bucket has no token available.
var ErrOverloaded = errors.New("admission: overloaded")

// BucketConfig sizes a single named bucket.
type BucketConfig struct {
	// Size caps the number of operations holding a token at once.
	Size int `yaml:"size" json:"size"`
	// Rate is the sustained admission rate in operations per second.
	Rate float64 `yaml:"rate" json:"rate"`
}

// DefaultBucketConfig matches the registry's default metadata load.
func DefaultBucketConfig() BucketConfig {
	return BucketConfig{Size: 100, Rate: 10000}
}

// Job is a held token. Done must be called on every exit path.
type Job struct {
	bucket *bucket
	once   sync.Once
}

// Done returns the token to its bucket. Calling Done more than once is
// harmless.
func (j *Job) Done() {
	j.once.Do(func() {
		j.bucket.release()
	})
}

type bucket struct {
	limiter *rate.Limiter
	mu      sync.Mutex
	size    int
	held    int
}

func (b *bucket) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.held >= b.size {
		return false
	}
	if !b.limiter.Allow() {
		return false
	}
	b.held++
	return true
}

func (b *bucket) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.held > 0 {
		b.held--
	}
}

// Gate is a set of named token buckets.
type Gate struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

// NewGate creates an empty gate. Buckets are declared with Declare
// before first use; asking an undeclared bucket always succeeds so that
// callers do not have to care whether an operator configured a limit.
func NewGate() *Gate {
	return &Gate{buckets: make(map[string]*bucket)}
}

// Declare registers a named bucket. Re-declaring replaces the previous
// configuration; tokens held against the old bucket drain independently.
func (g *Gate) Declare(name string, cfg BucketConfig) {
	// The limiter holds one second of the sustained rate, never less than
	// Size, so a token returned by Done can be taken again at once. With a
	// zero rate only the first Size asks are ever admitted.
	burst := cfg.Size
	if r := int(math.Ceil(cfg.Rate)); r > burst {
		burst = r
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.buckets[name] = &bucket{
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), burst),
		size:    cfg.Size,
	}
}

// Ask acquires one token from the named bucket. It never blocks beyond
// the bucket's own bookkeeping: saturation returns ErrOverloaded.
func (g *Gate) Ask(name string) (*Job, error) {
	g.mu.RLock()
	b, ok := g.buckets[name]
	g.mu.RUnlock()
	if !ok {
		return &Job{bucket: &bucket{size: 1, held: 0, limiter: rate.NewLimiter(rate.Inf, 0)}}, nil
	}
	if !b.acquire() {
		metrics.AdmissionRejectedTotal.WithLabelValues(name).Inc()
		return nil, ErrOverloaded
	}
	return &Job{bucket: b}, nil
}

// WithToken runs op while holding a token from the named bucket. The
// token is released on every exit path, including a panic in op.
func (g *Gate) WithToken(name string, op func() error) error {
	job, err := g.Ask(name)
	if err != nil {
		return err
	}
	defer job.Done()
	return op()
}

// InFlight reports how many tokens the named bucket currently has out.
func (g *Gate) InFlight(name string) int {
	g.mu.RLock()
	b, ok := g.buckets[name]
	g.mu.RUnlock()
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.held
}
