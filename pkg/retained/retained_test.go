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

package retained

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertAndMatchFold(t *testing.T) {
	s := NewStore()
	s.Insert("", "sensor/temp", []byte("21"))
	s.Insert("", "sensor/hum", []byte("40"))
	s.Insert("tenant", "sensor/temp", []byte("99"))

	got := collect(s, "", "sensor/+")
	assert.Equal(t, map[string]string{"sensor/temp": "21", "sensor/hum": "40"}, got)

	got = collect(s, "tenant", "sensor/#")
	assert.Equal(t, map[string]string{"sensor/temp": "99"}, got, "mountpoints must not leak")

	assert.Equal(t, 3, s.Size())
}

func TestInsertOverwrites(t *testing.T) {
	s := NewStore()
	s.Insert("", "t", []byte("one"))
	s.Insert("", "t", []byte("two"))

	got := collect(s, "", "t")
	assert.Equal(t, map[string]string{"t": "two"}, got)
	assert.Equal(t, 1, s.Size())
}

func TestEmptyPayloadIsNotStored(t *testing.T) {
	s := NewStore()
	s.Insert("", "t", nil)
	assert.Equal(t, 0, s.Size())
}

func TestDelete(t *testing.T) {
	s := NewStore()
	s.Insert("", "t", []byte("payload"))
	s.Delete("", "t")
	assert.Equal(t, 0, s.Size())
	assert.Empty(t, collect(s, "", "#"))

	// Deleting something absent is fine.
	s.Delete("", "missing")
	s.Delete("other", "missing")
}

func TestMatchFoldStops(t *testing.T) {
	s := NewStore()
	s.Insert("", "a", []byte("1"))
	s.Insert("", "b", []byte("2"))

	visits := 0
	s.MatchFold("", "#", func(string, []byte) bool {
		visits++
		return false
	})
	assert.Equal(t, 1, visits)
}

func TestMatchFilter(t *testing.T) {
	tests := []struct {
		topic  string
		filter string
		want   bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/+/c", true},
		{"a/b/c", "a/#", true},
		{"a/b/c", "#", true},
		{"a", "a/#", true},
		{"a/b", "+/+", true},
		{"a/b", "+", false},
		{"a/b/c", "a/+", false},
		{"a/b/c", "a/b", false},
		{"a/b", "a/b/c", false},
		{"a/b", "b/+", false},
		{"a", "+", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchFilter(tt.topic, tt.filter),
			"topic %q filter %q", tt.topic, tt.filter)
	}
}

func collect(s *Store, mountpoint, filter string) map[string]string {
	got := make(map[string]string)
	s.MatchFold(mountpoint, filter, func(topic string, payload []byte) bool {
		got[topic] = string(payload)
		return true
	})
	return got
}
