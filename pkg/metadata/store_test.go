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

package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testID = SubscriberID{Mountpoint: "", ClientID: "client-1"}

func TestGetAbsentIsEmpty(t *testing.T) {
	s := NewMemStore("node1")
	set, err := s.Get(testID)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestPutGetDelete(t *testing.T) {
	s := NewMemStore("node1")
	sub := Subscription{Topic: "a/b", QoS: 1, Node: "node1"}

	require.NoError(t, s.Put(testID, NewSubscriptionSet(sub)))
	set, err := s.Get(testID)
	require.NoError(t, err)
	assert.True(t, set.Contains(sub))
	assert.Equal(t, 1, s.Size())

	require.NoError(t, s.Delete(testID))
	set, err = s.Get(testID)
	require.NoError(t, err)
	assert.Empty(t, set, "tombstone must read as absent")
	assert.Equal(t, 0, s.Size())
}

func TestSequentialWritesObserveCallOrder(t *testing.T) {
	s := NewMemStore("node1")
	first := Subscription{Topic: "x", QoS: 0, Node: "node1"}
	second := Subscription{Topic: "y", QoS: 1, Node: "node1"}

	require.NoError(t, s.Put(testID, NewSubscriptionSet(first)))
	require.NoError(t, s.Put(testID, NewSubscriptionSet(first, second)))

	set, err := s.Get(testID)
	require.NoError(t, err)
	assert.Len(t, set, 2)
}

func TestLastWriterWins(t *testing.T) {
	s := NewMemStore("node1")
	older := Record{
		ID:        testID,
		Set:       []Subscription{{Topic: "old", QoS: 0, Node: "node2"}},
		Timestamp: 10,
		Origin:    "node2",
	}
	newer := Record{
		ID:        testID,
		Set:       []Subscription{{Topic: "new", QoS: 0, Node: "node3"}},
		Timestamp: 20,
		Origin:    "node3",
	}

	s.ApplyRemote(newer)
	s.ApplyRemote(older)

	set, err := s.Get(testID)
	require.NoError(t, err)
	assert.True(t, set.Contains(Subscription{Topic: "new", QoS: 0, Node: "node3"}))
	assert.False(t, set.Contains(Subscription{Topic: "old", QoS: 0, Node: "node2"}))
}

func TestLWWTieBrokenByOrigin(t *testing.T) {
	a := Record{ID: testID, Set: []Subscription{{Topic: "a", Node: "na"}}, Timestamp: 5, Origin: "na"}
	b := Record{ID: testID, Set: []Subscription{{Topic: "b", Node: "nb"}}, Timestamp: 5, Origin: "nb"}

	// Both application orders must converge on the same winner.
	s1 := NewMemStore("node1")
	s1.ApplyRemote(a)
	s1.ApplyRemote(b)
	s2 := NewMemStore("node1")
	s2.ApplyRemote(b)
	s2.ApplyRemote(a)

	set1, _ := s1.Get(testID)
	set2, _ := s2.Get(testID)
	assert.Equal(t, set1, set2)
	assert.True(t, set1.Contains(Subscription{Topic: "b", Node: "nb"}))
}

func TestWatchEmitsDiffs(t *testing.T) {
	s := NewMemStore("node1")
	ch := s.Watch()

	sub1 := Subscription{Topic: "a", QoS: 0, Node: "node1"}
	sub2 := Subscription{Topic: "b", QoS: 1, Node: "node1"}
	require.NoError(t, s.Put(testID, NewSubscriptionSet(sub1)))
	require.NoError(t, s.Put(testID, NewSubscriptionSet(sub2)))

	ev := recvEvent(t, ch)
	assert.Equal(t, ChangeUpdate, ev.Type)
	assert.ElementsMatch(t, []Subscription{sub1}, ev.Added)
	assert.Empty(t, ev.Removed)

	ev = recvEvent(t, ch)
	assert.Equal(t, ChangeUpdate, ev.Type)
	assert.ElementsMatch(t, []Subscription{sub2}, ev.Added)
	assert.ElementsMatch(t, []Subscription{sub1}, ev.Removed)
}

func TestWatchDeleteCarriesOldSet(t *testing.T) {
	s := NewMemStore("node1")
	sub := Subscription{Topic: "a", QoS: 0, Node: "node1"}
	require.NoError(t, s.Put(testID, NewSubscriptionSet(sub)))

	ch := s.Watch()
	require.NoError(t, s.Delete(testID))

	ev := recvEvent(t, ch)
	assert.Equal(t, ChangeDelete, ev.Type)
	assert.True(t, ev.Old.Contains(sub))
}

func TestWatchSuppressesTombstoneChurn(t *testing.T) {
	s := NewMemStore("node1")
	ch := s.Watch()

	// Deleting an absent key and re-deleting a tombstone are invisible.
	require.NoError(t, s.Delete(testID))
	require.NoError(t, s.Delete(testID))
	// An identical rewrite is invisible too.
	sub := Subscription{Topic: "a", QoS: 0, Node: "node1"}
	require.NoError(t, s.Put(testID, NewSubscriptionSet(sub)))
	require.NoError(t, s.Put(testID, NewSubscriptionSet(sub)))

	ev := recvEvent(t, ch)
	assert.Equal(t, ChangeUpdate, ev.Type)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFoldSkipsTombstones(t *testing.T) {
	s := NewMemStore("node1")
	live := SubscriberID{ClientID: "live"}
	dead := SubscriberID{ClientID: "dead"}
	require.NoError(t, s.Put(live, NewSubscriptionSet(Subscription{Topic: "a", Node: "node1"})))
	require.NoError(t, s.Put(dead, NewSubscriptionSet(Subscription{Topic: "b", Node: "node1"})))
	require.NoError(t, s.Delete(dead))

	seen := make(map[SubscriberID]int)
	s.Fold(func(id SubscriberID, set SubscriptionSet) bool {
		seen[id]++
		return true
	})
	assert.Equal(t, map[SubscriberID]int{live: 1}, seen)
}

func TestMeshReplicates(t *testing.T) {
	mesh := NewMesh()
	a := NewMemStore("nodeA")
	b := NewMemStore("nodeB")
	mesh.Join(a)
	mesh.Join(b)

	sub := Subscription{Topic: "a/b", QoS: 1, Node: "nodeA"}
	require.NoError(t, a.Put(testID, NewSubscriptionSet(sub)))

	set, err := b.Get(testID)
	require.NoError(t, err)
	assert.True(t, set.Contains(sub), "write must reach the peer store")

	require.NoError(t, b.Delete(testID))
	set, err = a.Get(testID)
	require.NoError(t, err)
	assert.Empty(t, set, "tombstone must reach the origin store")
}

func TestDiff(t *testing.T) {
	s1 := Subscription{Topic: "a", QoS: 0, Node: "n"}
	s2 := Subscription{Topic: "b", QoS: 1, Node: "n"}
	s3 := Subscription{Topic: "c", QoS: 2, Node: "n"}

	added, removed := Diff(NewSubscriptionSet(s1, s2), NewSubscriptionSet(s2, s3))
	assert.ElementsMatch(t, []Subscription{s3}, added)
	assert.ElementsMatch(t, []Subscription{s1}, removed)
}

func recvEvent(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change event")
		return ChangeEvent{}
	}
}
