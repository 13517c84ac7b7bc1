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

package admission

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskAndDone(t *testing.T) {
	g := NewGate()
	g.Declare("reg", BucketConfig{Size: 2, Rate: 1000})

	j1, err := g.Ask("reg")
	require.NoError(t, err)
	j2, err := g.Ask("reg")
	require.NoError(t, err)
	assert.Equal(t, 2, g.InFlight("reg"))

	_, err = g.Ask("reg")
	assert.ErrorIs(t, err, ErrOverloaded)

	j1.Done()
	j2.Done()
	assert.Equal(t, 0, g.InFlight("reg"))

	_, err = g.Ask("reg")
	assert.NoError(t, err)
}

func TestDoneIsIdempotent(t *testing.T) {
	g := NewGate()
	g.Declare("reg", BucketConfig{Size: 1, Rate: 1000})

	j, err := g.Ask("reg")
	require.NoError(t, err)
	j.Done()
	j.Done()
	assert.Equal(t, 0, g.InFlight("reg"))
}

func TestWithTokenReleasesOnEveryPath(t *testing.T) {
	g := NewGate()
	g.Declare("reg", BucketConfig{Size: 1, Rate: 1000})

	require.NoError(t, g.WithToken("reg", func() error { return nil }))
	assert.Equal(t, 0, g.InFlight("reg"))

	opErr := errors.New("boom")
	assert.ErrorIs(t, g.WithToken("reg", func() error { return opErr }), opErr)
	assert.Equal(t, 0, g.InFlight("reg"))

	assert.Panics(t, func() {
		_ = g.WithToken("reg", func() error { panic("op failed") })
	})
	assert.Equal(t, 0, g.InFlight("reg"))
}

func TestRateRejectsSynchronously(t *testing.T) {
	g := NewGate()
	// Zero sustained rate: only the initial burst is admitted, even
	// when every token is returned promptly.
	g.Declare("reg", BucketConfig{Size: 2, Rate: 0})

	for i := 0; i < 2; i++ {
		j, err := g.Ask("reg")
		require.NoError(t, err)
		j.Done()
	}

	_, err := g.Ask("reg")
	assert.ErrorIs(t, err, ErrOverloaded)
	assert.Equal(t, 0, g.InFlight("reg"))
}

func TestUndeclaredBucketAdmits(t *testing.T) {
	g := NewGate()
	j, err := g.Ask("anything")
	require.NoError(t, err)
	j.Done()

	assert.NoError(t, g.WithToken("anything", func() error { return nil }))
}

func TestSaturatedWithTokenSkipsOp(t *testing.T) {
	g := NewGate()
	g.Declare("reg", BucketConfig{Size: 1, Rate: 1000})

	j, err := g.Ask("reg")
	require.NoError(t, err)
	defer j.Done()

	ran := false
	err = g.WithToken("reg", func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrOverloaded)
	assert.False(t, ran)
}
