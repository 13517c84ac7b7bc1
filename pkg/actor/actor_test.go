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

package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxSendReceive(t *testing.T) {
	mb := NewMailbox(4)
	mb.Send("hello")

	msg, err := mb.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", msg)
}

func TestMailboxReceiveCanceled(t *testing.T) {
	mb := NewMailbox(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg, err := mb.Receive(ctx)
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMailboxTrySend(t *testing.T) {
	mb := NewMailbox(1)
	assert.True(t, mb.TrySend(1))
	assert.False(t, mb.TrySend(2), "full mailbox must not accept")

	msg, err := mb.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, msg)
	assert.True(t, mb.TrySend(3))
}

func TestMailboxOrdering(t *testing.T) {
	mb := NewMailbox(8)
	for i := 0; i < 5; i++ {
		mb.Send(i)
	}
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		msg, err := mb.Receive(ctx)
		cancel()
		require.NoError(t, err)
		assert.Equal(t, i, msg)
	}
	assert.Equal(t, 0, mb.Len())
}
