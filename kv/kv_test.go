// Copyright 2026 Blink Labs Software
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

package kv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/pollsync/kv"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	value := []byte("value")
	require.NoError(t, store.Set(ctx, "key", value))
	// Mutating the caller's slice must not change the stored value
	value[0] = 'X'
	got, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	require.NoError(t, store.Set(ctx, "key", []byte("other")))
	got, err = store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("other"), got)

	require.NoError(t, store.Close())
	_, err = store.Get(ctx, "key")
	assert.ErrorIs(t, err, kv.ErrClosed)
	assert.ErrorIs(t, store.Set(ctx, "key", nil), kv.ErrClosed)
}
