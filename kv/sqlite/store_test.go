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

package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/pollsync/kv"
	"github.com/blinklabs-io/pollsync/kv/sqlite"
)

func TestStoreInMemory(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New("", nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(ctx, "signer")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, store.Set(ctx, "signer", []byte("first")))
	require.NoError(t, store.Set(ctx, "signer", []byte("second")))
	got, err := store.Get(ctx, "signer")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()

	store, err := sqlite.New(dataDir, nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "signer", []byte{9, 8, 7}))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(dataDir, nil)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(ctx, "signer")
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, got)
}
