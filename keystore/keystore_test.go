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

package keystore_test

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/pollsync/keystore"
	"github.com/blinklabs-io/pollsync/kv"
	"github.com/blinklabs-io/pollsync/kv/badger"
	"github.com/blinklabs-io/pollsync/kv/sqlite"
)

func newTestTransaction(
	t *testing.T,
	payer solana.PublicKey,
) *solana.Transaction {
	t.Helper()
	instr := solana.NewInstruction(
		solana.SystemProgramID,
		solana.AccountMetaSlice{solana.NewAccountMeta(payer, true, true)},
		[]byte{},
	)
	tx, err := solana.NewTransaction(
		[]solana.Instruction{instr},
		solana.Hash{1, 2, 3},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	return tx
}

func verifySignature(
	t *testing.T,
	tx *solana.Transaction,
	pub solana.PublicKey,
) bool {
	t.Helper()
	require.NotEmpty(t, tx.Signatures)
	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	return ed25519.Verify(pub[:], msg, tx.Signatures[0][:])
}

func TestIdentityCreatedOnFirstUse(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	ks := keystore.NewKeyStore(keystore.KeyStoreConfig{Store: store})

	assert.False(t, ks.IsLoaded())
	_, err := ks.Signer()
	assert.ErrorIs(t, err, keystore.ErrSignerUnavailable)
	assert.ErrorIs(t, ks.Load(ctx), keystore.ErrSignerUnavailable)

	pub, err := ks.Identity(ctx)
	require.NoError(t, err)
	assert.False(t, pub.IsZero())
	assert.True(t, ks.IsLoaded())

	again, err := ks.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, pub, again)

	raw, err := store.Get(ctx, keystore.DefaultIdentityKey)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestIdentityPersistsAcrossSessions(t *testing.T) {
	ctx := context.Background()
	badgerStore, err := badger.New(badger.WithDataDir(t.TempDir()))
	require.NoError(t, err)
	defer badgerStore.Close()
	sqliteStore, err := sqlite.New(t.TempDir(), nil)
	require.NoError(t, err)
	defer sqliteStore.Close()

	stores := map[string]kv.Store{
		"memory": kv.NewMemory(),
		"badger": badgerStore,
		"sqlite": sqliteStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			first := keystore.NewKeyStore(keystore.KeyStoreConfig{
				Store:       store,
				IdentityKey: "test-signer",
			})
			pub, err := first.Identity(ctx)
			require.NoError(t, err)

			second := keystore.NewKeyStore(keystore.KeyStoreConfig{
				Store:       store,
				IdentityKey: "test-signer",
			})
			require.NoError(t, second.Load(ctx))
			signer, err := second.Signer()
			require.NoError(t, err)
			assert.Equal(t, pub, signer.PublicKey())
		})
	}
}

func TestSignTransaction(t *testing.T) {
	ctx := context.Background()
	ks := keystore.NewKeyStore(keystore.KeyStoreConfig{Store: kv.NewMemory()})
	pub, err := ks.Identity(ctx)
	require.NoError(t, err)
	signer, err := ks.Signer()
	require.NoError(t, err)

	tx := newTestTransaction(t, pub)
	require.NoError(t, signer.SignTransaction(ctx, tx))
	assert.True(t, verifySignature(t, tx, pub))

	batch := []*solana.Transaction{
		newTestTransaction(t, pub),
		newTestTransaction(t, pub),
	}
	require.NoError(t, signer.SignTransactions(ctx, batch))
	for _, btx := range batch {
		assert.True(t, verifySignature(t, btx, pub))
	}
}

func TestSignTransactionForeignPayer(t *testing.T) {
	ctx := context.Background()
	ks := keystore.NewKeyStore(keystore.KeyStoreConfig{Store: kv.NewMemory()})
	_, err := ks.Identity(ctx)
	require.NoError(t, err)
	signer, err := ks.Signer()
	require.NoError(t, err)

	other, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	tx := newTestTransaction(t, other.PublicKey())
	assert.Error(t, signer.SignTransaction(ctx, tx))
}

func TestLoadInvalidKeyMaterial(t *testing.T) {
	ctx := context.Background()
	testDefs := []struct {
		name string
		raw  []byte
	}{
		{name: "not json", raw: []byte("garbage")},
		{name: "short", raw: []byte("[1,2,3]")},
		{name: "out of range", raw: []byte("[" + repeatByte("300", 64) + "]")},
		{name: "mismatched public key", raw: []byte("[" + repeatByte("1", 64) + "]")},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			store := kv.NewMemory()
			require.NoError(t, store.Set(ctx, keystore.DefaultIdentityKey, testDef.raw))
			ks := keystore.NewKeyStore(keystore.KeyStoreConfig{Store: store})
			assert.ErrorIs(t, ks.Load(ctx), keystore.ErrInvalidKey)
			_, err := ks.Identity(ctx)
			assert.ErrorIs(t, err, keystore.ErrInvalidKey)
			assert.False(t, ks.IsLoaded())
		})
	}
}

func TestLoadWithoutStore(t *testing.T) {
	ks := keystore.NewKeyStore(keystore.KeyStoreConfig{})
	assert.ErrorIs(t, ks.Load(context.Background()), keystore.ErrNoStore)
}

func TestApprovalSigner(t *testing.T) {
	ctx := context.Background()
	wallet, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	var approvals int
	signer := keystore.NewApprovalSigner(
		wallet.PublicKey(),
		func(_ context.Context, message []byte) (solana.Signature, error) {
			approvals++
			return wallet.Sign(message)
		},
	)

	tx := newTestTransaction(t, wallet.PublicKey())
	require.NoError(t, signer.SignTransaction(ctx, tx))
	assert.Equal(t, 1, approvals)
	assert.True(t, verifySignature(t, tx, wallet.PublicKey()))

	rejecting := keystore.NewApprovalSigner(
		wallet.PublicKey(),
		func(context.Context, []byte) (solana.Signature, error) {
			return solana.Signature{}, errors.New("user rejected")
		},
	)
	assert.Error(t, rejecting.SignTransaction(ctx, newTestTransaction(t, wallet.PublicKey())))

	unavailable := keystore.NewApprovalSigner(wallet.PublicKey(), nil)
	assert.ErrorIs(
		t,
		unavailable.SignTransaction(ctx, newTestTransaction(t, wallet.PublicKey())),
		keystore.ErrSignerUnavailable,
	)
}

func repeatByte(v string, n int) string {
	ret := v
	for range n - 1 {
		ret += "," + v
	}
	return ret
}
