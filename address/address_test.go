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

package address_test

import (
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/pollsync/address"
)

var testProgramID = solana.MustPublicKeyFromBase58(
	"F1sVUCiy8AMdmcQYgo4QueoZPayWvkYHEqyCK7cP66tZ",
)

func TestDeriveDeterministic(t *testing.T) {
	for _, id := range []address.PollID{0, 1, 42, 1 << 40, ^address.PollID(0)} {
		first, err := address.Derive(id, testProgramID)
		require.NoError(t, err)
		for range 5 {
			again, err := address.Derive(id, testProgramID)
			require.NoError(t, err)
			assert.Equal(t, first, again, "poll %d", id)
		}
	}
}

func TestDeriveMatchesSeedScheme(t *testing.T) {
	derived, err := address.Derive(42, testProgramID)
	require.NoError(t, err)
	seeds := append(address.Seeds(42), []byte{derived.Bump})
	expected, err := solana.CreateProgramAddress(seeds, testProgramID)
	require.NoError(t, err)
	assert.Equal(t, expected, derived.Address)
}

func TestDeriveDistinct(t *testing.T) {
	a, err := address.Derive(1, testProgramID)
	require.NoError(t, err)
	b, err := address.Derive(2, testProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, b.Address)

	otherProgram := solana.SystemProgramID
	c, err := address.Derive(1, otherProgram)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, c.Address)
}

func TestPollIDBytesLittleEndian(t *testing.T) {
	assert.Equal(
		t,
		[]byte{0x2a, 0, 0, 0, 0, 0, 0, 0},
		address.PollID(42).Bytes(),
	)
	assert.Equal(
		t,
		[]byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01},
		address.PollID(0x0102030405060708).Bytes(),
	)
	seeds := address.Seeds(7)
	require.Len(t, seeds, 2)
	assert.Equal(t, []byte("poll"), seeds[0])
}

func TestParsePollID(t *testing.T) {
	id, err := address.ParsePollID("18446744073709551615")
	require.NoError(t, err)
	assert.Equal(t, ^address.PollID(0), id)

	for _, bad := range []string{"-1", "18446744073709551616", "abc", ""} {
		_, err := address.ParsePollID(bad)
		assert.ErrorIs(t, err, address.ErrInvalidIdentifier, bad)
	}
}

func TestDeriveBigOutOfRange(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 64)
	_, err := address.DeriveBig(tooBig, testProgramID)
	assert.ErrorIs(t, err, address.ErrInvalidIdentifier)

	_, err = address.DeriveBig(big.NewInt(-1), testProgramID)
	assert.ErrorIs(t, err, address.ErrInvalidIdentifier)

	_, err = address.DeriveBig(nil, testProgramID)
	assert.ErrorIs(t, err, address.ErrInvalidIdentifier)

	maxID := new(big.Int).Sub(tooBig, big.NewInt(1))
	viaBig, err := address.DeriveBig(maxID, testProgramID)
	require.NoError(t, err)
	direct, err := address.Derive(^address.PollID(0), testProgramID)
	require.NoError(t, err)
	assert.Equal(t, direct, viaBig)
}

func TestRandomPollID(t *testing.T) {
	a, err := address.RandomPollID()
	require.NoError(t, err)
	b, err := address.RandomPollID()
	require.NoError(t, err)
	// 1 in 2^64 chance of a false failure
	assert.NotEqual(t, a, b)
}
