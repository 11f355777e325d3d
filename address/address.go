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

// Package address derives the deterministic program addresses that hold
// poll accounts. Derivation is pure: the same poll identifier and program
// ID always produce the same address and bump, so any process can locate a
// poll without an index.
package address

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/gagliardetto/solana-go"
)

// PollSeed is the fixed seed prefix of every poll address.
const PollSeed = "poll"

// ErrInvalidIdentifier is returned for poll identifiers that cannot be
// represented as an unsigned 64-bit integer.
var ErrInvalidIdentifier = errors.New("invalid poll identifier")

var maxPollID = new(big.Int).SetUint64(^uint64(0))

// PollID identifies a poll within the program's address space
type PollID uint64

// ParsePollID parses a base 10 poll identifier
func ParsePollID(s string) (PollID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	return PollID(v), nil
}

// PollIDFromBig converts an arbitrary precision integer, rejecting values
// outside [0, 2^64-1]
func PollIDFromBig(v *big.Int) (PollID, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: nil", ErrInvalidIdentifier)
	}
	if v.Sign() < 0 || v.Cmp(maxPollID) > 0 {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidIdentifier, v)
	}
	return PollID(v.Uint64()), nil
}

// RandomPollID draws a uniformly random identifier. It does not check
// whether the identifier is already in use.
func RandomPollID() (PollID, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return PollID(binary.LittleEndian.Uint64(buf[:])), nil
}

// Bytes returns the little-endian 8 byte encoding used in the seeds
func (id PollID) Bytes() []byte {
	ret := make([]byte, 8)
	binary.LittleEndian.PutUint64(ret, uint64(id))
	return ret
}

func (id PollID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// DerivedAddress is a program derived address and the bump that moved it
// off the ed25519 curve
type DerivedAddress struct {
	Address solana.PublicKey
	Bump    uint8
}

// Seeds returns the seed list for a poll address, without the bump
func Seeds(id PollID) [][]byte {
	return [][]byte{[]byte(PollSeed), id.Bytes()}
}

// Derive computes the poll account address for id under programID
func Derive(id PollID, programID solana.PublicKey) (DerivedAddress, error) {
	addr, bump, err := solana.FindProgramAddress(Seeds(id), programID)
	if err != nil {
		return DerivedAddress{}, fmt.Errorf(
			"failed to derive address for poll %d: %w",
			id,
			err,
		)
	}
	return DerivedAddress{Address: addr, Bump: bump}, nil
}

// DeriveBig validates v before deriving its address
func DeriveBig(
	v *big.Int,
	programID solana.PublicKey,
) (DerivedAddress, error) {
	id, err := PollIDFromBig(v)
	if err != nil {
		return DerivedAddress{}, err
	}
	return Derive(id, programID)
}
