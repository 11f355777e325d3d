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

package keystore

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Key material is stored in the solana-keygen file format: a JSON array of
// the 64 secret key bytes (32 byte seed followed by the public key).

func encodeKey(key solana.PrivateKey) ([]byte, error) {
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	return json.Marshal(ints)
}

func decodeKey(raw []byte) (solana.PrivateKey, error) {
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidKey,
			ed25519.PrivateKeySize,
			len(ints),
		)
	}
	key := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: byte %d out of range", ErrInvalidKey, i)
		}
		key[i] = byte(v)
	}
	// The public half must match the seed
	expected := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	if !bytes.Equal(expected, key) {
		return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidKey)
	}
	return solana.PrivateKey(key), nil
}
