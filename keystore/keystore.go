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

// Package keystore owns the fee-payer signing identity. It persists an
// ed25519 key pair through a kv.Store and exposes it only as a signing
// capability, so callers never handle private key material directly.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/blinklabs-io/pollsync/kv"
)

// DefaultIdentityKey is the kv key the identity is persisted under
const DefaultIdentityKey = "signer"

// Common errors returned by KeyStore operations.
var (
	ErrSignerUnavailable = errors.New("signer unavailable")
	ErrInvalidKey        = errors.New("invalid key material")
	ErrNoStore           = errors.New("no key-value store configured")
)

// Signer is the signing capability handed to the transaction executor. It
// may be backed by a local key pair or by an external approval flow.
type Signer interface {
	// PublicKey returns the fee payer and signer address
	PublicKey() solana.PublicKey
	// SignTransaction adds this signer's signature to tx
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
	// SignTransactions signs each transaction in order
	SignTransactions(ctx context.Context, txs []*solana.Transaction) error
}

// KeyStoreConfig holds configuration for the KeyStore.
type KeyStoreConfig struct {
	// Store persists the identity across sessions
	Store kv.Store
	// IdentityKey is the key the identity is stored under.
	// Default: "signer"
	IdentityKey string
	// Logger for keystore events.
	Logger *slog.Logger
}

// KeyStore manages the signing identity
type KeyStore struct {
	config KeyStoreConfig
	logger *slog.Logger
	key    solana.PrivateKey
	mu     sync.RWMutex
}

// NewKeyStore creates a new KeyStore with the given configuration.
func NewKeyStore(config KeyStoreConfig) *KeyStore {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if config.IdentityKey == "" {
		config.IdentityKey = DefaultIdentityKey
	}
	return &KeyStore{
		config: config,
		logger: config.Logger.With("component", "keystore"),
	}
}

// Identity returns the public key of the signing identity, loading it from
// the store or generating and persisting a new one on first use. Repeated
// calls return the same identity.
func (ks *KeyStore) Identity(ctx context.Context) (solana.PublicKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.key != nil {
		return ks.key.PublicKey(), nil
	}
	err := ks.loadUnsafe(ctx)
	if err == nil {
		return ks.key.PublicKey(), nil
	}
	if !errors.Is(err, ErrSignerUnavailable) {
		return solana.PublicKey{}, err
	}
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to generate key pair: %w", err)
	}
	encoded, err := encodeKey(key)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := ks.config.Store.Set(ctx, ks.config.IdentityKey, encoded); err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to persist identity: %w", err)
	}
	ks.key = key
	ks.logger.Info(
		"generated new signing identity",
		"public_key", key.PublicKey().String(),
	)
	return key.PublicKey(), nil
}

// Load loads a previously persisted identity without creating one.
// Returns ErrSignerUnavailable if none exists.
func (ks *KeyStore) Load(ctx context.Context) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.key != nil {
		return nil
	}
	return ks.loadUnsafe(ctx)
}

func (ks *KeyStore) loadUnsafe(ctx context.Context) error {
	if ks.config.Store == nil {
		return ErrNoStore
	}
	raw, err := ks.config.Store.Get(ctx, ks.config.IdentityKey)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return ErrSignerUnavailable
		}
		return fmt.Errorf("failed to read identity: %w", err)
	}
	key, err := decodeKey(raw)
	if err != nil {
		return err
	}
	ks.key = key
	ks.logger.Debug(
		"loaded signing identity",
		"public_key", key.PublicKey().String(),
	)
	return nil
}

// IsLoaded returns true once an identity has been established
func (ks *KeyStore) IsLoaded() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.key != nil
}

// Signer returns the signing capability for the loaded identity.
// Returns ErrSignerUnavailable if no identity has been established.
func (ks *KeyStore) Signer() (Signer, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if ks.key == nil {
		return nil, ErrSignerUnavailable
	}
	return &localSigner{ks: ks, publicKey: ks.key.PublicKey()}, nil
}

// localSigner signs with the key held by the KeyStore. It holds no copy of
// the private key.
type localSigner struct {
	ks        *KeyStore
	publicKey solana.PublicKey
}

func (s *localSigner) PublicKey() solana.PublicKey {
	return s.publicKey
}

func (s *localSigner) SignTransaction(
	_ context.Context,
	tx *solana.Transaction,
) error {
	s.ks.mu.RLock()
	defer s.ks.mu.RUnlock()
	if s.ks.key == nil {
		return ErrSignerUnavailable
	}
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.publicKey) {
			return &s.ks.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}

func (s *localSigner) SignTransactions(
	ctx context.Context,
	txs []*solana.Transaction,
) error {
	for i, tx := range txs {
		if err := s.SignTransaction(ctx, tx); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	return nil
}
