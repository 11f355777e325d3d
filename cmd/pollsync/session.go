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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/pollsync"
	"github.com/blinklabs-io/pollsync/internal/config"
	"github.com/blinklabs-io/pollsync/internal/tracing"
	"github.com/blinklabs-io/pollsync/keystore"
	"github.com/blinklabs-io/pollsync/kv"
	kvbadger "github.com/blinklabs-io/pollsync/kv/badger"
	kvsqlite "github.com/blinklabs-io/pollsync/kv/sqlite"
	"github.com/blinklabs-io/pollsync/ledger"
	"github.com/blinklabs-io/pollsync/program"
)

// session holds everything a command needs to talk to the cluster
type session struct {
	client   *pollsync.Client
	keyStore *keystore.KeyStore
	store    kv.Store
	logger   *slog.Logger
	shutdown []func(context.Context) error
}

func openStore(cfg *config.Config, logger *slog.Logger) (kv.Store, error) {
	switch cfg.KeyStore {
	case config.KeyStoreMemory:
		return kv.NewMemory(), nil
	case config.KeyStoreSqlite:
		return kvsqlite.New(cfg.DataDir, logger)
	default:
		return kvbadger.New(
			kvbadger.WithDataDir(cfg.DataDir),
			kvbadger.WithLogger(logger),
		)
	}
}

func loadInterface(cfg *config.Config) (program.Interface, error) {
	iface := program.DefaultInterface()
	if cfg.IdlPath != "" {
		var err error
		iface, err = program.LoadInterfaceFile(cfg.IdlPath)
		if err != nil {
			return program.Interface{}, err
		}
	}
	if cfg.ProgramID != "" {
		programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
		if err != nil {
			return program.Interface{}, fmt.Errorf("invalid programId: %w", err)
		}
		iface.ProgramID = programID
	}
	return iface, nil
}

func newSession(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*session, error) {
	s := &session{logger: logger}
	if cfg.Tracing {
		shutdown, err := tracing.Setup(ctx, cfg.TracingStdout)
		if err != nil {
			return nil, err
		}
		s.shutdown = append(s.shutdown, shutdown)
	}
	iface, err := loadInterface(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}
	s.store = store
	s.shutdown = append(s.shutdown, func(context.Context) error {
		return store.Close()
	})
	s.keyStore = keystore.NewKeyStore(keystore.KeyStoreConfig{
		Store:       store,
		IdentityKey: cfg.IdentityKey,
		Logger:      logger,
	})
	if _, err := s.keyStore.Identity(ctx); err != nil {
		s.Close()
		return nil, err
	}
	signer, err := s.keyStore.Signer()
	if err != nil {
		s.Close()
		return nil, err
	}
	confirmTimeout, err := cfg.ConfirmTimeoutDuration()
	if err != nil {
		s.Close()
		return nil, err
	}
	pollDuration, err := cfg.PollDurationValue()
	if err != nil {
		s.Close()
		return nil, err
	}
	client, err := pollsync.New(pollsync.NewConfig(
		pollsync.WithLedger(
			ledger.NewRPCClient(cfg.RPCEndpoint, rpc.CommitmentType(cfg.Commitment)),
		),
		pollsync.WithSigner(signer),
		pollsync.WithProgramInterface(iface),
		pollsync.WithLogger(logger),
		pollsync.WithPrometheusRegistry(promRegistry),
		pollsync.WithCommitment(ledger.ConfirmationStatus(cfg.Commitment)),
		pollsync.WithConfirmTimeout(confirmTimeout),
		pollsync.WithPollDuration(pollDuration),
		pollsync.WithSkipSimulation(cfg.SkipSimulation),
	))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.client = client
	return s, nil
}

func (s *session) Close() {
	if s.client != nil {
		s.client.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	// Shut down in reverse order of setup
	for i := len(s.shutdown) - 1; i >= 0; i-- {
		if err := s.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("shutdown failed", "error", err)
	}
}
