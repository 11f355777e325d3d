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

// Package ledger defines the narrow view of a Solana cluster used by the
// rest of pollsync, along with an implementation over JSON-RPC.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrBlockhashNotFound = errors.New("blockhash not found")
)

// TransactionError is returned when the cluster rejects a transaction
// during preflight or simulation
type TransactionError struct {
	Message string
	// Err is the cluster-reported transaction error, e.g.
	// {"InstructionError":[0,{"Custom":0}]}
	Err  any
	Logs []string
}

func (e *TransactionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transaction rejected: %s (%v)", e.Message, e.Err)
	}
	return "transaction rejected: " + e.Message
}

// ConfirmationStatus is the commitment level a transaction has reached
type ConfirmationStatus string

const (
	StatusProcessed ConfirmationStatus = "processed"
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusFinalized ConfirmationStatus = "finalized"
)

// Reaches reports whether s is at least as strong as target
func (s ConfirmationStatus) Reaches(target ConfirmationStatus) bool {
	return s.rank() >= target.rank()
}

func (s ConfirmationStatus) rank() int {
	switch ConfirmationStatus(strings.ToLower(string(s))) {
	case StatusProcessed:
		return 1
	case StatusConfirmed:
		return 2
	case StatusFinalized:
		return 3
	default:
		return 0
	}
}

type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

type Account struct {
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

type KeyedAccount struct {
	Address solana.PublicKey
	Account Account
}

type SimulationResult struct {
	// Err is nil when the simulated transaction succeeded
	Err  any
	Logs []string
}

type SignatureStatus struct {
	Slot               uint64
	Err                any
	ConfirmationStatus ConfirmationStatus
}

// Client is the set of ledger operations pollsync depends on
type Client interface {
	LatestBlockhash(ctx context.Context) (Blockhash, error)
	BlockHeight(ctx context.Context) (uint64, error)
	SimulateTransaction(
		ctx context.Context,
		tx *solana.Transaction,
	) (SimulationResult, error)
	SendTransaction(
		ctx context.Context,
		tx *solana.Transaction,
	) (solana.Signature, error)
	// SignatureStatus returns nil when the cluster has no record of sig
	SignatureStatus(
		ctx context.Context,
		sig solana.Signature,
	) (*SignatureStatus, error)
	// Account returns ErrAccountNotFound when nothing is stored at address
	Account(ctx context.Context, address solana.PublicKey) (Account, error)
	// ProgramAccounts returns the accounts owned by program whose data
	// begins with prefix
	ProgramAccounts(
		ctx context.Context,
		program solana.PublicKey,
		prefix []byte,
	) ([]KeyedAccount, error)
	Balance(ctx context.Context, address solana.PublicKey) (uint64, error)
	RequestAirdrop(
		ctx context.Context,
		address solana.PublicKey,
		lamports uint64,
	) (solana.Signature, error)
}
