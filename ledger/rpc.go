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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Preflight simulation failures are reported with this JSON-RPC error code
const rpcCodePreflightFailure = -32002

// RPCClient implements Client against a Solana JSON-RPC endpoint
type RPCClient struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
}

// NewRPCClient returns a client for the JSON-RPC endpoint. An empty
// commitment defaults to confirmed.
func NewRPCClient(endpoint string, commitment rpc.CommitmentType) *RPCClient {
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &RPCClient{
		rpc:        rpc.New(endpoint),
		commitment: commitment,
	}
}

func (c *RPCClient) LatestBlockhash(ctx context.Context) (Blockhash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return Blockhash{}, fmt.Errorf("get latest blockhash: %w", mapRPCError(err))
	}
	if out == nil || out.Value == nil {
		return Blockhash{}, errors.New("get latest blockhash: empty response")
	}
	return Blockhash{
		Hash:                 out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

func (c *RPCClient) BlockHeight(ctx context.Context) (uint64, error) {
	height, err := c.rpc.GetBlockHeight(ctx, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get block height: %w", mapRPCError(err))
	}
	return height, nil
}

func (c *RPCClient) SimulateTransaction(
	ctx context.Context,
	tx *solana.Transaction,
) (SimulationResult, error) {
	out, err := c.rpc.SimulateTransactionWithOpts(
		ctx,
		tx,
		&rpc.SimulateTransactionOpts{
			SigVerify:  true,
			Commitment: c.commitment,
		},
	)
	if err != nil {
		return SimulationResult{}, fmt.Errorf("simulate transaction: %w", mapRPCError(err))
	}
	if out == nil || out.Value == nil {
		return SimulationResult{}, errors.New("simulate transaction: empty response")
	}
	return SimulationResult{
		Err:  out.Value.Err,
		Logs: out.Value.Logs,
	}, nil
}

func (c *RPCClient) SendTransaction(
	ctx context.Context,
	tx *solana.Transaction,
) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(
		ctx,
		tx,
		rpc.TransactionOpts{
			PreflightCommitment: c.commitment,
		},
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", mapRPCError(err))
	}
	return sig, nil
}

func (c *RPCClient) SignatureStatus(
	ctx context.Context,
	sig solana.Signature,
) (*SignatureStatus, error) {
	out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return nil, fmt.Errorf("get signature status: %w", mapRPCError(err))
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}
	status := out.Value[0]
	return &SignatureStatus{
		Slot:               status.Slot,
		Err:                status.Err,
		ConfirmationStatus: ConfirmationStatus(status.ConfirmationStatus),
	}, nil
}

func (c *RPCClient) Account(
	ctx context.Context,
	address solana.PublicKey,
) (Account, error) {
	out, err := c.rpc.GetAccountInfoWithOpts(
		ctx,
		address,
		&rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.commitment,
		},
	)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("get account %s: %w", address, mapRPCError(err))
	}
	if out == nil || out.Value == nil {
		return Account{}, ErrAccountNotFound
	}
	return convertAccount(out.Value), nil
}

func (c *RPCClient) ProgramAccounts(
	ctx context.Context,
	program solana.PublicKey,
	prefix []byte,
) ([]KeyedAccount, error) {
	opts := &rpc.GetProgramAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	}
	if len(prefix) > 0 {
		opts.Filters = []rpc.RPCFilter{
			{
				Memcmp: &rpc.RPCFilterMemcmp{
					Offset: 0,
					Bytes:  solana.Base58(prefix),
				},
			},
		}
	}
	out, err := c.rpc.GetProgramAccountsWithOpts(ctx, program, opts)
	if err != nil {
		return nil, fmt.Errorf("get program accounts: %w", mapRPCError(err))
	}
	ret := make([]KeyedAccount, 0, len(out))
	for _, keyed := range out {
		if keyed == nil || keyed.Account == nil {
			continue
		}
		ret = append(ret, KeyedAccount{
			Address: keyed.Pubkey,
			Account: convertAccount(keyed.Account),
		})
	}
	return ret, nil
}

func (c *RPCClient) Balance(
	ctx context.Context,
	address solana.PublicKey,
) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, address, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", mapRPCError(err))
	}
	return out.Value, nil
}

func (c *RPCClient) RequestAirdrop(
	ctx context.Context,
	address solana.PublicKey,
	lamports uint64,
) (solana.Signature, error) {
	sig, err := c.rpc.RequestAirdrop(ctx, address, lamports, c.commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("request airdrop: %w", mapRPCError(err))
	}
	return sig, nil
}

func convertAccount(acct *rpc.Account) Account {
	ret := Account{
		Owner:    acct.Owner,
		Lamports: acct.Lamports,
	}
	if acct.Data != nil {
		ret.Data = acct.Data.GetBinary()
	}
	return ret
}

// mapRPCError translates JSON-RPC error responses into ledger errors
func mapRPCError(err error) error {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	txErr := &TransactionError{Message: rpcErr.Message}
	if data, ok := rpcErr.Data.(map[string]any); ok {
		txErr.Err = data["err"]
		if logs, ok := data["logs"].([]any); ok {
			for _, l := range logs {
				if s, ok := l.(string); ok {
					txErr.Logs = append(txErr.Logs, s)
				}
			}
		}
	}
	if IsBlockhashNotFound(rpcErr.Message, txErr.Err) {
		return fmt.Errorf("%w: %s", ErrBlockhashNotFound, rpcErr.Message)
	}
	if rpcErr.Code != rpcCodePreflightFailure && txErr.Err == nil {
		return err
	}
	return txErr
}

// IsBlockhashNotFound reports whether a cluster error message or
// transaction error refers to an unknown or expired blockhash
func IsBlockhashNotFound(message string, txErr any) bool {
	if strings.Contains(strings.ToLower(message), "blockhash not found") {
		return true
	}
	if s, ok := txErr.(string); ok && s == "BlockhashNotFound" {
		return true
	}
	return false
}
