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
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ApproveFunc asks an external wallet to sign a serialized transaction
// message, returning the signature
type ApproveFunc func(ctx context.Context, message []byte) (solana.Signature, error)

// ApprovalSigner is a Signer that delegates to an external approval flow,
// such as a browser or hardware wallet
type ApprovalSigner struct {
	publicKey solana.PublicKey
	approve   ApproveFunc
}

func NewApprovalSigner(
	publicKey solana.PublicKey,
	approve ApproveFunc,
) *ApprovalSigner {
	return &ApprovalSigner{
		publicKey: publicKey,
		approve:   approve,
	}
}

func (a *ApprovalSigner) PublicKey() solana.PublicKey {
	return a.publicKey
}

func (a *ApprovalSigner) SignTransaction(
	ctx context.Context,
	tx *solana.Transaction,
) error {
	if a.approve == nil {
		return ErrSignerUnavailable
	}
	numSigners := int(tx.Message.Header.NumRequiredSignatures)
	idx := -1
	for i := 0; i < numSigners && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(a.publicKey) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf(
			"%s is not a required signer of the transaction",
			a.publicKey,
		)
	}
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}
	sig, err := a.approve(ctx, message)
	if err != nil {
		return fmt.Errorf("signing not approved: %w", err)
	}
	if sig == (solana.Signature{}) {
		return errors.New("wallet returned an empty signature")
	}
	if len(tx.Signatures) != numSigners {
		tx.Signatures = make([]solana.Signature, numSigners)
	}
	tx.Signatures[idx] = sig
	return nil
}

func (a *ApprovalSigner) SignTransactions(
	ctx context.Context,
	txs []*solana.Transaction,
) error {
	for i, tx := range txs {
		if err := a.SignTransaction(ctx, tx); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	return nil
}
