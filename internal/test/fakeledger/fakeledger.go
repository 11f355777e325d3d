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

// Package fakeledger is an in-process ledger.Client that runs the voting
// program's initialize_poll semantics. It records every call and can
// inject the failure modes of a real cluster.
package fakeledger

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/blinklabs-io/pollsync/address"
	"github.com/blinklabs-io/pollsync/ledger"
	"github.com/blinklabs-io/pollsync/program"
)

// Method names used in the call log
const (
	MethodLatestBlockhash     = "LatestBlockhash"
	MethodBlockHeight         = "BlockHeight"
	MethodSimulateTransaction = "SimulateTransaction"
	MethodSendTransaction     = "SendTransaction"
	MethodSignatureStatus     = "SignatureStatus"
	MethodAccount             = "Account"
	MethodProgramAccounts     = "ProgramAccounts"
	MethodBalance             = "Balance"
	MethodRequestAirdrop      = "RequestAirdrop"
)

// DefaultBlockhashValidity matches the number of blocks a Solana blockhash
// stays valid for
const DefaultBlockhashValidity = 150

const rentExemptLamports = 3_340_800

// Ledger implements ledger.Client in memory
type Ledger struct {
	mu          sync.Mutex
	iface       program.Interface
	accounts    map[solana.PublicKey]ledger.Account
	statuses    map[solana.Signature]*ledger.SignatureStatus
	blockhashes map[solana.Hash]uint64
	sent        []*solana.Transaction
	calls       []string
	height      uint64
	slot        uint64
	seq         uint64
	validity    uint64
	// Fault injection
	sendErr       error
	hideStatuses  bool
	discardSends  bool
	heightStep    uint64
	statusLevel   ledger.ConfirmationStatus
	blockhashHook func()
}

// New returns an empty ledger hosting the program described by iface
func New(iface program.Interface) *Ledger {
	return &Ledger{
		iface:       iface,
		accounts:    make(map[solana.PublicKey]ledger.Account),
		statuses:    make(map[solana.Signature]*ledger.SignatureStatus),
		blockhashes: make(map[solana.Hash]uint64),
		height:      1000,
		slot:        2000,
		validity:    DefaultBlockhashValidity,
		statusLevel: ledger.StatusConfirmed,
	}
}

// SetSendError makes every SendTransaction call fail with err
func (l *Ledger) SetSendError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// SetHideStatuses makes transactions land without their status ever
// becoming visible
func (l *Ledger) SetHideStatuses(hide bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hideStatuses = hide
}

// SetDiscardSubmissions makes accepted transactions silently never land
func (l *Ledger) SetDiscardSubmissions(discard bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discardSends = discard
}

// SetBlockHeightStep advances the block height by step on every
// BlockHeight call
func (l *Ledger) SetBlockHeightStep(step uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.heightStep = step
}

// SetStatusLevel sets the confirmation status reported for landed
// transactions
func (l *Ledger) SetStatusLevel(status ledger.ConfirmationStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statusLevel = status
}

// OnLatestBlockhash registers a function called after each blockhash is
// issued, outside the ledger lock
func (l *Ledger) OnLatestBlockhash(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blockhashHook = fn
}

// AdvanceBlockHeight moves the chain forward by n blocks
func (l *Ledger) AdvanceBlockHeight(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height += n
	l.slot += n
}

func (l *Ledger) SetAccount(addr solana.PublicKey, acct ledger.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct.Data = bytes.Clone(acct.Data)
	l.accounts[addr] = acct
}

func (l *Ledger) SetBalance(addr solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[addr]
	if !ok {
		acct.Owner = solana.SystemProgramID
	}
	acct.Lamports = lamports
	l.accounts[addr] = acct
}

// CallCount returns how many times method was called
func (l *Ledger) CallCount(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ret int
	for _, c := range l.calls {
		if c == method {
			ret++
		}
	}
	return ret
}

func (l *Ledger) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

// Calls returns the ordered call log
func (l *Ledger) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

func (l *Ledger) ResetCalls() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// Sent returns every transaction passed to SendTransaction
func (l *Ledger) Sent() []*solana.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.sent)
}

// PollCount returns the number of poll accounts stored
func (l *Ledger) PollCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ret int
	for _, acct := range l.accounts {
		if acct.Owner.Equals(l.iface.ProgramID) {
			ret++
		}
	}
	return ret
}

func (l *Ledger) record(method string) {
	l.calls = append(l.calls, method)
}

func (l *Ledger) nextHash() solana.Hash {
	l.seq++
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], l.seq)
	return solana.Hash(sha256.Sum256(buf[:]))
}

func (l *Ledger) LatestBlockhash(_ context.Context) (ledger.Blockhash, error) {
	l.mu.Lock()
	l.record(MethodLatestBlockhash)
	hash := l.nextHash()
	lastValid := l.height + l.validity
	l.blockhashes[hash] = lastValid
	hook := l.blockhashHook
	l.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ledger.Blockhash{Hash: hash, LastValidBlockHeight: lastValid}, nil
}

func (l *Ledger) BlockHeight(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(MethodBlockHeight)
	l.height += l.heightStep
	l.slot += l.heightStep
	return l.height, nil
}

func (l *Ledger) SimulateTransaction(
	_ context.Context,
	tx *solana.Transaction,
) (ledger.SimulationResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(MethodSimulateTransaction)
	if err := l.verifySignatures(tx); err != nil {
		return ledger.SimulationResult{}, err
	}
	if !l.blockhashValid(tx.Message.RecentBlockhash) {
		return ledger.SimulationResult{Err: "BlockhashNotFound"}, nil
	}
	res := l.process(tx)
	return ledger.SimulationResult{Err: res.err, Logs: res.logs}, nil
}

func (l *Ledger) SendTransaction(
	_ context.Context,
	tx *solana.Transaction,
) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(MethodSendTransaction)
	l.sent = append(l.sent, tx)
	if l.sendErr != nil {
		return solana.Signature{}, l.sendErr
	}
	if err := l.verifySignatures(tx); err != nil {
		return solana.Signature{}, err
	}
	sig := tx.Signatures[0]
	if _, ok := l.statuses[sig]; ok {
		// Duplicate submission
		return sig, nil
	}
	if !l.blockhashValid(tx.Message.RecentBlockhash) {
		return solana.Signature{}, fmt.Errorf(
			"%w: transaction simulation failed",
			ledger.ErrBlockhashNotFound,
		)
	}
	res := l.process(tx)
	if res.err != nil {
		// Preflight rejection
		return solana.Signature{}, &ledger.TransactionError{
			Message: "Transaction simulation failed: Error processing Instruction 0",
			Err:     res.err,
			Logs:    res.logs,
		}
	}
	if l.discardSends {
		return sig, nil
	}
	res.apply()
	l.slot++
	l.statuses[sig] = &ledger.SignatureStatus{
		Slot:               l.slot,
		ConfirmationStatus: l.statusLevel,
	}
	return sig, nil
}

func (l *Ledger) SignatureStatus(
	_ context.Context,
	sig solana.Signature,
) (*ledger.SignatureStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(MethodSignatureStatus)
	if l.hideStatuses {
		return nil, nil
	}
	status, ok := l.statuses[sig]
	if !ok {
		return nil, nil
	}
	ret := *status
	return &ret, nil
}

func (l *Ledger) Account(
	_ context.Context,
	addr solana.PublicKey,
) (ledger.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(MethodAccount)
	acct, ok := l.accounts[addr]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	acct.Data = bytes.Clone(acct.Data)
	return acct, nil
}

func (l *Ledger) ProgramAccounts(
	_ context.Context,
	programID solana.PublicKey,
	prefix []byte,
) ([]ledger.KeyedAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(MethodProgramAccounts)
	var ret []ledger.KeyedAccount
	for addr, acct := range l.accounts {
		if !acct.Owner.Equals(programID) {
			continue
		}
		if !bytes.HasPrefix(acct.Data, prefix) {
			continue
		}
		acct.Data = bytes.Clone(acct.Data)
		ret = append(ret, ledger.KeyedAccount{Address: addr, Account: acct})
	}
	slices.SortFunc(ret, func(a, b ledger.KeyedAccount) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})
	return ret, nil
}

func (l *Ledger) Balance(
	_ context.Context,
	addr solana.PublicKey,
) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(MethodBalance)
	return l.accounts[addr].Lamports, nil
}

func (l *Ledger) RequestAirdrop(
	_ context.Context,
	addr solana.PublicKey,
	lamports uint64,
) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(MethodRequestAirdrop)
	acct, ok := l.accounts[addr]
	if !ok {
		acct.Owner = solana.SystemProgramID
	}
	acct.Lamports += lamports
	l.accounts[addr] = acct
	hash := l.nextHash()
	var sig solana.Signature
	copy(sig[:], hash[:])
	copy(sig[32:], hash[:])
	l.slot++
	l.statuses[sig] = &ledger.SignatureStatus{
		Slot:               l.slot,
		ConfirmationStatus: l.statusLevel,
	}
	return sig, nil
}

func (l *Ledger) blockhashValid(hash solana.Hash) bool {
	lastValid, ok := l.blockhashes[hash]
	return ok && l.height <= lastValid
}

func (l *Ledger) verifySignatures(tx *solana.Transaction) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("invalid transaction message: %w", err)
	}
	numSigners := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) != numSigners || numSigners == 0 {
		return &ledger.TransactionError{
			Message: "Transaction signature verification failure",
		}
	}
	for i := range numSigners {
		key := tx.Message.AccountKeys[i]
		if !ed25519.Verify(key[:], msg, tx.Signatures[i][:]) {
			return &ledger.TransactionError{
				Message: "Transaction signature verification failure",
			}
		}
	}
	return nil
}

type result struct {
	err   any
	logs  []string
	apply func()
}

func instructionError(idx int, code int) map[string]any {
	return map[string]any{
		"InstructionError": []any{idx, map[string]any{"Custom": code}},
	}
}

// process runs every instruction of tx against a copy of the state. The
// returned apply commits the result.
func (l *Ledger) process(tx *solana.Transaction) result {
	var logs []string
	created := make(map[solana.PublicKey]ledger.Account)
	keys := tx.Message.AccountKeys
	numSigners := int(tx.Message.Header.NumRequiredSignatures)
	for idx, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(keys) {
			return result{err: "InvalidAccountIndex", logs: logs}
		}
		programID := keys[inst.ProgramIDIndex]
		logs = append(logs, fmt.Sprintf("Program %s invoke [1]", programID))
		if !programID.Equals(l.iface.ProgramID) {
			return result{
				err:  map[string]any{"InstructionError": []any{idx, "UnsupportedProgramId"}},
				logs: logs,
			}
		}
		rec, err := program.DecodeInitializePoll(l.iface, inst.Data)
		if err != nil {
			logs = append(
				logs,
				"Program log: AnchorError occurred. Error Code: InstructionFallbackNotFound. Error Number: 101. Error Message: Fallback functions are not supported.",
				fmt.Sprintf("Program %s failed: custom program error: 0x65", programID),
			)
			return result{err: instructionError(idx, 101), logs: logs}
		}
		if len(inst.Accounts) < 3 {
			logs = append(
				logs,
				"Program log: AnchorError occurred. Error Code: AccountNotEnoughKeys. Error Number: 3005. Error Message: Not enough account keys given to the instruction.",
			)
			return result{err: instructionError(idx, 3005), logs: logs}
		}
		for _, acctIdx := range inst.Accounts {
			if int(acctIdx) >= len(keys) {
				return result{err: "InvalidAccountIndex", logs: logs}
			}
		}
		pollKey := keys[inst.Accounts[0]]
		payerIdx := int(inst.Accounts[1])
		pda, err := address.Derive(rec.PollID, l.iface.ProgramID)
		if err != nil || !pda.Address.Equals(pollKey) {
			logs = append(
				logs,
				"Program log: AnchorError caused by account: poll. Error Code: ConstraintSeeds. Error Number: 2006. Error Message: A seeds constraint was violated.",
			)
			return result{err: instructionError(idx, 2006), logs: logs}
		}
		if payerIdx >= numSigners {
			logs = append(
				logs,
				"Program log: AnchorError caused by account: signer. Error Code: AccountNotSigner. Error Number: 3010. Error Message: The given account did not sign.",
			)
			return result{err: instructionError(idx, 3010), logs: logs}
		}
		if len(rec.Name) > l.iface.MaxNameLen || len(rec.Description) > l.iface.MaxDescriptionLen {
			logs = append(
				logs,
				"Program log: AnchorError occurred. Error Code: PayloadTooLarge. Error Number: 6000. Error Message: Poll field exceeds maximum length.",
			)
			return result{err: instructionError(idx, 6000), logs: logs}
		}
		_, exists := l.accounts[pollKey]
		if _, pending := created[pollKey]; exists || pending {
			logs = append(
				logs,
				"Program 11111111111111111111111111111111 invoke [2]",
				fmt.Sprintf(
					"Allocate: account Address { address: %s, base: None } already in use",
					pollKey,
				),
				"Program 11111111111111111111111111111111 failed: custom program error: 0x0",
				fmt.Sprintf("Program %s failed: custom program error: 0x0", programID),
			)
			return result{err: instructionError(idx, 0), logs: logs}
		}
		data, err := program.EncodePollAccount(l.iface, rec)
		if err != nil {
			return result{err: instructionError(idx, 6000), logs: logs}
		}
		logs = append(
			logs,
			"Program 11111111111111111111111111111111 invoke [2]",
			"Program 11111111111111111111111111111111 success",
			"Program log: Instruction: InitializePoll",
			fmt.Sprintf("Program %s success", programID),
		)
		created[pollKey] = ledger.Account{
			Owner:    l.iface.ProgramID,
			Lamports: rentExemptLamports,
			Data:     data,
		}
	}
	return result{
		logs: logs,
		apply: func() {
			for addr, acct := range created {
				l.accounts[addr] = acct
			}
		},
	}
}
