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

// Package program is the client for the on-chain voting program. It builds
// initialize_poll instructions and reads poll accounts.
package program

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/blinklabs-io/pollsync/address"
	"github.com/blinklabs-io/pollsync/ledger"
)

var (
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrDecode            = errors.New("decode error")
	ErrPollAlreadyExists = errors.New("poll already exists")
	ErrAccountNotFound   = ledger.ErrAccountNotFound
)

type ClientConfig struct {
	Ledger ledger.Client
	// Interface defaults to the embedded voting program IDL
	Interface *Interface
	Logger    *slog.Logger
}

type Client struct {
	ledger ledger.Client
	iface  Interface
	logger *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	c := &Client{
		ledger: cfg.Ledger,
		logger: cfg.Logger.With("component", "program"),
	}
	if cfg.Interface != nil {
		c.iface = *cfg.Interface
	} else {
		c.iface = DefaultInterface()
	}
	return c
}

func (c *Client) Interface() Interface {
	return c.iface
}

func (c *Client) ProgramID() solana.PublicKey {
	return c.iface.ProgramID
}

// Derive returns the poll account address for id
func (c *Client) Derive(id address.PollID) (address.DerivedAddress, error) {
	return address.Derive(id, c.iface.ProgramID)
}

// ValidatePoll checks the poll fields against the program limits
func (c *Client) ValidatePoll(name string, description string, start int64, end int64) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidPayload)
	}
	if description == "" {
		return fmt.Errorf("%w: description is empty", ErrInvalidPayload)
	}
	if len(name) > c.iface.MaxNameLen {
		return fmt.Errorf(
			"%w: name is %d bytes, maximum is %d",
			ErrPayloadTooLarge,
			len(name),
			c.iface.MaxNameLen,
		)
	}
	if len(description) > c.iface.MaxDescriptionLen {
		return fmt.Errorf(
			"%w: description is %d bytes, maximum is %d",
			ErrPayloadTooLarge,
			len(description),
			c.iface.MaxDescriptionLen,
		)
	}
	if start >= end {
		return fmt.Errorf(
			"%w: voting start %d is not before voting end %d",
			ErrInvalidPayload,
			start,
			end,
		)
	}
	return nil
}

// BuildInitializePoll returns an unsigned initialize_poll instruction. It
// makes no network calls.
func (c *Client) BuildInitializePoll(
	id address.PollID,
	name string,
	description string,
	start int64,
	end int64,
	payer solana.PublicKey,
) (solana.Instruction, error) {
	if err := c.ValidatePoll(name, description, start, end); err != nil {
		return nil, err
	}
	pda, err := c.Derive(id)
	if err != nil {
		return nil, err
	}
	data, err := EncodeInitializePoll(c.iface, PollRecord{
		PollID:      id,
		Name:        name,
		Description: description,
		VotingStart: start,
		VotingEnd:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("encode initialize_poll: %w", err)
	}
	return solana.NewInstruction(
		c.iface.ProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(pda.Address, true, false),
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
		},
		data,
	), nil
}

// FetchPoll reads and decodes the poll account at addr
func (c *Client) FetchPoll(
	ctx context.Context,
	addr solana.PublicKey,
) (*PollRecord, error) {
	acct, err := c.ledger.Account(ctx, addr)
	if err != nil {
		return nil, err
	}
	rec, err := c.decodeAccount(addr, acct)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) decodeAccount(
	addr solana.PublicKey,
	acct ledger.Account,
) (PollRecord, error) {
	if !acct.Owner.Equals(c.iface.ProgramID) {
		return PollRecord{}, fmt.Errorf(
			"%w: account %s is owned by %s",
			ErrDecode,
			addr,
			acct.Owner,
		)
	}
	rec, err := DecodePollAccount(c.iface, acct.Data)
	if err != nil {
		return PollRecord{}, fmt.Errorf("account %s: %w", addr, err)
	}
	return rec, nil
}

// ListPolls scans the program's poll accounts once and returns an iterator
// over the results
func (c *Client) ListPolls(ctx context.Context) (*PollIterator, error) {
	accts, err := c.ledger.ProgramAccounts(
		ctx,
		c.iface.ProgramID,
		c.iface.PollAccountDiscriminator[:],
	)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("scanned poll accounts", "count", len(accts))
	return &PollIterator{client: c, accounts: accts, pos: -1}, nil
}

// PollIterator yields the polls from a single scan. Records are decoded as
// the iterator advances. It cannot be restarted.
type PollIterator struct {
	client   *Client
	accounts []ledger.KeyedAccount
	pos      int
	addr     solana.PublicKey
	record   PollRecord
	err      error
}

// Next advances to the next poll. It returns false when the scan is
// exhausted or a record fails to decode.
func (it *PollIterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.pos++
	if it.pos >= len(it.accounts) {
		it.pos = len(it.accounts)
		return false
	}
	keyed := it.accounts[it.pos]
	rec, err := it.client.decodeAccount(keyed.Address, keyed.Account)
	if err != nil {
		it.err = err
		return false
	}
	it.addr = keyed.Address
	it.record = rec
	return true
}

func (it *PollIterator) Address() solana.PublicKey {
	return it.addr
}

func (it *PollIterator) Record() PollRecord {
	return it.record
}

// Err returns the decode error that stopped iteration, if any
func (it *PollIterator) Err() error {
	return it.err
}

// Poll pairs a poll account address with its record
type Poll struct {
	Address solana.PublicKey
	Record  PollRecord
}

// Collect drains the iterator
func (it *PollIterator) Collect() ([]Poll, error) {
	var ret []Poll
	for it.Next() {
		ret = append(ret, Poll{Address: it.Address(), Record: it.Record()})
	}
	return ret, it.Err()
}

// IsAccountInUse reports whether transaction logs show that the system
// program refused to allocate an account that already exists. Only the
// system program's own allocation message counts, so program log lines
// that happen to mention "already in use" are ignored.
func IsAccountInUse(logs []string) bool {
	systemInvoke := "Program " + solana.SystemProgramID.String() + " "
	var stack []bool
	for _, l := range logs {
		switch {
		case strings.HasPrefix(l, "Program log: "),
			strings.HasPrefix(l, "Program data: "),
			strings.HasPrefix(l, "Program return: "):
			// Emitted by the running program, never by the runtime
		case strings.HasPrefix(l, "Program ") && strings.Contains(l, " invoke ["):
			stack = append(stack, strings.HasPrefix(l, systemInvoke))
		case strings.HasPrefix(l, "Program ") &&
			(strings.HasSuffix(l, " success") || strings.Contains(l, " failed")):
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case strings.HasPrefix(l, "Allocate: account ") &&
			strings.HasSuffix(l, " already in use"):
			if len(stack) > 0 && stack[len(stack)-1] {
				return true
			}
		}
	}
	return false
}

// ClassifyRejection maps a program rejection to a program error, or returns
// nil when the rejection is not recognized
func ClassifyRejection(logs []string) error {
	if IsAccountInUse(logs) {
		return ErrPollAlreadyExists
	}
	return nil
}
