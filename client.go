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

// Package pollsync is a client for an on-chain voting program. It creates
// polls through signed, confirmed transactions and keeps a local query
// cache in step with ledger state.
package pollsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/blinklabs-io/pollsync/address"
	"github.com/blinklabs-io/pollsync/event"
	"github.com/blinklabs-io/pollsync/executor"
	"github.com/blinklabs-io/pollsync/ledger"
	"github.com/blinklabs-io/pollsync/program"
	"github.com/blinklabs-io/pollsync/querycache"
)

const allocateAttempts = 8

// Client composes address derivation, instruction building, transaction
// execution and the query cache. Mutations for one signer must be
// serialized by the caller.
type Client struct {
	config   Config
	logger   *slog.Logger
	eventBus *event.EventBus
	ownBus   bool
	program  *program.Client
	executor *executor.Executor
	cache    *querycache.Cache
}

func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	c := &Client{
		config:   cfg,
		logger:   cfg.logger.With("component", "pollsync"),
		eventBus: cfg.eventBus,
	}
	if c.eventBus == nil {
		c.eventBus = event.NewEventBus(cfg.promRegistry, cfg.logger)
		c.ownBus = true
	}
	c.program = program.NewClient(program.ClientConfig{
		Ledger:    cfg.ledger,
		Interface: cfg.programInterface,
		Logger:    cfg.logger,
	})
	c.executor = executor.New(executor.Config{
		Ledger:         cfg.ledger,
		Logger:         cfg.logger,
		PromRegistry:   cfg.promRegistry,
		EventBus:       c.eventBus,
		ConfirmTimeout: cfg.confirmTimeout,
		PollInterval:   cfg.pollInterval,
		Commitment:     cfg.commitment,
		SkipSimulation: cfg.skipSimulation,
	})
	c.cache = querycache.New(querycache.Config{
		Logger:       cfg.logger,
		PromRegistry: cfg.promRegistry,
		EventBus:     c.eventBus,
		StaleTime:    cfg.staleTime,
	})
	return c, nil
}

// Close releases subscriptions held on the client's own event bus
func (c *Client) Close() {
	if c.ownBus {
		c.eventBus.Stop()
	}
}

func (c *Client) EventBus() *event.EventBus {
	return c.eventBus
}

func (c *Client) Program() *program.Client {
	return c.program
}

func (c *Client) Cache() *querycache.Cache {
	return c.cache
}

// Payer returns the signer's public key, if a signer is configured
func (c *Client) Payer() (solana.PublicKey, error) {
	if c.config.signer == nil {
		return solana.PublicKey{}, ErrSignerUnavailable
	}
	return c.config.signer.PublicKey(), nil
}

// Address derives the poll account address for id
func (c *Client) Address(id address.PollID) (address.DerivedAddress, error) {
	return c.program.Derive(id)
}

// CreatePoll creates a poll whose voting window starts now and lasts for
// the configured poll duration
func (c *Client) CreatePoll(
	ctx context.Context,
	id address.PollID,
	name string,
	description string,
) (solana.Signature, error) {
	start := c.config.clock().Unix()
	end := start + int64(c.config.pollDuration/time.Second)
	return c.CreatePollWithWindow(ctx, id, name, description, start, end)
}

// CreatePollWithWindow creates a poll with an explicit voting window. On
// success the poll list and the poll's own query are invalidated. On any
// error the cache is left untouched.
func (c *Client) CreatePollWithWindow(
	ctx context.Context,
	id address.PollID,
	name string,
	description string,
	start int64,
	end int64,
) (solana.Signature, error) {
	if c.config.signer == nil {
		return solana.Signature{}, ErrSignerUnavailable
	}
	pda, err := c.program.Derive(id)
	if err != nil {
		return solana.Signature{}, err
	}
	instr, err := c.program.BuildInitializePoll(
		id,
		name,
		description,
		start,
		end,
		c.config.signer.PublicKey(),
	)
	if err != nil {
		return solana.Signature{}, err
	}
	sig, err := c.executor.Execute(ctx, c.config.signer, instr)
	if err != nil {
		var rejectErr *executor.SubmissionRejectedError
		if errors.As(err, &rejectErr) {
			if progErr := program.ClassifyRejection(rejectErr.Logs); progErr != nil {
				err = fmt.Errorf("%w: poll %d at %s: %w", progErr, id, pda.Address, err)
			}
		}
		c.logger.Warn(
			"create poll failed",
			"poll_id", uint64(id),
			"address", pda.Address.String(),
			"outcome", Outcome(err).String(),
			"error", err,
		)
		return sig, err
	}
	c.logger.Info(
		"created poll",
		"poll_id", uint64(id),
		"address", pda.Address.String(),
		"signature", sig.String(),
	)
	c.cache.Invalidate(ctx, AllPollsKey, PollKey(pda.Address))
	return sig, nil
}

func (c *Client) fetchAllPolls(ctx context.Context) (any, error) {
	it, err := c.program.ListPolls(ctx)
	if err != nil {
		return nil, err
	}
	return it.Collect()
}

func (c *Client) pollFetcher(addr solana.PublicKey) querycache.Fetcher {
	return func(ctx context.Context) (any, error) {
		return c.program.FetchPoll(ctx, addr)
	}
}

func (c *Client) balanceFetcher(addr solana.PublicKey) querycache.Fetcher {
	return func(ctx context.Context) (any, error) {
		return c.config.ledger.Balance(ctx, addr)
	}
}

// AllPolls returns every poll owned by the program
func (c *Client) AllPolls(ctx context.Context) QueryResult[[]program.Poll] {
	entry := c.cache.Query(ctx, AllPollsKey, c.fetchAllPolls)
	return resultFromEntry[[]program.Poll](entry)
}

// Poll returns the poll stored at addr
func (c *Client) Poll(
	ctx context.Context,
	addr solana.PublicKey,
) QueryResult[*program.PollRecord] {
	entry := c.cache.Query(ctx, PollKey(addr), c.pollFetcher(addr))
	return resultFromEntry[*program.PollRecord](entry)
}

func (c *Client) PollByID(
	ctx context.Context,
	id address.PollID,
) (QueryResult[*program.PollRecord], error) {
	pda, err := c.program.Derive(id)
	if err != nil {
		return QueryResult[*program.PollRecord]{}, err
	}
	return c.Poll(ctx, pda.Address), nil
}

// SubscribeAllPolls subscribes to the poll list and returns its current
// state
func (c *Client) SubscribeAllPolls(
	ctx context.Context,
) (*Subscription[[]program.Poll], QueryResult[[]program.Poll]) {
	sub := c.cache.Subscribe(AllPollsKey, c.fetchAllPolls)
	return &Subscription[[]program.Poll]{sub: sub}, c.AllPolls(ctx)
}

// SubscribePoll subscribes to the poll at addr and returns its current
// state
func (c *Client) SubscribePoll(
	ctx context.Context,
	addr solana.PublicKey,
) (*Subscription[*program.PollRecord], QueryResult[*program.PollRecord]) {
	sub := c.cache.Subscribe(PollKey(addr), c.pollFetcher(addr))
	return &Subscription[*program.PollRecord]{sub: sub}, c.Poll(ctx, addr)
}

// Reconcile reads the poll for id directly from the ledger, bypassing the
// cache, and then invalidates the poll's queries. Use it after a
// confirmation timeout to learn the real outcome.
func (c *Client) Reconcile(
	ctx context.Context,
	id address.PollID,
) (*program.PollRecord, error) {
	pda, err := c.program.Derive(id)
	if err != nil {
		return nil, err
	}
	rec, err := c.program.FetchPoll(ctx, pda.Address)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}
	c.cache.Invalidate(ctx, AllPollsKey, PollKey(pda.Address))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// AllocatePollID picks a random identifier whose poll account does not
// exist yet. Another client may still claim it before submission, which
// is reported as ErrPollAlreadyExists.
func (c *Client) AllocatePollID(ctx context.Context) (address.PollID, error) {
	for range allocateAttempts {
		id, err := address.RandomPollID()
		if err != nil {
			return 0, err
		}
		pda, err := c.program.Derive(id)
		if err != nil {
			return 0, err
		}
		_, err = c.config.ledger.Account(ctx, pda.Address)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return id, nil
		}
		if err != nil {
			return 0, fmt.Errorf("check poll account: %w", err)
		}
		c.logger.Debug("poll identifier in use", "poll_id", uint64(id))
	}
	return 0, fmt.Errorf(
		"no unused poll identifier found after %d attempts",
		allocateAttempts,
	)
}

// Balance returns the fee payer's balance in lamports
func (c *Client) Balance(ctx context.Context) (QueryResult[uint64], error) {
	payer, err := c.Payer()
	if err != nil {
		return QueryResult[uint64]{}, err
	}
	entry := c.cache.Query(ctx, BalanceKey(payer), c.balanceFetcher(payer))
	return resultFromEntry[uint64](entry), nil
}

// RequestAirdrop asks the cluster to fund the fee payer and waits for the
// airdrop to confirm
func (c *Client) RequestAirdrop(
	ctx context.Context,
	lamports uint64,
) (solana.Signature, error) {
	payer, err := c.Payer()
	if err != nil {
		return solana.Signature{}, err
	}
	sig, err := c.config.ledger.RequestAirdrop(ctx, payer, lamports)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("request airdrop: %w", err)
	}
	if err := c.executor.Confirm(ctx, sig, 0); err != nil {
		return sig, err
	}
	c.cache.Invalidate(ctx, BalanceKey(payer))
	return sig, nil
}
