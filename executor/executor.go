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

// Package executor turns instructions into confirmed transactions: it
// fetches a fresh blockhash, signs, simulates, submits and waits for
// confirmation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/pollsync/event"
	"github.com/blinklabs-io/pollsync/keystore"
	"github.com/blinklabs-io/pollsync/ledger"
)

const (
	SubmittedEventType event.EventType = "executor.submitted"
	ConfirmedEventType event.EventType = "executor.confirmed"
	FailedEventType    event.EventType = "executor.failed"
)

const (
	DefaultConfirmTimeout  = 30 * time.Second
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultMaxPollInterval = 2 * time.Second
)

const tracerName = "github.com/blinklabs-io/pollsync/executor"

type SubmittedEvent struct {
	Signature solana.Signature
}

type ConfirmedEvent struct {
	Signature solana.Signature
	Slot      uint64
}

type FailedEvent struct {
	Signature solana.Signature
	Error     error
}

type Config struct {
	Ledger       ledger.Client
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	EventBus     *event.EventBus
	// ConfirmTimeout bounds the wait for confirmation
	ConfirmTimeout time.Duration
	// PollInterval is the initial signature status polling interval. It
	// backs off exponentially up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	// Commitment a transaction must reach to be considered confirmed.
	// Default: confirmed
	Commitment     ledger.ConfirmationStatus
	SkipSimulation bool
}

// Executor submits transactions. It holds no per-signer state and does
// not serialize submissions for a signer.
type Executor struct {
	config  Config
	logger  *slog.Logger
	metrics executorMetrics
}

func New(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = max(DefaultMaxPollInterval, cfg.PollInterval)
	}
	if cfg.Commitment == "" {
		cfg.Commitment = ledger.StatusConfirmed
	}
	e := &Executor{
		config: cfg,
		logger: cfg.Logger.With("component", "executor"),
	}
	e.metrics.init(cfg.PromRegistry)
	return e
}

// Build fetches a fresh blockhash and returns a transaction signed by
// signer, who is also the fee payer
func (e *Executor) Build(
	ctx context.Context,
	signer keystore.Signer,
	instructions ...solana.Instruction,
) (*solana.Transaction, ledger.Blockhash, error) {
	if signer == nil {
		return nil, ledger.Blockhash{}, keystore.ErrSignerUnavailable
	}
	if len(instructions) == 0 {
		return nil, ledger.Blockhash{}, ErrNoInstructions
	}
	blockhash, err := e.config.Ledger.LatestBlockhash(ctx)
	if err != nil {
		return nil, ledger.Blockhash{}, fmt.Errorf("fetch blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(
		instructions,
		blockhash.Hash,
		solana.TransactionPayer(signer.PublicKey()),
	)
	if err != nil {
		return nil, ledger.Blockhash{}, fmt.Errorf("build transaction: %w", err)
	}
	if err := signer.SignTransaction(ctx, tx); err != nil {
		return nil, ledger.Blockhash{}, err
	}
	return tx, blockhash, nil
}

// Execute builds, signs, simulates, submits and confirms a transaction
// containing instructions. It never retries. Cancelling ctx after
// submission stops the wait but cannot undo the transaction.
func (e *Executor) Execute(
	ctx context.Context,
	signer keystore.Signer,
	instructions ...solana.Instruction,
) (sig solana.Signature, err error) {
	ctx, span := otel.Tracer(tracerName).Start(
		ctx,
		"executor.Execute",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.recordFailure(sig, err)
		}
		span.End()
	}()
	span.SetAttributes(attribute.Int("instructions", len(instructions)))
	tx, blockhash, err := e.Build(ctx, signer, instructions...)
	if err != nil {
		return solana.Signature{}, err
	}
	sig = tx.Signatures[0]
	span.SetAttributes(attribute.String("signature", sig.String()))
	if !e.config.SkipSimulation {
		if err := e.simulate(ctx, tx); err != nil {
			return sig, err
		}
	}
	if err := e.send(ctx, tx); err != nil {
		return sig, err
	}
	e.metrics.submitted.Inc()
	e.publish(SubmittedEventType, SubmittedEvent{Signature: sig})
	e.logger.Debug(
		"submitted transaction",
		"signature", sig.String(),
		"last_valid_block_height", blockhash.LastValidBlockHeight,
	)
	slot, err := e.confirm(ctx, sig, blockhash.LastValidBlockHeight)
	if err != nil {
		return sig, err
	}
	span.SetAttributes(attribute.Int64("slot", int64(slot)))
	return sig, nil
}

func (e *Executor) simulate(ctx context.Context, tx *solana.Transaction) error {
	res, err := e.config.Ledger.SimulateTransaction(ctx, tx)
	if err != nil {
		// Nothing has been broadcast yet, so no error here is ambiguous
		return classifyRejection(err)
	}
	if res.Err == nil {
		return nil
	}
	if ledger.IsBlockhashNotFound("", res.Err) {
		return fmt.Errorf("%w: simulation reported unknown blockhash", ErrBlockhashExpired)
	}
	return &SubmissionRejectedError{
		Reason: res.Err,
		Logs:   res.Logs,
	}
}

func (e *Executor) send(ctx context.Context, tx *solana.Transaction) error {
	if _, err := e.config.Ledger.SendTransaction(ctx, tx); err != nil {
		return classifySubmitError(tx, err)
	}
	return nil
}

func classifySubmitError(tx *solana.Transaction, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// The request may have reached the cluster
		return &ConfirmationTimeoutError{
			Signature: tx.Signatures[0],
			Cause:     err,
		}
	}
	return classifyRejection(err)
}

// classifyRejection maps an error from a request that definitely did not
// put the transaction on the ledger
func classifyRejection(err error) error {
	if errors.Is(err, ledger.ErrBlockhashNotFound) {
		return fmt.Errorf("%w: %w", ErrBlockhashExpired, err)
	}
	var txErr *ledger.TransactionError
	if errors.As(err, &txErr) {
		return &SubmissionRejectedError{
			Reason: txErr.Err,
			Logs:   txErr.Logs,
			Cause:  err,
		}
	}
	return &SubmissionRejectedError{Cause: err}
}

// Confirm waits for sig to reach the configured commitment. A
// lastValidBlockHeight of zero disables blockhash expiry detection.
func (e *Executor) Confirm(
	ctx context.Context,
	sig solana.Signature,
	lastValidBlockHeight uint64,
) error {
	_, err := e.confirm(ctx, sig, lastValidBlockHeight)
	if err != nil {
		e.recordFailure(sig, err)
	}
	return err
}

var errNotConfirmed = errors.New("not yet confirmed")

func (e *Executor) confirm(
	ctx context.Context,
	sig solana.Signature,
	lastValidBlockHeight uint64,
) (uint64, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.config.ConfirmTimeout)
	defer cancel()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.config.PollInterval
	b.MaxInterval = e.config.MaxPollInterval
	// The context bounds the wait
	b.MaxElapsedTime = 0
	var slot uint64
	operation := func() error {
		status, err := e.config.Ledger.SignatureStatus(ctx, sig)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if status != nil {
			if status.Err != nil {
				return backoff.Permanent(&SubmissionRejectedError{
					Signature: sig,
					Reason:    status.Err,
				})
			}
			if status.ConfirmationStatus.Reaches(e.config.Commitment) {
				slot = status.Slot
				return nil
			}
			return errNotConfirmed
		}
		if lastValidBlockHeight == 0 {
			return errNotConfirmed
		}
		height, err := e.config.Ledger.BlockHeight(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if height <= lastValidBlockHeight {
			return errNotConfirmed
		}
		// The transaction may have landed just before expiry
		status, err = e.config.Ledger.SignatureStatus(ctx, sig)
		if err != nil {
			return err
		}
		if status == nil {
			return backoff.Permanent(fmt.Errorf(
				"%w: block height %d passed last valid height %d",
				ErrBlockhashExpired,
				height,
				lastValidBlockHeight,
			))
		}
		return errNotConfirmed
	}
	notify := func(err error, next time.Duration) {
		if !errors.Is(err, errNotConfirmed) {
			e.logger.Debug(
				"signature status poll failed",
				"signature", sig.String(),
				"error", err,
				"retry_in", next,
			)
		}
	}
	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
	if err == nil {
		e.metrics.confirmed.Inc()
		e.metrics.confirmationLatency.Observe(time.Since(start).Seconds())
		e.publish(ConfirmedEventType, ConfirmedEvent{Signature: sig, Slot: slot})
		e.logger.Info(
			"transaction confirmed",
			"signature", sig.String(),
			"slot", slot,
		)
		return slot, nil
	}
	var rejectErr *SubmissionRejectedError
	if errors.Is(err, ErrBlockhashExpired) || errors.As(err, &rejectErr) {
		return 0, err
	}
	cause := err
	if ctx.Err() != nil {
		cause = ctx.Err()
	}
	return 0, &ConfirmationTimeoutError{Signature: sig, Cause: cause}
}

func (e *Executor) recordFailure(sig solana.Signature, err error) {
	reason := failureOther
	switch {
	case errors.Is(err, ErrBlockhashExpired):
		reason = failureBlockhashExpired
	case errors.Is(err, ErrSubmissionRejected):
		reason = failureRejected
	case errors.Is(err, ErrConfirmationTimeout):
		reason = failureTimeout
	}
	e.metrics.failures.WithLabelValues(reason).Inc()
	e.publish(FailedEventType, FailedEvent{Signature: sig, Error: err})
	e.logger.Warn(
		"transaction failed",
		"signature", sig.String(),
		"reason", reason,
		"error", err,
	)
}

func (e *Executor) publish(eventType event.EventType, data any) {
	if e.config.EventBus == nil {
		return
	}
	e.config.EventBus.Publish(eventType, event.NewEvent(eventType, data))
}
