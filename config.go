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

package pollsync

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/pollsync/event"
	"github.com/blinklabs-io/pollsync/keystore"
	"github.com/blinklabs-io/pollsync/ledger"
	"github.com/blinklabs-io/pollsync/program"
)

// DefaultPollDuration is the voting window used by CreatePoll
const DefaultPollDuration = 24 * time.Hour

type Config struct {
	ledger           ledger.Client
	signer           keystore.Signer
	programInterface *program.Interface
	logger           *slog.Logger
	promRegistry     prometheus.Registerer
	eventBus         *event.EventBus
	clock            func() time.Time
	commitment       ledger.ConfirmationStatus
	confirmTimeout   time.Duration
	pollInterval     time.Duration
	pollDuration     time.Duration
	staleTime        time.Duration
	skipSimulation   bool
}

func (c *Config) validate() error {
	if c.ledger == nil {
		return errors.New("no ledger client configured")
	}
	if c.pollDuration < time.Second {
		return errors.New("poll duration must be at least one second")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the client config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new pollsync config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		clock:        time.Now,
		pollDuration: DefaultPollDuration,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLedger specifies the ledger client used for all remote calls
func WithLedger(client ledger.Client) ConfigOptionFunc {
	return func(c *Config) {
		c.ledger = client
	}
}

// WithSigner specifies the signer and fee payer for poll creation. A client
// without a signer is read-only.
func WithSigner(signer keystore.Signer) ConfigOptionFunc {
	return func(c *Config) {
		c.signer = signer
	}
}

// WithProgramInterface overrides the embedded voting program interface
func WithProgramInterface(iface program.Interface) ConfigOptionFunc {
	return func(c *Config) {
		c.programInterface = &iface
	}
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithEventBus specifies the event bus for executor and cache
// notifications. A private bus is created when not set.
func WithEventBus(bus *event.EventBus) ConfigOptionFunc {
	return func(c *Config) {
		c.eventBus = bus
	}
}

// WithClock overrides the time source used for default voting windows
func WithClock(clock func() time.Time) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clock
	}
}

// WithCommitment specifies the confirmation level a transaction must reach
func WithCommitment(commitment ledger.ConfirmationStatus) ConfigOptionFunc {
	return func(c *Config) {
		c.commitment = commitment
	}
}

// WithConfirmTimeout bounds how long to wait for confirmation
func WithConfirmTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.confirmTimeout = timeout
	}
}

// WithPollInterval specifies the initial signature status polling interval
func WithPollInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.pollInterval = interval
	}
}

// WithPollDuration specifies the voting window length used by CreatePoll
func WithPollDuration(duration time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.pollDuration = duration
	}
}

// WithStaleTime specifies how long query results stay fresh. The default
// keeps them until invalidated.
func WithStaleTime(staleTime time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.staleTime = staleTime
	}
}

// WithSkipSimulation disables simulate-before-send
func WithSkipSimulation(skip bool) ConfigOptionFunc {
	return func(c *Config) {
		c.skipSimulation = skip
	}
}
