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

	"github.com/blinklabs-io/pollsync/address"
	"github.com/blinklabs-io/pollsync/executor"
	"github.com/blinklabs-io/pollsync/keystore"
	"github.com/blinklabs-io/pollsync/program"
)

// Errors returned by Client operations. Match them with errors.Is.
var (
	ErrInvalidIdentifier   = address.ErrInvalidIdentifier
	ErrPayloadTooLarge     = program.ErrPayloadTooLarge
	ErrInvalidPayload      = program.ErrInvalidPayload
	ErrAccountNotFound     = program.ErrAccountNotFound
	ErrDecode              = program.ErrDecode
	ErrPollAlreadyExists   = program.ErrPollAlreadyExists
	ErrSignerUnavailable   = keystore.ErrSignerUnavailable
	ErrInvalidKey          = keystore.ErrInvalidKey
	ErrBlockhashExpired    = executor.ErrBlockhashExpired
	ErrSubmissionRejected  = executor.ErrSubmissionRejected
	ErrConfirmationTimeout = executor.ErrConfirmationTimeout

	ErrSubscriptionClosed = errors.New("subscription closed")
)

type (
	SubmissionRejectedError  = executor.SubmissionRejectedError
	ConfirmationTimeoutError = executor.ConfirmationTimeoutError
)

// TransactionOutcome separates a failed mutation from one whose result is
// not known
type TransactionOutcome int

const (
	OutcomeConfirmed TransactionOutcome = iota
	OutcomeFailed
	// OutcomeUnknown means the transaction may have landed. Re-query before
	// submitting again.
	OutcomeUnknown
)

func (o TransactionOutcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeFailed:
		return "failed"
	case OutcomeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Outcome classifies the error returned by a mutation
func Outcome(err error) TransactionOutcome {
	switch {
	case err == nil:
		return OutcomeConfirmed
	case errors.Is(err, ErrConfirmationTimeout):
		return OutcomeUnknown
	default:
		return OutcomeFailed
	}
}
