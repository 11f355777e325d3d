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

package executor

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrBlockhashExpired means the transaction's blockhash passed its
	// validity window before the transaction landed. Rebuild and resubmit.
	ErrBlockhashExpired = errors.New("blockhash expired")
	// ErrSubmissionRejected means the cluster or program refused the
	// transaction. It did not take effect.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrConfirmationTimeout means confirmation was not observed in time.
	// The transaction may or may not have landed.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrNoInstructions      = errors.New("no instructions")
)

// SubmissionRejectedError carries the rejection reason reported by the
// cluster along with the program logs
type SubmissionRejectedError struct {
	// Signature is set when the transaction landed with an error
	Signature solana.Signature
	Reason    any
	Logs      []string
	Cause     error
}

func (e *SubmissionRejectedError) Error() string {
	switch {
	case e.Reason != nil:
		return fmt.Sprintf("submission rejected: %v", e.Reason)
	case e.Cause != nil:
		return fmt.Sprintf("submission rejected: %s", e.Cause)
	default:
		return "submission rejected"
	}
}

func (e *SubmissionRejectedError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrSubmissionRejected, e.Cause}
	}
	return []error{ErrSubmissionRejected}
}

// ConfirmationTimeoutError is an ambiguous outcome. Re-query ledger state
// before retrying.
type ConfirmationTimeoutError struct {
	Signature solana.Signature
	Cause     error
}

func (e *ConfirmationTimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf(
			"confirmation of %s not observed: %s",
			e.Signature,
			e.Cause,
		)
	}
	return fmt.Sprintf("confirmation of %s not observed", e.Signature)
}

func (e *ConfirmationTimeoutError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrConfirmationTimeout, e.Cause}
	}
	return []error{ErrConfirmationTimeout}
}
