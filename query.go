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
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/blinklabs-io/pollsync/event"
	"github.com/blinklabs-io/pollsync/querycache"
)

// Query keys
var AllPollsKey = querycache.NewKey("voting", "allPolls")

func PollKey(addr solana.PublicKey) querycache.Key {
	return querycache.NewKey("voting", "poll", addr.String())
}

func BalanceKey(addr solana.PublicKey) querycache.Key {
	return querycache.NewKey("balance", addr.String())
}

// QueryResult is the typed view of a cache entry
type QueryResult[T any] struct {
	Data      T
	Status    querycache.Status
	Err       error
	UpdatedAt time.Time
	Stale     bool
}

func (r QueryResult[T]) IsLoading() bool {
	return r.Status == querycache.StatusLoading
}

func resultFromEntry[T any](entry querycache.Entry) QueryResult[T] {
	ret := QueryResult[T]{
		Status:    entry.Status,
		Err:       entry.Err,
		UpdatedAt: entry.UpdatedAt,
		Stale:     entry.Stale,
	}
	if data, ok := entry.Data.(T); ok {
		ret.Data = data
	}
	return ret
}

// Subscription delivers typed query updates
type Subscription[T any] struct {
	sub *querycache.Subscription
}

// Events returns the raw update channel
func (s *Subscription[T]) Events() <-chan event.Event {
	return s.sub.Events()
}

// Next blocks until the next update. It returns ErrSubscriptionClosed once
// the subscription is closed.
func (s *Subscription[T]) Next(ctx context.Context) (QueryResult[T], error) {
	for {
		select {
		case <-ctx.Done():
			return QueryResult[T]{}, ctx.Err()
		case evt, ok := <-s.sub.Events():
			if !ok {
				return QueryResult[T]{}, ErrSubscriptionClosed
			}
			updated, ok := evt.Data.(querycache.UpdatedEvent)
			if !ok {
				continue
			}
			return resultFromEntry[T](updated.Entry), nil
		}
	}
}

func (s *Subscription[T]) Close() {
	s.sub.Close()
}
