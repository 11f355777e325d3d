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

// Package querycache is a reactive cache of remote state. Entries are
// fetched on demand, marked stale by invalidation, and refetched
// automatically while a consumer is subscribed.
package querycache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/blinklabs-io/pollsync/event"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const updatedEventPrefix = "querycache.updated:"

// Key identifies a query. Keys are slash separated paths, and invalidating
// a key also invalidates every key nested under it.
type Key string

func NewKey(parts ...string) Key {
	return Key(strings.Join(parts, "/"))
}

// Under reports whether k equals prefix or is nested under it
func (k Key) Under(prefix Key) bool {
	if k == prefix {
		return true
	}
	return strings.HasPrefix(string(k), string(prefix)+"/")
}

// UpdatedEventType is the event type published when the entry for key
// changes
func UpdatedEventType(key Key) event.EventType {
	return event.EventType(updatedEventPrefix + string(key))
}

type UpdatedEvent struct {
	Entry Entry
}

// Fetcher loads the current value for a query
type Fetcher func(ctx context.Context) (any, error)

// Entry is a snapshot of a cached query
type Entry struct {
	Key       Key
	Data      any
	Status    Status
	Err       error
	UpdatedAt time.Time
	Stale     bool
}

func (e Entry) IsLoading() bool {
	return e.Status == StatusLoading
}

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// EventBus carries update notifications. A private bus is used when
	// nil.
	EventBus *event.EventBus
	// StaleTime is how long a successful fetch stays fresh. Zero keeps
	// entries fresh until invalidated.
	StaleTime time.Duration
	// FetchTimeout bounds a shared fetch. Fetches run detached from the
	// callers that joined them, so this is their only deadline.
	FetchTimeout time.Duration
	Clock        func() time.Time
}

type entry struct {
	key         Key
	data        any
	status      Status
	err         error
	updatedAt   time.Time
	fetcher     Fetcher
	subscribers int
	// gen is bumped by every invalidation. An entry is only fresh when its
	// data was fetched at the current generation.
	gen        uint64
	fetchedGen uint64
	appliedGen uint64
	fetched    bool
}

type Cache struct {
	config  Config
	logger  *slog.Logger
	bus     *event.EventBus
	metrics cacheMetrics
	group   singleflight.Group
	mu      sync.Mutex
	entries map[Key]*entry
}

const DefaultFetchTimeout = 60 * time.Second

func New(cfg Config) *Cache {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	c := &Cache{
		config:  cfg,
		logger:  cfg.Logger.With("component", "querycache"),
		bus:     cfg.EventBus,
		entries: make(map[Key]*entry),
	}
	if c.bus == nil {
		c.bus = event.NewEventBus(nil, cfg.Logger)
	}
	c.metrics.init(cfg.PromRegistry)
	return c
}

func (c *Cache) entryLocked(key Key) *entry {
	ent, ok := c.entries[key]
	if !ok {
		ent = &entry{key: key, status: StatusIdle}
		c.entries[key] = ent
	}
	return ent
}

func (c *Cache) freshLocked(ent *entry) bool {
	if ent.status != StatusSuccess || !ent.fetched {
		return false
	}
	if ent.fetchedGen != ent.gen {
		return false
	}
	if c.config.StaleTime > 0 &&
		c.config.Clock().Sub(ent.updatedAt) >= c.config.StaleTime {
		return false
	}
	return true
}

func (c *Cache) snapshotLocked(ent *entry) Entry {
	return Entry{
		Key:       ent.key,
		Data:      ent.data,
		Status:    ent.status,
		Err:       ent.err,
		UpdatedAt: ent.updatedAt,
		Stale:     ent.status != StatusIdle && !c.freshLocked(ent),
	}
}

// Query returns the entry for key, running fetcher unless the cached
// entry is fresh. Concurrent queries for a key share one fetch.
func (c *Cache) Query(ctx context.Context, key Key, fetcher Fetcher) Entry {
	c.mu.Lock()
	ent := c.entryLocked(key)
	if fetcher != nil {
		ent.fetcher = fetcher
	}
	if c.freshLocked(ent) {
		ret := c.snapshotLocked(ent)
		c.mu.Unlock()
		c.metrics.hits.Inc()
		return ret
	}
	c.mu.Unlock()
	c.metrics.misses.Inc()
	return c.fetch(ctx, key)
}

// Peek returns the cached entry for key without fetching
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, ok := c.entries[key]
	if !ok {
		return Entry{Key: key, Status: StatusIdle}, false
	}
	return c.snapshotLocked(ent), true
}

func (c *Cache) fetch(ctx context.Context, key Key) Entry {
	c.mu.Lock()
	ent := c.entryLocked(key)
	gen := ent.gen
	fetcher := ent.fetcher
	if fetcher == nil {
		ret := c.snapshotLocked(ent)
		c.mu.Unlock()
		return ret
	}
	c.mu.Unlock()
	// The generation is part of the flight key so a fetch started after
	// an invalidation never joins one started before it
	flightKey := fmt.Sprintf("%s#%d", key, gen)
	// The flight outlives any single caller, so one caller cancelling
	// does not fail the fetch for the others sharing it
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		c.mu.Lock()
		ent := c.entryLocked(key)
		if ent.appliedGen <= gen {
			ent.status = StatusLoading
		}
		loading := c.snapshotLocked(ent)
		c.mu.Unlock()
		c.publish(loading)

		fctx, cancel := context.WithTimeout(fetchCtx, c.config.FetchTimeout)
		data, err := fetcher(fctx)
		cancel()

		c.mu.Lock()
		ent = c.entryLocked(key)
		// A result older than the one already applied is discarded
		if gen >= ent.appliedGen {
			ent.appliedGen = gen
			ent.updatedAt = c.config.Clock()
			if err != nil {
				ent.status = StatusError
				ent.err = err
			} else {
				ent.status = StatusSuccess
				ent.err = nil
				ent.data = data
				ent.fetched = true
				ent.fetchedGen = gen
			}
		}
		ret := c.snapshotLocked(ent)
		c.mu.Unlock()
		if err != nil {
			c.metrics.fetchErrors.Inc()
			c.logger.Debug(
				"query fetch failed",
				"key", string(key),
				"error", err,
			)
		}
		c.publish(ret)
		return ret, nil
	})
	select {
	case res := <-ch:
		return res.Val.(Entry)
	case <-ctx.Done():
		// The fetch keeps running and lands in the cache for later callers
		c.mu.Lock()
		ret := c.snapshotLocked(c.entryLocked(key))
		c.mu.Unlock()
		ret.Err = ctx.Err()
		return ret
	}
}

// Invalidate marks every entry equal to or nested under keys as stale and
// refetches those with active subscribers before returning. It returns the
// number of entries invalidated.
func (c *Cache) Invalidate(ctx context.Context, keys ...Key) int {
	c.mu.Lock()
	var count int
	var refetch []Key
	for k, ent := range c.entries {
		for _, prefix := range keys {
			if !k.Under(prefix) {
				continue
			}
			ent.gen++
			count++
			if ent.subscribers > 0 && ent.fetcher != nil {
				refetch = append(refetch, k)
			}
			break
		}
	}
	c.mu.Unlock()
	c.metrics.invalidations.Add(float64(count))
	c.logger.Debug(
		"invalidated queries",
		"keys", keys,
		"count", count,
		"refetch", len(refetch),
	)
	for _, k := range refetch {
		c.fetch(ctx, k)
	}
	return count
}

// Subscription is an active consumer of a query
type Subscription struct {
	cache     *Cache
	key       Key
	subId     event.EventSubscriberId
	ch        <-chan event.Event
	closeOnce sync.Once
}

// Subscribe registers a consumer for key. While subscribed, invalidation
// of key refetches it with fetcher and every change is delivered as an
// UpdatedEvent on Events.
func (c *Cache) Subscribe(key Key, fetcher Fetcher) *Subscription {
	c.mu.Lock()
	ent := c.entryLocked(key)
	if fetcher != nil {
		ent.fetcher = fetcher
	}
	ent.subscribers++
	c.mu.Unlock()
	subId, ch := c.bus.Subscribe(UpdatedEventType(key))
	c.metrics.subscriptions.Inc()
	return &Subscription{
		cache: c,
		key:   key,
		subId: subId,
		ch:    ch,
	}
}

func (s *Subscription) Key() Key {
	return s.key
}

// Events delivers UpdatedEvent notifications. It is closed by Close.
func (s *Subscription) Events() <-chan event.Event {
	return s.ch
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		c := s.cache
		c.mu.Lock()
		if ent, ok := c.entries[s.key]; ok && ent.subscribers > 0 {
			ent.subscribers--
		}
		c.mu.Unlock()
		c.bus.Unsubscribe(UpdatedEventType(s.key), s.subId)
		c.metrics.subscriptions.Dec()
	})
}

func (c *Cache) publish(ent Entry) {
	eventType := UpdatedEventType(ent.Key)
	if !c.bus.HasSubscribers(eventType) {
		return
	}
	c.bus.Publish(eventType, event.NewEvent(eventType, UpdatedEvent{Entry: ent}))
}
