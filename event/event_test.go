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

package event_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/pollsync/event"
	tu "github.com/blinklabs-io/pollsync/internal/test/testutil"
)

const testEvtType event.EventType = "test.event"

func TestEventBusSingleSubscriber(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	_, subCh := eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 999))
	evt := tu.RequireReceive(t, subCh, time.Second, "event")
	assert.Equal(t, testEvtType, evt.Type)
	v, ok := evt.Data.(int)
	require.True(t, ok, "event data was not of expected type, got %T", evt.Data)
	assert.Equal(t, 999, v)
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	_, sub1Ch := eb.Subscribe(testEvtType)
	_, sub2Ch := eb.Subscribe(testEvtType)
	_, otherCh := eb.Subscribe("other.event")
	eb.Publish(testEvtType, event.NewEvent(testEvtType, "hello"))
	assert.Equal(t, "hello", tu.RequireReceive(t, sub1Ch, time.Second, "sub1").Data)
	assert.Equal(t, "hello", tu.RequireReceive(t, sub2Ch, time.Second, "sub2").Data)
	tu.RequireNoReceive(t, otherCh, 50*time.Millisecond, "other type")
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	subId, subCh := eb.Subscribe(testEvtType)
	assert.True(t, eb.HasSubscribers(testEvtType))
	eb.Unsubscribe(testEvtType, subId)
	assert.False(t, eb.HasSubscribers(testEvtType))
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 1))
	tu.RequireClosed(t, subCh, time.Second, "unsubscribed channel")
	// Unsubscribing twice is harmless
	eb.Unsubscribe(testEvtType, subId)
}

func TestEventBusSubscribeFunc(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	var count atomic.Int32
	eb.SubscribeFunc(testEvtType, func(event.Event) {
		count.Add(1)
	})
	for range 3 {
		eb.Publish(testEvtType, event.NewEvent(testEvtType, nil))
	}
	tu.WaitForCondition(
		t,
		func() bool { return count.Load() == 3 },
		time.Second,
		"handler calls",
	)
	// Stop closes the channel and the handler goroutine exits
	eb.Stop()
}

func TestEventBusSlowSubscriberDropsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	eb := event.NewEventBus(reg, nil)
	_, subCh := eb.Subscribe(testEvtType)
	total := event.EventQueueSize + 5
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range total {
			eb.Publish(testEvtType, event.NewEvent(testEvtType, i))
		}
	}()
	// Publishing must not block on the unread channel
	tu.RequireClosed(t, done, time.Second, "publish completion")
	assert.Len(t, subCh, event.EventQueueSize)

	families, err := reg.Gather()
	require.NoError(t, err)
	var dropped, published float64
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch mf.GetName() {
			case "pollsync_event_dropped_total":
				dropped += m.GetCounter().GetValue()
			case "pollsync_event_published_total":
				published += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(5), dropped)
	assert.Equal(t, float64(total), published)
	count, err := testutil.GatherAndCount(reg, "pollsync_event_subscribers")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEventBusStop(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	_, ch1 := eb.Subscribe(testEvtType)
	_, ch2 := eb.Subscribe("other.event")
	eb.Stop()
	tu.RequireClosed(t, ch1, time.Second, "ch1")
	tu.RequireClosed(t, ch2, time.Second, "ch2")
	// The bus is reusable after Stop
	_, ch3 := eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 1))
	tu.RequireReceive(t, ch3, time.Second, "after stop")
}
