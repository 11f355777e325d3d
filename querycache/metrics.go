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

package querycache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type cacheMetrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	invalidations prometheus.Counter
	fetchErrors   prometheus.Counter
	subscriptions prometheus.Gauge
}

func (m *cacheMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.hits = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "pollsync_querycache_hits_total",
		Help: "queries answered from a fresh cache entry",
	})
	m.misses = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "pollsync_querycache_misses_total",
		Help: "queries that required a fetch",
	})
	m.invalidations = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "pollsync_querycache_invalidations_total",
		Help: "cache entries marked stale by invalidation",
	})
	m.fetchErrors = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "pollsync_querycache_fetch_errors_total",
		Help: "query fetches that returned an error",
	})
	m.subscriptions = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "pollsync_querycache_subscriptions",
		Help: "active query subscriptions",
	})
}
