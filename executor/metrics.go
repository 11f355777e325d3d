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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	failureBlockhashExpired = "blockhash_expired"
	failureRejected         = "rejected"
	failureTimeout          = "timeout"
	failureOther            = "other"
)

type executorMetrics struct {
	submitted           prometheus.Counter
	confirmed           prometheus.Counter
	failures            *prometheus.CounterVec
	confirmationLatency prometheus.Histogram
}

func (m *executorMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.submitted = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "pollsync_executor_submitted_total",
		Help: "transactions submitted to the cluster",
	})
	m.confirmed = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "pollsync_executor_confirmed_total",
		Help: "transactions confirmed at the configured commitment",
	})
	m.failures = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollsync_executor_failures_total",
			Help: "failed transaction executions by reason",
		},
		[]string{"reason"},
	)
	m.confirmationLatency = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pollsync_executor_confirmation_latency_seconds",
			Help:    "time from submission to observed confirmation",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)
}
