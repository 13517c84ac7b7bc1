// Copyright 2024 The voltmq-go Authors
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

// package metrics provides Prometheus metrics for the registry.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SubscriptionsGauge tracks live subscription count per topic filter.
	SubscriptionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voltmq_registry_subscriptions",
		Help: "The number of active subscriptions per topic filter on this node.",
	},
		[]string{"topic"},
	)

	// AdmissionRejectedTotal counts operations refused by the admission gate.
	AdmissionRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voltmq_registry_admission_rejected_total",
		Help: "The total number of metadata operations rejected by the admission gate.",
	},
		[]string{"bucket"},
	)

	// QueueDroppedTotal counts messages dropped by bounded subscriber queues.
	QueueDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voltmq_queue_dropped_total",
		Help: "The total number of messages dropped because a subscriber queue was full.",
	})

	// QueueSetupTotal counts queue processes started by the coordinator.
	QueueSetupTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voltmq_queue_setup_total",
		Help: "The total number of subscriber queue processes started.",
	})

	// QueueTeardownTotal counts queue processes whose death was observed.
	QueueTeardownTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voltmq_queue_teardown_total",
		Help: "The total number of subscriber queue processes torn down.",
	})

	// MigrationsTotal counts queue migrations, incremented by the source
	// queue as it hands over and terminates.
	MigrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voltmq_registry_migrations_total",
		Help: "The total number of subscriber queues migrated away from this node.",
	})

	// RemotePublishErrorsTotal counts failed forwards to remote nodes.
	RemotePublishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voltmq_registry_remote_publish_errors_total",
		Help: "The total number of publishes to remote nodes that failed and were dropped.",
	})

	// SupervisorRestartsTotal counts restarts of supervised actors.
	SupervisorRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voltmq_supervisor_restarts_total",
		Help: "The total number of times a supervised actor has been restarted.",
	},
		[]string{"actor_id"},
	)
)

// Serve starts an HTTP server to expose the Prometheus metrics.
func Serve(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	log.Printf("Metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logFatalf("Metrics server failed: %v", err)
	}
}

// logFatalf can be replaced by tests to prevent process exit.
var logFatalf = log.Fatalf
