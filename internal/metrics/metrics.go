// Copyright (c) 2026, Google LLC All rights reserved.
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

// Package metrics holds the Prometheus collectors exported by the emulator.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tpm_emulator"

var (
	registerOnce sync.Once

	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "total",
			Help:      "TPM commands executed, by command name and response code.",
		},
		[]string{"transport", "command", "response_code"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "duration_seconds",
			Help:      "Time spent executing TPM commands.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
		[]string{"transport", "command"},
	)
	connections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connections_total",
			Help:      "Client connections accepted.",
		},
		[]string{"transport", "port"},
	)
	platformSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "signals_total",
			Help:      "Platform signals received, such as power on and reset.",
		},
		[]string{"transport", "signal"},
	)
	rejectedCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "rejected_total",
			Help:      "Commands not executed because the TPM was powered off.",
		},
		[]string{"transport"},
	)
)

// Register adds the emulator collectors to the default registry. It is safe
// to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(commands, commandDuration, connections, platformSignals, rejectedCommands)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// Hex formats a command or response code the way the metrics label it.
func Hex(code uint32) string {
	return fmt.Sprintf("0x%03x", code)
}

// RecordCommand counts one executed command.
func RecordCommand(transport, command, responseCode string, duration time.Duration) {
	Register()
	commands.WithLabelValues(transport, command, responseCode).Inc()
	commandDuration.WithLabelValues(transport, command).Observe(duration.Seconds())
}

// RecordConnection counts one accepted connection on the named port.
func RecordConnection(transport, port string) {
	Register()
	connections.WithLabelValues(transport, port).Inc()
}

// RecordPlatformSignal counts one platform signal.
func RecordPlatformSignal(transport, signal string) {
	Register()
	platformSignals.WithLabelValues(transport, signal).Inc()
}

// RecordRejected counts one command refused while powered off.
func RecordRejected(transport string) {
	Register()
	rejectedCommands.WithLabelValues(transport).Inc()
}
