// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TLS hello-extension wire-codec metrics (ext package).
var (
	// ExtHandshakeRecv tracks extensions parsed off an incoming hello, by type name.
	ExtHandshakeRecv = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ext",
			Name:      "handshake_recv_total",
			Help:      "Total number of extensions parsed from a received hello message",
		},
		[]string{"type"},
	)

	// ExtIllegalExtensions tracks received extensions that the client rejects
	// because it never sent them.
	ExtIllegalExtensions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ext",
			Name:      "illegal_extensions_total",
			Help:      "Total number of extensions rejected during parsing",
		},
		[]string{"reason"}, // unsent_echo
	)

	// ExtGenDuration tracks generate-extensions-block call duration.
	ExtGenDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ext",
			Name:      "gen_duration_seconds",
			Help:      "Extension block generation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to 409ms
		},
	)

	// ExtResumptionPackBytes tracks resumption-blob size.
	ExtResumptionPackBytes = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ext",
			Name:      "resumption_pack_bytes",
			Help:      "Size in bytes of packed resumption data",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 10), // 16B to 4MB
		},
	)
)
