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

// URL-dispatched key/certificate import metrics (urldispatch package).
var (
	// URLImportsAttempted tracks dispatched imports by scheme.
	URLImportsAttempted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "urldispatch",
			Name:      "imports_attempted_total",
			Help:      "Total number of URL-dispatched key/certificate imports attempted",
		},
		[]string{"scheme"}, // pkcs11, tpmkey, system, custom
	)

	// URLImportsCompleted tracks completed imports by outcome.
	URLImportsCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "urldispatch",
			Name:      "imports_completed_total",
			Help:      "Total number of URL-dispatched imports completed",
		},
		[]string{"scheme", "status"}, // success, failure
	)

	// URLSchemesUnsupported tracks lookups for a scheme with no registered handler.
	URLSchemesUnsupported = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "urldispatch",
			Name:      "schemes_unsupported_total",
			Help:      "Total number of import_url calls for an unregistered scheme",
		},
	)

	// URLImportDuration tracks import_url call duration by scheme.
	URLImportDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "urldispatch",
			Name:      "import_duration_seconds",
			Help:      "URL-dispatched import duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to 4s
		},
		[]string{"scheme"},
	)
)
