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

// PKCS#11 session-layer metrics (crypto/pkcs11).
var (
	// PKCS11SessionsOpened tracks slot sessions opened, by outcome.
	PKCS11SessionsOpened = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pkcs11",
			Name:      "sessions_opened_total",
			Help:      "Total number of PKCS#11 sessions opened",
		},
		[]string{"status"}, // success, failure
	)

	// PKCS11SessionsActive tracks currently open sessions.
	PKCS11SessionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pkcs11",
			Name:      "sessions_active",
			Help:      "Number of currently open PKCS#11 sessions",
		},
	)

	// PKCS11SessionsClosed tracks closed sessions, including reinit-on-invalid-handle.
	PKCS11SessionsClosed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pkcs11",
			Name:      "sessions_closed_total",
			Help:      "Total number of PKCS#11 sessions closed",
		},
		[]string{"reason"}, // explicit, fork_detected, handle_invalid
	)

	// PKCS11LoginRetries tracks login retries triggered by USER_NOT_LOGGED_IN.
	PKCS11LoginRetries = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pkcs11",
			Name:      "login_retries_total",
			Help:      "Total number of PKCS#11 login retries after a not-logged-in error",
		},
		[]string{"outcome"}, // success, wrong_pin, exhausted
	)

	// PKCS11OperationDuration tracks sign/decrypt/find_object call durations.
	PKCS11OperationDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pkcs11",
			Name:      "operation_duration_seconds",
			Help:      "PKCS#11 operation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to 1.6s
		},
		[]string{"operation"}, // open_session, login, sign, decrypt, find_object
	)
)
