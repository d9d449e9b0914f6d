// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package tlsfeatures implements the RFC 7633 §4.2.2 "must-staple and
// friends" certificate check (spec.md §4.K): a certificate complies
// with a required feature set if its own advertised feature set is a
// superset of the requirement.
//
// Grounded on
// _examples/original_source/src/gnutls/lib/x509/tls_features.c's
// gnutls_x509_tlsfeatures_check_crt.
package tlsfeatures

import (
	"github.com/sage-x-project/sage/internal/logger"
)

// Feature is a TLS Feature extension value (RFC 7633), e.g. 5 for
// status_request.
type Feature uint16

// Check reports whether cert's advertised feature set satisfies
// required: required must be no larger than cert's set, and every
// feature named in required must also appear in cert. An empty
// required set always complies (no constraint to check).
func Check(required, cert []Feature) bool {
	if len(required) == 0 {
		return true
	}
	if len(required) > len(cert) {
		logger.Debug("tlsfeatures: certificate advertises fewer features than required",
			logger.Int("required", len(required)), logger.Int("cert", len(cert)))
		return false
	}

	present := make(map[Feature]bool, len(cert))
	for _, f := range cert {
		present[f] = true
	}
	for _, f := range required {
		if !present[f] {
			logger.Debug("tlsfeatures: required feature missing from certificate", logger.Int("feature", int(f)))
			return false
		}
	}
	return true
}
