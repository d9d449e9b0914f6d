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

package tlsfeatures

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck_EmptyRequirementAlwaysComplies(t *testing.T) {
	assert.True(t, Check(nil, nil))
	assert.True(t, Check([]Feature{}, []Feature{5}))
}

func TestCheck_CertMustBeAtLeastAsLarge(t *testing.T) {
	required := []Feature{5, 17}
	cert := []Feature{5}
	assert.False(t, Check(required, cert))
}

func TestCheck_EverySatisfiedFeaturePresent(t *testing.T) {
	required := []Feature{5}
	cert := []Feature{5, 17}
	assert.True(t, Check(required, cert))
}

func TestCheck_MissingFeatureFails(t *testing.T) {
	required := []Feature{5, 99}
	cert := []Feature{5, 17}
	assert.False(t, Check(required, cert))
}
