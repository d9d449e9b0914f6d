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

package ext_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/sage/ext"
)

// TestThirdPartyExtension_FulfillsResumptionContractViaExportedSetResumed
// proves an extension registered from outside package ext — the only way a
// real third-party extension can be added — can still honor the
// resumption contract Unpack's doc comment describes, by calling the
// exported ext.SetResumed rather than reaching into ext's internals.
func TestThirdPartyExtension_FulfillsResumptionContractViaExportedSetResumed(t *testing.T) {
	const typ ext.Type = 200

	session := ext.NewSession(ext.RoleClient)
	require.NoError(t, ext.SessionRegister(session, ext.Descriptor{
		Type:       typ,
		ParseClass: ext.ClassAny,
		Unpack: func(s *ext.Session, data []byte) (int, error) {
			ext.SetResumed(s, typ, string(data))
			return len(data), nil
		},
	}, 0))

	unpack, ok := ext.FuncUnpack(session, typ)
	require.True(t, ok)

	consumed, err := unpack(session, []byte("ticket"))
	require.NoError(t, err)
	assert.Equal(t, len("ticket"), consumed)

	ext.RestoreResumed(session)
	v, err := ext.Get(session, typ)
	require.NoError(t, err)
	assert.Equal(t, "ticket", v)
}
