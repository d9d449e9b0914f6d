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

package ext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackThenUnpack_RoundTrips(t *testing.T) {
	defer resetGlobalTableForTest()
	var restored string
	require.NoError(t, Register(Descriptor{
		Type: 1,
		Pack: func(session *Session) ([]byte, error) {
			return []byte("ticket-state"), nil
		},
		Unpack: func(session *Session, data []byte) (int, error) {
			restored = string(data)
			SetResumed(session, 1, restored)
			return len(data), nil
		},
	}))

	source := NewSession(RoleClient)
	require.NoError(t, Set(source, 1, "live"))

	blob, err := Pack(source)
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	dest := NewSession(RoleClient)
	require.NoError(t, Unpack(dest, blob))
	assert.Equal(t, "ticket-state", restored)

	idx, ok := dest.findSlot(1)
	require.True(t, ok)
	assert.Equal(t, "ticket-state", dest.slots[idx].resumed)
}

func TestPack_SkipsTypesWithNoLiveData(t *testing.T) {
	defer resetGlobalTableForTest()
	require.NoError(t, Register(Descriptor{
		Type: 2,
		Pack: func(session *Session) ([]byte, error) { return []byte("x"), nil },
	}))

	session := NewSession(RoleClient)
	blob, err := Pack(session)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, blob, "zero records: just the count header")
}

func TestUnpack_RejectsSizeMismatch(t *testing.T) {
	defer resetGlobalTableForTest()
	require.NoError(t, Register(Descriptor{
		Type: 3,
		Unpack: func(session *Session, data []byte) (int, error) {
			return len(data) - 1, nil // under-consumes on purpose
		},
	}))

	blob := []byte{0, 0, 0, 1, 0, 0, 0, 3, 0, 0, 0, 3, 'a', 'b', 'c'}
	err := Unpack(NewSession(RoleClient), blob)
	require.Error(t, err)
}

func TestUnpack_UnknownTypeFails(t *testing.T) {
	blob := []byte{0, 0, 0, 1, 0, 0, 0, 99, 0, 0, 0, 0}
	err := Unpack(NewSession(RoleClient), blob)
	require.Error(t, err)
}

func TestUnpack_TruncatedRecordFails(t *testing.T) {
	blob := []byte{0, 0, 0, 1, 0, 0}
	err := Unpack(NewSession(RoleClient), blob)
	require.Error(t, err)
}
