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

func TestNewSession_AssignsUniqueID(t *testing.T) {
	a := NewSession(RoleClient)
	b := NewSession(RoleClient)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestSetGet_RoundTrips(t *testing.T) {
	session := NewSession(RoleClient)
	require.NoError(t, Set(session, 3, "hello"))
	v, err := Get(session, 3)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestGet_UnsetReturnsRequestedDataNotAvailable(t *testing.T) {
	session := NewSession(RoleClient)
	_, err := Get(session, 99)
	require.Error(t, err)
}

func TestSet_OverwriteRunsDeinitOnOldValue(t *testing.T) {
	defer resetGlobalTableForTest()
	var deinitArg interface{}
	require.NoError(t, Register(Descriptor{
		Type:   4,
		Deinit: func(data interface{}) { deinitArg = data },
	}))

	session := NewSession(RoleClient)
	require.NoError(t, Set(session, 4, "first"))
	require.NoError(t, Set(session, 4, "second"))

	assert.Equal(t, "first", deinitArg)
	v, err := Get(session, 4)
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestUnset_ClearsLiveDataAndDeinits(t *testing.T) {
	defer resetGlobalTableForTest()
	deinited := false
	require.NoError(t, Register(Descriptor{
		Type:   5,
		Deinit: func(interface{}) { deinited = true },
	}))

	session := NewSession(RoleClient)
	require.NoError(t, Set(session, 5, "x"))
	Unset(session, 5)

	assert.True(t, deinited)
	_, err := Get(session, 5)
	require.Error(t, err)
}

func TestSet_MemoryErrorPastMaxExtTypes(t *testing.T) {
	session := NewSession(RoleClient)
	for i := 0; i < MaxExtTypes; i++ {
		require.NoError(t, Set(session, Type(i), i))
	}
	err := Set(session, Type(MaxExtTypes), "overflow")
	require.Error(t, err)
}

func TestFreeSessionData_ClearsLiveAndResumed(t *testing.T) {
	defer resetGlobalTableForTest()
	require.NoError(t, Register(Descriptor{Type: 6}))

	session := NewSession(RoleClient)
	require.NoError(t, Set(session, 6, "live"))
	SetResumed(session, 6, "resumed")

	FreeSessionData(session)

	_, err := Get(session, 6)
	require.Error(t, err)
	idx, ok := session.findSlot(6)
	if ok {
		assert.Nil(t, session.slots[idx].resumed)
	}
}

func TestRestoreResumed_MovesNonMandatoryAndPreservesMandatory(t *testing.T) {
	defer resetGlobalTableForTest()
	require.NoError(t, Register(Descriptor{Type: 10, ParseClass: ClassClientHello}))
	require.NoError(t, Register(Descriptor{Type: 11, ParseClass: ClassMandatory}))

	session := NewSession(RoleClient)
	require.NoError(t, Set(session, 10, "stale"))
	SetResumed(session, 10, "resumed-value")

	require.NoError(t, Set(session, 11, "mandatory-value"))

	RestoreResumed(session)

	v, err := Get(session, 10)
	require.NoError(t, err)
	assert.Equal(t, "resumed-value", v)

	v, err = Get(session, 11)
	require.NoError(t, err)
	assert.Equal(t, "mandatory-value", v)
}
