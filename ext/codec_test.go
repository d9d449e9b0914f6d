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

func TestGenThenParse_RoundTrips(t *testing.T) {
	defer resetGlobalTableForTest()
	var received []byte
	require.NoError(t, Register(Descriptor{
		Type:       1,
		ParseClass: ClassClientHello,
		Send: func(session *Session, buf *[]byte) (int, error) {
			*buf = []byte("payload")
			return len(*buf), nil
		},
		Recv: func(session *Session, payload []byte) error {
			received = payload
			return nil
		},
	}))

	client := NewSession(RoleClient)
	block, err := GenExtensions(client, ClassClientHello)
	require.NoError(t, err)
	require.NotNil(t, block)

	server := NewSession(RoleServer)
	require.NoError(t, ParseExtensions(server, ClassClientHello, block))
	assert.Equal(t, []byte("payload"), received)
	assert.True(t, server.sent[1])
}

func TestGenExtensions_SuppressOmitsEntry(t *testing.T) {
	defer resetGlobalTableForTest()
	require.NoError(t, Register(Descriptor{
		Type:       2,
		ParseClass: ClassClientHello,
		Send: func(session *Session, buf *[]byte) (int, error) {
			return SendSuppress, nil
		},
	}))

	session := NewSession(RoleClient)
	block, err := GenExtensions(session, ClassClientHello)
	require.NoError(t, err)
	assert.Nil(t, block, "an entirely suppressed block erases the length placeholder")
}

func TestGenExtensions_ZeroLengthEmitsEmptyPayload(t *testing.T) {
	defer resetGlobalTableForTest()
	require.NoError(t, Register(Descriptor{
		Type:       3,
		ParseClass: ClassClientHello,
		Send: func(session *Session, buf *[]byte) (int, error) {
			*buf = []byte("ignored")
			return SendZeroLength, nil
		},
	}))

	session := NewSession(RoleClient)
	block, err := GenExtensions(session, ClassClientHello)
	require.NoError(t, err)
	require.Len(t, block, 6) // 2-byte total len + 2-byte type + 2-byte zero length
	assert.Equal(t, []byte{0, 4, 0, 3, 0, 0}, block)
}

func TestParseExtensions_UnknownTypeIsSkippedNotError(t *testing.T) {
	defer resetGlobalTableForTest()
	block := []byte{0, 4, 0xFF, 0xFF, 0, 0}
	err := ParseExtensions(NewSession(RoleServer), ClassClientHello, block)
	require.NoError(t, err)
}

func TestParseExtensions_ClientRejectsUnsolicitedExtension(t *testing.T) {
	defer resetGlobalTableForTest()
	require.NoError(t, Register(Descriptor{
		Type:       4,
		ParseClass: ClassTLSExt,
		Recv:       func(*Session, []byte) error { return nil },
	}))

	client := NewSession(RoleClient)
	block := []byte{0, 4, 0, 4, 0, 0}
	err := ParseExtensions(client, ClassTLSExt, block)
	require.Error(t, err)
}

func TestParseExtensions_LengthOverrunIsRejected(t *testing.T) {
	block := []byte{0, 10, 0, 1, 0, 1, 0xAB}
	err := ParseExtensions(NewSession(RoleServer), ClassClientHello, block)
	require.Error(t, err)
}

func TestGenExtensions_OversizedBlockFails(t *testing.T) {
	defer resetGlobalTableForTest()
	big := make([]byte, 0x10000)
	require.NoError(t, Register(Descriptor{
		Type:       5,
		ParseClass: ClassClientHello,
		Send: func(session *Session, buf *[]byte) (int, error) {
			*buf = big
			return len(big), nil
		},
	}))

	session := NewSession(RoleClient)
	_, err := GenExtensions(session, ClassClientHello)
	require.Error(t, err)
}
