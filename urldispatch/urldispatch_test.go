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

package urldispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/sage/crypto/privkey"
)

type stubBackend struct {
	importErr error
	key       *privkey.Key
}

func (s *stubBackend) ImportURL(url string, flags ImportFlags) (*privkey.Key, error) {
	return s.key, s.importErr
}

func (s *stubBackend) GetRawIssuer(url string, cert []byte) ([]byte, error) {
	return []byte("issuer"), nil
}

func TestRegister_CustomPrefixWinsOverBuiltin(t *testing.T) {
	r := New()
	custom := &stubBackend{key: &privkey.Key{}}
	require.NoError(t, r.Register("pkcs11:custom-", custom, false))
	r.RegisterBuiltin("pkcs11:", &stubBackend{key: &privkey.Key{}})

	key, err := r.ImportURL("pkcs11:custom-token;object=test", 0)
	require.NoError(t, err)
	assert.Same(t, custom.key, key)
}

func TestRegister_DuplicateWithoutOverrideFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("myscheme:", &stubBackend{}, false))
	err := r.Register("myscheme:", &stubBackend{}, false)
	require.Error(t, err)
}

func TestRegister_BoundedAtMaxCustomURLs(t *testing.T) {
	r := New()
	for i := 0; i < MaxCustomURLs; i++ {
		require.NoError(t, r.Register(string(rune('a'+i))+":", &stubBackend{}, false))
	}
	err := r.Register("overflow:", &stubBackend{}, false)
	require.Error(t, err)
}

func TestImportURL_UnknownSchemeIsInvalidRequest(t *testing.T) {
	r := New()
	_, err := r.ImportURL("ftp://nowhere", 0)
	require.Error(t, err)
}

func TestImportURL_KnownBuiltinWithoutBackendIsUnimplemented(t *testing.T) {
	r := New()
	_, err := r.ImportURL("tpmkey:handle=0x81000001", 0)
	require.Error(t, err)
}

func TestIsSupported_MirrorsImportURLTable(t *testing.T) {
	r := New()
	r.RegisterBuiltin("system:", &stubBackend{})
	assert.True(t, r.IsSupported("system:/store/My/CA"))
	assert.False(t, r.IsSupported("ftp://nowhere"))
}

func TestGetRawIssuer_DelegatesToMatchingBackend(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("custom:", &stubBackend{}, false))
	issuer, err := r.GetRawIssuer("custom:foo", []byte("cert"))
	require.NoError(t, err)
	assert.Equal(t, []byte("issuer"), issuer)
}
