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

package privkey

import (
	gocrypto "crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sagecrypto "github.com/sage-x-project/sage/crypto"
	"github.com/sage-x-project/sage/crypto/keys"
)

func newEd25519Key(t *testing.T) (*Key, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	k := &Key{}
	require.NoError(t, ImportSoftware(k, priv, sagecrypto.FamilyEdDSA, StdPrimitive{}, 0, nil))
	return k, pub
}

func TestImportSoftware_RejectsNonCleanHandle(t *testing.T) {
	k, _ := newEd25519Key(t)
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	err = ImportSoftware(k, priv, sagecrypto.FamilyEdDSA, StdPrimitive{}, 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sagecrypto.ErrInvalidRequest)
}

func TestSignData2_EdDSASignsRawMessage(t *testing.T) {
	k, pub := newEd25519Key(t)
	msg := []byte("sage private key core")

	sig, err := k.SignData2(sagecrypto.SigEdDSAEd25519, msg, false, 0, 0)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, msg, sig))
}

func TestCompatibleWithSig_RSAServesPSS(t *testing.T) {
	k := &Key{family: sagecrypto.FamilyRSA, variant: VariantSoftware}
	assert.True(t, k.CompatibleWithSig(sagecrypto.SigRSAPSSSHA256))
	assert.True(t, k.CompatibleWithSig(sagecrypto.SigRSAPKCS1v15SHA256))
	assert.False(t, k.CompatibleWithSig(sagecrypto.SigECDSASHA256))
}

func TestCompatibleWithSig_ExternalDefersToInfoCallback(t *testing.T) {
	k := &Key{family: sagecrypto.FamilyECDSA, variant: VariantExternal, info: func(alg sagecrypto.SignatureAlgorithm) bool {
		return alg == sagecrypto.SigECDSASHA256
	}}
	assert.True(t, k.CompatibleWithSig(sagecrypto.SigECDSASHA256))
}

func TestImportExternal_RequiresAtLeastOneCallback(t *testing.T) {
	k := &Key{}
	err := ImportExternal(k, ExternalCallbacks{}, sagecrypto.FamilyRSA, nil)
	require.Error(t, err)
}

func TestImportExternal_SignDataDispatchForEdDSA(t *testing.T) {
	k := &Key{}
	called := false
	cb := ExternalCallbacks{
		SignData: func(alg sagecrypto.SignatureAlgorithm, data []byte) ([]byte, error) {
			called = true
			return []byte("sig"), nil
		},
	}
	require.NoError(t, ImportExternal(k, cb, sagecrypto.FamilyEdDSA, nil))
	sig, err := k.SignData2(sagecrypto.SigEdDSAEd25519, []byte("msg"), false, 0, 0)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, []byte("sig"), sig)
}

func TestDeinit_InvokesCallbackOnce(t *testing.T) {
	calls := 0
	k := &Key{}
	require.NoError(t, ImportExternal(k, ExternalCallbacks{Sign: func(data []byte) ([]byte, error) { return nil, nil }}, sagecrypto.FamilyRSA, func() { calls++ }))
	k.Deinit()
	k.Deinit()
	assert.Equal(t, 1, calls)
}

func TestImportSoftwareKeyPair_BindsKeysGeneratedPairByFamily(t *testing.T) {
	kp, err := keys.GenerateRSAKeyPair()
	require.NoError(t, err)

	k := &Key{}
	require.NoError(t, ImportSoftwareKeyPair(k, kp, StdPrimitive{}, 0, nil))
	assert.Equal(t, sagecrypto.FamilyRSA, k.Family())

	msg := []byte("bound via crypto/keys")
	digest, err := StdPrimitive{}.HashFast(gocrypto.SHA256, msg)
	require.NoError(t, err)

	sig, err := k.SignData2(sagecrypto.SigRSAPKCS1v15SHA256, digest, false, 0, 2048)
	require.NoError(t, err)

	pub := kp.PublicKey().(*rsa.PublicKey)
	require.NoError(t, rsa.VerifyPKCS1v15(pub, gocrypto.SHA256, digest, sig))
}

func TestImportSoftwareKeyPair_RejectsUnrecognizedKeyType(t *testing.T) {
	k := &Key{}
	err := ImportSoftwareKeyPair(k, fakeKeyPair{}, StdPrimitive{}, 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sagecrypto.ErrInvalidRequest)
}

type fakeKeyPair struct{}

func (fakeKeyPair) PublicKey() gocrypto.PublicKey   { return nil }
func (fakeKeyPair) PrivateKey() gocrypto.PrivateKey { return nil }
func (fakeKeyPair) Type() sagecrypto.KeyType        { return sagecrypto.KeyType("bogus") }
func (fakeKeyPair) Sign(_ []byte) ([]byte, error)   { return nil, nil }
func (fakeKeyPair) Verify(_, _ []byte) error        { return nil }
func (fakeKeyPair) ID() string                      { return "fake" }

func TestResolveSPKI_RejectsContradictingPSSHash(t *testing.T) {
	k := &Key{family: sagecrypto.FamilyRSA, spki: sagecrypto.SPKIParams{Family: sagecrypto.FamilyRSA, PSSHash: gocrypto.SHA512}}
	_, err := k.resolveSPKI(sagecrypto.SigRSAPSSSHA256, false, 0, 2048)
	require.Error(t, err)
	assert.ErrorIs(t, err, sagecrypto.ErrConstraintError)
}
