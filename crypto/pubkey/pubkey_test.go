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

package pubkey

import (
	gocrypto "crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sagecrypto "github.com/sage-x-project/sage/crypto"
)

// rsOrDER bundles an ECDSA/DSA signature's r, s components for ASN.1
// marshaling, mirroring crypto/privkey/primitive_std.go's own shape.
type rsOrDER struct{ R, S *big.Int }

// stdPrimitive exercises the same sign/verify dispatch
// crypto/privkey.StdPrimitive implements, reimplemented minimally here to
// avoid an import cycle (crypto/privkey already imports crypto/pubkey for
// PublicKey construction).
type stdPrimitive struct{}

func (stdPrimitive) Sign(alg sagecrypto.SignatureAlgorithm, dataOrDigest []byte, params sagecrypto.SPKIParams, key gocrypto.PrivateKey) ([]byte, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		if alg == sagecrypto.SigRSAPSSSHA256 {
			opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: gocrypto.SHA256}
			return rsa.SignPSS(rand.Reader, k, gocrypto.SHA256, dataOrDigest, opts)
		}
		return rsa.SignPKCS1v15(rand.Reader, k, gocrypto.SHA256, dataOrDigest)
	case *dsa.PrivateKey:
		r, s, err := dsa.Sign(rand.Reader, k, dataOrDigest)
		if err != nil {
			return nil, err
		}
		return asn1.Marshal(rsOrDER{R: r, S: s})
	case *ecdsa.PrivateKey:
		r, s, err := ecdsa.Sign(rand.Reader, k, dataOrDigest)
		if err != nil {
			return nil, err
		}
		return asn1.Marshal(rsOrDER{R: r, S: s})
	default:
		return nil, sagecrypto.NewError(sagecrypto.CodeUnknownAlgorithm, "unsupported private key type")
	}
}

func (stdPrimitive) Verify(alg sagecrypto.SignatureAlgorithm, dataOrDigest, signature []byte, params sagecrypto.SPKIParams, pub gocrypto.PublicKey) error {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		if alg == sagecrypto.SigRSAPSSSHA256 {
			opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: gocrypto.SHA256}
			return rsa.VerifyPSS(k, gocrypto.SHA256, dataOrDigest, signature, opts)
		}
		return rsa.VerifyPKCS1v15(k, gocrypto.SHA256, dataOrDigest, signature)
	case *dsa.PublicKey:
		var sig rsOrDER
		if _, err := asn1.Unmarshal(signature, &sig); err != nil {
			return err
		}
		if !dsa.Verify(k, dataOrDigest, sig.R, sig.S) {
			return sagecrypto.ErrSigVerifyFailed
		}
		return nil
	case *ecdsa.PublicKey:
		var sig rsOrDER
		if _, err := asn1.Unmarshal(signature, &sig); err != nil {
			return err
		}
		if !ecdsa.Verify(k, dataOrDigest, sig.R, sig.S) {
			return sagecrypto.ErrSigVerifyFailed
		}
		return nil
	default:
		return sagecrypto.NewError(sagecrypto.CodeUnknownAlgorithm, "unsupported public key type")
	}
}

func (stdPrimitive) Encrypt(pub gocrypto.PublicKey, plaintext []byte) ([]byte, error) {
	return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "not exercised by these tests")
}

func (stdPrimitive) Decrypt(priv gocrypto.PrivateKey, ciphertext []byte) ([]byte, error) {
	return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "not exercised by these tests")
}

func (stdPrimitive) DecryptConstantTime(priv gocrypto.PrivateKey, ciphertext []byte) ([]byte, error) {
	return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "not exercised by these tests")
}

func (stdPrimitive) HashFast(alg sagecrypto.HashAlgorithm, data []byte) ([]byte, error) {
	h := alg.New()
	h.Write(data)
	return h.Sum(nil), nil
}

func (stdPrimitive) HashLen(alg sagecrypto.HashAlgorithm) int { return alg.Size() }

func (stdPrimitive) EncodeDigestInfo(alg sagecrypto.HashAlgorithm, digest []byte) ([]byte, error) {
	return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "not exercised by these tests")
}

func (stdPrimitive) DecodeDigestInfo(der []byte) (sagecrypto.HashAlgorithm, []byte, error) {
	return 0, nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "not exercised by these tests")
}

func (stdPrimitive) FindRSAPSSSaltSize(bits int, alg sagecrypto.HashAlgorithm, minimum int) int {
	return 0
}

var _ sagecrypto.Primitive = stdPrimitive{}

// TestExportThenKeyID_RoundTripsSPKIDigest checks Export/KeyID against an
// RSA public key: KeyID's SHA-256 form must be 32 bytes and differ from
// the default SHA-1 form.
func TestExportThenKeyID_RoundTripsSPKIDigest(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub, err := ImportRSARaw(priv.PublicKey.N, priv.PublicKey.E)
	require.NoError(t, err)

	der, err := pub.Export(sagecrypto.KeyFormat(""))
	require.NoError(t, err)
	assert.NotEmpty(t, der)

	sha1ID, err := pub.KeyID(0)
	require.NoError(t, err)
	assert.Len(t, sha1ID, 20)

	sha256ID, err := pub.KeyID(KeyIDUseSHA256)
	require.NoError(t, err)
	assert.Len(t, sha256ID, 32)
	assert.NotEqual(t, sha1ID, sha256ID)
}

func TestGetPreferredHashAlgorithm_RSABitSizeThresholds(t *testing.T) {
	smallPriv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	small, err := ImportRSARaw(smallPriv.PublicKey.N, smallPriv.PublicKey.E)
	require.NoError(t, err)
	alg, mandatory := small.GetPreferredHashAlgorithm()
	assert.Equal(t, gocrypto.SHA1, alg)
	assert.False(t, mandatory)

	bigPriv, err := rsa.GenerateKey(rand.Reader, 3072)
	require.NoError(t, err)
	bigKey, err := ImportRSARaw(bigPriv.PublicKey.N, bigPriv.PublicKey.E)
	require.NoError(t, err)
	alg, _ = bigKey.GetPreferredHashAlgorithm()
	assert.Equal(t, gocrypto.SHA256, alg)
}

func TestCompatibleWithSig_UnknownAlgorithmRejected(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub, err := ImportRSARaw(priv.PublicKey.N, priv.PublicKey.E)
	require.NoError(t, err)
	assert.False(t, pub.CompatibleWithSig(sagecrypto.SignatureAlgorithm("bogus")))
}

// TestSignVerifyRoundTrip_RSAPSS signs via the same StdPrimitive-shaped
// dispatch crypto/privkey.Key.SignData2 uses, then verifies through
// pubkey.VerifyData2, proving spec.md's sign/verify round-trip property
// for an RSA-PSS key (not just Ed25519, which privkey_test.go already
// covers by calling ed25519.Verify directly rather than VerifyData2).
func TestSignVerifyRoundTrip_RSAPSS(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub, err := ImportRSARaw(priv.PublicKey.N, priv.PublicKey.E)
	require.NoError(t, err)

	msg := []byte("round trip through pubkey.VerifyData2: rsa-pss")
	prim := stdPrimitive{}
	digest, err := prim.HashFast(gocrypto.SHA256, msg)
	require.NoError(t, err)

	sig, err := prim.Sign(sagecrypto.SigRSAPSSSHA256, digest, sagecrypto.SPKIParams{Family: sagecrypto.FamilyRSA}, priv)
	require.NoError(t, err)

	require.NoError(t, pub.VerifyData2(prim, sagecrypto.SigRSAPSSSHA256, 0, msg, sig))
}

func TestSignVerifyRoundTrip_DSA(t *testing.T) {
	var params dsa.Parameters
	require.NoError(t, dsa.GenerateParameters(&params, rand.Reader, dsa.L1024N160))
	var priv dsa.PrivateKey
	priv.Parameters = params
	require.NoError(t, dsa.GenerateKey(&priv, rand.Reader))

	pub, err := ImportDSARaw(priv.P, priv.Q, priv.G, priv.Y)
	require.NoError(t, err)

	msg := []byte("round trip through pubkey.VerifyData2: dsa")
	prim := stdPrimitive{}
	digest, err := prim.HashFast(gocrypto.SHA1, msg)
	require.NoError(t, err)

	sig, err := prim.Sign(sagecrypto.SigDSASHA256, digest, sagecrypto.SPKIParams{Family: sagecrypto.FamilyDSA}, &priv)
	require.NoError(t, err)

	require.NoError(t, pub.VerifyHash2(prim, sagecrypto.SigDSASHA256, 0, digest, sig))
}

func TestSignVerifyRoundTrip_ECDSA(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pub, err := ImportECCRaw(elliptic.P256(), priv.PublicKey.X, priv.PublicKey.Y)
	require.NoError(t, err)

	msg := []byte("round trip through pubkey.VerifyData2: ecdsa")
	prim := stdPrimitive{}
	digest, err := prim.HashFast(gocrypto.SHA256, msg)
	require.NoError(t, err)

	sig, err := prim.Sign(sagecrypto.SigECDSASHA256, digest, sagecrypto.SPKIParams{Family: sagecrypto.FamilyECDSA}, priv)
	require.NoError(t, err)

	require.NoError(t, pub.VerifyData2(prim, sagecrypto.SigECDSASHA256, 0, msg, sig))
}

// TestVerifyData2_RejectsBrokenAlgorithmUnlessAllowed proves
// brokenAlgorithms is no longer dead code: a SHA-1-keyed ECDSA signature
// is rejected with CodeInsufficientSecurity before the primitive ever
// runs, and only succeeds once AllowBroken is set.
func TestVerifyData2_RejectsBrokenAlgorithmUnlessAllowed(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pub, err := ImportECCRaw(elliptic.P256(), priv.PublicKey.X, priv.PublicKey.Y)
	require.NoError(t, err)

	msg := []byte("broken algorithm check")
	prim := stdPrimitive{}
	digest, err := prim.HashFast(gocrypto.SHA1, msg)
	require.NoError(t, err)
	sig, err := prim.Sign(sagecrypto.SigECDSASHA1, digest, sagecrypto.SPKIParams{Family: sagecrypto.FamilyECDSA}, priv)
	require.NoError(t, err)

	err = pub.VerifyData2(prim, sagecrypto.SigECDSASHA1, 0, msg, sig)
	require.Error(t, err)
	assert.ErrorIs(t, err, sagecrypto.ErrInsufficientSecurity)

	// VerifyHash2 (not VerifyData2) here: VerifyData2 always rehashes with
	// GetPreferredHashAlgorithm's curve-based choice (SHA-256 for P-256),
	// not the SHA-1 this signature was actually made over.
	require.NoError(t, pub.VerifyHash2(prim, sagecrypto.SigECDSASHA1, AllowBroken, digest, sig))
}
