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
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"math/big"

	decredsecp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	sagecrypto "github.com/sage-x-project/sage/crypto"
)

// StdPrimitive implements sagecrypto.Primitive (§4.B) over Go's stdlib
// crypto/{rsa,dsa,ecdsa,ed25519} packages. spec.md §1 places "the low-level
// PK math" out of scope and describes it as something the core consumes
// from a lower layer; no library in the example pack packages a unified
// RSA/DSA/ECDSA/EdDSA sign-verify-hash adapter the way this interface
// shapes it, so StdPrimitive is the one component in this tree built
// directly on the standard library rather than a pack dependency (see
// DESIGN.md).
type StdPrimitive struct{}

var _ sagecrypto.Primitive = StdPrimitive{}

func (StdPrimitive) Sign(alg sagecrypto.SignatureAlgorithm, dataOrDigest []byte, params sagecrypto.SPKIParams, key gocrypto.PrivateKey) ([]byte, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		if alg == sagecrypto.SigRSAPSSSHA256 {
			opts := &rsa.PSSOptions{SaltLength: saltLenFromParams(params), Hash: gocrypto.SHA256}
			return rsa.SignPSS(rand.Reader, k, gocrypto.SHA256, dataOrDigest, opts)
		}
		return rsa.SignPKCS1v15(rand.Reader, k, hashFromParams(params), dataOrDigest)
	case *dsa.PrivateKey:
		r, s, err := dsa.Sign(rand.Reader, k, dataOrDigest)
		if err != nil {
			return nil, err
		}
		return asn1.Marshal(struct{ R, S *big.Int }{r, s})
	case *ecdsa.PrivateKey:
		r, s, err := ecdsa.Sign(rand.Reader, k, dataOrDigest)
		if err != nil {
			return nil, err
		}
		return asn1.Marshal(struct{ R, S *big.Int }{r, s})
	case ed25519.PrivateKey:
		return ed25519.Sign(k, dataOrDigest), nil
	case *decredsecp256k1.PrivateKey:
		ecdsaKey := k.ToECDSA()
		r, s, err := ecdsa.Sign(rand.Reader, ecdsaKey, dataOrDigest)
		if err != nil {
			return nil, err
		}
		return asn1.Marshal(struct{ R, S *big.Int }{r, s})
	default:
		return nil, sagecrypto.NewError(sagecrypto.CodeUnknownAlgorithm, "unsupported private key type")
	}
}

func (StdPrimitive) Verify(alg sagecrypto.SignatureAlgorithm, dataOrDigest, signature []byte, params sagecrypto.SPKIParams, pub gocrypto.PublicKey) error {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		if alg == sagecrypto.SigRSAPSSSHA256 {
			opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: gocrypto.SHA256}
			return rsa.VerifyPSS(k, gocrypto.SHA256, dataOrDigest, signature, opts)
		}
		return rsa.VerifyPKCS1v15(k, hashFromParams(params), dataOrDigest, signature)
	case *dsa.PublicKey:
		var sig struct{ R, S *big.Int }
		if _, err := asn1.Unmarshal(signature, &sig); err != nil {
			return err
		}
		if !dsa.Verify(k, dataOrDigest, sig.R, sig.S) {
			return sagecrypto.ErrSigVerifyFailed
		}
		return nil
	case *ecdsa.PublicKey:
		var sig struct{ R, S *big.Int }
		if _, err := asn1.Unmarshal(signature, &sig); err != nil {
			return err
		}
		if !ecdsa.Verify(k, dataOrDigest, sig.R, sig.S) {
			return sagecrypto.ErrSigVerifyFailed
		}
		return nil
	case ed25519.PublicKey:
		if !ed25519.Verify(k, dataOrDigest, signature) {
			return sagecrypto.ErrSigVerifyFailed
		}
		return nil
	default:
		return sagecrypto.NewError(sagecrypto.CodeUnknownAlgorithm, "unsupported public key type")
	}
}

func (StdPrimitive) Encrypt(pub gocrypto.PublicKey, plaintext []byte) ([]byte, error) {
	k, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "encrypt only supported for RSA")
	}
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, k, plaintext, nil)
}

func (StdPrimitive) Decrypt(priv gocrypto.PrivateKey, ciphertext []byte) ([]byte, error) {
	k, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "decrypt only supported for RSA")
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, k, ciphertext, nil)
	if err != nil {
		return nil, sagecrypto.WrapError(sagecrypto.CodeDecryptionFailed, "", err)
	}
	return pt, nil
}

// DecryptConstantTime is Decrypt, but never branches on ciphertext/plaintext
// content after the primitive call — only the size mismatch is checked
// first, matching spec.md §4.E / Open Question #3. rsa.DecryptOAEP is
// already constant-time for a fixed-size ciphertext; the size check below
// is the only branch permitted before touching key material.
func (StdPrimitive) DecryptConstantTime(priv gocrypto.PrivateKey, ciphertext []byte) ([]byte, error) {
	k, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "decrypt only supported for RSA")
	}
	if len(ciphertext) != k.Size() {
		return nil, sagecrypto.NewError(sagecrypto.CodeDecryptionFailed, "ciphertext size mismatch")
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, k, ciphertext, nil)
	if err != nil {
		return nil, sagecrypto.WrapError(sagecrypto.CodeDecryptionFailed, "", err)
	}
	return pt, nil
}

func (StdPrimitive) HashFast(alg sagecrypto.HashAlgorithm, data []byte) ([]byte, error) {
	switch alg {
	case gocrypto.SHA1:
		sum := sha1.Sum(data)
		return sum[:], nil
	case gocrypto.SHA256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case gocrypto.SHA384:
		sum := sha512.Sum384(data)
		return sum[:], nil
	case gocrypto.SHA512:
		sum := sha512.Sum512(data)
		return sum[:], nil
	default:
		return nil, sagecrypto.NewError(sagecrypto.CodeUnknownAlgorithm, "unsupported hash algorithm")
	}
}

func (StdPrimitive) HashLen(alg sagecrypto.HashAlgorithm) int {
	if alg.Available() {
		return alg.Size()
	}
	return 0
}

// digestInfoOID maps a hash algorithm to its DigestInfo AlgorithmIdentifier
// OID, per RFC 8017 Appendix A.2.4 (the DigestInfo ASN.1 wrapper for
// PKCS#1 v1.5 signing).
var digestInfoOID = map[gocrypto.Hash]asn1.ObjectIdentifier{
	gocrypto.SHA1:   {1, 3, 14, 3, 2, 26},
	gocrypto.SHA256: {2, 16, 840, 1, 101, 3, 4, 2, 1},
	gocrypto.SHA384: {2, 16, 840, 1, 101, 3, 4, 2, 2},
	gocrypto.SHA512: {2, 16, 840, 1, 101, 3, 4, 2, 3},
}

type digestInfo struct {
	Algorithm struct {
		Algorithm  asn1.ObjectIdentifier
		Parameters asn1.RawValue `asn1:"optional"`
	}
	Digest []byte
}

func (StdPrimitive) EncodeDigestInfo(alg sagecrypto.HashAlgorithm, digest []byte) ([]byte, error) {
	oid, ok := digestInfoOID[alg]
	if !ok {
		return nil, sagecrypto.NewError(sagecrypto.CodeUnknownAlgorithm, "no DigestInfo OID for hash")
	}
	var info digestInfo
	info.Algorithm.Algorithm = oid
	info.Algorithm.Parameters = asn1.RawValue{Tag: asn1.TagNull}
	info.Digest = digest
	return asn1.Marshal(info)
}

func (StdPrimitive) DecodeDigestInfo(der []byte) (sagecrypto.HashAlgorithm, []byte, error) {
	var info digestInfo
	if _, err := asn1.Unmarshal(der, &info); err != nil {
		return 0, nil, sagecrypto.WrapError(sagecrypto.CodeParsingError, "decode DigestInfo", err)
	}
	for alg, oid := range digestInfoOID {
		if oid.Equal(info.Algorithm.Algorithm) {
			return alg, info.Digest, nil
		}
	}
	return 0, nil, sagecrypto.NewError(sagecrypto.CodeUnknownAlgorithm, "unrecognized DigestInfo OID")
}

// FindRSAPSSSaltSize returns 0 when minimum is 0, else the maximum salt
// that fits the modulus for the given hash, emBits/8 - hashLen - 2
// (RFC 8017 §9.1.1), raised to minimum when that is larger. Sign treats a
// salt size of 0 as rsa.PSSSaltLengthAuto.
func (StdPrimitive) FindRSAPSSSaltSize(bits int, alg sagecrypto.HashAlgorithm, minimum int) int {
	if minimum == 0 {
		return 0
	}
	hashLen := alg.Size()
	max := (bits+7)/8 - hashLen - 2
	if max < minimum {
		return minimum
	}
	return max
}

func hashFromParams(params sagecrypto.SPKIParams) gocrypto.Hash {
	if params.PSSHash != 0 {
		return params.PSSHash
	}
	return gocrypto.SHA256
}

func saltLenFromParams(params sagecrypto.SPKIParams) int {
	if params.PSSSaltSize > 0 {
		return params.PSSSaltSize
	}
	return rsa.PSSSaltLengthAuto
}
