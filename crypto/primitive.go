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

package crypto

import gocrypto "crypto"

// HashAlgorithm names a digest algorithm by the same identifiers stdlib
// crypto.Hash uses. It is an alias of crypto.Hash, so callers can name a
// hash through this package without importing "crypto".
type HashAlgorithm = gocrypto.Hash

// SignatureAlgorithm identifies a (PK family, padding/hash) signature
// scheme, e.g. "rsa-pss-sha256", "ecdsa-p256-sha256", "ed25519".
type SignatureAlgorithm string

const (
	SigRSAPKCS1v15SHA256 SignatureAlgorithm = "rsa-pkcs1v15-sha256"
	SigRSAPSSSHA256      SignatureAlgorithm = "rsa-pss-sha256"
	SigECDSASHA256       SignatureAlgorithm = "ecdsa-sha256"
	SigEdDSAEd25519      SignatureAlgorithm = "ed25519"
	SigDSASHA256         SignatureAlgorithm = "dsa-sha256"
	SigGOST256           SignatureAlgorithm = "gost256"

	// SHA-1-keyed variants. Still implementable against the same
	// primitives (stdlib rsa/dsa/ecdsa all take an arbitrary hash), but
	// GnuTLS's pubkey.c treats them as insecure by default and rejects
	// them unless the caller opts in; pubkey.brokenAlgorithms mirrors
	// that default.
	SigRSAPKCS1v15SHA1 SignatureAlgorithm = "rsa-pkcs1v15-sha1"
	SigECDSASHA1       SignatureAlgorithm = "ecdsa-sha1"
	SigDSASHA1         SignatureAlgorithm = "dsa-sha1"
)

// SPKIParams is the SPKI-parameter record carried on a private or public
// key handle: the PK algorithm it was imported as, plus the PSS hash/salt
// pinned to it the first time it was used for RSA-PSS. A zero-value
// SPKIParams means "not yet pinned".
type SPKIParams struct {
	Family      Family
	PSSHash     HashAlgorithm
	PSSSaltSize int
}

// Primitive is the external PK/hash adapter contract this module consumes
// from a lower crypto layer and never implements directly (spec.md §4.B).
// The stdlib implementation lives in crypto/privkey as StdPrimitive,
// backing the Software private-key variant; a PKCS#11 or External variant
// bypasses Primitive entirely and dispatches to its own backend.
type Primitive interface {
	// Sign produces a signature over dataOrDigest (already hashed, unless
	// alg is EdDSA, which signs the raw message).
	Sign(alg SignatureAlgorithm, dataOrDigest []byte, params SPKIParams, key gocrypto.PrivateKey) ([]byte, error)

	// Verify reports whether signature is valid for dataOrDigest under pub.
	Verify(alg SignatureAlgorithm, dataOrDigest, signature []byte, params SPKIParams, pub gocrypto.PublicKey) error

	// Encrypt/Decrypt wrap RSA-OAEP/PKCS1v15 style asymmetric encryption.
	Encrypt(pub gocrypto.PublicKey, plaintext []byte) ([]byte, error)
	Decrypt(priv gocrypto.PrivateKey, ciphertext []byte) ([]byte, error)

	// DecryptConstantTime is Decrypt with the additional guarantee that it
	// never branches on the decrypted plaintext's content, only on a
	// fixed-size-mismatch check performed before touching key material
	// (spec.md §4.E, Open Question #3).
	DecryptConstantTime(priv gocrypto.PrivateKey, ciphertext []byte) ([]byte, error)

	// HashFast computes a digest; HashLen reports its size without hashing.
	HashFast(alg HashAlgorithm, data []byte) ([]byte, error)
	HashLen(alg HashAlgorithm) int

	// EncodeDigestInfo/DecodeDigestInfo implement the DER DigestInfo
	// wrapper RSA PKCS#1v1.5 signing requires.
	EncodeDigestInfo(alg HashAlgorithm, digest []byte) ([]byte, error)
	DecodeDigestInfo(der []byte) (HashAlgorithm, []byte, error)

	// FindRSAPSSSaltSize returns the salt size used for an RSA-PSS
	// signature for a bits-sized modulus, the given hash and minimum. It
	// takes no reproducible flag: privkey's resolveSPKI sets the salt size
	// to 0 itself for a reproducible request and does not call it then.
	FindRSAPSSSaltSize(bits int, alg HashAlgorithm, minimum int) int
}
