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

// Package privkey implements the tagged-variant abstract private key
// (spec.md §4.E): Software, Token (PKCS#11) and External-callback key
// handles behind one sign/decrypt dispatch, sharing the cached SPKI
// parameter pinning and constant-time decrypt guarantee the concrete
// backend can't be trusted to provide uniformly on its own.
//
// Grounded on original_source/privkey.c for the import-route table and
// state machine. ImportSoftwareKeyPair wires crypto/keys' concrete
// Ed25519/Secp256k1/RSA/X25519 generators in as the normal
// fresh-key-generation route into the Software variant; ImportSoftware
// itself takes a raw stdlib key directly, which is the only route for
// families crypto/keys does not generate (DSA, generic ECDSA, GOST) and
// for keys parsed from an external source (X.509 cert, PKCS#8 blob).
package privkey

import (
	gocrypto "crypto"
	"sync"
	"time"

	sagecrypto "github.com/sage-x-project/sage/crypto"
	"github.com/sage-x-project/sage/crypto/pkcs11"
	"github.com/sage-x-project/sage/crypto/pubkey"
	"github.com/sage-x-project/sage/internal/metrics"
)

// Variant tags which import route produced a Key.
type Variant int

const (
	VariantSoftware Variant = iota
	VariantToken
	VariantExternal
)

// state implements the §4.E state machine for token-backed keys:
// IDLE → BOUND (import_url) → OPERATING (lock) → BOUND (unlock), with
// REOPEN on fork and LOGIN on UserNotLoggedIn both returning to
// OPERATING. Software and External keys stay BOUND for their whole
// lifetime — there is no session to lock.
type state int

const (
	stateIdle state = iota
	stateBound
	stateOperating
	stateClosed
)

// SignFunc/DecryptFunc/SignHashFunc/InfoFunc are the External-variant
// callback shapes from spec.md §4.E's External/External3/External4
// import routes.
type (
	SignFunc     func(data []byte) ([]byte, error)
	DecryptFunc  func(ciphertext []byte) ([]byte, error)
	SignHashFunc func(alg sagecrypto.SignatureAlgorithm, hash []byte) ([]byte, error)
	SignDataFunc func(alg sagecrypto.SignatureAlgorithm, data []byte) ([]byte, error)
	InfoFunc     func(alg sagecrypto.SignatureAlgorithm) bool
	DeinitFunc   func()
)

// ImportFlags mirror spec.md §4.E's COPY/AUTO_RELEASE handle-ownership
// flags for the X.509-software import route.
type ImportFlags uint32

const (
	FlagCopy ImportFlags = 1 << iota
	FlagAutoRelease
)

// Key is the tagged-variant abstract private key.
type Key struct {
	mu sync.Mutex

	variant Variant
	state   state
	family  sagecrypto.Family
	spki    sagecrypto.SPKIParams

	// Software
	std gocrypto.PrivateKey

	// Token
	tokenKey *pkcs11.Key
	session  *pkcs11.Session

	// External
	sign     SignFunc
	decrypt  DecryptFunc
	signHash SignHashFunc
	signData SignDataFunc
	info     InfoFunc

	deinit    DeinitFunc
	autoRelease bool

	prim sagecrypto.Primitive
}

// StdPublicKey satisfies pubkey.PrivateKeyPublic for the Software variant
// only; Token/External keys never expose raw key material and return nil
// (callers deriving a PublicKey for those variants must have imported one
// out-of-band, e.g. from the token's public object or an X.509 cert).
func (k *Key) StdPublicKey() interface{} {
	switch priv := k.std.(type) {
	case interface{ Public() gocrypto.PublicKey }:
		return priv.Public()
	default:
		return nil
	}
}

// ImportSoftware binds std (an *rsa.PrivateKey, *dsa.PrivateKey,
// *ecdsa.PrivateKey, ed25519.PrivateKey, or *decredsecp256k1.PrivateKey)
// as a Software-variant key. Importing into a non-clean (already bound)
// handle is CodeInvalidRequest, per the "universal rules" in §4.E.
func ImportSoftware(k *Key, std gocrypto.PrivateKey, family sagecrypto.Family, prim sagecrypto.Primitive, flags ImportFlags, deinit DeinitFunc) error {
	if k.state != stateIdle {
		return sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "privkey: import into non-clean handle")
	}
	k.variant = VariantSoftware
	k.std = std
	k.family = family
	k.spki = sagecrypto.SPKIParams{Family: family}
	k.prim = prim
	k.deinit = deinit
	if deinit != nil || flags&FlagAutoRelease != 0 {
		k.autoRelease = true
	}
	k.state = stateBound
	return nil
}

// ImportSoftwareKeyPair binds a crypto/keys-generated sagecrypto.KeyPair
// (e.g. keys.GenerateEd25519KeyPair, keys.GenerateRSAKeyPair,
// keys.GenerateSecp256k1KeyPair) as a Software-variant key, deriving
// family from the pair's KeyType and unwrapping its raw stdlib private key
// for the Primitive to operate on. A KeyType with no family in FamilyOf,
// such as X25519, is rejected with CodeInvalidRequest.
// This is the route a fresh key generation should use; ImportSoftware
// remains for keys already in stdlib form (parsed from a certificate or
// a DSA/ECDSA/GOST key crypto/keys does not construct).
func ImportSoftwareKeyPair(k *Key, kp sagecrypto.KeyPair, prim sagecrypto.Primitive, flags ImportFlags, deinit DeinitFunc) error {
	family, ok := sagecrypto.FamilyOf(kp.Type())
	if !ok {
		return sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "privkey: unrecognized key pair type")
	}
	return ImportSoftware(k, kp.PrivateKey(), family, prim, flags, deinit)
}

// ImportToken binds a PKCS#11 object as a Token-variant key. The COPY
// flag is invalid here (tokens do not export key material); session must
// stay alive for the key's lifetime, so Key only stores a reference.
func ImportToken(k *Key, session *pkcs11.Session, tokenKey *pkcs11.Key, family sagecrypto.Family, flags ImportFlags) error {
	if k.state != stateIdle {
		return sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "privkey: import into non-clean handle")
	}
	if flags&FlagCopy != 0 {
		return sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "privkey: COPY is invalid for token keys")
	}
	k.variant = VariantToken
	k.session = session
	k.tokenKey = tokenKey
	k.family = family
	k.spki = sagecrypto.SPKIParams{Family: family}
	k.state = stateBound
	return nil
}

// ExternalCallbacks bundles the External/External3/External4 callback
// sets spec.md §4.E describes as one progressively-richer import route.
type ExternalCallbacks struct {
	Sign     SignFunc     // External
	Decrypt  DecryptFunc  // External
	Info     InfoFunc     // External3
	SignData SignDataFunc // External4, used when the algorithm can't pre-hash (Ed25519)
	SignHash SignHashFunc // External4
}

// ImportExternal binds an External-variant key. At least one of
// Sign/Decrypt/SignData/SignHash must be non-nil. The RSA, ECDSA, DSA and
// EdDSA families are accepted with any callback set; any other family is
// accepted only when SignData is present.
func ImportExternal(k *Key, cb ExternalCallbacks, family sagecrypto.Family, deinit DeinitFunc) error {
	if k.state != stateIdle {
		return sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "privkey: import into non-clean handle")
	}
	if cb.Sign == nil && cb.Decrypt == nil && cb.SignData == nil && cb.SignHash == nil {
		return sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "privkey: external key needs at least one callback")
	}
	switch family {
	case sagecrypto.FamilyRSA, sagecrypto.FamilyECDSA, sagecrypto.FamilyDSA, sagecrypto.FamilyEdDSA:
	default:
		if cb.SignData == nil {
			return sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "privkey: unsupported external PK family")
		}
	}
	k.variant = VariantExternal
	k.sign = cb.Sign
	k.decrypt = cb.Decrypt
	k.info = cb.Info
	k.signData = cb.SignData
	k.signHash = cb.SignHash
	k.family = family
	k.spki = sagecrypto.SPKIParams{Family: family}
	k.deinit = deinit
	if deinit != nil {
		k.autoRelease = true
	}
	k.state = stateBound
	return nil
}

// Deinit releases the key. For an auto-release software/X.509 key or any
// key with a deinit callback this invokes it; for a closed or idle key
// it is a no-op.
func (k *Key) Deinit() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == stateClosed {
		return
	}
	if k.deinit != nil {
		k.deinit()
	}
	k.state = stateClosed
}

// resolveSPKI implements §4.E step 1-3: start from the cached SPKI
// params, pin the PSS salt/hash for the requested algorithm, and reject
// a contradicting PSS hash already pinned to the key.
func (k *Key) resolveSPKI(alg sagecrypto.SignatureAlgorithm, reproducible bool, minSalt int, bits int) (sagecrypto.SPKIParams, error) {
	params := k.spki
	if alg != sagecrypto.SigRSAPSSSHA256 {
		return params, nil
	}
	hash := gocrypto.SHA256
	if params.PSSHash != 0 && params.PSSHash != hash {
		return params, sagecrypto.NewError(sagecrypto.CodeConstraintError, "privkey: PSS hash contradicts key's pinned hash")
	}
	params.PSSHash = hash
	if reproducible {
		params.PSSSaltSize = 0
	} else if k.prim != nil {
		params.PSSSaltSize = k.prim.FindRSAPSSSaltSize(bits, hash, minSalt)
	}
	return params, nil
}

// signSelector picks the signature id handed to the External callbacks.
// It returns alg unchanged: this module defines no separate raw-RSA
// signature id, so an RSA PKCS#1 v1.5 request reaches the callbacks as
// SigRSAPKCS1v15SHA256.
func signSelector(alg sagecrypto.SignatureAlgorithm, family sagecrypto.Family) sagecrypto.SignatureAlgorithm {
	if family == sagecrypto.FamilyRSA && alg == sagecrypto.SigRSAPKCS1v15SHA256 {
		return sagecrypto.SigRSAPKCS1v15SHA256
	}
	return alg
}

// SignData2 is the full sign_data2 pipeline: resolve SPKI params, then
// dispatch by variant. dataOrDigest is already hashed unless alg is
// EdDSA, which signs the raw message via a software primitive's Sign.
func (k *Key) SignData2(alg sagecrypto.SignatureAlgorithm, dataOrDigest []byte, reproducible bool, minSalt, bits int) ([]byte, error) {
	start := time.Now()
	sig, err := k.signData2(alg, dataOrDigest, reproducible, minSalt, bits)
	metrics.CryptoOperationDuration.WithLabelValues("sign", string(alg)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("sign").Inc()
		return nil, err
	}
	metrics.CryptoOperations.WithLabelValues("sign", string(alg)).Inc()
	return sig, nil
}

func (k *Key) signData2(alg sagecrypto.SignatureAlgorithm, dataOrDigest []byte, reproducible bool, minSalt, bits int) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.state == stateClosed || k.state == stateIdle {
		return nil, sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "privkey: key not bound")
	}

	params, err := k.resolveSPKI(alg, reproducible, minSalt, bits)
	if err != nil {
		return nil, err
	}
	k.spki = params

	switch k.variant {
	case VariantSoftware:
		if k.prim == nil {
			return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "privkey: no primitive bound")
		}
		sig, err := k.prim.Sign(alg, dataOrDigest, params, k.std)
		if err != nil {
			return nil, sagecrypto.WrapError(sagecrypto.CodeSignFailed, "", err)
		}
		return sig, nil

	case VariantToken:
		return k.signToken(alg, dataOrDigest)

	case VariantExternal:
		sel := signSelector(alg, k.family)
		switch {
		case alg == sagecrypto.SigEdDSAEd25519 && k.signData != nil:
			return k.signData(sel, dataOrDigest)
		case k.signHash != nil:
			return k.signHash(sel, dataOrDigest)
		case k.sign != nil:
			return k.sign(dataOrDigest)
		default:
			return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "privkey: no sign callback available")
		}

	default:
		return nil, sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "privkey: unknown variant")
	}
}

// SignData is sign_data: the common case with the key's cached SPKI
// algorithm rather than a caller-chosen one.
func (k *Key) SignData(dataOrDigest []byte) ([]byte, error) {
	return k.SignData2(signAlgForFamily(k.family), dataOrDigest, false, 0, 2048)
}

func signAlgForFamily(f sagecrypto.Family) sagecrypto.SignatureAlgorithm {
	switch f {
	case sagecrypto.FamilyRSA:
		return sagecrypto.SigRSAPKCS1v15SHA256
	case sagecrypto.FamilyDSA:
		return sagecrypto.SigDSASHA256
	case sagecrypto.FamilyECDSA:
		return sagecrypto.SigECDSASHA256
	case sagecrypto.FamilyEdDSA:
		return sagecrypto.SigEdDSAEd25519
	case sagecrypto.FamilyGOST:
		return sagecrypto.SigGOST256
	default:
		return sagecrypto.SigECDSASHA256
	}
}

// signToken implements the token-key state machine for one sign
// operation: BOUND→OPERATING (lock), UserNotLoggedIn→LOGIN→OPERATING
// (exactly one retry — handled transparently inside pkcs11.Session),
// OPERATING→BOUND (unlock) on return.
func (k *Key) signToken(alg sagecrypto.SignatureAlgorithm, digest []byte) ([]byte, error) {
	k.state = stateOperating
	defer func() { k.state = stateBound }()

	switch k.family {
	case sagecrypto.FamilyECDSA:
		return k.tokenKey.SignECDSA(digest)
	case sagecrypto.FamilyDSA:
		return k.tokenKey.SignDSA(digest)
	case sagecrypto.FamilyRSA:
		return k.tokenKey.SignRSA(digest)
	default:
		return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "privkey: token signing not supported for family")
	}
}

// DecryptData2 is decrypt_data2: constant-time when the backend supports
// it. For Software keys this means calling the Primitive's
// DecryptConstantTime, which never branches on plaintext content beyond
// the pre-call size-mismatch check (spec.md Open Question #3, resolved
// in DESIGN.md §3).
func (k *Key) DecryptData2(ciphertext []byte) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.state == stateClosed || k.state == stateIdle {
		return nil, sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "privkey: key not bound")
	}

	switch k.variant {
	case VariantSoftware:
		if k.prim == nil {
			return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "privkey: no primitive bound")
		}
		pt, err := k.prim.DecryptConstantTime(k.std, ciphertext)
		if err != nil {
			return nil, sagecrypto.WrapError(sagecrypto.CodeDecryptionFailed, "", err)
		}
		return pt, nil

	case VariantToken:
		k.state = stateOperating
		defer func() { k.state = stateBound }()
		return k.tokenKey.DecryptRSA(ciphertext)

	case VariantExternal:
		if k.decrypt == nil {
			return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "privkey: no decrypt callback available")
		}
		return k.decrypt(ciphertext)

	default:
		return nil, sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "privkey: unknown variant")
	}
}

// DecryptData is decrypt_data without a caller-chosen override; kept
// distinct from DecryptData2 only by name, matching the legacy/extended
// pairing pattern spec.md §4.E describes for sign_data/sign_data2.
func (k *Key) DecryptData(ciphertext []byte) ([]byte, error) {
	return k.DecryptData2(ciphertext)
}

// CompatibleWithSig reports whether sign_alg can be served by this key:
// the PK family must match (or an RSA key serves RSA-PSS), and an External
// key with an info callback then defers to that callback. No curve is
// checked, and a token RSA key is accepted for RSA-PSS without asking the
// token whether it supports PSS.
func (k *Key) CompatibleWithSig(alg sagecrypto.SignatureAlgorithm) bool {
	entryFamily := familyForSig(alg)
	sameFamily := entryFamily == k.family
	rsaServesPSS := k.family == sagecrypto.FamilyRSA && alg == sagecrypto.SigRSAPSSSHA256
	if !sameFamily && !rsaServesPSS {
		return false
	}
	if k.variant == VariantExternal && k.info != nil {
		return k.info(alg)
	}
	if k.variant == VariantToken && alg == sagecrypto.SigRSAPSSSHA256 {
		return k.family == sagecrypto.FamilyRSA
	}
	return true
}

func familyForSig(alg sagecrypto.SignatureAlgorithm) sagecrypto.Family {
	switch alg {
	case sagecrypto.SigRSAPKCS1v15SHA256, sagecrypto.SigRSAPSSSHA256, sagecrypto.SigRSAPKCS1v15SHA1:
		return sagecrypto.FamilyRSA
	case sagecrypto.SigECDSASHA256, sagecrypto.SigECDSASHA1:
		return sagecrypto.FamilyECDSA
	case sagecrypto.SigEdDSAEd25519:
		return sagecrypto.FamilyEdDSA
	case sagecrypto.SigDSASHA256, sagecrypto.SigDSASHA1:
		return sagecrypto.FamilyDSA
	case sagecrypto.SigGOST256:
		return sagecrypto.FamilyGOST
	default:
		return sagecrypto.FamilyECDSA
	}
}

// Family returns the PK family cached at import.
func (k *Key) Family() sagecrypto.Family { return k.family }

// PublicKey derives the abstract public key half of a Software-variant
// key via pubkey.ImportPrivateKey; Token/External keys must supply their
// public half separately (the token's public object, or an out-of-band
// certificate).
func (k *Key) PublicKey(usage pubkey.Usage) (*pubkey.PublicKey, error) {
	if k.variant != VariantSoftware {
		return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "privkey: PublicKey only derivable for software keys")
	}
	return pubkey.ImportPrivateKey(k, usage)
}
