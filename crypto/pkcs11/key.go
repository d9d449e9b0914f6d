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

package pkcs11

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/asn1"
	"math/big"
	"sync"

	"github.com/miekg/pkcs11"

	sagecrypto "github.com/sage-x-project/sage/crypto"
)

// Object describes a resolved PKCS#11 object's handle plus the
// authentication policy it carries. AlwaysAuthenticate mirrors
// CKA_ALWAYS_AUTHENTICATE (PKCS#11 §6.7.7): when true, every
// sign/decrypt against this object must be preceded by a
// CKU_CONTEXT_SPECIFIC login, the mechanism a token with a per-operation
// PIN or touch policy (e.g. a smartcard key flagged "always
// authenticate") uses instead of a once-per-session CKU_USER login.
type Object struct {
	Handle             pkcs11.ObjectHandle
	Class              uint
	AlwaysAuthenticate bool
}

// resolveObject finds the single object matching class+id and reads its
// CKA_ALWAYS_AUTHENTICATE attribute. A token that doesn't return the
// attribute at all (many don't implement it) is treated as false, not an
// error — absence means the default PKCS#11 policy applies.
func resolveObject(session *Session, class uint, id []byte) (*Object, error) {
	handle, err := session.FindObject(class, id)
	if err != nil {
		return nil, err
	}
	attr, aerr := session.GetAttribute(handle, pkcs11.CKA_ALWAYS_AUTHENTICATE)
	always := aerr == nil && len(attr) == 1 && attr[0] != 0
	return &Object{Handle: handle, Class: class, AlwaysAuthenticate: always}, nil
}

// Key identifies a private/public object pair on a Session by PKCS#11
// CKA_ID, plus the per-key mutex spec.md §4.C requires so concurrent
// sign/decrypt calls against the same key handle serialize instead of
// racing on SignInit/Sign's two-step call pattern.
type Key struct {
	mu      sync.Mutex
	session *Session
	id      []byte
	class   uint
	obj     *Object
}

// NewKey binds a Key to the private-object CKA_ID id without resolving
// the object handle yet; resolution happens lazily on first use so a
// token that isn't provisioned yet doesn't fail at bind time.
func NewKey(session *Session, id []byte) *Key {
	return &Key{session: session, id: id, class: pkcs11.CKO_PRIVATE_KEY}
}

func (k *Key) resolve() error {
	if k.obj != nil {
		return nil
	}
	obj, err := resolveObject(k.session, k.class, k.id)
	if err != nil {
		return err
	}
	k.obj = obj
	return nil
}

// AlwaysAuthenticate reports whether the bound private object requires a
// context-specific re-login before each sign/decrypt, once resolved. A
// key that hasn't performed its first operation yet reports false.
func (k *Key) AlwaysAuthenticate() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.obj != nil && k.obj.AlwaysAuthenticate
}

// PKCS#11 mechanism ids: CKM_ECDSA, CKM_DSA and CKM_RSA_PKCS for signing,
// plus the RSA-PSS and RSA-OAEP mechanisms.
const (
	mechECDSA    = pkcs11.CKM_ECDSA
	mechDSA      = pkcs11.CKM_DSA
	mechRSAPKCS  = pkcs11.CKM_RSA_PKCS
	mechRSAPSS   = pkcs11.CKM_RSA_PKCS_PSS
	mechRSAPKCS1OAEP = pkcs11.CKM_RSA_PKCS_OAEP
)

// SignECDSA signs digest (already hashed) with the bound EC private
// object and returns a DER SEQUENCE{INTEGER r, INTEGER s} signature —
// the wire format spec.md expects from verify_hash2, converted from the
// raw r‖s encoding PKCS#11 tokens return.
func (k *Key) SignECDSA(digest []byte) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.resolve(); err != nil {
		return nil, err
	}
	raw, err := k.session.Sign(mechECDSA, k.obj.Handle, digest, k.obj.AlwaysAuthenticate)
	if err != nil {
		return nil, err
	}
	return rawToDER(raw)
}

// SignDSA is SignECDSA for a DSA private object.
func (k *Key) SignDSA(digest []byte) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.resolve(); err != nil {
		return nil, err
	}
	raw, err := k.session.Sign(mechDSA, k.obj.Handle, digest, k.obj.AlwaysAuthenticate)
	if err != nil {
		return nil, err
	}
	return rawToDER(raw)
}

// SignRSA signs digestInfo (the DER DigestInfo blob, already wrapped by
// the caller) using CKM_RSA_PKCS, returning the raw PKCS#1v1.5 signature
// — no r‖s conversion applies to RSA.
func (k *Key) SignRSA(digestInfo []byte) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.resolve(); err != nil {
		return nil, err
	}
	return k.session.Sign(mechRSAPKCS, k.obj.Handle, digestInfo, k.obj.AlwaysAuthenticate)
}

// DecryptRSA runs CKM_RSA_PKCS_OAEP decryption against the bound RSA
// private object.
func (k *Key) DecryptRSA(ciphertext []byte) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.resolve(); err != nil {
		return nil, err
	}
	return k.session.Decrypt(mechRSAPKCS1OAEP, k.obj.Handle, ciphertext, k.obj.AlwaysAuthenticate)
}

// rawSig is the ASN.1 SEQUENCE{INTEGER r, INTEGER s} signature shape the
// abstract key layer standardizes on for DSA and ECDSA.
type rawSig struct {
	R, S *big.Int
}

// rawToDER converts a PKCS#11 raw r‖s signature (two equal-length
// big-endian halves) to the DER SEQUENCE form. An odd-length raw
// signature can't be split evenly into r and s and is rejected with
// CodeSignFailed, per spec.md §4.C.
func rawToDER(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, sagecrypto.NewError(sagecrypto.CodeSignFailed, "pkcs11: odd-length raw signature")
	}
	half := len(raw) / 2
	r := new(big.Int).SetBytes(raw[:half])
	s := new(big.Int).SetBytes(raw[half:])
	return asn1.Marshal(rawSig{R: r, S: s})
}

// ECPublicKey reads the CKA_EC_POINT attribute off the public object
// sharing id and reconstructs a *ecdsa.PublicKey on curve. The
// EC_POINT attribute is the DER octet-string encoding of an
// uncompressed ANSI X9.62 point (0x04 len 0x04 X Y); the length byte
// tells us X/Y's combined size without assuming a fixed curve a priori.
func ECPublicKey(session *Session, id []byte, curve elliptic.Curve) (*ecdsa.PublicKey, error) {
	handle, err := session.FindObject(pkcs11.CKO_PUBLIC_KEY, id)
	if err != nil {
		return nil, err
	}
	der, err := session.GetAttribute(handle, pkcs11.CKA_EC_POINT)
	if err != nil {
		return nil, err
	}
	if len(der) < 3 || der[0] != 0x04 || der[2] != 0x04 {
		return nil, sagecrypto.NewError(sagecrypto.CodeParsingError, "pkcs11: malformed EC_POINT attribute")
	}
	point := der[3:]
	byteLen := (curve.Params().BitSize + 7) / 8
	if len(point) != 2*byteLen {
		return nil, sagecrypto.NewError(sagecrypto.CodeParsingError, "pkcs11: EC_POINT length mismatch for curve")
	}
	x := new(big.Int).SetBytes(point[:byteLen])
	y := new(big.Int).SetBytes(point[byteLen:])
	if !curve.IsOnCurve(x, y) {
		return nil, sagecrypto.NewError(sagecrypto.CodeParsingError, "pkcs11: EC_POINT not on curve")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}
