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

// Package pubkey implements the tagged-variant abstract public key
// (spec.md §4.D): a PK-parameter bundle plus a key-usage bitmask and SPKI
// parameter record, always software-resident (token pubkeys are extracted
// into this form by crypto/pkcs11).
package pubkey

import (
	gocrypto "crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"time"

	decredsecp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	sagecrypto "github.com/sage-x-project/sage/crypto"
	"github.com/sage-x-project/sage/internal/metrics"
)

// Usage is a key-usage bitmask, mirroring X.509 KeyUsage but independent of
// it since a public key may be imported from raw parameters with no
// certificate attached.
type Usage uint32

const (
	UsageDigitalSignature Usage = 1 << iota
	UsageKeyEncipherment
	UsageDataEncipherment
	UsageKeyAgreement
	UsageCertSign
)

// RSAParams holds an RSA public key's modulus and exponent.
type RSAParams struct {
	N *big.Int
	E int
}

// DSAParams holds FIPS-186-3 DSA domain parameters plus the public value y.
type DSAParams struct {
	P, Q, G, Y *big.Int
}

// ECDSAParams holds an ECDSA public point on a named curve. Curve is nil
// for a secp256k1 key, which is represented by its own *decredsecp256k1.PublicKey
// since secp256k1 doesn't satisfy elliptic.Curve through stdlib alone.
type ECDSAParams struct {
	Curve  elliptic.Curve
	X, Y   *big.Int
	Secp1k *decredsecp256k1.PublicKey // non-nil iff this is a secp256k1 key
}

// EdDSAParams holds a raw Ed25519 public key (no curve parameters: the
// curve is fixed by the algorithm).
type EdDSAParams struct {
	Raw ed25519.PublicKey
}

// GOSTParams holds GOST R 34.10 public key parameters. The core's GOST
// support is parameter-complete but has no signing/verification backend
// wired in this tree (see DESIGN.md) — Verify on a GOST key always returns
// CodeUnimplementedFeature.
type GOSTParams struct {
	Curve    string
	Digest   string
	ParamSet string
	X, Y     []byte // little-endian, per spec.md §4.D import_gost_raw
}

// PKParams is the tagged union of parameter bundles; exactly one field is
// non-nil, matching the family recorded in PublicKey.family.
type PKParams struct {
	RSA   *RSAParams
	DSA   *DSAParams
	ECDSA *ECDSAParams
	EdDSA *EdDSAParams
	GOST  *GOSTParams
}

// PublicKey is the abstract public key handle.
type PublicKey struct {
	family sagecrypto.Family
	params PKParams
	usage  Usage
	spki   sagecrypto.SPKIParams
}

// Family returns the abstract algorithm family this key was imported as.
func (k *PublicKey) Family() sagecrypto.Family { return k.family }

// Usage returns the key-usage bitmask recorded at import.
func (k *PublicKey) Usage() Usage { return k.usage }

// Params returns the tagged parameter bundle.
func (k *PublicKey) Params() PKParams { return k.params }

// ImportRSARaw imports an RSA public key from its modulus and exponent.
func ImportRSARaw(n *big.Int, e int) (*PublicKey, error) {
	if n == nil || e <= 0 {
		return nil, sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "rsa modulus and exponent required")
	}
	return &PublicKey{
		family: sagecrypto.FamilyRSA,
		params: PKParams{RSA: &RSAParams{N: n, E: e}},
		usage:  UsageDigitalSignature | UsageKeyEncipherment,
		spki:   sagecrypto.SPKIParams{Family: sagecrypto.FamilyRSA},
	}, nil
}

// ImportDSARaw imports a DSA public key from its domain parameters and y.
func ImportDSARaw(p, q, g, y *big.Int) (*PublicKey, error) {
	if p == nil || q == nil || g == nil || y == nil {
		return nil, sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "dsa parameters required")
	}
	return &PublicKey{
		family: sagecrypto.FamilyDSA,
		params: PKParams{DSA: &DSAParams{P: p, Q: q, G: g, Y: y}},
		usage:  UsageDigitalSignature,
		spki:   sagecrypto.SPKIParams{Family: sagecrypto.FamilyDSA},
	}, nil
}

// ImportECCRaw imports an ECDSA public key on curve from (x, y). y is
// omitted (nil) for EdDSA callers, which must use ImportEdDSARaw instead —
// spec.md §4.D folds both into import_ecc_raw by checking whether y is
// present; this port keeps them as separate entry points since Go's type
// system already distinguishes ed25519.PublicKey from an (x,y) point.
func ImportECCRaw(curve elliptic.Curve, x, y *big.Int) (*PublicKey, error) {
	if curve == nil || x == nil || y == nil {
		return nil, sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "ecdsa curve and point required")
	}
	if !curve.IsOnCurve(x, y) {
		return nil, sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "point is not on curve")
	}
	return &PublicKey{
		family: sagecrypto.FamilyECDSA,
		params: PKParams{ECDSA: &ECDSAParams{Curve: curve, X: x, Y: y}},
		usage:  UsageDigitalSignature | UsageKeyAgreement,
		spki:   sagecrypto.SPKIParams{Family: sagecrypto.FamilyECDSA},
	}, nil
}

// ImportSecp256k1Raw imports a secp256k1 public key from its compressed or
// uncompressed SEC1 encoding.
func ImportSecp256k1Raw(sec1 []byte) (*PublicKey, error) {
	pub, err := decredsecp256k1.ParsePubKey(sec1)
	if err != nil {
		return nil, sagecrypto.WrapError(sagecrypto.CodeInvalidRequest, "parse secp256k1 point", err)
	}
	return &PublicKey{
		family: sagecrypto.FamilyECDSA,
		params: PKParams{ECDSA: &ECDSAParams{Secp1k: pub}},
		usage:  UsageDigitalSignature | UsageKeyAgreement,
		spki:   sagecrypto.SPKIParams{Family: sagecrypto.FamilyECDSA},
	}, nil
}

// ImportEdDSARaw imports an Ed25519 public key from its raw 32-byte form.
func ImportEdDSARaw(raw []byte) (*PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, sagecrypto.NewError(sagecrypto.CodeInvalidRequest, "ed25519 public key must be 32 bytes")
	}
	return &PublicKey{
		family: sagecrypto.FamilyEdDSA,
		params: PKParams{EdDSA: &EdDSAParams{Raw: ed25519.PublicKey(raw)}},
		usage:  UsageDigitalSignature,
		spki:   sagecrypto.SPKIParams{Family: sagecrypto.FamilyEdDSA},
	}, nil
}

// ImportGOSTRaw imports a GOST R 34.10 public key from little-endian x, y.
func ImportGOSTRaw(curve, digest, paramSet string, x, y []byte) (*PublicKey, error) {
	return &PublicKey{
		family: sagecrypto.FamilyGOST,
		params: PKParams{GOST: &GOSTParams{Curve: curve, Digest: digest, ParamSet: paramSet, X: x, Y: y}},
		usage:  UsageDigitalSignature,
		spki:   sagecrypto.SPKIParams{Family: sagecrypto.FamilyGOST},
	}, nil
}

// ImportX509 derives an abstract public key from a parsed certificate.
func ImportX509(cert *x509.Certificate) (*PublicKey, error) {
	return fromStdPublicKey(cert.PublicKey)
}

// ImportX509CRQ derives an abstract public key from a certificate request.
func ImportX509CRQ(csr *x509.CertificateRequest) (*PublicKey, error) {
	return fromStdPublicKey(csr.PublicKey)
}

// PrivateKeyPublic is the minimal contract ImportPrivateKey needs from
// crypto/privkey, accepted as an interface (rather than a direct
// crypto/privkey import) to avoid an import cycle between the two packages.
type PrivateKeyPublic interface {
	StdPublicKey() interface{}
}

// ImportPrivateKey derives the abstract public key half of priv.
func ImportPrivateKey(priv PrivateKeyPublic, usage Usage) (*PublicKey, error) {
	pk, err := fromStdPublicKey(priv.StdPublicKey())
	if err != nil {
		return nil, err
	}
	pk.usage = usage
	return pk, nil
}

func fromStdPublicKey(pub interface{}) (*PublicKey, error) {
	switch p := pub.(type) {
	case *rsa.PublicKey:
		return ImportRSARaw(p.N, p.E)
	case *dsa.PublicKey:
		return ImportDSARaw(p.P, p.Q, p.G, p.Y)
	case *ecdsa.PublicKey:
		return ImportECCRaw(p.Curve, p.X, p.Y)
	case ed25519.PublicKey:
		return ImportEdDSARaw(p)
	case *decredsecp256k1.PublicKey:
		return ImportSecp256k1Raw(p.SerializeCompressed())
	default:
		return nil, sagecrypto.NewError(sagecrypto.CodeUnknownAlgorithm, "unsupported public key type")
	}
}

// toSPKIStdKey converts this PublicKey back into a stdlib public key value
// suitable for x509.MarshalPKIXPublicKey.
func (k *PublicKey) toSPKIStdKey() (interface{}, error) {
	switch k.family {
	case sagecrypto.FamilyRSA:
		return &rsa.PublicKey{N: k.params.RSA.N, E: k.params.RSA.E}, nil
	case sagecrypto.FamilyDSA:
		return &dsa.PublicKey{
			Parameters: dsa.Parameters{P: k.params.DSA.P, Q: k.params.DSA.Q, G: k.params.DSA.G},
			Y:          k.params.DSA.Y,
		}, nil
	case sagecrypto.FamilyECDSA:
		if k.params.ECDSA.Secp1k != nil {
			return k.params.ECDSA.Secp1k.ToECDSA(), nil
		}
		return &ecdsa.PublicKey{Curve: k.params.ECDSA.Curve, X: k.params.ECDSA.X, Y: k.params.ECDSA.Y}, nil
	case sagecrypto.FamilyEdDSA:
		return k.params.EdDSA.Raw, nil
	default:
		return nil, sagecrypto.NewError(sagecrypto.CodeUnimplementedFeature, "no SPKI encoding for "+string(k.family))
	}
}

// Export produces a SubjectPublicKeyInfo in DER or PEM. The PEM header is
// "PUBLIC KEY" per RFC 7468 — the source's literal "BEGIN CERTIFICATE" is
// documented as a latent upstream bug and not reproduced here (DESIGN.md
// Open Question #1).
func (k *PublicKey) Export(format sagecrypto.KeyFormat) ([]byte, error) {
	stdKey, err := k.toSPKIStdKey()
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKIXPublicKey(stdKey)
	if err != nil {
		return nil, sagecrypto.WrapError(sagecrypto.CodeInvalidRequest, "marshal SPKI", err)
	}
	switch format {
	case sagecrypto.KeyFormatPEM:
		return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
	default:
		return der, nil
	}
}

// KeyIDFlags select the digest used by KeyID; zero value selects SHA-1.
type KeyIDFlags uint32

const (
	KeyIDUseSHA256   KeyIDFlags = 1 << iota // 20-byte SHA-1 is the default absent this
	KeyIDUseSHA512
	KeyIDUseBestKnown // currently equivalent to SHA-512
)

// KeyID returns a hash over the canonical SPKI DER encoding: SHA-1 (20B) by
// default, SHA-256 (32B) or SHA-512 (64B) per flags.
func (k *PublicKey) KeyID(flags KeyIDFlags) ([]byte, error) {
	der, err := k.Export(sagecrypto.KeyFormat(""))
	if err != nil {
		return nil, err
	}
	switch {
	case flags&KeyIDUseSHA512 != 0 || flags&KeyIDUseBestKnown != 0:
		sum := sha512.Sum512(der)
		return sum[:], nil
	case flags&KeyIDUseSHA256 != 0:
		sum := sha256.Sum256(der)
		return sum[:], nil
	default:
		sum := sha1.Sum(der)
		return sum[:], nil
	}
}

// GetPreferredHashAlgorithm returns the canonical hash for this key's PK
// family, and whether that hash is mandatory (not merely preferred) — set
// for DSA, GOST, and PSS keys pinned to a restricted hash.
func (k *PublicKey) GetPreferredHashAlgorithm() (alg sagecrypto.HashAlgorithm, mandatory bool) {
	switch k.family {
	case sagecrypto.FamilyDSA:
		switch {
		case k.params.DSA.Q.BitLen() <= 160:
			return gocrypto.SHA1, true
		case k.params.DSA.Q.BitLen() <= 256:
			return gocrypto.SHA256, true
		default:
			return gocrypto.SHA512, true
		}
	case sagecrypto.FamilyECDSA:
		bits := curveBits(k)
		switch {
		case bits <= 160:
			return gocrypto.SHA1, false
		case bits <= 256:
			return gocrypto.SHA256, false
		case bits <= 384:
			return gocrypto.SHA384, false
		default:
			return gocrypto.SHA512, false
		}
	case sagecrypto.FamilyRSA:
		if k.spki.PSSHash != 0 {
			return k.spki.PSSHash, true
		}
		bits := k.params.RSA.N.BitLen()
		switch {
		case bits <= 1024:
			return gocrypto.SHA1, false
		case bits <= 3072:
			return gocrypto.SHA256, false
		default:
			return gocrypto.SHA512, false
		}
	case sagecrypto.FamilyEdDSA:
		return gocrypto.SHA512, false
	case sagecrypto.FamilyGOST:
		return gocrypto.SHA256, true
	default:
		return gocrypto.SHA256, false
	}
}

func curveBits(k *PublicKey) int {
	if k.params.ECDSA.Secp1k != nil {
		return 256
	}
	return k.params.ECDSA.Curve.Params().BitSize
}

// VerifyFlags modifies VerifyData2/VerifyHash2 behavior.
type VerifyFlags uint32

const (
	// AllowBroken permits verification against an algorithm flagged
	// insecure; without it such a verify fails with CodeInsufficientSecurity
	// before the primitive is ever invoked (spec.md §7).
	AllowBroken VerifyFlags = 1 << iota
)

// brokenAlgorithms mirrors spec.md §7's "signatures flagged insecure"
// check. SHA-1-keyed RSA/DSA/ECDSA signatures are the concrete example
// this core carries, matching gnutls/lib/pubkey.c's default rejection of
// SHA-1-based signatures absent GNUTLS_VERIFY_ALLOW_BROKEN.
var brokenAlgorithms = map[sagecrypto.SignatureAlgorithm]bool{
	sagecrypto.SigRSAPKCS1v15SHA1: true,
	sagecrypto.SigECDSASHA1:       true,
	sagecrypto.SigDSASHA1:         true,
}

func familyForSigAlg(alg sagecrypto.SignatureAlgorithm) sagecrypto.Family {
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
		return ""
	}
}

// CompatibleWithSig reports whether this key's PK family may serve the
// signature algorithm alg: the key's family must equal the algorithm's
// family, except that an RSA key may also serve RSA-PSS (spec.md §4.E).
func (k *PublicKey) CompatibleWithSig(alg sagecrypto.SignatureAlgorithm) bool {
	want := familyForSigAlg(alg)
	if want == "" {
		return false
	}
	if k.family == want {
		return true
	}
	return k.family == sagecrypto.FamilyRSA && alg == sagecrypto.SigRSAPSSSHA256
}

// VerifyData2 verifies sig over data under algo, dispatching the primitive
// through prim (the external PK math adapter, spec.md §4.B). It checks
// family compatibility and the broken-algorithm list before ever calling
// into prim, per spec.md §7's ordering guarantee.
func (k *PublicKey) VerifyData2(prim sagecrypto.Primitive, algo sagecrypto.SignatureAlgorithm, flags VerifyFlags, data, sig []byte) error {
	if !k.CompatibleWithSig(algo) {
		return sagecrypto.NewError(sagecrypto.CodeIncompatibleSigWithKey, string(algo))
	}
	if brokenAlgorithms[algo] && flags&AllowBroken == 0 {
		return sagecrypto.NewError(sagecrypto.CodeInsufficientSecurity, string(algo))
	}

	stdKey, err := k.toSPKIStdKey()
	if err != nil {
		return err
	}

	params := k.spki
	params.Family = k.family
	if algo == sagecrypto.SigRSAPSSSHA256 {
		params.PSSHash = gocrypto.SHA256
	}

	if algo == sagecrypto.SigEdDSAEd25519 {
		start := time.Now()
		err := prim.Verify(algo, data, sig, params, stdKey)
		metrics.CryptoOperationDuration.WithLabelValues("verify", string(algo)).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.CryptoErrors.WithLabelValues("verify").Inc()
			return sagecrypto.WrapError(sagecrypto.CodeSigVerifyFailed, "", err)
		}
		metrics.CryptoOperations.WithLabelValues("verify", string(algo)).Inc()
		return nil
	}

	hashAlg, _ := k.GetPreferredHashAlgorithm()
	digest, err := prim.HashFast(hashAlg, data)
	if err != nil {
		return sagecrypto.WrapError(sagecrypto.CodeSigVerifyFailed, "hash data", err)
	}
	return k.VerifyHash2(prim, algo, flags, digest, sig)
}

// VerifyHash2 is VerifyData2 for a caller that has already hashed the
// message.
func (k *PublicKey) VerifyHash2(prim sagecrypto.Primitive, algo sagecrypto.SignatureAlgorithm, flags VerifyFlags, hash, sig []byte) error {
	start := time.Now()
	err := k.verifyHash2(prim, algo, flags, hash, sig)
	metrics.CryptoOperationDuration.WithLabelValues("verify", string(algo)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("verify").Inc()
		return err
	}
	metrics.CryptoOperations.WithLabelValues("verify", string(algo)).Inc()
	return nil
}

func (k *PublicKey) verifyHash2(prim sagecrypto.Primitive, algo sagecrypto.SignatureAlgorithm, flags VerifyFlags, hash, sig []byte) error {
	if !k.CompatibleWithSig(algo) {
		return sagecrypto.NewError(sagecrypto.CodeIncompatibleSigWithKey, string(algo))
	}
	if brokenAlgorithms[algo] && flags&AllowBroken == 0 {
		return sagecrypto.NewError(sagecrypto.CodeInsufficientSecurity, string(algo))
	}
	stdKey, err := k.toSPKIStdKey()
	if err != nil {
		return err
	}
	params := k.spki
	params.Family = k.family
	if algo == sagecrypto.SigRSAPSSSHA256 {
		params.PSSHash = gocrypto.SHA256
	}
	if err := prim.Verify(algo, hash, sig, params, stdKey); err != nil {
		return sagecrypto.WrapError(sagecrypto.CodeSigVerifyFailed, "", err)
	}
	return nil
}
