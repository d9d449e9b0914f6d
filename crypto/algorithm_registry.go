// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package crypto

import (
	"fmt"
	"sort"
	"sync"
)

// AlgorithmInfo describes one registered key algorithm's capabilities.
// crypto/keys registers one of these per concrete KeyType from its init();
// it and this file's init() are the only callers of RegisterAlgorithm.
type AlgorithmInfo struct {
	KeyType               KeyType
	Name                  string
	Description           string
	RFC9421Algorithm      string
	SupportsRFC9421       bool
	SupportsKeyGeneration bool
	SupportsSignature     bool
	SupportsEncryption    bool
}

var ErrAlgorithmNotSupported = fmt.Errorf("algorithm not supported")

var (
	algRegistryMu sync.RWMutex
	algRegistry   = make(map[KeyType]AlgorithmInfo)
	rfc9421ToKey  = make(map[string]KeyType)
)

// init seeds the registry with the baseline algorithms this module ships
// concrete signers for, so GetAlgorithmInfo works even for a caller that
// only imports "crypto" and never reaches crypto/keys (whose own init()
// re-registers the same entries when it is linked in, a harmless overwrite).
func init() {
	baseline := []AlgorithmInfo{
		{
			KeyType:               KeyTypeEd25519,
			Name:                  "Ed25519",
			Description:           "Edwards-curve Digital Signature Algorithm using Curve25519",
			RFC9421Algorithm:      "ed25519",
			SupportsRFC9421:       true,
			SupportsKeyGeneration: true,
			SupportsSignature:     true,
		},
		{
			KeyType:               KeyTypeSecp256k1,
			Name:                  "Secp256k1",
			Description:           "ECDSA with secp256k1 curve (used by Bitcoin and Ethereum)",
			RFC9421Algorithm:      "es256k",
			SupportsRFC9421:       true,
			SupportsKeyGeneration: true,
			SupportsSignature:     true,
		},
		{
			KeyType:               KeyTypeX25519,
			Name:                  "X25519",
			Description:           "Elliptic Curve Diffie-Hellman (ECDH) using Curve25519 for key exchange",
			SupportsKeyGeneration: true,
			SupportsEncryption:    true,
		},
		{
			KeyType:               KeyTypeRSA,
			Name:                  "RSA-PSS-SHA256",
			Description:           "RSA with PSS padding and SHA-256",
			RFC9421Algorithm:      "rsa-pss-sha256",
			SupportsRFC9421:       true,
			SupportsKeyGeneration: true,
			SupportsSignature:     true,
			SupportsEncryption:    true,
		},
	}
	for _, info := range baseline {
		_ = RegisterAlgorithm(info)
	}
}

// RegisterAlgorithm adds an algorithm to the registry. Re-registering the
// same KeyType overwrites the previous entry, as a later call to one of the
// Set* functions in crypto/wrappers.go overwrites an earlier one.
func RegisterAlgorithm(info AlgorithmInfo) error {
	if info.KeyType == "" {
		return fmt.Errorf("%w: empty key type", ErrAlgorithmNotSupported)
	}

	algRegistryMu.Lock()
	defer algRegistryMu.Unlock()

	algRegistry[info.KeyType] = info
	if info.SupportsRFC9421 && info.RFC9421Algorithm != "" {
		rfc9421ToKey[info.RFC9421Algorithm] = info.KeyType
	}
	return nil
}

// GetAlgorithmInfo looks up a registered algorithm by KeyType.
func GetAlgorithmInfo(keyType KeyType) (AlgorithmInfo, error) {
	algRegistryMu.RLock()
	defer algRegistryMu.RUnlock()

	info, ok := algRegistry[keyType]
	if !ok {
		return AlgorithmInfo{}, fmt.Errorf("%w: %s", ErrAlgorithmNotSupported, keyType)
	}
	return info, nil
}

// ListSupportedAlgorithms returns a defensive copy of every registered
// algorithm, sorted by KeyType for deterministic output.
func ListSupportedAlgorithms() []AlgorithmInfo {
	algRegistryMu.RLock()
	defer algRegistryMu.RUnlock()

	out := make([]AlgorithmInfo, 0, len(algRegistry))
	for _, info := range algRegistry {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KeyType < out[j].KeyType })
	return out
}

// GetRFC9421AlgorithmName returns the RFC 9421 algorithm identifier for a
// KeyType that supports it.
func GetRFC9421AlgorithmName(keyType KeyType) (string, error) {
	info, err := GetAlgorithmInfo(keyType)
	if err != nil {
		return "", err
	}
	if !info.SupportsRFC9421 || info.RFC9421Algorithm == "" {
		return "", fmt.Errorf("%w: %s does not support RFC 9421", ErrAlgorithmNotSupported, keyType)
	}
	return info.RFC9421Algorithm, nil
}

// GetKeyTypeFromRFC9421Algorithm reverses GetRFC9421AlgorithmName.
func GetKeyTypeFromRFC9421Algorithm(alg string) (KeyType, error) {
	algRegistryMu.RLock()
	defer algRegistryMu.RUnlock()

	kt, ok := rfc9421ToKey[alg]
	if !ok {
		return "", fmt.Errorf("%w: rfc9421 algorithm %q", ErrAlgorithmNotSupported, alg)
	}
	return kt, nil
}

// ListRFC9421SupportedAlgorithms returns a defensive copy of every
// RFC 9421 algorithm identifier currently registered, sorted.
func ListRFC9421SupportedAlgorithms() []string {
	algRegistryMu.RLock()
	defer algRegistryMu.RUnlock()

	out := make([]string, 0, len(rfc9421ToKey))
	for alg := range rfc9421ToKey {
		out = append(out, alg)
	}
	sort.Strings(out)
	return out
}

// SupportsRFC9421 reports whether keyType is registered and RFC-9421-capable.
func SupportsRFC9421(keyType KeyType) bool {
	info, err := GetAlgorithmInfo(keyType)
	return err == nil && info.SupportsRFC9421
}

// SupportsKeyGeneration reports whether keyType is registered and can generate keys.
func SupportsKeyGeneration(keyType KeyType) bool {
	info, err := GetAlgorithmInfo(keyType)
	return err == nil && info.SupportsKeyGeneration
}

// SupportsSignature reports whether keyType is registered and supports signing.
func SupportsSignature(keyType KeyType) bool {
	info, err := GetAlgorithmInfo(keyType)
	return err == nil && info.SupportsSignature
}

// SupportsEncryption reports whether keyType is registered and supports encryption.
func SupportsEncryption(keyType KeyType) bool {
	info, err := GetAlgorithmInfo(keyType)
	return err == nil && info.SupportsEncryption
}

// IsAlgorithmSupported reports whether keyType has any registry entry.
func IsAlgorithmSupported(keyType KeyType) bool {
	_, err := GetAlgorithmInfo(keyType)
	return err == nil
}
