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

package formats

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	dcrsecp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	sagecrypto "github.com/sage-x-project/sage/crypto"
	"github.com/sage-x-project/sage/crypto/keys"
)

// pemExporter implements KeyExporter for PEM format, mirroring jwkExporter's
// switch-on-KeyType shape but emitting PKIX/PKCS8/SEC1 DER wrapped in PEM.
type pemExporter struct{}

// NewPEMExporter creates a new PEM exporter.
func NewPEMExporter() sagecrypto.KeyExporter {
	return &pemExporter{}
}

func (e *pemExporter) Export(keyPair sagecrypto.KeyPair, format sagecrypto.KeyFormat) ([]byte, error) {
	if format != sagecrypto.KeyFormatPEM {
		return nil, sagecrypto.ErrInvalidKeyFormat
	}

	switch keyPair.Type() {
	case sagecrypto.KeyTypeEd25519, sagecrypto.KeyTypeRSA:
		der, err := x509.MarshalPKCS8PrivateKey(keyPair.PrivateKey())
		if err != nil {
			return nil, fmt.Errorf("marshal pkcs8 private key: %w", err)
		}
		return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil

	case sagecrypto.KeyTypeSecp256k1:
		priv, ok := keyPair.PrivateKey().(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("invalid secp256k1 private key type")
		}
		der, err := x509.MarshalECPrivateKey(priv)
		if err != nil {
			return nil, fmt.Errorf("marshal ec private key: %w", err)
		}
		return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil

	default:
		return nil, sagecrypto.ErrInvalidKeyType
	}
}

func (e *pemExporter) ExportPublic(keyPair sagecrypto.KeyPair, format sagecrypto.KeyFormat) ([]byte, error) {
	if format != sagecrypto.KeyFormatPEM {
		return nil, sagecrypto.ErrInvalidKeyFormat
	}

	switch keyPair.Type() {
	case sagecrypto.KeyTypeEd25519, sagecrypto.KeyTypeRSA, sagecrypto.KeyTypeSecp256k1:
		der, err := x509.MarshalPKIXPublicKey(keyPair.PublicKey())
		if err != nil {
			return nil, fmt.Errorf("marshal pkix public key: %w", err)
		}
		return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil

	default:
		return nil, sagecrypto.ErrInvalidKeyType
	}
}

// pemImporter implements KeyImporter for PEM format.
type pemImporter struct{}

// NewPEMImporter creates a new PEM importer.
func NewPEMImporter() sagecrypto.KeyImporter {
	return &pemImporter{}
}

func (i *pemImporter) Import(data []byte, format sagecrypto.KeyFormat) (sagecrypto.KeyPair, error) {
	if format != sagecrypto.KeyFormatPEM {
		return nil, sagecrypto.ErrInvalidKeyFormat
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs8 private key: %w", err)
		}
		switch k := key.(type) {
		case ed25519.PrivateKey:
			return keys.NewEd25519KeyPair(k, "")
		case *rsa.PrivateKey:
			return keys.NewRSAKeyPair(k, "")
		default:
			return nil, fmt.Errorf("unsupported pkcs8 key type %T", key)
		}

	case "EC PRIVATE KEY":
		priv, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse ec private key: %w", err)
		}
		secpPriv := dcrsecp256k1.PrivKeyFromBytes(priv.D.Bytes())
		return keys.NewSecp256k1KeyPair(secpPriv, "")

	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

func (i *pemImporter) ImportPublic(data []byte, format sagecrypto.KeyFormat) (crypto.PublicKey, error) {
	if format != sagecrypto.KeyFormatPEM {
		return nil, sagecrypto.ErrInvalidKeyFormat
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse pkix public key: %w", err)
	}
	return pub, nil
}
