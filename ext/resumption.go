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

package ext

import (
	"encoding/binary"

	sagecrypto "github.com/sage-x-project/sage/crypto"
	"github.com/sage-x-project/sage/internal/metrics"
)

// Pack implements §4.J's resumption pack: a u32 record count, followed
// per extension (in orderedDescriptors order) that currently has live
// data and a Pack callback by a u32 type, u32 size, then the packed
// payload itself.
func Pack(session *Session) ([]byte, error) {
	var records [][]byte
	for _, d := range orderedDescriptors(session) {
		if d.Pack == nil {
			continue
		}
		if _, err := Get(session, d.Type); err != nil {
			continue
		}
		payload, err := d.Pack(session)
		if err != nil {
			return nil, err
		}

		rec := make([]byte, 8, 8+len(payload))
		binary.BigEndian.PutUint32(rec[0:4], uint32(d.Type))
		binary.BigEndian.PutUint32(rec[4:8], uint32(len(payload)))
		rec = append(rec, payload...)
		records = append(records, rec)
	}

	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out[0:4], uint32(len(records)))
	for _, rec := range records {
		out = append(out, rec...)
	}

	metrics.ExtResumptionPackBytes.Observe(float64(len(out)))
	return out, nil
}

// Unpack implements §4.J's resumption unpack: reads the record count,
// then per record reads type+size, invokes the matching descriptor's
// Unpack. Unpack callbacks are responsible for reconstructing their own
// state and storing it into the type's resumed slot via SetResumed;
// this function only frames the wire format and verifies that a
// callback consumed exactly the bytes it declared. A type with no
// registered Unpack, or a byte-consumption mismatch, fails with
// CodeParsingError.
func Unpack(session *Session, data []byte) error {
	if len(data) < 4 {
		return sagecrypto.NewError(sagecrypto.CodeParsingError, "ext: resumption blob missing record count")
	}
	count := binary.BigEndian.Uint32(data[:4])
	rest := data[4:]

	for i := uint32(0); i < count; i++ {
		if len(rest) < 8 {
			return sagecrypto.NewError(sagecrypto.CodeParsingError, "ext: truncated resumption record header")
		}
		typ := Type(binary.BigEndian.Uint32(rest[0:4]))
		size := binary.BigEndian.Uint32(rest[4:8])
		rest = rest[8:]
		if uint64(size) > uint64(len(rest)) {
			return sagecrypto.NewError(sagecrypto.CodeParsingError, "ext: resumption record size overruns input")
		}
		payload := rest[:size]
		rest = rest[size:]

		unpack, ok := FuncUnpack(session, typ)
		if !ok {
			return sagecrypto.NewError(sagecrypto.CodeParsingError, "ext: no Unpack registered for resumed extension type")
		}
		consumed, err := unpack(session, payload)
		if err != nil {
			return err
		}
		if consumed != len(payload) {
			return sagecrypto.NewError(sagecrypto.CodeParsingError, "ext: resumption record did not consume its declared size")
		}
	}
	return nil
}
