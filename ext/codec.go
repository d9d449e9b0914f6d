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
	"time"

	sagecrypto "github.com/sage-x-project/sage/crypto"
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/internal/metrics"
)

// SendSuppress, returned by a SendFunc, drops the extension entirely
// from the generated block. SendZeroLength emits the extension with a
// present-but-empty payload — the two outcomes spec.md §4.I
// distinguishes as "INT_RET_0" (zero-length) vs plain "0" (suppress).
const (
	SendSuppress   = 0
	SendZeroLength = -1
)

// ParseExtensions implements parse_extensions: reads a 16-bit total
// length, then walks (type, length, payload) records until the total is
// consumed. Unknown types are logged and skipped, not an error; a client
// rejects any type not present in its own sent list (IllegalExtension);
// a server instead records every type it receives into its sent list so
// GenExtensions can later decide what to echo back.
func ParseExtensions(session *Session, phase ParseClass, data []byte) error {
	if len(data) < 2 {
		return sagecrypto.NewError(sagecrypto.CodeUnexpectedExtensionsLength, "ext: missing extensions length header")
	}
	total := int(binary.BigEndian.Uint16(data[:2]))
	rest := data[2:]
	if total > len(rest) {
		return sagecrypto.NewError(sagecrypto.CodeUnexpectedExtensionsLength, "ext: extensions length overruns input")
	}
	rest = rest[:total]

	for len(rest) >= 2 {
		if len(rest) < 4 {
			return sagecrypto.NewError(sagecrypto.CodeUnexpectedExtensionsLength, "ext: truncated extension header")
		}
		typ := Type(binary.BigEndian.Uint16(rest[:2]))
		length := int(binary.BigEndian.Uint16(rest[2:4]))
		rest = rest[4:]
		if length > len(rest) {
			return sagecrypto.NewError(sagecrypto.CodeUnexpectedExtensionsLength, "ext: extension payload overruns total length")
		}
		payload := rest[:length]
		rest = rest[length:]

		recv, ok := FuncRecv(session, typ, phase)
		if !ok {
			logger.Debug("ext: skipping unknown extension", logger.Int("type", int(typ)))
			metrics.ExtHandshakeRecv.WithLabelValues("unknown").Inc()
			continue
		}

		if session.Role == RoleClient {
			if !session.sent[typ] {
				metrics.ExtIllegalExtensions.WithLabelValues("unsent_echo").Inc()
				return sagecrypto.NewError(sagecrypto.CodeIllegalExtension, "ext: server sent an extension the client never offered")
			}
		} else {
			session.sent[typ] = true
		}

		metrics.ExtHandshakeRecv.WithLabelValues(typeLabel(typ)).Inc()
		if err := recv(session, payload); err != nil {
			return err
		}
	}
	return nil
}

// GenExtensions implements gen_extensions: walks session-then-global
// descriptors, calls each matching Send, and assembles the
// length-prefixed extensions block. If nothing is emitted the 2-byte
// placeholder is erased entirely, matching the "if zero, erase the
// placeholder" rule.
func GenExtensions(session *Session, phase ParseClass) ([]byte, error) {
	start := time.Now()
	defer func() { metrics.ExtGenDuration.Observe(time.Since(start).Seconds()) }()

	var body []byte
	for _, d := range orderedDescriptors(session) {
		if d.Send == nil || !d.matchesPhase(phase) {
			continue
		}
		if session.Role == RoleServer && !session.sent[d.Type] {
			continue
		}

		var payload []byte
		n, err := d.Send(session, &payload)
		if err != nil {
			return nil, err
		}
		switch {
		case n == SendSuppress:
			continue
		case n == SendZeroLength:
			payload = nil
		}

		header := make([]byte, 4)
		binary.BigEndian.PutUint16(header[0:2], uint16(d.Type))
		binary.BigEndian.PutUint16(header[2:4], uint16(len(payload)))
		body = append(body, header...)
		body = append(body, payload...)

		if session.Role == RoleClient {
			session.sent[d.Type] = true
		}
	}

	if len(body) == 0 {
		return nil, nil
	}
	if len(body) > 0xFFFF {
		return nil, sagecrypto.NewError(sagecrypto.CodeHandshakeTooLarge, "ext: generated extensions block exceeds 64KiB")
	}

	out := make([]byte, 2, 2+len(body))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(body)))
	out = append(out, body...)
	return out, nil
}

func typeLabel(typ Type) string {
	if name, ok := Name(uint16(typ)); ok {
		return name
	}
	return "other"
}
