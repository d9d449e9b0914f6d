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

// Package ext implements the TLS hello-extension engine (spec.md
// §4.G-J): a global built-in descriptor table plus a per-session
// override table, a bounded per-session data store, a byte-level wire
// codec for parsing/generating a hello's extension block, and a pack/
// unpack format for session resumption.
//
// Grounded on original_source/extensions.c for the table/lookup/codec
// semantics, and on the deleted session/manager.go's session map +
// bounded byKeyID index for the session-store lifecycle shape
// (see DESIGN.md §0).
package ext

import (
	sagecrypto "github.com/sage-x-project/sage/crypto"
)

// MaxExtTypes bounds both the global built-in table and each session's
// override/data-store tables, resolving spec.md Open Question #2 with a
// single constant used identically everywhere (see DESIGN.md §3).
const MaxExtTypes = 32

// Type identifies a hello extension, matching the TLS extension_type
// wire field (a 16-bit id).
type Type uint16

// knownNames maps the IANA TLS ExtensionType values this module has a
// built-in descriptor or tlsfeatures entry for to their registry name.
// Grounded on original_source/extensions.c's fixed id-to-name table; not
// every IANA-assigned id is listed, only the ones this tree's codec and
// RFC 7633 feature check actually reason about.
var knownNames = map[Type]string{
	0:  "server_name",
	5:  "status_request",
	13: "signature_algorithms",
}

// Name returns the registry name for typeID if this module recognizes it,
// the same lookup Descriptor-bearing code paths use internally to label a
// type for logs and metrics (see codec.go's typeLabel). ok is false for
// an id with no known name, not for an id with no registered Descriptor —
// an extension can be named without ever being handled.
func Name(typeID uint16) (string, bool) {
	name, ok := knownNames[Type(typeID)]
	return name, ok
}

// ParseClass restricts which handshake phase an extension's callbacks
// may run in.
type ParseClass int

const (
	ClassNone ParseClass = iota
	ClassClientHello
	ClassTLSExt
	ClassMandatory
	ClassAny
)

// Role distinguishes the client and server roles for the wire codec's
// sent-list bookkeeping (§4.I steps c/d).
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// RecvFunc parses an extension's wire payload into session state.
// SendFunc appends a payload to buf and returns its length (0 suppresses
// the extension entirely). PackFunc/UnpackFunc serialize/restore
// resumoption state; UnpackFunc must report how many bytes of data it
// consumed. DeinitFunc releases whatever data Set stored for this type.
type (
	RecvFunc   func(session *Session, payload []byte) error
	SendFunc   func(session *Session, buf *[]byte) (int, error)
	PackFunc   func(session *Session) ([]byte, error)
	UnpackFunc func(session *Session, data []byte) (consumed int, err error)
	DeinitFunc func(data interface{})
)

// Descriptor is one extension's full callback set, registered either
// globally (built-in) or per-session.
type Descriptor struct {
	Type       Type
	ParseClass ParseClass
	Recv       RecvFunc
	Send       SendFunc
	Pack       PackFunc
	Unpack     UnpackFunc
	Deinit     DeinitFunc
}

// matchesPhase reports whether d's parse-class applies to phase: ANY
// always matches, otherwise the class must equal phase exactly.
func (d Descriptor) matchesPhase(phase ParseClass) bool {
	return d.ParseClass == ClassAny || d.ParseClass == phase
}

// RegisterFlags controls session_register's override behavior.
type RegisterFlags uint32

const (
	FlagOverrideInternal RegisterFlags = 1 << iota
)

// globalTable is the fixed-order built-in descriptor table, terminated
// conceptually at MaxExtTypes slots (Go's slice already tracks length,
// the bound is enforced explicitly in Register to mirror the original's
// fixed-array-plus-null-terminator capacity check).
var globalTable []Descriptor

// Register appends descr to the global table. Returns
// CodeAlreadyRegistered on an id clash, CodeMemoryError if the table is
// full.
func Register(descr Descriptor) error {
	if len(globalTable) >= MaxExtTypes {
		return sagecrypto.NewError(sagecrypto.CodeMemoryError, "ext: global extension table full")
	}
	for _, d := range globalTable {
		if d.Type == descr.Type {
			return sagecrypto.NewError(sagecrypto.CodeAlreadyRegistered, "ext: extension type already registered")
		}
	}
	globalTable = append(globalTable, descr)
	return nil
}

// SessionRegister appends descr to session's own table. Without
// FlagOverrideInternal, registering a type id that clashes with the
// global table fails with CodeAlreadyRegistered; with the flag set, the
// session entry masks the built-in (session table is always checked
// first by lookup).
func SessionRegister(session *Session, descr Descriptor, flags RegisterFlags) error {
	if len(session.table) >= MaxExtTypes {
		return sagecrypto.NewError(sagecrypto.CodeMemoryError, "ext: session extension table full")
	}
	for _, d := range session.table {
		if d.Type == descr.Type {
			return sagecrypto.NewError(sagecrypto.CodeAlreadyRegistered, "ext: extension type already registered in session")
		}
	}
	if flags&FlagOverrideInternal == 0 {
		for _, d := range globalTable {
			if d.Type == descr.Type {
				return sagecrypto.NewError(sagecrypto.CodeAlreadyRegistered, "ext: extension type clashes with built-in")
			}
		}
	}
	session.table = append(session.table, descr)
	return nil
}

// lookup returns the descriptor for typ, checking the session table
// first so a session can override a built-in (§4.G).
func lookup(session *Session, typ Type) (Descriptor, bool) {
	for _, d := range session.table {
		if d.Type == typ {
			return d, true
		}
	}
	for _, d := range globalTable {
		if d.Type == typ {
			return d, true
		}
	}
	return Descriptor{}, false
}

// orderedDescriptors walks the session table then the global table,
// skipping a global entry whose type id a session entry already
// overrides — the order FreeSessionData, the wire codec's gen path, and
// resumption Pack all use. Unpack follows the record order of the blob.
func orderedDescriptors(session *Session) []Descriptor {
	seen := make(map[Type]bool, len(session.table)+len(globalTable))
	out := make([]Descriptor, 0, len(session.table)+len(globalTable))
	for _, d := range session.table {
		if !seen[d.Type] {
			out = append(out, d)
			seen[d.Type] = true
		}
	}
	for _, d := range globalTable {
		if !seen[d.Type] {
			out = append(out, d)
			seen[d.Type] = true
		}
	}
	return out
}

// FuncRecv/FuncSend return the descriptor's corresponding callback iff
// its parse-class is ANY or equals phase, and the callback itself is
// non-nil. FuncPack/FuncUnpack/FuncDeinit take no phase: they return the
// callback whenever typ is registered with a non-nil one, whatever its
// parse-class.
func FuncRecv(session *Session, typ Type, phase ParseClass) (RecvFunc, bool) {
	d, ok := lookup(session, typ)
	if !ok || d.Recv == nil || !d.matchesPhase(phase) {
		return nil, false
	}
	return d.Recv, true
}

func FuncSend(session *Session, typ Type, phase ParseClass) (SendFunc, bool) {
	d, ok := lookup(session, typ)
	if !ok || d.Send == nil || !d.matchesPhase(phase) {
		return nil, false
	}
	return d.Send, true
}

func FuncPack(session *Session, typ Type) (PackFunc, bool) {
	d, ok := lookup(session, typ)
	if !ok || d.Pack == nil {
		return nil, false
	}
	return d.Pack, true
}

func FuncUnpack(session *Session, typ Type) (UnpackFunc, bool) {
	d, ok := lookup(session, typ)
	if !ok || d.Unpack == nil {
		return nil, false
	}
	return d.Unpack, true
}

func FuncDeinit(session *Session, typ Type) (DeinitFunc, bool) {
	d, ok := lookup(session, typ)
	if !ok || d.Deinit == nil {
		return nil, false
	}
	return d.Deinit, true
}

// ParseType reports an extension's parse-class, or ClassNone if typ is
// registered nowhere.
func ParseType(session *Session, typ Type) ParseClass {
	d, ok := lookup(session, typ)
	if !ok {
		return ClassNone
	}
	return d.ParseClass
}

// resetGlobalTableForTest clears the global table; used only by tests
// so one test's Register calls don't leak into another's.
func resetGlobalTableForTest() {
	globalTable = nil
}
