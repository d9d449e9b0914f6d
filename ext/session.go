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
	"github.com/google/uuid"

	sagecrypto "github.com/sage-x-project/sage/crypto"
)

// slot holds one extension type's live and resumed data; data is nil
// when the slot is empty.
type slot struct {
	typ     Type
	data    interface{}
	resumed interface{}
	used    bool
}

// Session is the per-connection extension state: its own override
// descriptor table (checked before the global table), a bounded data
// store, and the bookkeeping the wire codec needs (the sent-extension
// list for client/server IllegalExtension / echo checks).
//
// ID is a random uuid.UUID that NewSession assigns, distinct for every
// session, the way the ubirch PKCS#11 reference identifies HSM objects by
// UUID (grounded on
// other_examples/2050d1cc_ubirch-ubirch-protocol-go__ubirch-crypto_pkcs11.go.go).
// No log line or metric in this package includes it.
type Session struct {
	ID    uuid.UUID
	Role  Role
	table []Descriptor
	slots []slot
	sent  map[Type]bool
}

// NewSession returns an empty Session ready for registration, parsing,
// and generation.
func NewSession(role Role) *Session {
	return &Session{
		ID:   uuid.New(),
		Role: role,
		sent: make(map[Type]bool),
	}
}

func (s *Session) findSlot(typ Type) (int, bool) {
	for i, sl := range s.slots {
		if sl.used && sl.typ == typ {
			return i, true
		}
	}
	return -1, false
}

// Set stores data for typ: if a prior live entry exists, its deinit
// (if any) runs on the old value first, then it's overwritten; else the
// first empty slot is used. Capacity is MaxExtTypes; calling Set past
// that with no empty slot free is a programming error, surfaced as
// CodeMemoryError rather than silently dropped.
func Set(session *Session, typ Type, data interface{}) error {
	if idx, ok := session.findSlot(typ); ok {
		if deinit, has := FuncDeinit(session, typ); has && session.slots[idx].data != nil {
			deinit(session.slots[idx].data)
		}
		session.slots[idx].data = data
		return nil
	}
	for i := range session.slots {
		if !session.slots[i].used {
			session.slots[i] = slot{typ: typ, data: data, used: true}
			return nil
		}
	}
	if len(session.slots) >= MaxExtTypes {
		return sagecrypto.NewError(sagecrypto.CodeMemoryError, "ext: session data store full")
	}
	session.slots = append(session.slots, slot{typ: typ, data: data, used: true})
	return nil
}

// Get returns the live data stored for typ, or
// CodeRequestedDataNotAvailable if none is set.
func Get(session *Session, typ Type) (interface{}, error) {
	idx, ok := session.findSlot(typ)
	if !ok || session.slots[idx].data == nil {
		return nil, sagecrypto.NewError(sagecrypto.CodeRequestedDataNotAvailable, "ext: no data set for extension type")
	}
	return session.slots[idx].data, nil
}

// Unset runs deinit on typ's current live data (if any) and clears the
// slot.
func Unset(session *Session, typ Type) {
	idx, ok := session.findSlot(typ)
	if !ok {
		return
	}
	if deinit, has := FuncDeinit(session, typ); has && session.slots[idx].data != nil {
		deinit(session.slots[idx].data)
	}
	session.slots[idx].data = nil
	if session.slots[idx].resumed == nil {
		session.slots[idx].used = false
	}
}

// FreeSessionData iterates every descriptor (session table then global)
// and unsets both the live and resumed entries of each. A slot whose type
// has no descriptor in either table is left as it is.
func FreeSessionData(session *Session) {
	for _, d := range orderedDescriptors(session) {
		Unset(session, d.Type)
		if idx, ok := session.findSlot(d.Type); ok {
			if deinit, has := FuncDeinit(session, d.Type); has && session.slots[idx].resumed != nil {
				deinit(session.slots[idx].resumed)
			}
			session.slots[idx].resumed = nil
			session.slots[idx].used = false
		}
	}
}

// RestoreResumed implements §4.H's resumption handoff: every live
// non-MANDATORY entry is unset, every resumed non-MANDATORY entry moves
// into the live slot and its resumed entry is cleared. MANDATORY entries
// are preserved untouched across the call.
func RestoreResumed(session *Session) {
	for i := range session.slots {
		typ := session.slots[i].typ
		if ParseType(session, typ) == ClassMandatory {
			continue
		}
		if session.slots[i].data != nil {
			Unset(session, typ)
		}
		if session.slots[i].resumed != nil {
			session.slots[i].data = session.slots[i].resumed
			session.slots[i].resumed = nil
			session.slots[i].used = true
		}
	}
}

// SetResumed stores data in typ's resumed slot. An UnpackFunc registered
// from any package calls this to fulfill the resumption contract
// documented on Unpack — the resumed value isn't live until
// RestoreResumed moves it over on the next handshake.
func SetResumed(session *Session, typ Type, data interface{}) {
	if idx, ok := session.findSlot(typ); ok {
		session.slots[idx].resumed = data
		return
	}
	session.slots = append(session.slots, slot{typ: typ, resumed: data, used: true})
}
