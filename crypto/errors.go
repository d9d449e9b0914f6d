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

import "fmt"

// Code is a typed error category shared by every layer of the abstract key
// and extension core, the same way did.DIDError carried a code alongside a
// wrapped cause in the teacher's (now-deleted) did package.
type Code string

const (
	CodeInvalidRequest             Code = "invalid_request"
	CodeMemoryError                Code = "memory_error"
	CodeShortMemoryBuffer          Code = "short_memory_buffer"
	CodeRequestedDataNotAvailable  Code = "requested_data_not_available"
	CodeAlreadyRegistered          Code = "already_registered"
	CodeLockingError               Code = "locking_error"
	CodeUnimplementedFeature       Code = "unimplemented_feature"
	CodeUnknownAlgorithm           Code = "unknown_algorithm"
	CodeConstraintError            Code = "constraint_error"
	CodeIncompatibleSigWithKey     Code = "incompatible_sig_with_key"
	CodeSigVerifyFailed            Code = "sig_verify_failed"
	CodeSignFailed                 Code = "sign_failed"
	CodeDecryptionFailed           Code = "decryption_failed"
	CodeUnexpectedExtensionsLength Code = "unexpected_extensions_length"
	CodeIllegalExtension           Code = "illegal_extension"
	CodeHandshakeTooLarge          Code = "handshake_too_large"
	CodeParsingError               Code = "parsing_error"
	CodeInsufficientSecurity       Code = "insufficient_security"
)

// Error is the typed error carrier returned by every operation in this
// module. Code classifies the failure; Err, when present, is the wrapped
// cause and is reachable through errors.Unwrap/errors.Is/errors.As.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message != "" {
			return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &Error{Code: CodeX}) match on Code alone, the way
// callers are expected to branch on error category without caring about the
// wrapped message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError builds an *Error with no wrapped cause.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError builds an *Error wrapping cause.
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Sentinel errors for errors.Is comparisons against a bare category, mirroring
// crypto/types.go's ErrKeyNotFound-style package-level sentinels.
var (
	ErrInvalidRequest            = &Error{Code: CodeInvalidRequest}
	ErrMemoryError               = &Error{Code: CodeMemoryError}
	ErrShortMemoryBuffer         = &Error{Code: CodeShortMemoryBuffer}
	ErrRequestedDataNotAvailable = &Error{Code: CodeRequestedDataNotAvailable}
	ErrAlreadyRegistered         = &Error{Code: CodeAlreadyRegistered}
	ErrLockingError              = &Error{Code: CodeLockingError}
	ErrUnimplementedFeature      = &Error{Code: CodeUnimplementedFeature}
	ErrUnknownAlgorithm          = &Error{Code: CodeUnknownAlgorithm}
	ErrConstraintError           = &Error{Code: CodeConstraintError}
	ErrIncompatibleSigWithKey    = &Error{Code: CodeIncompatibleSigWithKey}
	ErrSigVerifyFailed           = &Error{Code: CodeSigVerifyFailed}
	ErrSignFailed                = &Error{Code: CodeSignFailed}
	ErrDecryptionFailed          = &Error{Code: CodeDecryptionFailed}
	ErrUnexpectedExtensionsLen   = &Error{Code: CodeUnexpectedExtensionsLength}
	ErrIllegalExtension          = &Error{Code: CodeIllegalExtension}
	ErrHandshakeTooLarge         = &Error{Code: CodeHandshakeTooLarge}
	ErrParsingError              = &Error{Code: CodeParsingError}
	ErrInsufficientSecurity      = &Error{Code: CodeInsufficientSecurity}
)
