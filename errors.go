// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import "fmt"

// LexError reports a malformed token stream, such as an unterminated
// string or an invalid hex digit. Content streams resynchronise after it.
type LexError struct {
	Offset int64
	Msg    string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at offset %d: %s", e.Offset, e.Msg)
}

// MalformedObject reports an object that could not be parsed or did not
// have the expected shape. It is contained at the object level.
type MalformedObject struct {
	ID     uint32
	Gen    uint16
	Offset int64
	Msg    string
}

func (e *MalformedObject) Error() string {
	if e.ID == 0 && e.Gen == 0 {
		return fmt.Sprintf("malformed object at offset %d: %s", e.Offset, e.Msg)
	}
	return fmt.Sprintf("malformed object %d %d R (offset %d): %s", e.ID, e.Gen, e.Offset, e.Msg)
}

// UnsupportedFilter is returned for a stream filter this package cannot decode.
type UnsupportedFilter struct {
	Filter string
}

func (e *UnsupportedFilter) Error() string {
	return fmt.Sprintf("unsupported filter %q", e.Filter)
}

// CorruptStream is returned when a supported filter fails on its input.
type CorruptStream struct {
	Filter string
	Err    error
}

func (e *CorruptStream) Error() string {
	return fmt.Sprintf("corrupt %s stream: %v", e.Filter, e.Err)
}

func (e *CorruptStream) Unwrap() error { return e.Err }

// FontResolutionGap reports a character code that no resolver could map
// to Unicode. The code is rendered as an empty string.
type FontResolutionGap struct {
	Font string
	Code string
}

func (e *FontResolutionGap) Error() string {
	return fmt.Sprintf("font %s: no unicode mapping for code % x", e.Font, []byte(e.Code))
}

// UnresolvableDocument means neither the cross-reference data nor the
// recovery scan located any object. It is the only fatal document error.
type UnresolvableDocument struct {
	Reason string
}

func (e *UnresolvableDocument) Error() string {
	return "unresolvable document: " + e.Reason
}

// TypeMismatch is returned by the checked Value accessors.
type TypeMismatch struct {
	Want ValueKind
	Got  ValueKind
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("type mismatch: want %v, got %v", e.Want, e.Got)
}
