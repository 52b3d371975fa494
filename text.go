// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"math"
	"unicode"
	"unicode/utf8"

	xunicode "golang.org/x/text/encoding/unicode"
)

const noRune = unicode.ReplacementChar

// pdfDocEncoding maps PDFDocEncoding bytes to runes. Unused bytes hold
// noRune.
var pdfDocEncoding [256]rune

var pdfDocHigh = [...]rune{
	0x2022, 0x2020, 0x2021, 0x2026, 0x2014, 0x2013, 0x0192, 0x2044,
	0x2039, 0x203a, 0x2212, 0x2030, 0x201e, 0x201c, 0x201d, 0x2018,
	0x2019, 0x201a, 0x2122, 0xfb01, 0xfb02, 0x0141, 0x0152, 0x0160,
	0x0178, 0x017d, 0x0131, 0x0142, 0x0153, 0x0161, 0x017e, noRune,
	0x20ac,
}

func init() {
	for i := range pdfDocEncoding {
		pdfDocEncoding[i] = noRune
	}
	pdfDocEncoding['\t'] = '\t'
	pdfDocEncoding['\n'] = '\n'
	pdfDocEncoding['\r'] = '\r'
	copy(pdfDocEncoding[0x18:], []rune{0x02d8, 0x02c7, 0x02c6, 0x02d9, 0x02dd, 0x02db, 0x02da, 0x02dc})
	for b := 0x20; b < 0x7f; b++ {
		pdfDocEncoding[b] = rune(b)
	}
	copy(pdfDocEncoding[0x80:], pdfDocHigh[:])
	for b := 0xa1; b <= 0xff; b++ {
		pdfDocEncoding[b] = rune(b)
	}
	pdfDocEncoding[0xad] = noRune
}

func isPDFDocEncoded(s string) bool {
	if isUTF16(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if pdfDocEncoding[s[i]] == noRune {
			return false
		}
	}
	return true
}

func pdfDocDecode(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 || pdfDocEncoding[s[i]] != rune(s[i]) {
			goto Decode
		}
	}
	return s

Decode:
	r := make([]rune, len(s))
	for i := 0; i < len(s); i++ {
		r[i] = pdfDocEncoding[s[i]]
	}
	return string(r)
}

// isUTF16 reports whether s is a UTF-16BE text string with a byte order mark.
func isUTF16(s string) bool {
	return len(s) >= 2 && s[0] == 0xfe && s[1] == 0xff && len(s)%2 == 0
}

var utf16BE = xunicode.UTF16(xunicode.BigEndian, xunicode.IgnoreBOM)

// utf16Decode converts big-endian UTF-16 without a byte order mark to
// UTF-8. Unpaired surrogates become U+FFFD.
func utf16Decode(s string) string {
	out, err := utf16BE.NewDecoder().String(s)
	if err != nil {
		return ""
	}
	return out
}

// DecodeUTF8OrPreserve returns the runes of s when s is valid UTF-8, and
// otherwise one rune per byte.
func DecodeUTF8OrPreserve(s string) []rune {
	if utf8.ValidString(s) {
		return []rune(s)
	}
	r := make([]rune, len(s))
	for i := 0; i < len(s); i++ {
		r[i] = rune(s[i])
	}
	return r
}

// IsSameSentence reports whether current continues the line of text ended
// by last: same font, nearly the same size, and a baseline within one font
// size.
func IsSameSentence(last, current Text) bool {
	if last.S == "" {
		return false
	}
	if last.Font != current.Font {
		return false
	}
	if math.Abs(last.FontSize-current.FontSize) > 0.1 {
		return false
	}
	return math.Abs(last.Y-current.Y) <= math.Max(last.FontSize, 1)
}
