// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	"seehuhn.de/go/postscript/psenc"
	"seehuhn.de/go/postscript/type1/names"
)

// An encodingTable holds the text for each single-byte code of a simple
// font. An empty entry means the code has no text.
type encodingTable [256]string

var (
	standardTable encodingTable
	symbolTable   encodingTable
	dingbatsTable encodingTable
	winAnsiTable  encodingTable
	macRomanTable encodingTable
	pdfDocTable   encodingTable
)

// Glyph names of the Symbol font's built-in encoding for 0x20-0x7e and
// 0xa0-0xfe. A dash marks an unused code.
const symbolLow = `space exclam universal numbersign existential percent ampersand suchthat
parenleft parenright asteriskmath plus comma minus period slash zero one two three four
five six seven eight nine colon semicolon less equal greater question congruent Alpha
Beta Chi Delta Epsilon Phi Gamma Eta Iota theta1 Kappa Lambda Mu Nu Omicron Pi Theta Rho
Sigma Tau Upsilon sigma1 Omega Xi Psi Zeta bracketleft therefore bracketright
perpendicular underscore radicalex alpha beta chi delta epsilon phi gamma eta iota phi1
kappa lambda mu nu omicron pi theta rho sigma tau upsilon omega1 omega xi psi zeta
braceleft bar braceright similar`

const symbolHigh = `Euro Upsilon1 minute lessequal fraction infinity florin club diamond heart
spade arrowboth arrowleft arrowup arrowright arrowdown degree plusminus second
greaterequal multiply proportional partialdiff bullet divide notequal equivalence
approxequal ellipsis arrowvertex arrowhorizex carriagereturn aleph Ifraktur Rfraktur
weierstrass circlemultiply circleplus emptyset intersection union propersuperset
reflexsuperset notsubset propersubset reflexsubset element notelement angle gradient
registerserif copyrightserif trademarkserif product radical dotmath logicalnot logicaland
logicalor arrowdblboth arrowdblleft arrowdblup arrowdblright arrowdbldown lozenge
angleleft registersans copyrightsans trademarksans summation parenlefttp parenleftex
parenleftbt bracketlefttp bracketleftex bracketleftbt bracelefttp braceleftmid
braceleftbt braceex - angleright integral integraltp integralex integralbt parenrighttp
parenrightex parenrightbt bracketrighttp bracketrightex bracketrightbt bracerighttp
bracerightmid bracerightbt`

// ZapfDingbats codes whose glyphs live outside the Unicode Dingbats block.
var dingbatsOutside = map[byte]rune{
	0x25: 0x260e, 0x2a: 0x261b, 0x2b: 0x261e, 0x48: 0x2605, 0x6c: 0x25cf,
	0x6e: 0x25a0, 0x73: 0x25b2, 0x74: 0x25bc, 0x75: 0x25c6, 0x77: 0x25d7,
}

func init() {
	for code, glyph := range psenc.StandardEncoding {
		standardTable[code] = glyphText(glyph, false)
	}

	for i, glyph := range strings.Fields(symbolLow) {
		symbolTable[0x20+i] = glyphText(glyph, false)
	}
	for i, glyph := range strings.Fields(symbolHigh) {
		if glyph != "-" {
			symbolTable[0xa0+i] = glyphText(glyph, false)
		}
	}

	dingbatsTable[0x20] = " "
	for code := 0x21; code <= 0xfe; code++ {
		if code > 0x7e && code < 0xa1 {
			continue
		}
		if r, ok := dingbatsOutside[byte(code)]; ok {
			dingbatsTable[code] = string(r)
			continue
		}
		if code <= 0x7e {
			dingbatsTable[code] = string(rune(0x2700 + code - 0x20))
		} else {
			dingbatsTable[code] = string(rune(0x2761 + code - 0xa1))
		}
	}

	fillCharmap(&winAnsiTable, charmap.Windows1252)
	fillCharmap(&macRomanTable, charmap.Macintosh)
	// PDF's WinAnsi shows the unused codes of the upper half as bullets.
	for _, code := range []byte{0x7f, 0x81, 0x8d, 0x8f, 0x90, 0x9d} {
		winAnsiTable[code] = "•"
	}
	winAnsiTable[0xa0] = " "
	winAnsiTable[0xad] = "-"

	for code, r := range pdfDocEncoding {
		if r != noRune {
			pdfDocTable[code] = string(r)
		}
	}
}

func fillCharmap(t *encodingTable, cm *charmap.Charmap) {
	for code := 0; code < 256; code++ {
		r := cm.DecodeByte(byte(code))
		switch {
		case r == unicode.ReplacementChar:
		case r < 0x20 && r != '\t' && r != '\n' && r != '\r':
		default:
			t[code] = string(r)
		}
	}
}

// baseEncoding returns the table for a named PDF base encoding.
func baseEncoding(name string) (*encodingTable, bool) {
	switch name {
	case "StandardEncoding":
		return &standardTable, true
	case "WinAnsiEncoding":
		return &winAnsiTable, true
	case "MacRomanEncoding":
		return &macRomanTable, true
	case "PDFDocEncoding":
		return &pdfDocTable, true
	}
	return nil, false
}

// glyphText maps a glyph name to its text using the Adobe Glyph List and
// the uniXXXX and uXXXX conventions. Unknown names and .notdef map to "".
func glyphText(glyph string, dingbats bool) string {
	if glyph == "" || glyph == ".notdef" {
		return ""
	}
	fontName := ""
	if dingbats {
		fontName = "ZapfDingbats"
	}
	text := names.ToUnicode(glyph, fontName)
	if strings.ContainsRune(text, unicode.ReplacementChar) {
		return ""
	}
	return text
}
