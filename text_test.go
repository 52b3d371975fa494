// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPDFDocEncoded(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"ascii", "Hello!", true},
		{"high bytes", "\x80\x9e\xa0", true},
		{"breve accent", "\x18", true},
		{"utf-16 with bom", "\xfe\xff\x00\x41", false},
		{"control byte", "\x01", false},
		{"soft hyphen slot", "\xad", false},
		{"unused high byte", "\x9f", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isPDFDocEncoded(tt.in))
		})
	}
}

func TestPdfDocDecode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello!", "Hello!"},
		{"\x80", "•"},
		{"\x84 \x85", "— –"},
		{"\xa0\xe9", "€é"},
		{"line\tone\n", "line\tone\n"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pdfDocDecode(tt.in), "%q", tt.in)
	}
}

func TestIsUTF16(t *testing.T) {
	assert.True(t, isUTF16("\xfe\xff\x00\x41"))
	assert.True(t, isUTF16("\xfe\xff"), "an empty text string")
	assert.False(t, isUTF16("Hello"))
	assert.False(t, isUTF16("\xfe\xff\x00")) // odd length
	assert.False(t, isUTF16("\xff\xfe\x41\x00"), "little endian is not a PDF text string")
}

func TestUtf16Decode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"basic plane", "\x00\x41\x00\x42", "AB"},
		{"surrogate pair", "\xd8\x3d\xde\x00", "😀"},
		{"pair between letters", "\x00\x61\xd8\x34\xdd\x1e\x00\x62", "a𝄞b"},
		{"unpaired high surrogate", "\xd8\x3d\x00\x41", "�A"},
		{"unpaired low surrogate", "\xde\x00", "�"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, utf16Decode(tt.in))
		})
	}
}

func TestDecodeUTF8OrPreserve(t *testing.T) {
	valid := "Hello"
	runes := DecodeUTF8OrPreserve(valid)
	assert.Equal(t, []rune{'H', 'e', 'l', 'l', 'o'}, runes)

	invalid := string([]byte{0xff, 0xfe}) // invalid UTF8 bytes
	runes2 := DecodeUTF8OrPreserve(invalid)
	assert.Equal(t, []rune{0xff, 0xfe}, runes2) // preserved as-is
}

// ToUnicode values arrive as UTF-16BE and are decoded before they are
// handed out as text.
func TestDecodeUTF8OrPreserve_ToUnicodeValues(t *testing.T) {
	tests := []struct {
		name    string
		utf16be string
		want    []rune
	}{
		{"ligature", "\x00\x66\x00\x69", []rune{'f', 'i'}},
		{"supplementary plane", "\xd8\x3d\xde\x00", []rune{0x1F600}},
		{"dotless i", "\x01\x31", []rune{0x131}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeUTF8OrPreserve(utf16Decode(tt.utf16be)))
		})
	}

	m := parseCMap(context.Background(), []byte("2 beginbfchar <01> <D83DDE00> <02> <00660069> endbfchar"), "Test-ToUnicode")
	text, ok := m.lookupText("\x01")
	assert.True(t, ok)
	assert.Equal(t, []rune{0x1F600}, DecodeUTF8OrPreserve(text))
	text, ok = m.lookupText("\x02")
	assert.True(t, ok)
	assert.Equal(t, []rune{'f', 'i'}, DecodeUTF8OrPreserve(text))
}

func TestIsSameSentence(t *testing.T) {
	last := Text{Font: "Arial", FontSize: 12, Y: 100, S: "Hello"}
	tests := []struct {
		name    string
		last    Text
		current Text
		want    bool
	}{
		{"same line", last, Text{Font: "Arial", FontSize: 12.05, Y: 102, S: "world"}, true},
		{"different font", last, Text{Font: "Times", FontSize: 12, Y: 100, S: "Hello"}, false},
		{"different size", last, Text{Font: "Arial", FontSize: 14, Y: 100, S: "x"}, false},
		{"next line", last, Text{Font: "Arial", FontSize: 12, Y: 86, S: "x"}, false},
		{"empty last segment", Text{Font: "Arial", FontSize: 12, Y: 100}, Text{Font: "Arial", FontSize: 12, Y: 100, S: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSameSentence(tt.last, tt.current))
		})
	}
}
