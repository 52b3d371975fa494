// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawDeflate(s string) []byte {
	var buf bytes.Buffer
	fw, _ := flate.NewWriter(&buf, flate.BestCompression)
	_, _ = fw.Write([]byte(s))
	_ = fw.Close()
	return buf.Bytes()
}

func lzwEncode(s string) []byte {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	_, _ = w.Write([]byte(s))
	_ = w.Close()
	return buf.Bytes()
}

func a85Encode(b []byte) []byte {
	out := make([]byte, ascii85.MaxEncodedLen(len(b)))
	return out[:ascii85.Encode(out, b)]
}

func TestDecode(t *testing.T) {
	const text = "the quick brown fox jumps over the lazy dog"
	zlibbed := []byte(deflate(text))
	noChecksum := zlibbed[:len(zlibbed)-4]
	badChecksum := append([]byte(nil), zlibbed...)
	badChecksum[len(badChecksum)-1] ^= 0xff

	a85 := a85Encode([]byte("\x00\x00\x00\x00" + text))
	a85Spaced := append(append(append([]byte(nil), a85[:7]...), "\n  \r"...), a85[7:]...)

	tests := []struct {
		name   string
		filter string
		params string
		in     []byte
		want   string
	}{
		{"flate", "FlateDecode", "", zlibbed, text},
		{"flate abbreviation", "Fl", "", zlibbed, text},
		{"flate without zlib header", "FlateDecode", "", rawDeflate(text), text},
		{"flate missing checksum", "FlateDecode", "", noChecksum, text},
		{"flate bad checksum", "FlateDecode", "", badChecksum, text},
		{"lzw early change 0", "LZWDecode", "<< /EarlyChange 0 >>", lzwEncode(text), text},
		{"lzw early change 1", "LZWDecode", "", []byte{0x80, 0x0B, 0x60, 0x50, 0x22, 0x0C, 0x0C, 0x85, 0x01}, "-----A---B"},
		{"ascii85", "ASCII85Decode", "", append(a85, "~>"...), "\x00\x00\x00\x00" + text},
		{"ascii85 whitespace and trailer", "A85", "", append(a85Spaced, "~>garbage"...), "\x00\x00\x00\x00" + text},
		{"ascii hex", "ASCIIHexDecode", "", []byte("48656C6c6F>"), "Hello"},
		{"ascii hex whitespace odd", "AHx", "", []byte("48 65\n6>"), "He`"},
		{"ascii hex no terminator", "AHx", "", []byte("4142"), "AB"},
		{"run length", "RunLengthDecode", "", []byte{2, 'a', 'b', 'c', 254, 'x', 128, 'z'}, "abcxxx"},
		{"run length abbreviation", "RL", "", []byte{0, 'q'}, "q"},
		{"dct passes through", "DCTDecode", "", []byte("\xff\xd8jpeg"), "\xff\xd8jpeg"},
		{"jpx passes through", "JPXDecode", "", []byte("jp2"), "jp2"},
		{"jbig2 passes through", "JBIG2Decode", "", []byte("jb2"), "jb2"},
		{"ccitt passes through", "CCF", "", []byte("g4"), "g4"},
		{"identity crypt", "Crypt", "<< /Name /Identity >>", []byte("plain"), "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var params Value
			if tt.params != "" {
				params = objValue(t, tt.params)
			}
			out, err := Decode(tt.in, tt.filter, params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name        string
		filter      string
		params      string
		in          []byte
		unsupported bool
	}{
		{"unknown filter", "FooDecode", "", []byte("x"), true},
		{"encrypted crypt filter", "Crypt", "<< /Name /StdCF >>", []byte("x"), true},
		{"flate garbage", "FlateDecode", "", []byte{0xff, 0xff, 0xff, 0xff}, false},
		{"ascii85 z inside a group", "ASCII85Decode", "", []byte("!!z~>"), false},
		{"ascii hex invalid digit", "ASCIIHexDecode", "", []byte("4G>"), false},
		{"run length truncated literal", "RunLengthDecode", "", []byte{5, 'a'}, false},
		{"run length truncated repeat", "RunLengthDecode", "", []byte{200}, false},
		{"unknown predictor", "FlateDecode", "<< /Predictor 5 >>", []byte(deflate("abc")), false},
		{"tiff predictor bit depth", "FlateDecode", "<< /Predictor 2 /BitsPerComponent 4 >>", []byte(deflate("abc")), false},
		{"png filter type", "FlateDecode", "<< /Predictor 12 /Columns 2 >>", []byte(deflate("\x09ab")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var params Value
			if tt.params != "" {
				params = objValue(t, tt.params)
			}
			_, err := Decode(tt.in, tt.filter, params)
			require.Error(t, err)
			if tt.unsupported {
				var uf *UnsupportedFilter
				assert.True(t, errors.As(err, &uf), "got %v", err)
				return
			}
			var cs *CorruptStream
			assert.True(t, errors.As(err, &cs), "got %v", err)
		})
	}
}

func TestPredictors(t *testing.T) {
	tests := []struct {
		name   string
		params string
		in     []byte
		want   []byte
	}{
		{
			name:   "png none sub up",
			params: "<< /Predictor 12 /Columns 3 >>",
			in:     []byte{0, 1, 2, 3, 1, 5, 1, 1, 2, 1, 1, 1},
			want:   []byte{1, 2, 3, 5, 6, 7, 6, 7, 8},
		},
		{
			name:   "png average",
			params: "<< /Predictor 13 /Columns 3 >>",
			in:     []byte{0, 6, 7, 8, 3, 2, 2, 2},
			want:   []byte{6, 7, 8, 5, 8, 10},
		},
		{
			name:   "png paeth",
			params: "<< /Predictor 14 /Columns 3 >>",
			in:     []byte{0, 5, 6, 7, 4, 1, 1, 1},
			want:   []byte{5, 6, 7, 6, 7, 8},
		},
		{
			name:   "png two colors",
			params: "<< /Predictor 15 /Colors 2 /Columns 2 >>",
			in:     []byte{1, 1, 2, 3, 4},
			want:   []byte{1, 2, 4, 6},
		},
		{
			name:   "png short last row",
			params: "<< /Predictor 12 /Columns 3 >>",
			in:     []byte{0, 1, 2, 3, 2, 1},
			want:   []byte{1, 2, 3, 2},
		},
		{
			name:   "tiff",
			params: "<< /Predictor 2 /Columns 3 >>",
			in:     []byte{1, 1, 1, 2, 2, 2},
			want:   []byte{1, 2, 3, 2, 4, 6},
		},
		{
			name:   "none",
			params: "<< /Predictor 1 /Columns 3 >>",
			in:     []byte{9, 9},
			want:   []byte{9, 9},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Decode([]byte(deflate(string(tt.in))), "FlateDecode", objValue(t, tt.params))
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestAlphaReader(t *testing.T) {
	src := []byte("!u\nxz~>A")
	r := newAlphaReader(bytes.NewReader(src))

	buf := make([]byte, len(src))
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(src), n)
	assert.Equal(t, []byte{'!', 'u', '\n', 0, 'z', 0, 0, 0}, buf)

	n, err = r.Read(buf)
	assert.Zero(t, n)
	assert.Error(t, err, "reads after the terminator report EOF")
}

func TestStreamData_FilterChain(t *testing.T) {
	const text = "BT /F1 12 Tf (Chained) Tj ET"
	b := newPDF()
	font := b.add(helvetica)
	chained := b.stream("/Filter [/ASCIIHexDecode /FlateDecode] /DecodeParms [null null]",
		hex.EncodeToString([]byte(deflate(text)))+">")
	single := b.stream("/Filter /AHx /DecodeParms [null]", hex.EncodeToString([]byte(text)))
	unknown := b.stream("/Filter /Bogus", "raw")
	b.pages(fmt.Sprintf("<< /Font << /F1 %d 0 R >> >>", font))
	r := parsePDF(t, b.bytes())

	data, err := r.Object(uint32(chained), 0).Data()
	require.NoError(t, err)
	assert.Equal(t, text, string(data))

	data, err = r.Object(uint32(single), 0).Data()
	require.NoError(t, err)
	assert.Equal(t, text, string(data))

	_, err = r.Object(uint32(unknown), 0).Data()
	var uf *UnsupportedFilter
	assert.True(t, errors.As(err, &uf), "got %v", err)

	_, err = r.Object(uint32(font), 0).Data()
	var tm *TypeMismatch
	assert.True(t, errors.As(err, &tm), "got %v", err)
}

func TestStreamData_BadLength(t *testing.T) {
	b := newPDF()
	id := b.add("<< /Length 999 >>\nstream\nshort body\nendstream")
	b.pages("<< >>", "")
	r := parsePDF(t, b.bytes())

	data, err := r.Object(uint32(id), 0).Data()
	require.NoError(t, err)
	assert.Equal(t, "short body", string(data))
}
