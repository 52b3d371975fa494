// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errHas(err error, sub string) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), strings.ToLower(sub))
}

func TestNewReader_EmptyFile(t *testing.T) {
	var b bytes.Reader // size = 0
	_, err := NewReader(&b, 0)

	assert.Truef(t, err != nil, "expected error for empty input, got nil")
	assert.Truef(t, errHas(err, "empty"), "expected error to contain 'empty', got: %v", err)
	var ud *UnresolvableDocument
	assert.True(t, errors.As(err, &ud))
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.pdf")
	require.NoError(t, os.WriteFile(path, helloPDF("From disk"), 0o600))

	f, r, err := Open(path)
	require.NoError(t, err)
	defer f.Close()
	text, err := r.ExtractText(t.Context(), DefaultTextOptions(), true)
	require.NoError(t, err)
	assert.Equal(t, "From disk", text)

	_, _, err = Open(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCheckHeader(t *testing.T) {
	tests := []struct {
		name string
		data string
		err  string
	}{
		{"1.7", "%PDF-1.7\n", ""},
		{"2.0", "%PDF-2.0\r\n", ""},
		{"leading garbage", "\x00\x00junk%PDF-1.4\n", ""},
		{"trailing padding", "%PDF-1.3 \t\n", ""},
		{"empty", "", "empty"},
		{"no header", "hello world", "missing %pdf- header"},
		{"malformed version", "%PDF-x.y\n", "malformed version"},
		{"unsupported version", "%PDF-3.1\n", "unsupported pdf version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckHeader(strings.NewReader(tt.data))
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			assert.Truef(t, errHas(err, tt.err), "want %q, got %v", tt.err, err)
		})
	}
}

func TestValidateEOFMarker(t *testing.T) {
	tests := []struct {
		name string
		data string
		ok   bool
	}{
		{"plain", "%PDF-1.7\n%%EOF", true},
		{"trailing whitespace", "%PDF-1.7\n%%EOF\r\n\x00 ", true},
		{"long file", "%PDF-1.7\n" + strings.Repeat("x", 4096) + "\n%%EOF\n", true},
		{"missing", "%PDF-1.7\ntrailer", false},
		{"marker not at the end", "%%EOF\nmore stuff", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEOFMarker(strings.NewReader(tt.data), int64(len(tt.data)))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFindStartXref(t *testing.T) {
	data := helloPDF("x")
	off, err := FindStartXref(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, int64(bytes.LastIndex(data, []byte("\nxref\n"))+1), off)

	padded := append(append([]byte(nil), data...), strings.Repeat(" ", 2000)...)
	_, err = FindStartXref(bytes.NewReader(padded), int64(len(padded)))
	assert.Truef(t, errHas(err, "missing final startxref"), "startxref beyond the last 1024 bytes: %v", err)
}

type errReaderAt struct{}

func (e errReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return 0, errors.New("read failure")
}

func TestFindStartXref_ErrorCases(t *testing.T) {
	// ReadAt error
	{
		r := errReaderAt{}
		_, err := FindStartXref(r, 100)
		assert.Error(t, err)
	}
	// Missing final startxref
	{
		payload := strings.Repeat("A", 150)
		data := []byte("%PDF-1.7\n" + payload + "\n%%EOF")

		ra := bytes.NewReader(data)
		_, err := FindStartXref(ra, int64(len(data)))

		assert.Error(t, err)
	}
	// startxref not followed by integer
	{
		padding := strings.Repeat("A", 120)
		data := []byte(
			"%PDF-1.7\n" +
				padding +
				"\nstartxref\n" +
				"notanumber\n" +
				"%%EOF",
		)

		ra := bytes.NewReader(data)
		_, err := FindStartXref(ra, int64(len(data)))

		assert.Truef(t, errHas(err, "not followed by integer"), "got %v", err)
	}
	//Invalid keyword instead of startxref
	{
		padding := strings.Repeat("B", 120)
		data := []byte(
			"%PDF-1.7\n" +
				padding +
				"\nsomethingelse\n123\n%%EOF",
		)

		ra := bytes.NewReader(data)
		_, err := FindStartXref(ra, int64(len(data)))

		assert.Error(t, err)
	}
}

func TestObjfmt(t *testing.T) {
	// Table of test cases
	cases := []struct {
		name     string
		input    interface{}
		expected string
		checkFn  func(string) bool
	}{
		{"plain string", "hello", "\"hello\"", nil},
		{"pdf doc encoded string", string([]byte{0xA3, 0x20, 0x41}), "", func(got string) bool {
			return strings.HasPrefix(got, "\"") && strings.HasSuffix(got, "\"")
		}},

		{"utf16 string", string([]byte{0xFE, 0xFF, 0x00, 0x48, 0x00, 0x69}), "\"Hi\"", nil},
		{"name", name("Helvetica"), "/Helvetica", nil},
		{"array", array{"a", name("B"), int64(3)}, "[\"a\" /B 3]", nil},
		{"dict", dict{
			name("Z"): int64(26),
			name("A"): "alpha",
			name("M"): array{"x", int64(1)},
		}, "<</A \"alpha\" /M [\"x\" 1] /Z 26>>", nil},
		{"stream", stream{hdr: dict{name("Length"): int64(0)}, offset: 123}, "<</Length 0>>@123", nil},
		{"objptr", objptr{5, 0}, "5 0 R", nil},
		{"objdef", objdef{ptr: objptr{5, 0}, obj: int64(42)}, "{5 0 obj}42", nil},
		{"default unknown type", 3.14, "3.14", nil},
	}

	for _, c := range cases {
		got := objfmt(c.input)
		if c.checkFn != nil {
			if !c.checkFn(got) {
				t.Errorf("%s: output %q did not satisfy custom check", c.name, got)
			}
		} else {
			assert.Equal(t, c.expected, got, c.name)
		}
	}
}

func utf16BEWithBOM(s []rune) string {
	// BOM FE FF then big-endian 16-bit runes
	b := []byte{0xFE, 0xFF}
	for _, r := range s {
		b = append(b, byte(r>>8), byte(r&0xFF))
	}
	return string(b)
}

func TestValue_PrimitivesAndStringFuncs(t *testing.T) {
	// plain string value
	v := Value{r: nil, ptr: objptr{}, data: "hello"}
	assert.Equal(t, "\"hello\"", v.String(), "String() should quote plain strings")
	assert.Equal(t, "hello", v.RawString(), "RawString() should return raw string")
	assert.Equal(t, "hello", v.Text(), "Text() should return plain text for ASCII string")

	// UTF-16 string -> Text should decode
	utf16 := utf16BEWithBOM([]rune{'H', 'i'})
	v2 := Value{r: nil, ptr: objptr{}, data: utf16}
	require.True(t, isUTF16(utf16), "constructed sample should be detected as UTF-16")
	assert.Equal(t, "Hi", v2.Text(), "Text() should decode UTF-16BE with BOM")
	assert.Equal(t, "\ufeffHi", v2.TextFromUTF16(), "TextFromUTF16() should decode UTF-16BE (BOM preserved)")
	assert.Equal(t, "", Value{data: "odd"}.TextFromUTF16())

	// PDFDocEncoding bullet
	assert.Equal(t, "•", Value{data: "\x80"}.Text())

	// Bool / Int64 / Float64
	vb := Value{data: true}
	vi := Value{data: int64(42)}
	vf := Value{data: float64(3.5)}
	assert.True(t, vb.Bool())
	assert.Equal(t, int64(42), vi.Int64())
	assert.Equal(t, float64(3.5), vf.Float64())
	assert.Equal(t, float64(42), vi.Float64())

	// wrong kinds give zero values
	assert.False(t, vi.Bool())
	assert.Zero(t, vf.Int64())
	assert.Zero(t, v.Float64())
	assert.Empty(t, vi.RawString())
	assert.Empty(t, vi.Text())
	assert.Empty(t, v.Name())
	assert.Nil(t, v.Keys())
	assert.Zero(t, v.Len())
	assert.True(t, v.Key("A").IsNull())
	assert.True(t, v.Index(0).IsNull())
}

func TestValue_NameArrayDictAccessors(t *testing.T) {
	// Build a dict with mixed entries and an array
	d := dict{
		name("B"):   int64(2),
		name("A"):   "alpha",
		name("Arr"): array{"one", int64(2)},
	}
	r := &Reader{}

	v := Value{r: r, ptr: objptr{}, data: d}

	// Keys() should return sorted keys
	keys := v.Keys()
	require.Equal(t, []string{"A", "Arr", "B"}, keys)

	// Key() lookup for simple values
	ka := v.Key("A")
	assert.Equal(t, "alpha", ka.RawString())

	arrVal := v.Key("Arr")
	assert.Equal(t, 2, arrVal.Len(), "array length should be 2")
	assert.Equal(t, "one", arrVal.Index(0).RawString())
	assert.Equal(t, int64(2), arrVal.Index(1).Int64())
	assert.True(t, arrVal.Index(2).IsNull())
	assert.True(t, arrVal.Index(-1).IsNull())

	// Name accessor
	nv := Value{data: name("Helvetica")}
	assert.Equal(t, "Helvetica", nv.Name())
	assert.Equal(t, "/Helvetica", nv.String())

	// Stream values expose their header dictionary
	sv := Value{data: stream{hdr: dict{name("Length"): int64(4), name("Type"): name("XObject")}}}
	assert.Equal(t, []string{"Length", "Type"}, sv.Keys())
	assert.Equal(t, "XObject", sv.Key("Type").Name())
	assert.Equal(t, Stream, sv.Kind())
	assert.Empty(t, (Value{data: dict{}}).Keys())
	assert.NotNil(t, (Value{data: dict{}}).Keys(), "an empty dictionary has an empty key list")
}

func TestValue_CheckedAccessors(t *testing.T) {
	str := Value{data: "s"}
	num := Value{data: int64(7)}

	_, err := str.AsInt64()
	var tm *TypeMismatch
	require.True(t, errors.As(err, &tm))
	assert.Equal(t, Integer, tm.Want)
	assert.Equal(t, String, tm.Got)
	assert.Equal(t, "type mismatch: want Integer, got String", err.Error())

	f, err := num.AsFloat64()
	require.NoError(t, err)
	assert.Equal(t, float64(7), f)

	_, errBool := num.AsBool()
	_, errFloat := str.AsFloat64()
	_, errName := num.AsName()
	_, errString := num.AsRawString()
	_, errDict := num.AsDict()
	_, errArray := num.AsArray()
	checks := []struct {
		name string
		err  error
		want ValueKind
	}{
		{"bool", errBool, Bool},
		{"float", errFloat, Real},
		{"name", errName, Name},
		{"string", errString, String},
		{"dict", errDict, Dict},
		{"array", errArray, Array},
	}
	for _, c := range checks {
		require.True(t, errors.As(c.err, &tm), c.name)
		assert.Equal(t, c.want, tm.Want, c.name)
	}

	s, err := str.AsRawString()
	require.NoError(t, err)
	assert.Equal(t, "s", s)
	n, err := Value{data: name("N")}.AsName()
	require.NoError(t, err)
	assert.Equal(t, "N", n)
	b, err := Value{data: true}.AsBool()
	require.NoError(t, err)
	assert.True(t, b)
	_, err = Value{data: dict{}}.AsDict()
	assert.NoError(t, err)
	_, err = Value{data: array{}}.AsArray()
	assert.NoError(t, err)
}

func TestValueKind_String(t *testing.T) {
	assert.Equal(t, "Null", Null.String())
	assert.Equal(t, "Stream", Stream.String())
	assert.Equal(t, "ValueKind(42)", ValueKind(42).String())
}

func TestReaderResolve(t *testing.T) {
	//direct value (non-objptr)
	r := &Reader{}
	v := r.resolve(objptr{}, int64(42))
	assert.False(t, v.IsNull())
	assert.Equal(t, int64(42), v.Int64())

	// references without a document are null
	var none *Reader
	assert.True(t, none.resolve(objptr{}, objptr{1, 0}).IsNull())

	// unexpected Go types are null
	assert.True(t, r.resolve(objptr{}, struct{}{}).IsNull())

	doc := parsePDF(t, helloPDF("x"))
	font := doc.Object(1, 0)
	assert.Equal(t, objptr{1, 0}, font.ptr, "resolved values remember their object")
	assert.True(t, doc.Object(0, 65535).IsNull(), "the free list head is not an object")
}

func TestValue_Reader(t *testing.T) {
	doc := parsePDF(t, helloPDF("Stream"))

	rc := doc.Object(3, 0).Reader()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "BT /F1 12 Tf 72 700 Td (Stream) Tj ET", string(data))

	rc = doc.Object(1, 0).Reader()
	_, err = io.ReadAll(rc)
	var tm *TypeMismatch
	assert.True(t, errors.As(err, &tm))
	assert.Error(t, rc.Close())
}

func TestInterpret(t *testing.T) {
	doc := parsePDF(t, helloPDF("Ops"))
	var ops []string
	err := Interpret(doc.Page(1).V.Key("Contents"), func(stk *Stack, op string) {
		ops = append(ops, op)
		for stk.Len() > 0 {
			stk.Pop()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"BT", "Tf", "Td", "Tj", "ET"}, ops)

	err = Interpret(doc.Object(1, 0), func(*Stack, string) {})
	var tm *TypeMismatch
	assert.True(t, errors.As(err, &tm))
}

func TestObjStm(t *testing.T) {
	data := []byte("10 0 11 6 (ten) << /Eleven true >>")
	ids, err := objStmMembers(data, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 11}, ids)

	ids, err = objStmMembers(data, 5)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 11}, ids, "n larger than the header stops at the first object")

	obj, found, err := findInObjStm(data, 2, 10, 11)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "<</Eleven true>>", objfmt(obj))

	obj, found, err = findInObjStm(data, 2, 10, 10)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ten", obj)

	_, found, err = findInObjStm(data, 2, 10, 12)
	require.NoError(t, err)
	assert.False(t, found)
}
