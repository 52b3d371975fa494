// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// pdfBuilder assembles small PDF files for tests. Object bodies are raw
// PDF syntax; the builder numbers the objects from 1 and writes a classic
// xref table with exact offsets.
type pdfBuilder struct {
	objs    []string
	root    int
	catalog string
	trailer string
	noXref  bool
}

func newPDF() *pdfBuilder {
	return &pdfBuilder{}
}

func (b *pdfBuilder) reserve() int {
	b.objs = append(b.objs, "null")
	return len(b.objs)
}

func (b *pdfBuilder) set(id int, body string) {
	b.objs[id-1] = body
}

func (b *pdfBuilder) add(body string) int {
	id := b.reserve()
	b.set(id, body)
	return id
}

// stream adds a stream object. dict holds the extra header entries.
func (b *pdfBuilder) stream(dict, data string) int {
	return b.add(fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data))
}

// flate adds a FlateDecode stream.
func (b *pdfBuilder) flate(dict, data string) int {
	return b.stream(dict+" /Filter /FlateDecode", deflate(data))
}

// pages adds one page per content stream, all sharing resources, and
// makes the catalog the document root. catalog holds extra catalog
// entries.
func (b *pdfBuilder) pages(resources string, contents ...string) {
	tree := b.reserve()
	var kids []string
	for _, c := range contents {
		content := b.stream("", c)
		page := b.add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources %s /Contents %d 0 R >>",
			tree, resources, content))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}
	b.set(tree, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids)))
	b.root = b.add(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R%s >>", tree, b.catalog))
}

func (b *pdfBuilder) bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(b.objs))
	for i, body := range b.objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	if b.noXref {
		fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R%s >>\n%%%%EOF\n", len(b.objs)+1, b.root, b.trailer)
		return buf.Bytes()
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(b.objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R%s >>\nstartxref\n%d\n%%%%EOF\n", len(b.objs)+1, b.root, b.trailer, xref)
	return buf.Bytes()
}

func deflate(s string) string {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write([]byte(s))
	_ = zw.Close()
	return buf.String()
}

// Standard font dictionaries used across tests.
const (
	helvetica = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"
	courier   = "<< /Type /Font /Subtype /Type1 /BaseFont /Courier >>"
)

// textPDF returns a document with one page per content stream, using the
// fonts given as resource name to font dictionary.
func textPDF(fonts map[string]string, contents ...string) []byte {
	b := newPDF()
	var res strings.Builder
	res.WriteString("<< /Font << ")
	for _, name := range sortedKeys(fonts) {
		id := b.add(fonts[name])
		fmt.Fprintf(&res, "/%s %d 0 R ", name, id)
	}
	res.WriteString(">> >>")
	b.pages(res.String(), contents...)
	return b.bytes()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parsePDF(t *testing.T, data []byte) *Reader {
	t.Helper()
	r, err := Parse(data)
	require.NoError(t, err)
	return r
}

// extractPDF returns the document text with the default options.
func extractPDF(t *testing.T, data []byte) string {
	t.Helper()
	text, err := parsePDF(t, data).ExtractText(context.Background(), DefaultTextOptions(), false)
	require.NoError(t, err)
	return text
}

// objValue parses one PDF object outside of any file.
func objValue(t *testing.T, src string) Value {
	t.Helper()
	b := newBuffer(strings.NewReader(src), 0)
	b.allowEOF = true
	b.allowStream = false
	obj, err := nextObject(b)
	require.NoError(t, err)
	return Value{nil, objptr{}, obj}
}

// toUnicodeCMap wraps bfchar pairs in a minimal ToUnicode CMap program.
func toUnicodeCMap(codespace string, bfchars ...string) string {
	var sb strings.Builder
	sb.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	sb.WriteString("/CMapName /Test-UCS def\n/CMapType 2 def\n")
	fmt.Fprintf(&sb, "1 begincodespacerange\n%s\nendcodespacerange\n", codespace)
	fmt.Fprintf(&sb, "%d beginbfchar\n", len(bfchars))
	for _, c := range bfchars {
		sb.WriteString(c)
		sb.WriteByte('\n')
	}
	sb.WriteString("endbfchar\nendcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return sb.String()
}

// utf16Hex returns the UTF-16BE hex digits of s.
func utf16Hex(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= 0x10000 {
			r -= 0x10000
			fmt.Fprintf(&sb, "%04X%04X", 0xD800+(r>>10), 0xDC00+(r&0x3FF))
			continue
		}
		fmt.Fprintf(&sb, "%04X", r)
	}
	return sb.String()
}
