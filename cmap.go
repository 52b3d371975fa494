// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sassoftware/pdf-xtract/logger"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// maxUseCMap bounds usecmap chains.
const maxUseCMap = 8

type codeRange struct {
	lo, hi string
}

func (r codeRange) contains(code string) bool {
	return len(code) == len(r.lo) && r.lo <= code && code <= r.hi
}

type cidRange struct {
	codeRange
	cid uint32
}

type bfRange struct {
	codeRange
	dst Value
}

// A cmap maps character codes to CIDs and, for ToUnicode CMaps, to text.
// Embedded CMaps carry explicit tables; predefined ones delegate to a
// charset.
type cmap struct {
	name     string
	space    [4][]codeRange
	bfchar   map[string]string
	bfrange  []bfRange
	cidchar  map[string]uint32
	cidrange []cidRange
	notdef   []cidRange
	parent   *cmap
	charset  *charset
	identity bool
}

func newCMap(name string) *cmap {
	return &cmap{
		name:    name,
		bfchar:  make(map[string]string),
		cidchar: make(map[string]uint32),
	}
}

// split returns the length of the first code in raw. ok is false when raw
// does not start with a code of any codespace range; n is then the number
// of bytes to skip.
func (m *cmap) split(raw string) (n int, ok bool) {
	if len(raw) == 0 {
		return 0, false
	}
	for c := m; c != nil; c = c.parent {
		switch {
		case c.charset != nil:
			n = c.charset.width(raw)
			if n > len(raw) {
				return len(raw), false
			}
			return n, true
		case c.identity:
			if len(raw) < 2 {
				return len(raw), false
			}
			return 2, true
		}
		for w := 1; w <= 4 && w <= len(raw); w++ {
			for _, r := range c.space[w-1] {
				if r.contains(raw[:w]) {
					return w, true
				}
			}
		}
	}
	if !m.hasCodespace() {
		return m.guessWidth(raw), true
	}
	return m.shortestWidth(), false
}

func (m *cmap) hasCodespace() bool {
	for c := m; c != nil; c = c.parent {
		for _, s := range c.space {
			if len(s) > 0 {
				return true
			}
		}
		if c.identity || c.charset != nil {
			return true
		}
	}
	return false
}

func (m *cmap) shortestWidth() int {
	for c := m; c != nil; c = c.parent {
		for w := 1; w <= 4; w++ {
			if len(c.space[w-1]) > 0 {
				return w
			}
		}
	}
	return 1
}

// guessWidth handles ToUnicode CMaps without a codespace by trying the
// source code lengths used in the mappings.
func (m *cmap) guessWidth(raw string) int {
	for w := 1; w <= 4 && w <= len(raw); w++ {
		if _, ok := m.bfchar[raw[:w]]; ok {
			return w
		}
		for _, r := range m.bfrange {
			if r.contains(raw[:w]) {
				return w
			}
		}
	}
	w := 0
	for k := range m.bfchar {
		if len(k) <= len(raw) && (w == 0 || len(k) < w) {
			w = len(k)
		}
	}
	if w == 0 {
		return 1
	}
	return w
}

// lookupText maps a code through bfchar and bfrange entries.
func (m *cmap) lookupText(code string) (string, bool) {
	for c, depth := m, 0; c != nil && depth <= maxUseCMap; c, depth = c.parent, depth+1 {
		if c.charset != nil {
			return c.charset.decode(code)
		}
		if s, ok := c.bfchar[code]; ok {
			return s, true
		}
		for _, r := range c.bfrange {
			if !r.contains(code) {
				continue
			}
			off := codeValue(code) - codeValue(r.lo)
			switch r.dst.Kind() {
			case String:
				return toUnicodeText(incrementBE(r.dst.RawString(), off)), true
			case Array:
				return dstText(r.dst.Index(int(off))), true
			case Name:
				return glyphText(r.dst.Name(), false), true
			}
		}
	}
	return "", false
}

// lookupCID maps a code through cidchar, cidrange and notdefrange entries.
// Codes of a charset CMap have no CID here.
func (m *cmap) lookupCID(code string) (uint32, bool) {
	for c, depth := m, 0; c != nil && depth <= maxUseCMap; c, depth = c.parent, depth+1 {
		if c.identity {
			return uint32(codeValue(code)), true
		}
		if c.charset != nil {
			return 0, false
		}
		if cid, ok := c.cidchar[code]; ok {
			return cid, true
		}
		for _, r := range c.cidrange {
			if r.contains(code) {
				return r.cid + uint32(codeValue(code)-codeValue(r.lo)), true
			}
		}
		for _, r := range c.notdef {
			if r.contains(code) {
				return r.cid, true
			}
		}
	}
	return 0, false
}

func codeValue(code string) int64 {
	var v int64
	for i := 0; i < len(code); i++ {
		v = v<<8 | int64(code[i])
	}
	return v
}

// incrementBE adds off to s read as a big-endian number.
func incrementBE(s string, off int64) string {
	if off == 0 || s == "" {
		return s
	}
	b := []byte(s)
	carry := off
	for i := len(b) - 1; i >= 0 && carry != 0; i-- {
		sum := int64(b[i]) + carry
		b[i] = byte(sum)
		carry = sum >> 8
	}
	return string(b)
}

func dstText(v Value) string {
	switch v.Kind() {
	case String:
		return toUnicodeText(v.RawString())
	case Name:
		return glyphText(v.Name(), false)
	}
	return ""
}

// toUnicodeText decodes a ToUnicode destination string. Well-formed values
// are UTF-16BE; odd-length values are read one byte per rune.
func toUnicodeText(s string) string {
	if len(s)%2 == 1 {
		return string(DecodeUTF8OrPreserve(s))
	}
	if isUTF16(s) {
		s = s[2:]
	}
	return utf16Decode(s)
}

// parseCMap reads an embedded CMap program.
func parseCMap(ctx context.Context, data []byte, name string) *cmap {
	m := newCMap(name)
	mark := -1
	err := interpret(ctx, data, func(stk *Stack, op string) error {
		switch op {
		case "findresource":
			stk.Pop()
			stk.Pop()
			stk.Push(newDict())
		case "defineresource":
			stk.Pop()
			v := stk.Pop()
			stk.Pop()
			stk.Push(v)
		case "usecmap":
			m.parent = predefinedCMap(stk.Pop().Name())
		case "begincodespacerange", "beginbfchar", "beginbfrange",
			"begincidchar", "begincidrange", "beginnotdefchar", "beginnotdefrange":
			stk.Pop()
			mark = stk.Len()
		case "endcodespacerange", "endbfchar", "endbfrange",
			"endcidchar", "endcidrange", "endnotdefchar", "endnotdefrange":
			if mark < 0 || mark > stk.Len() {
				logger.Debug(fmt.Sprintf("cmap %s: %s without matching begin", name, op))
				stk.reset()
				return nil
			}
			args := append([]Value(nil), stk.stack[mark:]...)
			stk.stack = stk.stack[:mark]
			mark = -1
			m.add(op, args)
		default:
			if DebugOn {
				logger.Debug(fmt.Sprintf("cmap %s: ignoring %s", name, op))
			}
		}
		return nil
	})
	if err != nil {
		logger.Error(fmt.Sprintf("cmap %s: %v", name, err))
	}
	return m
}

func (m *cmap) add(op string, args []Value) {
	switch op {
	case "endcodespacerange":
		for i := 0; i+1 < len(args); i += 2 {
			lo, hi := args[i].RawString(), args[i+1].RawString()
			if len(lo) == 0 || len(lo) > 4 || len(lo) != len(hi) {
				logger.Debug(fmt.Sprintf("cmap %s: bad codespace range <%x> <%x>", m.name, lo, hi))
				continue
			}
			m.space[len(lo)-1] = append(m.space[len(lo)-1], codeRange{lo, hi})
		}
	case "endbfchar":
		for i := 0; i+1 < len(args); i += 2 {
			m.bfchar[args[i].RawString()] = dstText(args[i+1])
		}
	case "endbfrange":
		for i := 0; i+2 < len(args); i += 3 {
			lo, hi := args[i].RawString(), args[i+1].RawString()
			if len(lo) == 0 || len(lo) != len(hi) {
				continue
			}
			m.bfrange = append(m.bfrange, bfRange{codeRange{lo, hi}, args[i+2]})
		}
	case "endcidchar":
		for i := 0; i+1 < len(args); i += 2 {
			m.cidchar[args[i].RawString()] = uint32(args[i+1].Int64())
		}
	case "endcidrange", "endnotdefrange":
		for i := 0; i+2 < len(args); i += 3 {
			lo, hi := args[i].RawString(), args[i+1].RawString()
			if len(lo) == 0 || len(lo) != len(hi) {
				continue
			}
			r := cidRange{codeRange{lo, hi}, uint32(args[i+2].Int64())}
			if op == "endcidrange" {
				m.cidrange = append(m.cidrange, r)
			} else {
				m.notdef = append(m.notdef, r)
			}
		}
	case "endnotdefchar":
		for i := 0; i+1 < len(args); i += 2 {
			code := args[i].RawString()
			m.notdef = append(m.notdef, cidRange{codeRange{code, code}, uint32(args[i+1].Int64())})
		}
	}
}

// loadCMap builds a cmap from a /Encoding or /ToUnicode entry: either the
// name of a predefined CMap or an embedded stream, which may itself name
// a parent with /UseCMap.
func loadCMap(ctx context.Context, v Value, depth int) *cmap {
	switch v.Kind() {
	case Name:
		return predefinedCMap(v.Name())
	case Stream:
		data, err := v.Data()
		if err != nil {
			logger.Error(fmt.Sprintf("cmap: %v", err))
			return nil
		}
		m := parseCMap(ctx, data, v.Key("CMapName").Name())
		if m.parent == nil && depth < maxUseCMap {
			if use := v.Key("UseCMap"); !use.IsNull() {
				m.parent = loadCMap(ctx, use, depth+1)
			}
		}
		return m
	}
	return nil
}

// A charset decodes the codes of a predefined CMap directly to text.
type charset struct {
	width func(raw string) int
	dec   encoding.Encoding
	utf   func(code string) string
}

func (c *charset) decode(code string) (string, bool) {
	var s string
	if c.utf != nil {
		s = c.utf(code)
	} else {
		out, err := c.dec.NewDecoder().String(code)
		if err != nil {
			return "", false
		}
		s = out
	}
	if s == "" || strings.ContainsRune(s, unicode.ReplacementChar) {
		return "", false
	}
	return s, true
}

func leadByteWidth(lo, hi byte) func(string) int {
	return func(raw string) int {
		if raw[0] >= lo && raw[0] <= hi {
			return 2
		}
		return 1
	}
}

func shiftJISWidth(raw string) int {
	c := raw[0]
	if (c >= 0x81 && c <= 0x9f) || (c >= 0xe0 && c <= 0xfc) {
		return 2
	}
	return 1
}

func eucJPWidth(raw string) int {
	switch c := raw[0]; {
	case c == 0x8f:
		return 3
	case c == 0x8e, c >= 0xa1 && c <= 0xfe:
		return 2
	}
	return 1
}

func utf16Width(raw string) int {
	if raw[0] >= 0xd8 && raw[0] <= 0xdb {
		return 4
	}
	return 2
}

func utf8Width(raw string) int {
	_, n := utf8.DecodeRuneInString(raw)
	return n
}

var (
	ucs2Charset     = &charset{width: func(string) int { return 2 }, utf: utf16Decode}
	utf16Charset    = &charset{width: utf16Width, utf: utf16Decode}
	utf8Charset     = &charset{width: utf8Width, utf: func(s string) string { return s }}
	shiftJISCharset = &charset{width: shiftJISWidth, dec: japanese.ShiftJIS}
	eucJPCharset    = &charset{width: eucJPWidth, dec: japanese.EUCJP}
	eucKRCharset    = &charset{width: leadByteWidth(0x81, 0xfe), dec: korean.EUCKR}
	gbkCharset      = &charset{width: leadByteWidth(0x81, 0xfe), dec: simplifiedchinese.GBK}
	big5Charset     = &charset{width: leadByteWidth(0x81, 0xfe), dec: traditionalchinese.Big5}
)

// charsetBased reports whether m or a CMap it uses decodes codes with a
// text encoding.
func (m *cmap) charsetBased() bool {
	for c, depth := m, 0; c != nil && depth <= maxUseCMap; c, depth = c.parent, depth+1 {
		if c.charset != nil {
			return true
		}
	}
	return false
}

// predefinedCMap returns the rules for a registered CMap name, or nil.
func predefinedCMap(name string) *cmap {
	base := strings.TrimSuffix(strings.TrimSuffix(name, "-H"), "-V")
	m := newCMap(name)
	switch {
	case base == "Identity":
		m.identity = true
	case strings.Contains(base, "UCS2"):
		m.charset = ucs2Charset
	case strings.Contains(base, "UTF16"):
		m.charset = utf16Charset
	case strings.Contains(base, "UTF8"):
		m.charset = utf8Charset
	case strings.Contains(base, "RKSJ"):
		m.charset = shiftJISCharset
	case base == "EUC":
		m.charset = eucJPCharset
	case strings.HasPrefix(base, "KSC"):
		m.charset = eucKRCharset
	case strings.HasPrefix(base, "GB"):
		m.charset = gbkCharset
	case strings.Contains(base, "B5"), strings.HasPrefix(base, "CNS"):
		m.charset = big5Charset
	default:
		if name != "" {
			logger.Debug(fmt.Sprintf("cmap: unsupported predefined CMap %s", name))
		}
		return nil
	}
	return m
}
