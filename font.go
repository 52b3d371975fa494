// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sassoftware/pdf-xtract/logger"
	"golang.org/x/text/width"
	"seehuhn.de/go/postscript/type1"
)

// defaultWidth is the glyph width, in thousandths of an em, used when a
// simple font gives no width for a code.
const defaultWidth = 500

// A TextEncoding represents a mapping between
// font code points and UTF-8 text.
type TextEncoding interface {
	// Decode returns the UTF-8 text corresponding to
	// the sequence of code points in raw.
	Decode(raw string) (text string)
}

// A resolver is one step of a font's code to text chain. claimed reports
// whether the resolver owns the code; a claimed code with empty text is a
// resolution gap and later resolvers are not consulted.
type resolver interface {
	lookup(code string) (text string, claimed bool)
}

type toUnicodeResolver struct{ m *cmap }

func (r toUnicodeResolver) lookup(code string) (string, bool) {
	return r.m.lookupText(code)
}

type differencesResolver map[byte]string

func (r differencesResolver) lookup(code string) (string, bool) {
	s, ok := r[code[0]]
	return s, ok
}

type tableResolver struct{ t *encodingTable }

func (r tableResolver) lookup(code string) (string, bool) {
	s := r.t[code[0]]
	return s, s != ""
}

// cidResolver reads the CID of a code as a Unicode code point.
type cidResolver struct{ enc *cmap }

func (r cidResolver) lookup(code string) (string, bool) {
	cid, ok := r.enc.lookupCID(code)
	if !ok || cid == 0 || !utf8.ValidRune(rune(cid)) {
		return "", false
	}
	return string(rune(cid)), true
}

// A glyph is one decoded character code of a string operand.
type glyph struct {
	code  string
	text  string
	width float64 // text space units for a font size of 1
}

// A Font represents a font in a PDF file, with the code to text chain
// and the width tables resolved once.
type Font struct {
	V Value

	name      string
	subtype   string
	composite bool
	enc       *cmap
	chain     []resolver

	firstChar    int
	widths       []float64
	missingWidth float64
	scale        float64

	cidWidths  map[uint32]float64
	cidRanges  []cidWidthRange
	dw         float64
	cidToGID   []uint16
	identityGI bool

	gapMu sync.Mutex
	gaps  map[string]bool
}

type cidWidthRange struct {
	lo, hi uint32
	w      float64
}

// BaseFont returns the font's name.
func (f *Font) BaseFont() string {
	return f.name
}

// Subtype returns the font dictionary's /Subtype.
func (f *Font) Subtype() string {
	return f.subtype
}

// FontDescriptor returns the font's descriptor, taken from the descendant
// font for composite fonts.
func (f *Font) FontDescriptor() Value {
	if f.composite {
		return f.V.Key("DescendantFonts").Index(0).Key("FontDescriptor")
	}
	return f.V.Key("FontDescriptor")
}

// Embedded reports whether the font program is included in the file.
func (f *Font) Embedded() bool {
	desc := f.FontDescriptor()
	for _, k := range []string{"FontFile", "FontFile2", "FontFile3"} {
		if desc.Key(k).Kind() == Stream {
			return true
		}
	}
	return false
}

// FirstChar returns the code point of the first character in the font.
func (f *Font) FirstChar() int {
	return f.firstChar
}

// LastChar returns the code point of the last character in the font.
func (f *Font) LastChar() int {
	return f.firstChar + len(f.widths) - 1
}

// Widths returns the widths of the glyphs in the font, in thousandths of
// an em. Composite fonts return nil.
func (f *Font) Widths() []float64 {
	return append([]float64(nil), f.widths...)
}

// Width returns the width of the given code point, in thousandths of an em.
func (f *Font) Width(code int) float64 {
	if f.composite {
		return f.cidWidth(uint32(code))
	}
	i := code - f.firstChar
	if i >= 0 && i < len(f.widths) {
		return f.widths[i]
	}
	if f.missingWidth > 0 {
		return f.missingWidth
	}
	return defaultWidth
}

func (f *Font) cidWidth(cid uint32) float64 {
	if w, ok := f.cidWidths[cid]; ok {
		return w
	}
	for _, r := range f.cidRanges {
		if cid >= r.lo && cid <= r.hi {
			return r.w
		}
	}
	return f.dw
}

// GlyphID returns the glyph index of a CID through /CIDToGIDMap.
func (f *Font) GlyphID(cid uint32) uint16 {
	if f.identityGI || f.cidToGID == nil {
		return uint16(cid)
	}
	if int(cid) < len(f.cidToGID) {
		return f.cidToGID[cid]
	}
	return 0
}

// Encoder returns the encoding between font code point sequences and UTF-8.
func (f *Font) Encoder() TextEncoding {
	return f
}

// Decode returns the text of a string operand shown with this font.
func (f *Font) Decode(raw string) string {
	var sb strings.Builder
	for _, g := range f.glyphs(raw) {
		sb.WriteString(g.text)
	}
	return sb.String()
}

// Gaps returns the codes for which no resolver produced text so far.
func (f *Font) Gaps() []FontResolutionGap {
	f.gapMu.Lock()
	defer f.gapMu.Unlock()
	out := make([]FontResolutionGap, 0, len(f.gaps))
	for code := range f.gaps {
		out = append(out, FontResolutionGap{Font: f.name, Code: code})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// glyphs splits raw into character codes and resolves each one.
func (f *Font) glyphs(raw string) []glyph {
	out := make([]glyph, 0, len(raw))
	for len(raw) > 0 {
		n, ok := 1, true
		if f.enc != nil {
			n, ok = f.enc.split(raw)
			if n <= 0 {
				n = 1
			}
		}
		code := raw[:n]
		raw = raw[n:]
		g := glyph{code: code, width: f.codeWidth(code)}
		if ok {
			g.text = f.text(code)
		} else {
			f.gap(code)
		}
		out = append(out, g)
	}
	return out
}

func (f *Font) text(code string) string {
	s, ok := f.resolve(code)
	if !ok || s == "" {
		f.gap(code)
	}
	return s
}

// resolve walks the resolver chain without recording gaps.
func (f *Font) resolve(code string) (string, bool) {
	for _, r := range f.chain {
		if s, ok := r.lookup(code); ok {
			return s, true
		}
	}
	return "", false
}

func (f *Font) gap(code string) {
	f.gapMu.Lock()
	seen := f.gaps[code]
	if !seen {
		f.gaps[code] = true
	}
	f.gapMu.Unlock()
	if !seen {
		logger.Debug((&FontResolutionGap{Font: f.name, Code: code}).Error())
	}
}

func (f *Font) codeWidth(code string) float64 {
	if f.composite {
		cid, ok := f.enc.lookupCID(code)
		if !ok && f.enc.charsetBased() {
			return f.charsetWidth(code) * f.scale
		}
		return f.cidWidth(cid) * f.scale
	}
	return f.Width(int(code[0])) * f.scale
}

// charsetWidth estimates the advance of a code of a predefined charset
// CMap, which is decoded without the CID tables /W is keyed by. Narrow
// and halfwidth characters take half of /DW.
func (f *Font) charsetWidth(code string) float64 {
	text, _ := f.resolve(code)
	r, n := utf8.DecodeRuneInString(text)
	if n == 0 || r == utf8.RuneError {
		return f.dw
	}
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth, width.EastAsianAmbiguous:
		return f.dw
	}
	return f.dw / 2
}

// fontEntry memoises the font built for one indirect font dictionary.
type fontEntry struct {
	once sync.Once
	font *Font
}

// font returns the Font for the font dictionary v. Indirect fonts are
// built once per document; direct ones are built on every call.
func (r *Reader) font(v Value, ptr objptr, indirect bool) *Font {
	if !indirect || r == nil {
		return newFont(v)
	}
	r.fontMu.Lock()
	if r.fonts == nil {
		r.fonts = make(map[objptr]*fontEntry)
	}
	e, ok := r.fonts[ptr]
	if !ok {
		e = &fontEntry{}
		r.fonts[ptr] = e
	}
	r.fontMu.Unlock()
	e.once.Do(func() { e.font = newFont(v) })
	return e.font
}

// newFont resolves the encoding chain and widths of a font dictionary.
func newFont(v Value) *Font {
	f := &Font{
		V:       v,
		name:    stripSubset(v.Key("BaseFont").Name()),
		subtype: v.Key("Subtype").Name(),
		scale:   0.001,
		gaps:    make(map[string]bool),
	}
	if f.name == "" {
		f.name = v.Key("Name").Name()
	}
	if f.name == "" {
		f.name = f.subtype
	}
	ctx := context.Background()
	if f.subtype == "Type0" {
		f.initComposite(ctx, v)
	} else {
		f.initSimple(ctx, v)
	}
	return f
}

// stripSubset removes a subset tag such as "ABCDEF+" from a font name.
func stripSubset(name string) string {
	if len(name) > 7 && name[6] == '+' {
		for i := 0; i < 6; i++ {
			if name[i] < 'A' || name[i] > 'Z' {
				return name
			}
		}
		return name[7:]
	}
	return name
}

func (f *Font) initSimple(ctx context.Context, v Value) {
	if tu := loadCMap(ctx, v.Key("ToUnicode"), 0); tu != nil {
		f.chain = append(f.chain, toUnicodeResolver{tu})
	}

	dingbats := f.name == "ZapfDingbats"
	encoding := v.Key("Encoding")
	base := encoding
	if encoding.Kind() == Dict {
		if diffs := readDifferences(encoding.Key("Differences"), dingbats); len(diffs) > 0 {
			f.chain = append(f.chain, diffs)
		}
		base = encoding.Key("BaseEncoding")
	}
	if t := f.baseTable(base, v.Key("FontDescriptor")); t != nil {
		f.chain = append(f.chain, tableResolver{t})
	}
	f.chain = append(f.chain, tableResolver{&pdfDocTable})

	f.firstChar = int(v.Key("FirstChar").Int64())
	ws := v.Key("Widths")
	for i := 0; i < ws.Len(); i++ {
		f.widths = append(f.widths, ws.Index(i).Float64())
	}
	f.missingWidth = v.Key("FontDescriptor").Key("MissingWidth").Float64()
	if f.subtype == "Type3" {
		if m := v.Key("FontMatrix"); m.Len() == 6 && m.Index(0).Float64() != 0 {
			f.scale = m.Index(0).Float64()
		}
		return
	}
	if len(f.widths) == 0 {
		f.standardWidths()
	}
}

// standardWidths fills the width table of a standard font that comes
// without /Widths from the built-in metrics, going through the font's
// encoding so that /Differences are honoured.
func (f *Font) standardWidths() {
	m := standardMetrics(f.name)
	if m == nil {
		return
	}
	fallback := f.missingWidth
	if fallback <= 0 {
		fallback = defaultWidth
	}
	f.firstChar = 0
	f.widths = make([]float64, 256)
	for code := range f.widths {
		f.widths[code] = fallback
		if text, ok := f.resolve(string([]byte{byte(code)})); ok {
			if w, ok := m.width(text); ok {
				f.widths[code] = w
			}
		}
	}
}

// baseTable chooses the base encoding of a simple font.
func (f *Font) baseTable(base Value, desc Value) *encodingTable {
	if base.Kind() == Name {
		if t, ok := baseEncoding(base.Name()); ok {
			return t
		}
		logger.Debug(fmt.Sprintf("font %s: unsupported base encoding %s", f.name, base.Name()))
	}
	if t := builtinEncoding(desc.Key("FontFile")); t != nil {
		return t
	}
	switch {
	case f.name == "Symbol":
		return &symbolTable
	case f.name == "ZapfDingbats":
		return &dingbatsTable
	case f.subtype == "TrueType":
		return &winAnsiTable
	}
	return &standardTable
}

// builtinEncoding reads the encoding of an embedded Type1 font program.
func builtinEncoding(file Value) *encodingTable {
	if file.Kind() != Stream {
		return nil
	}
	data, err := file.Data()
	if err != nil {
		logger.Debug(fmt.Sprintf("font program: %v", err))
		return nil
	}
	psFont, err := type1.Read(bytes.NewReader(data))
	if err != nil {
		logger.Debug(fmt.Sprintf("font program: %v", err))
		return nil
	}
	if len(psFont.Encoding) == 0 {
		return nil
	}
	t := new(encodingTable)
	for code, glyphName := range psFont.Encoding {
		if code < len(t) {
			t[code] = glyphText(glyphName, false)
		}
	}
	return t
}

// readDifferences reads a /Differences array. Unknown glyph names stay in
// the result with empty text so they are reported as gaps.
func readDifferences(diffs Value, dingbats bool) differencesResolver {
	out := make(differencesResolver)
	code := -1
	for i := 0; i < diffs.Len(); i++ {
		x := diffs.Index(i)
		switch x.Kind() {
		case Integer:
			code = int(x.Int64())
		case Name:
			if code >= 0 && code < 256 {
				out[byte(code)] = glyphText(x.Name(), dingbats)
			}
			if code >= 0 {
				code++
			}
		}
	}
	return out
}

func (f *Font) initComposite(ctx context.Context, v Value) {
	f.composite = true
	desc := v.Key("DescendantFonts").Index(0)

	f.enc = loadCMap(ctx, v.Key("Encoding"), 0)
	if f.enc == nil {
		logger.Debug(fmt.Sprintf("font %s: unsupported encoding %v, reading 2-byte codes", f.name, v.Key("Encoding")))
		f.enc = predefinedCMap("Identity-H")
	}

	if tu := loadCMap(ctx, v.Key("ToUnicode"), 0); tu != nil {
		f.chain = append(f.chain, toUnicodeResolver{tu})
	}
	if tu := loadCMap(ctx, desc.Key("ToUnicode"), 0); tu != nil {
		f.chain = append(f.chain, toUnicodeResolver{tu})
	}
	if f.enc.charset != nil {
		f.chain = append(f.chain, toUnicodeResolver{f.enc})
	}
	f.chain = append(f.chain, cidResolver{f.enc})

	f.dw = 1000
	if dw := desc.Key("DW"); dw.Kind() == Integer || dw.Kind() == Real {
		f.dw = dw.Float64()
	}
	f.cidWidths = make(map[uint32]float64)
	w := desc.Key("W")
	for i := 0; i < w.Len(); {
		first := w.Index(i)
		next := w.Index(i + 1)
		if next.Kind() == Array {
			c := uint32(first.Int64())
			for j := 0; j < next.Len(); j++ {
				f.cidWidths[c+uint32(j)] = next.Index(j).Float64()
			}
			i += 2
			continue
		}
		if i+2 >= w.Len() {
			break
		}
		f.cidRanges = append(f.cidRanges, cidWidthRange{
			lo: uint32(first.Int64()),
			hi: uint32(next.Int64()),
			w:  w.Index(i + 2).Float64(),
		})
		i += 3
	}

	switch gm := desc.Key("CIDToGIDMap"); gm.Kind() {
	case Name:
		f.identityGI = gm.Name() == "Identity"
	case Stream:
		data, err := gm.Data()
		if err != nil {
			logger.Debug(fmt.Sprintf("font %s: CIDToGIDMap: %v", f.name, err))
			f.identityGI = true
			break
		}
		f.cidToGID = make([]uint16, len(data)/2)
		for i := range f.cidToGID {
			f.cidToGID[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
		}
	default:
		f.identityGI = true
	}
}
