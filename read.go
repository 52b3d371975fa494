// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

// Package xtract extracts reading-order text from PDF files.
//
// # Overview
//
// A PDF document is a graph of objects addressed through a cross-reference
// table. This package locates that table (or rebuilds it by scanning the
// file when it is damaged), resolves objects lazily, decodes the fonts used
// on each page into Unicode, interprets the page content streams and
// reassembles the positioned text runs into plain text with tabs, line
// breaks and literal spaces preserved.
//
// The object graph is exposed through Values, each of which has one of the
// following Kinds:
//
//	Null, for the null object.
//	Integer, for an integer.
//	Real, for a floating-point number.
//	Bool, for a boolean value.
//	Name, for a name constant (as in /Helvetica).
//	String, for a string constant.
//	Dict, for a dictionary of name-value pairs.
//	Array, for an array of values.
//	Stream, for an opaque data stream and associated header dictionary.
//
// The accessors on Value (Int64, Float64, Bool, Name, and so on) return a
// view of the data as the given type, or a zero result when there is no
// appropriate view. That makes it possible to walk a PDF quickly without
// error checking. The As* accessors return a *TypeMismatch instead, for
// callers that need to know.
//
// Object-level damage never aborts a document: malformed objects resolve
// to null, streams with unusable filters contribute no data and unmapped
// character codes render as empty strings, each reported through the
// logger package. Only a file without any recognisable object fails.
package xtract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sassoftware/pdf-xtract/logger"
)

// DebugOn enables verbose per-object logging. It is set from Config.DebugOn.
var DebugOn = false

// A Reader is a single PDF file open for reading.
//
// After NewReader returns, a Reader is safe for concurrent use: resolved
// objects, fonts and the page list are cached behind locks.
type Reader struct {
	f          io.ReaderAt
	end        int64
	xref       []xref
	trailer    dict
	trailerptr objptr
	recovered  bool

	mu      sync.RWMutex
	objects map[objptr]object
	reads   atomic.Int64

	fontMu sync.Mutex
	fonts  map[objptr]*fontEntry

	pagesOnce sync.Once
	pages     []Value
}

type xref struct {
	ptr      objptr
	inStream bool
	stream   objptr
	offset   int64
}

// Open opens the named file and returns a Reader for it. The caller owns
// the returned file and should close it when done with the Reader.
func Open(file string) (*os.File, *Reader, error) {
	logger.Debug("Open file", true)
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	logger.Debug(fmt.Sprintf("document: file:%s -- opened (size=%d)", file, fi.Size()), true)
	reader, err := NewReader(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, reader, nil
}

// Parse returns a Reader for a PDF held in memory.
func Parse(data []byte) (*Reader, error) {
	return NewReader(bytes.NewReader(data), int64(len(data)))
}

// NewReader opens a file for reading, using the data in f with the given total size.
//
// The cross-reference data named by startxref is used when it validates.
// Otherwise the file is scanned for object definitions and the trailer is
// rebuilt from what the scan finds.
func NewReader(f io.ReaderAt, size int64) (*Reader, error) {
	if size <= 0 {
		logger.Error("not a PDF file: empty")
		return nil, &UnresolvableDocument{Reason: "not a PDF file: empty"}
	}

	logger.Debug("Checking Header", true)
	if err := CheckHeader(f); err != nil {
		logger.Debug(fmt.Sprintf("header check failed, continuing: %v", err), true)
	}

	logger.Debug("Checking End of file Marker", true)
	if err := ValidateEOFMarker(f, size); err != nil {
		logger.Debug(fmt.Sprintf("EOF marker check failed, continuing: %v", err), true)
	}

	r := &Reader{
		f:       f,
		end:     size,
		objects: make(map[objptr]object),
		fonts:   make(map[objptr]*fontEntry),
	}

	if err := r.readPrimaryXref(size); err != nil {
		logger.Error(fmt.Sprintf("cross-reference data unusable, scanning for objects: %v", err))
		if err := r.rebuild(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// readPrimaryXref follows startxref, reads the cross-reference chain and
// checks that it leads to a catalog.
func (r *Reader) readPrimaryXref(size int64) error {
	logger.Debug("Checking Startxref", true)
	startxref, err := FindStartXref(r.f, size)
	if err != nil {
		return err
	}
	if startxref <= 0 || startxref >= size {
		return fmt.Errorf("startxref %d outside file", startxref)
	}

	logger.Debug("Checking xref table + trailer", true)
	table, trailerptr, trailer, err := r.readXref(startxref)
	if err != nil {
		return err
	}
	r.xref = table
	r.trailer = trailer
	r.trailerptr = trailerptr

	repaired, invalid := r.validateAndRepairXrefEntries(r.xref)
	if repaired > 0 {
		logger.Debug(fmt.Sprintf("xref: repaired %d entries by local scan", repaired), true)
	}
	if invalid > 0 {
		logger.Error(fmt.Sprintf("xref: %d entries point at no object, patching from full scan", invalid))
		r.patchFromScan()
	}

	if r.Trailer().Key("Root").Kind() != Dict {
		return errors.New("trailer /Root does not resolve to a dictionary")
	}
	return nil
}

// CheckHeader validates the PDF header at the beginning of the file.
// It accepts "%PDF-x.y" with a version of 1.0–1.7 or 2.0, possibly preceded
// by a little garbage.
func CheckHeader(f io.ReaderAt) error {
	buf := make([]byte, 1024)
	n, err := f.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		logger.Error(fmt.Sprintf("Failed to read initial bytes for header check: %v", err))
		return err
	}
	if n == 0 {
		return errors.New("not a PDF file: empty")
	}
	buf = buf[:n]
	p := bytes.Index(buf, []byte("%PDF-"))
	if p < 0 {
		return errors.New("not a PDF file: missing %PDF- header")
	}

	line := buf[p:]
	if lineEnd := bytes.IndexAny(line, "\r\n"); lineEnd >= 0 {
		line = line[:lineEnd]
	}
	line = bytes.TrimRight(line, " \t\x00")

	var major, minor int
	if _, err := fmt.Sscanf(string(line), "%%PDF-%d.%d", &major, &minor); err != nil {
		return fmt.Errorf("not a PDF file: malformed version %q", line)
	}
	if !((major == 1 && minor >= 0 && minor <= 7) || (major == 2 && minor == 0)) {
		return fmt.Errorf("unsupported PDF version %d.%d", major, minor)
	}
	logger.Debug(fmt.Sprintf("header: PDF-%d.%d", major, minor), true)
	return nil
}

// ValidateEOFMarker checks the last chunk of the file for the "%%EOF" marker.
func ValidateEOFMarker(f io.ReaderAt, size int64) error {
	const endChunk = 1024
	start := size - endChunk
	if start < 0 {
		start = 0
	}
	buf := make([]byte, size-start)
	n, err := f.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return err
	}
	buf = bytes.TrimRight(buf[:n], "\r\n\t \x00")
	if !bytes.HasSuffix(buf, []byte("%%EOF")) {
		return errors.New("missing %%EOF marker")
	}
	return nil
}

// FindStartXref locates and parses the "startxref" pointer near the end of the file.
// Returns the byte offset where the cross-reference table/stream begins.
func FindStartXref(f io.ReaderAt, size int64) (startxref int64, err error) {
	const endChunk = 1024
	start := size - endChunk
	if start < 0 {
		start = 0
	}
	buf := make([]byte, size-start)
	n, err := f.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return 0, err
	}
	buf = buf[:n]
	i := findLastLine(buf, "startxref")
	if i < 0 {
		return 0, errors.New("malformed PDF file: missing final startxref")
	}
	pos := start + int64(i)
	b := newBuffer(io.NewSectionReader(f, pos, size-pos), pos)
	b.allowEOF = true
	defer catch(&err)

	if tok := b.readToken(); tok != keyword("startxref") {
		return 0, fmt.Errorf("malformed PDF file: missing startxref: %v", tok)
	}
	tok := b.readToken()
	startxref, ok := tok.(int64)
	if !ok {
		return 0, fmt.Errorf("malformed PDF file: startxref not followed by integer, found %v", tok)
	}
	logger.Debug(fmt.Sprintf("xref: FindStartXref -- startxref=%d", startxref), true)
	return startxref, nil
}

// Trailer returns the file's Trailer value.
func (r *Reader) Trailer() Value {
	return Value{r, r.trailerptr, r.trailer}
}

// Recovered reports whether the cross-reference table was rebuilt by
// scanning the file for object definitions.
func (r *Reader) Recovered() bool {
	return r.recovered
}

// Object returns the indirect object with the given number and generation,
// or a null Value if it does not exist.
func (r *Reader) Object(id uint32, gen uint16) Value {
	return r.resolve(objptr{}, objptr{id, gen})
}

// A Value is a single PDF value, such as an integer, dictionary, or array.
// The zero Value is a PDF null (Kind() == Null, IsNull() = true).
type Value struct {
	r    *Reader
	ptr  objptr
	data interface{}
}

// IsNull reports whether the value is a null. It is equivalent to Kind() == Null.
func (v Value) IsNull() bool {
	return v.data == nil
}

// A ValueKind specifies the kind of data underlying a Value.
type ValueKind int

// The PDF value kinds.
const (
	Null ValueKind = iota
	Bool
	Integer
	Real
	String
	Name
	Dict
	Array
	Stream
)

var kindNames = [...]string{"Null", "Bool", "Integer", "Real", "String", "Name", "Dict", "Array", "Stream"}

func (k ValueKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "ValueKind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Kind reports the kind of value underlying v.
func (v Value) Kind() ValueKind {
	switch v.data.(type) {
	default:
		return Null
	case bool:
		return Bool
	case int64:
		return Integer
	case float64:
		return Real
	case string:
		return String
	case name:
		return Name
	case dict:
		return Dict
	case array:
		return Array
	case stream:
		return Stream
	}
}

// String returns a textual representation of the value v.
// Note that String is not the accessor for values with Kind() == String.
// To access such values, see RawString, Text, and TextFromUTF16.
func (v Value) String() string {
	return objfmt(v.data)
}

func objfmt(x interface{}) string {
	switch x := x.(type) {
	default:
		return fmt.Sprint(x)
	case string:
		if isPDFDocEncoded(x) {
			return strconv.Quote(pdfDocDecode(x))
		}
		if isUTF16(x) {
			return strconv.Quote(utf16Decode(x[2:]))
		}
		return strconv.Quote(x)
	case name:
		return "/" + string(x)
	case dict:
		var keys []string
		for k := range x {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteString("<<")
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString("/")
			buf.WriteString(k)
			buf.WriteString(" ")
			buf.WriteString(objfmt(x[name(k)]))
		}
		buf.WriteString(">>")
		return buf.String()

	case array:
		var buf bytes.Buffer
		buf.WriteString("[")
		for i, elem := range x {
			if i > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString(objfmt(elem))
		}
		buf.WriteString("]")
		return buf.String()

	case stream:
		return fmt.Sprintf("%v@%d", objfmt(x.hdr), x.offset)

	case objptr:
		return fmt.Sprintf("%d %d R", x.id, x.gen)

	case objdef:
		return fmt.Sprintf("{%d %d obj}%v", x.ptr.id, x.ptr.gen, objfmt(x.obj))
	}
}

// Bool returns v's boolean value.
// If v.Kind() != Bool, Bool returns false.
func (v Value) Bool() bool {
	x, _ := v.data.(bool)
	return x
}

// Int64 returns v's int64 value.
// If v.Kind() != Int64, Int64 returns 0.
func (v Value) Int64() int64 {
	x, _ := v.data.(int64)
	return x
}

// Float64 returns v's float64 value, converting from integer if necessary.
// If v.Kind() != Float64 and v.Kind() != Int64, Float64 returns 0.
func (v Value) Float64() float64 {
	switch x := v.data.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	}
	return 0
}

// RawString returns v's string value.
// If v.Kind() != String, RawString returns the empty string.
func (v Value) RawString() string {
	x, _ := v.data.(string)
	return x
}

// Text returns v's string value interpreted as a “text string” (defined in the PDF reference)
// and converted to UTF-8.
// If v.Kind() != String, Text returns the empty string.
func (v Value) Text() string {
	x, ok := v.data.(string)
	if !ok {
		return ""
	}
	if isUTF16(x) {
		return utf16Decode(x[2:])
	}
	if isPDFDocEncoded(x) {
		return pdfDocDecode(x)
	}
	return x
}

// TextFromUTF16 returns v's string value interpreted as big-endian UTF-16
// and then converted to UTF-8.
// If v.Kind() != String or if the data is not valid UTF-16, TextFromUTF16 returns
// the empty string.
func (v Value) TextFromUTF16() string {
	x, ok := v.data.(string)
	if !ok || x == "" || len(x)%2 == 1 {
		return ""
	}
	return utf16Decode(x)
}

// Name returns v's name value.
// If v.Kind() != Name, Name returns the empty string.
// The returned name does not include the leading slash:
// if v corresponds to the name written using the syntax /Helvetica,
// Name() == "Helvetica".
func (v Value) Name() string {
	x, _ := v.data.(name)
	return string(x)
}

// Key returns the value associated with the given name key in the dictionary v.
// Like the result of the Name method, the key should not include a leading slash.
// If v is a stream, Key applies to the stream's header dictionary.
// If v.Kind() != Dict and v.Kind() != Stream, Key returns a null Value.
func (v Value) Key(key string) Value {
	x, ok := v.data.(dict)
	if !ok {
		strm, ok := v.data.(stream)
		if !ok {
			return Value{}
		}
		x = strm.hdr
	}
	return v.r.resolve(v.ptr, x[name(key)])
}

// Keys returns a sorted list of the keys in the dictionary v.
// If v is a stream, Keys applies to the stream's header dictionary.
// If v.Kind() != Dict and v.Kind() != Stream, Keys returns nil.
func (v Value) Keys() []string {
	x, ok := v.data.(dict)
	if !ok {
		strm, ok := v.data.(stream)
		if !ok {
			return nil
		}
		x = strm.hdr
	}
	keys := []string{} // not nil
	for k := range x {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}

// Index returns the i'th element in the array v.
// If v.Kind() != Array or if i is outside the array bounds,
// Index returns a null Value.
func (v Value) Index(i int) Value {
	x, ok := v.data.(array)
	if !ok || i < 0 || i >= len(x) {
		return Value{}
	}
	return v.r.resolve(v.ptr, x[i])
}

// Len returns the length of the array v.
// If v.Kind() != Array, Len returns 0.
func (v Value) Len() int {
	x, _ := v.data.(array)
	return len(x)
}

// indirectKey reports whether the raw entry key of dictionary v is an
// indirect reference, and returns the reference.
func (v Value) indirectKey(key string) (objptr, bool) {
	x, ok := v.data.(dict)
	if !ok {
		strm, ok := v.data.(stream)
		if !ok {
			return objptr{}, false
		}
		x = strm.hdr
	}
	ptr, ok := x[name(key)].(objptr)
	return ptr, ok
}

func (v Value) mismatch(want ValueKind) error {
	return &TypeMismatch{Want: want, Got: v.Kind()}
}

// AsBool returns v's boolean value or a *TypeMismatch.
func (v Value) AsBool() (bool, error) {
	x, ok := v.data.(bool)
	if !ok {
		return false, v.mismatch(Bool)
	}
	return x, nil
}

// AsInt64 returns v's integer value or a *TypeMismatch.
func (v Value) AsInt64() (int64, error) {
	x, ok := v.data.(int64)
	if !ok {
		return 0, v.mismatch(Integer)
	}
	return x, nil
}

// AsFloat64 returns v's numeric value, converting integers, or a *TypeMismatch.
func (v Value) AsFloat64() (float64, error) {
	switch x := v.data.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	}
	return 0, v.mismatch(Real)
}

// AsName returns v's name value or a *TypeMismatch.
func (v Value) AsName() (string, error) {
	x, ok := v.data.(name)
	if !ok {
		return "", v.mismatch(Name)
	}
	return string(x), nil
}

// AsRawString returns v's string bytes or a *TypeMismatch.
func (v Value) AsRawString() (string, error) {
	x, ok := v.data.(string)
	if !ok {
		return "", v.mismatch(String)
	}
	return x, nil
}

// AsDict returns v unchanged if it is a dictionary, or a *TypeMismatch.
func (v Value) AsDict() (Value, error) {
	if v.Kind() != Dict {
		return Value{}, v.mismatch(Dict)
	}
	return v, nil
}

// AsArray returns v unchanged if it is an array, or a *TypeMismatch.
func (v Value) AsArray() (Value, error) {
	if v.Kind() != Array {
		return Value{}, v.mismatch(Array)
	}
	return v, nil
}

// resolve dereferences x if it is an indirect reference. Loaded objects are
// memoised, so resolving the same reference twice returns the same data
// without touching the file again. A reference that cannot be loaded
// resolves to null.
func (r *Reader) resolve(parent objptr, x interface{}) Value {
	if ptr, ok := x.(objptr); ok {
		if r == nil {
			return Value{}
		}
		obj, err := r.lookup(ptr)
		if err != nil {
			logger.Error(fmt.Sprintf("object %d %d R: %v", ptr.id, ptr.gen, err))
			return Value{}
		}
		x = obj
		parent = ptr
	}

	switch x := x.(type) {
	case nil, bool, int64, float64, name, dict, array, stream, string:
		return Value{r, parent, x}
	default:
		logger.Error(fmt.Sprintf("unexpected value type %T in resolve", x))
		return Value{}
	}
}

// lookup returns the object for ptr from the cache, loading it on first use.
// Failures are cached as null so every caller sees the same result.
func (r *Reader) lookup(ptr objptr) (object, error) {
	r.mu.RLock()
	obj, ok := r.objects[ptr]
	r.mu.RUnlock()
	if ok {
		return obj, nil
	}

	obj, err := r.load(ptr)

	r.mu.Lock()
	if prev, ok := r.objects[ptr]; ok {
		obj, err = prev, nil
	} else {
		r.objects[ptr] = obj
	}
	r.mu.Unlock()
	return obj, err
}

// maxExtends bounds the /Extends chain of an object stream.
const maxExtends = 32

func (r *Reader) load(ptr objptr) (obj object, err error) {
	if ptr.id >= uint32(len(r.xref)) {
		return nil, nil
	}
	xr := r.xref[ptr.id]
	if xr.ptr != ptr {
		return nil, nil
	}
	if xr.inStream {
		return r.loadFromObjStm(ptr, xr)
	}
	if xr.offset <= 0 {
		return nil, nil
	}

	r.reads.Add(1)
	defer catch(&err)
	b := newBuffer(io.NewSectionReader(r.f, xr.offset, r.end-xr.offset), xr.offset)
	def, ok := b.readObject().(objdef)
	if !ok {
		return nil, &MalformedObject{ID: ptr.id, Gen: ptr.gen, Offset: xr.offset, Msg: "no object definition at offset"}
	}
	if def.ptr.id != ptr.id {
		return nil, &MalformedObject{ID: ptr.id, Gen: ptr.gen, Offset: xr.offset,
			Msg: fmt.Sprintf("found object %d %d instead", def.ptr.id, def.ptr.gen)}
	}
	if DebugOn {
		if d, ok := def.obj.(dict); ok {
			logger.Debug(fmt.Sprintf("object: %d %d (%v) at %d", ptr.id, ptr.gen, objfmt(d["Type"]), xr.offset))
		}
	}
	return def.obj, nil
}

// loadFromObjStm reads a compressed object out of its object stream,
// following /Extends when the stream does not list it.
func (r *Reader) loadFromObjStm(ptr objptr, xr xref) (obj object, err error) {
	// Object streams are never themselves compressed.
	if xr.stream.id == ptr.id || int(xr.stream.id) >= len(r.xref) || r.xref[xr.stream.id].inStream {
		return nil, &MalformedObject{ID: ptr.id, Gen: ptr.gen, Msg: "invalid object stream reference"}
	}
	container, err := r.lookup(xr.stream)
	if err != nil {
		return nil, err
	}
	strm := Value{r, xr.stream, container}
	for hops := 0; hops < maxExtends; hops++ {
		if strm.Kind() != Stream || strm.Key("Type").Name() != "ObjStm" {
			return nil, &MalformedObject{ID: ptr.id, Gen: ptr.gen, Msg: "container is not an object stream"}
		}
		n := int(strm.Key("N").Int64())
		first := strm.Key("First").Int64()
		if first <= 0 {
			return nil, &MalformedObject{ID: ptr.id, Gen: ptr.gen, Msg: "object stream missing /First"}
		}
		data, err := strm.Data()
		if err != nil {
			return nil, err
		}
		r.reads.Add(1)
		if obj, found, err := findInObjStm(data, n, first, ptr.id); err != nil || found {
			return obj, err
		}
		strm = strm.Key("Extends")
	}
	return nil, &MalformedObject{ID: ptr.id, Gen: ptr.gen, Msg: "object not found in object stream"}
}

func findInObjStm(data []byte, n int, first int64, id uint32) (obj object, found bool, err error) {
	defer catch(&err)
	b := newBuffer(bytes.NewReader(data), 0)
	b.allowEOF = true
	for i := 0; i < n; i++ {
		oid, _ := b.readToken().(int64)
		off, _ := b.readToken().(int64)
		if uint32(oid) == id {
			b.seekForward(first + off)
			return b.readObject(), true, nil
		}
	}
	return nil, false, nil
}

// objStmMembers lists the object numbers stored in an object stream.
func objStmMembers(data []byte, n int) (ids []uint32, err error) {
	defer catch(&err)
	b := newBuffer(bytes.NewReader(data), 0)
	b.allowEOF = true
	for i := 0; i < n; i++ {
		oid, ok1 := b.readToken().(int64)
		_, ok2 := b.readToken().(int64)
		if !ok1 || !ok2 {
			break
		}
		ids = append(ids, uint32(oid))
	}
	return ids, nil
}

type errorReadCloser struct {
	err error
}

func (e *errorReadCloser) Read([]byte) (int, error) {
	return 0, e.err
}

func (e *errorReadCloser) Close() error {
	return e.err
}

// Reader returns the decoded data contained in the stream v.
// If v.Kind() != Stream, or the data cannot be decoded, Reader returns a
// ReadCloser that responds to all reads with the error.
func (v Value) Reader() io.ReadCloser {
	data, err := v.Data()
	if err != nil {
		return &errorReadCloser{err}
	}
	return io.NopCloser(bytes.NewReader(data))
}

// Data returns the decoded data contained in the stream v, applying every
// filter in its /Filter entry in order.
func (v Value) Data() ([]byte, error) {
	x, ok := v.data.(stream)
	if !ok {
		return nil, v.mismatch(Stream)
	}
	raw, err := v.r.rawStream(v, x)
	if err != nil {
		return nil, err
	}
	filters, params := v.filterChain()
	return decodeFilters(raw, filters, params)
}

// filterChain returns the filter names of stream v with their parameters.
func (v Value) filterChain() ([]string, []Value) {
	filter := v.Key("Filter")
	param := v.Key("DecodeParms")
	if param.IsNull() {
		param = v.Key("DP")
	}
	var filters []string
	var params []Value
	switch filter.Kind() {
	case Name:
		filters = append(filters, filter.Name())
		if param.Kind() == Array {
			param = param.Index(0)
		}
		params = append(params, param)
	case Array:
		for i := 0; i < filter.Len(); i++ {
			filters = append(filters, filter.Index(i).Name())
			if param.Kind() == Array {
				params = append(params, param.Index(i))
			} else if i == 0 {
				params = append(params, param)
			} else {
				params = append(params, Value{})
			}
		}
	}
	return filters, params
}

// rawStream returns the undecoded body of a stream. The declared /Length is
// used when the endstream keyword follows it; otherwise the body ends at the
// next endstream keyword.
func (r *Reader) rawStream(v Value, x stream) ([]byte, error) {
	if r == nil {
		return nil, &MalformedObject{Msg: "stream without a document"}
	}
	length := int64(-1)
	if lv := r.resolve(v.ptr, x.hdr["Length"]); lv.Kind() == Integer {
		length = lv.Int64()
	}
	if length >= 0 && x.offset+length <= r.end && r.endstreamAt(x.offset+length) {
		buf := make([]byte, length)
		if _, err := r.f.ReadAt(buf, x.offset); err != nil && err != io.EOF {
			return nil, err
		}
		return buf, nil
	}

	end := r.findEndstream(x.offset)
	if end < 0 {
		return nil, &MalformedObject{ID: x.ptr.id, Gen: x.ptr.gen, Offset: x.offset, Msg: "stream has no usable /Length and no endstream"}
	}
	logger.Debug(fmt.Sprintf("stream: obj %d %d -- /Length %d unusable, body ends at %d", x.ptr.id, x.ptr.gen, length, end))
	buf := make([]byte, end-x.offset)
	if _, err := r.f.ReadAt(buf, x.offset); err != nil && err != io.EOF {
		return nil, err
	}
	return trimEOL(buf), nil
}

func (r *Reader) endstreamAt(off int64) bool {
	buf := make([]byte, 32)
	n, err := r.f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return false
	}
	return bytes.HasPrefix(bytes.TrimLeft(buf[:n], "\r\n\t \x00\f"), []byte("endstream"))
}

// findEndstream returns the offset of the next endstream keyword at or
// after off, or -1.
func (r *Reader) findEndstream(off int64) int64 {
	const chunk = 64 << 10
	kw := []byte("endstream")
	buf := make([]byte, chunk+len(kw))
	for pos := off; pos < r.end; pos += chunk {
		n, err := r.f.ReadAt(buf, pos)
		if err != nil && err != io.EOF {
			return -1
		}
		if i := bytes.Index(buf[:n], kw); i >= 0 {
			return pos + int64(i)
		}
		if n < len(buf) {
			break
		}
	}
	return -1
}

func trimEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}
