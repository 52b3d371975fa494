// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"

	"github.com/sassoftware/pdf-xtract/logger"
)

// readXref reads the cross-reference section at startxref and every older
// section reachable through /Prev. Tables and streams may be mixed along the
// chain. Entries from newer sections are never overwritten by older ones.
func (r *Reader) readXref(startxref int64) ([]xref, objptr, dict, error) {
	var (
		table      []xref
		trailer    dict
		trailerptr objptr
	)
	seen := make(map[int64]bool)
	for off, first := startxref, true; ; first = false {
		if seen[off] {
			logger.Error(fmt.Sprintf("xref: /Prev chain loops back to offset %d", off))
			break
		}
		seen[off] = true

		sect, ptr, hdr, err := r.readXrefSection(off)
		if err != nil {
			if first {
				return nil, objptr{}, nil, err
			}
			logger.Error(fmt.Sprintf("xref: older section at %d unreadable, keeping newer data: %v", off, err))
			break
		}
		table = mergeOlderXref(table, sect)
		if first {
			trailer, trailerptr = hdr, ptr
		} else {
			for k, v := range hdr {
				if _, ok := trailer[k]; !ok && k != "Prev" && k != "XRefStm" {
					trailer[k] = v
				}
			}
		}

		prev, ok := hdr["Prev"].(int64)
		if !ok || prev <= 0 || prev >= r.end {
			break
		}
		logger.Debug(fmt.Sprintf("xref: following /Prev to %d", prev), true)
		off = prev
	}

	validateTrailerSize(&table, trailer)
	return table, trailerptr, trailer, nil
}

// readXrefSection reads one cross-reference table (with its trailer and any
// hybrid /XRefStm) or one cross-reference stream at off.
func (r *Reader) readXrefSection(off int64) (sect []xref, ptr objptr, hdr dict, err error) {
	defer catch(&err)
	b := newBuffer(io.NewSectionReader(r.f, off, r.end-off), off)
	tok := b.readToken()
	if tok == keyword("xref") {
		logger.Debug("Found Xref Table", true)
		sect, err = readXrefTableData(b, nil)
		if err != nil {
			return nil, objptr{}, nil, err
		}
		trailer, ok := b.readObject().(dict)
		if !ok {
			return nil, objptr{}, nil, errors.New("xref table not followed by trailer dictionary")
		}
		sect, err = r.handleTrailerXRefStm(sect, trailer)
		if err != nil {
			logger.Error(fmt.Sprintf("xref: ignoring /XRefStm: %v", err))
		}
		return sect, objptr{}, trailer, nil
	}
	if _, ok := tok.(int64); ok {
		b.unreadToken(tok)
		logger.Debug("Found Xref Stream", true)
		return r.readXrefStream(b)
	}
	return nil, objptr{}, nil, fmt.Errorf("no cross-reference table or stream at %d: found %v", off, tok)
}

func (r *Reader) readXrefStream(b *buffer) ([]xref, objptr, dict, error) {
	strmptr, strm, err := parseXrefStreamObject(b)
	if err != nil {
		return nil, objptr{}, nil, err
	}
	size, err := xrefSize(strm)
	if err != nil {
		return nil, objptr{}, nil, err
	}
	table, err := readXrefStreamData(r, strm, nil, size)
	if err != nil {
		return nil, objptr{}, nil, err
	}
	return table, strmptr, strm.hdr, nil
}

// parseXrefStreamObject reads one object from b and checks that it is an
// /XRef stream.
func parseXrefStreamObject(b *buffer) (objptr, stream, error) {
	od, ok := b.readObject().(objdef)
	if !ok {
		return objptr{}, stream{}, errors.New("cross-reference stream: object definition not found")
	}
	strm, ok := od.obj.(stream)
	if !ok {
		return objptr{}, stream{}, fmt.Errorf("cross-reference stream not found: %v", objfmt(od))
	}
	if strm.hdr["Type"] != name("XRef") {
		return objptr{}, stream{}, errors.New("cross-reference stream does not have type XRef")
	}
	return od.ptr, strm, nil
}

// xrefSize returns the /Size from an xref stream header.
func xrefSize(strm stream) (int64, error) {
	if size, ok := strm.hdr["Size"].(int64); ok && size >= 0 {
		return size, nil
	}
	return 0, errors.New("cross-reference stream missing /Size")
}

func readXrefStreamData(r *Reader, strm stream, table []xref, size int64) ([]xref, error) {
	index, _ := strm.hdr["Index"].(array)
	if index == nil {
		index = array{int64(0), size}
	}
	if len(index)%2 != 0 {
		return nil, fmt.Errorf("invalid Index array %v", objfmt(index))
	}

	ww, ok := strm.hdr["W"].(array)
	if !ok {
		return nil, errors.New("xref stream missing W array")
	}
	var w []int
	for _, x := range ww {
		i, ok := x.(int64)
		if !ok || i < 0 || i > 8 {
			return nil, fmt.Errorf("invalid W array %v", objfmt(ww))
		}
		w = append(w, int(i))
	}
	if len(w) < 3 {
		return nil, fmt.Errorf("invalid W array %v", objfmt(ww))
	}

	data, err := Value{r, strm.ptr, strm}.Data()
	if err != nil {
		return nil, fmt.Errorf("reading xref stream: %w", err)
	}
	wtotal := w[0] + w[1] + w[2]
	for len(index) > 0 {
		start, ok1 := index[0].(int64)
		n, ok2 := index[1].(int64)
		if !ok1 || !ok2 || start < 0 || n < 0 {
			return nil, fmt.Errorf("malformed Index pair %v %v", objfmt(index[0]), objfmt(index[1]))
		}
		index = index[2:]
		for i := 0; i < int(n); i++ {
			if len(data) < wtotal {
				logger.Error(fmt.Sprintf("xref stream: data ends after %d of %d entries", i, n))
				return table, nil
			}
			buf := data[:wtotal]
			data = data[wtotal:]
			v1 := decodeInt(buf[0:w[0]])
			if w[0] == 0 {
				v1 = 1
			}
			v2 := decodeInt(buf[w[0] : w[0]+w[1]])
			v3 := decodeInt(buf[w[0]+w[1] : wtotal])
			x := int(start) + i
			switch v1 {
			case 0:
				setIfEmpty(&table, x, xref{ptr: objptr{0, 65535}})
			case 1:
				setIfEmpty(&table, x, xref{ptr: objptr{uint32(x), uint16(v3)}, offset: int64(v2)})
			case 2:
				setIfEmpty(&table, x, xref{ptr: objptr{uint32(x), 0}, inStream: true, stream: objptr{uint32(v2), 0}, offset: int64(v3)})
			default:
				if DebugOn {
					logger.Debug(fmt.Sprintf("xref stream: ignoring entry type %d for object %d", v1, x))
				}
			}
		}
	}
	return table, nil
}

func decodeInt(b []byte) int {
	x := 0
	for _, c := range b {
		x = x<<8 | int(c)
	}
	return x
}

// validateTrailerSize trims the xref table to the declared /Size in trailer.
func validateTrailerSize(table *[]xref, trailer dict) {
	size, ok := trailer[name("Size")].(int64)
	if !ok || size <= 0 {
		logger.Debug("trailer missing /Size entry")
		return
	}
	if size < int64(len(*table)) {
		*table = (*table)[:size]
	}
}

// ensureLen makes sure s has length at least n (growing capacity if needed)
// and returns the possibly-reallocated slice.
func ensureLen[T any](s []T, n int) []T {
	if n <= len(s) {
		return s
	}
	if cap(s) < n {
		ns := make([]T, n)
		copy(ns, s)
		return ns
	}
	return s[:n]
}

// setIfEmpty sets table[x] to val only if the slot is currently empty.
func setIfEmpty(table *[]xref, x int, val xref) {
	if x < 0 {
		return
	}
	*table = ensureLen(*table, x+1)
	if (*table)[x].ptr == (objptr{}) {
		(*table)[x] = val
	}
}

// mergeOlderXref fills the empty slots of newer with the entries of an
// older section.
func mergeOlderXref(newer, older []xref) []xref {
	for i, e := range older {
		if e.ptr != (objptr{}) {
			setIfEmpty(&newer, i, e)
		}
	}
	return newer
}

func readXrefTableData(b *buffer, table []xref) ([]xref, error) {
	for {
		tok := b.readToken()
		if tok == keyword("trailer") {
			break
		}
		start, ok1 := tok.(int64)
		count, ok2 := b.readToken().(int64)
		if !ok1 || !ok2 || start < 0 || count < 0 {
			return nil, fmt.Errorf("malformed xref table subsection header %v", tok)
		}
		for i := 0; i < int(count); i++ {
			off, okOff := b.readToken().(int64)
			gen, okGen := b.readToken().(int64)
			alloc, okAlloc := b.readToken().(keyword)
			if !okOff || !okGen || !okAlloc {
				return nil, fmt.Errorf("malformed xref entry in subsection starting %d", start)
			}
			idx := int(start) + i
			switch alloc {
			case "n":
				setIfEmpty(&table, idx, xref{ptr: objptr{uint32(idx), uint16(gen)}, offset: off})
			case "f":
				if idx > 0 {
					setIfEmpty(&table, idx, xref{ptr: objptr{0, 65535}})
				} else {
					table = ensureLen(table, idx+1)
				}
			default:
				return nil, fmt.Errorf("malformed xref table: unexpected entry type %v", alloc)
			}
		}
	}
	return table, nil
}

// mergeXrefTables merges the in-use entries of a hybrid file's stream into
// the table of the same section. The stream is authoritative: it lists the
// compressed objects that the table marks free.
func mergeXrefTables(dest []xref, src []xref) []xref {
	dest = ensureLen(dest, len(src))
	for i, s := range src {
		if s.ptr.id == 0 {
			continue
		}
		dest[i] = s
	}
	return dest
}

// handleTrailerXRefStm parses the /XRefStm of a hybrid file and merges it
// into the table of the same section. A stream whose entries mostly point
// nowhere is rejected.
func (r *Reader) handleTrailerXRefStm(table []xref, trailer dict) ([]xref, error) {
	xrefstm := trailer[name("XRefStm")]
	if xrefstm == nil {
		return table, nil
	}
	off, ok := xrefstm.(int64)
	if !ok || off <= 0 || off >= r.end {
		return table, fmt.Errorf("XRefStm %v is not a valid offset", objfmt(xrefstm))
	}
	b := newBuffer(io.NewSectionReader(r.f, off, r.end-off), off)
	srcTable, _, _, err := r.readXrefStream(b)
	if err != nil {
		return table, fmt.Errorf("parse XRefStm at %d: %w", off, err)
	}

	_, invalid := r.validateAndRepairXrefEntries(srcTable)
	total := 0
	for _, e := range srcTable {
		if e.ptr.id != 0 && !e.inStream {
			total++
		}
	}
	if total > 0 && float64(invalid)/float64(total) > 0.30 {
		return table, fmt.Errorf("XRefStm at %d appears invalid: %d/%d invalid entries", off, invalid, total)
	}
	return mergeXrefTables(table, srcTable), nil
}

var (
	objHeaderRE = regexp.MustCompile(`(\d+)[\x00\t\n\f\r ]+(\d+)[\x00\t\n\f\r ]+obj\b`)
	objPrefixRE = regexp.MustCompile(`^[\x00\t\n\f\r ]*(\d+)[\x00\t\n\f\r ]+(\d+)[\x00\t\n\f\r ]+obj\b`)
)

// isLikelyObjectAt reports whether the definition of object id begins at off.
func (r *Reader) isLikelyObjectAt(off int64, id uint32) bool {
	if off <= 0 || off >= r.end {
		return false
	}
	buf := make([]byte, 64)
	n, err := r.f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return false
	}
	m := objPrefixRE.FindSubmatch(buf[:n])
	if m == nil {
		return false
	}
	got, err := strconv.ParseUint(string(m[1]), 10, 32)
	return err == nil && uint32(got) == id
}

// scanForObjectAt searches a +-window around approx for "<id> <gen> obj" and returns found offset or -1.
func (r *Reader) scanForObjectAt(id uint32, gen uint16, approx int64, window int64) int64 {
	start := approx - window
	if start < 0 {
		start = 0
	}
	end := approx + window
	if end > r.end {
		end = r.end
	}
	if end <= start {
		return -1
	}
	buf := make([]byte, end-start)
	n, err := r.f.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return -1
	}
	re := regexp.MustCompile(fmt.Sprintf(`(^|[^0-9])%d[\x00\t\n\f\r ]+%d[\x00\t\n\f\r ]+obj\b`, id, gen))
	loc := re.FindIndex(buf[:n])
	if loc == nil {
		return -1
	}
	found := start + int64(loc[0])
	if buf[loc[0]] < '0' || buf[loc[0]] > '9' {
		found++
	}
	return found
}

// validateAndRepairXrefEntries checks offsets in table and tries to repair with a small-window scan.
// Returns counts: repaired entries and invalid (unrepairable) entries.
func (r *Reader) validateAndRepairXrefEntries(table []xref) (repaired int, invalid int) {
	for i, ent := range table {
		if ent.ptr.id == 0 || ent.inStream || ent.offset == 0 {
			continue
		}
		if r.isLikelyObjectAt(ent.offset, ent.ptr.id) {
			continue
		}
		if found := r.scanForObjectAt(ent.ptr.id, ent.ptr.gen, ent.offset, 1024); found >= 0 {
			table[i].offset = found
			repaired++
			continue
		}
		invalid++
	}
	return repaired, invalid
}

// scanObjects reads the whole file and registers every "N G obj" marker.
// When an object number occurs more than once the last occurrence wins,
// matching the way incremental updates append newer definitions. Markers
// inside stream bodies are skipped.
func (r *Reader) scanObjects() ([]xref, []byte, error) {
	data, err := io.ReadAll(io.NewSectionReader(r.f, 0, r.end))
	if err != nil {
		return nil, nil, err
	}
	var table []xref
	skipUntil := 0
	for _, m := range objHeaderRE.FindAllSubmatchIndex(data, -1) {
		if m[0] < skipUntil {
			continue
		}
		id, err1 := strconv.ParseUint(string(data[m[2]:m[3]]), 10, 32)
		gen, err2 := strconv.ParseUint(string(data[m[4]:m[5]]), 10, 16)
		if err1 != nil || err2 != nil || id == 0 {
			continue
		}
		table = ensureLen(table, int(id)+1)
		table[id] = xref{ptr: objptr{uint32(id), uint16(gen)}, offset: int64(m[0])}
		skipUntil = streamBodyEnd(data, m[1])
	}
	return table, data, nil
}

// streamBodyEnd returns the offset of the endstream keyword when the object
// whose header ends at from carries a stream, or from otherwise.
func streamBodyEnd(data []byte, from int) int {
	rest := data[from:]
	e := bytes.Index(rest, []byte("endobj"))
	s := 0
	for {
		i := bytes.Index(rest[s:], []byte("stream"))
		if i < 0 {
			return from
		}
		s += i
		if s >= 3 && string(rest[s-3:s]) == "end" {
			s += len("stream")
			continue
		}
		break
	}
	if e >= 0 && e < s {
		return from
	}
	es := bytes.Index(rest[s:], []byte("endstream"))
	if es < 0 {
		return from
	}
	return from + s + es
}

// patchFromScan replaces entries that point at no object with the offsets
// found by a full scan, and adds objects the tables did not list.
func (r *Reader) patchFromScan() {
	scanned, _, err := r.scanObjects()
	if err != nil {
		logger.Error(fmt.Sprintf("xref: recovery scan failed: %v", err))
		return
	}
	for i, e := range r.xref {
		if e.ptr.id == 0 || e.inStream || r.isLikelyObjectAt(e.offset, e.ptr.id) {
			continue
		}
		if i < len(scanned) && scanned[i].ptr.id != 0 {
			r.xref[i] = scanned[i]
		} else {
			r.xref[i] = xref{}
		}
	}
	for i, e := range scanned {
		if e.ptr.id != 0 {
			setIfEmpty(&r.xref, i, e)
		}
	}
}

// rebuild replaces the cross-reference table with the result of a full
// scan and reconstructs the trailer.
func (r *Reader) rebuild() error {
	table, data, err := r.scanObjects()
	if err != nil {
		return &UnresolvableDocument{Reason: err.Error()}
	}
	count := 0
	for _, e := range table {
		if e.ptr.id != 0 {
			count++
		}
	}
	if count == 0 {
		return &UnresolvableDocument{Reason: "no object definitions found"}
	}
	logger.Debug(fmt.Sprintf("xref: recovery scan found %d objects", count), true)

	r.mu.Lock()
	r.xref = table
	r.objects = make(map[objptr]object)
	r.mu.Unlock()
	r.recovered = true

	catalog, xrefTrailer := r.registerObjStmMembers()

	if r.trailer != nil && r.Trailer().Key("Root").Kind() == Dict {
		return nil
	}
	r.trailerptr = objptr{}
	if t := recoverTrailer(r, data); t != nil {
		r.trailer = t
		return nil
	}
	if xrefTrailer != nil {
		r.trailer = xrefTrailer
		return nil
	}
	r.trailer = dict{name("Size"): int64(len(r.xref))}
	if catalog != (objptr{}) {
		r.trailer[name("Root")] = catalog
	} else {
		logger.Error("xref: no document catalog found; pages will be searched directly")
	}
	return nil
}

// registerObjStmMembers resolves every scanned object, registers the members
// of object streams that have no direct definition, and returns the last
// catalog and the last cross-reference stream dictionary carrying /Root.
func (r *Reader) registerObjStmMembers() (catalog objptr, xrefTrailer dict) {
	var catalogOff, xrefOff int64 = -1, -1
	direct := make([]xref, len(r.xref))
	copy(direct, r.xref)
	for _, e := range direct {
		if e.ptr.id == 0 {
			continue
		}
		v := r.resolve(objptr{}, e.ptr)
		switch v.Key("Type").Name() {
		case "Catalog":
			if e.offset > catalogOff {
				catalog, catalogOff = e.ptr, e.offset
			}
		case "XRef":
			if s, ok := v.data.(stream); ok && s.hdr["Root"] != nil && e.offset > xrefOff {
				xrefTrailer, xrefOff = s.hdr, e.offset
			}
		case "ObjStm":
			data, err := v.Data()
			if err != nil {
				logger.Error(fmt.Sprintf("xref: object stream %d unreadable: %v", e.ptr.id, err))
				continue
			}
			ids, _ := objStmMembers(data, int(v.Key("N").Int64()))
			for i, id := range ids {
				if id == 0 {
					continue
				}
				setIfEmpty(&r.xref, int(id), xref{ptr: objptr{id, 0}, inStream: true, stream: e.ptr, offset: int64(i)})
			}
		}
	}
	if catalog == (objptr{}) {
		// Catalogs stored in object streams.
		var ids []int
		for i, e := range r.xref {
			if e.inStream {
				ids = append(ids, i)
			}
		}
		sort.Ints(ids)
		for _, i := range ids {
			if r.resolve(objptr{}, r.xref[i].ptr).Key("Type").Name() == "Catalog" {
				catalog = r.xref[i].ptr
			}
		}
	}
	return catalog, xrefTrailer
}

// recoverTrailer returns the last trailer dictionary in data whose /Root
// resolves to a dictionary.
func recoverTrailer(r *Reader, data []byte) dict {
	kw := []byte("trailer")
	for end := len(data); end > 0; {
		i := bytes.LastIndex(data[:end], kw)
		if i < 0 {
			return nil
		}
		end = i
		t, err := parseDictAt(data, i+len(kw))
		if err != nil || t == nil {
			continue
		}
		old := r.trailer
		r.trailer = t
		ok := r.Trailer().Key("Root").Kind() == Dict
		r.trailer = old
		if ok {
			return t
		}
	}
	return nil
}

func parseDictAt(data []byte, off int) (d dict, err error) {
	defer catch(&err)
	b := newBuffer(bytes.NewReader(data[off:]), int64(off))
	b.allowEOF = true
	d, _ = b.readObject().(dict)
	return d, nil
}

// findLastLine searches backwards in buf for the last occurrence of the
// keyword s (e.g. "startxref") that is followed by an end-of-line marker.
//
// Producers often put spaces, tabs or NULs between the keyword and the line
// break, so any run of PDF whitespace is accepted as long as it contains a
// CR or LF:
//
//	startxref\n
//	startxref\r\n
//	startxref␠␠\t\r\n
//	startxref\0\0\n
func findLastLine(buf []byte, s string) int {
	bs := []byte(s)
	for end := len(buf); end > 0; {
		i := bytes.LastIndex(buf[:end], bs)
		if i < 0 {
			return -1
		}
		j := SkipWhitespace(buf, i+len(bs))
		if EndsWithEOL(buf, i+len(bs), j) {
			return i
		}
		end = i
	}
	return -1
}

var wsBits [4]uint64 // 256 bits = 4 * 64

func init() {
	for _, b := range []byte{0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20} {
		wsBits[b>>6] |= 1 << (b & 63)
	}
}

// isWhitespace reports whether b is one of the six whitespace characters
// of PDF syntax: 00, 09, 0A, 0C, 0D, 20.
func isWhitespace(b byte) bool {
	return (wsBits[b>>6] & (1 << (b & 63))) != 0
}

// SkipWhitespace advances j past all whitespace.
func SkipWhitespace(buf []byte, j int) int {
	for j < len(buf) && isWhitespace(buf[j]) {
		j++
	}
	return j
}

// EndsWithEOL reports whether the whitespace run buf[start:end] contains a
// CR or LF.
func EndsWithEOL(buf []byte, start, end int) bool {
	for _, c := range buf[start:end] {
		if c == '\n' || c == '\r' {
			return true
		}
	}
	return false
}
