// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/sassoftware/pdf-xtract/logger"
)

// Meta is the unified, metadata model (Info + XMP fields).
type Meta struct {
	Title        string `json:"title,omitempty"`
	Author       string `json:"author,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Keywords     string `json:"keywords,omitempty"`
	Creator      string `json:"creator,omitempty"`
	Producer     string `json:"producer,omitempty"`
	CreationDate string `json:"creationDate,omitempty"`
	ModDate      string `json:"modDate,omitempty"`
}

// MetadataFull is Meta plus the structural facts about the file.
type MetadataFull struct {
	Meta

	PDFVersion              string `json:"pdf:PDFVersion,omitempty"`
	HasXMP                  bool   `json:"pdf:hasXMP"`
	HasCollection           bool   `json:"pdf:hasCollection"`
	Encrypted               bool   `json:"pdf:encrypted"`
	Recovered               bool   `json:"pdf:recovered"`
	NPages                  int    `json:"xmpTPg:NPages,omitempty"`
	ContainsNonEmbeddedFont bool   `json:"pdf:containsNonEmbeddedFont"`
	Language                string `json:"language,omitempty"`

	AccessPermission AccessPermission `json:"access_permission"`
}

// AccessPermission is the decoded /P entry of a Standard security handler.
// Documents without /Encrypt grant everything.
type AccessPermission struct {
	CanPrint                bool `json:"can_print"`
	CanPrintFaithful        bool `json:"can_print_faithful"`
	CanModify               bool `json:"can_modify"`
	ExtractContent          bool `json:"extract_content"`
	ModifyAnnotations       bool `json:"modify_annotations"`
	FillInForm              bool `json:"fill_in_form"`
	ExtractForAccessibility bool `json:"extract_for_accessibility"`
	AssembleDocument        bool `json:"assemble_document"`
}

// XMP models. Properties may appear as child elements or as attributes of
// rdf:Description, so both forms are decoded.
const (
	nsPDF = "http://ns.adobe.com/pdf/1.3/"
	nsXMP = "http://ns.adobe.com/xap/1.0/"
)

type xmpPacket struct {
	XMLName xml.Name `xml:"xmpmeta"`
	RDF     struct {
		Descriptions []rdfDescription `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# Description"`
	} `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# RDF"`
}

type rdfDescription struct {
	Title       rdfContainer `xml:"http://purl.org/dc/elements/1.1/ title"`
	Description rdfContainer `xml:"http://purl.org/dc/elements/1.1/ description"`
	Creator     rdfContainer `xml:"http://purl.org/dc/elements/1.1/ creator"`

	Producer    string `xml:"http://ns.adobe.com/pdf/1.3/ Producer"`
	Keywords    string `xml:"http://ns.adobe.com/pdf/1.3/ Keywords"`
	CreatorTool string `xml:"http://ns.adobe.com/xap/1.0/ CreatorTool"`
	CreateDate  string `xml:"http://ns.adobe.com/xap/1.0/ CreateDate"`
	ModifyDate  string `xml:"http://ns.adobe.com/xap/1.0/ ModifyDate"`

	Attrs []xml.Attr `xml:",any,attr"`
}

// rdfContainer holds an rdf:Alt, rdf:Seq or rdf:Bag, or a plain value.
type rdfContainer struct {
	Alt   []rdfItem `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# Alt>li"`
	Seq   []rdfItem `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# Seq>li"`
	Bag   []rdfItem `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# Bag>li"`
	Plain string    `xml:",chardata"`
}

type rdfItem struct {
	Lang  string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Value string `xml:",chardata"`
}

// value returns the x-default entry of an Alt, else the first entry of any
// container, else the plain text.
func (c rdfContainer) value() string {
	for _, it := range c.Alt {
		if it.Lang == "x-default" {
			return strings.TrimSpace(it.Value)
		}
	}
	for _, items := range [][]rdfItem{c.Alt, c.Seq, c.Bag} {
		if len(items) > 0 {
			return strings.TrimSpace(items[0].Value)
		}
	}
	return strings.TrimSpace(c.Plain)
}

func (d rdfDescription) attr(space, local string) string {
	for _, a := range d.Attrs {
		if a.Name.Space == space && a.Name.Local == local {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

type xmpFields struct {
	Title, Creator, Subject, Keywords, CreatorTool, Producer, CreateDate, ModifyDate string
}

// merge fills the empty fields of f from g.
func (f *xmpFields) merge(g xmpFields) {
	set := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	set(&f.Title, g.Title)
	set(&f.Creator, g.Creator)
	set(&f.Subject, g.Subject)
	set(&f.Keywords, g.Keywords)
	set(&f.CreatorTool, g.CreatorTool)
	set(&f.Producer, g.Producer)
	set(&f.CreateDate, g.CreateDate)
	set(&f.ModifyDate, g.ModifyDate)
}

// prefer returns a if non-empty after trimming, otherwise b.
func prefer(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

// InfoDict returns the raw /Info dictionary as a Value (may be Null).
func (r *Reader) InfoDict() Value {
	return r.Trailer().Key("Info")
}

// readInfo extracts metadata stored in the PDF's /Info dictionary. Dates
// are normalised to RFC 3339 when they parse.
func (r *Reader) readInfo() Meta {
	logger.Debug("reading Info dictionary", true)
	info := r.InfoDict()
	text := func(key string) string {
		return strings.TrimSpace(info.Key(key).Text())
	}
	return Meta{
		Title:        text("Title"),
		Author:       text("Author"),
		Subject:      text("Subject"),
		Keywords:     text("Keywords"),
		Creator:      text("Creator"),
		Producer:     text("Producer"),
		CreationDate: pdfDate(text("CreationDate")),
		ModDate:      pdfDate(text("ModDate")),
	}
}

var pdfDateRE = regexp.MustCompile(`^(?:D:)?(\d{4})(\d{2})?(\d{2})?(\d{2})?(\d{2})?(\d{2})?(?:([Zz+-])(\d{2})?'?(\d{2})?'?)?$`)

// pdfDate converts a PDF date string (D:YYYYMMDDHHmmSSOHH'mm') to RFC 3339.
// Strings that do not parse are returned unchanged.
func pdfDate(s string) string {
	m := pdfDateRE.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	field := func(i int, def string) string {
		if m[i] == "" {
			return def
		}
		return m[i]
	}
	zone := "Z"
	switch m[7] {
	case "+", "-":
		zone = m[7] + field(8, "00") + ":" + field(9, "00")
	}
	v := fmt.Sprintf("%s-%s-%sT%s:%s:%s%s", m[1], field(2, "01"), field(3, "01"),
		field(4, "00"), field(5, "00"), field(6, "00"), zone)
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return s
	}
	return t.Format(time.RFC3339)
}

// readXMP returns the raw XMP XML from /Root/Metadata (empty string if absent).
func (r *Reader) readXMP() (string, error) {
	md := r.Trailer().Key("Root").Key("Metadata")
	if md.Kind() != Stream {
		logger.Debug("readXMP: no XMP stream present", true)
		return "", nil
	}
	b, err := md.Data()
	if err != nil {
		logger.Error(fmt.Sprintf("readXMP: failed to read XMP stream: %v", err))
		return "", err
	}
	return string(b), nil
}

// parseXMPWithXML decodes the common Dublin Core, PDF and XMP basic
// properties. ok is false when the packet is not well-formed.
func parseXMPWithXML(x string) (f xmpFields, ok bool) {
	var pkt xmpPacket
	dec := xml.NewDecoder(strings.NewReader(x))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	if err := dec.Decode(&pkt); err != nil {
		logger.Debug(fmt.Sprintf("XMP is not well-formed: %v", err), true)
		return xmpFields{}, false
	}

	for _, d := range pkt.RDF.Descriptions {
		f.merge(xmpFields{
			Title:       d.Title.value(),
			Creator:     d.Creator.value(),
			Subject:     d.Description.value(),
			Keywords:    prefer(strings.TrimSpace(d.Keywords), d.attr(nsPDF, "Keywords")),
			Producer:    prefer(strings.TrimSpace(d.Producer), d.attr(nsPDF, "Producer")),
			CreatorTool: prefer(strings.TrimSpace(d.CreatorTool), d.attr(nsXMP, "CreatorTool")),
			CreateDate:  prefer(strings.TrimSpace(d.CreateDate), d.attr(nsXMP, "CreateDate")),
			ModifyDate:  prefer(strings.TrimSpace(d.ModifyDate), d.attr(nsXMP, "ModifyDate")),
		})
	}
	return f, true
}

// xmpFallbackTags lists, per field, the element names searched by
// parseXMPFallback in order.
var xmpFallbackTags = []struct {
	field func(*xmpFields) *string
	tags  []string
}{
	{func(f *xmpFields) *string { return &f.Title }, []string{"dc:title", "pdf:Title", "xmp:Title"}},
	{func(f *xmpFields) *string { return &f.Creator }, []string{"dc:creator", "pdf:Author", "xmp:Author"}},
	{func(f *xmpFields) *string { return &f.Subject }, []string{"dc:description", "pdf:Subject"}},
	{func(f *xmpFields) *string { return &f.Keywords }, []string{"pdf:Keywords", "xmp:Keywords"}},
	{func(f *xmpFields) *string { return &f.CreatorTool }, []string{"xmp:CreatorTool"}},
	{func(f *xmpFields) *string { return &f.Producer }, []string{"pdf:Producer"}},
	{func(f *xmpFields) *string { return &f.CreateDate }, []string{"xmp:CreateDate"}},
	{func(f *xmpFields) *string { return &f.ModifyDate }, []string{"xmp:ModifyDate"}},
}

// parseXMPFallback searches for well-known prefixed elements in a packet
// that encoding/xml rejects.
func parseXMPFallback(xmp string) xmpFields {
	logger.Debug("XMP: falling back to tag search", true)
	get := func(tags []string) string {
		for _, t := range tags {
			open, close := "<"+t+">", "</"+t+">"
			i := strings.Index(xmp, open)
			if i < 0 {
				continue
			}
			body := xmp[i+len(open):]
			if j := strings.Index(body, close); j >= 0 {
				return strings.TrimSpace(stripXMLTags(body[:j]))
			}
		}
		return ""
	}
	var f xmpFields
	for _, e := range xmpFallbackTags {
		*e.field(&f) = get(e.tags)
	}
	return f
}

// stripXMLTags removes simple XML tags from a string.
func stripXMLTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Metadata returns unified metadata with XMP taking precedence over /Info.
func (r *Reader) Metadata() (Meta, error) {
	info := r.readInfo()

	xmpXML, err := r.readXMP()
	if err != nil {
		return Meta{}, err
	}

	var xf xmpFields
	if xmpXML != "" {
		var ok bool
		if xf, ok = parseXMPWithXML(xmpXML); !ok {
			xf = parseXMPFallback(xmpXML)
		}
	}

	return Meta{
		Title:        prefer(xf.Title, info.Title),
		Author:       prefer(xf.Creator, info.Author),
		Subject:      prefer(xf.Subject, info.Subject),
		Keywords:     prefer(xf.Keywords, info.Keywords),
		Creator:      prefer(xf.CreatorTool, info.Creator),
		Producer:     prefer(xf.Producer, info.Producer),
		CreationDate: prefer(xf.CreateDate, info.CreationDate),
		ModDate:      prefer(xf.ModifyDate, info.ModDate),
	}, nil
}

// MetadataJSON writes the full metadata as pretty JSON to the provided writer.
func (r *Reader) MetadataJSON(w io.Writer) error {
	mf, err := r.MetadataFull()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(mf)
}

// headerVersion returns the version from the %PDF- header, which may be
// preceded by junk.
func (r *Reader) headerVersion() string {
	buf := make([]byte, 1024)
	n, _ := r.f.ReadAt(buf, 0)
	line := string(buf[:n])
	i := strings.Index(line, "%PDF-")
	if i < 0 {
		return ""
	}
	line = line[i+len("%PDF-"):]
	if j := strings.IndexAny(line, "\r\n \t%"); j >= 0 {
		line = line[:j]
	}
	return line
}

// version prefers the catalog's /Version, which overrides the header in
// incrementally updated files.
func (r *Reader) version() string {
	v := r.headerVersion()
	if cv := r.Trailer().Key("Root").Key("Version").Name(); cv > v {
		return cv
	}
	return v
}

// accessPermissions decodes Encrypt.P. Bit numbers are one-based as in
// the PDF reference.
func (r *Reader) accessPermissions() AccessPermission {
	enc := r.Trailer().Key("Encrypt")
	if enc.Kind() != Dict {
		return AccessPermission{true, true, true, true, true, true, true, true}
	}
	p := uint32(enc.Key("P").Int64())
	bit := func(n uint) bool { return p&(1<<(n-1)) != 0 }
	ap := AccessPermission{
		CanPrint:                bit(3),
		CanModify:               bit(4),
		ExtractContent:          bit(5),
		ModifyAnnotations:       bit(6),
		ExtractForAccessibility: bit(10),
		AssembleDocument:        bit(11),
	}
	ap.FillInForm = bit(9) || ap.ModifyAnnotations
	ap.CanPrintFaithful = bit(12) || ap.CanPrint
	return ap
}

// containsNonEmbeddedFont returns true if any page references a non-embedded font.
func (r *Reader) containsNonEmbeddedFont() bool {
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		for _, fname := range p.Fonts() {
			f := p.Font(fname)
			if f == nil || f.Subtype() == "Type3" {
				// Type3 glyphs are content streams in the file
				continue
			}
			if !f.Embedded() {
				logger.Debug(fmt.Sprintf("font %s on page %d is not embedded", f.BaseFont(), i), true)
				return true
			}
		}
	}
	return false
}

// MetadataFull returns a comprehensive metadata report for the PDF.
func (r *Reader) MetadataFull() (MetadataFull, error) {
	md, err := r.Metadata()
	if err != nil {
		return MetadataFull{}, err
	}
	root := r.Trailer().Key("Root")
	out := MetadataFull{
		Meta:                    md,
		PDFVersion:              r.version(),
		HasXMP:                  root.Key("Metadata").Kind() == Stream,
		HasCollection:           !root.Key("Collection").IsNull(),
		Encrypted:               r.Trailer().Key("Encrypt").Kind() == Dict,
		Recovered:               r.Recovered(),
		NPages:                  r.NumPage(),
		ContainsNonEmbeddedFont: r.containsNonEmbeddedFont(),
		Language:                strings.TrimSpace(root.Key("Lang").Text()),
		AccessPermission:        r.accessPermissions(),
	}
	logger.Debug("metadata extracted", true)
	return out, nil
}
