// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/sassoftware/pdf-xtract/logger"
)

// maxTreeDepth bounds the page and outline trees.
const maxTreeDepth = 64

// A Page represent a single page in a PDF file.
// The methods interpret a Page dictionary stored in V.
type Page struct {
	V Value
}

// Page returns the page for the given page number.
// Page numbers are indexed starting at 1, not 0.
// If the page is not found, Page returns a Page with p.V.IsNull().
func (r *Reader) Page(num int) Page {
	pages := r.pageList()
	if num < 1 || num > len(pages) {
		return Page{}
	}
	return Page{pages[num-1]}
}

// NumPage returns the number of pages in the PDF file.
func (r *Reader) NumPage() int {
	return len(r.pageList())
}

// pageList flattens the page tree once.
func (r *Reader) pageList() []Value {
	r.pagesOnce.Do(func() {
		r.pages = r.walkPages()
		if len(r.pages) == 0 && r.recovered {
			r.pages = r.scanPages()
		}
		logger.Debug(fmt.Sprintf("total pages = %d", len(r.pages)), true)
	})
	return r.pages
}

func (r *Reader) walkPages() []Value {
	var pages []Value
	seen := make(map[objptr]bool)
	var walk func(node Value, depth int)
	walk = func(node Value, depth int) {
		if depth > maxTreeDepth {
			logger.Error("page tree too deep")
			return
		}
		kids := node.Key("Kids")
		for i := 0; i < kids.Len(); i++ {
			if ptr, ok := kids.indirectIndex(i); ok {
				if seen[ptr] {
					logger.Error(fmt.Sprintf("page tree cycle at %d %d R", ptr.id, ptr.gen))
					continue
				}
				seen[ptr] = true
			}
			kid := kids.Index(i)
			switch {
			case kid.Kind() != Dict:
			case kid.Key("Type").Name() == "Pages", kid.Key("Kids").Kind() == Array:
				walk(kid, depth+1)
			default:
				pages = append(pages, kid)
			}
		}
	}
	root := r.Trailer().Key("Root").Key("Pages")
	if root.Key("Type").Name() == "Page" {
		return []Value{root}
	}
	walk(root, 0)
	return pages
}

// scanPages collects /Type /Page objects in object number order. It is
// the last resort for recovered files whose page tree is gone.
func (r *Reader) scanPages() []Value {
	var pages []Value
	for id, x := range r.xref {
		if id == 0 || x.ptr.id != uint32(id) {
			continue
		}
		v := r.resolve(objptr{}, x.ptr)
		if v.Kind() == Dict && v.Key("Type").Name() == "Page" {
			pages = append(pages, v)
		}
	}
	return pages
}

// indirectIndex reports whether element i of array v is a reference.
func (v Value) indirectIndex(i int) (objptr, bool) {
	x, ok := v.data.(array)
	if !ok || i < 0 || i >= len(x) {
		return objptr{}, false
	}
	ptr, ok := x[i].(objptr)
	return ptr, ok
}

// GetPlainText returns all the text in the PDF file, pages separated by
// the default page separator.
func (r *Reader) GetPlainText() (reader io.Reader, err error) {
	text, err := r.ExtractText(context.Background(), DefaultTextOptions(), false)
	if err != nil {
		return &bytes.Buffer{}, err
	}
	return bytes.NewBufferString(text), nil
}

// ExtractText returns the text of every page joined by opt.PageSeparator.
// In strict mode the first page error is returned; otherwise failing pages
// contribute no text.
func (r *Reader) ExtractText(ctx context.Context, opt TextOptions, strict bool) (string, error) {
	n := r.NumPage()
	texts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		text, err := r.Page(i).ExtractText(ctx, opt, strict)
		if err != nil {
			if strict || ctx.Err() != nil {
				return "", fmt.Errorf("page %d: %w", i, err)
			}
			logger.Error(fmt.Sprintf("page %d: %v", i, err))
		}
		texts = append(texts, text)
	}
	logger.Debug("Successfully completed parsing", true)
	return joinPages(texts, opt), nil
}

// GetStyledTexts returns list all sentences in an array, that are included styles
func (r *Reader) GetStyledTexts() (sentences []Text, err error) {
	totalPage := r.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		p := r.Page(pageIndex)

		var lastTextStyle Text
		for _, text := range p.Content().Text {
			if lastTextStyle == (Text{}) {
				lastTextStyle = text
				continue
			}

			if IsSameSentence(lastTextStyle, text) {
				lastTextStyle.S = lastTextStyle.S + text.S
				lastTextStyle.W = text.X + text.W - lastTextStyle.X
			} else {
				sentences = append(sentences, lastTextStyle)
				lastTextStyle = text
			}
		}
		if len(lastTextStyle.S) > 0 {
			sentences = append(sentences, lastTextStyle)
		}
	}

	return sentences, err
}

func (p Page) findInherited(key string) Value {
	depth := 0
	for v := p.V; !v.IsNull() && depth <= maxTreeDepth; v = v.Key("Parent") {
		if r := v.Key(key); !r.IsNull() {
			return r
		}
		depth++
	}
	return Value{}
}

// MediaBox returns the page's media box, inherited from the page tree if
// the page does not set it.
func (p Page) MediaBox() Value {
	return p.findInherited("MediaBox")
}

// CropBox returns the page's crop box, defaulting to the media box.
func (p Page) CropBox() Value {
	if v := p.findInherited("CropBox"); !v.IsNull() {
		return v
	}
	return p.MediaBox()
}

// Resources returns the resources dictionary associated with the page.
func (p Page) Resources() Value {
	return p.findInherited("Resources")
}

// Fonts returns a list of the fonts associated with the page.
func (p Page) Fonts() []string {
	return p.Resources().Key("Font").Keys()
}

// Font returns the font with the given name associated with the page, or
// nil if the page has no such font.
func (p Page) Font(name string) *Font {
	fonts := p.Resources().Key("Font")
	v := fonts.Key(name)
	if v.Kind() != Dict {
		return nil
	}
	ptr, indirect := fonts.indirectKey(name)
	return p.V.r.font(v, ptr, indirect)
}

// A Text represents a single piece of text drawn on a page.
type Text struct {
	Font     string  // the font used
	FontSize float64 // the font size, in points (1/72 of an inch)
	X        float64 // the X coordinate, in points, increasing left to right
	Y        float64 // the Y coordinate, in points, increasing bottom to top
	W        float64 // the width of the text, in points
	S        string  // the actual UTF-8 text
}

// A Rect represents a rectangle.
type Rect struct {
	Min, Max Point
}

// A Point represents an X, Y pair.
type Point struct {
	X float64
	Y float64
}

// Content describes the basic content on a page: the text and any drawn rectangles.
type Content struct {
	Text []Text
	Rect []Rect
}

// interpret runs the page's content streams. Lexer panics that escape the
// interpreter are turned into errors here.
func (p Page) interpret(ctx context.Context, strict bool) (in *textInterp, err error) {
	in = newTextInterp(ctx, p.V.r, strict)
	if p.V.IsNull() {
		return in, nil
	}
	defer catch(&err)

	data, err := contentData(p.V.Key("Contents"))
	if err != nil {
		if strict {
			return in, err
		}
		logger.Error(fmt.Sprintf("page %d %d R: %v", p.V.ptr.id, p.V.ptr.gen, err))
		return in, nil
	}
	if len(data) == 0 {
		return in, nil
	}
	return in, in.run(data, p.Resources())
}

// GlyphRuns returns the positioned text runs of the page in the order the
// content stream shows them.
func (p Page) GlyphRuns(ctx context.Context) ([]GlyphRun, error) {
	in, err := p.interpret(ctx, false)
	return in.runs, err
}

// GetPlainText returns the page's text using the default options.
func (p Page) GetPlainText(ctx context.Context) (string, error) {
	return p.ExtractText(ctx, DefaultTextOptions(), false)
}

// ExtractText interprets the page and assembles its glyph runs into text.
func (p Page) ExtractText(ctx context.Context, opt TextOptions, strict bool) (string, error) {
	in, err := p.interpret(ctx, strict)
	if err != nil {
		return "", err
	}
	return Assemble(in.runs, opt), nil
}

// Content returns the page's content.
func (p Page) Content() Content {
	in, err := p.interpret(context.Background(), false)
	if err != nil {
		logger.Error(fmt.Sprintf("content: %v", err))
	}
	var c Content
	for _, run := range in.runs {
		c.Text = append(c.Text, Text{
			Font:     run.Font,
			FontSize: run.FontSize,
			X:        run.X,
			Y:        run.Y,
			W:        math.Hypot(run.EndX-run.X, run.EndY-run.Y),
			S:        run.Text,
		})
	}
	c.Rect = in.rects
	return c
}

// Column represents the contents of a column
type Column struct {
	Position int64
	Content  TextVertical
}

// Columns is a list of column
type Columns []*Column

// GetTextByColumn returns the page's all text grouped by column
func (p Page) GetTextByColumn() (Columns, error) {
	result := Columns{}
	index := make(map[int64]*Column)
	for _, text := range p.Content().Text {
		pos := int64(text.X)
		column, ok := index[pos]
		if !ok {
			column = &Column{Position: pos}
			index[pos] = column
			result = append(result, column)
		}
		column.Content = append(column.Content, text)
	}

	for _, column := range result {
		sort.Sort(column.Content)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Position < result[j].Position
	})
	return result, nil
}

// Row represents the contents of a row
type Row struct {
	Position int64
	Content  TextHorizontal
}

// Rows is a list of rows
type Rows []*Row

// GetTextByRow returns the page's all text grouped by rows
func (p Page) GetTextByRow() (Rows, error) {
	result := Rows{}
	index := make(map[int64]*Row)
	for _, text := range p.Content().Text {
		pos := int64(text.Y)
		row, ok := index[pos]
		if !ok {
			row = &Row{Position: pos}
			index[pos] = row
			result = append(result, row)
		}
		row.Content = append(row.Content, text)
	}

	for _, row := range result {
		sort.Sort(row.Content)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Position > result[j].Position
	})
	return result, nil
}

// TextVertical implements sort.Interface for sorting
// a slice of Text values in vertical order, top to bottom,
// and then left to right within a line.
type TextVertical []Text

func (x TextVertical) Len() int      { return len(x) }
func (x TextVertical) Swap(i, j int) { x[i], x[j] = x[j], x[i] }
func (x TextVertical) Less(i, j int) bool {
	if x[i].Y != x[j].Y {
		return x[i].Y > x[j].Y
	}
	return x[i].X < x[j].X
}

// TextHorizontal implements sort.Interface for sorting
// a slice of Text values in horizontal order, left to right,
// and then top to bottom within a column.
type TextHorizontal []Text

func (x TextHorizontal) Len() int      { return len(x) }
func (x TextHorizontal) Swap(i, j int) { x[i], x[j] = x[j], x[i] }
func (x TextHorizontal) Less(i, j int) bool {
	if x[i].X != x[j].X {
		return x[i].X < x[j].X
	}
	return x[i].Y > x[j].Y
}

// An Outline is a tree describing the outline (also known as the table of contents)
// of a document.
type Outline struct {
	Title string    // title for this element
	Child []Outline // child elements
}

// Outline returns the document outline.
// The Outline returned is the root of the outline tree and typically has no Title itself.
// That is, the children of the returned root are the top-level entries in the outline.
func (r *Reader) Outline() Outline {
	return buildOutline(r.Trailer().Key("Root").Key("Outlines"), make(map[objptr]bool), 0)
}

func buildOutline(entry Value, seen map[objptr]bool, depth int) Outline {
	var x Outline
	x.Title = entry.Key("Title").Text()
	if depth > maxTreeDepth {
		return x
	}
	for child := entry.Key("First"); child.Kind() == Dict; child = child.Key("Next") {
		if seen[child.ptr] {
			break
		}
		seen[child.ptr] = true
		x.Child = append(x.Child, buildOutline(child, seen, depth+1))
	}
	return x
}
