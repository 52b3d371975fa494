// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause
package xtract

import (
	"context"
	"fmt"
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_Pages(t *testing.T) {
	r := parsePDF(t, textPDF(map[string]string{"F1": helvetica},
		"BT /F1 12 Tf (one) Tj ET", "BT /F1 12 Tf (two) Tj ET", "BT /F1 12 Tf (three) Tj ET"))
	require.Equal(t, 3, r.NumPage())

	assert.True(t, r.Page(0).V.IsNull())
	assert.True(t, r.Page(4).V.IsNull())

	text, err := r.Page(2).GetPlainText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "two", text)

	empty, err := r.Page(4).GetPlainText(context.Background())
	require.NoError(t, err)
	assert.Empty(t, empty)

	rd, err := r.GetPlainText()
	require.NoError(t, err)
	all, err := io.ReadAll(rd)
	require.NoError(t, err)
	assert.Equal(t, "one\n\ntwo\n\nthree", string(all))
}

func TestPage_Inherited(t *testing.T) {
	b := newPDF()
	font := b.add(helvetica)
	root := b.reserve()
	mid := b.reserve()
	plain := b.add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /Contents %d 0 R >>", mid, b.stream("", "BT /F1 9 Tf (deep) Tj ET")))
	own := b.add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 100 100] /CropBox [10 10 90 90] /Resources << >> >>", root))
	b.set(mid, fmt.Sprintf("<< /Type /Pages /Parent %d 0 R /Kids [%d 0 R] /Count 1 /Resources << /Font << /F1 %d 0 R >> >> >>", root, plain, font))
	b.set(root, fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R %d 0 R] /Count 2 /MediaBox [0 0 612 792] >>", mid, own))
	b.root = b.add(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", root))
	r := parsePDF(t, b.bytes())
	require.Equal(t, 2, r.NumPage())

	first := r.Page(1)
	assert.Equal(t, float64(612), first.MediaBox().Index(2).Float64())
	assert.Equal(t, first.MediaBox().String(), first.CropBox().String(), "crop box defaults to the media box")
	assert.Equal(t, []string{"F1"}, first.Fonts())
	assert.Equal(t, "Helvetica", first.Font("F1").BaseFont())
	text, err := first.GetPlainText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "deep", text)

	second := r.Page(2)
	assert.Equal(t, float64(100), second.MediaBox().Index(2).Float64())
	assert.Equal(t, float64(10), second.CropBox().Index(0).Float64())
	assert.Empty(t, second.Fonts(), "the page's own resources win")
	assert.Nil(t, second.Font("F1"))
}

func TestReader_PageTreeShapes(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		b := newPDF()
		root := b.reserve()
		mid := b.reserve()
		page := b.add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R >>", mid))
		b.set(mid, fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R %d 0 R %d 0 R] >>", page, root, page))
		b.set(root, fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R] >>", mid))
		b.root = b.add(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", root))

		assert.Equal(t, 1, parsePDF(t, b.bytes()).NumPage())
	})

	t.Run("root is a page", func(t *testing.T) {
		b := newPDF()
		page := b.add("<< /Type /Page >>")
		b.root = b.add(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", page))

		assert.Equal(t, 1, parsePDF(t, b.bytes()).NumPage())
	})

	t.Run("untyped intermediate node", func(t *testing.T) {
		b := newPDF()
		root := b.reserve()
		mid := b.reserve()
		p1 := b.add("<< /Type /Page >>")
		p2 := b.add("<< /Type /Page >>")
		b.set(mid, fmt.Sprintf("<< /Kids [%d 0 R %d 0 R] >>", p1, p2))
		b.set(root, fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R null 5] >>", mid))
		b.root = b.add(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", root))

		assert.Equal(t, 2, parsePDF(t, b.bytes()).NumPage())
	})

	t.Run("recovered file without a page tree", func(t *testing.T) {
		b := newPDF()
		font := b.add(helvetica)
		b.pages(fmt.Sprintf("<< /Font << /F1 %d 0 R >> >>", font), "BT /F1 12 Tf (A) Tj ET", "BT /F1 12 Tf (B) Tj ET")
		b.set(b.root, "<< /Type /Catalog >>")
		b.noXref = true
		data := b.bytes()

		r := parsePDF(t, data)
		assert.True(t, r.Recovered())
		assert.Equal(t, 2, r.NumPage())
		assert.Equal(t, "A\n\nB", extractPDF(t, data))
	})

	t.Run("intact file without a page tree", func(t *testing.T) {
		b := newPDF()
		b.add("<< /Type /Page >>")
		b.root = b.add("<< /Type /Catalog >>")

		assert.Equal(t, 0, parsePDF(t, b.bytes()).NumPage())
	})
}

// gridPDF shows a, b on one line and c below a.
func gridPDF() []byte {
	return textPDF(map[string]string{"F1": helvetica},
		"BT /F1 10 Tf 1 0 0 1 100 700 Tm (b) Tj 1 0 0 1 10 700 Tm (a) Tj 1 0 0 1 10 680 Tm (c) Tj ET")
}

func TestPage_GetTextByRow(t *testing.T) {
	rows, err := parsePDF(t, gridPDF()).Page(1).GetTextByRow()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(700), rows[0].Position)
	require.Len(t, rows[0].Content, 2)
	assert.Equal(t, "a", rows[0].Content[0].S)
	assert.Equal(t, "b", rows[0].Content[1].S)

	assert.Equal(t, int64(680), rows[1].Position)
	assert.Equal(t, "c", rows[1].Content[0].S)
}

func TestPage_GetTextByColumn(t *testing.T) {
	cols, err := parsePDF(t, gridPDF()).Page(1).GetTextByColumn()
	require.NoError(t, err)
	require.Len(t, cols, 2)

	assert.Equal(t, int64(10), cols[0].Position)
	require.Len(t, cols[0].Content, 2)
	assert.Equal(t, "a", cols[0].Content[0].S)
	assert.Equal(t, "c", cols[0].Content[1].S)

	assert.Equal(t, int64(100), cols[1].Position)
	assert.Equal(t, "b", cols[1].Content[0].S)
}

func TestPage_Content(t *testing.T) {
	c := parsePDF(t, gridPDF()).Page(1).Content()
	require.Len(t, c.Text, 3)
	got := c.Text[0]
	assert.InDelta(t, 5.56, got.W, 1e-9)
	got.W = 0
	assert.Equal(t, Text{Font: "Helvetica", FontSize: 10, X: 100, Y: 700, S: "b"}, got)
	assert.Empty(t, c.Rect)

	assert.Empty(t, Page{}.Content().Text)
}

func TestReader_GetStyledTexts(t *testing.T) {
	fonts := map[string]string{"F1": helvetica, "F2": courier}
	r := parsePDF(t, textPDF(fonts,
		"BT /F1 10 Tf 10 700 Td (Hel) Tj (lo) Tj /F2 10 Tf ( mono) Tj /F1 10 Tf 0 -40 Td (below) Tj ET",
		"BT /F1 12 Tf (next page) Tj ET"))

	texts, err := r.GetStyledTexts()
	require.NoError(t, err)
	var got []string
	for _, text := range texts {
		got = append(got, text.S)
	}
	assert.Equal(t, []string{"Hello", " mono", "below", "next page"}, got)
	assert.InDelta(t, 22.78, texts[0].W, 1e-9)
}

func TestSortText(t *testing.T) {
	texts := []Text{
		{S: "c", X: 10, Y: 680},
		{S: "b", X: 100, Y: 700},
		{S: "a", X: 10, Y: 700},
	}

	vertical := append(TextVertical(nil), texts...)
	sort.Sort(vertical)
	assert.Equal(t, []string{"a", "b", "c"}, []string{vertical[0].S, vertical[1].S, vertical[2].S})

	horizontal := append(TextHorizontal(nil), texts...)
	sort.Sort(horizontal)
	assert.Equal(t, []string{"a", "c", "b"}, []string{horizontal[0].S, horizontal[1].S, horizontal[2].S})
}

func TestReader_Outline(t *testing.T) {
	b := newPDF()
	outlines := b.reserve()
	first := b.reserve()
	second := b.reserve()
	child := b.add(fmt.Sprintf("<< /Title (Section 1.1) /Parent %d 0 R >>", first))
	b.set(first, fmt.Sprintf("<< /Title (Chapter 1) /Parent %d 0 R /Next %d 0 R /First %d 0 R >>", outlines, second, child))
	b.set(second, fmt.Sprintf("<< /Title <FEFF0043006800200032> /Parent %d 0 R /Next %d 0 R >>", outlines, first))
	b.set(outlines, fmt.Sprintf("<< /Type /Outlines /First %d 0 R >>", first))
	b.catalog = fmt.Sprintf(" /Outlines %d 0 R", outlines)
	b.pages("<< >>", "")
	r := parsePDF(t, b.bytes())

	want := Outline{Child: []Outline{
		{Title: "Chapter 1", Child: []Outline{{Title: "Section 1.1"}}},
		{Title: "Ch 2"},
	}}
	assert.Equal(t, want, r.Outline())

	assert.Equal(t, Outline{}, parsePDF(t, helloPDF("x")).Outline())
}
