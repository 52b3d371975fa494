// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/sassoftware/pdf-xtract/logger"
	"golang.org/x/text/unicode/norm"
	"seehuhn.de/go/postscript/afm"
)

// Advance widths of the standard text fonts, used for simple fonts
// that omit /Widths. The oblique faces share the upright metrics.
//
//go:embed afm/*.afm
var afmFiles embed.FS

type stdMetrics struct {
	name   string
	widths map[rune]float64
	fixed  float64
}

var (
	stdOnce  sync.Once
	stdFonts map[string]*stdMetrics
)

// stdAliases maps the names of the remaining standard faces and of their
// common TrueType substitutes to the metrics file that serves them.
var stdAliases = map[string]string{
	"Helvetica-Oblique":     "Helvetica",
	"Helvetica-BoldOblique": "Helvetica-Bold",
	"Helvetica-Italic":      "Helvetica",
	"Helvetica-BoldItalic":  "Helvetica-Bold",
	"Courier-Bold":          "Courier",
	"Courier-Oblique":       "Courier",
	"Courier-BoldOblique":   "Courier",
	"Courier-Italic":        "Courier",
	"Courier-BoldItalic":    "Courier",
	"Times":                 "Times-Roman",
	"Times-Regular":         "Times-Roman",

	"Arial":              "Helvetica",
	"ArialMT":            "Helvetica",
	"Arial-Bold":         "Helvetica-Bold",
	"Arial-BoldMT":       "Helvetica-Bold",
	"Arial-Italic":       "Helvetica",
	"Arial-ItalicMT":     "Helvetica",
	"Arial-BoldItalic":   "Helvetica-Bold",
	"Arial-BoldItalicMT": "Helvetica-Bold",

	"TimesNewRoman":                "Times-Roman",
	"TimesNewRomanPSMT":            "Times-Roman",
	"TimesNewRoman-Bold":           "Times-Bold",
	"TimesNewRomanPS-BoldMT":       "Times-Bold",
	"TimesNewRoman-Italic":         "Times-Italic",
	"TimesNewRomanPS-ItalicMT":     "Times-Italic",
	"TimesNewRoman-BoldItalic":     "Times-BoldItalic",
	"TimesNewRomanPS-BoldItalicMT": "Times-BoldItalic",

	"CourierNew":          "Courier",
	"CourierNewPSMT":      "Courier",
	"CourierNew-Bold":     "Courier",
	"CourierNewPS-BoldMT": "Courier",
}

// standardMetrics returns the built-in metrics for a font name, or nil
// when the name is not one of the standard text fonts. Names written in
// the "Arial,Bold" form are accepted.
func standardMetrics(fontName string) *stdMetrics {
	stdOnce.Do(loadStandardMetrics)
	fontName = strings.ReplaceAll(fontName, ",", "-")
	if alias, ok := stdAliases[fontName]; ok {
		fontName = alias
	}
	return stdFonts[fontName]
}

func loadStandardMetrics() {
	stdFonts = make(map[string]*stdMetrics)
	entries, err := afmFiles.ReadDir("afm")
	if err != nil {
		logger.Error(fmt.Sprintf("standard font metrics: %v", err))
		return
	}
	for _, e := range entries {
		m, err := readAFM("afm/" + e.Name())
		if err != nil {
			logger.Error(fmt.Sprintf("standard font metrics %s: %v", e.Name(), err))
			continue
		}
		stdFonts[m.name] = m
	}
}

func readAFM(path string) (*stdMetrics, error) {
	fd, err := afmFiles.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	metrics, err := afm.Read(fd)
	if err != nil {
		return nil, err
	}
	m := &stdMetrics{
		name:   metrics.FontName,
		widths: make(map[rune]float64, len(metrics.Glyphs)),
	}
	for glyphName, info := range metrics.Glyphs {
		if r := []rune(glyphText(glyphName, false)); len(r) == 1 {
			m.widths[r[0]] = info.WidthX
		}
	}
	if metrics.IsFixedPitch {
		m.fixed = metrics.GlyphWidthPDF("space")
	}
	return m, nil
}

// width returns the advance of the glyph whose text is text. Accented
// letters take the advance of their base letter.
func (m *stdMetrics) width(text string) (float64, bool) {
	if m.fixed > 0 {
		return m.fixed, true
	}
	r := []rune(text)
	if len(r) == 0 {
		return 0, false
	}
	if w, ok := m.widths[r[0]]; ok && len(r) == 1 {
		return w, true
	}
	if d := []rune(norm.NFD.String(text)); len(d) > 0 {
		if w, ok := m.widths[d[0]]; ok {
			return w, true
		}
	}
	return 0, false
}
