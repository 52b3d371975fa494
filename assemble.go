// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"math"
	"strings"
)

// TextOptions controls how glyph runs are joined into text. Thresholds are
// in ems of the larger effective font size of two neighbouring runs.
type TextOptions struct {
	// SpaceThreshold is the smallest gap that becomes a space.
	SpaceThreshold float64 `yaml:"spaceThreshold" validate:"gt=0"`
	// TabThreshold is the smallest gap that becomes a tab.
	TabThreshold float64 `yaml:"tabThreshold" validate:"gtfield=SpaceThreshold"`
	// LineThreshold is the smallest baseline shift that starts a new line.
	LineThreshold float64 `yaml:"lineThreshold" validate:"gt=0"`
	// PageSeparator is written between the texts of two pages.
	PageSeparator string `yaml:"pageSeparator"`
}

// DefaultTextOptions returns the thresholds used when none are configured.
func DefaultTextOptions() TextOptions {
	return TextOptions{
		SpaceThreshold: 0.2,
		TabThreshold:   1.0,
		LineThreshold:  0.5,
		PageSeparator:  "\n\n",
	}
}

// Assemble joins glyph runs in the order they were shown. Whitespace is
// inserted from the geometry between runs, measured along the writing
// direction of the earlier run, unless the text already has it there.
func Assemble(runs []GlyphRun, opt TextOptions) string {
	var sb strings.Builder
	var prev *GlyphRun
	for i := range runs {
		cur := &runs[i]
		if prev != nil {
			if sep := separator(prev, cur, opt); sep != 0 && !hasWhitespace(sb.String(), cur.Text, sep) {
				sb.WriteByte(sep)
			}
		}
		sb.WriteString(cur.Text)
		prev = cur
	}
	return sb.String()
}

// separator classifies the gap between two consecutive runs.
func separator(prev, cur *GlyphRun, opt TextOptions) byte {
	size := math.Max(prev.FontSize, cur.FontSize)
	if size <= 0 {
		size = 1
	}

	ux, uy := 1.0, 0.0
	dx, dy := prev.EndX-prev.X, prev.EndY-prev.Y
	if l := math.Hypot(dx, dy); l > 1e-9 {
		ux, uy = dx/l, dy/l
	}
	gx, gy := cur.X-prev.EndX, cur.Y-prev.EndY
	along := gx*ux + gy*uy
	across := gy*ux - gx*uy

	switch {
	case cur.NewLine, math.Abs(across) > opt.LineThreshold*size:
		return '\n'
	case along > opt.TabThreshold*size:
		return '\t'
	case along > opt.SpaceThreshold*size, along < -opt.TabThreshold*size:
		return ' '
	}
	return 0
}

// hasWhitespace reports whether the boundary between before and after
// already carries the whitespace sep would add.
func hasWhitespace(before, after string, sep byte) bool {
	var end, start byte
	if before != "" {
		end = before[len(before)-1]
	}
	if after != "" {
		start = after[0]
	}
	switch sep {
	case '\n':
		return end == '\n' || start == '\n'
	case '\t':
		return end == '\t' || start == '\t' || end == '\n'
	}
	return isTextSpace(end) || isTextSpace(start)
}

func isTextSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// joinPages concatenates page texts with the configured separator.
func joinPages(pages []string, opt TextOptions) string {
	return strings.Join(pages, opt.PageSeparator)
}
