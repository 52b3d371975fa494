// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sassoftware/pdf-xtract/logger"
	"seehuhn.de/go/geom/matrix"
)

// maxFormDepth bounds the nesting of Form XObjects.
const maxFormDepth = 16

// A GlyphRun is the text shown by one string operand, positioned in user
// space. X, Y is the baseline origin of the first glyph and EndX, EndY the
// pen position after the last one. FontSize is the effective size after
// the text and transformation matrices are applied.
type GlyphRun struct {
	Text     string
	Font     string
	FontSize float64
	X, Y     float64
	EndX     float64
	EndY     float64
	// NewLine is set when an explicit line operator (T*, ' or ")
	// preceded the run.
	NewLine bool
}

type gstate struct {
	CTM   matrix.Matrix
	Tc    float64
	Tw    float64
	Th    float64
	TL    float64
	Trise float64
	Tr    int
	Tf    *Font
	Tfs   float64
}

type fontKey struct {
	res  objptr
	name string
}

// textInterp runs content streams and records the glyph runs they show.
type textInterp struct {
	ctx    context.Context
	r      *Reader
	strict bool

	g     gstate
	stack []gstate
	tm    matrix.Matrix
	tlm   matrix.Matrix

	newLine  bool
	runs     []GlyphRun
	rects    []Rect
	fonts    map[fontKey]*Font
	visiting map[objptr]bool
	depth    int
}

func newTextInterp(ctx context.Context, r *Reader, strict bool) *textInterp {
	return &textInterp{
		ctx:      ctx,
		r:        r,
		strict:   strict,
		g:        gstate{CTM: matrix.Identity, Th: 1},
		tm:       matrix.Identity,
		tlm:      matrix.Identity,
		fonts:    make(map[fontKey]*Font),
		visiting: make(map[objptr]bool),
	}
}

func apply(m matrix.Matrix, x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// run interprets one content stream against its resource dictionary.
func (in *textInterp) run(data []byte, res Value) error {
	return interpret(in.ctx, data, func(stk *Stack, op string) error {
		args := append([]Value(nil), stk.stack...)
		stk.reset()
		err := in.do(op, args, res)
		if err == nil {
			return nil
		}
		if in.strict {
			return err
		}
		logger.Debug(fmt.Sprintf("content: skipping %s: %v", op, err))
		return nil
	})
}

func badOperands(op string, want string, args []Value) error {
	return &MalformedObject{Msg: fmt.Sprintf("operator %s wants %s, got %d operands", op, want, len(args))}
}

// numbers returns the last n operands as numbers.
func numbers(op string, args []Value, n int) ([]float64, error) {
	if len(args) < n {
		return nil, badOperands(op, fmt.Sprintf("%d numbers", n), args)
	}
	out := make([]float64, n)
	for i, v := range args[len(args)-n:] {
		k := v.Kind()
		if k != Integer && k != Real {
			return nil, badOperands(op, fmt.Sprintf("%d numbers", n), args)
		}
		out[i] = v.Float64()
	}
	return out, nil
}

func last(args []Value, kind ValueKind) (Value, bool) {
	if len(args) == 0 || args[len(args)-1].Kind() != kind {
		return Value{}, false
	}
	return args[len(args)-1], true
}

func (in *textInterp) do(op string, args []Value, res Value) error {
	switch op {
	case "q":
		in.stack = append(in.stack, in.g)
	case "Q":
		if n := len(in.stack); n > 0 {
			in.g = in.stack[n-1]
			in.stack = in.stack[:n-1]
		}
	case "cm":
		m, err := numbers(op, args, 6)
		if err != nil {
			return err
		}
		in.g.CTM = matrix.Matrix{m[0], m[1], m[2], m[3], m[4], m[5]}.Mul(in.g.CTM)
	case "BT":
		in.tm = matrix.Identity
		in.tlm = matrix.Identity
	case "ET":
	case "Tf":
		if len(args) < 2 || args[len(args)-2].Kind() != Name {
			return badOperands(op, "a font name and size", args)
		}
		size, err := numbers(op, args, 1)
		if err != nil {
			return err
		}
		in.g.Tfs = size[0]
		in.g.Tf = in.font(res, args[len(args)-2].Name())
	case "Td", "TD":
		t, err := numbers(op, args, 2)
		if err != nil {
			return err
		}
		if op == "TD" {
			in.g.TL = -t[1]
		}
		in.tlm = matrix.Translate(t[0], t[1]).Mul(in.tlm)
		in.tm = in.tlm
	case "Tm":
		m, err := numbers(op, args, 6)
		if err != nil {
			return err
		}
		in.tlm = matrix.Matrix{m[0], m[1], m[2], m[3], m[4], m[5]}
		in.tm = in.tlm
	case "T*":
		in.nextLine()
	case "Tc", "Tw", "Tz", "TL", "Ts", "Tr":
		x, err := numbers(op, args, 1)
		if err != nil {
			return err
		}
		switch op {
		case "Tc":
			in.g.Tc = x[0]
		case "Tw":
			in.g.Tw = x[0]
		case "Tz":
			in.g.Th = x[0] / 100
		case "TL":
			in.g.TL = x[0]
		case "Ts":
			in.g.Trise = x[0]
		case "Tr":
			in.g.Tr = int(x[0])
		}
	case "Tj", "'":
		s, ok := last(args, String)
		if !ok {
			return badOperands(op, "a string", args)
		}
		if op == "'" {
			in.nextLine()
		}
		in.show(s.RawString())
	case `"`:
		s, ok := last(args, String)
		if !ok || len(args) < 3 {
			return badOperands(op, "two numbers and a string", args)
		}
		sp, err := numbers(op, args[:len(args)-1], 2)
		if err != nil {
			return err
		}
		in.g.Tw, in.g.Tc = sp[0], sp[1]
		in.nextLine()
		in.show(s.RawString())
	case "TJ":
		a, ok := last(args, Array)
		if !ok {
			return badOperands(op, "an array", args)
		}
		for i := 0; i < a.Len(); i++ {
			x := a.Index(i)
			switch x.Kind() {
			case String:
				in.show(x.RawString())
			case Integer, Real:
				tx := -x.Float64() / 1000 * in.g.Tfs * in.g.Th
				in.tm = matrix.Translate(tx, 0).Mul(in.tm)
			}
		}
	case "re":
		v, err := numbers(op, args, 4)
		if err != nil {
			return err
		}
		x0, y0 := apply(in.g.CTM, v[0], v[1])
		x1, y1 := apply(in.g.CTM, v[0]+v[2], v[1]+v[3])
		in.rects = append(in.rects, Rect{
			Min: Point{math.Min(x0, x1), math.Min(y0, y1)},
			Max: Point{math.Max(x0, x1), math.Max(y0, y1)},
		})
	case "Do":
		n, ok := last(args, Name)
		if !ok {
			return badOperands(op, "an XObject name", args)
		}
		return in.doXObject(res, n.Name())
	}
	return nil
}

func (in *textInterp) nextLine() {
	in.tlm = matrix.Translate(0, -in.g.TL).Mul(in.tlm)
	in.tm = in.tlm
	in.newLine = true
}

// font resolves a font resource name. Indirect fonts come from the
// document cache; direct ones are cached for the page.
func (in *textInterp) font(res Value, name string) *Font {
	fonts := res.Key("Font")
	v := fonts.Key(name)
	if v.Kind() != Dict {
		logger.Debug(fmt.Sprintf("content: font resource %s not found", name))
		return nil
	}
	if ptr, ok := fonts.indirectKey(name); ok {
		return in.r.font(v, ptr, true)
	}
	key := fontKey{res.ptr, name}
	if f, ok := in.fonts[key]; ok {
		return f
	}
	f := newFont(v)
	in.fonts[key] = f
	return f
}

// show decodes a string operand and advances the text matrix past it.
func (in *textInterp) show(raw string) {
	g := &in.g
	if g.Tf == nil {
		logger.Debug("content: text shown without a font")
		return
	}
	trm := in.tm.Mul(g.CTM)
	x, y := apply(trm, 0, 0)
	size := g.Tfs * math.Hypot(trm[2], trm[3])

	var sb strings.Builder
	for _, gl := range g.Tf.glyphs(raw) {
		sb.WriteString(gl.text)
		tx := gl.width*g.Tfs + g.Tc
		if gl.code == " " {
			tx += g.Tw
		}
		in.tm = matrix.Translate(tx*g.Th, 0).Mul(in.tm)
	}
	endX, endY := apply(in.tm.Mul(g.CTM), 0, 0)

	if sb.Len() == 0 {
		return
	}
	in.runs = append(in.runs, GlyphRun{
		Text:     sb.String(),
		Font:     g.Tf.BaseFont(),
		FontSize: math.Abs(size),
		X:        x,
		Y:        y,
		EndX:     endX,
		EndY:     endY,
		NewLine:  in.newLine,
	})
	in.newLine = false
}

// doXObject interprets a Form XObject with its own matrix and resources.
func (in *textInterp) doXObject(res Value, name string) error {
	xobjs := res.Key("XObject")
	form := xobjs.Key(name)
	if form.Kind() != Stream || form.Key("Subtype").Name() != "Form" {
		return nil
	}
	ptr, indirect := xobjs.indirectKey(name)
	if indirect && in.visiting[ptr] {
		logger.Debug(fmt.Sprintf("content: form %s refers to itself", name))
		return nil
	}
	if in.depth >= maxFormDepth {
		logger.Debug(fmt.Sprintf("content: form %s nested too deeply", name))
		return nil
	}
	data, err := form.Data()
	if err != nil {
		return err
	}

	saved, savedTm, savedTlm := in.g, in.tm, in.tlm
	if m := form.Key("Matrix"); m.Len() == 6 {
		var fm matrix.Matrix
		for i := range fm {
			fm[i] = m.Index(i).Float64()
		}
		in.g.CTM = fm.Mul(in.g.CTM)
	}
	formRes := form.Key("Resources")
	if formRes.Kind() != Dict {
		formRes = res
	}
	if indirect {
		in.visiting[ptr] = true
	}
	in.depth++
	err = in.run(data, formRes)
	in.depth--
	if indirect {
		delete(in.visiting, ptr)
	}
	in.g, in.tm, in.tlm = saved, savedTm, savedTlm
	return err
}
